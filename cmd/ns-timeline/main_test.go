package main

import (
	"bytes"
	"encoding/json"
	"math"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Go2NetTimeline/internal/config"
	"Go2NetTimeline/internal/timeline"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeUDPCapture(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "replay.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

	for i := 0; i < n; i++ {
		eth := &layers.Ethernet{
			SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
			DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
			EthernetType: layers.EthernetTypeIPv4,
		}
		ip := &layers.IPv4{
			Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
			SrcIP: net.IPv4(192, 168, 1, 1), DstIP: net.IPv4(192, 168, 1, 2),
		}
		udp := &layers.UDP{SrcPort: 4000, DstPort: 53}
		require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

		buf := gopacket.NewSerializeBuffer()
		require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("query"))))
		data := buf.Bytes()
		require.NoError(t, w.WritePacket(gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}, data))
	}
	return path
}

func TestEngineOptions(t *testing.T) {
	cfg := config.Default()
	opts := engineOptions(cfg.Timeline, zap.NewNop(), nil)

	assert.Equal(t, 10000, opts.MaxBufferSize)
	assert.Equal(t, time.Minute, opts.SegmentDuration)
	assert.Equal(t, 2.0, opts.AnomalyThreshold)
	assert.Equal(t, 24*time.Hour, opts.Retention)
	assert.Equal(t, "timeline-data", opts.StorageKey)
	assert.Equal(t, 1000, opts.DefaultMaxResults)
	require.NotNil(t, opts.AutoCleanup)
	assert.True(t, *opts.AutoCleanup)
}

func TestReplayJSON(t *testing.T) {
	path := writeUDPCapture(t, 3)
	var out bytes.Buffer
	err := replay(&out, replayOptions{file: path, format: "json", start: math.NaN(), end: math.NaN()}, zap.NewNop())
	require.NoError(t, err)

	var doc timeline.ExportDocument
	require.NoError(t, json.Unmarshal(out.Bytes(), &doc))
	assert.Equal(t, 3, doc.Metadata.PacketCount)
	assert.Equal(t, 1700000000.0, doc.Metadata.StartTime)
	assert.Equal(t, 1700000002.0, doc.Metadata.EndTime)
	assert.Equal(t, map[string]int{"UDP": 3}, doc.Statistics.ProtocolDistribution)
}

func TestReplayCSVRange(t *testing.T) {
	path := writeUDPCapture(t, 5)
	var out bytes.Buffer
	err := replay(&out, replayOptions{file: path, format: "csv", start: 1700000001, end: 1700000002}, zap.NewNop())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,source,destination,protocol,size,summary", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], `"2023-11-14T22:13:21.000Z","192.168.1.1","192.168.1.2","UDP"`), lines[1])
}

func TestReplayErrors(t *testing.T) {
	err := replay(&bytes.Buffer{}, replayOptions{file: filepath.Join(t.TempDir(), "missing.pcap")}, zap.NewNop())
	assert.Error(t, err)

	empty := writeUDPCapture(t, 0)
	err = replay(&bytes.Buffer{}, replayOptions{file: empty, format: "json", start: math.NaN(), end: math.NaN()}, zap.NewNop())
	assert.ErrorContains(t, err, "no IP packets")

	path := writeUDPCapture(t, 1)
	err = replay(&bytes.Buffer{}, replayOptions{file: path, format: "xml", start: math.NaN(), end: math.NaN()}, zap.NewNop())
	assert.ErrorIs(t, err, timeline.ErrUnsupportedExportFormat)
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "replay")
}
