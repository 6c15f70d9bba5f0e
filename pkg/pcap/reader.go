package pcap

import (
	"Go2NetTimeline/internal/model"
	"Go2NetTimeline/internal/protocol"
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"
)

// Reader reads packets from a pcap file.
type Reader struct {
	file   *os.File
	source *pcapgo.Reader
	logger *zap.Logger
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string, logger *zap.Logger) (*Reader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open pcap file: %w", err)
	}
	source, err := pcapgo.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read pcap header: %w", err)
	}
	return &Reader{file: f, source: source, logger: logger}, nil
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// ReadPackets parses every packet in the file and sends the raw records to
// out. Frames that are not IP are skipped. It closes the channel when done.
func (r *Reader) ReadPackets(out chan<- model.RawPacket) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.source, r.source.LinkType())
	for packet := range packetSource.Packets() {
		raw, err := protocol.ParsePacket(packet)
		if err != nil {
			if !errors.Is(err, protocol.ErrNotIP) {
				r.logger.Warn("failed to parse packet", zap.Error(err))
			}
			continue
		}
		out <- raw
	}
}

// ReadAll collects every parsed packet in file order.
func (r *Reader) ReadAll() []model.RawPacket {
	out := make(chan model.RawPacket, 64)
	go r.ReadPackets(out)

	var packets []model.RawPacket
	for raw := range out {
		packets = append(packets, raw)
	}
	return packets
}
