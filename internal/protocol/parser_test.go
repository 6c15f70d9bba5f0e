package protocol

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ethernet(ethType layers.EthernetType) *layers.Ethernet {
	return &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: ethType,
	}
}

func TestParseFrameTCP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IPv4(192, 168, 1, 100), DstIP: net.IPv4(8, 8, 8, 8),
	}
	tcp := &layers.TCP{SrcPort: 51234, DstPort: 443, SYN: true}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, tcp)

	ts := time.Unix(1700000000, 500_000_000)
	raw, err := ParseFrame(data, ts)
	require.NoError(t, err)

	assert.InDelta(t, 1700000000.5, raw["ts"], 1e-6)
	assert.Equal(t, "192.168.1.100", raw["src"])
	assert.Equal(t, "8.8.8.8", raw["dst"])
	assert.Equal(t, "TCP", raw["proto"])
	assert.Equal(t, 51234, raw["sport"])
	assert.Equal(t, 443, raw["dport"])
	assert.Equal(t, len(data), raw["length"])
	assert.Equal(t, fmt.Sprintf("TCP 192.168.1.100:51234 -> 8.8.8.8:443 len=%d", len(data)), raw["summary"])
}

func TestParseFrameIPv6UDP(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::53"),
	}
	udp := &layers.UDP{SrcPort: 40000, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	data := serialize(t, ethernet(layers.EthernetTypeIPv6), ip, udp, gopacket.Payload([]byte("query")))

	raw, err := ParseFrame(data, time.Unix(10, 0))
	require.NoError(t, err)
	assert.Equal(t, "UDP", raw["proto"])
	assert.Equal(t, "2001:db8::1", raw["src"])
	assert.Equal(t, 53, raw["dport"])
}

func TestParseFrameICMP(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2),
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	data := serialize(t, ethernet(layers.EthernetTypeIPv4), ip, icmp)

	raw, err := ParseFrame(data, time.Unix(10, 0))
	require.NoError(t, err)
	assert.Equal(t, "ICMP", raw["proto"])
	assert.NotContains(t, raw, "sport")
	assert.Equal(t, fmt.Sprintf("ICMP 10.0.0.1 -> 10.0.0.2 len=%d", len(data)), raw["summary"])
}

func TestParseFrameSkipsNonIP(t *testing.T) {
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: []byte{0, 1, 2, 3, 4, 5}, SourceProtAddress: []byte{10, 0, 0, 1},
		DstHwAddress: []byte{0, 0, 0, 0, 0, 0}, DstProtAddress: []byte{10, 0, 0, 2},
	}
	data := serialize(t, ethernet(layers.EthernetTypeARP), arp)

	_, err := ParseFrame(data, time.Unix(10, 0))
	assert.ErrorIs(t, err, ErrNotIP)
}

func TestSummary(t *testing.T) {
	sport, dport := 53, 53
	assert.Equal(t, "UDP 1.1.1.1:53 -> 2.2.2.2:53 len=64", Summary("1.1.1.1", "2.2.2.2", "UDP", &sport, &dport, 64))
	assert.Equal(t, "IP(47) a -> b len=10", Summary("a", "b", "IP(47)", nil, nil, 10))
}
