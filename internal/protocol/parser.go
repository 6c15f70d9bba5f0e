package protocol

import (
	"Go2NetTimeline/internal/model"
	"errors"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrNotIP is returned for frames without an IPv4 or IPv6 layer.
var ErrNotIP = errors.New("not an IP packet")

// ParseFrame decodes an Ethernet frame captured at ts.
func ParseFrame(data []byte, ts time.Time) (model.RawPacket, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	packet.Metadata().Timestamp = ts
	packet.Metadata().Length = len(data)
	return ParsePacket(packet)
}

// ParsePacket converts a decoded packet into the raw record ingested by the
// timeline: ts, src, dst, proto, length, sport, dport and summary.
func ParsePacket(packet gopacket.Packet) (model.RawPacket, error) {
	ts := time.Now()
	length := len(packet.Data())
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			ts = meta.Timestamp
		}
		if meta.Length > 0 {
			length = meta.Length
		}
	}

	var src, dst, proto string
	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		src, dst = ip.SrcIP.String(), ip.DstIP.String()
		proto = ipProtocolName(ip.Protocol, "IP")
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		src, dst = ip.SrcIP.String(), ip.DstIP.String()
		proto = ipProtocolName(ip.NextHeader, "IPv6")
	} else {
		return nil, ErrNotIP
	}

	var sport, dport *int
	if l := packet.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		sport, dport = intPtr(int(tcp.SrcPort)), intPtr(int(tcp.DstPort))
		proto = "TCP"
	} else if l := packet.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		sport, dport = intPtr(int(udp.SrcPort)), intPtr(int(udp.DstPort))
		proto = "UDP"
	}

	raw := model.RawPacket{
		"ts":      float64(ts.UnixNano()) / float64(time.Second),
		"src":     src,
		"dst":     dst,
		"proto":   proto,
		"length":  length,
		"summary": Summary(src, dst, proto, sport, dport, length),
	}
	if sport != nil {
		raw["sport"] = *sport
		raw["dport"] = *dport
	}
	return raw, nil
}

// Summary renders the one-line description shown for a packet.
func Summary(src, dst, proto string, sport, dport *int, length int) string {
	if sport != nil && dport != nil && *sport != 0 && *dport != 0 {
		return fmt.Sprintf("%s %s:%d -> %s:%d len=%d", proto, src, *sport, dst, *dport, length)
	}
	return fmt.Sprintf("%s %s -> %s len=%d", proto, src, dst, length)
}

func ipProtocolName(p layers.IPProtocol, family string) string {
	switch p {
	case layers.IPProtocolTCP:
		return "TCP"
	case layers.IPProtocolUDP:
		return "UDP"
	case layers.IPProtocolICMPv4:
		return "ICMP"
	case layers.IPProtocolICMPv6:
		return "ICMPv6"
	default:
		return fmt.Sprintf("%s(%d)", family, uint8(p))
	}
}

func intPtr(v int) *int {
	return &v
}
