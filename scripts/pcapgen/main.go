package main

import (
	"flag"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapgen writes a synthetic capture for `ns-timeline replay`: a steady
// background rate with an optional burst second that trips the anomaly detector.
func main() {
	outputFile := flag.String("o", "timeline.pcap", "Output pcap file path")
	seconds := flag.Int("s", 60, "Capture length in seconds")
	rate := flag.Int("r", 5, "Background packets per second")
	burstAt := flag.Int("burst-at", 45, "Second of the traffic burst (negative disables it)")
	burstSize := flag.Int("burst-size", 200, "Packets in the burst second")
	start := flag.Int64("start", time.Now().Add(-time.Hour).Unix(), "Epoch second of the first packet")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		log.Fatalf("Failed to create output file: %v", err)
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		log.Fatalf("Failed to write pcap header: %v", err)
	}

	rng := rand.New(rand.NewSource(*start))
	total := 0
	for sec := 0; sec < *seconds; sec++ {
		n := *rate
		if sec == *burstAt {
			n = *burstSize
		}
		base := time.Unix(*start+int64(sec), 0)
		for i := 0; i < n; i++ {
			ts := base.Add(time.Duration(i) * time.Second / time.Duration(n))
			data, err := randomFrame(rng)
			if err != nil {
				log.Fatalf("Failed to serialize packet: %v", err)
			}
			ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
			if err := w.WritePacket(ci, data); err != nil {
				log.Fatalf("Failed to write packet: %v", err)
			}
			total++
		}
	}
	log.Printf("Wrote %d packets over %d seconds to %s", total, *seconds, *outputFile)
}

func randomFrame(rng *rand.Rand) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		TTL:     64,
		SrcIP:   net.IP{10, 0, byte(rng.Intn(4)), byte(rng.Intn(254) + 1)},
		DstIP:   net.IP{10, 1, 0, byte(rng.Intn(8) + 1)},
	}
	payload := make([]byte, rng.Intn(1200)+20)
	rng.Read(payload)

	var transport gopacket.SerializableLayer
	if rng.Intn(3) == 0 {
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{SrcPort: layers.UDPPort(rng.Intn(64511) + 1024), DstPort: 53}
		if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		transport = udp
	} else {
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(rng.Intn(64511) + 1024),
			DstPort: []layers.TCPPort{80, 443, 22}[rng.Intn(3)],
			Seq:     rng.Uint32(),
			ACK:     true,
			PSH:     true,
			Window:  14600,
		}
		if err := tcp.SetNetworkLayerForChecksum(ip); err != nil {
			return nil, err
		}
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, transport, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
