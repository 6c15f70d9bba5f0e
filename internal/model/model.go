package model

import (
	"sort"
	"time"
)

// RawPacket is a packet as delivered by an external source. It must carry a
// numeric "ts" (or "timestamp") field; every other key is optional and
// passes through the engine untouched.
type RawPacket map[string]interface{}

// PacketRecord is a normalized packet held by the timeline engine.
type PacketRecord struct {
	ID          string                 `json:"id"`
	Seq         uint64                 `json:"seq"`
	Timestamp   float64                `json:"timestamp"`
	Source      string                 `json:"src,omitempty"`
	Destination string                 `json:"dst,omitempty"`
	Protocol    string                 `json:"proto,omitempty"`
	Size        int                    `json:"length"`
	SrcPort     *int                   `json:"sport,omitempty"`
	DstPort     *int                   `json:"dport,omitempty"`
	Summary     string                 `json:"summary,omitempty"`
	Fields      map[string]interface{} `json:"fields,omitempty"`
}

// Segment is a fixed-duration bucket of the timeline.
type Segment struct {
	ID           int64     `json:"id"`
	StartTime    float64   `json:"startTime"`
	EndTime      float64   `json:"endTime"`
	PacketCount  int       `json:"packetCount"`
	TotalBytes   int64     `json:"totalBytes"`
	Protocols    []string  `json:"protocols"`
	AnomalyRefs  []float64 `json:"anomalies"`
	BookmarkRefs []float64 `json:"bookmarks"`
	MarkerRefs   []float64 `json:"markers"`
}

// HasProtocol reports whether a packet with the given protocol was counted in the segment.
func (s *Segment) HasProtocol(proto string) bool {
	i := sort.SearchStrings(s.Protocols, proto)
	return i < len(s.Protocols) && s.Protocols[i] == proto
}

// Severity grades an anomaly.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// AnomalyKindTrafficSpike is the only anomaly kind raised today.
const AnomalyKindTrafficSpike = "traffic_spike"

// Anomaly is an unusual burst in the packet-rate series.
type Anomaly struct {
	Timestamp        float64  `json:"timestamp"`
	Kind             string   `json:"type"`
	Severity         Severity `json:"severity"`
	ZScore           float64  `json:"zScore"`
	ObservedRate     int      `json:"packetRate"`
	BaselineMeanRate float64  `json:"averageRate"`
	SourcePacketID   string   `json:"packetId"`
}

// Bookmark is a user-authored point-in-time annotation.
type Bookmark struct {
	ID          string    `json:"id"`
	Timestamp   float64   `json:"timestamp"`
	Label       string    `json:"label"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Marker is a system-authored point-in-time annotation, e.g. a correlated alert.
type Marker struct {
	ID        string                 `json:"id"`
	Timestamp float64                `json:"timestamp"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// TimelineBounds holds the earliest, latest and most recent timestamps
// represented in the buffered data. Nil fields are unset.
type TimelineBounds struct {
	StartTime   *float64 `json:"startTime"`
	EndTime     *float64 `json:"endTime"`
	CurrentTime *float64 `json:"currentTime"`
}

// RatePoint is one entry of the packets-per-second series.
type RatePoint struct {
	Second int64 `json:"timestamp"`
	Count  int   `json:"count"`
}

// SizeSample is one (timestamp, size) pair of the size distribution sample.
type SizeSample struct {
	Timestamp float64 `json:"timestamp"`
	Size      int     `json:"size"`
}

// Statistics is a point-in-time copy of the rolling aggregates.
type Statistics struct {
	TotalPackets         int64          `json:"totalPackets"`
	AnomalyCount         int64          `json:"anomalyCount"`
	PacketsPerSecond     []RatePoint    `json:"packetsPerSecond"`
	ProtocolDistribution map[string]int `json:"protocolDistribution"`
	SizeSamples          []SizeSample   `json:"sizeDistribution"`
}
