package timeline

import (
	"Go2NetTimeline/internal/model"
	"math"
	"sort"
)

// segment is the mutable form of model.Segment owned by the index.
type segment struct {
	id          int64
	startTime   float64
	endTime     float64
	packetCount int
	totalBytes  int64
	protocols   map[string]struct{}
	anomalies   []float64
	bookmarks   []float64
	markers     []float64
}

// segmentIndex partitions the timeline into fixed-duration buckets.
type segmentIndex struct {
	duration float64 // seconds
	segments map[int64]*segment
}

func newSegmentIndex(durationSeconds float64) *segmentIndex {
	return &segmentIndex{
		duration: durationSeconds,
		segments: make(map[int64]*segment),
	}
}

// idFor returns the id of the segment owning ts.
func (si *segmentIndex) idFor(ts float64) int64 {
	return int64(math.Floor(ts / si.duration))
}

// inRange reports whether the segment id of ts fits in an int64.
func (si *segmentIndex) inRange(ts float64) bool {
	q := math.Floor(ts / si.duration)
	return q >= math.MinInt64 && q < math.MaxInt64
}

func (si *segmentIndex) get(ts float64) (*segment, bool) {
	s, ok := si.segments[si.idFor(ts)]
	return s, ok
}

func (si *segmentIndex) getOrCreate(ts float64) *segment {
	id := si.idFor(ts)
	if s, ok := si.segments[id]; ok {
		return s
	}
	start := float64(id) * si.duration
	s := &segment{
		id:        id,
		startTime: start,
		endTime:   start + si.duration,
		protocols: make(map[string]struct{}),
	}
	si.segments[id] = s
	return s
}

// addPacket counts a packet in its owning segment.
func (si *segmentIndex) addPacket(p *model.PacketRecord) *segment {
	s := si.getOrCreate(p.Timestamp)
	s.packetCount++
	s.totalBytes += int64(p.Size)
	if p.Protocol != "" {
		s.protocols[p.Protocol] = struct{}{}
	}
	return s
}

func (si *segmentIndex) attachAnomaly(ts float64) {
	s := si.getOrCreate(ts)
	s.anomalies = appendUnique(s.anomalies, ts)
}

func (si *segmentIndex) attachBookmark(ts float64) {
	s := si.getOrCreate(ts)
	s.bookmarks = appendUnique(s.bookmarks, ts)
}

func (si *segmentIndex) detachBookmark(ts float64) {
	if s, ok := si.get(ts); ok {
		s.bookmarks = removeValue(s.bookmarks, ts)
	}
}

func (si *segmentIndex) attachMarker(ts float64) {
	s := si.getOrCreate(ts)
	s.markers = appendUnique(s.markers, ts)
}

func (si *segmentIndex) detachMarker(ts float64) {
	if s, ok := si.get(ts); ok {
		s.markers = removeValue(s.markers, ts)
	}
}

func (si *segmentIndex) detachAnomaly(ts float64) {
	if s, ok := si.get(ts); ok {
		s.anomalies = removeValue(s.anomalies, ts)
	}
}

// dropEndingBefore removes every segment whose end time is older than horizon
// and returns how many were removed.
func (si *segmentIndex) dropEndingBefore(horizon float64) int {
	removed := 0
	for id, s := range si.segments {
		if s.endTime < horizon {
			delete(si.segments, id)
			removed++
		}
	}
	return removed
}

// overlapping returns copies of the segments intersecting [start, end], ordered by id.
func (si *segmentIndex) overlapping(start, end float64) []model.Segment {
	out := make([]model.Segment, 0)
	for _, s := range si.segments {
		if s.endTime > start && s.startTime <= end {
			out = append(out, s.snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (si *segmentIndex) len() int {
	return len(si.segments)
}

func (si *segmentIndex) reset() {
	si.segments = make(map[int64]*segment)
}

func (s *segment) snapshot() model.Segment {
	protocols := make([]string, 0, len(s.protocols))
	for p := range s.protocols {
		protocols = append(protocols, p)
	}
	sort.Strings(protocols)
	return model.Segment{
		ID:           s.id,
		StartTime:    s.startTime,
		EndTime:      s.endTime,
		PacketCount:  s.packetCount,
		TotalBytes:   s.totalBytes,
		Protocols:    protocols,
		AnomalyRefs:  append([]float64{}, s.anomalies...),
		BookmarkRefs: append([]float64{}, s.bookmarks...),
		MarkerRefs:   append([]float64{}, s.markers...),
	}
}

func appendUnique(values []float64, v float64) []float64 {
	for _, existing := range values {
		if existing == v {
			return values
		}
	}
	return append(values, v)
}

func removeValue(values []float64, v float64) []float64 {
	out := values[:0]
	for _, existing := range values {
		if existing != v {
			out = append(out, existing)
		}
	}
	return out
}
