package timeline

import (
	"Go2NetTimeline/internal/model"
	"math"
)

// SortOrder selects the timestamp order of range results.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// QueryOptions tunes GetPacketsInRange.
type QueryOptions struct {
	MaxResults      int
	Order           SortOrder
	IncludeMetadata bool
}

// PacketMeta describes where a packet sits on the timeline.
type PacketMeta struct {
	SegmentID   int64 `json:"segmentId"`
	HasAnomaly  bool  `json:"hasAnomaly"`
	HasBookmark bool  `json:"hasBookmark"`
	HasMarker   bool  `json:"hasMarker"`
}

// PacketView is a packet returned by a query, optionally with its metadata.
type PacketView struct {
	model.PacketRecord
	Metadata *PacketMeta `json:"metadata,omitempty"`
}

// GetPacketsInRange returns at most opts.MaxResults packets with
// start <= timestamp <= end. Ascending order yields the earliest matches,
// descending order the latest.
func (e *Engine) GetPacketsInRange(start, end float64, opts QueryOptions) []PacketView {
	start, errStart := NormalizeTimestamp(start)
	end, errEnd := NormalizeTimestamp(end)
	if errStart != nil || errEnd != nil || start > end {
		return []PacketView{}
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = e.opts.DefaultMaxResults
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]PacketView, 0)
	visit := func(p *model.PacketRecord) bool {
		if p.Timestamp < start || p.Timestamp > end {
			return false
		}
		out = append(out, e.viewLocked(p, opts.IncludeMetadata))
		return len(out) < limit
	}
	if opts.Order == Descending {
		e.packets.DescendLessOrEqual(&model.PacketRecord{Timestamp: end, Seq: math.MaxUint64}, visit)
	} else {
		e.packets.AscendGreaterOrEqual(&model.PacketRecord{Timestamp: start}, visit)
	}
	return out
}

// GetPacketAtTime returns the packet stored at exactly ts. When several packets
// share the instant, the earliest ingested one is returned.
func (e *Engine) GetPacketAtTime(ts float64) (model.PacketRecord, bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.PacketRecord{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var found *model.PacketRecord
	e.packets.AscendGreaterOrEqual(&model.PacketRecord{Timestamp: ts}, func(p *model.PacketRecord) bool {
		if p.Timestamp == ts {
			found = p
		}
		return false
	})
	if found == nil {
		return model.PacketRecord{}, false
	}
	return *found, true
}

// GetNearestPacket returns the packet closest to ts within tolerance seconds.
// A non-positive tolerance uses the configured default. Ties go to the earlier packet.
func (e *Engine) GetNearestPacket(ts, tolerance float64) (model.PacketRecord, bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.PacketRecord{}, false
	}
	if tolerance <= 0 || math.IsNaN(tolerance) {
		tolerance = e.opts.NearestTolerance
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// Seq 0 is never assigned, so the pivot sits just before every packet at ts:
	// before is strictly earlier, after is the earliest-ingested packet at or after ts.
	pivot := &model.PacketRecord{Timestamp: ts, Seq: 0}
	var before, after *model.PacketRecord
	e.packets.DescendLessOrEqual(pivot, func(p *model.PacketRecord) bool {
		before = p
		return false
	})
	if before != nil {
		// Walk back to the earliest-ingested packet sharing that instant.
		e.packets.AscendGreaterOrEqual(&model.PacketRecord{Timestamp: before.Timestamp}, func(p *model.PacketRecord) bool {
			before = p
			return false
		})
	}
	e.packets.AscendGreaterOrEqual(pivot, func(p *model.PacketRecord) bool {
		after = p
		return false
	})

	var best *model.PacketRecord
	bestDiff := math.Inf(1)
	for _, p := range []*model.PacketRecord{before, after} {
		if p == nil {
			continue
		}
		if d := math.Abs(p.Timestamp - ts); d <= tolerance && d < bestDiff {
			best, bestDiff = p, d
		}
	}
	if best == nil {
		return model.PacketRecord{}, false
	}
	return *best, true
}

// PacketCount returns the number of buffered packets.
func (e *Engine) PacketCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.packets.Len()
}

// Bounds returns the current timeline bounds.
func (e *Engine) Bounds() model.TimelineBounds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyBounds(e.bounds)
}

// Statistics returns a copy of the rolling statistics.
func (e *Engine) Statistics() model.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.snapshot()
}

// Segments returns the segments intersecting [start, end], ordered by id.
func (e *Engine) Segments(start, end float64) []model.Segment {
	start, errStart := NormalizeTimestamp(start)
	end, errEnd := NormalizeTimestamp(end)
	if errStart != nil || errEnd != nil {
		return []model.Segment{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.segments.overlapping(start, end)
}

// SegmentAt returns the segment owning ts, if it exists.
func (e *Engine) SegmentAt(ts float64) (model.Segment, bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.Segment{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.segments.get(ts)
	if !ok {
		return model.Segment{}, false
	}
	return s.snapshot(), true
}

// SegmentID returns the id of the segment that owns ts.
func (e *Engine) SegmentID(ts float64) int64 {
	return e.segments.idFor(ts)
}

// Anomalies returns the anomalies with start <= timestamp <= end, ordered by timestamp.
func (e *Engine) Anomalies(start, end float64) []model.Anomaly {
	start, errStart := NormalizeTimestamp(start)
	end, errEnd := NormalizeTimestamp(end)
	if errStart != nil || errEnd != nil {
		return []model.Anomaly{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.anomaliesInLocked(start, end)
}

func (e *Engine) anomaliesInLocked(start, end float64) []model.Anomaly {
	return e.detector.between(start, end)
}

func (e *Engine) viewLocked(p *model.PacketRecord, withMeta bool) PacketView {
	v := PacketView{PacketRecord: *p}
	if withMeta {
		hasAnomaly := e.detector.hasAnomalyAt(p.Timestamp)
		_, hasBookmark := e.annotations.bookmarks[p.Timestamp]
		_, hasMarker := e.annotations.markers[p.Timestamp]
		v.Metadata = &PacketMeta{
			SegmentID:   e.segments.idFor(p.Timestamp),
			HasAnomaly:  hasAnomaly,
			HasBookmark: hasBookmark,
			HasMarker:   hasMarker,
		}
	}
	return v
}
