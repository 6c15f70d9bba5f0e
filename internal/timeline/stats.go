package timeline

import (
	"Go2NetTimeline/internal/model"
	"math"
)

// statsAggregator keeps the rolling counters. All updates are append-only;
// nothing is recomputed retroactively.
type statsAggregator struct {
	totalPackets int64
	anomalyCount int64
	rate         []model.RatePoint
	protocols    map[string]int
	sizes        []model.SizeSample
}

func newStatsAggregator() *statsAggregator {
	return &statsAggregator{protocols: make(map[string]int)}
}

func (sa *statsAggregator) record(p *model.PacketRecord) {
	sa.totalPackets++

	second := int64(math.Floor(p.Timestamp))
	found := false
	// One entry per distinct second, late packets included.
	for i := len(sa.rate) - 1; i >= 0; i-- {
		if sa.rate[i].Second == second {
			sa.rate[i].Count++
			found = true
			break
		}
	}
	if !found {
		sa.rate = append(sa.rate, model.RatePoint{Second: second, Count: 1})
		if len(sa.rate) > rateSeriesCap {
			sa.rate = sa.rate[len(sa.rate)-rateSeriesCap:]
		}
	}

	sa.protocols[p.Protocol]++

	sa.sizes = append(sa.sizes, model.SizeSample{Timestamp: p.Timestamp, Size: p.Size})
	if len(sa.sizes) > sizeSampleCap {
		sa.sizes = sa.sizes[len(sa.sizes)-sizeSampleCap:]
	}
}

// recentCounts returns the packet counts of the last n series entries, oldest first.
func (sa *statsAggregator) recentCounts(n int) []int {
	start := len(sa.rate) - n
	if start < 0 {
		start = 0
	}
	counts := make([]int, 0, len(sa.rate)-start)
	for _, point := range sa.rate[start:] {
		counts = append(counts, point.Count)
	}
	return counts
}

// trimRateBefore keeps only series entries newer than horizon.
func (sa *statsAggregator) trimRateBefore(horizon float64) int {
	kept := sa.rate[:0]
	removed := 0
	for _, point := range sa.rate {
		if float64(point.Second) > horizon {
			kept = append(kept, point)
		} else {
			removed++
		}
	}
	sa.rate = kept
	return removed
}

func (sa *statsAggregator) snapshot() model.Statistics {
	protocols := make(map[string]int, len(sa.protocols))
	for k, v := range sa.protocols {
		protocols[k] = v
	}
	return model.Statistics{
		TotalPackets:         sa.totalPackets,
		AnomalyCount:         sa.anomalyCount,
		PacketsPerSecond:     append([]model.RatePoint{}, sa.rate...),
		ProtocolDistribution: protocols,
		SizeSamples:          append([]model.SizeSample{}, sa.sizes...),
	}
}

func (sa *statsAggregator) reset() {
	*sa = *newStatsAggregator()
}
