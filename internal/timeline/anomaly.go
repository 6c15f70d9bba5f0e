package timeline

import (
	"Go2NetTimeline/internal/model"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	minAnomalyThreshold = 1.0
	maxAnomalyThreshold = 10.0
	maxAnomalyCooldown  = 300 * time.Second
)

// SpikeScore computes the z-score of the newest entry of counts against the
// mean and population standard deviation of all entries. ok is false when
// there are fewer than the minimum samples needed for a baseline.
func SpikeScore(counts []int) (z, mean float64, ok bool) {
	if len(counts) < anomalyMinSamples {
		return 0, 0, false
	}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	mean = sum / float64(len(counts))

	var sq float64
	for _, c := range counts {
		d := float64(c) - mean
		sq += d * d
	}
	stdDev := math.Sqrt(sq / float64(len(counts)))

	// Zero variance is no signal.
	if stdDev == 0 {
		return 0, mean, true
	}
	current := float64(counts[len(counts)-1])
	return math.Abs(current-mean) / stdDev, mean, true
}

// anomalyKey identifies an anomaly by the packet that raised it, so that
// packets sharing an instant keep separate anomalies.
type anomalyKey struct {
	ts  float64
	seq uint64
}

// anomalyDetector flags bursts in the packets-per-second series.
type anomalyDetector struct {
	threshold   float64
	cooldown    float64 // seconds of packet time, 0 disables
	lastRaised  float64
	hasLastSeen bool
	anomalies   map[anomalyKey]model.Anomaly
	instants    map[float64]int // anomalies per timestamp
}

func newAnomalyDetector(threshold, cooldownSeconds float64) *anomalyDetector {
	return &anomalyDetector{
		threshold: threshold,
		cooldown:  cooldownSeconds,
		anomalies: make(map[anomalyKey]model.Anomaly),
		instants:  make(map[float64]int),
	}
}

// hasAnomalyAt reports whether any anomaly was raised at exactly ts.
func (ad *anomalyDetector) hasAnomalyAt(ts float64) bool {
	return ad.instants[ts] > 0
}

// between returns the anomalies with start <= timestamp <= end in
// (timestamp, ingestion) order.
func (ad *anomalyDetector) between(start, end float64) []model.Anomaly {
	keys := make([]anomalyKey, 0)
	for k := range ad.anomalies {
		if k.ts >= start && k.ts <= end {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ts != keys[j].ts {
			return keys[i].ts < keys[j].ts
		}
		return keys[i].seq < keys[j].seq
	})
	out := make([]model.Anomaly, 0, len(keys))
	for _, k := range keys {
		out = append(out, ad.anomalies[k])
	}
	return out
}

// check evaluates the newest series window after p was recorded and returns
// the raised anomaly, if any.
func (ad *anomalyDetector) check(p *model.PacketRecord, stats *statsAggregator) (model.Anomaly, bool) {
	counts := stats.recentCounts(anomalyWindow)
	z, mean, ok := SpikeScore(counts)
	if !ok || z <= ad.threshold {
		return model.Anomaly{}, false
	}
	if ad.cooldown > 0 && ad.hasLastSeen && math.Abs(p.Timestamp-ad.lastRaised) < ad.cooldown {
		return model.Anomaly{}, false
	}

	severity := model.SeverityMedium
	if z > highSeverityZScore {
		severity = model.SeverityHigh
	}
	a := model.Anomaly{
		Timestamp:        p.Timestamp,
		Kind:             model.AnomalyKindTrafficSpike,
		Severity:         severity,
		ZScore:           z,
		ObservedRate:     counts[len(counts)-1],
		BaselineMeanRate: mean,
		SourcePacketID:   p.ID,
	}
	ad.anomalies[anomalyKey{ts: p.Timestamp, seq: p.Seq}] = a
	ad.instants[p.Timestamp]++
	ad.lastRaised = p.Timestamp
	ad.hasLastSeen = true
	return a, true
}

// dropBefore removes anomalies older than horizon. It returns how many were
// removed and the distinct timestamps that no longer carry an anomaly.
func (ad *anomalyDetector) dropBefore(horizon float64) (removed int, cleared []float64) {
	for k := range ad.anomalies {
		if k.ts < horizon {
			delete(ad.anomalies, k)
			removed++
			ad.instants[k.ts]--
			if ad.instants[k.ts] == 0 {
				delete(ad.instants, k.ts)
				cleared = append(cleared, k.ts)
			}
		}
	}
	return removed, cleared
}

func (ad *anomalyDetector) reset() {
	ad.anomalies = make(map[anomalyKey]model.Anomaly)
	ad.instants = make(map[float64]int)
	ad.hasLastSeen = false
	ad.lastRaised = 0
}

// WindowSummary describes the packet counts of the detector window.
type WindowSummary struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	StdDev float64 `json:"stdDev"`
}

// DetectorStats is a snapshot of the anomaly detector.
type DetectorStats struct {
	WindowSize      int            `json:"windowSize"`
	MaxWindowSize   int            `json:"maxWindowSize"`
	MinSamples      int            `json:"minSamples"`
	CurrentRate     int            `json:"currentPacketsPerSecond"`
	Threshold       float64        `json:"threshold"`
	CooldownSeconds float64        `json:"cooldownSeconds"`
	LastAlertTime   *float64       `json:"lastAlertTime"`
	Window          *WindowSummary `json:"window,omitempty"`
}

func (ad *anomalyDetector) snapshot(stats *statsAggregator) DetectorStats {
	counts := stats.recentCounts(anomalyWindow)
	ds := DetectorStats{
		WindowSize:      len(counts),
		MaxWindowSize:   anomalyWindow,
		MinSamples:      anomalyMinSamples,
		Threshold:       ad.threshold,
		CooldownSeconds: ad.cooldown,
	}
	if ad.hasLastSeen {
		ds.LastAlertTime = float64Ptr(ad.lastRaised)
	}
	if len(counts) == 0 {
		return ds
	}
	ds.CurrentRate = counts[len(counts)-1]

	sorted := append([]int(nil), counts...)
	sort.Ints(sorted)
	w := &WindowSummary{Min: sorted[0], Max: sorted[len(sorted)-1]}
	var sum float64
	for _, c := range counts {
		sum += float64(c)
	}
	w.Mean = sum / float64(len(counts))
	var sq float64
	for _, c := range counts {
		d := float64(c) - w.Mean
		sq += d * d
	}
	w.StdDev = math.Sqrt(sq / float64(len(counts)))
	if mid := len(sorted) / 2; len(sorted)%2 == 1 {
		w.Median = float64(sorted[mid])
	} else {
		w.Median = float64(sorted[mid-1]+sorted[mid]) / 2
	}
	ds.Window = w
	return ds
}

func validateAnomalyConfig(threshold float64, cooldown time.Duration) error {
	if math.IsNaN(threshold) || threshold < minAnomalyThreshold || threshold > maxAnomalyThreshold {
		return fmt.Errorf("%w: threshold must be between %.1f and %.1f, got %v",
			ErrInvalidAnomalyConfig, minAnomalyThreshold, maxAnomalyThreshold, threshold)
	}
	if cooldown < 0 || cooldown > maxAnomalyCooldown {
		return fmt.Errorf("%w: cooldown must be between 0s and %s, got %s",
			ErrInvalidAnomalyConfig, maxAnomalyCooldown, cooldown)
	}
	return nil
}

// DetectorStats returns the detector window summary and its current settings.
func (e *Engine) DetectorStats() DetectorStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.detector.snapshot(e.stats)
}

// SetAnomalyConfig changes the spike threshold and cooldown at runtime and
// emits anomalyConfigChanged. Out-of-range values fail with
// ErrInvalidAnomalyConfig and leave the detector unchanged.
func (e *Engine) SetAnomalyConfig(threshold float64, cooldown time.Duration) (model.AnomalyConfig, error) {
	if err := validateAnomalyConfig(threshold, cooldown); err != nil {
		return model.AnomalyConfig{}, err
	}
	cfg := model.AnomalyConfig{Threshold: threshold, CooldownSeconds: cooldown.Seconds()}

	e.mu.Lock()
	e.detector.threshold = threshold
	e.detector.cooldown = cfg.CooldownSeconds
	ev := e.event(model.EventAnomalyConfigChanged, cfg)
	e.mu.Unlock()

	e.logger.Info("anomaly detection config updated",
		zap.Float64("threshold", threshold),
		zap.Duration("cooldown", cooldown))
	e.dispatch([]model.Event{ev})
	return cfg, nil
}
