package timeline

import (
	"Go2NetTimeline/internal/metrics"
	"time"

	"go.uber.org/zap"
)

const (
	defaultMaxBufferSize     = 10000
	defaultSegmentDuration   = 60 * time.Second
	defaultAnomalyThreshold  = 2.0
	defaultCleanupInterval   = 60 * time.Second
	defaultRetention         = 24 * time.Hour
	defaultStorageKey        = "timeline-data"
	defaultNearestTolerance  = 1.0
	defaultMaxResults        = 1000
	defaultPersistTimeout    = 5 * time.Second
	rateSeriesCap            = 300
	sizeSampleCap            = 1000
	anomalyWindow            = 30
	anomalyMinSamples        = 10
	highSeverityZScore       = 3.0
	millisecondScaleBoundary = 1e12
)

// Options configures an Engine. Zero values fall back to the defaults.
type Options struct {
	MaxBufferSize    int
	SegmentDuration  time.Duration
	AnomalyThreshold float64
	// AnomalyCooldown suppresses further anomalies until this much packet time
	// has passed since the previous one. Zero disables the cooldown.
	AnomalyCooldown time.Duration
	// AutoCleanup starts the periodic retention timer. Use DisableAutoCleanup
	// to turn it off, since the zero value means "default on".
	AutoCleanup       *bool
	CleanupInterval   time.Duration
	Retention         time.Duration
	StorageKey        string
	NearestTolerance  float64
	DefaultMaxResults int
	PersistTimeout    time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
	Metrics           *metrics.Metrics
}

// DisableAutoCleanup returns a pointer usable as Options.AutoCleanup.
func DisableAutoCleanup() *bool {
	off := false
	return &off
}

func (o Options) withDefaults() Options {
	if o.MaxBufferSize <= 0 {
		o.MaxBufferSize = defaultMaxBufferSize
	}
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = defaultSegmentDuration
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = defaultAnomalyThreshold
	}
	if o.AutoCleanup == nil {
		on := true
		o.AutoCleanup = &on
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = defaultCleanupInterval
	}
	if o.Retention <= 0 {
		o.Retention = defaultRetention
	}
	if o.StorageKey == "" {
		o.StorageKey = defaultStorageKey
	}
	if o.NearestTolerance <= 0 {
		o.NearestTolerance = defaultNearestTolerance
	}
	if o.DefaultMaxResults <= 0 {
		o.DefaultMaxResults = defaultMaxResults
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = defaultPersistTimeout
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}
