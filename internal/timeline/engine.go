package timeline

import (
	"Go2NetTimeline/internal/metrics"
	"Go2NetTimeline/internal/model"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const btreeDegree = 32

// Engine is the packet timeline. It ingests packets, indexes them into
// segments, keeps rolling statistics, detects rate anomalies and holds
// annotations. All public methods are safe for concurrent use; events are
// dispatched after the engine lock is released.
type Engine struct {
	mu     sync.Mutex
	saveMu sync.Mutex

	opts    Options
	store   model.BlobStore
	bus     *Bus
	logger  *zap.Logger
	metrics *metrics.Metrics

	packets     *btree.BTreeG[*model.PacketRecord]
	seq         uint64
	segments    *segmentIndex
	stats       *statsAggregator
	detector    *anomalyDetector
	annotations *annotationStore
	bounds      model.TimelineBounds

	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates an engine persisting to store, which may be nil for a purely
// in-memory timeline. Previously saved state is restored before New returns.
func New(store model.BlobStore, opts Options) *Engine {
	opts = opts.withDefaults()
	e := &Engine{
		opts:        opts,
		store:       store,
		bus:         NewBus(opts.Logger),
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		packets:     btree.NewG[*model.PacketRecord](btreeDegree, packetLess),
		segments:    newSegmentIndex(opts.SegmentDuration.Seconds()),
		stats:       newStatsAggregator(),
		detector:    newAnomalyDetector(opts.AnomalyThreshold, opts.AnomalyCooldown.Seconds()),
		annotations: newAnnotationStore(),
		stopCh:      make(chan struct{}),
	}
	e.load()

	if *opts.AutoCleanup {
		e.wg.Add(1)
		go e.runCleanup()
	}
	e.logger.Info("timeline engine started",
		zap.Int("max_buffer_size", opts.MaxBufferSize),
		zap.Duration("segment_duration", opts.SegmentDuration),
		zap.Float64("anomaly_threshold", opts.AnomalyThreshold),
		zap.Bool("auto_cleanup", *opts.AutoCleanup))
	return e
}

// packetLess orders packets by timestamp, then by ingestion sequence.
func packetLess(a, b *model.PacketRecord) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp < b.Timestamp
	}
	return a.Seq < b.Seq
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *Bus {
	return e.bus
}

// Subscribe is shorthand for e.Bus().Subscribe.
func (e *Engine) Subscribe(h Handler) (unsubscribe func()) {
	return e.bus.Subscribe(h)
}

// AddPacket ingests a single packet. It fails with ErrInvalidTimestamp when the
// timestamp is missing, non-numeric or not finite; in that case nothing is changed.
func (e *Engine) AddPacket(raw model.RawPacket) (model.PacketRecord, error) {
	e.mu.Lock()
	rec, events, err := e.ingestLocked(raw)
	if err != nil {
		e.mu.Unlock()
		return model.PacketRecord{}, err
	}
	events = append([]model.Event{e.event(model.EventPacketAdded, rec)}, events...)
	events = append(events, e.enforceBufferLocked()...)
	e.mu.Unlock()

	e.dispatch(events)
	return rec, nil
}

// AddPackets ingests a batch. Each packet is processed independently; invalid
// packets are logged and skipped. A single packetsAdded event is emitted.
func (e *Engine) AddPackets(raws []model.RawPacket) model.PacketsAdded {
	var result model.PacketsAdded
	var events []model.Event

	e.mu.Lock()
	for i, raw := range raws {
		_, evs, err := e.ingestLocked(raw)
		if err != nil {
			result.Rejected++
			e.logger.Warn("skipping packet in batch", zap.Int("index", i), zap.Error(err))
			continue
		}
		result.Added++
		events = append(events, evs...)
	}
	events = append(events, e.event(model.EventPacketsAdded, result))
	events = append(events, e.enforceBufferLocked()...)
	e.mu.Unlock()

	e.dispatch(events)
	return result
}

// ingestLocked stores one packet and updates every aggregate. Validation
// happens before any mutation. e.mu must be held.
func (e *Engine) ingestLocked(raw model.RawPacket) (model.PacketRecord, []model.Event, error) {
	rec, err := recordFromRaw(raw)
	if err == nil {
		err = e.checkSegmentRange(rec.Timestamp)
	}
	if err != nil {
		e.metrics.Rejected()
		return model.PacketRecord{}, nil, err
	}
	e.seq++
	rec.Seq = e.seq
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	stored := rec
	e.packets.ReplaceOrInsert(&stored)
	e.widenBoundsLocked(rec.Timestamp)
	e.segments.addPacket(&stored)
	e.stats.record(&stored)
	e.metrics.Ingested()

	var events []model.Event
	if a, ok := e.detector.check(&stored, e.stats); ok {
		e.stats.anomalyCount++
		e.segments.attachAnomaly(a.Timestamp)
		e.metrics.Anomaly(string(a.Severity))
		e.logger.Info("traffic anomaly detected",
			zap.Float64("timestamp", a.Timestamp),
			zap.String("severity", string(a.Severity)),
			zap.Float64("z_score", a.ZScore),
			zap.Int("packet_rate", a.ObservedRate))
		events = append(events, e.event(model.EventAnomalyDetected, a))
	}
	return rec, events, nil
}

// checkSegmentRange rejects finite timestamps too large to own a segment.
func (e *Engine) checkSegmentRange(ts float64) error {
	if !e.segments.inRange(ts) {
		return fmt.Errorf("%w: %v is outside the segment range", ErrInvalidTimestamp, ts)
	}
	return nil
}

func (e *Engine) widenBoundsLocked(ts float64) {
	if e.bounds.StartTime == nil || ts < *e.bounds.StartTime {
		e.bounds.StartTime = float64Ptr(ts)
	}
	if e.bounds.EndTime == nil || ts > *e.bounds.EndTime {
		e.bounds.EndTime = float64Ptr(ts)
	}
	e.bounds.CurrentTime = float64Ptr(ts)
}

// Clear drops every packet, segment, anomaly, annotation and statistic.
func (e *Engine) Clear() {
	e.mu.Lock()
	e.packets.Clear(false)
	e.segments.reset()
	e.stats.reset()
	e.detector.reset()
	e.annotations.reset()
	e.bounds = model.TimelineBounds{}
	e.metrics.Buffered(0)
	flush := e.persistLocked()
	ev := e.event(model.EventTimelineCleared, nil)
	e.mu.Unlock()

	flush()
	e.dispatch([]model.Event{ev})
	e.logger.Info("timeline cleared")
}

// Close stops the cleanup timer and writes the durable state one last time.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.stopCh)
		e.wg.Wait()

		e.mu.Lock()
		flush := e.persistLocked()
		e.mu.Unlock()
		flush()
		e.logger.Info("timeline engine stopped")
	})
	return nil
}

func (e *Engine) event(name model.EventName, payload interface{}) model.Event {
	return model.Event{Name: name, Payload: payload, At: e.opts.Clock()}
}

func (e *Engine) dispatch(events []model.Event) {
	for _, ev := range events {
		e.bus.Publish(ev)
	}
}

func float64Ptr(v float64) *float64 {
	return &v
}
