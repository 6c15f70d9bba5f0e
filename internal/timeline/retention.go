package timeline

import (
	"Go2NetTimeline/internal/model"
	"time"

	"go.uber.org/zap"
)

// enforceBufferLocked evicts the oldest packets until the buffer holds at most
// MaxBufferSize of them. e.mu must be held.
func (e *Engine) enforceBufferLocked() []model.Event {
	excess := e.packets.Len() - e.opts.MaxBufferSize
	if excess <= 0 {
		e.metrics.Buffered(e.packets.Len())
		return nil
	}

	evicted := make([]model.PacketRecord, 0, excess)
	for i := 0; i < excess; i++ {
		p, ok := e.packets.DeleteMin()
		if !ok {
			break
		}
		evicted = append(evicted, *p)
	}

	if oldest, ok := e.packets.Min(); ok {
		e.bounds.StartTime = float64Ptr(oldest.Timestamp)
	} else {
		e.bounds.StartTime = nil
	}

	remaining := e.packets.Len()
	e.metrics.Evicted(len(evicted))
	e.metrics.Buffered(remaining)
	e.logger.Debug("buffer cleaned",
		zap.Int("removed", len(evicted)),
		zap.Int("remaining", remaining))

	return []model.Event{e.event(model.EventBufferCleaned, model.BufferCleaned{
		Removed:   len(evicted),
		Remaining: remaining,
		Evicted:   evicted,
	})}
}

// CleanupResult reports what a retention pass removed.
type CleanupResult struct {
	Segments   int
	Anomalies  int
	RatePoints int
}

// Cleanup purges segments, anomalies and per-second entries older than the
// retention horizon, then persists. Buffered packets are not touched.
func (e *Engine) Cleanup() CleanupResult {
	e.mu.Lock()
	now := e.opts.Clock()
	horizon := float64(now.Add(-e.opts.Retention).UnixNano()) / float64(time.Second)

	var res CleanupResult
	res.Segments = e.segments.dropEndingBefore(horizon)
	removed, cleared := e.detector.dropBefore(horizon)
	for _, ts := range cleared {
		e.segments.detachAnomaly(ts)
	}
	res.Anomalies = removed
	res.RatePoints = e.stats.trimRateBefore(horizon)
	flush := e.persistLocked()
	e.mu.Unlock()

	flush()
	e.metrics.Cleanup()
	e.logger.Debug("retention cleanup finished",
		zap.Int("segments", res.Segments),
		zap.Int("anomalies", res.Anomalies),
		zap.Int("rate_points", res.RatePoints))
	return res
}

// runCleanup drives Cleanup on a ticker until Close.
func (e *Engine) runCleanup() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Cleanup()
		case <-e.stopCh:
			return
		}
	}
}
