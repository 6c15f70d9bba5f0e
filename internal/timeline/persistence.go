package timeline

import (
	"Go2NetTimeline/internal/model"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// entry encodes as a two-element JSON array: [timestamp, value].
type entry[T any] struct {
	Timestamp float64
	Value     T
}

func (e entry[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Timestamp, e.Value})
}

func (e *entry[T]) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [timestamp, value] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Timestamp); err != nil {
		return fmt.Errorf("failed to decode entry timestamp: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Value); err != nil {
		return fmt.Errorf("failed to decode entry value: %w", err)
	}
	return nil
}

type persistedStats struct {
	TotalPackets int64 `json:"totalPackets"`
	AnomalyCount int64 `json:"anomalyCount"`
}

// persistedState is the blob written under the storage key.
type persistedState struct {
	Bookmarks      []entry[model.Bookmark] `json:"bookmarks"`
	Markers        []entry[model.Marker]   `json:"markers"`
	Stats          persistedStats          `json:"stats"`
	TimelineBounds model.TimelineBounds    `json:"timelineBounds"`
	SavedAt        int64                   `json:"savedAt"`
}

// snapshotStateLocked captures the durable subset of the engine. e.mu must be held.
func (e *Engine) snapshotStateLocked() persistedState {
	state := persistedState{
		Bookmarks: make([]entry[model.Bookmark], 0, len(e.annotations.bookmarks)),
		Markers:   make([]entry[model.Marker], 0, len(e.annotations.markers)),
		Stats: persistedStats{
			TotalPackets: e.stats.totalPackets,
			AnomalyCount: e.stats.anomalyCount,
		},
		TimelineBounds: copyBounds(e.bounds),
		SavedAt:        e.opts.Clock().UnixMilli(),
	}
	for ts, b := range e.annotations.bookmarks {
		state.Bookmarks = append(state.Bookmarks, entry[model.Bookmark]{Timestamp: ts, Value: b})
	}
	for ts, m := range e.annotations.markers {
		state.Markers = append(state.Markers, entry[model.Marker]{Timestamp: ts, Value: m})
	}
	sort.Slice(state.Bookmarks, func(i, j int) bool { return state.Bookmarks[i].Timestamp < state.Bookmarks[j].Timestamp })
	sort.Slice(state.Markers, func(i, j int) bool { return state.Markers[i].Timestamp < state.Markers[j].Timestamp })
	return state
}

// persistLocked snapshots the durable state and writes it once e.mu is released.
// The returned function must be called after unlocking. Writes are serialized
// in snapshot order.
func (e *Engine) persistLocked() (flush func()) {
	state := e.snapshotStateLocked()
	e.saveMu.Lock()
	return func() {
		defer e.saveMu.Unlock()
		e.save(state)
	}
}

func (e *Engine) save(state persistedState) {
	if e.store == nil {
		return
	}
	data, err := json.Marshal(state)
	if err != nil {
		e.metrics.PersistFailed("encode")
		e.logger.Warn("failed to encode timeline state", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
	defer cancel()
	if err := e.store.Set(ctx, e.opts.StorageKey, data); err != nil {
		e.metrics.PersistFailed("save")
		e.logger.Warn("failed to save timeline state",
			zap.String("key", e.opts.StorageKey), zap.Error(err))
	}
}

// load restores the durable state. Missing or corrupt data leaves the defaults.
func (e *Engine) load() {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), e.opts.PersistTimeout)
	defer cancel()

	data, ok, err := e.store.Get(ctx, e.opts.StorageKey)
	if err != nil {
		e.metrics.PersistFailed("load")
		e.logger.Warn("failed to load timeline state, starting empty",
			zap.String("key", e.opts.StorageKey), zap.Error(err))
		return
	}
	if !ok || len(data) == 0 {
		return
	}

	var state persistedState
	if err := json.Unmarshal(data, &state); err != nil {
		e.metrics.PersistFailed("decode")
		e.logger.Warn("stored timeline state is corrupt, starting empty",
			zap.String("key", e.opts.StorageKey), zap.Error(err))
		return
	}

	for _, b := range state.Bookmarks {
		b.Value.Timestamp = b.Timestamp
		e.annotations.putBookmark(b.Value)
		e.segments.attachBookmark(b.Timestamp)
	}
	for _, m := range state.Markers {
		m.Value.Timestamp = m.Timestamp
		e.annotations.putMarker(m.Value)
		e.segments.attachMarker(m.Timestamp)
	}
	e.stats.totalPackets = state.Stats.TotalPackets
	e.stats.anomalyCount = state.Stats.AnomalyCount
	e.bounds = copyBounds(state.TimelineBounds)

	e.logger.Info("restored timeline state",
		zap.Int("bookmarks", len(state.Bookmarks)),
		zap.Int("markers", len(state.Markers)),
		zap.Int64("total_packets", state.Stats.TotalPackets))
}

func copyBounds(b model.TimelineBounds) model.TimelineBounds {
	return model.TimelineBounds{
		StartTime:   copyFloat(b.StartTime),
		EndTime:     copyFloat(b.EndTime),
		CurrentTime: copyFloat(b.CurrentTime),
	}
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
