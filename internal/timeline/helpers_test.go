package timeline

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"Go2NetTimeline/internal/model"
)

// fakeStore is an in-memory BlobStore that can be told to fail.
type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	sets    int
	failGet bool
	failSet bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, false, errors.New("get failed")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *fakeStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSet {
		return errors.New("set failed")
	}
	s.sets++
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *fakeStore) setCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func newTestEngine(t *testing.T, store model.BlobStore, opts Options) *Engine {
	t.Helper()
	opts.AutoCleanup = DisableAutoCleanup()
	e := New(store, opts)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func pkt(ts float64) model.RawPacket {
	return model.RawPacket{"ts": ts, "src": "10.0.0.1", "dst": "10.0.0.2", "proto": "TCP", "length": 100}
}

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []model.Event
}

func (r *recorder) handle(ev model.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []model.EventName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventName, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Name)
	}
	return out
}

func (r *recorder) byName(name model.EventName) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Event
	for _, ev := range r.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func nanValue() float64 {
	return math.NaN()
}
