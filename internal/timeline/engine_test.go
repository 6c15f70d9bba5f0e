package timeline

import (
	"sync"
	"testing"
	"time"

	"Go2NetTimeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddPacketIndexesEverything(t *testing.T) {
	e := newTestEngine(t, nil, Options{SegmentDuration: 10 * time.Second})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	got, err := e.AddPacket(model.RawPacket{"ts": 25.5, "proto": "UDP", "length": 60})
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, uint64(1), got.Seq)

	assert.Equal(t, 1, e.PacketCount())
	seg, ok := e.SegmentAt(25.5)
	require.True(t, ok)
	assert.Equal(t, int64(2), seg.ID)
	assert.Equal(t, 20.0, seg.StartTime)
	assert.Equal(t, 30.0, seg.EndTime)
	assert.Equal(t, 1, seg.PacketCount)
	assert.Equal(t, int64(60), seg.TotalBytes)
	assert.True(t, seg.HasProtocol("UDP"))

	b := e.Bounds()
	require.NotNil(t, b.StartTime)
	assert.Equal(t, 25.5, *b.StartTime)
	assert.Equal(t, 25.5, *b.EndTime)
	assert.Equal(t, 25.5, *b.CurrentTime)

	stats := e.Statistics()
	assert.Equal(t, int64(1), stats.TotalPackets)
	assert.Equal(t, 1, stats.ProtocolDistribution["UDP"])
	require.Len(t, stats.PacketsPerSecond, 1)
	assert.Equal(t, model.RatePoint{Second: 25, Count: 1}, stats.PacketsPerSecond[0])
	assert.Len(t, stats.SizeSamples, 1)

	assert.Equal(t, []model.EventName{model.EventPacketAdded}, rec.names())
}

func TestAddPacketRejectsInvalidTimestamp(t *testing.T) {
	e := newTestEngine(t, nil, Options{})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	_, err := e.AddPacket(model.RawPacket{"ts": "not-a-time"})
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
	assert.Equal(t, 0, e.PacketCount())
	assert.Equal(t, int64(0), e.Statistics().TotalPackets)
	assert.Nil(t, e.Bounds().StartTime)
	assert.Empty(t, rec.names())
}

func TestSegmentCountsMatchBuffer(t *testing.T) {
	e := newTestEngine(t, nil, Options{})
	for i := 0; i < 500; i++ {
		_, err := e.AddPacket(pkt(float64(i) * 0.7))
		require.NoError(t, err)
	}

	total := 0
	for _, s := range e.Segments(-1, 1e9) {
		total += s.PacketCount
		assert.Equal(t, s.ID, e.SegmentID(s.StartTime))
	}
	assert.Equal(t, e.PacketCount(), total)
}

func TestBufferEvictsOldest(t *testing.T) {
	e := newTestEngine(t, nil, Options{MaxBufferSize: 3})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	for _, ts := range []float64{1, 2, 3, 4} {
		_, err := e.AddPacket(pkt(ts))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, e.PacketCount())
	views := e.GetPacketsInRange(0, 10, QueryOptions{})
	require.Len(t, views, 3)
	assert.Equal(t, 2.0, views[0].Timestamp)
	assert.Equal(t, 4.0, views[2].Timestamp)

	b := e.Bounds()
	assert.Equal(t, 2.0, *b.StartTime)
	assert.Equal(t, 4.0, *b.EndTime)

	cleaned := rec.byName(model.EventBufferCleaned)
	require.Len(t, cleaned, 1)
	payload := cleaned[0].Payload.(model.BufferCleaned)
	assert.Equal(t, 1, payload.Removed)
	assert.Equal(t, 3, payload.Remaining)
	require.Len(t, payload.Evicted, 1)
	assert.Equal(t, 1.0, payload.Evicted[0].Timestamp)

	// Aggregates are not recomputed on eviction.
	assert.Equal(t, int64(4), e.Statistics().TotalPackets)
}

func TestBufferNeverExceedsMax(t *testing.T) {
	e := newTestEngine(t, nil, Options{MaxBufferSize: 50})
	raws := make([]model.RawPacket, 0, 200)
	for i := 0; i < 200; i++ {
		raws = append(raws, pkt(float64(200-i)))
	}
	res := e.AddPackets(raws)
	assert.Equal(t, 200, res.Added)
	assert.Equal(t, 50, e.PacketCount())

	views := e.GetPacketsInRange(0, 1000, QueryOptions{})
	require.Len(t, views, 50)
	assert.Equal(t, 51.0, views[0].Timestamp)
}

func TestDuplicateTimestampsAreKept(t *testing.T) {
	e := newTestEngine(t, nil, Options{})
	first, err := e.AddPacket(model.RawPacket{"ts": 5.0, "id": "a"})
	require.NoError(t, err)
	_, err = e.AddPacket(model.RawPacket{"ts": 5.0, "id": "b"})
	require.NoError(t, err)

	assert.Equal(t, 2, e.PacketCount())
	at, ok := e.GetPacketAtTime(5.0)
	require.True(t, ok)
	assert.Equal(t, first.ID, at.ID)

	views := e.GetPacketsInRange(5, 5, QueryOptions{})
	require.Len(t, views, 2)
	assert.Equal(t, "a", views[0].ID)
	assert.Equal(t, "b", views[1].ID)
}

func TestAddPacketsSkipsInvalid(t *testing.T) {
	e := newTestEngine(t, nil, Options{})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	res := e.AddPackets([]model.RawPacket{pkt(1), {"ts": nil}, pkt(2), {"src": "x"}})
	assert.Equal(t, model.PacketsAdded{Added: 2, Rejected: 2}, res)
	assert.Equal(t, 2, e.PacketCount())

	batch := rec.byName(model.EventPacketsAdded)
	require.Len(t, batch, 1)
	assert.Equal(t, res, batch[0].Payload)
	assert.Empty(t, rec.byName(model.EventPacketAdded))
}

func TestClearResetsState(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(t, store, Options{})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	_, err := e.AddPacket(pkt(10))
	require.NoError(t, err)
	_, err = e.AddBookmark(10, "start", "", "")
	require.NoError(t, err)

	e.Clear()

	assert.Equal(t, 0, e.PacketCount())
	assert.Empty(t, e.Segments(-1e9, 1e9))
	assert.Empty(t, e.Bookmarks())
	assert.Equal(t, int64(0), e.Statistics().TotalPackets)
	assert.Nil(t, e.Bounds().StartTime)
	assert.Contains(t, rec.names(), model.EventTimelineCleared)

	reopened := newTestEngine(t, store, Options{})
	assert.Empty(t, reopened.Bookmarks())
	assert.Equal(t, int64(0), reopened.Statistics().TotalPackets)
}

func TestConcurrentIngestAndQuery(t *testing.T) {
	e := newTestEngine(t, nil, Options{MaxBufferSize: 100})
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = e.AddPacket(pkt(float64(w*1000 + i)))
				e.GetPacketsInRange(0, 1e6, QueryOptions{MaxResults: 10})
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 100, e.PacketCount())
	assert.Equal(t, int64(400), e.Statistics().TotalPackets)
}

func TestCloseIsIdempotent(t *testing.T) {
	e := New(nil, Options{})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

func TestAddPacketRejectsTimestampBeyondSegmentRange(t *testing.T) {
	e := newTestEngine(t, nil, Options{})
	rec := &recorder{}
	e.Subscribe(rec.handle)

	for _, ts := range []float64{1e25, 2e25, -1e25} {
		_, err := e.AddPacket(pkt(ts))
		assert.ErrorIs(t, err, ErrInvalidTimestamp, "ts=%v", ts)
	}
	assert.Equal(t, 0, e.PacketCount())
	assert.Empty(t, e.Segments(-1e30, 1e30))
	assert.Empty(t, rec.names())

	res := e.AddPackets([]model.RawPacket{pkt(1e25), pkt(5)})
	assert.Equal(t, model.PacketsAdded{Added: 1, Rejected: 1}, res)
	segs := e.Segments(0, 100)
	require.Len(t, segs, 1)
	assert.Equal(t, int64(0), segs[0].ID)
}
