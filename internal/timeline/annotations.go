package timeline

import (
	"Go2NetTimeline/internal/model"
	"math"
	"sort"

	"github.com/google/uuid"
)

// annotationStore holds bookmarks and markers keyed by exact timestamp.
type annotationStore struct {
	bookmarks map[float64]model.Bookmark
	markers   map[float64]model.Marker
}

func newAnnotationStore() *annotationStore {
	return &annotationStore{
		bookmarks: make(map[float64]model.Bookmark),
		markers:   make(map[float64]model.Marker),
	}
}

func (as *annotationStore) putBookmark(b model.Bookmark) {
	as.bookmarks[b.Timestamp] = b
}

func (as *annotationStore) removeBookmark(ts float64) (model.Bookmark, bool) {
	b, ok := as.bookmarks[ts]
	if ok {
		delete(as.bookmarks, ts)
	}
	return b, ok
}

func (as *annotationStore) putMarker(m model.Marker) {
	as.markers[m.Timestamp] = m
}

func (as *annotationStore) removeMarker(ts float64) (model.Marker, bool) {
	m, ok := as.markers[ts]
	if ok {
		delete(as.markers, ts)
	}
	return m, ok
}

// bookmarksIn returns bookmarks with start <= ts <= end, ordered by timestamp.
func (as *annotationStore) bookmarksIn(start, end float64) []model.Bookmark {
	out := make([]model.Bookmark, 0)
	for ts, b := range as.bookmarks {
		if ts >= start && ts <= end {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

// markersIn returns markers with start <= ts <= end, ordered by timestamp.
func (as *annotationStore) markersIn(start, end float64) []model.Marker {
	out := make([]model.Marker, 0)
	for ts, m := range as.markers {
		if ts >= start && ts <= end {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

func (as *annotationStore) reset() {
	as.bookmarks = make(map[float64]model.Bookmark)
	as.markers = make(map[float64]model.Marker)
}

// AddBookmark records a user bookmark at ts, replacing any bookmark already at
// that exact timestamp, and persists the change.
func (e *Engine) AddBookmark(ts float64, label, description, category string) (model.Bookmark, error) {
	ts, err := NormalizeTimestamp(ts)
	if err == nil {
		err = e.checkSegmentRange(ts)
	}
	if err != nil {
		return model.Bookmark{}, err
	}
	b := model.Bookmark{
		ID:          uuid.NewString(),
		Timestamp:   ts,
		Label:       label,
		Description: description,
		Category:    category,
		CreatedAt:   e.opts.Clock().UTC(),
	}

	e.mu.Lock()
	e.annotations.putBookmark(b)
	e.segments.attachBookmark(ts)
	flush := e.persistLocked()
	ev := e.event(model.EventBookmarkAdded, b)
	e.mu.Unlock()

	flush()
	e.dispatch([]model.Event{ev})
	return b, nil
}

// RemoveBookmark deletes the bookmark at exactly ts. ok is false, and nothing
// happens, when there is none.
func (e *Engine) RemoveBookmark(ts float64) (b model.Bookmark, ok bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.Bookmark{}, false
	}

	e.mu.Lock()
	b, ok = e.annotations.removeBookmark(ts)
	if !ok {
		e.mu.Unlock()
		return model.Bookmark{}, false
	}
	e.segments.detachBookmark(ts)
	flush := e.persistLocked()
	ev := e.event(model.EventBookmarkRemoved, b)
	e.mu.Unlock()

	flush()
	e.dispatch([]model.Event{ev})
	return b, true
}

// AddMarker records a system marker at ts and persists the change.
func (e *Engine) AddMarker(ts float64, markerType string, data map[string]interface{}) (model.Marker, error) {
	ts, err := NormalizeTimestamp(ts)
	if err == nil {
		err = e.checkSegmentRange(ts)
	}
	if err != nil {
		return model.Marker{}, err
	}
	m := model.Marker{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Type:      markerType,
		Data:      data,
	}

	e.mu.Lock()
	e.annotations.putMarker(m)
	e.segments.attachMarker(ts)
	flush := e.persistLocked()
	ev := e.event(model.EventMarkerAdded, m)
	e.mu.Unlock()

	flush()
	e.dispatch([]model.Event{ev})
	return m, nil
}

// RemoveMarker deletes the marker at exactly ts.
func (e *Engine) RemoveMarker(ts float64) (m model.Marker, ok bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.Marker{}, false
	}

	e.mu.Lock()
	m, ok = e.annotations.removeMarker(ts)
	if !ok {
		e.mu.Unlock()
		return model.Marker{}, false
	}
	e.segments.detachMarker(ts)
	flush := e.persistLocked()
	ev := e.event(model.EventMarkerRemoved, m)
	e.mu.Unlock()

	flush()
	e.dispatch([]model.Event{ev})
	return m, true
}

// GetBookmark returns the bookmark at exactly ts.
func (e *Engine) GetBookmark(ts float64) (model.Bookmark, bool) {
	ts, err := NormalizeTimestamp(ts)
	if err != nil {
		return model.Bookmark{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.annotations.bookmarks[ts]
	return b, ok
}

// Bookmarks returns every bookmark ordered by timestamp.
func (e *Engine) Bookmarks() []model.Bookmark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.annotations.bookmarksIn(math.Inf(-1), math.Inf(1))
}

// Markers returns every marker ordered by timestamp.
func (e *Engine) Markers() []model.Marker {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.annotations.markersIn(math.Inf(-1), math.Inf(1))
}
