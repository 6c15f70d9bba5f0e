package api

import (
	"Go2NetTimeline/internal/probe"
	"Go2NetTimeline/internal/timeline"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

// Server exposes a timeline engine over HTTP.
type Server struct {
	engine   *timeline.Engine
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *zap.Logger
	router   *mux.Router
}

// NewServer builds the router. hub and gatherer may be nil, in which case
// /api/v1/events and /metrics are not registered.
func NewServer(engine *timeline.Engine, hub *Hub, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{engine: engine, hub: hub, gatherer: gatherer, logger: logger, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.logRequests)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/packets", s.handleAddPackets).Methods(http.MethodPost)
	v1.HandleFunc("/packets", s.handleGetPackets).Methods(http.MethodGet)
	v1.HandleFunc("/packets/at", s.handlePacketAt).Methods(http.MethodGet)
	v1.HandleFunc("/packets/nearest", s.handleNearestPacket).Methods(http.MethodGet)
	v1.HandleFunc("/segments", s.handleSegments).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies", s.handleAnomalies).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies/stats", s.handleDetectorStats).Methods(http.MethodGet)
	v1.HandleFunc("/anomalies/config", s.handleAnomalyConfig).Methods(http.MethodPost)
	v1.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	v1.HandleFunc("/bounds", s.handleBounds).Methods(http.MethodGet)
	v1.HandleFunc("/bookmarks", s.handleListBookmarks).Methods(http.MethodGet)
	v1.HandleFunc("/bookmarks", s.handleAddBookmark).Methods(http.MethodPost)
	v1.HandleFunc("/bookmarks/{ts}", s.handleRemoveBookmark).Methods(http.MethodDelete)
	v1.HandleFunc("/markers", s.handleListMarkers).Methods(http.MethodGet)
	v1.HandleFunc("/markers", s.handleAddMarker).Methods(http.MethodPost)
	v1.HandleFunc("/markers/{ts}", s.handleRemoveMarker).Methods(http.MethodDelete)
	v1.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	v1.HandleFunc("/timeline", s.handleClear).Methods(http.MethodDelete)

	if s.hub != nil {
		v1.HandleFunc("/events", s.hub.ServeWS).Methods(http.MethodGet)
	}
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// ---- packets ----

func (s *Server) handleAddPackets(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	packets, err := probe.DecodePackets(probe.CodecJSON, body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if trimmed := strings.TrimSpace(string(body)); !strings.HasPrefix(trimmed, "[") {
		rec, err := s.engine.AddPacket(packets[0])
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, rec)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.AddPackets(packets))
}

func (s *Server) handleGetPackets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order := timeline.SortOrder(strings.ToLower(q.Get("order")))
	switch order {
	case "", timeline.Ascending, timeline.Descending:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid order %q", q.Get("order")))
		return
	}
	metadata, _ := strconv.ParseBool(q.Get("metadata"))

	writeJSON(w, http.StatusOK, s.engine.GetPacketsInRange(start, end, timeline.QueryOptions{
		MaxResults:      limit,
		Order:           order,
		IncludeMetadata: metadata,
	}))
}

func (s *Server) handlePacketAt(w http.ResponseWriter, r *http.Request) {
	ts, err := requiredFloat(r, "ts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, ok := s.engine.GetPacketAtTime(ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no packet at that timestamp")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleNearestPacket(w http.ResponseWriter, r *http.Request) {
	ts, err := requiredFloat(r, "ts")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tolerance, err := floatParam(r, "tolerance", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	p, ok := s.engine.GetNearestPacket(ts, tolerance)
	if !ok {
		writeError(w, http.StatusNotFound, "no packet within tolerance")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ---- aggregates ----

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Segments(start, end))
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	start, end, ok := rangeParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Anomalies(start, end))
}

// anomalyConfigRequest leaves a field at its current value when omitted.
type anomalyConfigRequest struct {
	Threshold       *float64 `json:"threshold"`
	CooldownSeconds *float64 `json:"cooldownSeconds"`
}

func (s *Server) handleDetectorStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.DetectorStats())
}

func (s *Server) handleAnomalyConfig(w http.ResponseWriter, r *http.Request) {
	var req anomalyConfigRequest
	if !decodeBody(w, r, &req) {
		return
	}
	current := s.engine.DetectorStats()
	threshold, cooldown := current.Threshold, current.CooldownSeconds
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	if req.CooldownSeconds != nil {
		cooldown = *req.CooldownSeconds
	}
	cfg, err := s.engine.SetAnomalyConfig(threshold, time.Duration(cooldown*float64(time.Second)))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Statistics())
}

func (s *Server) handleBounds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Bounds())
}

// ---- annotations ----

type bookmarkRequest struct {
	Timestamp   interface{} `json:"timestamp"`
	Label       string      `json:"label"`
	Description string      `json:"description"`
	Category    string      `json:"category"`
}

type markerRequest struct {
	Timestamp interface{}            `json:"timestamp"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Bookmarks())
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ts, err := timeline.NormalizeTimestamp(req.Timestamp)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	b, err := s.engine.AddBookmark(ts, req.Label, req.Description, req.Category)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	ts, err := pathTimestamp(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, ok := s.engine.RemoveBookmark(ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no bookmark at that timestamp")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleListMarkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Markers())
}

func (s *Server) handleAddMarker(w http.ResponseWriter, r *http.Request) {
	var req markerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "marker type is required")
		return
	}
	ts, err := timeline.NormalizeTimestamp(req.Timestamp)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	m, err := s.engine.AddMarker(ts, req.Type, req.Data)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleRemoveMarker(w http.ResponseWriter, r *http.Request) {
	ts, err := pathTimestamp(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, ok := s.engine.RemoveMarker(ts)
	if !ok {
		writeError(w, http.StatusNotFound, "no marker at that timestamp")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ---- export and lifecycle ----

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	start, end, ok := s.boundedRange(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = timeline.FormatJSON
	}
	data, err := s.engine.ExportSegment(start, end, format)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	contentType, ext := "application/json", "json"
	if strings.EqualFold(format, timeline.FormatCSV) {
		contentType, ext = "text/csv", "csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="timeline_export_%d.%s"`, time.Now().Unix(), ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	s.engine.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// ---- helpers ----

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timeline.ErrInvalidTimestamp),
		errors.Is(err, timeline.ErrUnsupportedExportFormat),
		errors.Is(err, timeline.ErrInvalidAnomalyConfig):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func floatParam(r *http.Request, name string, def float64) (float64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s parameter %q", name, raw)
	}
	return v, nil
}

func requiredFloat(r *http.Request, name string) (float64, error) {
	if r.URL.Query().Get(name) == "" {
		return 0, fmt.Errorf("missing %s parameter", name)
	}
	return floatParam(r, name, 0)
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid %s parameter %q", name, raw)
	}
	return v, nil
}

// rangeParams reads start and end, defaulting to the whole timeline. It
// writes a 400 and returns false on bad input.
func rangeParams(w http.ResponseWriter, r *http.Request) (start, end float64, ok bool) {
	start, err := floatParam(r, "start", -math.MaxFloat64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	end, err = floatParam(r, "end", math.MaxFloat64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return start, end, true
}

// boundedRange is rangeParams with the defaults taken from the timeline
// bounds, so that exported metadata carries finite times.
func (s *Server) boundedRange(w http.ResponseWriter, r *http.Request) (start, end float64, ok bool) {
	bounds := s.engine.Bounds()
	var defStart, defEnd float64
	if bounds.StartTime != nil && bounds.EndTime != nil {
		defStart, defEnd = *bounds.StartTime, *bounds.EndTime
	}
	start, err := floatParam(r, "start", defStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	end, err = floatParam(r, "end", defEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, 0, false
	}
	return start, end, true
}

func pathTimestamp(r *http.Request) (float64, error) {
	raw := mux.Vars(r)["ts"]
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	return v, nil
}
