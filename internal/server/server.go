// Package server implements the receiver service: batch ingestion, the query
// API and the dashboard.
package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/zuckdorsey/inputtrace/internal/db"
	"github.com/zuckdorsey/inputtrace/internal/logging"
	"github.com/zuckdorsey/inputtrace/internal/metrics"
	"github.com/zuckdorsey/inputtrace/internal/models"
)

// Server handles ingestion from agents and serves the dashboard.
type Server struct {
	DB             *sql.DB
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Hub            *Hub
	DashboardLimit int
}

// ingestRequest is the wire body accepted from agents.
type ingestRequest struct {
	Events []models.Event `json:"events"`
}

// ingestResponse acknowledges a stored batch.
type ingestResponse struct {
	Status   string `json:"status"`
	Received int    `json:"received"`
}

// Handler returns the receiver's HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/input", s.handleIngest)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.Hub != nil {
		mux.HandleFunc("GET /ws", s.Hub.HandleWS)
	}
	mux.HandleFunc("GET /{$}", s.handleDashboard)
	return mux
}

// handleIngest stores one batch. The sender retries until it sees a 2xx, so
// a duplicate batch after a lost acknowledgment is expected and stored as-is.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20) // 8MB limit

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Events == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing events list"})
		return
	}

	if len(req.Events) > 0 {
		if err := db.InsertEvents(s.DB, req.Events); err != nil {
			s.Logger.Error("store events failed", zap.Error(err), logging.RemoteIP(remoteIP(r)))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store events"})
			return
		}
		s.Metrics.EventsIngested.Add(float64(len(req.Events)))
		if s.Hub != nil {
			s.Hub.Broadcast(req.Events)
		}
	}

	s.Logger.Debug("batch ingested",
		logging.BatchSize(len(req.Events)),
		logging.RemoteIP(remoteIP(r)))
	writeJSON(w, http.StatusOK, ingestResponse{Status: "ok", Received: len(req.Events)})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := s.DashboardLimit
	if limit < 1 {
		limit = 100
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}

	events, err := db.ListRecentEvents(s.DB, limit)
	if err != nil {
		s.Logger.Error("list events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if events == nil {
		events = []models.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := db.CountEvents(s.DB)
	if err != nil {
		s.Logger.Error("count events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	byKind, err := db.CountEventsByKind(s.DB)
	if err != nil {
		s.Logger.Error("count events by kind failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "database error"})
		return
	}
	if byKind == nil {
		byKind = []db.KindCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total, "by_kind": byKind})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
