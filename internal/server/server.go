// Package server provides the HTTP and WebSocket transport in front of
// the live session coordinator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldnotes-ai/fieldnotes/internal/db"
	"github.com/fieldnotes-ai/fieldnotes/internal/live"
	"github.com/fieldnotes-ai/fieldnotes/internal/metrics"
	"github.com/fieldnotes-ai/fieldnotes/internal/models"
	"github.com/fieldnotes-ai/fieldnotes/internal/session"
)

// SessionService is the coordinator surface the transport drives.
type SessionService interface {
	StartSession(sessionID, userID string, sctx models.SessionContext) error
	PushVisual(sessionID string, frame live.VisualFrame) error
	PushAudioChunk(sessionID string, chunk []byte) error
	EndSession(ctx context.Context, sessionID string) error
	ActiveSessions() int
}

// ConnectionReader serves the review/read endpoints.
type ConnectionReader interface {
	QueryGetConnection(ctx context.Context, id string) (*models.Connection, error)
	QueryListConnections(ctx context.Context, userID string, status models.ConnectionStatus, limit int) ([]models.Connection, error)
	QuerySetConnectionStatus(ctx context.Context, id string, status models.ConnectionStatus) (*models.Connection, error)
	QueryListInteractions(ctx context.Context, connectionID string, limit int) ([]models.Interaction, error)
	QueryConnectionStats(ctx context.Context, userID string) ([]db.StatusCount, error)
}

// Server is the HTTP/WebSocket front of the capture engine.
type Server struct {
	sessions    SessionService
	connections ConnectionReader
	hub         *Hub
	collector   *metrics.Collector
	logger      *slog.Logger
	router      chi.Router
}

// New creates the server and wires its routes.
func New(sessions SessionService, connections ConnectionReader, hub *Hub, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		sessions:    sessions,
		connections: connections,
		hub:         hub,
		collector:   collector,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/stats", s.handleStats)
		v1.Get("/connections", s.handleListConnections)
		v1.Get("/connections/{id}", s.handleGetConnection)
		v1.Post("/connections/{id}/status", s.handleSetStatus)
		v1.Get("/connections/{id}/interactions", s.handleListInteractions)
		v1.Get("/live", s.handleLive)
	})
	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveSessions(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"active_sessions": s.sessions.ActiveSessions(),
	}
	if s.collector != nil {
		body["operations"] = s.collector.Snapshot()
	}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		counts, err := s.connections.QueryConnectionStats(r.Context(), userID)
		if err != nil {
			s.logger.Error("connection stats failed", "error", err)
			respondError(w, http.StatusInternalServerError, "stats unavailable")
			return
		}
		body["connections"] = counts
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	status := models.ConnectionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.StatusDraft, models.StatusApproved, models.StatusArchived:
	default:
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	list, err := s.connections.QueryListConnections(r.Context(), userID, status, limit)
	if err != nil {
		s.logger.Error("list connections failed", "user_id", userID, "error", err)
		respondError(w, http.StatusInternalServerError, "list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"connections": list})
}

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	conn, err := s.connections.QueryGetConnection(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "connection not found")
			return
		}
		s.logger.Error("get connection failed", "connection_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, conn)
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Status models.ConnectionStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch body.Status {
	case models.StatusDraft, models.StatusApproved, models.StatusArchived:
	default:
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}

	updated, err := s.connections.QuerySetConnectionStatus(r.Context(), id, body.Status)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			respondError(w, http.StatusNotFound, "connection not found")
			return
		}
		s.logger.Error("set status failed", "connection_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "update failed")
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	list, err := s.connections.QueryListInteractions(r.Context(), id, 0)
	if err != nil {
		s.logger.Error("list interactions failed", "connection_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "list failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"interactions": list})
}

// sessionStatusCode maps coordinator errors onto HTTP-ish codes used in
// socket error frames.
func sessionStatusCode(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
