package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/labforge/serendipity/internal/models"
	"github.com/labforge/serendipity/internal/pipeline"
	"github.com/labforge/serendipity/internal/store"
)

// Server is the HTTP API over the notebook store and connection pipeline.
type Server struct {
	store    store.Store
	pipeline *pipeline.Pipeline
	logger   *slog.Logger
}

// NewServer creates a new Server with the given dependencies.
func NewServer(st store.Store, pl *pipeline.Pipeline, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		pipeline: pl,
		logger:   logger,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check — no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	// Connection discovery.
	mux.HandleFunc("POST /v1/connections/auto", s.auth(s.handleAutoConnect))
	mux.HandleFunc("POST /v1/connections/bulk", s.auth(s.handleBulkConnect))

	// Notebook CRUD subset.
	mux.HandleFunc("POST /v1/entries", s.auth(s.handleCreateEntry))
	mux.HandleFunc("GET /v1/entries/{id}", s.auth(s.handleGetEntry))
	mux.HandleFunc("GET /v1/projects/{id}/entries", s.auth(s.handleListEntries))
	mux.HandleFunc("GET /v1/projects/{id}/connections", s.auth(s.handleListConnections))
	mux.HandleFunc("POST /v1/connections/{id}/status", s.auth(s.handleUpdateStatus))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))

	return mux
}

// --- middleware ---

type contextKey string

const actorKey contextKey = "actor"

// auth resolves the bearer token to a user and stores it in the request
// context. Unknown tokens are a 401, never a silent degrade.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		user, err := s.store.AuthenticateToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			s.logger.Error("failed to authenticate token", "error", err)
			s.writeError(w, http.StatusInternalServerError, "authentication failed")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), actorKey, user)))
	}
}

func actorFrom(r *http.Request) *models.User {
	user, _ := r.Context().Value(actorKey).(*models.User)
	return user
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// connectResponse is returned by both connection-discovery endpoints.
type connectResponse struct {
	ConnectionsFound int `json:"connections_found"`
}

// autoConnectRequest is the body accepted by POST /v1/connections/auto.
type autoConnectRequest struct {
	EntryID string `json:"entry_id"`
}

func (s *Server) handleAutoConnect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req autoConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EntryID == "" {
		s.writeError(w, http.StatusBadRequest, "entry_id is required")
		return
	}

	count, err := s.pipeline.AutoConnect(r.Context(), actorFrom(r), req.EntryID)
	if err != nil {
		s.writePipelineError(w, "auto-connect", err)
		return
	}
	s.writeJSON(w, http.StatusOK, connectResponse{ConnectionsFound: count})
}

// bulkConnectRequest is the body accepted by POST /v1/connections/bulk.
type bulkConnectRequest struct {
	ProjectID string `json:"project_id"`
}

func (s *Server) handleBulkConnect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req bulkConnectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	count, err := s.pipeline.BulkConnect(r.Context(), actorFrom(r), req.ProjectID)
	if err != nil {
		s.writePipelineError(w, "bulk connect", err)
		return
	}
	s.writeJSON(w, http.StatusOK, connectResponse{ConnectionsFound: count})
}

// createEntryRequest is the body accepted by POST /v1/entries.
type createEntryRequest struct {
	ProjectID string   `json:"project_id"`
	Type      string   `json:"entry_type"`
	Content   string   `json:"content"`
	Tags      []string `json:"tags"`
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req createEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ProjectID == "" {
		s.writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	entryType := models.EntryType(req.Type)
	if req.Type == "" {
		entryType = models.EntryTypeObservation
	}
	if !entryType.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid entry type")
		return
	}

	if !s.requireProject(w, r, req.ProjectID) {
		return
	}

	entry := models.Entry{
		ID:        uuid.NewString(),
		ProjectID: req.ProjectID,
		Type:      entryType,
		Content:   req.Content,
		Tags:      req.Tags,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateEntry(r.Context(), entry); err != nil {
		s.logger.Error("failed to create entry", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to create entry")
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := s.store.GetEntry(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.logger.Error("failed to get entry", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get entry")
		return
	}
	if !s.requireProject(w, r, entry.ProjectID) {
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if !s.requireProject(w, r, projectID) {
		return
	}
	entries, err := s.store.ListProjectEntries(r.Context(), projectID, 100)
	if err != nil {
		s.logger.Error("failed to list entries", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list entries")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if !s.requireProject(w, r, projectID) {
		return
	}
	status := models.ConnectionStatus(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	conns, err := s.store.ListProjectConnections(r.Context(), projectID, status)
	if err != nil {
		s.logger.Error("failed to list connections", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list connections")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}

// updateStatusRequest is the body accepted by POST /v1/connections/{id}/status.
type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	status := models.ConnectionStatus(req.Status)
	if !status.IsValid() {
		s.writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if err := s.store.UpdateConnectionStatus(r.Context(), r.PathValue("id"), status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "connection not found")
			return
		}
		s.logger.Error("failed to update connection status", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to update connection")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// requireProject checks that the project exists and is owned by the actor.
// Missing and not-owned both surface as 404 to avoid leaking existence.
func (s *Server) requireProject(w http.ResponseWriter, r *http.Request, projectID string) bool {
	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "project not found")
			return false
		}
		s.logger.Error("failed to get project", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get project")
		return false
	}
	if actor := actorFrom(r); actor == nil || project.OwnerID != actor.ID {
		s.writeError(w, http.StatusNotFound, "project not found")
		return false
	}
	return true
}

// writePipelineError maps pipeline errors onto the HTTP error taxonomy.
func (s *Server) writePipelineError(w http.ResponseWriter, op string, err error) {
	var rle *pipeline.RateLimitError
	switch {
	case errors.As(err, &rle):
		s.writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":               "rate limit exceeded",
			"retry_after_seconds": int(rle.RetryAfter.Seconds()) + 1,
		})
	case errors.Is(err, store.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error(op+" failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, op+" failed")
	}
}

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
