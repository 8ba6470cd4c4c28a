// Package server provides the HTTP server setup and wiring.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pendergraft/web3auth/internal/auth"
	"github.com/pendergraft/web3auth/internal/config"
	"github.com/pendergraft/web3auth/internal/middleware/logging"
	"github.com/pendergraft/web3auth/internal/middleware/ratelimit"
	"github.com/pendergraft/web3auth/internal/observability/metrics"
	"github.com/pendergraft/web3auth/internal/storage"
	verifyDomain "github.com/pendergraft/web3auth/internal/verify/domain"
	verifyTransport "github.com/pendergraft/web3auth/internal/verify/transport"
)

// maxBodyBytes caps request bodies; digest credentials are small.
const maxBodyBytes = 64 << 10

// Server is the HTTP server
type Server struct {
	cfg    *config.Config
	store  storage.Store
	logger *slog.Logger
	router *chi.Mux

	verifySvc verifyTransport.Service
}

// New creates a new server. The caller performs the contract round
// trips; credentials submitted over HTTP are verified through it.
func New(cfg *config.Config, store storage.Store, caller verifyDomain.ContractCaller, logger *slog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		logger: logger,
		router: chi.NewRouter(),
	}

	verifyImpl := verifyDomain.NewService(caller, NewAttemptRecorder(store, "http"))
	s.verifySvc = verifyDomain.LoggingMiddleware(logger)(verifyImpl)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// 1. Body size limit
	s.router.Use(maxBodySize(maxBodyBytes))

	// 2. Rate limiting (bypasses health checks)
	s.router.Use(ratelimit.Middleware(ratelimit.Config{
		Enabled:        s.cfg.RateLimit.Enabled,
		RequestsPerMin: s.cfg.RateLimit.RequestsPerMin,
		BurstSize:      s.cfg.RateLimit.BurstSize,
		CleanupMinutes: s.cfg.RateLimit.CleanupMinutes,
	}))

	// 3. Standard middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(logging.Middleware(s.logger))
	s.router.Use(metrics.Middleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	// Health checks
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/readyz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	verifyHandler := verifyTransport.NewHandler(s.verifySvc)

	// Auth middleware for audit endpoints
	requireAuth := func(r chi.Router) {
		if s.cfg.Auth.Type == "api-key" {
			r.Use(auth.Middleware(s.store, writeError))
		}
	}

	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Verification - open, it carries its own credentials
		verifyHandler.RegisterRoutes(r)

		// Audit trail - auth required
		r.Group(func(r chi.Router) {
			requireAuth(r)
			r.Get("/attempts", s.handleListAttempts)
			r.Get("/attempts/{id}", s.handleGetAttempt)
		})
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.AttemptFilter{
		Username: q.Get("username"),
		Realm:    q.Get("realm"),
		Verdict:  q.Get("verdict"),
	}
	pagination := storage.PaginationParams{Cursor: q.Get("cursor")}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid limit")
			return
		}
		pagination.Limit = n
	}

	result, err := s.store.ListAttempts(r.Context(), filter, pagination)
	if err != nil {
		s.logger.Error("listing attempts failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list attempts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": attemptItems(result.Data),
		"pagination": map[string]any{
			"hasMore":    result.HasMore,
			"nextCursor": result.NextCursor,
		},
	})
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.store.GetAttempt(r.Context(), chi.URLParam(r, "id"))
	if err == storage.ErrNotFound {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Attempt not found")
		return
	}
	if err != nil {
		s.logger.Error("getting attempt failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get attempt")
		return
	}
	writeJSON(w, http.StatusOK, attemptItem(*attempt))
}

func attemptItems(attempts []storage.Attempt) []map[string]any {
	items := make([]map[string]any, len(attempts))
	for i, a := range attempts {
		items[i] = attemptItem(a)
	}
	return items
}

func attemptItem(a storage.Attempt) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"username":   a.Username,
		"realm":      a.Realm,
		"method":     a.Method,
		"uri":        a.URI,
		"transport":  a.Transport,
		"verdict":    a.Verdict,
		"reason":     a.Reason,
		"durationMs": a.DurationMS,
		"createdAt":  a.CreatedAt,
	}
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// maxBodySize returns middleware that limits request body size
func maxBodySize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

// attemptRecorder persists verification attempts for one transport.
type attemptRecorder struct {
	store     storage.AttemptStore
	transport string
}

// NewAttemptRecorder adapts an AttemptStore to the verify domain's
// recorder interface, tagging every attempt with the given transport.
func NewAttemptRecorder(store storage.AttemptStore, transport string) verifyDomain.AttemptRecorder {
	return &attemptRecorder{store: store, transport: transport}
}

func (a *attemptRecorder) RecordAttempt(ctx context.Context, creds verifyDomain.Credentials, outcome verifyDomain.Outcome, elapsed time.Duration) error {
	return a.store.RecordAttempt(ctx, &storage.Attempt{
		Username:   creds.Username,
		Realm:      creds.Realm,
		Method:     creds.Method,
		URI:        creds.URI,
		Transport:  a.transport,
		Verdict:    string(outcome.Verdict),
		Reason:     outcome.Reason,
		DurationMS: elapsed.Milliseconds(),
	})
}
