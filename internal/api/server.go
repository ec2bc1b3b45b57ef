// Package api provides the HTTP server for LearnQuest.
// Completion events come in through POST; everything else is a read
// projection over the reward state.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/learnquest/learnquest/internal/app/engagement"
	"github.com/learnquest/learnquest/internal/domain"
	"github.com/learnquest/learnquest/internal/health"
	"github.com/learnquest/learnquest/internal/infra/sqlite"
)

// Completer is implemented by *completion.Orchestrator.
type Completer interface {
	ProcessCompletion(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}

// Deps wires a Server. Health is optional.
type Deps struct {
	DB        *sqlite.DB
	Completer Completer
	Levels    *engagement.LevelProgression
	Streaks   *engagement.StreakTracker
	Goals     *engagement.GoalTracker
	Health    *health.Checker
	Log       logrus.FieldLogger
}

// Server is the LearnQuest HTTP API server.
type Server struct {
	deps           Deps
	metricsEnabled bool
	timeout        time.Duration
	now            func() time.Time
}

// NewServer creates a new API server.
func NewServer(deps Deps) *Server {
	if deps.Log == nil {
		deps.Log = logrus.StandardLogger()
	}
	return &Server{deps: deps, timeout: 30 * time.Second, now: time.Now}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTimeout sets the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.deps.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/levels", s.handleLevelTable)
		r.Get("/badges", s.handleBadgeCatalog)

		r.Route("/users/{userID}", func(r chi.Router) {
			r.Post("/completions", s.handleCompletion)
			r.Get("/completions", s.handleCompletions)
			r.Get("/level", s.handleLevel)
			r.Get("/wallet", s.handleWallet)
			r.Get("/transactions", s.handleTransactions)
			r.Get("/streaks", s.handleStreaks)
			r.Get("/goals", s.handleGoals)
			r.Get("/badges", s.handleUserBadges)
			r.Get("/notifications", s.handleNotifications)
			r.Post("/notifications/{id}/read", s.handleNotificationRead)
		})
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	status, code := "ok", http.StatusOK
	if !s.deps.Health.IsHealthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": s.deps.Health.Statuses(),
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, errType, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeDomainError maps engine errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case domain.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "insufficient_funds", err.Error())
	case errors.Is(err, domain.ErrUserNotFound), errors.Is(err, domain.ErrBadgeNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		s.deps.Log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// requestLogger logs one line per request.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}
