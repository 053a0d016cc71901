// Package api exposes the HTTP status interface for the capture service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Clock supplies the time used for staleness checks.
type Clock interface {
	Now() time.Time
}

// Options tune the status server.
type Options struct {
	// StaleAfter marks the service unready when the last cycle finished
	// longer ago than this. Zero disables the check.
	StaleAfter time.Duration
	// Metrics serves /metrics. Nil leaves the route unregistered.
	Metrics http.Handler
	// Middleware is applied after the built-in middleware, for example the
	// request metrics recorder.
	Middleware []func(http.Handler) http.Handler
	Clock      Clock
}

// Server wires HTTP handlers to the capture status tracker.
type Server struct {
	router chi.Router
	status *Status
	opts   Options
	logger *zap.Logger
}

type cycleResponse struct {
	Started     time.Time `json:"started_at"`
	Finished    time.Time `json:"finished_at"`
	DurationSec float64   `json:"duration_seconds"`
	Discovered  int       `json:"discovered"`
	Visited     int       `json:"visited"`
	Captured    int       `json:"captured"`
	Unavailable int       `json:"unavailable"`
	Skipped     int       `json:"skipped"`
	Aborted     bool      `json:"aborted"`
	AbortReason string    `json:"abort_reason,omitempty"`
	Cycles      int       `json:"cycles_completed"`
}

type visitResponse struct {
	Ordinal    int       `json:"ordinal"`
	Outcome    string    `json:"outcome"`
	Camera     string    `json:"camera,omitempty"`
	Path       string    `json:"path,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CapturedAt time.Time `json:"captured_at,omitzero"`
}

// NewServer constructs a Server with middleware and routes.
func NewServer(status *Status, opts Options, logger *zap.Logger) *Server {
	if status == nil {
		status = NewStatus(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = wallClock{}
	}
	s := &Server{status: status, opts: opts, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(30 * time.Second))
	for _, mw := range opts.Middleware {
		r.Use(mw)
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/cycles/latest", s.latestCycle)
		r.Get("/visits/recent", s.recentVisits)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server started", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.status.Latest()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
		return
	}
	if s.opts.StaleAfter > 0 {
		if age := s.opts.Clock.Now().Sub(latest.Finished); age > s.opts.StaleAfter {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "stale",
				"age":    age.Truncate(time.Second).String(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) latestCycle(w http.ResponseWriter, _ *http.Request) {
	latest, ok := s.status.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no cycle has finished yet")
		return
	}
	writeJSON(w, http.StatusOK, cycleResponse{
		Started:     latest.Started,
		Finished:    latest.Finished,
		DurationSec: latest.Duration().Seconds(),
		Discovered:  latest.Discovered,
		Visited:     latest.Visited,
		Captured:    latest.Captured,
		Unavailable: latest.Unavailable,
		Skipped:     latest.Skipped,
		Aborted:     latest.Aborted,
		AbortReason: latest.AbortReason,
		Cycles:      s.status.Cycles(),
	})
}

func (s *Server) recentVisits(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	visits := s.status.Recent(limit)
	out := make([]visitResponse, 0, len(visits))
	for _, v := range visits {
		out = append(out, visitResponse{
			Ordinal:    v.Ordinal,
			Outcome:    string(v.Outcome),
			Camera:     v.Name,
			Path:       v.Path,
			Reason:     string(v.Reason),
			Detail:     v.Detail,
			CapturedAt: v.CapturedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"visits": out})
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Debug("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
