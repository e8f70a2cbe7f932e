// Package server exposes health, metrics and a small control API for the
// running notifier.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nhle/review-notifier/internal/config"
	"github.com/nhle/review-notifier/internal/metrics"
	"github.com/nhle/review-notifier/internal/status"
	nsync "github.com/nhle/review-notifier/internal/sync"
)

const (
	defaultMiddlewareTimeout = 30 * time.Second
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 35 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Poller is the part of the poller the API drives.
type Poller interface {
	Trigger() bool
	Status() nsync.Status
}

// Store is the state the API reads and resets.
type Store interface {
	status.Reader
	ResetUnread(ctx context.Context) error
}

// Server serves the ops HTTP surface.
type Server struct {
	settings *config.Settings
	poller   Poller
	store    Store
	logger   *zap.Logger
}

// New creates a Server.
func New(settings *config.Settings, poller Poller, store Store, logger *zap.Logger) *Server {
	return &Server{settings: settings, poller: poller, store: store, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultMiddlewareTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if ok, reason := s.settings.Ready(); !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("NOT_READY: " + reason))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	})

	if s.settings.Server.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
		s.logger.Info("Metrics enabled", zap.String("path", "/metrics"))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/check", s.handleCheck)
		r.Get("/status", s.handleStatus)
		r.Post("/unread/reset", s.handleResetUnread)
	})

	return r
}

func (s *Server) handleCheck(w http.ResponseWriter, _ *http.Request) {
	queued := s.poller.Trigger()
	s.logger.Info("Manual check requested", zap.Bool("queued", queued))
	writeJSON(w, s.logger, http.StatusAccepted, map[string]any{"queued": queued})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := status.Collect(r.Context(), s.settings, s.store, status.DefaultRecentLimit)
	if err != nil {
		s.logger.Error("Failed to collect status", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to collect status")
		return
	}

	writeJSON(w, s.logger, http.StatusOK, struct {
		status.Snapshot
		Poller nsync.Status `json:"poller"`
	}{snap, s.poller.Status()})
}

func (s *Server) handleResetUnread(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ResetUnread(r.Context()); err != nil {
		s.logger.Error("Failed to reset unread counter", zap.Error(err))
		writeError(w, s.logger, http.StatusInternalServerError, "failed to reset unread counter")
		return
	}
	metrics.Unread.Set(0)
	writeJSON(w, s.logger, http.StatusOK, map[string]any{"unread": 0})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, code int, msg string) {
	writeJSON(w, logger, code, map[string]any{"error": msg, "code": code})
}

// NewHTTPServer wraps handler with the configured address and timeouts.
func NewHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
}

// ServeAndWait runs srv until ctx is cancelled or the listener fails, then
// shuts it down gracefully.
func ServeAndWait(ctx context.Context, logger *zap.Logger, srv *http.Server, shutdownTimeout time.Duration) error {
	if srv == nil {
		return fmt.Errorf("nil http server")
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", srv.Addr))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errCh:
		if runErr != nil {
			logger.Error("HTTP server error", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down HTTP server", zap.Duration("timeout", shutdownTimeout))
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		return fmt.Errorf("http shutdown: %w", err)
	}

	if runErr != nil {
		return fmt.Errorf("http server failed: %w", runErr)
	}

	logger.Info("HTTP server stopped")
	return nil
}
