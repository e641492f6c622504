// Package server provides the daemon's health and metrics HTTP endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quantix-kvm/swapd/internal/config"
	"github.com/quantix-kvm/swapd/internal/domain"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// EventLister reads back the swap decision audit trail.
type EventLister interface {
	ListByVM(ctx context.Context, vmID string, limit int) ([]*domain.SwapEvent, error)
}

// Server exposes /healthz, /metrics and /events.
type Server struct {
	cfg     config.ServerConfig
	logger  *zap.Logger
	checks  map[string]HealthChecker
	events  EventLister
	httpSrv *http.Server
}

// New creates the HTTP server. checks maps a component name to its health
// check; nil checkers are skipped. events may be nil when no audit trail is
// available.
func New(cfg config.ServerConfig, checks map[string]HealthChecker, events EventLister, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "http-server")),
		checks: checks,
		events: events,
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)

	s.httpSrv = &http.Server{
		Addr:         cfg.Address(),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.Address()))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.checks {
		if check == nil {
			continue
		}
		if err := check.Health(r.Context()); err != nil {
			s.logger.Warn("Health check failed",
				zap.String("check", name),
				zap.Error(err),
			)
			http.Error(w, name+": "+err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleEvents returns the most recent swap decisions for one VM, newest
// first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "event audit trail not available", http.StatusServiceUnavailable)
		return
	}

	vmID := r.URL.Query().Get("vm")
	if vmID == "" {
		http.Error(w, "missing vm parameter", http.StatusBadRequest)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit parameter", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	events, err := s.events.ListByVM(r.Context(), vmID, limit)
	if err != nil {
		s.logger.Error("Failed to list swap events",
			zap.String("vm_id", vmID),
			zap.Error(err),
		)
		http.Error(w, "failed to list events", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(events); err != nil {
		s.logger.Error("Failed to encode swap events", zap.Error(err))
	}
}
