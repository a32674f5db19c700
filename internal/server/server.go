package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/metridex/metridex/pkg/hoster"
	"github.com/metridex/metridex/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the HTTP interface and the underlying query Registry.
type Server struct {
	Registry *hoster.Registry

	httpServer *http.Server

	taskManager    *TaskManager
	refreshService *RefreshService
	authToken      string
	logger         *slog.Logger
}

// NewServer initializes the HTTP server using an existing Registry.
// Note: the queries must be registered (and their Setup run) before
// passing the Registry here, otherwise the refresh workers cannot
// resolve their target slugs.
func NewServer(reg *hoster.Registry, httpAddr string, config *Config) (*Server, error) {
	if config == nil {
		config = &Config{}
	}

	s := &Server{
		Registry:    reg,
		taskManager: NewTaskManager(),
		authToken:   config.AuthToken,
		logger:      slog.Default(),
	}

	// Initialize the refresh workers declared in the configuration.
	refreshService, err := NewRefreshService(s, config.Refresh)
	if err != nil {
		return nil, err
	}
	s.refreshService = refreshService

	// Setup HTTP
	mux := http.NewServeMux()
	s.registerHTTPHandlers(mux)

	// Chain middlewares: Recovery -> RequestID -> Logging -> CORS -> Mux
	// Order matters! Recovery must be outer-most to catch everything.

	var handler http.Handler = mux

	// 1. CORS (Inner) - browsers call the query endpoints directly
	handler = s.corsMiddleware(handler)

	// 2. Logging (Middle) - Logs duration and status
	handler = s.LoggingMiddleware(handler)

	// 3. Request ID - tags every request before it is logged
	handler = s.requestIDMiddleware(handler)

	// 4. Recovery (Outer) - Catches panics
	handler = s.RecoveryMiddleware(handler)

	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /healthz", s.handleHealthz)
	rootMux.Handle("GET /metrics", promhttp.Handler())
	rootMux.Handle("/", handler)
	s.httpServer = &http.Server{
		Addr:    httpAddr,
		Handler: rootMux,
	}

	return s, nil
}

// Run starts the HTTP server and the refresh workers.
func (s *Server) Run() error {
	if s.refreshService != nil {
		s.refreshService.Start()
	}
	s.updateIndexGauges()

	s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server startup failed: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server and the refresh service.
// It does NOT close the corpus sources (main.go handles that for proper
// lifecycle management).
func (s *Server) Shutdown() {
	s.logger.Info("starting graceful shutdown of HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.refreshService != nil {
		s.refreshService.Stop()
	}
}

// updateIndexGauges publishes the current item count of every query index
// that exposes stats. Called after startup and after every reload.
func (s *Server) updateIndexGauges() {
	for _, desc := range s.Registry.List() {
		q, err := s.Registry.Lookup(desc.Slug)
		if err != nil {
			continue
		}
		provider, ok := q.(hoster.StatsProvider)
		if !ok {
			continue
		}
		if items, ok := provider.IndexStats()["items"].(int); ok {
			metrics.IndexItemsTotal.WithLabelValues(desc.Slug).Set(float64(items))
		}
	}
}
