// Package server exposes the investigation pipeline over HTTP: a JSON
// API for submission, status, and reports, a websocket stream for
// progress events, and the Prometheus scrape endpoint.
package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailhound/trailhound/internal/config"
	"github.com/trailhound/trailhound/internal/connectors"
	"github.com/trailhound/trailhound/internal/metrics"
	"github.com/trailhound/trailhound/internal/models"
)

// Coordinator is the investigation surface the server fronts
type Coordinator interface {
	Submit(ctx context.Context, seed models.Seed) (*models.Investigation, error)
	Status(ctx context.Context, id string) (*models.Investigation, error)
	Report(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, limit, offset int) ([]*models.Investigation, error)
	Cancel(id string) error
	Subscribe(id string) (<-chan models.ProgressEvent, func(), error)
}

// Server is the HTTP front of the pipeline
type Server struct {
	cfg         config.ServerConfig
	coordinator Coordinator
	registry    *connectors.Registry
	metrics     *metrics.Metrics
	logger      *slog.Logger

	httpServer *http.Server
}

// New creates a server. metrics may be nil when no scrape endpoint is
// wanted.
func New(cfg config.ServerConfig, coordinator Coordinator, registry *connectors.Registry, met *metrics.Metrics) *Server {
	s := &Server{
		cfg:         cfg,
		coordinator: coordinator,
		registry:    registry,
		metrics:     met,
		logger:      slog.Default().With("component", "server"),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // websocket streams outlive any fixed write deadline
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the route table. Exposed separately so tests can
// mount it on httptest servers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/investigations", s.handleSubmit)
	mux.HandleFunc("GET /api/v1/investigations", s.handleList)
	mux.HandleFunc("GET /api/v1/investigations/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/v1/investigations/{id}/report", s.handleReport)
	mux.HandleFunc("POST /api/v1/investigations/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /api/v1/investigations/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/v1/connectors", s.handleConnectors)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe blocks until ctx is cancelled or the listener fails,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
