// Package server exposes a pilot over HTTP: directive intake, batch
// history from the journal, a websocket telemetry stream and prometheus
// metrics.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/screenpilot/pkg/journal"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/pilot"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Config configures the HTTP server.
type Config struct {
	Addr string
	// AllowedOrigins lists browser origins allowed for CORS and websocket
	// upgrades. Empty allows same-origin only.
	AllowedOrigins []string
	// MaxEventClients caps concurrent /v1/events streams.
	MaxEventClients int
}

// Server is the HTTP front end of a pilot.
type Server struct {
	cfg          Config
	pilot        *pilot.Pilot
	journal      *journal.Journal
	telemetry    *telemetry.Hub
	logger       *logging.Logger
	eventClients *connLimiter
	router       chi.Router
}

// New creates a server. j may be nil, in which case the batch endpoints
// answer 503.
func New(cfg Config, p *pilot.Pilot, j *journal.Journal, hub *telemetry.Hub, logger *logging.Logger) *Server {
	if cfg.MaxEventClients <= 0 {
		cfg.MaxEventClients = maxEventStreamClients
	}
	if hub == nil {
		hub = telemetry.NewHub()
	}
	s := &Server{
		cfg:          cfg,
		pilot:        p,
		journal:      j,
		telemetry:    hub,
		logger:       logger,
		eventClients: newConnLimiter(cfg.MaxEventClients),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(s.recoverMiddleware)
	router.Use(s.metricsMiddleware)
	router.Use(s.corsMiddleware)
	router.Use(s.securityHeadersMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/v1", func(r chi.Router) {
		r.Post("/directives", s.handleDirectives)
		r.Post("/clear", s.handleClear)
		r.Get("/buffer", s.handleBuffer)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{batchID}", s.handleGetBatch)
		r.Get("/events", s.handleEvents)
	})
	return router
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info(logging.CategoryServer, "server_started", "serving HTTP API", map[string]any{
			"addr": ln.Addr().String(),
		})
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		s.logger.Info(logging.CategoryServer, "server_stopped", "HTTP API stopped", nil)
		return err
	case err, ok := <-serverErr:
		if !ok {
			return nil
		}
		return err
	}
}
