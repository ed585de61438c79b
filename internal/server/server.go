// Package server provides the bigbang HTTP server and its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/fernandezvara/pgtx/internal/server/middleware"
	"github.com/fernandezvara/pgtx/internal/settings"
)

// MetricsNamespace prefixes the HTTP request metrics.
const MetricsNamespace = "bigbang"

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg      *settings.Settings
	log      *slog.Logger
	db       HealthChecker
	registry *prometheus.Registry
	tracer   trace.Tracer
	version  string

	router *gin.Engine
	http   *http.Server
}

// Options carries the server's collaborators.
type Options struct {
	Settings *settings.Settings
	Logger   *slog.Logger
	Database HealthChecker
	Registry *prometheus.Registry
	Tracer   trace.Tracer
	Version  string
}

// New creates a Server with routes and middleware wired up.
func New(opts Options) (*Server, error) {
	if opts.Settings.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(MetricsNamespace, opts.Registry)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	s := &Server{
		cfg:      opts.Settings,
		log:      opts.Logger,
		db:       opts.Database,
		registry: opts.Registry,
		tracer:   opts.Tracer,
		version:  opts.Version,
		router:   gin.New(),
	}

	// Recovery first so it sees panics from every other middleware
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Tracing(s.tracer))
	s.router.Use(middleware.CORS())
	s.router.Use(httpMetrics.Handler())
	s.router.Use(middleware.Logging(s.log))

	s.setupRoutes()

	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.GET("/", s.home)
	s.router.GET("/health", s.health)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry: s.registry,
	})))
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("starting HTTP server", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("received shutdown signal")
	case err := <-errCh:
		return err
	}

	return s.Shutdown()
}

// Shutdown waits up to the configured timeout for in-flight requests.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down server", "timeout", s.cfg.Server.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("server stopped gracefully")
	return nil
}

// Router returns the gin engine for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}
