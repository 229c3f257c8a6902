// Package httpserver serves the read API: stored predictions, the latest
// import snapshot, and health probes.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type readStore interface {
	LatestPrediction(ctx context.Context) (*domain.Prediction, error)
	ListPredictions(ctx context.Context, limit int) ([]domain.Prediction, error)
	LatestSnapshot(ctx context.Context) (*domain.ImportSnapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]domain.ImportSnapshot, error)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	port   string

	store          readStore
	httpMetrics    *metrics.HTTPMetrics
	metricsHandler http.Handler
	healthChecks   []HealthCheck
	startTime      time.Time
}

// NewServer builds the read API on cfg.Port. httpMetrics and metricsHandler
// may be nil; without a handler /metrics is not served.
func NewServer(cfg *config.Config, store readStore, httpMetrics *metrics.HTTPMetrics, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	srv := newServer(cfg.Port, metricsHandler, healthChecks)
	srv.config = cfg
	srv.store = store
	srv.httpMetrics = httpMetrics

	srv.registerRoutes()

	return srv
}

// NewOpsServer serves only health probes and /metrics. The collector and the
// worker expose it on the metrics port.
func NewOpsServer(port string, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	srv := newServer(port, metricsHandler, healthChecks)

	srv.echo.Use(middleware.Recover())
	srv.registerHealthRoutes()
	srv.registerMetricsRoute()

	return srv
}

func newServer(port string, metricsHandler http.Handler, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	return &Server{
		echo:           e,
		port:           port,
		metricsHandler: metricsHandler,
		healthChecks:   healthChecks,
		startTime:      time.Now(),
	}
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.port)
	if err := s.echo.Start(":" + s.port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
