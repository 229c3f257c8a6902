package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gbilton/elections-2022/internal/platform/version"
	"github.com/labstack/echo/v4"
)

const (
	startupCheckTimeout   = 2 * time.Second
	readinessCheckTimeout = 5 * time.Second

	statusOK        = "ok"
	statusReady     = "ready"
	statusUnhealthy = "unhealthy"
)

// HealthCheck is one dependency or pipeline condition reported by the
// startup and readiness endpoints: a store ping, the feed breaker, the age of
// the last import cycle.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type checkResult struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthResponse lists every check. FailedCheck and Error repeat the first
// failure so a single log line is enough to see what is wrong.
type healthResponse struct {
	Status      string        `json:"status"`
	FailedCheck string        `json:"failed_check,omitempty"`
	Error       string        `json:"error,omitempty"`
	Checks      []checkResult `json:"checks"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health/startup", s.healthHandler(startupCheckTimeout))
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.healthHandler(readinessCheckTimeout))
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status":  statusOK,
		"uptime":  time.Since(s.startTime).Seconds(),
		"version": version.Version,
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

// healthHandler runs every health check within timeout. All checks run even
// after one fails so the body shows the whole picture.
func (s *Server) healthHandler(timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		response := s.runHealthChecks(ctx)
		code := http.StatusOK
		if response.Status != statusReady {
			code = http.StatusServiceUnavailable
		}
		if err := c.JSON(code, response); err != nil {
			return fmt.Errorf("failed to write health response: %w", err)
		}
		return nil
	}
}

func (s *Server) runHealthChecks(ctx context.Context) healthResponse {
	response := healthResponse{
		Status: statusReady,
		Checks: make([]checkResult, 0, len(s.healthChecks)),
	}
	for _, hc := range s.healthChecks {
		result := checkResult{Name: hc.Name, Status: statusOK}
		if err := hc.Check(ctx); err != nil {
			slog.WarnContext(ctx, "Health check failed", "check", hc.Name, "error", err)
			result.Status = statusUnhealthy
			result.Error = err.Error()
			if response.Status == statusReady {
				response.Status = statusUnhealthy
				response.FailedCheck = hc.Name
				response.Error = result.Error
			}
		}
		response.Checks = append(response.Checks, result)
	}
	return response
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
