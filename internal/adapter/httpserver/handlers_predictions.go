package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/labstack/echo/v4"
)

// Prediction bodies keep the flat shape the results page reads: one number
// per tracked candidate key next to the computation time under "time_".
const predictionTimeKey = "time_"

type snapshotResponse struct {
	ID          string            `json:"id"`
	RequestedAt time.Time         `json:"requested_at"`
	Units       []domain.UnitCode `json:"units"`
}

func (s *Server) registerPredictionRoutes() {
	limiter := newRateLimiter(s.config.APIRateLimit, s.config.APIRateBurst)
	s.echo.GET("/predictions", s.handleListPredictions, limiter)
	s.echo.GET("/predictions/last", s.handleLastPrediction, limiter)
	s.echo.GET("/snapshots", s.handleListSnapshots, limiter)
	s.echo.GET("/snapshots/last", s.handleLastSnapshot, limiter)
}

// listLimit reads the optional limit query parameter, capped at the
// configured maximum.
func (s *Server) listLimit(c echo.Context) (int, bool) {
	limit := s.config.PredictionsLimit
	raw := c.QueryParam("limit")
	if raw == "" {
		return limit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, limit), true
}

func (s *Server) handleListPredictions(c echo.Context) error {
	limit, ok := s.listLimit(c)
	if !ok {
		return HandleValidationError(c, "limit must be a positive integer")
	}

	predictions, err := s.store.ListPredictions(c.Request().Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list predictions: %w", err)
	}

	body := make([]map[string]any, 0, len(predictions))
	for _, p := range predictions {
		body = append(body, predictionBody(p))
	}
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write predictions response: %w", err)
	}
	return nil
}

func (s *Server) handleLastPrediction(c echo.Context) error {
	prediction, err := s.store.LatestPrediction(c.Request().Context())
	if errors.Is(err, domain.ErrNotFound) {
		return HandleNotFoundError(c, "no predictions yet")
	}
	if err != nil {
		return fmt.Errorf("failed to load latest prediction: %w", err)
	}

	if err := c.JSON(http.StatusOK, predictionBody(*prediction)); err != nil {
		return fmt.Errorf("failed to write prediction response: %w", err)
	}
	return nil
}

func (s *Server) handleLastSnapshot(c echo.Context) error {
	snapshot, err := s.store.LatestSnapshot(c.Request().Context())
	if errors.Is(err, domain.ErrNotFound) {
		return HandleNotFoundError(c, "no snapshots yet")
	}
	if err != nil {
		return fmt.Errorf("failed to load latest snapshot: %w", err)
	}

	if err := c.JSON(http.StatusOK, snapshotBody(*snapshot)); err != nil {
		return fmt.Errorf("failed to write snapshot response: %w", err)
	}
	return nil
}

func (s *Server) handleListSnapshots(c echo.Context) error {
	limit, ok := s.listLimit(c)
	if !ok {
		return HandleValidationError(c, "limit must be a positive integer")
	}

	snapshots, err := s.store.ListSnapshots(c.Request().Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}

	body := make([]snapshotResponse, 0, len(snapshots))
	for _, snapshot := range snapshots {
		body = append(body, snapshotBody(snapshot))
	}
	if err := c.JSON(http.StatusOK, body); err != nil {
		return fmt.Errorf("failed to write snapshots response: %w", err)
	}
	return nil
}

func snapshotBody(snapshot domain.ImportSnapshot) snapshotResponse {
	return snapshotResponse{
		ID:          snapshot.ID.String(),
		RequestedAt: snapshot.RequestedAt.UTC(),
		Units:       snapshot.UnitCodes(),
	}
}

func predictionBody(p domain.Prediction) map[string]any {
	body := make(map[string]any, len(p.Shares)+3)
	for key, share := range p.Shares {
		body[key] = share
	}
	body["id"] = p.ID.String()
	body["snapshot_id"] = p.SnapshotID.String()
	body[predictionTimeKey] = p.ComputedAt.UTC()
	return body
}
