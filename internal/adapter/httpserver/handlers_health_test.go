package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthOK(_ context.Context) error { return nil }

func healthErr(err error) func(context.Context) error {
	return func(_ context.Context) error { return err }
}

func decodeHealth(t *testing.T, body []byte) healthResponse {
	t.Helper()
	var resp healthResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestReadiness_CollectorHealthy(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "results_feed", Check: healthOK},
		HealthCheck{Name: "import_cycle", Check: healthOK},
	))

	for _, path := range []string{"/health/ready", "/health/startup"} {
		rec := serve(t, srv, path)

		require.Equal(t, http.StatusOK, rec.Code, path)
		resp := decodeHealth(t, rec.Body.Bytes())
		assert.Equal(t, "ready", resp.Status)
		assert.Empty(t, resp.FailedCheck)
		assert.Equal(t, []checkResult{
			{Name: "postgres", Status: "ok"},
			{Name: "results_feed", Status: "ok"},
			{Name: "import_cycle", Status: "ok"},
		}, resp.Checks)
	}
}

func TestReadiness_FeedBreakerOpen(t *testing.T) {
	breakerOpen := fmt.Errorf("%w: results", feed.ErrBreakerOpen)
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthOK},
		HealthCheck{Name: "results_feed", Check: healthErr(breakerOpen)},
		HealthCheck{Name: "import_cycle", Check: healthOK},
	))

	rec := serve(t, srv, "/health/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "results_feed", resp.FailedCheck)
	assert.Equal(t, "feed circuit breaker open: results", resp.Error)
	require.Len(t, resp.Checks, 3)
	assert.Equal(t, "ok", resp.Checks[2].Status, "later checks still run")
}

func TestReadiness_ReportsEveryFailure(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(
		HealthCheck{Name: "postgres", Check: healthErr(errors.New("database unreachable"))},
		HealthCheck{Name: "redis", Check: healthOK},
		HealthCheck{Name: "import_cycle", Check: healthErr(errors.New("no recent import cycle: last finished 16m0s ago"))},
	))

	rec := serve(t, srv, "/health/ready")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeHealth(t, rec.Body.Bytes())
	assert.Equal(t, "postgres", resp.FailedCheck)
	assert.Equal(t, "database unreachable", resp.Error)
	assert.Equal(t, []checkResult{
		{Name: "postgres", Status: "unhealthy", Error: "database unreachable"},
		{Name: "redis", Status: "ok"},
		{Name: "import_cycle", Status: "unhealthy", Error: "no recent import cycle: last finished 16m0s ago"},
	}, resp.Checks)
}

func TestReadiness_ChecksGetDeadline(t *testing.T) {
	var remaining time.Duration
	srv := newTestServer(t, withHealthChecks(HealthCheck{Name: "postgres", Check: func(ctx context.Context) error {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		remaining = time.Until(deadline)
		return nil
	}}))

	serve(t, srv, "/health/startup")
	assert.LessOrEqual(t, remaining, startupCheckTimeout)

	serve(t, srv, "/health/ready")
	assert.Greater(t, remaining, startupCheckTimeout)
	assert.LessOrEqual(t, remaining, readinessCheckTimeout)
}

func TestReadiness_NoChecks(t *testing.T) {
	rec := serve(t, newTestServer(t), "/health/ready")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ready","checks":[]}`, rec.Body.String())
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, withHealthChecks(HealthCheck{Name: "postgres", Check: healthErr(errors.New("down"))}))

	rec := serve(t, srv, "/health/live")

	require.Equal(t, http.StatusOK, rec.Code, "liveness ignores dependencies")
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "dev", body["version"])
	assert.Contains(t, body, "uptime")
}

func TestVersion(t *testing.T) {
	rec := serve(t, newTestServer(t), "/version")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `"version":"dev"`)
	assert.Contains(t, body, `"commit"`)
	assert.Contains(t, body, `"build_time"`)
	assert.Contains(t, body, `"go_version"`)
}

func TestOpsServerServesHealthAndMetrics(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("elections_up 1\n"))
	})
	srv := NewOpsServer("0", metricsHandler, []HealthCheck{{Name: "postgres", Check: healthOK}})

	rec := serve(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "elections_up 1")

	rec = serve(t, srv, "/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, srv, "/predictions")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
