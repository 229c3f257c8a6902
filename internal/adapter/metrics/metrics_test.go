package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ServesRegisteredMetrics(t *testing.T) {
	reg := NewRegistry()
	im := NewImportMetrics(reg)
	im.CyclesTotal.WithLabelValues(ResultSuccess).Inc()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `elections_import_cycles_total{result="success"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewMetrics_RegisterWithoutConflict(t *testing.T) {
	reg := NewRegistry()
	assert.NotPanics(t, func() {
		NewImportMetrics(reg)
		NewProjectionMetrics(reg)
		NewDBMetrics(reg)
		NewQueueMetrics(reg)
		NewHTTPMetrics(reg)
	})
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/predictions/last", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "none")
	})
	e.GET("/predictions", func(c echo.Context) error {
		return c.JSON(http.StatusOK, []string{})
	})
	e.GET("/health/live", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	for _, path := range []string{"/predictions", "/predictions", "/predictions/last", "/health/live"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/predictions", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/predictions/last", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))

	expected := `
# HELP elections_http_requests_total Total number of HTTP requests.
# TYPE elections_http_requests_total counter
elections_http_requests_total{method="GET",route="/predictions",status_code="200"} 2
elections_http_requests_total{method="GET",route="/predictions/last",status_code="404"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "elections_http_requests_total"))
}
