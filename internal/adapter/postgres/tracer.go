package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/jackc/pgx/v5"
)

// MetricsTracer implements pgx.QueryTracer and records query latency and
// errors by statement kind.
type MetricsTracer struct {
	metrics *metrics.DBMetrics
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

func NewMetricsTracer(m *metrics.DBMetrics) *MetricsTracer {
	return &MetricsTracer{metrics: m}
}

type queryContextKey struct{}

type queryContext struct {
	start time.Time
	name  string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{start: time.Now(), name: queryName(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(qctx.name).Observe(time.Since(qctx.start).Seconds())
	if data.Err != nil && !isNoRows(data.Err) {
		t.metrics.ErrorsTotal.WithLabelValues(qctx.name).Inc()
	}
}

// queryName reduces a statement to its leading keyword and target table,
// e.g. "insert predictions", to keep label cardinality low.
func queryName(sql string) string {
	fields := strings.Fields(strings.ToLower(sql))
	if len(fields) == 0 {
		return "unknown"
	}

	verb := fields[0]
	var marker string
	switch verb {
	case "insert":
		marker = "into"
	case "select", "delete":
		marker = "from"
	case "update":
		if len(fields) > 1 {
			return verb + " " + fields[1]
		}
		return verb
	default:
		return verb
	}

	for i, f := range fields[:len(fields)-1] {
		if f == marker {
			return verb + " " + strings.Trim(fields[i+1], "(")
		}
	}
	return verb
}
