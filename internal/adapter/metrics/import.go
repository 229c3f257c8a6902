package metrics

import "github.com/prometheus/client_golang/prometheus"

// Cycle results.
const (
	ResultSuccess   = "success"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
	ResultNotQueued = "not_queued"
)

// ImportMetrics covers the poll loop: cycles, per-unit fetches and extraction.
type ImportMetrics struct {
	CyclesTotal        *prometheus.CounterVec
	CycleDuration      prometheus.Histogram
	UnitsImported      prometheus.Gauge
	FetchDuration      prometheus.Histogram
	FetchFailures      *prometheus.CounterVec
	ExtractFailures    *prometheus.CounterVec
	Importing          prometheus.Gauge
	BreakerTransitions *prometheus.CounterVec
}

// NewImportMetrics creates and registers poll loop metrics on the given registry.
func NewImportMetrics(reg prometheus.Registerer) *ImportMetrics {
	m := &ImportMetrics{
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "cycles_total",
			Help:      "Total number of import cycles, by result.",
		}, []string{"result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a full import cycle in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		UnitsImported: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "units_in_last_snapshot",
			Help:      "Number of units present in the most recent snapshot.",
		}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of a single unit fetch in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "fetch_failures_total",
			Help:      "Total number of failed unit fetches, by unit.",
		}, []string{"unit"}),
		ExtractFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "extract_failures_total",
			Help:      "Total number of unit documents that could not be extracted, by unit.",
		}, []string{"unit"}),
		Importing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "in_progress",
			Help:      "1 while an import cycle is running, 0 otherwise.",
		}),
		BreakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of feed circuit breaker state changes, by breaker and target state.",
		}, []string{"breaker", "state"}),
	}

	reg.MustRegister(
		m.CyclesTotal, m.CycleDuration, m.UnitsImported,
		m.FetchDuration, m.FetchFailures, m.ExtractFailures,
		m.Importing, m.BreakerTransitions,
	)
	return m
}
