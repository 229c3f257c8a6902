package metrics

import "github.com/prometheus/client_golang/prometheus"

// ProjectionMetrics covers the projection worker.
type ProjectionMetrics struct {
	TasksTotal     *prometheus.CounterVec
	TaskDuration   prometheus.Histogram
	TaskLag        prometheus.Histogram
	CandidateShare *prometheus.GaugeVec
}

// NewProjectionMetrics creates and registers projection worker metrics on the given registry.
func NewProjectionMetrics(reg prometheus.Registerer) *ProjectionMetrics {
	m := &ProjectionMetrics{
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "tasks_total",
			Help:      "Total number of projection tasks handled, by result.",
		}, []string{"result"}),
		TaskDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "task_duration_seconds",
			Help:      "Duration of projecting and storing one task in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		TaskLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "task_lag_seconds",
			Help:      "Time between the import request and the projection being stored.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}),
		CandidateShare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "candidate_share",
			Help:      "Most recently projected share of each tracked candidate.",
		}, []string{"candidate"}),
	}

	reg.MustRegister(m.TasksTotal, m.TaskDuration, m.TaskLag, m.CandidateShare)
	return m
}
