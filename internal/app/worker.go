package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/domain"
	"github.com/gbilton/elections-2022/internal/platform/correlation"
	"github.com/gbilton/elections-2022/internal/platform/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

const (
	dequeueWait       = 5 * time.Second
	dequeueErrorPause = 2 * time.Second
)

// Projector aggregates tallies into tracked-candidate shares and standings.
type Projector interface {
	Project(tallies []domain.UnitTally) (map[string]float64, []domain.Standing, error)
}

// PredictionWriter persists predictions.
type PredictionWriter interface {
	SavePrediction(ctx context.Context, prediction domain.Prediction) (uuid.UUID, error)
}

// Worker consumes projection tasks and stores the resulting predictions. It
// reads nothing but the task payload.
type Worker struct {
	queue      domain.JobQueue
	projector  Projector
	store      PredictionWriter
	clock      clockwork.Clock
	metrics    *metrics.ProjectionMetrics
	savePolicy retry.Policy
}

// NewWorker wires the projection worker. m may be nil.
func NewWorker(queue domain.JobQueue, projector Projector, store PredictionWriter, clock clockwork.Clock, m *metrics.ProjectionMetrics) *Worker {
	policy := retry.Policy{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Clock:          clock,
	}
	return &Worker{
		queue:      queue,
		projector:  projector,
		store:      store,
		clock:      clock,
		metrics:    m,
		savePolicy: policy,
	}
}

// Run consumes tasks until ctx is cancelled. A task in progress when ctx is
// cancelled is finished before Run returns.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, err := w.queue.Dequeue(ctx, dequeueWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.ErrorContext(ctx, "Failed to dequeue projection task", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-w.clock.After(dequeueErrorPause):
			}
			continue
		}
		if task == nil {
			continue
		}

		_, _ = w.Handle(context.WithoutCancel(ctx), *task)
	}
}

// Handle projects one task and stores the prediction. Skipped projections
// return an error wrapping domain.ErrProjectionSkipped and store nothing.
func (w *Worker) Handle(ctx context.Context, task domain.ProjectionTask) (*domain.Prediction, error) {
	ctx = correlation.Resume(ctx, task.CorrelationID)
	start := w.clock.Now()

	shares, standings, err := w.projector.Project(task.Tallies)
	if err != nil {
		if errors.Is(err, domain.ErrProjectionSkipped) {
			slog.InfoContext(ctx, "Projection skipped", "snapshot_id", task.SnapshotID, "reason", err)
			w.count(metrics.ResultSkipped)
		} else {
			slog.ErrorContext(ctx, "Projection failed", "snapshot_id", task.SnapshotID, "error", err)
			w.count(metrics.ResultFailed)
		}
		return nil, err
	}

	prediction := domain.Prediction{
		ID:         uuid.New(),
		SnapshotID: task.SnapshotID,
		Shares:     shares,
		ComputedAt: task.RequestedAt,
	}

	_, err = retry.Do(ctx, w.savePolicy, retry.Unless(context.Canceled), func(ctx context.Context) (uuid.UUID, error) {
		return w.store.SavePrediction(ctx, prediction)
	})
	if err != nil {
		slog.ErrorContext(ctx, "Failed to store prediction", "snapshot_id", task.SnapshotID, "error", err)
		w.count(metrics.ResultFailed)
		return nil, fmt.Errorf("failed to store prediction: %w", err)
	}

	w.count(metrics.ResultSuccess)
	if w.metrics != nil {
		w.metrics.TaskDuration.Observe(w.clock.Since(start).Seconds())
		w.metrics.TaskLag.Observe(w.clock.Since(task.RequestedAt).Seconds())
		for key, share := range shares {
			w.metrics.CandidateShare.WithLabelValues(key).Set(share)
		}
	}

	attrs := []any{"snapshot_id", task.SnapshotID, "prediction_id", prediction.ID, "units", len(task.Tallies)}
	for key, share := range shares {
		attrs = append(attrs, key, share)
	}
	if len(standings) > 0 {
		attrs = append(attrs, "leader", standings[0].Name)
	}
	slog.InfoContext(ctx, "Prediction stored", attrs...)

	return &prediction, nil
}

func (w *Worker) count(result string) {
	if w.metrics != nil {
		w.metrics.TasksTotal.WithLabelValues(result).Inc()
	}
}
