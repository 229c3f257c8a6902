package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProjectionTask is the message handed from the poll loop to the projection
// worker. It carries everything the worker needs so that nothing live crosses
// the async boundary.
type ProjectionTask struct {
	SnapshotID    uuid.UUID   `json:"snapshot_id"`
	RequestedAt   time.Time   `json:"requested_at"`
	Tallies       []UnitTally `json:"tallies"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// JobQueue defers projection work off the poll loop. Delivery is
// at-most-once; duplicate enqueues produce duplicate predictions.
type JobQueue interface {
	Enqueue(ctx context.Context, task ProjectionTask) error
	// Dequeue waits up to wait for a task and returns (nil, nil) on timeout.
	Dequeue(ctx context.Context, wait time.Duration) (*ProjectionTask, error)
}
