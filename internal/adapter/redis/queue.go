package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	"github.com/gbilton/elections-2022/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultQueueKey is the list projection tasks are pushed to.
const DefaultQueueKey = "elections:projection:tasks"

// Queue is a domain.JobQueue over a Redis list: LPUSH to enqueue, BRPOP to
// dequeue, so tasks are consumed in FIFO order by any number of workers.
type Queue struct {
	rdb     *goredis.Client
	key     string
	metrics *metrics.QueueMetrics
}

var _ domain.JobQueue = (*Queue)(nil)

// NewQueue returns a queue on key. m may be nil.
func NewQueue(rdb *goredis.Client, key string, m *metrics.QueueMetrics) *Queue {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Queue{rdb: rdb, key: key, metrics: m}
}

func (q *Queue) Enqueue(ctx context.Context, task domain.ProjectionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		q.observe("enqueue", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	q.observe("enqueue", nil)
	return nil
}

// Dequeue blocks up to wait for a task. It returns (nil, nil) on timeout.
// A payload that cannot be decoded is dropped and reported as an error.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*domain.ProjectionTask, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q.observe("dequeue", err)
		return nil, fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPOP replies with [key, value].
	if len(res) != 2 {
		q.observe("dequeue", errMalformedReply)
		return nil, errMalformedReply
	}

	var task domain.ProjectionTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		q.observe("dequeue", err)
		return nil, fmt.Errorf("failed to decode task: %w", err)
	}
	q.observe("dequeue", nil)
	return &task, nil
}

// Len reports the number of pending tasks.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

var errMalformedReply = errors.New("malformed BRPOP reply")

func (q *Queue) observe(op string, err error) {
	if q.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailed
	}
	q.metrics.OperationsTotal.WithLabelValues(op, result).Inc()
}
