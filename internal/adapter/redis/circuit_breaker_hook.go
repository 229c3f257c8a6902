package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/gbilton/elections-2022/internal/adapter/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// CircuitBreakerHook implements redis.Hook and stops hitting Redis while it
// keeps failing. With the breaker open, enqueues fail immediately and the
// collector logs them; the snapshot is already stored.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook opens at a 60% failure rate over at least 5 requests
// in 10s, half-opens after 30s and closes on the first success. m may be nil.
func NewCircuitBreakerHook(m *metrics.QueueMetrics) *CircuitBreakerHook {
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, 10*time.Second).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			if m != nil {
				m.BreakerState.Set(stateToFloat(e.NewState))
			}
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, fmt.Errorf("redis dial rejected: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis %s rejected: %w", cmd.Name(), circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmd)
		if countsAsFailure(err) {
			h.cb.RecordError(err)
		} else {
			h.cb.RecordSuccess()
		}
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis pipeline rejected: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if countsAsFailure(err) {
			h.cb.RecordError(err)
		} else {
			h.cb.RecordSuccess()
		}
		return err
	}
}

// countsAsFailure ignores replies from a healthy server (an empty BRPOP, a
// NOSCRIPT before a script is loaded) and caller cancellation.
func countsAsFailure(err error) bool {
	if err == nil || errors.Is(err, goredis.Nil) {
		return false
	}
	var reply goredis.Error
	if errors.As(err, &reply) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
