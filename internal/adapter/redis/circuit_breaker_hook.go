package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/phxgg/kickbridge/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// CircuitBreakerHook implements redis.Hook to add circuit breaker protection
// to all Redis operations. When the breaker is open, operations fail fast
// instead of piling up on an unavailable Redis.
//
// There is no cached fallback here: the ledger this client backs
// answers revocation checks, and a stale answer must never stand in for a
// live one. An open breaker surfaces as an error and verification fails
// closed.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

// NewCircuitBreakerHook creates a circuit breaker hook with the following
// settings:
// - WithFailureRateThreshold: 60% failure rate, min 5 requests, 10s rolling window
// - WithDelay: 30s before transitioning from open to half-open
// - WithSuccessThreshold: 1 successful request in half-open to close
func NewCircuitBreakerHook() *CircuitBreakerHook {
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

			metrics.CircuitBreakerStateChanges.WithLabelValues("redis", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateToFloat(e.NewState))
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
			return nil, fmt.Errorf("circuit breaker dial failed: %w", circuitbreaker.ErrOpen)
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, fmt.Errorf("circuit breaker dial failed: %w", err)
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, goredis.Nil) {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker process failed: %w", err)
		}
		h.cb.RecordSuccess()
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return fmt.Errorf("redis circuit breaker open: %w", circuitbreaker.ErrOpen)
		}

		err := next(ctx, cmds)
		if err != nil {
			h.cb.RecordError(err)
			return fmt.Errorf("circuit breaker pipeline failed: %w", err)
		}
		h.cb.RecordSuccess()
		return nil
	}
}

// State returns the current breaker state, used by tests and health checks.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
