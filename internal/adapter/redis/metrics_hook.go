package redis

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/phxgg/kickbridge/internal/metrics"
	goredis "github.com/redis/go-redis/v9"
)

// MetricsHook observes every command the ledger issues: per-operation counts,
// latency, and connection failures. goredis.Nil is a miss, not a failure, so
// revocation lookups of absent jtis count as successes.
type MetricsHook struct{}

var _ goredis.Hook = (*MetricsHook)(nil)

func observeOp(operation string, start time.Time, failed bool) {
	status := "success"
	if failed {
		status = "error"
	}
	metrics.RedisOpsTotal.WithLabelValues(operation, status).Inc()
	metrics.RedisOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			metrics.RedisConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		observeOp(cmd.Name(), start, err != nil && !errors.Is(err, goredis.Nil))
		return err
	}
}

// ProcessPipelineHook counts the whole pipeline as one operation; the record
// and revoke pipelines stand or fall together.
func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		observeOp("pipeline", start, err != nil)
		return err
	}
}
