package redis

import (
	"context"
	"errors"
	"net"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/forumcast/internal/adapter/metrics"
)

// MetricsHook is a goredis.Hook that counts commands by outcome and times them.
// Pipelines are recorded as one "pipeline" operation. A Nil reply counts as success.
type MetricsHook struct {
	metrics *metrics.RedisMetrics
	clock   clockwork.Clock
}

var _ goredis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.RedisMetrics, clock clockwork.Clock) *MetricsHook {
	return &MetricsHook{metrics: m, clock: clock}
}

func (h *MetricsHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.metrics.ConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		return h.timed(cmd.Name(), func() error { return next(ctx, cmd) })
	}
}

func (h *MetricsHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		return h.timed("pipeline", func() error { return next(ctx, cmds) })
	}
}

func (h *MetricsHook) timed(operation string, run func() error) error {
	began := h.clock.Now()
	err := run()

	outcome := "success"
	if err != nil && !errors.Is(err, goredis.Nil) {
		outcome = "error"
	}
	h.metrics.OpDuration.WithLabelValues(operation).Observe(h.clock.Since(began).Seconds())
	h.metrics.OpsTotal.WithLabelValues(operation, outcome).Inc()
	return err
}
