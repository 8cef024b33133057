package broker

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/dmitrijs2005/usersvc/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// MetricsHook records every broker command. Empty polls (redis.Nil) count
// as successes.
type MetricsHook struct {
	m *metrics.BrokerMetrics
}

var _ redis.Hook = (*MetricsHook)(nil)

func NewMetricsHook(m *metrics.BrokerMetrics) *MetricsHook {
	return &MetricsHook{m: m}
}

func (h *MetricsHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.m.ConnectionErrors.Inc()
		}
		return conn, err
	}
}

func (h *MetricsHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		h.m.Observe(strings.ToLower(cmd.Name()), err != nil && !errors.Is(err, redis.Nil), time.Since(start))
		return err
	}
}

func (h *MetricsHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		h.m.Observe("pipeline", err != nil, time.Since(start))
		return err
	}
}

// Instrument attaches a MetricsHook to the connection's client.
func (c *RedisConnection) Instrument(m *metrics.BrokerMetrics) {
	c.rdb.AddHook(NewMetricsHook(m))
}
