// Package redis opens the go-redis client backing the Redis badge store.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with health checking and pool metrics.
type Client struct {
	*redis.Client

	totalConns prometheus.Gauge
	idleConns  prometheus.Gauge
	timeouts   prometheus.Gauge
}

// New parses url, connects and pings. reg receives the pool gauges; nil skips them.
func New(ctx context.Context, url string, reg prometheus.Registerer) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	c := &Client{Client: client}
	if reg != nil {
		factory := promauto.With(reg)
		c.totalConns = factory.NewGauge(prometheus.GaugeOpts{
			Name: "anchorbadge_redis_pool_total_conns",
			Help: "Number of total connections in the pool",
		})
		c.idleConns = factory.NewGauge(prometheus.GaugeOpts{
			Name: "anchorbadge_redis_pool_idle_conns",
			Help: "Number of idle connections in the pool",
		})
		c.timeouts = factory.NewGauge(prometheus.GaugeOpts{
			Name: "anchorbadge_redis_pool_timeouts",
			Help: "Cumulative number of pool wait timeouts",
		})
	}
	return c, nil
}

// Health checks if the Redis connection is healthy.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RecordPoolStats copies the current pool statistics into the gauges.
func (c *Client) RecordPoolStats() {
	if c.totalConns == nil {
		return
	}
	stats := c.PoolStats()
	c.totalConns.Set(float64(stats.TotalConns))
	c.idleConns.Set(float64(stats.IdleConns))
	c.timeouts.Set(float64(stats.Timeouts))
}

// RunPoolStats records pool statistics every interval until ctx is done.
func (c *Client) RunPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RecordPoolStats()
		}
	}
}
