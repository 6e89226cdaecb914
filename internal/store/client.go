// Package store provides Redis-backed, TTL-cached implementations of the
// encodemgr.RecordedStore, encodemgr.VideoFileStore, and encodemgr.VideoUtil
// collaborators.
package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Client wraps the Redis client with the teacher's connection defaults and
// startup ping diagnostics (redis/client.go in the pack).
type Client struct {
	*redis.Client
	log *zap.Logger
}

// NewClient creates a Redis client against addr/db.
func NewClient(addr string, db int, log *zap.Logger) *Client {
	opts := &redis.Options{
		Addr:         addr,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	}

	c := &Client{
		Client: redis.NewClient(opts),
		log:    log.Named("redis"),
	}
	c.ping(context.Background())
	return c
}

func (c *Client) ping(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := c.Client.Ping(ctx).Err()
	elapsed := time.Since(start)

	log := c.log.With(zap.String("addr", c.Options().Addr), zap.Int("db", c.Options().DB))
	if err != nil {
		log.Warn("connection failed", zap.Error(err), zap.Duration("ping_rtt", elapsed))
	} else {
		log.Info("connection established", zap.Duration("ping_rtt", elapsed))
	}
}
