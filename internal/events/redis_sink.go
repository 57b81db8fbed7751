package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"loan-queue/internal/models"
)

// RedisSink keeps a capped activity list and publishes every event on a
// channel for live dashboards
type RedisSink struct {
	client  redis.Cmdable
	list    string
	channel string
	maxLen  int64
}

// NewRedisSink creates a sink writing to list and channel. maxLen caps the
// list; zero or less keeps everything.
func NewRedisSink(client redis.Cmdable, list, channel string, maxLen int64) *RedisSink {
	return &RedisSink{client: client, list: list, channel: channel, maxLen: maxLen}
}

// NewRedisClient parses url and checks the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		opts = &redis.Options{Addr: url}
	}
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Publish pushes the event to the head of the list, trims it and
// broadcasts it
func (s *RedisSink) Publish(ctx context.Context, event models.AuditEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if err := s.client.LPush(ctx, s.list, data).Err(); err != nil {
		return fmt.Errorf("failed to push activity: %w", err)
	}
	if s.maxLen > 0 {
		if err := s.client.LTrim(ctx, s.list, 0, s.maxLen-1).Err(); err != nil {
			return fmt.Errorf("failed to trim activity list: %w", err)
		}
	}
	if s.channel != "" {
		if err := s.client.Publish(ctx, s.channel, data).Err(); err != nil {
			return fmt.Errorf("failed to publish activity: %w", err)
		}
	}
	return nil
}
