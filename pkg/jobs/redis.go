// SPDX-FileCopyrightText: Copyright 2026 The kokoro-auth Authors
// SPDX-License-Identifier: Apache-2.0

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kokoro-labs/kokoro-auth/pkg/logger"
)

// Default Redis client timeouts.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// connectAttempts bounds the pings made before NewRedisQueue gives up.
const connectAttempts = 3

// DefaultKey is the list that receives sync jobs.
const DefaultKey = "kokoro:sync:jobs"

// RedisConfig configures the Redis connection of the queue.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	// Key is the list jobs are pushed to.
	Key string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisQueue pushes jobs onto a Redis list with LPUSH; workers pop from the
// other end.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, client.Ping(ctx).Err()
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(connectAttempts),
		backoff.WithNotify(func(err error, d time.Duration) {
			logger.Warnw("redis not reachable, retrying", "addr", cfg.Addr, "in", d, "error", err)
		}),
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisQueueWithClient(client, cfg.Key), nil
}

// NewRedisQueueWithClient wraps an existing client. Tests use it with
// miniredis.
func NewRedisQueueWithClient(client redis.UniversalClient, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Enqueue pushes all jobs in one pipeline.
func (q *RedisQueue) Enqueue(ctx context.Context, jobs ...Job) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]any, 0, len(jobs))
	for _, j := range jobs {
		raw, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to encode job: %w", err)
		}
		values = append(values, raw)
	}
	if err := q.client.LPush(ctx, q.key, values...).Err(); err != nil {
		return fmt.Errorf("failed to enqueue %d jobs: %w", len(jobs), err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
