// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ratelimit enforces per-user request quotas with a fixed-window
// counter. Each (user, action) pair gets its own window so a student who
// burns through question quota can still pause or resume a stream.
//
// Counting is abstracted behind the Counter interface with two drivers:
//
//   - redis: the production driver. One INCR per request with the window
//     TTL set on the first increment, so limits hold across replicas.
//   - memory: a mutex-guarded map used by tests and by lightweight
//     single-process deployments.
//
// The limiter fails open: if the counter backend errors, the request is
// allowed and the error is logged. Losing rate limiting briefly is better
// than refusing every student because redis restarted.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter tracks request counts per key within a rolling fixed window.
type Counter interface {
	// Incr increments key and returns the new count. The first increment
	// in a window starts the window's TTL.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Close releases driver resources.
	Close() error
}

// CounterType selects a Counter driver.
type CounterType string

const (
	CounterTypeMemory CounterType = "memory"
	CounterTypeRedis  CounterType = "redis"
)

// ErrInvalidCounterType is returned for an unknown driver name.
var ErrInvalidCounterType = fmt.Errorf("invalid rate limit counter type")

// ErrInvalidConfig is returned when a driver is missing required options.
var ErrInvalidConfig = fmt.Errorf("invalid rate limit counter config")

// CounterOption is a functional option for NewCounter.
type CounterOption func(*counterConfig)

type counterConfig struct {
	redisClient *redis.Client
	now         func() time.Time
}

// WithRedisClient sets the Redis client for the redis driver.
func WithRedisClient(client *redis.Client) CounterOption {
	return func(c *counterConfig) {
		c.redisClient = client
	}
}

// WithClock overrides the time source of the memory driver. Tests use this
// to advance time past a window without sleeping.
func WithClock(now func() time.Time) CounterOption {
	return func(c *counterConfig) {
		c.now = now
	}
}

// NewCounter creates a Counter for the given driver type.
func NewCounter(counterType CounterType, opts ...CounterOption) (Counter, error) {
	config := &counterConfig{now: time.Now}
	for _, opt := range opts {
		opt(config)
	}

	switch counterType {
	case CounterTypeMemory:
		return &memoryCounter{
			windows: make(map[string]memoryWindow),
			now:     config.now,
		}, nil

	case CounterTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisCounter{client: config.redisClient}, nil

	default:
		return nil, ErrInvalidCounterType
	}
}

// =============================================================================
// Limiter
// =============================================================================

// Limiter applies a fixed-window quota per (user, action) pair.
type Limiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	logger  *slog.Logger
}

// NewLimiter creates a Limiter. A limit of zero or below disables the
// limiter entirely; Allow always returns true.
func NewLimiter(counter Counter, limit int64, window time.Duration) *Limiter {
	return &Limiter{
		counter: counter,
		limit:   limit,
		window:  window,
		logger:  slog.Default(),
	}
}

// Allow reports whether the user may perform the action right now.
// Counter backend failures are logged and the request is allowed.
func (l *Limiter) Allow(ctx context.Context, userID, action string) bool {
	if l.limit <= 0 {
		return true
	}
	if userID == "" {
		userID = "anonymous"
	}

	key := "ratelimit:" + userID + ":" + action
	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("rate limit counter unavailable, failing open",
			"action", action, "error", err)
		return true
	}
	return count <= l.limit
}

// =============================================================================
// Memory driver
// =============================================================================

type memoryWindow struct {
	count     int64
	expiresAt time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

func (c *memoryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.windows[key]
	if !ok || c.now().After(w.expiresAt) {
		w = memoryWindow{count: 0, expiresAt: c.now().Add(window)}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

func (c *memoryCounter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.windows = nil
	return nil
}

// =============================================================================
// Redis driver
// =============================================================================

type redisCounter struct {
	client *redis.Client
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return count, err
		}
	}
	return count, nil
}

func (c *redisCounter) Close() error {
	return c.client.Close()
}
