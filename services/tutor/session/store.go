// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the lifecycle of TTL-bound user sessions: creation,
// sliding expiration, partial updates, pause/resume bookkeeping, and the
// connection-to-session mapping.
//
// Storage is abstracted behind the Store interface with two drivers:
//
//   - redis: the production driver. Each session is one JSON value under a
//     "session:" key with a server-side TTL; conflicting writes serialize at
//     the storage layer via atomic key overwrite.
//   - memory: a mutex-guarded map with explicit expiry timestamps, used by
//     tests and by lightweight single-process deployments.
//
// The connection mapping lives in the same store under "conn:" keys with the
// same TTL discipline, so session affinity survives horizontal scaling
// instead of living in a process-local table.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a key/value abstraction with per-key TTL. Get returns (nil, nil)
// for a missing or expired key; absence is not an error at this layer.
type Store interface {
	// Set writes value under key with the given TTL, overwriting any
	// previous value and its TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value for key, or (nil, nil) if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Expire resets the TTL of key without touching its value. Returns
	// false if the key does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Close releases driver resources.
	Close() error
}

// StoreType selects a Store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
)

// StoreOption is a functional option for NewStore.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	now         func() time.Time
}

// WithRedisClient sets the Redis client for the redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithClock overrides the time source of the memory driver. Tests use this
// to advance time past a TTL without sleeping.
func WithClock(now func() time.Time) StoreOption {
	return func(c *storeConfig) {
		c.now = now
	}
}

// NewStore creates a Store for the given driver type.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{now: time.Now}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return &memoryStore{
			entries: make(map[string]memoryEntry),
			now:     config.now,
		}, nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{client: config.redisClient}, nil

	default:
		return nil, ErrInvalidStoreType
	}
}

// =============================================================================
// Memory driver
// =============================================================================

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func (s *memoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := make([]byte, len(value))
	copy(v, value)
	s.entries[key] = memoryEntry{value: v, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return nil, nil
	}
	v := make([]byte, len(entry.value))
	copy(v, entry.value)
	return v, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

func (s *memoryStore) Expire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok || s.now().After(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	entry.expiresAt = s.now().Add(ttl)
	s.entries[key] = entry
	return true, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = nil
	return nil
}

// =============================================================================
// Redis driver
// =============================================================================

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *redisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *redisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
