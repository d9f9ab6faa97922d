// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package answercache persists generated answers keyed by question
// fingerprint so that repeated questions skip model generation entirely.
//
// Two drivers are provided: a BadgerDB-backed gateway for production and
// an in-memory gateway for tests and single-process dev setups. Both are
// safe for concurrent use.
package answercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
)

// ErrCacheMiss is returned by Lookup when no answer is stored for the
// fingerprint. Callers fall through to generation on this error and treat
// every other error as a storage failure.
var ErrCacheMiss = errors.New("answer not in cache")

// Gateway is the storage contract for cached answers.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple goroutines.
type Gateway interface {
	// Lookup returns the cached answer for a fingerprint, or ErrCacheMiss.
	Lookup(ctx context.Context, fingerprint string) (*datatypes.Answer, error)

	// Insert stores an answer under its fingerprint, overwriting any
	// previous entry. The answer must pass Validate before insertion.
	Insert(ctx context.Context, answer *datatypes.Answer) error

	// IncrementUsage bumps the usage counter for a cached answer. Missing
	// entries return ErrCacheMiss.
	IncrementUsage(ctx context.Context, fingerprint string) error

	// Close releases the underlying storage.
	Close() error
}

// GatewayType selects a cache driver.
type GatewayType string

const (
	GatewayTypeMemory GatewayType = "memory"
	GatewayTypeBadger GatewayType = "badger"
)

// ErrInvalidGatewayType is returned by NewGateway for unknown driver names.
var ErrInvalidGatewayType = errors.New("invalid answer cache gateway type")

// NewGateway creates a cache gateway of the requested type.
//
// # Inputs
//
//	kind - Driver to instantiate.
//	path - BadgerDB directory. Empty string opens Badger in memory; ignored
//	       by the memory driver.
//
// # Outputs
//
//	Gateway - Ready-to-use cache. Caller must Close it.
//	error - Non-nil on unknown kind or storage open failure.
func NewGateway(kind GatewayType, path string) (Gateway, error) {
	switch kind {
	case GatewayTypeMemory:
		return newMemoryGateway(), nil
	case GatewayTypeBadger:
		return newBadgerGateway(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidGatewayType, kind)
	}
}

const answerKeyPrefix = "answer:"

func answerKey(fingerprint string) []byte {
	return []byte(answerKeyPrefix + fingerprint)
}

func encodeAnswer(a *datatypes.Answer) ([]byte, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode answer %s: %w", a.Fingerprint, err)
	}
	return raw, nil
}

func decodeAnswer(raw []byte) (*datatypes.Answer, error) {
	var a datatypes.Answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode cached answer: %w", err)
	}
	return &a, nil
}

type memoryGateway struct {
	mu      sync.RWMutex
	answers map[string]*datatypes.Answer
}

func newMemoryGateway() *memoryGateway {
	return &memoryGateway{answers: make(map[string]*datatypes.Answer)}
}

func (m *memoryGateway) Lookup(_ context.Context, fingerprint string) (*datatypes.Answer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.answers[fingerprint]
	if !ok {
		return nil, ErrCacheMiss
	}
	// Copy so callers cannot mutate the stored entry.
	out := *a
	out.Steps = append([]datatypes.Step(nil), a.Steps...)
	return &out, nil
}

func (m *memoryGateway) Insert(_ context.Context, answer *datatypes.Answer) error {
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("refusing to cache invalid answer: %w", err)
	}
	stored := *answer
	stored.Steps = append([]datatypes.Step(nil), answer.Steps...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers[answer.Fingerprint] = &stored
	return nil
}

func (m *memoryGateway) IncrementUsage(_ context.Context, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[fingerprint]
	if !ok {
		return ErrCacheMiss
	}
	a.UsageCount++
	return nil
}

func (m *memoryGateway) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = make(map[string]*datatypes.Answer)
	return nil
}
