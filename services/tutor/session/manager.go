// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	sessionKeyPrefix = "session:"
	connKeyPrefix    = "conn:"

	// DefaultTTL is the sliding session lifetime: 30 minutes, renewed by
	// every read and write.
	DefaultTTL = 1800 * time.Second
)

// Manager owns session lifecycle on top of a Store.
//
// # Description
//
// Every operation that touches an existing session re-reads it from the
// store, merges changes, stamps last_activity, and re-persists with the full
// TTL (sliding expiration). A client that merely polls its session status
// therefore keeps the session alive without explicit keep-alives.
//
// Operations that require an existing session fail with ErrSessionExpired
// when the record is absent; they never no-op silently and never recreate
// the session.
//
// # Thread Safety
//
// The Manager holds no mutable state of its own; concurrent use is safe.
// Concurrent updates to the same session resolve last-writer-wins per field
// because each update is a read-merge-write of a partial patch, not a blind
// overwrite of unrelated fields.
type Manager struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewManager creates a Manager with the given per-session TTL. A ttl of zero
// selects DefaultTTL.
func NewManager(store Store, ttl time.Duration) *Manager {
	return NewManagerWithClock(store, ttl, time.Now)
}

// NewManagerWithClock creates a Manager with an explicit time source.
// Tests use this together with the memory store's WithClock to exercise
// TTL behavior deterministically.
func NewManagerWithClock(store Store, ttl time.Duration, now func() time.Time) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, ttl: ttl, now: now}
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create generates a fresh session for userID, persists it with the full
// TTL, and returns its id. connectionID may be empty for HTTP-only clients.
func (m *Manager) Create(ctx context.Context, userID, connectionID string) (string, error) {
	now := m.now().UTC()
	sess := &Session{
		SessionID:           uuid.New().String(),
		UserID:              userID,
		ConnectionID:        connectionID,
		ConversationContext: map[string]any{},
		CreatedAt:           now,
		LastActivity:        now,
	}

	if err := m.persist(ctx, sess); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	slog.Info("session created", "session_id", sess.SessionID, "user_id", userID)
	return sess.SessionID, nil
}

// Get returns the session for id, refreshing last_activity and renewing the
// TTL as a side effect. Returns ErrSessionExpired if the record is absent.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	sess, err := m.load(ctx, id)
	if err != nil {
		return nil, err
	}

	sess.LastActivity = m.now().UTC()
	if err := m.persist(ctx, sess); err != nil {
		return nil, fmt.Errorf("refreshing session %s: %w", id, err)
	}
	return sess, nil
}

// Update merges patch into the stored session, stamps last_activity, and
// re-persists with the full TTL. Fields not named by the patch are
// preserved. Returns ErrSessionExpired if the session does not exist.
func (m *Manager) Update(ctx context.Context, id string, patch Patch) error {
	sess, err := m.load(ctx, id)
	if err != nil {
		return err
	}

	patch.apply(sess)
	sess.LastActivity = m.now().UTC()
	if err := m.persist(ctx, sess); err != nil {
		return fmt.Errorf("updating session %s: %w", id, err)
	}
	return nil
}

// RenewTTL extends the session's TTL without reading or changing any field.
// Returns false if the session no longer exists.
func (m *Manager) RenewTTL(ctx context.Context, id string) (bool, error) {
	return m.store.Expire(ctx, sessionKeyPrefix+id, m.ttl)
}

// End deletes the session record. Idempotent: ending a session that is
// already gone is not an error.
func (m *Manager) End(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, sessionKeyPrefix+id); err != nil {
		return fmt.Errorf("ending session %s: %w", id, err)
	}
	slog.Info("session ended", "session_id", id)
	return nil
}

// Exists reports whether the session record is currently in the store.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	raw, err := m.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		return false, err
	}
	return raw != nil, nil
}

// PauseStreaming marks the session paused at the given character offset.
// Pausing clears is_streaming: the two flags are never both true.
func (m *Manager) PauseStreaming(ctx context.Context, id string, pausePosition int) error {
	paused, streaming := true, false
	return m.Update(ctx, id, Patch{
		IsPaused:      &paused,
		IsStreaming:   &streaming,
		PausePosition: &pausePosition,
	})
}

// PauseStreamingAt records a pause at an exact step and offset in one
// write, noting whether the step's opening events already went out. The
// single write keeps the pause and streaming flags consistent for any
// concurrent reader; two separate writes would expose a record with both
// flags set.
func (m *Manager) PauseStreamingAt(ctx context.Context, id string, step, position int, stepOpened bool) error {
	paused, streaming := true, false
	return m.Update(ctx, id, Patch{
		IsPaused:      &paused,
		IsStreaming:   &streaming,
		CurrentStep:   &step,
		PausePosition: &position,
		StepOpened:    &stepOpened,
	})
}

// ResumeStreaming clears the pause flag and marks the session streaming
// again, preserving pause_position and current_step so the caller knows
// where to continue. Returns the refreshed session.
func (m *Manager) ResumeStreaming(ctx context.Context, id string) (*Session, error) {
	paused, streaming := false, true
	if err := m.Update(ctx, id, Patch{IsPaused: &paused, IsStreaming: &streaming}); err != nil {
		return nil, err
	}
	return m.Get(ctx, id)
}

// UpdateStreamingState sets the streaming flag and current step index.
// It deliberately leaves the pause fields alone: a pause request can land
// between two streaming-state writes and must survive them.
func (m *Manager) UpdateStreamingState(ctx context.Context, id string, isStreaming bool, currentStep int) error {
	return m.Update(ctx, id, Patch{IsStreaming: &isStreaming, CurrentStep: &currentStep})
}

// BeginStreaming marks the session streaming from the top of an answer,
// clearing any stale pause left over from a previous explanation.
func (m *Manager) BeginStreaming(ctx context.Context, id, fingerprint string) error {
	streaming, paused, step, pos, opened := true, false, 0, 0, false
	return m.Update(ctx, id, Patch{
		CurrentQuestion: &fingerprint,
		IsStreaming:     &streaming,
		IsPaused:        &paused,
		CurrentStep:     &step,
		PausePosition:   &pos,
		StepOpened:      &opened,
	})
}

// BindConnection maps a transport connection id to a session id in the
// store, under the same TTL discipline as the session itself.
func (m *Manager) BindConnection(ctx context.Context, connectionID, sessionID string) error {
	return m.store.Set(ctx, connKeyPrefix+connectionID, []byte(sessionID), m.ttl)
}

// ResolveConnection returns the session id bound to a connection id, or
// ErrNoSession if no binding exists.
func (m *Manager) ResolveConnection(ctx context.Context, connectionID string) (string, error) {
	raw, err := m.store.Get(ctx, connKeyPrefix+connectionID)
	if err != nil {
		return "", err
	}
	if raw == nil {
		return "", ErrNoSession
	}
	return string(raw), nil
}

// UnbindConnection removes a connection binding. Idempotent.
func (m *Manager) UnbindConnection(ctx context.Context, connectionID string) error {
	return m.store.Delete(ctx, connKeyPrefix+connectionID)
}

func (m *Manager) load(ctx context.Context, id string) (*Session, error) {
	raw, err := m.store.Get(ctx, sessionKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", id, err)
	}
	if raw == nil {
		return nil, ErrSessionExpired
	}

	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decoding session %s: %w", id, err)
	}
	return &sess, nil
}

func (m *Manager) persist(ctx context.Context, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding session %s: %w", sess.SessionID, err)
	}
	return m.store.Set(ctx, sessionKeyPrefix+sess.SessionID, raw, m.ttl)
}
