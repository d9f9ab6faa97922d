// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package streaming drives the progressive delivery of stepped answers
// and the arbitration of mid-stream interruptions.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumistudy/LumiTutor/services/tutor/answercache"
	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
)

// Emitter delivers one framed event to a client. The websocket transport
// implements it with a write-mutexed connection; tests implement it with a
// capture buffer.
type Emitter interface {
	Emit(event string, data any) error
}

// Config holds the pacing constants. They shape perceived latency only;
// correctness never depends on their values.
type Config struct {
	ChunkSize    int
	ChunkDelay   time.Duration
	CommandDelay time.Duration
}

// DefaultConfig mirrors the pacing the product tuned for: 50-character
// chunks every 50ms.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    50,
		ChunkDelay:   50 * time.Millisecond,
		CommandDelay: 100 * time.Millisecond,
	}
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func realSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithSleep replaces the inter-chunk delay function. Tests use this to
// run streams instantly.
func WithSleep(fn sleepFunc) CoordinatorOption {
	return func(c *Coordinator) { c.sleep = fn }
}

// Coordinator streams answers step by step, chunk by chunk, checking the
// authoritative session record for pause requests at every yield point.
//
// # Description
//
//	Pause is cooperative, never preemptive: a pause request written to the
//	session store takes effect at the next chunk or step boundary, and the
//	coordinator records the exact character offset it stopped at before
//	acknowledging. Resume re-enters the loop at that step and offset and
//	re-sends nothing that was already emitted.
//
//	The pause flag is always re-read from the store rather than tracked in
//	memory, because the request arrives on a different handler invocation
//	than the streaming loop, possibly on a different process.
//
// # Thread Safety
//
//	Safe for concurrent use across sessions. A single session must not
//	have two concurrent streaming loops; the transport layer's
//	one-event-at-a-time dispatch per connection guarantees this.
type Coordinator struct {
	sessions *session.Manager
	cache    answercache.Gateway
	cfg      Config
	sleep    sleepFunc
}

// NewCoordinator wires a coordinator over the session manager and answer
// cache. Zero-valued config fields fall back to defaults.
func NewCoordinator(sessions *session.Manager, cache answercache.Gateway, cfg Config, opts ...CoordinatorOption) *Coordinator {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.ChunkDelay <= 0 {
		cfg.ChunkDelay = def.ChunkDelay
	}
	if cfg.CommandDelay <= 0 {
		cfg.CommandDelay = def.CommandDelay
	}
	c := &Coordinator{
		sessions: sessions,
		cache:    cache,
		cfg:      cfg,
		sleep:    realSleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream delivers an answer from the top. The session's pause state is
// reset and its fingerprint updated before the first event goes out.
func (c *Coordinator) Stream(ctx context.Context, sessionID string, answer *datatypes.Answer, em Emitter) error {
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("refusing to stream invalid answer: %w", err)
	}
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.IsStreaming {
		return ErrAlreadyStreaming
	}
	if err := c.sessions.BeginStreaming(ctx, sessionID, answer.Fingerprint); err != nil {
		return err
	}
	if err := em.Emit(datatypes.EventExplanationStart, datatypes.ExplanationStartPayload{
		QuestionHash:      answer.Fingerprint,
		TotalSteps:        len(answer.Steps),
		EstimatedDuration: answer.TotalDuration,
	}); err != nil {
		return fmt.Errorf("emitting explanation start: %w", err)
	}
	slog.Info("Streaming answer", "session_id", sessionID, "fingerprint", answer.Fingerprint, "steps", len(answer.Steps))
	return c.run(ctx, sessionID, answer, em, 0, 0, false)
}

// Resume continues a paused stream from the stored step and offset.
// answer may be nil; the coordinator then reconstructs it from the
// fingerprint held in the session via the answer cache.
func (c *Coordinator) Resume(ctx context.Context, sessionID string, answer *datatypes.Answer, em Emitter) error {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.IsPaused {
		return ErrNotPaused
	}
	if answer == nil {
		answer, err = c.reconstruct(ctx, sess)
		if err != nil {
			return err
		}
	}
	sess, err = c.sessions.ResumeStreaming(ctx, sessionID)
	if err != nil {
		return err
	}
	startStep, startOffset, startOpened := sess.CurrentStep, sess.PausePosition, sess.StepOpened
	if startStep >= len(answer.Steps) {
		return fmt.Errorf("%w: stored step %d beyond answer's %d steps", ErrNoAnswerData, startStep, len(answer.Steps))
	}
	if err := em.Emit(datatypes.EventExplanationResumed, datatypes.ResumedPayload{
		Step:     startStep,
		Position: startOffset,
	}); err != nil {
		return fmt.Errorf("emitting resume notice: %w", err)
	}
	slog.Info("Resuming stream", "session_id", sessionID, "step", startStep, "position", startOffset)
	return c.run(ctx, sessionID, answer, em, startStep, startOffset, startOpened)
}

func (c *Coordinator) reconstruct(ctx context.Context, sess *session.Session) (*datatypes.Answer, error) {
	if sess.CurrentQuestion == "" {
		return nil, ErrNoAnswerData
	}
	answer, err := c.cache.Lookup(ctx, sess.CurrentQuestion)
	if errors.Is(err, answercache.ErrCacheMiss) {
		return nil, fmt.Errorf("%w: fingerprint %s not cached", ErrNoAnswerData, sess.CurrentQuestion)
	}
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// run is the per-step emission loop. startOffset and startOpened apply
// only to the first step when resuming: a step whose opening events were
// already delivered skips step-start and commands, while a step that
// paused before it ever opened re-enters the normal open path. Without
// the distinction, a pause landing at a step boundary would swallow the
// next step's step-start and every one of its render directives.
func (c *Coordinator) run(ctx context.Context, sessionID string, answer *datatypes.Answer, em Emitter, startStep, startOffset int, startOpened bool) error {
	for i := startStep; i < len(answer.Steps); i++ {
		step := answer.Steps[i]
		alreadyOpen := startOpened && i == startStep

		paused, err := c.pauseRequested(ctx, sessionID)
		if err != nil {
			return err
		}
		if paused {
			offset := 0
			if alreadyOpen {
				offset = startOffset
			}
			return c.halt(ctx, sessionID, i, offset, alreadyOpen, em)
		}

		if err := c.sessions.UpdateStreamingState(ctx, sessionID, true, i); err != nil {
			return err
		}

		offset := 0
		if alreadyOpen {
			offset = startOffset
		} else {
			if err := c.openStep(ctx, sessionID, step, em); err != nil {
				return err
			}
		}

		done, err := c.streamContent(ctx, sessionID, i, step, offset, em)
		if err != nil {
			return err
		}
		if !done {
			return nil // paused mid-content, already acknowledged
		}

		if err := em.Emit(datatypes.EventStepComplete, datatypes.StepCompletePayload{Step: step.Number}); err != nil {
			return fmt.Errorf("emitting step complete: %w", err)
		}
	}

	if err := c.sessions.UpdateStreamingState(ctx, sessionID, false, len(answer.Steps)); err != nil {
		return err
	}
	if err := em.Emit(datatypes.EventExplanationComplete, datatypes.ExplanationCompletePayload{
		TotalDuration:  answer.TotalDuration,
		StepsCompleted: len(answer.Steps),
	}); err != nil {
		return fmt.Errorf("emitting explanation complete: %w", err)
	}
	slog.Info("Explanation complete", "session_id", sessionID, "steps", len(answer.Steps))
	return nil
}

// openStep emits step-start and the step's render directives, each as an
// individual framed event with a small delay to pace client rendering.
func (c *Coordinator) openStep(ctx context.Context, sessionID string, step datatypes.Step, em Emitter) error {
	if err := em.Emit(datatypes.EventStepStart, datatypes.StepStartPayload{
		Step:  step.Number,
		Title: step.Title,
		Type:  step.ContentType,
	}); err != nil {
		return fmt.Errorf("emitting step start: %w", err)
	}
	for _, cmd := range step.CanvasCommands {
		if err := em.Emit(datatypes.EventCanvasCommand, datatypes.CommandPayload{Step: step.Number, Command: cmd}); err != nil {
			return fmt.Errorf("emitting canvas command: %w", err)
		}
		if err := c.sleep(ctx, c.cfg.CommandDelay); err != nil {
			return err
		}
	}
	for _, cmd := range step.ComponentCommands {
		if err := em.Emit(datatypes.EventComponentCommand, datatypes.CommandPayload{Step: step.Number, Command: cmd}); err != nil {
			return fmt.Errorf("emitting component command: %w", err)
		}
		if err := c.sleep(ctx, c.cfg.CommandDelay); err != nil {
			return err
		}
	}
	return nil
}

// streamContent emits a step's content in fixed-size character chunks,
// re-reading pause state before each one. Offsets are rune offsets into
// the raw content, applied uniformly on pause and resume. Returns false
// when the stream paused before the step finished.
func (c *Coordinator) streamContent(ctx context.Context, sessionID string, stepIndex int, step datatypes.Step, offset int, em Emitter) (bool, error) {
	content := []rune(step.Content)
	for pos := offset; pos < len(content); {
		paused, err := c.pauseRequested(ctx, sessionID)
		if err != nil {
			return false, err
		}
		if paused {
			return false, c.halt(ctx, sessionID, stepIndex, pos, true, em)
		}

		end := pos + c.cfg.ChunkSize
		if end > len(content) {
			end = len(content)
		}
		if err := em.Emit(datatypes.EventContentChunk, datatypes.ContentChunkPayload{
			Step:     step.Number,
			Chunk:    string(content[pos:end]),
			Position: pos,
			IsFinal:  end == len(content),
		}); err != nil {
			return false, fmt.Errorf("emitting content chunk: %w", err)
		}
		pos = end
		if pos < len(content) {
			if err := c.sleep(ctx, c.cfg.ChunkDelay); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

func (c *Coordinator) pauseRequested(ctx context.Context, sessionID string) (bool, error) {
	sess, err := c.sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return sess.IsPaused, nil
}

// halt persists the exact stop position and acknowledges the pause. The
// pause request only carried the intent; the coordinator is the one that
// knows how far emission actually got and whether the step's opening
// events went out. One write: a concurrent status read must never see
// is_paused and is_streaming both set.
func (c *Coordinator) halt(ctx context.Context, sessionID string, stepIndex, position int, stepOpened bool, em Emitter) error {
	if err := c.sessions.PauseStreamingAt(ctx, sessionID, stepIndex, position, stepOpened); err != nil {
		return err
	}
	slog.Info("Stream paused", "session_id", sessionID, "step", stepIndex, "position", position)
	if err := em.Emit(datatypes.EventStreamingPaused, datatypes.StreamingPausedPayload{
		Step:    stepIndex,
		Message: "Explanation paused. Send resume to continue.",
	}); err != nil {
		return fmt.Errorf("emitting pause notice: %w", err)
	}
	return nil
}
