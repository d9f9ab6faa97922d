// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package streaming

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/generate"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
)

// ClarificationGenerator is the slice of the generation gateway the
// arbiter needs.
type ClarificationGenerator interface {
	GenerateClarification(ctx context.Context, question, stepContent, mode string) (*generate.Clarification, error)
}

// ClarifyRequest carries one interruption. SessionID may be empty, in
// which case the arbiter falls back to the connection binding.
type ClarifyRequest struct {
	SessionID    string
	ConnectionID string
	Question     string
	Mode         string
	StepContent  string
}

// Arbiter handles clarification requests that arrive while a main
// explanation is streaming, without losing the state needed to resume it.
//
// # Description
//
//	The arbiter pauses the session (idempotently), asks the generation
//	gateway for a brief or detailed clarification, and emits the result.
//	It never auto-resumes: the main explanation stays paused until the
//	client explicitly sends a resume, which re-enters the coordinator's
//	resume path with the preserved step and offset intact.
type Arbiter struct {
	sessions  *session.Manager
	generator ClarificationGenerator
}

// NewArbiter wires an arbiter over the session manager and a
// clarification source.
func NewArbiter(sessions *session.Manager, generator ClarificationGenerator) *Arbiter {
	return &Arbiter{sessions: sessions, generator: generator}
}

// Clarify resolves the session, pauses it, and emits the clarification.
//
// # Outputs
//
//	error - session.ErrNoSession when no session id resolves,
//	        session.ErrSessionExpired when the resolved id is gone,
//	        generate.ErrGenerationFailed when the gateway gives up.
func (a *Arbiter) Clarify(ctx context.Context, req ClarifyRequest, em Emitter) error {
	sessionID, err := a.resolveSession(ctx, req)
	if err != nil {
		return err
	}

	sess, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	// Idempotent pause at the session's current position. If the streaming
	// loop is still running it will observe the flag at its next yield
	// point and overwrite the position with the exact offset it reached.
	if !sess.IsPaused {
		if err := a.sessions.PauseStreaming(ctx, sessionID, sess.PausePosition); err != nil {
			return err
		}
	}

	clarification, err := a.generator.GenerateClarification(ctx, req.Question, req.StepContent, req.Mode)
	if err != nil {
		return err
	}
	slog.Info("Clarification generated", "session_id", sessionID, "mode", clarification.Mode, "deferred", clarification.IsDeferred)

	return a.emit(clarification, em)
}

func (a *Arbiter) resolveSession(ctx context.Context, req ClarifyRequest) (string, error) {
	if req.SessionID != "" {
		return req.SessionID, nil
	}
	if req.ConnectionID == "" {
		return "", session.ErrNoSession
	}
	return a.sessions.ResolveConnection(ctx, req.ConnectionID)
}

func (a *Arbiter) emit(c *generate.Clarification, em Emitter) error {
	if c.Mode == generate.ModeDetailed {
		for _, step := range c.Steps {
			if err := em.Emit(datatypes.EventClarificationStep, datatypes.ClarificationStepPayload{
				Step:              step.Number,
				Title:             step.Title,
				Content:           step.Content,
				Type:              step.ContentType,
				CanvasCommands:    step.CanvasCommands,
				ComponentCommands: step.ComponentCommands,
			}); err != nil {
				return fmt.Errorf("emitting clarification step: %w", err)
			}
		}
		if err := em.Emit(datatypes.EventClarificationComplete, datatypes.ClarificationCompletePayload{
			Mode:              c.Mode,
			TotalSteps:        len(c.Steps),
			EstimatedDuration: c.EstimatedDuration,
		}); err != nil {
			return fmt.Errorf("emitting clarification complete: %w", err)
		}
		return nil
	}

	if err := em.Emit(datatypes.EventClarificationMessage, datatypes.ClarificationMessagePayload{
		Mode:       c.Mode,
		Message:    c.Message,
		IsDeferred: c.IsDeferred,
		Reason:     c.Reason,
	}); err != nil {
		return fmt.Errorf("emitting clarification message: %w", err)
	}
	return nil
}
