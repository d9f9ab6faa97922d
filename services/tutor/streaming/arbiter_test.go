// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/generate"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
)

type stubGenerator struct {
	clarification *generate.Clarification
	err           error
	gotQuestion   string
	gotMode       string
	calls         int
}

func (s *stubGenerator) GenerateClarification(_ context.Context, question, _, mode string) (*generate.Clarification, error) {
	s.calls++
	s.gotQuestion = question
	s.gotMode = mode
	return s.clarification, s.err
}

func newArbiterRig(t *testing.T) (*Arbiter, *session.Manager, *stubGenerator) {
	t.Helper()
	store, err := session.NewStore(session.StoreTypeMemory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	mgr := session.NewManager(store, time.Minute)
	gen := &stubGenerator{
		clarification: &generate.Clarification{Mode: generate.ModeBrief, Message: "short answer"},
	}
	return NewArbiter(mgr, gen), mgr, gen
}

func TestClarifyNoSession(t *testing.T) {
	arb, _, _ := newArbiterRig(t)
	err := arb.Clarify(context.Background(), ClarifyRequest{Question: "why"}, &captureEmitter{})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestClarifyUnboundConnection(t *testing.T) {
	arb, _, _ := newArbiterRig(t)
	err := arb.Clarify(context.Background(), ClarifyRequest{ConnectionID: "c9", Question: "why"}, &captureEmitter{})
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestClarifyExpiredSession(t *testing.T) {
	arb, _, _ := newArbiterRig(t)
	err := arb.Clarify(context.Background(), ClarifyRequest{SessionID: "gone", Question: "why"}, &captureEmitter{})
	assert.ErrorIs(t, err, session.ErrSessionExpired)
}

func TestClarifyBriefPausesSession(t *testing.T) {
	ctx := context.Background()
	arb, mgr, gen := newArbiterRig(t)

	sid, err := mgr.Create(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateStreamingState(ctx, sid, true, 0))

	em := &captureEmitter{}
	req := ClarifyRequest{SessionID: sid, Question: "what does that mean", Mode: generate.ModeBrief}
	require.NoError(t, arb.Clarify(ctx, req, em))

	assert.Equal(t, "what does that mean", gen.gotQuestion)

	sess, err := mgr.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsPaused, "clarification must pause the main explanation")
	assert.False(t, sess.IsStreaming)

	require.Len(t, em.events, 1)
	assert.Equal(t, datatypes.EventClarificationMessage, em.events[0].name)
	payload := em.events[0].data.(datatypes.ClarificationMessagePayload)
	assert.Equal(t, "short answer", payload.Message)
	assert.Equal(t, generate.ModeBrief, payload.Mode)
}

func TestClarifyDoesNotAutoResume(t *testing.T) {
	ctx := context.Background()
	arb, mgr, _ := newArbiterRig(t)

	sid, err := mgr.Create(ctx, "u1", "")
	require.NoError(t, err)
	require.NoError(t, mgr.PauseStreaming(ctx, sid, 42))

	require.NoError(t, arb.Clarify(ctx, ClarifyRequest{SessionID: sid, Question: "q"}, &captureEmitter{}))

	sess, err := mgr.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsPaused, "session stays paused until an explicit resume")
	assert.Equal(t, 42, sess.PausePosition, "an already-paused position is not clobbered")
}

func TestClarifyResolvesViaConnectionBinding(t *testing.T) {
	ctx := context.Background()
	arb, mgr, gen := newArbiterRig(t)

	sid, err := mgr.Create(ctx, "u1", "conn-7")
	require.NoError(t, err)
	require.NoError(t, mgr.BindConnection(ctx, "conn-7", sid))

	em := &captureEmitter{}
	require.NoError(t, arb.Clarify(ctx, ClarifyRequest{ConnectionID: "conn-7", Question: "q"}, em))
	assert.Equal(t, 1, gen.calls)

	sess, err := mgr.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsPaused)
}

func TestClarifyDetailedEmitsStepSequence(t *testing.T) {
	ctx := context.Background()
	arb, mgr, gen := newArbiterRig(t)
	gen.clarification = &generate.Clarification{
		Mode:              generate.ModeDetailed,
		EstimatedDuration: 20,
		Steps: []datatypes.Step{
			{Number: 1, Title: "First", Content: "one", ContentType: datatypes.ContentText},
			{Number: 2, Title: "Second", Content: "two", ContentType: datatypes.ContentText},
			{Number: 3, Title: "Third", Content: "three", ContentType: datatypes.ContentText},
		},
	}

	sid, err := mgr.Create(ctx, "u1", "")
	require.NoError(t, err)

	em := &captureEmitter{}
	req := ClarifyRequest{SessionID: sid, Question: "q", Mode: generate.ModeDetailed}
	require.NoError(t, arb.Clarify(ctx, req, em))

	names := em.names()
	assert.Equal(t, []string{
		datatypes.EventClarificationStep,
		datatypes.EventClarificationStep,
		datatypes.EventClarificationStep,
		datatypes.EventClarificationComplete,
	}, names)

	complete := em.events[3].data.(datatypes.ClarificationCompletePayload)
	assert.Equal(t, 3, complete.TotalSteps)
	assert.Equal(t, 20, complete.EstimatedDuration)
}

func TestClarifyGenerationFailure(t *testing.T) {
	ctx := context.Background()
	arb, mgr, gen := newArbiterRig(t)
	gen.clarification = nil
	gen.err = generate.ErrGenerationFailed

	sid, err := mgr.Create(ctx, "u1", "")
	require.NoError(t, err)

	em := &captureEmitter{}
	err = arb.Clarify(ctx, ClarifyRequest{SessionID: sid, Question: "q"}, em)
	assert.ErrorIs(t, err, generate.ErrGenerationFailed)
	assert.Empty(t, em.events)

	sess, err := mgr.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsPaused, "session stays paused even when generation fails")
}

// Interruption mid-stream must not lose the main stream position: pause
// at step index 0 offset 30 via an interrupt, clarify briefly, then an
// explicit resume continues from offset 30, not from the top.
func TestInterruptionPreservesStreamPosition(t *testing.T) {
	ctx := context.Background()
	coord, mgr, _ := newTestRig(t, 30)
	gen := &stubGenerator{
		clarification: &generate.Clarification{Mode: generate.ModeBrief, Message: "brief answer"},
	}
	arb := NewArbiter(mgr, gen)

	answer := &datatypes.Answer{
		ID:          "a2",
		Fingerprint: "fp-two-step",
		Steps: []datatypes.Step{
			{Number: 1, Title: "One", Content: "This first step has well over thirty characters of content in it.", ContentType: datatypes.ContentText},
			{Number: 2, Title: "Two", Content: "Second step content.", ContentType: datatypes.ContentText},
		},
		TotalDuration: 20,
	}

	sid, err := mgr.Create(ctx, "u1", "conn-1")
	require.NoError(t, err)
	require.NoError(t, mgr.BindConnection(ctx, "conn-1", sid))

	em := &captureEmitter{}
	em.onEmit = func(name string, data any) {
		if name != datatypes.EventContentChunk {
			return
		}
		chunk := data.(datatypes.ContentChunkPayload)
		if chunk.Step == 1 && chunk.Position == 0 {
			req := ClarifyRequest{ConnectionID: "conn-1", Question: "wait, what?", Mode: generate.ModeBrief}
			require.NoError(t, arb.Clarify(ctx, req, em))
		}
	}
	require.NoError(t, coord.Stream(ctx, sid, answer, em))

	sess, err := mgr.Get(ctx, sid)
	require.NoError(t, err)
	assert.True(t, sess.IsPaused)
	assert.Equal(t, 0, sess.CurrentStep)
	assert.Equal(t, 30, sess.PausePosition)
	assert.Contains(t, em.names(), datatypes.EventClarificationMessage)

	em2 := &captureEmitter{}
	require.NoError(t, coord.Resume(ctx, sid, answer, em2))

	resumed := em2.events[0].data.(datatypes.ResumedPayload)
	assert.Equal(t, 0, resumed.Step)
	assert.Equal(t, 30, resumed.Position)

	step1 := answer.Steps[0].Content
	assert.Equal(t, step1[30:], chunksForStep(t, em2.events, 1), "resume must continue from offset 30, not restart")
	assert.Equal(t, answer.Steps[1].Content, chunksForStep(t, em2.events, 2))
}
