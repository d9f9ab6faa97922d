// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package generate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumistudy/LumiTutor/services/llm"
)

// scriptedClient returns canned responses in order, cycling the last one.
type scriptedClient struct {
	responses []string
	errs      []error
	calls     int
	lastPrompt string
	lastParams llm.GenerationParams
}

func (s *scriptedClient) Generate(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	s.lastPrompt = prompt
	s.lastParams = params
	var err error
	if idx < len(s.errs) {
		err = s.errs[idx]
	}
	return s.responses[idx], err
}

func (s *scriptedClient) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return s.Generate(ctx, messages[len(messages)-1].Content, params)
}

const goodResponse = `{
  "steps": [
    {"step_number": 1, "title": "Setup", "content": "Write down what you know.", "content_type": "text"},
    {"step_number": 2, "title": "Solve", "content": "Apply the formula.", "content_type": "math"}
  ],
  "total_duration": 25
}`

func TestGenerateAnswerHappyPath(t *testing.T) {
	client := &scriptedClient{responses: []string{goodResponse}}
	gw := NewGateway(client, "openai")

	answer, err := gw.GenerateAnswer(context.Background(), "how do I solve for x", "fp123")
	require.NoError(t, err)

	assert.Equal(t, "fp123", answer.Fingerprint)
	assert.Equal(t, "how do I solve for x", answer.QuestionText)
	assert.Equal(t, "openai", answer.GeneratedBy)
	assert.Equal(t, 25, answer.TotalDuration)
	require.Len(t, answer.Steps, 2)
	assert.Equal(t, 1, answer.Steps[0].Number)
	assert.NotEmpty(t, answer.ID)
	assert.True(t, client.lastParams.JSONMode, "answer generation must request JSON mode")
}

func TestGenerateAnswerRepairsFencedOutput(t *testing.T) {
	client := &scriptedClient{responses: []string{"Here you go:\n```json\n" + goodResponse + "\n```"}}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	require.NoError(t, err)
	require.Len(t, answer.Steps, 2)
	assert.Equal(t, 1, client.calls, "repair must not consume a retry")
}

func TestGenerateAnswerRetriesThenSucceeds(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"total nonsense with no braces",
		goodResponse,
	}}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
	require.Len(t, answer.Steps, 2)
}

func TestGenerateAnswerExhaustsRetries(t *testing.T) {
	client := &scriptedClient{responses: []string{"no json here"}}
	gw := NewGateway(client, "local")

	_, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 3, client.calls)
}

func TestGenerateAnswerRejectsBadOrdinals(t *testing.T) {
	bad := `{"steps": [{"step_number": 2, "title": "t", "content": "c", "content_type": "text"}], "total_duration": 5}`
	client := &scriptedClient{responses: []string{bad}}
	gw := NewGateway(client, "local")

	_, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestGenerateAnswerNumbersUnnumberedSteps(t *testing.T) {
	unnumbered := `{"steps": [
		{"title": "a", "content": "first", "content_type": "text"},
		{"title": "b", "content": "second", "content_type": "text"}
	], "total_duration": 10}`
	client := &scriptedClient{responses: []string{unnumbered}}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	require.NoError(t, err)
	assert.Equal(t, 1, answer.Steps[0].Number)
	assert.Equal(t, 2, answer.Steps[1].Number)
}

func TestGenerateAnswerEstimatesMissingDuration(t *testing.T) {
	noDuration := `{"steps": [{"step_number": 1, "title": "t", "content": "short", "content_type": "text"}]}`
	client := &scriptedClient{responses: []string{noDuration}}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, answer.TotalDuration, 5)
}

func TestGenerateAnswerModelError(t *testing.T) {
	client := &scriptedClient{
		responses: []string{"", goodResponse},
		errs:      []error{errors.New("backend down"), nil},
	}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateAnswer(context.Background(), "q", "fp")
	require.NoError(t, err)
	require.Len(t, answer.Steps, 2)
}

func TestGenerateFollowUpCarriesContext(t *testing.T) {
	client := &scriptedClient{responses: []string{goodResponse}}
	gw := NewGateway(client, "local")

	answer, err := gw.GenerateFollowUp(context.Background(), "but why", "fp2", "what is gravity", map[string]any{"topic": "physics"})
	require.NoError(t, err)
	assert.Equal(t, "what is gravity", answer.RelatedQuestionID)
	assert.Contains(t, client.lastPrompt, "what is gravity")
	assert.Contains(t, client.lastPrompt, "physics")
}

func TestGenerateClarificationBriefDefault(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"message": "Because blue light scatters more.", "is_deferred": false, "reason": ""}`}}
	gw := NewGateway(client, "local")

	c, err := gw.GenerateClarification(context.Background(), "why blue", "step content", "elaborate")
	require.NoError(t, err)
	assert.Equal(t, ModeBrief, c.Mode, "unknown mode must fall back to brief")
	assert.Equal(t, "Because blue light scatters more.", c.Message)
	assert.False(t, c.IsDeferred)
	assert.Empty(t, c.Steps)
}

func TestGenerateClarificationBriefDeferred(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"message": "Good question, hold that thought.", "is_deferred": true, "reason": "needs the full derivation first"}`}}
	gw := NewGateway(client, "local")

	c, err := gw.GenerateClarification(context.Background(), "why does the proof work", "", ModeBrief)
	require.NoError(t, err)
	assert.True(t, c.IsDeferred)
	assert.Equal(t, "needs the full derivation first", c.Reason)
}

func TestGenerateClarificationDetailed(t *testing.T) {
	detailed := `{"steps": [
		{"step_number": 1, "title": "Recall", "content": "Start from the definition.", "content_type": "text"},
		{"step_number": 2, "title": "Apply", "content": "Substitute the values.", "content_type": "math"},
		{"step_number": 3, "title": "Check", "content": "Verify the units.", "content_type": "text"}
	], "total_duration": 30}`
	client := &scriptedClient{responses: []string{detailed}}
	gw := NewGateway(client, "local")

	c, err := gw.GenerateClarification(context.Background(), "why", "", ModeDetailed)
	require.NoError(t, err)
	assert.Equal(t, ModeDetailed, c.Mode)
	require.Len(t, c.Steps, 3)
	assert.Equal(t, 30, c.EstimatedDuration)
	assert.Empty(t, c.Message)
}

func TestGenerateClarificationDetailedClampsExtraSteps(t *testing.T) {
	oversized := `{"steps": [
		{"step_number": 1, "title": "a", "content": "one", "content_type": "text"},
		{"step_number": 2, "title": "b", "content": "two", "content_type": "text"},
		{"step_number": 3, "title": "c", "content": "three", "content_type": "text"},
		{"step_number": 4, "title": "d", "content": "four", "content_type": "text"},
		{"step_number": 5, "title": "e", "content": "five", "content_type": "text"},
		{"step_number": 6, "title": "f", "content": "six", "content_type": "text"},
		{"step_number": 7, "title": "g", "content": "seven", "content_type": "text"}
	], "total_duration": 70}`
	client := &scriptedClient{responses: []string{oversized}}
	gw := NewGateway(client, "local")

	c, err := gw.GenerateClarification(context.Background(), "why", "", ModeDetailed)
	require.NoError(t, err)
	require.Len(t, c.Steps, 5)
	assert.Equal(t, 5, c.Steps[4].Number, "kept steps stay in their original order")
	assert.Equal(t, 25, c.EstimatedDuration, "duration re-estimated from the kept steps only")
}

func TestGenerateClarificationDetailedRejectsTooFewSteps(t *testing.T) {
	thin := `{"steps": [
		{"step_number": 1, "title": "a", "content": "one", "content_type": "text"},
		{"step_number": 2, "title": "b", "content": "two", "content_type": "text"}
	], "total_duration": 10}`
	client := &scriptedClient{responses: []string{thin}}
	gw := NewGateway(client, "local")

	_, err := gw.GenerateClarification(context.Background(), "why", "", ModeDetailed)
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.Equal(t, 3, client.calls, "a too-short walkthrough burns the attempt")
}

func TestGenerateClarificationRetriesBadOutput(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"not json at all",
		`{"message": "short answer", "is_deferred": false}`,
	}}
	gw := NewGateway(client, "local")

	c, err := gw.GenerateClarification(context.Background(), "q", "", ModeBrief)
	require.NoError(t, err)
	assert.Equal(t, "short answer", c.Message)
	assert.Equal(t, 2, client.calls)
}

func TestWaitingPhraseCycles(t *testing.T) {
	gw := NewGateway(&scriptedClient{responses: []string{""}}, "local")
	seen := make(map[string]bool)
	for i := 0; i < len(waitingPhrases); i++ {
		seen[gw.WaitingPhrase()] = true
	}
	assert.Len(t, seen, len(waitingPhrases))
}
