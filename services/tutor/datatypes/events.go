// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Inbound websocket event names.
const (
	EventAskQuestion = "ask_question"
	EventPause       = "pause_explanation"
	EventResume      = "resume_explanation"
	EventInterrupt   = "interrupt_explanation"
	EventAskFollowUp = "ask_follow_up_question"
	EventEndSession  = "end_session"
)

// Outbound websocket event names.
const (
	EventConnected             = "connection_established"
	EventExplanationStart      = "explanation_start"
	EventStepStart             = "step_start"
	EventCanvasCommand         = "canvas_command"
	EventComponentCommand      = "component_command"
	EventContentChunk          = "content_chunk"
	EventStepComplete          = "step_complete"
	EventStreamingPaused       = "streaming_paused"
	EventExplanationResumed    = "explanation_resumed"
	EventExplanationComplete   = "explanation_complete"
	EventWaitingPhrase         = "waiting_phrase"
	EventClarificationMessage  = "clarification_message"
	EventClarificationStep     = "clarification_step"
	EventClarificationComplete = "clarification_complete"
	EventClarificationOptions  = "clarification_options"
	EventSessionEnded          = "session_ended"
	EventError                 = "error"
)

// Error codes carried on the error event and HTTP error responses.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeSessionExpired   = "SESSION_EXPIRED"
	CodeNoSession        = "NO_SESSION"
	CodeGenerationFailed = "GENERATION_FAILED"
	CodeStreamingError   = "STREAMING_ERROR"
	CodePauseError       = "PAUSE_ERROR"
	CodeResumeError      = "RESUME_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// WSEnvelope frames every websocket message in both directions.
type WSEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WSRequest is the inbound payload shape shared by all client events.
// Fields not relevant to an event are left empty.
type WSRequest struct {
	Question              string         `json:"question,omitempty"`
	Context               map[string]any `json:"context,omitempty"`
	ClarificationQuestion string         `json:"clarification_question,omitempty"`
	CurrentContext        map[string]any `json:"current_context,omitempty"`
	ResponseMode          string         `json:"response_mode,omitempty"`
	SessionID             string         `json:"session_id,omitempty"`
}

// ConnectedPayload acknowledges a new websocket session.
type ConnectedPayload struct {
	SessionID string   `json:"session_id"`
	UserInfo  UserInfo `json:"user_info"`
}

// UserInfo identifies the authenticated student on the connection ack.
type UserInfo struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// ExplanationStartPayload announces the streaming of a full answer.
type ExplanationStartPayload struct {
	QuestionHash      string `json:"question_hash"`
	TotalSteps        int    `json:"total_steps"`
	EstimatedDuration int    `json:"estimated_duration"`
}

// StepStartPayload announces the beginning of one step.
type StepStartPayload struct {
	Step  int         `json:"step"`
	Title string      `json:"title"`
	Type  ContentType `json:"type"`
}

// ContentChunkPayload carries one slice of step content. Position is the
// character offset of the chunk within the step's raw content and is the
// unit used for pause bookkeeping.
type ContentChunkPayload struct {
	Step     int    `json:"step"`
	Chunk    string `json:"chunk"`
	Position int    `json:"position"`
	IsFinal  bool   `json:"is_final"`
}

// CommandPayload frames one render directive for a step. Canvas and
// component commands travel as individual events so the client can pace
// its rendering.
type CommandPayload struct {
	Step    int     `json:"step"`
	Command Command `json:"command"`
}

// StepCompletePayload closes one step.
type StepCompletePayload struct {
	Step int `json:"step"`
}

// ExplanationCompletePayload closes the whole explanation.
type ExplanationCompletePayload struct {
	TotalDuration  int `json:"total_duration"`
	StepsCompleted int `json:"steps_completed"`
}

// StreamingPausedPayload reports the step at which streaming stopped.
type StreamingPausedPayload struct {
	Step    int    `json:"step"`
	Message string `json:"message"`
}

// ResumedPayload reports where streaming restarts.
type ResumedPayload struct {
	Step     int `json:"step"`
	Position int `json:"position"`
}

// WaitingPhrasePayload keeps the client engaged during generation.
type WaitingPhrasePayload struct {
	Phrase        string `json:"phrase"`
	Category      string `json:"category,omitempty"`
	EstimatedTime int    `json:"estimated_time,omitempty"`
}

// ClarificationMessagePayload is a brief inline answer to an interruption.
// IsDeferred signals that the full answer was deliberately put off until
// after the main explanation; the flag is informational only.
type ClarificationMessagePayload struct {
	Mode       string `json:"mode"`
	Message    string `json:"message"`
	IsDeferred bool   `json:"is_deferred"`
	Reason     string `json:"reason,omitempty"`
}

// ClarificationStepPayload is one step of a detailed clarification. The
// shape mirrors explanation steps so clients render both the same way.
type ClarificationStepPayload struct {
	Step              int         `json:"step"`
	Title             string      `json:"title"`
	Content           string      `json:"content"`
	Type              ContentType `json:"type"`
	CanvasCommands    []Command   `json:"canvas_commands,omitempty"`
	ComponentCommands []Command   `json:"component_commands,omitempty"`
}

// ClarificationCompletePayload closes a detailed clarification sequence.
type ClarificationCompletePayload struct {
	Mode              string `json:"mode"`
	TotalSteps        int    `json:"total_steps"`
	EstimatedDuration int    `json:"estimated_duration"`
}

// ClarificationOptionsPayload offers the client next actions after a
// clarification, typically "continue" and "ask another question".
type ClarificationOptionsPayload struct {
	Options []string `json:"options"`
}

// SessionEndedPayload acknowledges session teardown.
type SessionEndedPayload struct {
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload is the single error shape for both transports.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
