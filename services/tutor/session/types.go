// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import "time"

// Session is the server-side record of one user's live interaction state.
// It is persisted as JSON under a TTL-bound key; no caller may assume a
// session outlives its TTL.
//
// Invariants maintained by the Manager:
//   - IsPaused and IsStreaming are never both true after any operation.
//   - PausePosition is only meaningful while IsPaused is true.
//   - CurrentStep is monotonically non-decreasing while streaming one
//     answer; it resets to 0 only when a new question starts.
type Session struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id,omitempty"`

	// CurrentQuestion holds the fingerprint of the question currently being
	// explained. Empty when no explanation has started.
	CurrentQuestion string `json:"current_question,omitempty"`

	// CurrentStep is the index of the step the coordinator is emitting.
	CurrentStep int `json:"current_step"`

	// PausePosition is the character offset into the current step's raw
	// content at which emission stopped.
	PausePosition int `json:"pause_position"`

	// StepOpened records whether the current step's step_start and command
	// events were already delivered. A pause can land before a step opens;
	// resume consults this to decide whether to re-send the opening events.
	StepOpened bool `json:"step_opened"`

	IsPaused    bool `json:"is_paused"`
	IsStreaming bool `json:"is_streaming"`

	// ConversationContext carries free-form key/value context supplied by
	// the client (topic, exam id, and similar).
	ConversationContext map[string]any `json:"conversation_context"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}

// Patch describes a partial update to a session. Nil fields are left
// untouched; the Manager merges the patch into the stored record
// (read-merge-write, never a blind overwrite). ConversationContext, when
// non-nil, replaces the stored map wholesale: the merge is shallow,
// top-level fields only.
type Patch struct {
	ConnectionID        *string
	CurrentQuestion     *string
	CurrentStep         *int
	PausePosition       *int
	StepOpened          *bool
	IsPaused            *bool
	IsStreaming         *bool
	ConversationContext map[string]any
}

func (p Patch) apply(s *Session) {
	if p.ConnectionID != nil {
		s.ConnectionID = *p.ConnectionID
	}
	if p.CurrentQuestion != nil {
		s.CurrentQuestion = *p.CurrentQuestion
	}
	if p.CurrentStep != nil {
		s.CurrentStep = *p.CurrentStep
	}
	if p.PausePosition != nil {
		s.PausePosition = *p.PausePosition
	}
	if p.StepOpened != nil {
		s.StepOpened = *p.StepOpened
	}
	if p.IsPaused != nil {
		s.IsPaused = *p.IsPaused
	}
	if p.IsStreaming != nil {
		s.IsStreaming = *p.IsStreaming
	}
	if p.ConversationContext != nil {
		s.ConversationContext = p.ConversationContext
	}
}
