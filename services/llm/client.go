// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm abstracts the model backends used for answer generation.
// Backends are selected at startup via LLM_BACKEND_TYPE and hidden behind
// the LLMClient interface so the rest of the service never sees which
// vendor is in play.
package llm

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// Message is one turn of a chat exchange. Role is "system", "user", or
// "assistant".
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the sampling knobs shared by all backends. Nil
// pointers mean "use the backend default". JSONMode asks the backend to
// constrain output to a single JSON object where the vendor supports it;
// backends without native support ignore it and the caller repairs the
// output instead.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
	JSONMode    bool     `json:"json_mode"`
}

// LLMClient is the standard interface for any model backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
}

// Backend names accepted by NewClient (and LLM_BACKEND_TYPE).
const (
	BackendLocal     = "local"
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAnthropic = "anthropic"
)

// NewClient instantiates the backend named by backendType. Each backend
// reads its own credentials and endpoint from the environment; a missing
// credential is a startup error, not a runtime one.
func NewClient(backendType string) (LLMClient, error) {
	switch strings.ToLower(backendType) {
	case BackendLocal:
		return NewLlamaCppClient()
	case BackendOllama:
		return NewOllamaClient()
	case BackendOpenAI:
		return NewOpenAIClient()
	case BackendAnthropic:
		return NewAnthropicClient()
	default:
		return nil, fmt.Errorf("unknown LLM backend type %q", backendType)
	}
}

// tutorPersona returns the system prompt persona. TUTOR_PERSONA_PROMPT
// overrides the built-in default.
func tutorPersona() string {
	if p := os.Getenv("TUTOR_PERSONA_PROMPT"); p != "" {
		return p
	}
	return "You are a patient, encouraging tutor. Explain concepts step by step " +
		"in plain language a student can follow, and keep each step focused on " +
		"one idea."
}

// readSecret loads a credential from the environment, falling back to a
// container secret file.
func readSecret(envVar, secretPath string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	if content, err := os.ReadFile(secretPath); err == nil {
		return strings.TrimSpace(string(content))
	}
	return ""
}
