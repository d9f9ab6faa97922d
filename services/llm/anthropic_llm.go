// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := readSecret("ANTHROPIC_API_KEY", "/run/secrets/anthropic_api_key")
	if apiKey == "" {
		slog.Warn("Anthropic API key is missing")
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}
	model := os.Getenv("CLAUDE_MODEL")
	if model == "" {
		model = "claude-3-5-sonnet-20240620"
		slog.Info("CLAUDE_MODEL not set, defaulting to", "model", model)
	}
	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
	}, nil
}

// Generate implements the LLMClient interface
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	messages := []Message{
		{Role: "system", Content: tutorPersona()},
		{Role: "user", Content: prompt},
	}
	return a.Chat(ctx, messages, params)
}

// Chat implements the LLMClient interface. System turns are lifted into
// the top-level system field as the API requires; JSONMode has no native
// switch on this API, so the caller's repair pass handles stray prose.
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	var systemParts []anthropic.MessageSystemPart
	var apiMessages []anthropic.Message

	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemParts = append(systemParts, anthropic.MessageSystemPart{
				Type: "text",
				Text: msg.Content,
			})
			continue
		}
		role := anthropic.RoleUser
		if strings.EqualFold(msg.Role, "assistant") {
			role = anthropic.RoleAssistant
		}
		apiMessages = append(apiMessages, anthropic.Message{
			Role:    role,
			Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Content)},
		})
	}

	maxTokens := 4096
	if params.MaxTokens != nil {
		maxTokens = *params.MaxTokens
	}
	req := anthropic.MessagesRequest{
		Model:     anthropic.Model(a.model),
		Messages:  apiMessages,
		MaxTokens: maxTokens,
	}
	if len(systemParts) > 0 {
		req.MultiSystem = systemParts
	}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.TopK != nil {
		req.TopK = params.TopK
	}
	if len(params.Stop) > 0 {
		req.StopSequences = params.Stop
	}

	slog.Debug("Sending request to Anthropic", "model", a.model, "num_messages", len(apiMessages))
	resp, err := a.client.CreateMessages(ctx, req)
	if err != nil {
		slog.Error("Anthropic API call failed", "error", err)
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText && block.Text != nil {
			text.WriteString(*block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text.String(), nil
}
