// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// LlamaCppClient talks to a llama.cpp server's /completion endpoint. This
// is the dev-friendly default backend: no API key, no chat templating.
type LlamaCppClient struct {
	httpClient *http.Client
	baseURL    string
}

type llamaCppPayload struct {
	Prompt      string   `json:"prompt"`
	NPredict    int      `json:"n_predict"`
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type llamaCppResp struct {
	Content string `json:"content"`
}

func NewLlamaCppClient() (*LlamaCppClient, error) {
	baseURL := os.Getenv("LLM_SERVICE_URL_BASE")
	if baseURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL_BASE environment variable not set")
	}
	return &LlamaCppClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Generate implements the LLMClient interface
func (l *LlamaCppClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	completionURL := l.baseURL + "/completion"
	payload := llamaCppPayload{Prompt: prompt}
	if params.MaxTokens != nil {
		payload.NPredict = *params.MaxTokens
	} else {
		payload.NPredict = 2048
	}
	if params.Temperature != nil {
		payload.Temperature = params.Temperature
	} else {
		defaultTemperature := float32(0.2)
		payload.Temperature = &defaultTemperature
	}
	if params.TopK != nil {
		payload.TopK = params.TopK
	} else {
		defaultTopK := 20
		payload.TopK = &defaultTopK
	}
	if params.TopP != nil {
		payload.TopP = params.TopP
	} else {
		defaultTopP := float32(0.9)
		payload.TopP = &defaultTopP
	}
	if len(params.Stop) > 0 {
		payload.Stop = params.Stop
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal llama.cpp payload: %w", err)
	}
	slog.Debug("Calling llama.cpp", "url", completionURL)

	req, err := http.NewRequestWithContext(ctx, "POST", completionURL, bytes.NewBuffer(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create llama.cpp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llama.cpp request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read llama.cpp response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llama.cpp failed with status %d: %s", resp.StatusCode, string(body))
	}

	var out llamaCppResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("failed to parse llama.cpp response: %w", err)
	}
	return out.Content, nil
}

// Chat implements the LLMClient interface by flattening the exchange into
// a single prompt, since the /completion endpoint is not chat-aware.
func (l *LlamaCppClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	var prompt strings.Builder
	for _, msg := range messages {
		prompt.WriteString(strings.ToUpper(msg.Role[:1]) + msg.Role[1:])
		prompt.WriteString(": ")
		prompt.WriteString(msg.Content)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("Assistant: ")
	return l.Generate(ctx, prompt.String(), params)
}
