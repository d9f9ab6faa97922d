// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumistudy/LumiTutor/services/tutor/answercache"
	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/middleware"
	"github.com/lumistudy/LumiTutor/services/tutor/observability"
	"github.com/lumistudy/LumiTutor/services/tutor/textutil"
)

const (
	questionMinLen = 3
	questionMaxLen = 1000
)

// errInvalidQuestion carries the validation failure message for the
// VALIDATION_ERROR code at both transports.
var errInvalidQuestion = errors.New("invalid question")

// validateQuestion enforces the question length bounds on the trimmed text.
func validateQuestion(question string) error {
	trimmed := strings.TrimSpace(question)
	if len(trimmed) < questionMinLen {
		return fmt.Errorf("%w: must be at least %d characters", errInvalidQuestion, questionMinLen)
	}
	if len(trimmed) > questionMaxLen {
		return fmt.Errorf("%w: must be at most %d characters", errInvalidQuestion, questionMaxLen)
	}
	return nil
}

// answerFor is the cache-or-generate path shared by the websocket and HTTP
// transports. Returns the answer and whether it came from the cache.
//
// A cache hit bumps the usage counter; a generated answer is inserted for
// the next student asking the same (normalized) question. Insert failures
// are logged but never fail the request: the student already has their
// answer.
func answerFor(ctx context.Context, deps *Deps, question string, followUp bool, priorQuestion string, priorContext map[string]any) (*datatypes.Answer, bool, error) {
	fingerprint := textutil.Fingerprint(question)

	answer, err := deps.Cache.Lookup(ctx, fingerprint)
	if err == nil {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordCacheLookup(true)
		}
		if err := deps.Cache.IncrementUsage(ctx, fingerprint); err != nil {
			slog.Warn("Failed to bump answer usage counter", "fingerprint", fingerprint, "error", err)
		}
		slog.Info("Answer cache hit", "fingerprint", fingerprint, "usage", answer.UsageCount+1)
		return answer, true, nil
	}
	if !errors.Is(err, answercache.ErrCacheMiss) {
		return nil, false, err
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordCacheLookup(false)
	}

	kind := "answer"
	start := time.Now()
	if followUp {
		kind = "follow_up"
		answer, err = deps.Generator.GenerateFollowUp(ctx, question, fingerprint, priorQuestion, priorContext)
	} else {
		answer, err = deps.Generator.GenerateAnswer(ctx, question, fingerprint)
	}
	if m := observability.DefaultMetrics; m != nil {
		m.RecordGeneration(kind, time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return nil, false, err
	}

	if err := deps.Cache.Insert(ctx, answer); err != nil {
		slog.Warn("Failed to cache generated answer", "fingerprint", fingerprint, "error", err)
	}
	return answer, false, nil
}

// askQuestionRequest is the HTTP body for the non-streaming ask endpoint.
type askQuestionRequest struct {
	Question  string         `json:"question" binding:"required,min=3,max=1000"`
	Context   map[string]any `json:"context"`
	SessionID string         `json:"session_id"`
}

// HandleAskQuestion answers a question over plain HTTP, without streaming.
// Clients that only need the final structured answer (grading tools,
// prefetchers) use this instead of the websocket.
func HandleAskQuestion(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req askQuestionRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": datatypes.CodeValidation, "error": err.Error()})
			return
		}
		if err := validateQuestion(req.Question); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": datatypes.CodeValidation, "error": err.Error()})
			return
		}

		userID := ""
		if id := middleware.GetIdentity(c); id != nil {
			userID = id.UserID
		}
		if !deps.allow(c.Request.Context(), userID, "ask_question") {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointAskQuestion, observability.ErrorCodeRateLimited)
			}
			c.JSON(http.StatusTooManyRequests, gin.H{"code": datatypes.CodeRateLimited, "error": "too many questions, slow down"})
			return
		}

		answer, hit, err := answerFor(c.Request.Context(), deps, req.Question, false, "", req.Context)
		if err != nil {
			slog.Error("Failed to answer question over HTTP", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointAskQuestion, observability.ErrorCodeGenerationFailed)
				m.RecordRequest(observability.EndpointAskQuestion, false)
			}
			c.JSON(http.StatusBadGateway, gin.H{"code": datatypes.CodeGenerationFailed, "error": "could not generate an answer, please try again"})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(observability.EndpointAskQuestion, true)
		}
		c.JSON(http.StatusOK, gin.H{"answer": answer, "cache_hit": hit})
	}
}
