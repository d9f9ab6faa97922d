// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sessionRouter(deps *Deps) *gin.Engine {
	router := gin.New()
	router.POST("/v1/sessions", CreateSession(deps))
	router.GET("/v1/sessions/:sessionId", GetSession(deps))
	router.DELETE("/v1/sessions/:sessionId", DeleteSession(deps))
	return router
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	deps := newTestDeps(t, &countingLLM{output: answerJSON})
	router := sessionRouter(deps)

	// Create
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/v1/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		SessionID  string `json:"session_id"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.SessionID)
	assert.Equal(t, 60, created.TTLSeconds)

	// Read back
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sessions/"+created.SessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var sess struct {
		SessionID   string `json:"session_id"`
		IsStreaming bool   `json:"is_streaming"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, created.SessionID, sess.SessionID)
	assert.False(t, sess.IsStreaming)

	// Delete
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/sessions/"+created.SessionID, nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Gone now
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/v1/sessions/"+created.SessionID, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "SESSION_EXPIRED")
}

func TestDeleteSessionIdempotent(t *testing.T) {
	deps := newTestDeps(t, &countingLLM{output: answerJSON})
	router := sessionRouter(deps)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/sessions/never-existed", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHealthCheck(t *testing.T) {
	router := gin.New()
	router.GET("/health", HealthCheck)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}
