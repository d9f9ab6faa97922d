// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumistudy/LumiTutor/services/tutor/datatypes"
	"github.com/lumistudy/LumiTutor/services/tutor/middleware"
	"github.com/lumistudy/LumiTutor/services/tutor/observability"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
)

// CreateSession opens a session for HTTP-only clients. Websocket clients
// get theirs implicitly on connect.
func CreateSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if id := middleware.GetIdentity(c); id != nil {
			userID = id.UserID
		}

		sessionID, err := deps.Sessions.Create(c.Request.Context(), userID, "")
		if err != nil {
			slog.Error("Failed to create session", "error", err)
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(observability.EndpointSession, observability.ErrorCodeInternal)
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": datatypes.CodeInternal, "error": "failed to create session"})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.SessionOpened()
			m.RecordRequest(observability.EndpointSession, true)
		}
		c.JSON(http.StatusCreated, gin.H{
			"session_id":  sessionID,
			"ttl_seconds": int(deps.Sessions.TTL().Seconds()),
		})
	}
}

// GetSession returns the live session record. Reading the status also
// slides the TTL, so a polling client keeps its session alive.
func GetSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		sess, err := deps.Sessions.Get(c.Request.Context(), sessionID)
		if err != nil {
			if errors.Is(err, session.ErrSessionExpired) {
				c.JSON(http.StatusNotFound, gin.H{"code": datatypes.CodeSessionExpired, "error": "session expired or not found"})
				return
			}
			slog.Error("Failed to load session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": datatypes.CodeInternal, "error": "failed to load session"})
			return
		}

		c.JSON(http.StatusOK, sess)
	}
}

// DeleteSession ends a session. Idempotent: deleting an already-gone
// session still returns success.
func DeleteSession(deps *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Param("sessionId")

		if err := deps.Sessions.End(c.Request.Context(), sessionID); err != nil {
			slog.Error("Failed to end session", "session_id", sessionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"code": datatypes.CodeInternal, "error": "failed to end session"})
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.SessionClosed()
		}
		c.JSON(http.StatusOK, gin.H{"status": "success", "deleted_session_id": sessionID})
	}
}
