// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the tutor service.
//
// This package contains middleware for authentication and request
// processing.
//
// # Authentication Flow
//
// The auth middleware extracts a bearer token from the Authorization header
// (or, for websocket upgrades, from the "token" query parameter since
// browsers cannot set headers on websocket handshakes), verifies it using
// the configured TokenVerifier, and stores the resulting Identity in the
// Gin context for downstream handlers.
//
// # Development Behavior
//
// When using NopVerifier (default), all requests are authenticated as
// "local-student". This lets the frontend run against a local backend
// without any authentication infrastructure.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrUnauthorized is returned by verifiers when a token is invalid.
var ErrUnauthorized = errors.New("unauthorized")

// Identity describes the authenticated caller of a request.
type Identity struct {
	// UserID is the stable identifier for the student.
	UserID string `json:"user_id"`

	// Email is the student's email, if the verifier knows it.
	Email string `json:"email,omitempty"`
}

// TokenVerifier validates bearer tokens and resolves them to an Identity.
//
// # Thread Safety
//
// Implementations must be safe for concurrent calls.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// NopVerifier accepts every request, including ones with no token at all,
// and reports a fixed local identity. It is the default for development.
type NopVerifier struct{}

func (NopVerifier) Verify(_ context.Context, _ string) (*Identity, error) {
	return &Identity{UserID: "local-student"}, nil
}

// StaticTokenVerifier accepts exactly one shared secret. Suitable for
// single-tenant deployments where the frontend holds the secret.
type StaticTokenVerifier struct {
	Token string
}

func (v StaticTokenVerifier) Verify(_ context.Context, token string) (*Identity, error) {
	if token == "" || token != v.Token {
		return nil, ErrUnauthorized
	}
	return &Identity{UserID: "static-token-user"}, nil
}

// =============================================================================
// Context Keys
// =============================================================================

// identityKey is the context key for storing the caller Identity.
const identityKey = "lumitutor_identity"

// =============================================================================
// Context Helpers
// =============================================================================

// SetIdentity stores the authenticated caller in the Gin context.
// Called by AuthMiddleware after successful verification.
func SetIdentity(c *gin.Context, id *Identity) {
	c.Set(identityKey, id)
}

// GetIdentity retrieves the authenticated caller from the Gin context.
// Returns nil if the request was not authenticated.
func GetIdentity(c *gin.Context) *Identity {
	if v, exists := c.Get(identityKey); exists {
		if id, ok := v.(*Identity); ok {
			return id
		}
	}
	return nil
}

// =============================================================================
// Auth Middleware
// =============================================================================

// AuthMiddleware creates a Gin middleware that authenticates requests.
//
// # Description
//
// Extracts the bearer token from the Authorization header, falling back
// to the "token" query parameter for websocket handshakes, verifies it
// with the provided TokenVerifier, and stores the resulting Identity in
// the context for downstream handlers.
//
// # Inputs
//
//   - verifier: TokenVerifier to validate tokens. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			// Websocket handshakes cannot carry headers from browsers.
			token = c.Query("token")
		}

		id, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "unauthorized",
				})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication failed",
			})
			return
		}

		SetIdentity(c, id)
		c.Next()
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// Parses the header expecting "Bearer <token>". Returns empty string if
// the header is missing or malformed. The "Bearer" prefix is
// case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
