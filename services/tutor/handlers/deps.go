// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the tutor's websocket and HTTP endpoints.
package handlers

import (
	"context"

	"github.com/lumistudy/LumiTutor/services/tutor/answercache"
	"github.com/lumistudy/LumiTutor/services/tutor/generate"
	"github.com/lumistudy/LumiTutor/services/tutor/ratelimit"
	"github.com/lumistudy/LumiTutor/services/tutor/session"
	"github.com/lumistudy/LumiTutor/services/tutor/streaming"
)

// Deps bundles the collaborators every handler needs. All fields must be
// non-nil except Limiter, which may be nil to disable rate limiting.
type Deps struct {
	Sessions    *session.Manager
	Cache       answercache.Gateway
	Generator   *generate.Gateway
	Coordinator *streaming.Coordinator
	Arbiter     *streaming.Arbiter
	Limiter     *ratelimit.Limiter
}

func (d *Deps) allow(ctx context.Context, userID, action string) bool {
	if d.Limiter == nil {
		return true
	}
	return d.Limiter.Allow(ctx, userID, action)
}
