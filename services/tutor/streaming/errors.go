// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package streaming

import "errors"

var (
	// ErrNoAnswerData is returned when a resume cannot reconstruct the
	// answer being streamed: the session carries no fingerprint, or the
	// cache lookup for it missed. The session stays paused.
	ErrNoAnswerData = errors.New("no answer data to resume from")

	// ErrNotPaused is returned when a resume arrives for a session that
	// is not paused.
	ErrNotPaused = errors.New("session is not paused")

	// ErrAlreadyStreaming is returned when a new stream is requested for
	// a session that is already mid-stream.
	ErrAlreadyStreaming = errors.New("session is already streaming")
)
