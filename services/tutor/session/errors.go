// Copyright (C) 2026 Lumi Study (dev@lumistudy.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import "errors"

var (
	// ErrSessionExpired is returned when a referenced session id is absent
	// from the store, either because its TTL elapsed or because it never
	// existed. Callers at the transport boundary translate this into a
	// user-visible "please restart" signal; the session is never silently
	// recreated.
	ErrSessionExpired = errors.New("session expired or not found")

	// ErrNoSession is returned when a connection attempts a session-scoped
	// operation and no session id can be resolved for it. Distinct from
	// ErrSessionExpired because it indicates a client protocol error rather
	// than timing.
	ErrNoSession = errors.New("no session associated with connection")

	// ErrInvalidStoreType is returned by NewStore for an unknown driver.
	ErrInvalidStoreType = errors.New("invalid session store type")

	// ErrInvalidConfig is returned by NewStore when a driver's required
	// options are missing (e.g. redis without a client).
	ErrInvalidConfig = errors.New("invalid session store config")
)
