// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import "errors"

// ErrUnknownQuery is returned by Engine.Run when no query is registered
// under the requested name (§4.6, §7: "unknown query name ⇒ UnknownQuery").
var ErrUnknownQuery = errors.New("query: unknown query")

// ErrInvalidInput is returned when the supplied params fail validation:
// an out-of-range interval, or a required_filters mismatch (§4.6, §7).
var ErrInvalidInput = errors.New("query: invalid input")

// PermissionError is returned when the registered permission policy denies
// a request, distinguishing unauthenticated (HTTP 401) from
// authenticated-but-forbidden (HTTP 403) (§7).
type PermissionError struct {
	Query         string
	Authenticated bool
}

func (e *PermissionError) Error() string {
	if e.Authenticated {
		return "query: " + e.Query + ": forbidden"
	}
	return "query: " + e.Query + ": unauthenticated"
}
