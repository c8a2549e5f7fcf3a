// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import "context"

// Decision is what a PermissionFunc returns for one query invocation.
type Decision struct {
	Allowed       bool
	Authenticated bool
}

// PermissionFunc is consulted before dispatch (§4.6: "a pluggable policy
// function receives (query_name, params) and returns an allow/deny
// capability"). The context carries whatever the caller's HTTP layer
// stashed about the requester (STATS_PERMISSION_FACTORY is the configured
// default; callers may override per-query).
type PermissionFunc func(ctx context.Context, queryName string, params map[string]interface{}) Decision

// AllowAll is the default policy (§6: "default allow-all unless overridden").
func AllowAll(context.Context, string, map[string]interface{}) Decision {
	return Decision{Allowed: true, Authenticated: true}
}
