// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package events defines the canonical raw-event representation, the
// preprocessor chain contract, and the per-type event registry (C1/C3 of the
// telemetry pipeline). An Event is a loosely-typed field map rather than a
// fixed struct: event types are registered by configuration (STATS_EVENTS),
// each with its own natural-key fields, so the schema can't be nailed down to
// a single Go struct the way a single-domain event (MediaEvent) could be.
package events

import (
	"time"

	"github.com/goccy/go-json"
)

// Well-known field names shared by every event type, matching §3 of the spec.
const (
	FieldTimestamp       = "timestamp"
	FieldCountry         = "country"
	FieldVisitorID       = "visitor_id"
	FieldUniqueSessionID = "unique_session_id"
	FieldIsRobot         = "is_robot"
	FieldIsMachine       = "is_machine"
	FieldUniqueID        = "unique_id"
	FieldReferrer        = "referrer"
	FieldUpdatedAt       = "updated_timestamp"

	FieldIPAddress  = "ip_address"
	FieldUserID     = "user_id"
	FieldSessionID  = "session_id"
	FieldUserAgent  = "user_agent"
)

// Event is the canonical raw-event representation: a field map enriched in
// place by the preprocessor chain. Keys are natural-key / well-known field
// names; values are JSON-marshalable (string, float64, bool, time.Time).
type Event map[string]interface{}

// New creates an empty event stamped with the current UTC time.
func New() Event {
	return Event{FieldTimestamp: time.Now().UTC()}
}

// Clone returns a shallow copy so preprocessors can mutate a working copy
// without aliasing the caller's map.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// GetString returns the string value for key, or "" if absent or not a string.
func (e Event) GetString(key string) string {
	v, ok := e[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// GetBool returns the bool value for key, defaulting to false.
func (e Event) GetBool(key string) bool {
	v, ok := e[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// GetInt returns the integer value for key, accepting int/int64/float64.
func (e Event) GetInt(key string) (int, bool) {
	switch v := e[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// Timestamp parses FieldTimestamp, accepting either a time.Time already
// stored (producer-side events constructed in-process) or an RFC3339-ish
// string (events that arrived over the wire as JSON).
func (e Event) Timestamp() (time.Time, bool) {
	switch v := e[FieldTimestamp].(type) {
	case time.Time:
		return v, true
	case string:
		if v == "" {
			return time.Time{}, false
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05Z07:00"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t.UTC(), true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// SetTimestamp canonicalizes FieldTimestamp to a second-precision UTC
// time.Time, per §4.3 step 2 ("truncate to seconds; canonicalize back into
// the event").
func (e Event) SetTimestamp(t time.Time) {
	e[FieldTimestamp] = t.UTC().Truncate(time.Second)
}

// Delete removes a field; used by anonymize_user to strip identifying data.
func (e Event) Delete(keys ...string) {
	for _, k := range keys {
		delete(e, k)
	}
}

// MarshalJSON delegates to goccy/go-json via the underlying map type, the
// same JSON codec the bus uses for wire (de)serialization.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}(e))
}

// UnmarshalJSON delegates to goccy/go-json.
func (e *Event) UnmarshalJSON(data []byte) error {
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = m
	return nil
}

// Batch is a finite slice of events, the unit Publish/Consume operate on.
type Batch []Event
