// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package bus binds the event registry to a NATS JetStream message bus via
// Watermill, one durable stream per registered event type (C2 Event Bus
// Binding). It is grounded on the teacher's internal/eventprocessor
// publisher/subscriber/stream_init trio, generalized from a single
// MEDIA_EVENTS stream carrying MediaEvent payloads to one stream per
// STATS_EVENTS entry carrying events.Batch payloads.
package bus

import "time"

// Config holds the bus-wide connection and resilience settings, the
// per-type knobs (subject prefix, durable/queue group naming) are derived
// from the event type name at EnsureStream/Publish/Consume time.
type Config struct {
	// URL is the NATS server connection URL, e.g. "nats://127.0.0.1:4222".
	URL string

	// MaxReconnects is the NATS client reconnect attempt ceiling; -1 means
	// unlimited, matching the teacher's default.
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int

	// EnableTrackMsgID turns on JetStream's Nats-Msg-Id deduplication
	// window, backing the idempotent-ingest property (§8).
	EnableTrackMsgID bool

	// SubjectPrefix namespaces subjects as "{prefix}.{type}", default "stats".
	SubjectPrefix string
	// StreamPrefix namespaces JetStream stream names as "{prefix}_{TYPE}".
	StreamPrefix string

	DurableNamePrefix string
	QueueGroupPrefix  string
	SubscribersCount  int
	AckWaitTimeout    time.Duration
	MaxDeliver        int
	MaxAckPending     int
	CloseTimeout      time.Duration

	StreamMaxAge    time.Duration
	StreamMaxBytes  int64
	StreamMaxMsgs   int64
	DuplicateWindow time.Duration
	Replicas        int

	CircuitBreaker CircuitBreakerConfig
}

// CircuitBreakerConfig mirrors the teacher's gobreaker wiring
// (internal/eventprocessor/config.go CircuitBreakerConfig), reused verbatim
// since publish resilience requirements don't change across domains.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultConfig returns production defaults for connecting to url.
func DefaultConfig(url string) Config {
	return Config{
		URL:               url,
		MaxReconnects:     -1,
		ReconnectWait:     2 * time.Second,
		ReconnectBuffer:   8 * 1024 * 1024,
		EnableTrackMsgID:  true,
		SubjectPrefix:     "stats",
		StreamPrefix:      "STATS",
		DurableNamePrefix: "stats-processor",
		QueueGroupPrefix:  "stats-processors",
		SubscribersCount:  4,
		AckWaitTimeout:    30 * time.Second,
		MaxDeliver:        5,
		MaxAckPending:     1000,
		CloseTimeout:      30 * time.Second,
		StreamMaxAge:      7 * 24 * time.Hour,
		StreamMaxBytes:    10 * 1024 * 1024 * 1024,
		StreamMaxMsgs:     -1,
		DuplicateWindow:   2 * time.Minute,
		Replicas:          1,
		CircuitBreaker: CircuitBreakerConfig{
			Name:             "stats-bus",
			MaxRequests:      3,
			Interval:         30 * time.Second,
			Timeout:          10 * time.Second,
			FailureThreshold: 5,
		},
	}
}

// Subject returns the wire subject for an event type, e.g. "stats.record-view".
func (c Config) Subject(eventType string) string {
	return c.SubjectPrefix + "." + eventType
}

// StreamName returns the JetStream stream name for an event type, e.g.
// "STATS_RECORD_VIEW". NATS stream names may not contain '-' reliably across
// tooling, so hyphens in the event type are folded to underscores.
func (c Config) StreamName(eventType string) string {
	return c.StreamPrefix + "_" + sanitizeStreamToken(eventType)
}

func sanitizeStreamToken(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			out = append(out, r-32)
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
