// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// JetStreamContext defines the subset of jetstream.JetStream a stream
// initializer needs, grounded on the teacher's identically-named interface
// (internal/eventprocessor/stream_init.go) so it can be faked in tests.
type JetStreamContext interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	DeleteStream(ctx context.Context, name string) error
}

// EnsureStream idempotently creates or updates the JetStream stream backing
// eventType, with one subject "{prefix}.{eventType}" per stream — unlike
// the teacher's single wildcard-subject MEDIA_EVENTS stream, every
// registered event type gets its own stream so retention, replay, and
// dedup windows can be tuned per type (§4.1/§4.2).
func EnsureStream(ctx context.Context, js JetStreamContext, cfg Config, eventType string) (jetstream.Stream, error) {
	streamCfg := jetstream.StreamConfig{
		Name:        cfg.StreamName(eventType),
		Subjects:    []string{cfg.Subject(eventType)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.StreamMaxAge,
		MaxBytes:    cfg.StreamMaxBytes,
		MaxMsgs:     cfg.StreamMaxMsgs,
		Duplicates:  cfg.DuplicateWindow,
		Replicas:    cfg.Replicas,
		Storage:     jetstream.FileStorage,
		AllowDirect: true,
		Discard:     jetstream.DiscardOld,
		AllowRollup: true,
	}

	name := streamCfg.Name
	_, err := js.Stream(ctx, name)
	if err == nil {
		stream, err := js.UpdateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("update stream %s: %w", name, err)
		}
		return stream, nil
	}

	if errors.Is(err, jetstream.ErrStreamNotFound) {
		stream, err := js.CreateStream(ctx, streamCfg)
		if err != nil {
			return nil, fmt.Errorf("create stream %s: %w", name, err)
		}
		return stream, nil
	}

	return nil, fmt.Errorf("check stream %s: %w", name, err)
}
