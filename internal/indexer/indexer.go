// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package indexer implements the Events Indexer (C4): it drains raw events
// off the bus, runs each through its registered preprocessor chain,
// computes the deterministic document id and daily index partition, and
// bulk-writes the result to the storage engine. Grounded on the teacher's
// DuckDBHandler/Appender pair (internal/eventprocessor/handlers.go,
// appender.go): dedup-then-batch-then-flush, generalized from one fixed
// MediaEvent schema to the dynamic per-type Document schema events.Event
// produces.
package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/eventstats/internal/events"
	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/metrics"
	"github.com/tomtom215/eventstats/internal/storeengine"
)

// Consumer is the subset of bus.Bus the indexer depends on, narrowed so
// tests can supply a fake channel instead of a real NATS connection.
type Consumer interface {
	Consume(ctx context.Context, eventType string) (<-chan events.Event, error)
}

// Config controls batching behavior.
type Config struct {
	// ChunkSize is the number of events accumulated before a bulk write
	// (§4.3: "chunk size 50"), smaller than the teacher's NATSConfig.BatchSize
	// default of 1000 since each document here carries more preprocessing
	// work per event.
	ChunkSize int
	// FlushInterval forces a bulk write even if ChunkSize hasn't been
	// reached, bounding end-to-end latency for low-volume event types.
	FlushInterval time.Duration
	// W is the double-click window size in seconds (§4.3/§3): events
	// sharing unique_id+visitor_id within the same W-second slot collapse
	// into a single document; events in different slots do not.
	W int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{ChunkSize: 50, FlushInterval: 5 * time.Second, W: 10}
}

// Indexer drains one registered event type from the bus and persists it to
// the storage engine's raw index.
type Indexer struct {
	registry *events.Registry
	engine   storeengine.Engine
	consumer Consumer
	cfg      Config
}

// New constructs an Indexer over the given registry, storage engine, and bus.
func New(registry *events.Registry, engine storeengine.Engine, consumer Consumer, cfg Config) *Indexer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.W <= 0 {
		cfg.W = DefaultConfig().W
	}
	return &Indexer{registry: registry, engine: engine, consumer: consumer, cfg: cfg}
}

// indexTemplate is the fixed raw-document schema: well-known fields plus a
// single JSON catch-all for event-type-specific extras, so every registered
// event type shares one physical table layout regardless of its natural
// keys (§4.3: one index per event type and UTC day).
// EventTemplate is the exported form of the raw-document template, used by
// the templates package (C8) to pre-register every known event type's
// schema before any producer/consumer starts.
func EventTemplate(name string) storeengine.Template {
	return indexTemplate(name)
}

func indexTemplate(name string) storeengine.Template {
	return storeengine.Template{
		Name: name,
		ID:   "_id",
		Columns: []storeengine.Column{
			{Name: "_id", Type: "VARCHAR"},
			{Name: events.FieldTimestamp, Type: "TIMESTAMP"},
			{Name: events.FieldUniqueID, Type: "VARCHAR"},
			{Name: events.FieldVisitorID, Type: "VARCHAR"},
			{Name: events.FieldUniqueSessionID, Type: "VARCHAR"},
			{Name: events.FieldCountry, Type: "VARCHAR"},
			{Name: events.FieldIsRobot, Type: "BOOLEAN"},
			{Name: events.FieldIsMachine, Type: "BOOLEAN"},
			{Name: events.FieldReferrer, Type: "VARCHAR"},
			{Name: events.FieldUpdatedAt, Type: "TIMESTAMP"},
			{Name: "payload", Type: "JSON"},
		},
	}
}

// IndexName returns the daily-partitioned physical table name for an
// event type and timestamp, e.g. "events-record-view-2026-07-31".
func IndexName(eventType string, ts time.Time) string {
	return fmt.Sprintf("events-%s-%s", eventType, ts.UTC().Format("2006-01-02"))
}

// AliasName returns the cross-day alias name for an event type, e.g.
// "events-record-view".
func AliasName(eventType string) string {
	return "events-" + eventType
}

// Run consumes eventType from the bus until ctx is canceled, batching into
// chunks of cfg.ChunkSize or cfg.FlushInterval, whichever comes first.
func (ix *Indexer) Run(ctx context.Context, eventType string) error {
	ch, err := ix.consumer.Consume(ctx, eventType)
	if err != nil {
		return fmt.Errorf("indexer: consume %s: %w", eventType, err)
	}

	ticker := time.NewTicker(ix.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make(events.Batch, 0, ix.cfg.ChunkSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if _, _, err := ix.ProcessBatch(ctx, eventType, batch); err != nil {
			logging.Error().Err(err).Str("event_type", eventType).Msg("indexer: process batch failed")
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return ctx.Err()
		case <-ticker.C:
			flush()
		case ev, ok := <-ch:
			if !ok {
				flush()
				return nil
			}
			batch = append(batch, ev)
			if len(batch) >= ix.cfg.ChunkSize {
				flush()
			}
		}
	}
}

// ProcessBatch runs batch through eventType's preprocessor chain, computes
// each surviving event's deterministic id and daily partition, and bulk
// writes the result. It returns the number of events written and the
// number that errored; events dropped by the chain are in neither count and
// are reported only through metrics.RecordIndexerBatch.
func (ix *Indexer) ProcessBatch(ctx context.Context, eventType string, batch events.Batch) (ok, errored int, err error) {
	start := time.Now()
	def, found := ix.registry.Get(eventType)
	if !found {
		return 0, len(batch), fmt.Errorf("indexer: unregistered event type %q", eventType)
	}

	byIndex := make(map[string][]storeengine.Document)
	dropped := 0

	for _, raw := range batch {
		out, isDropped, procErr := def.PreprocessorChain.Apply(raw)
		if procErr != nil {
			errored++
			logging.Warn().Err(procErr).Str("event_type", eventType).Msg("indexer: preprocessor failed")
			continue
		}
		if isDropped {
			dropped++
			continue
		}

		ts, hasTS := out.Timestamp()
		if !hasTS {
			ts = time.Now().UTC()
		}
		out.SetTimestamp(ts)

		uniqueID := out.GetString(events.FieldUniqueID)
		visitorID := out.GetString(events.FieldVisitorID)
		windowed := windowTimestamp(ts, ix.cfg.W)
		docID := windowed.UTC().Format(time.RFC3339) + "-" + events.Sha1Hex(uniqueID+visitorID)

		name := IndexName(eventType, ts)
		doc, docErr := toDocument(docID, out)
		if docErr != nil {
			errored++
			logging.Warn().Err(docErr).Str("event_type", eventType).Msg("indexer: encode document failed")
			continue
		}
		byIndex[name] = append(byIndex[name], doc)
	}

	tmpl := indexTemplate("")
	for name, docs := range byIndex {
		if err := ix.engine.CreateIndex(ctx, name, tmpl); err != nil {
			errored += len(docs)
			logging.Error().Err(err).Str("index", name).Msg("indexer: create index failed")
			continue
		}
		wrote, failed, bulkErr := ix.engine.Bulk(ctx, name, tmpl, docs)
		ok += wrote
		errored += failed
		if bulkErr != nil {
			errored += len(docs) - wrote - failed
			logging.Error().Err(bulkErr).Str("index", name).Msg("indexer: bulk write failed")
		}
	}

	if len(byIndex) > 0 {
		pattern := "events-" + eventType + "-%"
		if err := ix.engine.CreateAlias(ctx, AliasName(eventType), pattern); err != nil {
			logging.Warn().Err(err).Str("event_type", eventType).Msg("indexer: refresh alias failed")
		}
	}

	metrics.RecordIndexerBatch(eventType, ok, errored, dropped, time.Since(start))
	return ok, errored, nil
}

func toDocument(id string, e events.Event) (storeengine.Document, error) {
	doc := storeengine.Document{
		"_id":                       id,
		events.FieldTimestamp:       mustTime(e, events.FieldTimestamp),
		events.FieldUniqueID:        e.GetString(events.FieldUniqueID),
		events.FieldVisitorID:       e.GetString(events.FieldVisitorID),
		events.FieldUniqueSessionID: e.GetString(events.FieldUniqueSessionID),
		events.FieldCountry:         e.GetString(events.FieldCountry),
		events.FieldIsRobot:         e.GetBool(events.FieldIsRobot),
		events.FieldIsMachine:       e.GetBool(events.FieldIsMachine),
		events.FieldReferrer:        e.GetString(events.FieldReferrer),
		events.FieldUpdatedAt:       time.Now().UTC(),
	}

	payload := e.Clone()
	payload.Delete(
		"_id", events.FieldTimestamp, events.FieldUniqueID, events.FieldVisitorID,
		events.FieldUniqueSessionID, events.FieldCountry, events.FieldIsRobot,
		events.FieldIsMachine, events.FieldReferrer, events.FieldUpdatedAt,
	)
	raw, err := payload.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	doc["payload"] = string(raw)
	return doc, nil
}

// windowTimestamp floors ts to the start of its W-second double-click
// window: windowed_ts = floor(epoch(ts)/W)*W (§4.3/§3). Events sharing
// unique_id+visitor_id land on the same document only when they fall in
// the same window; a W of 0 or less is treated as "no windowing".
func windowTimestamp(ts time.Time, w int) time.Time {
	if w <= 0 {
		return ts.UTC()
	}
	epoch := ts.UTC().Unix()
	floored := (epoch / int64(w)) * int64(w)
	return time.Unix(floored, 0).UTC()
}

func mustTime(e events.Event, key string) time.Time {
	if t, ok := e.Timestamp(); ok {
		return t
	}
	_ = key
	return time.Now().UTC()
}
