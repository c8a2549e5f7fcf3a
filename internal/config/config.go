// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment
// variables and an optional config file. Grounded on the teacher's
// layered Koanf struct (config.go/koanf.go), narrowed from a media-server
// integration surface (Tautulli/Plex/Jellyfin/security/recommend) down to
// the telemetry pipeline's own concerns: message bus, storage engine, HTTP
// server, logging, and the event/aggregation/query registries.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in sensible defaults for every optional setting.
//  2. Config file: optional YAML file for persistent settings.
//  3. Environment variables: override any setting, highest priority.
type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	NATS    NATSConfig    `koanf:"nats"`
	Store   StoreConfig   `koanf:"store"`
	Server  ServerConfig  `koanf:"server"`
	Stats   StatsConfig   `koanf:"stats"`
}

// LoggingConfig controls the zerolog-backed structured logger (internal/logging).
type LoggingConfig struct {
	Level  string `koanf:"level"`  // trace, debug, info, warn, error
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"` // include file:line in every log line
}

// CircuitBreakerConfig mirrors bus.CircuitBreakerConfig; kept as its own
// struct here so it round-trips through Koanf/env cleanly.
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `koanf:"max_requests"`
	Interval     time.Duration `koanf:"interval"`
	Timeout      time.Duration `koanf:"timeout"`
	FailureRatio float64       `koanf:"failure_ratio"`
}

// NATSConfig configures the Watermill/NATS JetStream message bus (internal/bus).
type NATSConfig struct {
	URL                string               `koanf:"url"`
	SubjectPrefix      string               `koanf:"subject_prefix"`
	StreamPrefix       string               `koanf:"stream_prefix"`
	DurableNamePrefix  string               `koanf:"durable_name_prefix"`
	QueueGroupPrefix   string               `koanf:"queue_group_prefix"`
	MaxReconnects      int                  `koanf:"max_reconnects"`
	ReconnectWait      time.Duration        `koanf:"reconnect_wait"`
	EnableTrackMsgID   bool                 `koanf:"enable_track_msg_id"`
	AckWaitSeconds     int                  `koanf:"ack_wait_seconds"`
	MaxDeliver         int                  `koanf:"max_deliver"`
	SubscribersCount   int                  `koanf:"subscribers_count"`
	RetentionDays      int                  `koanf:"retention_days"`
	MaxBytes           int64                `koanf:"max_bytes"`
	DuplicateWindow    time.Duration        `koanf:"duplicate_window"`
	Replicas           int                  `koanf:"replicas"`
	CircuitBreaker     CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// StoreConfig configures the DuckDB-backed storage engine (internal/storeengine).
type StoreConfig struct {
	Path                   string `koanf:"path"`
	MaxMemory              string `koanf:"max_memory"`
	Threads                int    `koanf:"threads"` // 0 = runtime.NumCPU()
	PreserveInsertionOrder bool   `koanf:"preserve_insertion_order"`
}

// ServerConfig configures the process's own /healthz, /readyz, and metrics
// endpoints (§6: "this repo ships a minimal chi-routed /healthz and /readyz").
type ServerConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// StatsConfig carries the pipeline's own registration surface (§6
// Configuration keys: STATS_EVENTS, STATS_AGGREGATIONS, STATS_QUERIES,
// STATS_REGISTER_RECEIVERS, STATS_PERMISSION_FACTORY, STATS_MQ_EXCHANGE,
// SEARCH_INDEX_PREFIX). Where the original expresses a registered
// component as a Python class path (`cls`), this Go rendition expresses it
// as a declarative struct the process resolves into the matching
// constructor — there is no dynamic class loading in this runtime.
type StatsConfig struct {
	Events             []EventConfig       `koanf:"events"`
	Aggregations       []AggregationConfig `koanf:"aggregations"`
	Queries            []QueryConfig       `koanf:"queries"`
	RegisterReceivers  bool                `koanf:"register_receivers"`
	PermissionFactory  string              `koanf:"permission_factory"` // "allow_all" (default) or "deny_all"
	MQExchange         string              `koanf:"mq_exchange"`
	SearchIndexPrefix  string              `koanf:"search_index_prefix"`
}

// EventConfig declares one entry of STATS_EVENTS.
type EventConfig struct {
	Type            string   `koanf:"type"`
	Templates       []string `koanf:"templates"`
	SignalSource    string   `koanf:"signal"`
	RobotPatterns   []string `koanf:"robot_patterns"`   // empty = events.DefaultRobotPatterns
	MachinePatterns []string `koanf:"machine_patterns"` // empty = events.DefaultMachinePatterns
	UniqueIDFields  []string `koanf:"unique_id_fields"`
	Anonymize       bool     `koanf:"anonymize"`
}

// MetricConfig declares one entry of an AggregationConfig's Metrics map.
type MetricConfig struct {
	Op          string    `koanf:"op"`
	Src         string    `koanf:"src"`
	Percentiles []float64 `koanf:"percentiles"`
}

// CopyFieldConfig declares a plain (non-callable) copy field; computed
// copy fields are registered in code, not configuration, since the
// original's `callable(event, agg)` transform has no config-file analogue.
type CopyFieldConfig struct {
	Dst string `koanf:"dst"`
	Src string `koanf:"src"`
}

// AggregationConfig declares one entry of STATS_AGGREGATIONS.
type AggregationConfig struct {
	Name            string                  `koanf:"name"`
	Templates       []string                `koanf:"templates"`
	SourceEventType string                  `koanf:"source_event_type"`
	KeyField        string                  `koanf:"key_field"`
	Interval        string                  `koanf:"interval"`       // hour | day | month
	IndexInterval   string                  `koanf:"index_interval"` // hour | day | month
	FilterRobots    bool                    `koanf:"filter_robots"`
	MaxBucketSize   int                     `koanf:"max_bucket_size"`
	Metrics         map[string]MetricConfig `koanf:"metrics"`
	CopyFields      []CopyFieldConfig       `koanf:"copy_fields"`
}

// QueryConfig declares one entry of STATS_QUERIES.
type QueryConfig struct {
	Name              string            `koanf:"name"`
	Type              string            `koanf:"type"` // date_histogram | terms
	Index             string            `koanf:"index"`
	RequiredFilters   []string          `koanf:"required_filters"`
	AggregatedFields  []string          `koanf:"aggregated_fields"` // terms only
	CopyFields        []CopyFieldConfig `koanf:"copy_fields"`
	PermissionFactory string            `koanf:"permission_factory"` // overrides Stats.PermissionFactory
}

// Validate checks structural invariants that must hold before the process
// wires up the bus/store/registries (§7: "configuration errors ...
// fatal at startup").
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("config: nats.url is required")
	}
	if err := validateNATSURL(c.NATS.URL); err != nil {
		return fmt.Errorf("config: nats.url: %w", err)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port must be in 1-65535, got %d", c.Server.Port)
	}

	seenEvents := make(map[string]bool, len(c.Stats.Events))
	for _, e := range c.Stats.Events {
		if e.Type == "" {
			return fmt.Errorf("config: stats.events: type is required")
		}
		if seenEvents[e.Type] {
			return fmt.Errorf("config: stats.events: duplicate event type %q", e.Type)
		}
		seenEvents[e.Type] = true
	}

	seenAggregations := make(map[string]bool, len(c.Stats.Aggregations))
	for _, a := range c.Stats.Aggregations {
		if a.Name == "" {
			return fmt.Errorf("config: stats.aggregations: name is required")
		}
		if seenAggregations[a.Name] {
			return fmt.Errorf("config: stats.aggregations: duplicate aggregation %q", a.Name)
		}
		seenAggregations[a.Name] = true
		if a.SourceEventType != "" && !seenEvents[a.SourceEventType] {
			return fmt.Errorf("config: aggregation %q: unknown source event type %q", a.Name, a.SourceEventType)
		}
		if err := validateInterval(a.Interval); err != nil {
			return fmt.Errorf("config: aggregation %q: interval: %w", a.Name, err)
		}
		if err := validateInterval(a.IndexInterval); err != nil {
			return fmt.Errorf("config: aggregation %q: index_interval: %w", a.Name, err)
		}
	}

	seenQueries := make(map[string]bool, len(c.Stats.Queries))
	for _, q := range c.Stats.Queries {
		if q.Name == "" {
			return fmt.Errorf("config: stats.queries: name is required")
		}
		if seenQueries[q.Name] {
			return fmt.Errorf("config: stats.queries: duplicate query %q", q.Name)
		}
		seenQueries[q.Name] = true
		switch q.Type {
		case "date_histogram":
		case "terms":
			if len(q.AggregatedFields) == 0 {
				return fmt.Errorf("config: query %q: terms queries require aggregated_fields", q.Name)
			}
		default:
			return fmt.Errorf("config: query %q: unknown type %q", q.Name, q.Type)
		}
	}

	return nil
}

func validateInterval(s string) error {
	switch s {
	case "hour", "day", "month":
		return nil
	default:
		return fmt.Errorf("unknown interval %q, want hour|day|month", s)
	}
}
