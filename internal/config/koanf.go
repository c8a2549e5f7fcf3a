// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where a config file is searched for,
// in priority order. The first file found is used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/eventstats/config.yaml",
	"/etc/eventstats/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns sensible defaults for every optional setting.
// Defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		NATS: NATSConfig{
			URL:               "nats://127.0.0.1:4222",
			SubjectPrefix:     "stats",
			StreamPrefix:      "STATS",
			DurableNamePrefix: "eventstats",
			QueueGroupPrefix:  "eventstats",
			MaxReconnects:     -1,
			ReconnectWait:     2 * time.Second,
			EnableTrackMsgID:  true,
			AckWaitSeconds:    30,
			MaxDeliver:        5,
			SubscribersCount:  4,
			RetentionDays:     7,
			MaxBytes:          10 << 30, // 10GB
			DuplicateWindow:   2 * time.Minute,
			Replicas:          1,
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:  3,
				Interval:     1 * time.Minute,
				Timeout:      30 * time.Second,
				FailureRatio: 0.6,
			},
		},
		Store: StoreConfig{
			Path:                   "/data/eventstats.duckdb",
			MaxMemory:              "2GB",
			Threads:                0, // 0 = runtime.NumCPU()
			PreserveInsertionOrder: true,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Stats: StatsConfig{
			RegisterReceivers: false,
			PermissionFactory: "allow_all",
			MQExchange:        "events",
			SearchIndexPrefix: "",
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in sensible defaults.
//  2. Config file: optional YAML file (only source for the STATS_EVENTS /
//     STATS_AGGREGATIONS / STATS_QUERIES registries — those are nested
//     maps-of-structs that don't have a practical flat env-var form).
//  3. Environment variables: override any scalar setting, highest priority.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps the flat ambient/bus/store/server env vars onto
// their Koanf path. The STATS_* registries are deliberately absent here —
// they load only from the config file (see LoadWithKoanf's doc comment).
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"nats_url":                 "nats.url",
		"stats_mq_exchange":        "stats.mq_exchange",
		"nats_subject_prefix":      "nats.subject_prefix",
		"nats_stream_prefix":       "nats.stream_prefix",
		"nats_max_reconnects":      "nats.max_reconnects",
		"nats_reconnect_wait":      "nats.reconnect_wait",
		"nats_ack_wait_seconds":    "nats.ack_wait_seconds",
		"nats_max_deliver":         "nats.max_deliver",
		"nats_subscribers_count":   "nats.subscribers_count",
		"nats_retention_days":      "nats.retention_days",
		"nats_max_bytes":           "nats.max_bytes",
		"nats_duplicate_window":    "nats.duplicate_window",
		"nats_replicas":            "nats.replicas",

		"duckdb_path":                  "store.path",
		"duckdb_max_memory":            "store.max_memory",
		"duckdb_threads":               "store.threads",
		"duckdb_preserve_insert_order": "store.preserve_insertion_order",

		"http_host": "server.host",
		"http_port": "server.port",

		"stats_register_receivers":  "stats.register_receivers",
		"stats_permission_factory":  "stats.permission_factory",
		"search_index_prefix":       "stats.search_index_prefix",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return strings.ReplaceAll(key, "_", ".")
}
