// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := defaultConfig()
	cfg.Stats.Events = []EventConfig{
		{Type: "file-download", Templates: []string{"events-stats-file-download"}},
	}
	return cfg
}

func TestConfig_Validate_Defaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RequiresNATSURL(t *testing.T) {
	cfg := validConfig()
	cfg.NATS.URL = ""
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsBadNATSScheme(t *testing.T) {
	cfg := validConfig()
	cfg.NATS.URL = "http://localhost:4222"
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RequiresStorePath(t *testing.T) {
	cfg := validConfig()
	cfg.Store.Path = ""
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsInvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	assert.Error(t, cfg.Validate())

	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_RejectsDuplicateEventType(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Events = append(cfg.Stats.Events, EventConfig{Type: "file-download"})
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_AggregationRequiresKnownSourceEventType(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Aggregations = []AggregationConfig{
		{
			Name:            "file-download-agg",
			SourceEventType: "unknown-event",
			KeyField:        "file_key",
			Interval:        "day",
			IndexInterval:   "month",
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_AggregationAcceptsValidIntervalOrder(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Aggregations = []AggregationConfig{
		{
			Name:            "file-download-agg",
			SourceEventType: "file-download",
			KeyField:        "file_key",
			Interval:        "day",
			IndexInterval:   "month",
		},
	}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_AggregationRejectsBadIntervalName(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Aggregations = []AggregationConfig{
		{
			Name:            "file-download-agg",
			SourceEventType: "file-download",
			KeyField:        "file_key",
			Interval:        "fortnight",
			IndexInterval:   "month",
		},
	}
	assert.Error(t, cfg.Validate())
}

func TestConfig_Validate_TermsQueryRequiresAggregatedFields(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Queries = []QueryConfig{
		{Name: "top-files", Type: "terms", Index: "stats-file-download"},
	}
	assert.Error(t, cfg.Validate())

	cfg.Stats.Queries[0].AggregatedFields = []string{"file_key"}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_RejectsUnknownQueryType(t *testing.T) {
	cfg := validConfig()
	cfg.Stats.Queries = []QueryConfig{
		{Name: "top-files", Type: "scatter_plot", Index: "stats-file-download"},
	}
	assert.Error(t, cfg.Validate())
}

func TestValidateNATSURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr bool
	}{
		{"nats://localhost:4222", false},
		{"tls://nats.internal:4222", false},
		{"http://localhost:4222", true},
		{"not a url", true},
		{"nats://", true},
	}
	for _, tc := range cases {
		err := validateNATSURL(tc.url)
		if tc.wantErr {
			assert.Error(t, err, tc.url)
		} else {
			assert.NoError(t, err, tc.url)
		}
	}
}
