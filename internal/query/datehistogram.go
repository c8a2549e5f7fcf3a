// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"context"
	"fmt"

	"github.com/tomtom215/eventstats/internal/storeengine"
)

// histogramInterval is the date-histogram bucketing granularity (§4.6),
// distinct from the aggregator's storage Interval — a query may bucket by
// year/quarter/week even though no rollup is ever stored at that grain.
type histogramInterval string

const (
	intervalYear    histogramInterval = "year"
	intervalQuarter histogramInterval = "quarter"
	intervalMonth   histogramInterval = "month"
	intervalWeek    histogramInterval = "week"
	intervalDay     histogramInterval = "day"
)

func parseHistogramInterval(v interface{}) (histogramInterval, error) {
	if v == nil {
		return intervalDay, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: interval must be a string", ErrInvalidInput)
	}
	switch histogramInterval(s) {
	case intervalYear, intervalQuarter, intervalMonth, intervalWeek, intervalDay:
		return histogramInterval(s), nil
	default:
		return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidInput, s)
	}
}

// DateHistogramDef declares a named date-histogram query (§4.6).
type DateHistogramDef struct {
	Name              string
	Index             string
	RequiredFilters   []string
	CopyFields        map[string]CopyFieldSpec
	PermissionFactory PermissionFunc
}

// run executes the date histogram: group the rollup alias by date_trunc
// over the requested interval, sum(count) per bucket, project copy_fields
// from the bucket's representative document.
func (d DateHistogramDef) run(ctx context.Context, engine storeengine.Engine, params map[string]interface{}) (interface{}, error) {
	interval, err := parseHistogramInterval(params["interval"])
	if err != nil {
		return nil, err
	}
	filters, err := requiredFilters(d.RequiredFilters, params)
	if err != nil {
		return nil, err
	}
	start, end, err := dateRange(params)
	if err != nil {
		return nil, err
	}

	exists, err := engine.IndexExists(ctx, d.Index)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", d.Name, err)
	}
	if !exists {
		return nil, nil
	}

	groupExpr := fmt.Sprintf(`date_trunc('%s', "timestamp")`, interval)
	rows, err := groupBy(ctx, engine, d.Index, groupExpr, filters, start, end)
	if err != nil {
		return nil, fmt.Errorf("query: %s: %w", d.Name, err)
	}

	buckets := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		bucket := map[string]interface{}{
			"key":   r.Key,
			"value": r.Value,
		}
		for dst, spec := range d.CopyFields {
			bucket[dst] = spec.Resolve(bucket, r.Doc)
		}
		buckets = append(buckets, bucket)
	}

	return map[string]interface{}{
		"type":     "bucket",
		"key_type": "date",
		"interval": string(interval),
		"buckets":  buckets,
	}, nil
}
