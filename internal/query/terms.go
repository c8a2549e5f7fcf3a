// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/eventstats/internal/storeengine"
)

// TermsDef declares a named (recursive) terms query (§4.6): one nested
// terms bucket per field in AggregatedFields, innermost level a leaf with
// the summed count and any configured copy_fields.
type TermsDef struct {
	Name              string
	Index             string
	AggregatedFields  []string
	RequiredFilters   []string
	CopyFields        map[string]CopyFieldSpec
	PermissionFactory PermissionFunc
}

func (d TermsDef) validate() error {
	if len(d.AggregatedFields) == 0 {
		return fmt.Errorf("query: %s: aggregated_fields must declare at least one field", d.Name)
	}
	return nil
}

func (d TermsDef) run(ctx context.Context, engine storeengine.Engine, params map[string]interface{}) (interface{}, error) {
	if err := d.validate(); err != nil {
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

	return d.level(ctx, engine, d.AggregatedFields, filters, start, end)
}

// level runs one nesting level of the recursive terms aggregation: group by
// fields[0], and for each group either recurse into fields[1:] (building a
// nested terms bucket) or, once fields is exhausted, emit a leaf.
func (d TermsDef) level(ctx context.Context, engine storeengine.Engine, fields []string, filters map[string]interface{}, start, end *time.Time) (interface{}, error) {
	field := fields[0]
	rest := fields[1:]

	rows, err := groupBy(ctx, engine, d.Index, fieldExpr(field), filters, start, end)
	if err != nil {
		return nil, fmt.Errorf("query: %s: field %s: %w", d.Name, field, err)
	}

	buckets := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		if len(rest) == 0 {
			leaf := map[string]interface{}{
				"key":   r.Key,
				"value": r.Value,
			}
			for dst, spec := range d.CopyFields {
				leaf[dst] = spec.Resolve(leaf, r.Doc)
			}
			buckets = append(buckets, leaf)
			continue
		}

		nestedFilters := make(map[string]interface{}, len(filters)+1)
		for k, v := range filters {
			nestedFilters[k] = v
		}
		nestedFilters[field] = r.Key

		nested, err := d.level(ctx, engine, rest, nestedFilters, start, end)
		if err != nil {
			return nil, err
		}
		nestedMap, _ := nested.(map[string]interface{})
		nestedMap["key"] = r.Key
		buckets = append(buckets, nestedMap)
	}

	return map[string]interface{}{
		"type":     "bucket",
		"field":    field,
		"key_type": "terms",
		"buckets":  buckets,
	}, nil
}
