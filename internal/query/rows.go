// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventstats/internal/storeengine"
)

// bucketRow is one grouped row read back from a rollup alias: a bucket key,
// its summed count, and the representative document (the row with the
// latest timestamp in the group) merged from its copied_fields/metrics JSON
// columns for copy_fields projection.
type bucketRow struct {
	Key   string
	Value int64
	Doc   map[string]interface{}
}

// fieldExpr renders the SQL expression selecting field from a rollup row:
// the "key" column directly, or a json_extract_string against the
// copied_fields projection for anything else. field always comes from
// static query configuration, never from request params, so it's safe to
// interpolate directly.
func fieldExpr(field string) string {
	if field == "key" {
		return `"key"`
	}
	escaped := strings.ReplaceAll(field, "'", "''")
	return fmt.Sprintf(`json_extract_string(copied_fields, '$.%s')`, escaped)
}

// groupBy runs a GROUP BY query over index for groupExpr, applying filters
// (exact-match on copied_fields/"key") and the [start, end) timestamp
// window, returning one bucketRow per group.
func groupBy(ctx context.Context, engine storeengine.Engine, index, groupExpr string, filters map[string]interface{}, start, end *time.Time) ([]bucketRow, error) {
	clauses := []string{}
	args := []interface{}{}

	for field, val := range filters {
		clauses = append(clauses, fieldExpr(field)+" = ?")
		args = append(args, fmt.Sprintf("%v", val))
	}
	if start != nil {
		clauses = append(clauses, `"timestamp" >= ?`)
		args = append(args, start.UTC())
	}
	if end != nil {
		clauses = append(clauses, `"timestamp" < ?`)
		args = append(args, end.UTC())
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}

	q := fmt.Sprintf(
		`SELECT %s AS bucket_key, SUM("count") AS bucket_value,
			arg_max(copied_fields, "timestamp") AS rep_copied,
			arg_max(metrics, "timestamp") AS rep_metrics
		FROM %s %s GROUP BY bucket_key`,
		groupExpr, quoteIdent(index), where,
	)

	var out []bucketRow
	err := engine.Query(ctx, q, args, func(rows storeengine.RowsScanner) error {
		for rows.Next() {
			var key interface{}
			var value int64
			var repCopied, repMetrics *string
			if err := rows.Scan(&key, &value, &repCopied, &repMetrics); err != nil {
				return err
			}
			out = append(out, bucketRow{
				Key:   fmt.Sprintf("%v", key),
				Value: value,
				Doc:   mergeJSON(repCopied, repMetrics),
			})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func mergeJSON(blobs ...*string) map[string]interface{} {
	merged := make(map[string]interface{})
	for _, b := range blobs {
		if b == nil || *b == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(*b), &m); err != nil {
			continue
		}
		for k, v := range m {
			merged[k] = v
		}
	}
	return merged
}

func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
