// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package aggregator implements the incremental Aggregator (C5): the
// bookmark-driven rollup of raw indexed events into per-key-per-interval
// counts and metrics. Grounded on the teacher's
// internal/database/analytics_approximate.go (approximate cardinality via
// HyperLogLog, exact-fallback shape) and internal/eventprocessor's
// checkpoint-then-batch-then-commit structure, generalized from one fixed
// analytics query to a registry of named rollups each with their own key
// field, metric set, and copy fields.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/eventstats/internal/bookmark"
	"github.com/tomtom215/eventstats/internal/events"
	"github.com/tomtom215/eventstats/internal/indexer"
	"github.com/tomtom215/eventstats/internal/logging"
	"github.com/tomtom215/eventstats/internal/metrics"
	"github.com/tomtom215/eventstats/internal/storeengine"
)

// Def declares one registered rollup.
type Def struct {
	Name            string
	SourceEventType string
	KeyField        string
	Interval        Interval
	IndexInterval   Interval
	Metrics         map[string]MetricSpec
	CopyFields      map[string]CopyFieldSpec
	FilterRobots    bool
	MaxBucketSize   int
}

// Validate checks interval ordering and metric specs, and sets
// MaxBucketSize to 10 000 when it is unset. FilterRobots is not defaulted:
// a Def whose FilterRobots is false aggregates robot events as well.
func (d *Def) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("aggregator: name is required")
	}
	if d.SourceEventType == "" {
		return fmt.Errorf("aggregator: %s: source event type is required", d.Name)
	}
	if d.KeyField == "" {
		return fmt.Errorf("aggregator: %s: key field is required", d.Name)
	}
	if err := ValidateOrder(d.Interval, d.IndexInterval); err != nil {
		return fmt.Errorf("aggregator: %s: %w", d.Name, err)
	}
	for dst, m := range d.Metrics {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("aggregator: %s: metric %s: %w", d.Name, dst, err)
		}
	}
	if d.MaxBucketSize <= 0 {
		d.MaxBucketSize = 10000
	}
	return nil
}

// Aggregator runs registered rollups against the raw-event store.
type Aggregator struct {
	engine    storeengine.Engine
	bookmarks *bookmark.Store
	now       func() time.Time
}

// New constructs an Aggregator.
func New(engine storeengine.Engine, bookmarks *bookmark.Store) *Aggregator {
	return &Aggregator{engine: engine, bookmarks: bookmarks, now: func() time.Time { return time.Now().UTC() }}
}

// rollupIndexName returns "stats-{name}-{YYYY-MM}" for the month containing dt.
func rollupIndexName(name string, dt time.Time) string {
	return fmt.Sprintf("stats-%s-%s", name, MonthIndexSuffix(dt))
}

// RollupTemplate is the exported form of the rollup-document template,
// used by the templates package (C8) to pre-register every configured
// aggregation's schema before any aggregator run starts.
func RollupTemplate() storeengine.Template {
	return rollupTemplate()
}

func rollupTemplate() storeengine.Template {
	cols := []storeengine.Column{
		{Name: "_id", Type: "VARCHAR"},
		{Name: "timestamp", Type: "TIMESTAMP"},
		{Name: "key", Type: "VARCHAR"},
		{Name: "count", Type: "BIGINT"},
		{Name: "updated_timestamp", Type: "TIMESTAMP"},
		{Name: "metrics", Type: "JSON"},
		{Name: "copied_fields", Type: "JSON"},
	}
	return storeengine.Template{Name: "rollup", ID: "_id", Columns: cols}
}

// Run executes one rollup from its bookmark (or start) through end (or
// now), writing one rollup document per (key, interval) and advancing the
// bookmark when updateBookmark is set (§4.4).
func (a *Aggregator) Run(ctx context.Context, def Def, start, end *time.Time, updateBookmark bool) (ok, errored int, err error) {
	begin := time.Now()
	if err := def.Validate(); err != nil {
		return 0, 0, err
	}

	lower, err := a.lowerLimit(ctx, def, start)
	if err != nil {
		return 0, 0, err
	}
	if lower == nil {
		return 0, 0, nil
	}

	// upper_limit = min(end ?? infinity, now_utc) (§4.4 step 3): a
	// caller-supplied end in the future never pushes the run past now.
	upper := a.now()
	if end != nil && end.UTC().Before(upper) {
		upper = end.UTC()
	}

	previousBookmark, bmErr := a.bookmarks.GetBookmark(ctx, def.Name)
	hasPrevious := bmErr == nil

	steps := Steps(def.Interval, *lower, upper)
	docsByIndex := make(map[string][]storeengine.Document)

	alias := indexer.AliasName(def.SourceEventType)
	tmpl := rollupTemplate()

	for i, dt := range steps {
		windowEnd := def.Interval.Next(dt)
		if windowEnd.After(upper) {
			windowEnd = upper
		}
		if !windowEnd.After(dt) {
			continue
		}

		buckets, runErr := a.runPartitions(ctx, def, alias, dt, windowEnd)
		if runErr != nil {
			metrics.RecordAggregatorRun(def.Name, i, 0, time.Since(begin), runErr)
			return ok, errored, fmt.Errorf("aggregator: %s: interval %s: %w", def.Name, def.Interval.Format(dt), runErr)
		}

		for _, b := range buckets {
			if hasPrevious && b.LastUpdate.Before(previousBookmark) {
				continue
			}
			doc := a.buildDocument(def, dt, b)
			name := rollupIndexName(def.Name, dt)
			docsByIndex[name] = append(docsByIndex[name], doc)
		}
	}

	for name, docs := range docsByIndex {
		if err := a.engine.CreateIndex(ctx, name, tmpl); err != nil {
			errored += len(docs)
			logging.Error().Err(err).Str("index", name).Msg("aggregator: create rollup index failed")
			continue
		}
		for _, chunk := range chunkDocs(docs, 50) {
			wrote, failed, bulkErr := a.engine.Bulk(ctx, name, tmpl, chunk)
			ok += wrote
			errored += failed
			if bulkErr != nil {
				logging.Error().Err(bulkErr).Str("index", name).Msg("aggregator: bulk write failed")
			}
		}
	}

	if err := a.engine.CreateAlias(ctx, "stats-"+def.Name, "stats-"+def.Name+"-%"); err != nil {
		logging.Warn().Err(err).Str("aggregation", def.Name).Msg("aggregator: refresh rollup alias failed")
	}

	if updateBookmark {
		bmValue := upper
		if err := a.bookmarks.SetBookmark(ctx, def.Name, bmValue); err != nil {
			metrics.RecordAggregatorRun(def.Name, len(steps), 0, time.Since(begin), err)
			return ok, errored, fmt.Errorf("aggregator: %s: set bookmark: %w", def.Name, err)
		}
		metrics.RecordBookmarkLag(def.Name, time.Since(bmValue))
	}

	metrics.RecordAggregatorRun(def.Name, len(steps), 0, time.Since(begin), nil)
	return ok, errored, nil
}

// Delete removes rollup documents and bookmarks for def in [start, end]
// (§4.4: "two bulk-delete passes: rollup docs ... and bookmarks ...").
func (a *Aggregator) Delete(ctx context.Context, def Def, start, end *time.Time) error {
	// Both delete passes exclude their upper bound; widening end by one
	// microsecond (DuckDB TIMESTAMP resolution) makes end itself inclusive.
	if end != nil {
		inclusiveEnd := end.Add(time.Microsecond)
		end = &inclusiveEnd
	}
	pattern := "stats-" + def.Name + "-%"
	const q = `SELECT table_name FROM information_schema.tables WHERE table_name LIKE ?`
	var tables []string
	scanErr := a.engine.Query(ctx, q, []interface{}{pattern}, func(rows storeengine.RowsScanner) error {
		for rows.Next() {
			var t string
			if err := rows.Scan(&t); err != nil {
				return err
			}
			tables = append(tables, t)
		}
		return rows.Err()
	})
	if scanErr != nil {
		return fmt.Errorf("aggregator: delete: list rollup tables: %w", scanErr)
	}

	for _, t := range tables {
		if _, err := a.engine.Delete(ctx, t, "timestamp", start, end); err != nil {
			return fmt.Errorf("aggregator: delete rollup docs from %s: %w", t, err)
		}
	}

	if _, err := a.bookmarks.DeleteBookmarks(ctx, def.Name, start, end); err != nil {
		return fmt.Errorf("aggregator: delete bookmarks: %w", err)
	}

	if len(tables) > 0 {
		if err := a.engine.CreateAlias(ctx, "stats-"+def.Name, pattern); err != nil {
			logging.Warn().Err(err).Str("aggregation", def.Name).Msg("aggregator: refresh alias after delete failed")
		}
	}
	return nil
}

// lowerLimit implements §4.4 step 2: start, else bookmark, else oldest raw
// event timestamp for the source type.
func (a *Aggregator) lowerLimit(ctx context.Context, def Def, start *time.Time) (*time.Time, error) {
	if start != nil {
		v := start.UTC()
		return &v, nil
	}

	bm, err := a.bookmarks.GetBookmark(ctx, def.Name)
	if err == nil {
		return &bm, nil
	}
	if err != bookmark.ErrNoBookmark {
		return nil, fmt.Errorf("aggregator: get bookmark: %w", err)
	}

	alias := indexer.AliasName(def.SourceEventType)
	var oldest *time.Time
	q := fmt.Sprintf(`SELECT MIN("%s") FROM %s`, events.FieldTimestamp, quoteIdent(alias))
	scanErr := a.engine.Query(ctx, q, nil, func(rows storeengine.RowsScanner) error {
		if rows.Next() {
			var t time.Time
			if err := rows.Scan(&t); err != nil {
				return nil // no rows yet / null min
			}
			v := t.UTC()
			oldest = &v
		}
		return rows.Err()
	})
	if scanErr != nil {
		return nil, nil //nolint:nilerr // alias may not exist yet if the source event type hasn't indexed anything
	}
	return oldest, nil
}

type bucketRow struct {
	Key        string
	Count      int64
	LastUpdate time.Time
	Metrics    map[string]interface{}
	RepFields  map[string]interface{}
}

// runPartitions implements §4.4 steps 5a-5d: cardinality-based partitioning
// of the key field, then one terms-style grouped aggregation per partition.
func (a *Aggregator) runPartitions(ctx context.Context, def Def, alias string, start, end time.Time) ([]bucketRow, error) {
	whereClause, whereArgs := a.windowClause(def, start, end)

	total, err := a.engine.ApproxCountDistinct(ctx, alias, events.FieldTimestamp, def.KeyField, &start, &end, robotsClause(def), nil)
	if err != nil {
		return nil, fmt.Errorf("cardinality: %w", err)
	}

	numPartitions := int(math.Ceil(float64(total) / float64(def.MaxBucketSize)))
	if numPartitions < 1 {
		numPartitions = 1
	}

	var buckets []bucketRow
	for p := 0; p < numPartitions; p++ {
		rows, err := a.runOnePartition(ctx, def, alias, whereClause, whereArgs, p, numPartitions)
		if err != nil {
			return nil, fmt.Errorf("partition %d/%d: %w", p, numPartitions, err)
		}
		buckets = append(buckets, rows...)
	}
	metrics.AggregatorPartitions.WithLabelValues(def.Name).Set(float64(numPartitions))
	return buckets, nil
}

func (a *Aggregator) windowClause(def Def, start, end time.Time) (string, []interface{}) {
	clause := fmt.Sprintf(`"%s" >= ? AND "%s" < ?`, events.FieldTimestamp, events.FieldTimestamp)
	args := []interface{}{start, end}
	if def.FilterRobots {
		clause += robotsClause(def)
	}
	return clause, args
}

// robotsClause returns the " AND is_robot = FALSE" modifier def.FilterRobots
// implies, or "" otherwise. Shared between the partitioned terms scan and
// the preliminary cardinality estimate that sizes it (§4.4 step 5b→5c), so
// the two never disagree about which rows are in scope.
func robotsClause(def Def) string {
	if !def.FilterRobots {
		return ""
	}
	return fmt.Sprintf(` AND "%s" = FALSE`, events.FieldIsRobot)
}

func (a *Aggregator) runOnePartition(ctx context.Context, def Def, alias, whereClause string, whereArgs []interface{}, partition, numPartitions int) ([]bucketRow, error) {
	keyCol := quoteIdent(def.KeyField)

	selects := []string{
		keyCol + " AS bucket_key",
		"COUNT(*) AS doc_count",
		fmt.Sprintf(`MAX("%s") AS last_update`, events.FieldUpdatedAt),
		fmt.Sprintf(`arg_max(payload, "%s") AS rep_payload`, events.FieldTimestamp),
		fmt.Sprintf(`arg_max("%s", "%s") AS rep_country`, events.FieldCountry, events.FieldTimestamp),
		fmt.Sprintf(`arg_max("%s", "%s") AS rep_referrer`, events.FieldReferrer, events.FieldTimestamp),
	}
	for dst, spec := range def.Metrics {
		exprs, _ := spec.selectExprs(dst)
		selects = append(selects, exprs...)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s AND abs(hash(%s)) %% %d = %d GROUP BY %s`,
		strings.Join(selects, ", "), quoteIdent(alias), whereClause, keyCol, numPartitions, partition, keyCol,
	)

	var out []bucketRow
	scanErr := a.engine.Query(ctx, query, whereArgs, func(rows storeengine.RowsScanner) error {
		cols, err := rows.Columns()
		if err != nil {
			return err
		}
		for rows.Next() {
			vals := make([]interface{}, len(cols))
			ptrs := make([]interface{}, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return err
			}
			row := make(map[string]interface{}, len(cols))
			for i, c := range cols {
				row[c] = vals[i]
			}

			b := bucketRow{
				Key:       fmt.Sprintf("%v", row["bucket_key"]),
				Metrics:   make(map[string]interface{}, len(def.Metrics)),
				RepFields: decodeRepresentative(row),
			}
			if n, ok := row["doc_count"].(int64); ok {
				b.Count = n
			}
			if t, ok := row["last_update"].(time.Time); ok {
				b.LastUpdate = t.UTC()
			}
			for dst, spec := range def.Metrics {
				b.Metrics[dst] = spec.BuildValue(dst, row)
			}
			out = append(out, b)
		}
		return rows.Err()
	})
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}

// decodeRepresentative merges the representative event's JSON payload with
// its well-known fixed columns, giving copy-field specs a uniform view of
// "the latest event in this bucket" regardless of which fields they need.
func decodeRepresentative(row map[string]interface{}) map[string]interface{} {
	rep := make(map[string]interface{})
	if raw, ok := row["rep_payload"].(string); ok && raw != "" {
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &payload); err == nil {
			for k, v := range payload {
				rep[k] = v
			}
		}
	}
	rep[events.FieldCountry] = row["rep_country"]
	rep[events.FieldReferrer] = row["rep_referrer"]
	return rep
}

func (a *Aggregator) buildDocument(def Def, dt time.Time, b bucketRow) storeengine.Document {
	copied := make(map[string]interface{}, len(def.CopyFields))
	for dst, spec := range def.CopyFields {
		copied[dst] = spec.Resolve(b.RepFields, copied)
	}

	metricsJSON, _ := json.Marshal(b.Metrics)
	copiedJSON, _ := json.Marshal(copied)

	id := fmt.Sprintf("%s-%s", b.Key, def.Interval.Format(dt))
	return storeengine.Document{
		"_id":               id,
		"timestamp":         dt,
		"key":               b.Key,
		"count":             b.Count,
		"updated_timestamp": time.Now().UTC(),
		"metrics":           string(metricsJSON),
		"copied_fields":     string(copiedJSON),
	}
}

func chunkDocs(docs []storeengine.Document, size int) [][]storeengine.Document {
	if len(docs) == 0 {
		return nil
	}
	var chunks [][]storeengine.Document
	for i := 0; i < len(docs); i += size {
		end := i + size
		if end > len(docs) {
			end = len(docs)
		}
		chunks = append(chunks, docs[i:end])
	}
	return chunks
}
