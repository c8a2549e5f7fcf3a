// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package storeengine is the search-engine surrogate (C4/C5's storage
// dependency): DuckDB tables stand in for time-partitioned search indices,
// and DuckDB views stand in for index aliases, grounded on the teacher's
// internal/database package (DB.New, extension-availability tracking,
// prepared-statement cache) and internal/database/analytics_approximate.go
// (cardinality estimation, there via the DataSketches extension; here via
// DuckDB's built-in approx_count_distinct, since exact HLL union isn't
// needed for partition sizing).
package storeengine

import (
	"context"
	"database/sql"
	"time"
)

// Document is one row to be upserted into an index, keyed by its "_id"
// field (the deterministic document id computed by the indexer/aggregator,
// §3/§4.3/§4.4 invariants).
type Document map[string]interface{}

// Column describes one field of an index template.
type Column struct {
	Name string
	Type string // DuckDB type, e.g. "TIMESTAMP", "VARCHAR", "DOUBLE", "BOOLEAN", "JSON"
}

// Template declares the schema new indices of a given name pattern are
// created with (C8 Template/Alias Manager). ID is the primary-key column
// name documents upsert on.
type Template struct {
	Name    string
	Columns []Column
	ID      string
}

// Engine is the storage abstraction the indexer, aggregator, and query
// layer depend on. The sole implementation is DuckDB-backed (duckdb.go);
// the interface exists so the aggregator/query/indexer packages can be
// tested against an in-memory fake without a real DuckDB file.
type Engine interface {
	// PutTemplate registers (or replaces) the schema template docs of this
	// kind are created with. Idempotent.
	PutTemplate(ctx context.Context, tmpl Template) error

	// CreateIndex creates the physical table "name" from its template if it
	// doesn't already exist. Idempotent.
	CreateIndex(ctx context.Context, name string, tmpl Template) error

	// IndexExists reports whether the physical table "name" exists.
	IndexExists(ctx context.Context, name string) (bool, error)

	// Bulk upserts docs into index "name" by their ID column, returning the
	// count that succeeded and the count that failed (never erroring for
	// individual row failures — only for connection-level failures).
	Bulk(ctx context.Context, name string, tmpl Template, docs []Document) (ok, failed int, err error)

	// Delete removes rows from index "name" whose timestamp column falls in
	// [start, end). A nil bound is unbounded on that side.
	Delete(ctx context.Context, name, timestampColumn string, start, end *time.Time) (int64, error)

	// CreateAlias creates or replaces a view named alias that unions every
	// existing table whose name matches namePattern (a SQL LIKE pattern),
	// standing in for a search-engine index alias.
	CreateAlias(ctx context.Context, alias, namePattern string) error

	// ApproxCountDistinct estimates the cardinality of column across the
	// rows of index "name" matching the optional [start, end) timestamp
	// window, used to size terms-aggregation partitions (§4.4 step 5b→5c:
	// cardinality is estimated over the same filtered rows the partitioned
	// terms query itself scans). extraWhere/extraArgs, if non-empty, is
	// ANDed onto the generated time-range predicate — callers pass the same
	// query modifiers (e.g. the robots filter) used by the partitioned scan.
	ApproxCountDistinct(ctx context.Context, name, timestampColumn, column string, start, end *time.Time, extraWhere string, extraArgs []interface{}) (uint64, error)

	// Query runs an arbitrary parameterized SELECT and hands rows to scan,
	// which must fully consume (and close) the result set.
	Query(ctx context.Context, query string, args []interface{}, scan func(RowsScanner) error) error

	// Flush forces a checkpoint so recently bulk-written data is durable
	// and visible to subsequent connections (§ambient: DuckDB WAL flush).
	Flush(ctx context.Context) error

	// Raw exposes the underlying *sql.DB for components that need direct
	// SQL access beyond the Document-oriented methods above (the bookmark
	// store's append-only ledger, grounded on the teacher's
	// CheckpointStore taking a raw *sql.DB).
	Raw() *sql.DB

	// Close releases the underlying connection.
	Close() error
}

// RowsScanner is the subset of *sql.Rows the Query callback needs; kept as
// an interface so storeengine callers never import database/sql directly.
type RowsScanner interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
	Columns() ([]string, error)
}
