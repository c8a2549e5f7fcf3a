// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package storeengine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/eventstats/internal/logging"
)

// DuckDBConfig holds connection tuning for the DuckDB-backed engine,
// narrowed from the teacher's config.DatabaseConfig to the knobs this
// pipeline's storage layer needs.
type DuckDBConfig struct {
	Path                   string
	MaxMemory              string
	Threads                int
	PreserveInsertionOrder bool
}

// DefaultDuckDBConfig returns sane defaults for an on-disk database file.
func DefaultDuckDBConfig(path string) DuckDBConfig {
	return DuckDBConfig{
		Path:                   path,
		MaxMemory:              "2GB",
		Threads:                0,
		PreserveInsertionOrder: true,
	}
}

// duckDBEngine implements Engine over a single *sql.DB, grounded on the
// teacher's internal/database.DB (connection setup, prepared statement
// cache, WAL checkpoint-before-close).
type duckDBEngine struct {
	conn *sql.DB

	stmtCache   map[string]*sql.Stmt
	stmtCacheMu sync.RWMutex

	templatesMu sync.RWMutex
	templates   map[string]Template
}

// Open creates (or opens) the DuckDB file at cfg.Path and returns an Engine.
func Open(cfg DuckDBConfig) (Engine, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("storeengine: create data directory %s: %w", dir, err)
			}
		}
	}

	preserveOrder := "true"
	if !cfg.PreserveInsertionOrder {
		preserveOrder = "false"
	}

	connStr := fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&max_memory=%s&preserve_insertion_order=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
		cfg.Path, threads, cfg.MaxMemory, preserveOrder,
	)

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("storeengine: open duckdb: %w", err)
	}
	conn.SetMaxOpenConns(threads)

	e := &duckDBEngine{
		conn:      conn,
		stmtCache: make(map[string]*sql.Stmt),
		templates: make(map[string]Template),
	}
	return e, nil
}

func (e *duckDBEngine) PutTemplate(_ context.Context, tmpl Template) error {
	if tmpl.Name == "" {
		return fmt.Errorf("storeengine: template name is required")
	}
	if tmpl.ID == "" {
		return fmt.Errorf("storeengine: template %q: id column is required", tmpl.Name)
	}
	e.templatesMu.Lock()
	defer e.templatesMu.Unlock()
	e.templates[tmpl.Name] = tmpl
	return nil
}

func (e *duckDBEngine) IndexExists(ctx context.Context, name string) (bool, error) {
	const q = `SELECT count(*) FROM information_schema.tables WHERE table_name = ?`
	var n int
	if err := e.conn.QueryRowContext(ctx, q, name).Scan(&n); err != nil {
		return false, fmt.Errorf("storeengine: check index %s: %w", name, err)
	}
	return n > 0, nil
}

func (e *duckDBEngine) CreateIndex(ctx context.Context, name string, tmpl Template) error {
	exists, err := e.IndexExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	cols := make([]string, 0, len(tmpl.Columns))
	for _, c := range tmpl.Columns {
		cols = append(cols, fmt.Sprintf("%s %s", quoteIdent(c.Name), c.Type))
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s, PRIMARY KEY (%s))",
		quoteIdent(name), strings.Join(cols, ", "), quoteIdent(tmpl.ID))

	if _, err := e.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("storeengine: create index %s: %w", name, err)
	}
	return nil
}

// Bulk upserts docs in chunks via INSERT ... ON CONFLICT DO UPDATE, DuckDB's
// equivalent of a bulk API's per-document upsert semantics.
func (e *duckDBEngine) Bulk(ctx context.Context, name string, tmpl Template, docs []Document) (int, int, error) {
	if len(docs) == 0 {
		return 0, 0, nil
	}

	colNames := make([]string, 0, len(tmpl.Columns))
	for _, c := range tmpl.Columns {
		colNames = append(colNames, c.Name)
	}

	placeholders := make([]string, len(colNames))
	for i := range placeholders {
		placeholders[i] = "?"
	}

	updates := make([]string, 0, len(colNames))
	for _, c := range colNames {
		if c == tmpl.ID {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", quoteIdent(c), quoteIdent(c)))
	}

	quotedCols := make([]string, len(colNames))
	for i, c := range colNames {
		quotedCols[i] = quoteIdent(c)
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		quoteIdent(name),
		strings.Join(quotedCols, ", "),
		strings.Join(placeholders, ", "),
		quoteIdent(tmpl.ID),
		strings.Join(updates, ", "),
	)

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, len(docs), fmt.Errorf("storeengine: begin bulk tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return 0, len(docs), fmt.Errorf("storeengine: prepare bulk insert: %w", err)
	}
	defer stmt.Close()

	ok, failed := 0, 0
	for _, doc := range docs {
		args := make([]interface{}, len(colNames))
		for i, c := range colNames {
			args[i] = doc[c]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			logging.Warn().Err(err).Str("index", name).Msg("storeengine: bulk row failed")
			failed++
			continue
		}
		ok++
	}

	if err := tx.Commit(); err != nil {
		return 0, len(docs), fmt.Errorf("storeengine: commit bulk tx: %w", err)
	}
	return ok, failed, nil
}

func (e *duckDBEngine) Delete(ctx context.Context, name, timestampColumn string, start, end *time.Time) (int64, error) {
	clause, args := timeRangeClause(timestampColumn, start, end)
	query := fmt.Sprintf("DELETE FROM %s WHERE %s", quoteIdent(name), clause)
	res, err := e.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("storeengine: delete from %s: %w", name, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// CreateAlias builds a UNION ALL view over every table matching namePattern,
// standing in for a search-engine alias spanning multiple time-partitioned
// indices (§4.1 "alias manager").
func (e *duckDBEngine) CreateAlias(ctx context.Context, alias, namePattern string) error {
	const q = `SELECT table_name FROM information_schema.tables WHERE table_name LIKE ? ORDER BY table_name`
	rows, err := e.conn.QueryContext(ctx, q, namePattern)
	if err != nil {
		return fmt.Errorf("storeengine: list tables for alias %s: %w", alias, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return fmt.Errorf("storeengine: scan table name: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(tables) == 0 {
		return fmt.Errorf("storeengine: no tables match pattern %q for alias %s", namePattern, alias)
	}

	selects := make([]string, len(tables))
	for i, t := range tables {
		selects[i] = fmt.Sprintf("SELECT * FROM %s", quoteIdent(t))
	}

	ddl := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", quoteIdent(alias), strings.Join(selects, " UNION ALL "))
	if _, err := e.conn.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("storeengine: create alias %s: %w", alias, err)
	}
	return nil
}

// ApproxCountDistinct uses DuckDB's built-in HyperLogLog-backed
// approx_count_distinct, the same cardinality-estimation family the
// teacher uses DataSketches for (internal/database/analytics_approximate.go),
// without requiring the extension to be installed.
func (e *duckDBEngine) ApproxCountDistinct(ctx context.Context, name, timestampColumn, column string, start, end *time.Time, extraWhere string, extraArgs []interface{}) (uint64, error) {
	clause, args := timeRangeClause(timestampColumn, start, end)
	if extraWhere != "" {
		clause += " AND " + extraWhere
		args = append(args, extraArgs...)
	}
	query := fmt.Sprintf("SELECT approx_count_distinct(%s) FROM %s WHERE %s", quoteIdent(column), quoteIdent(name), clause)

	var n uint64
	if err := e.conn.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("storeengine: approx_count_distinct on %s.%s: %w", name, column, err)
	}
	return n, nil
}

func (e *duckDBEngine) Query(ctx context.Context, query string, args []interface{}, scan func(RowsScanner) error) error {
	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("storeengine: query: %w", err)
	}
	defer rows.Close()
	if err := scan(rows); err != nil {
		return err
	}
	return rows.Err()
}

func (e *duckDBEngine) Raw() *sql.DB {
	return e.conn
}

func (e *duckDBEngine) Flush(ctx context.Context) error {
	if _, err := e.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("storeengine: checkpoint: %w", err)
	}
	return nil
}

func (e *duckDBEngine) Close() error {
	e.stmtCacheMu.Lock()
	for _, stmt := range e.stmtCache {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	e.stmtCache = make(map[string]*sql.Stmt)
	e.stmtCacheMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.Flush(ctx); err != nil {
		logging.Warn().Err(err).Msg("storeengine: checkpoint before close failed")
	}
	return e.conn.Close()
}

func timeRangeClause(col string, start, end *time.Time) (string, []interface{}) {
	col = quoteIdent(col)
	switch {
	case start != nil && end != nil:
		return fmt.Sprintf("%s >= ? AND %s < ?", col, col), []interface{}{*start, *end}
	case start != nil:
		return fmt.Sprintf("%s >= ?", col), []interface{}{*start}
	case end != nil:
		return fmt.Sprintf("%s < ?", col), []interface{}{*end}
	default:
		return "1=1", nil
	}
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
// Table/column names in this pipeline are generated from registered event
// type and aggregation names (config, not end-user input), but every
// identifier is still quoted defensively before being interpolated.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
