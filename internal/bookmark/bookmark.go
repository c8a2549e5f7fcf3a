// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

// Package bookmark is the Bookmark Store (C6): an append-only ledger of
// "how far has this aggregation gotten" markers, so a restarted aggregator
// resumes from its last committed interval instead of either reprocessing
// from scratch or silently skipping ahead. Grounded on the teacher's
// CheckpointStore (internal/eventprocessor/replay_checkpoint.go) — same
// append-and-query-latest shape, narrowed from NATS-sequence replay
// bookkeeping to a single (aggregation, value) monotonic marker.
package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/eventstats/internal/logging"
)

const tableName = "stats_bookmarks"

// Bookmark is one committed marker: the aggregator named Aggregation has
// processed all events up to (but not including) Value.
type Bookmark struct {
	Aggregation string
	Value       time.Time
	CreatedAt   time.Time
}

// Store persists bookmarks to DuckDB. Every SetBookmark call appends a new
// row rather than updating in place, and GetBookmark reads the row with the
// greatest value.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New wraps db as a bookmark store. The caller owns db's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateTable creates the stats_bookmarks table if it doesn't exist.
func (s *Store) CreateTable(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			aggregation VARCHAR NOT NULL,
			value TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`, tableName),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_aggregation ON %s(aggregation, value DESC)`, tableName, tableName),
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bookmark: create schema: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		logging.Warn().Err(err).Msg("bookmark: checkpoint after table creation failed")
	}
	return nil
}

// SetBookmark appends a new committed marker for aggregation. It does not
// check value against earlier markers; because GetBookmark returns the
// greatest value, appending a smaller one does not move the current
// bookmark back.
func (s *Store) SetBookmark(ctx context.Context, aggregation string, value time.Time) error {
	if aggregation == "" {
		return fmt.Errorf("bookmark: aggregation name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	const q = `
		INSERT INTO stats_bookmarks (id, aggregation, value, created_at)
		VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM stats_bookmarks), ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, q, aggregation, value.UTC(), time.Now().UTC()); err != nil {
		return fmt.Errorf("bookmark: set bookmark for %s: %w", aggregation, err)
	}
	return nil
}

// ErrNoBookmark is returned by GetBookmark when aggregation has never been committed.
var ErrNoBookmark = errors.New("bookmark: no bookmark committed")

// GetBookmark returns the greatest committed value for aggregation.
func (s *Store) GetBookmark(ctx context.Context, aggregation string) (time.Time, error) {
	const q = `SELECT value FROM stats_bookmarks WHERE aggregation = ? ORDER BY value DESC, id DESC LIMIT 1`
	var v time.Time
	err := s.db.QueryRowContext(ctx, q, aggregation).Scan(&v)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, ErrNoBookmark
	case err != nil:
		return time.Time{}, fmt.Errorf("bookmark: get bookmark for %s: %w", aggregation, err)
	}
	return v.UTC(), nil
}

// ListBookmarks returns committed markers for aggregation within
// [start, end), most recent first, capped at limit (0 means unbounded).
func (s *Store) ListBookmarks(ctx context.Context, aggregation string, start, end *time.Time, limit int) ([]Bookmark, error) {
	query := `SELECT aggregation, value, created_at FROM stats_bookmarks WHERE aggregation = ?`
	args := []interface{}{aggregation}

	if start != nil {
		query += ` AND value >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND value < ?`
		args = append(args, end.UTC())
	}
	query += ` ORDER BY value DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("bookmark: list bookmarks for %s: %w", aggregation, err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		if err := rows.Scan(&b.Aggregation, &b.Value, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("bookmark: scan row: %w", err)
		}
		b.Value = b.Value.UTC()
		b.CreatedAt = b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// DeleteBookmarks removes committed markers for aggregation within
// [start, end); a nil bound is unbounded on that side.
func (s *Store) DeleteBookmarks(ctx context.Context, aggregation string, start, end *time.Time) (int64, error) {
	query := `DELETE FROM stats_bookmarks WHERE aggregation = ?`
	args := []interface{}{aggregation}

	if start != nil {
		query += ` AND value >= ?`
		args = append(args, start.UTC())
	}
	if end != nil {
		query += ` AND value < ?`
		args = append(args, end.UTC())
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("bookmark: delete bookmarks for %s: %w", aggregation, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
