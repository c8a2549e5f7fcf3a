// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"errors"
	"testing"
	"time"
)

func TestRequiredFilters_ExactMatch(t *testing.T) {
	params := map[string]interface{}{
		"file_key":   "abc123",
		"start_date": "2026-07-01",
	}
	got, err := requiredFilters([]string{"file_key"}, params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["file_key"] != "abc123" {
		t.Errorf("got %v", got)
	}
}

func TestRequiredFilters_Mismatch(t *testing.T) {
	params := map[string]interface{}{"file_key": "abc123", "extra": "x"}
	_, err := requiredFilters([]string{"file_key"}, params)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestRequiredFilters_Missing(t *testing.T) {
	_, err := requiredFilters([]string{"file_key", "community_id"}, map[string]interface{}{"file_key": "abc"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestDateRange(t *testing.T) {
	params := map[string]interface{}{
		"start_date": "2026-07-01",
		"end_date":   "2026-07-31",
	}
	start, end, err := dateRange(params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start == nil || !start.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("start = %v", start)
	}
	if end == nil || !end.Equal(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("end = %v", end)
	}
}

func TestDateRange_Empty(t *testing.T) {
	start, end, err := dateRange(map[string]interface{}{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != nil || end != nil {
		t.Errorf("expected nil bounds, got %v / %v", start, end)
	}
}

func TestDateRange_InvalidFormat(t *testing.T) {
	_, _, err := dateRange(map[string]interface{}{"start_date": "not-a-date"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseDateParam_RFC3339Fallback(t *testing.T) {
	got, err := parseDateParam("2026-07-31T14:00:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateParam_TimeValue(t *testing.T) {
	in := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	got, err := parseDateParam(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(in) {
		t.Errorf("got %v, want %v", got, in)
	}
}
