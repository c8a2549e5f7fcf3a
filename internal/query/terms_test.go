// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import "testing"

func TestTermsDef_ValidateRequiresFields(t *testing.T) {
	def := TermsDef{Name: "top-files", Index: "stats-file-download"}
	if err := def.validate(); err == nil {
		t.Fatal("expected error for empty AggregatedFields")
	}
}

func TestTermsDef_ValidateAcceptsFields(t *testing.T) {
	def := TermsDef{Name: "top-files", Index: "stats-file-download", AggregatedFields: []string{"file_key"}}
	if err := def.validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFieldExpr_KeyColumn(t *testing.T) {
	if got := fieldExpr("key"); got != `"key"` {
		t.Errorf("got %q", got)
	}
}

func TestFieldExpr_JSONColumn(t *testing.T) {
	got := fieldExpr("file_key")
	want := `json_extract_string(copied_fields, '$.file_key')`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestFieldExpr_EscapesQuotes(t *testing.T) {
	got := fieldExpr("o'brien")
	want := `json_extract_string(copied_fields, '$.o''brien')`
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
