// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package query

import (
	"errors"
	"testing"
)

func TestParseHistogramInterval_Default(t *testing.T) {
	got, err := parseHistogramInterval(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != intervalDay {
		t.Errorf("got %v, want day", got)
	}
}

func TestParseHistogramInterval_Known(t *testing.T) {
	for _, s := range []string{"year", "quarter", "month", "week", "day"} {
		got, err := parseHistogramInterval(s)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", s, err)
		}
		if string(got) != s {
			t.Errorf("got %v, want %v", got, s)
		}
	}
}

func TestParseHistogramInterval_Unknown(t *testing.T) {
	_, err := parseHistogramInterval("fortnight")
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestParseHistogramInterval_WrongType(t *testing.T) {
	_, err := parseHistogramInterval(42)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestCopyFieldSpec_ResolveSrc(t *testing.T) {
	spec := CopyFieldSpec{Src: "country"}
	doc := map[string]interface{}{"country": "DE"}
	if got := spec.Resolve(nil, doc); got != "DE" {
		t.Errorf("got %v", got)
	}
}

func TestCopyFieldSpec_ResolveFunc(t *testing.T) {
	spec := CopyFieldSpec{Func: func(bucket, doc map[string]interface{}) interface{} {
		return bucket["key"]
	}}
	bucket := map[string]interface{}{"key": "file-a"}
	if got := spec.Resolve(bucket, nil); got != "file-a" {
		t.Errorf("got %v", got)
	}
}
