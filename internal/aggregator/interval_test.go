// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package aggregator

import (
	"testing"
	"time"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"hour", Hour, false},
		{"day", Day, false},
		{"month", Month, false},
		{"fortnight", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseInterval(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseInterval(%q): expected error, got nil", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseInterval(%q): unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseInterval(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestValidateOrder(t *testing.T) {
	if err := ValidateOrder(Hour, Day); err != nil {
		t.Errorf("Hour <= Day should be valid: %v", err)
	}
	if err := ValidateOrder(Day, Day); err != nil {
		t.Errorf("Day <= Day should be valid: %v", err)
	}
	if err := ValidateOrder(Month, Day); err == nil {
		t.Errorf("Month <= Day should be invalid")
	}
}

func TestIntervalFloor(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 22, 9, 0, time.UTC)

	if got := Hour.Floor(ts); !got.Equal(time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("Hour.Floor = %v", got)
	}
	if got := Day.Floor(ts); !got.Equal(time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day.Floor = %v", got)
	}
	if got := Month.Floor(ts); !got.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Month.Floor = %v", got)
	}
}

func TestIntervalNext(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)

	if got := Hour.Next(ts); !got.Equal(ts.Add(time.Hour)) {
		t.Errorf("Hour.Next = %v", got)
	}
	if got := Month.Next(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)); !got.Equal(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Month.Next = %v", got)
	}
}

func TestIntervalFormat(t *testing.T) {
	ts := time.Date(2026, 7, 31, 14, 0, 0, 0, time.UTC)

	if got := Hour.Format(ts); got != "2026-07-31T14" {
		t.Errorf("Hour.Format = %q", got)
	}
	if got := Day.Format(ts); got != "2026-07-31" {
		t.Errorf("Day.Format = %q", got)
	}
	if got := Month.Format(ts); got != "2026-07" {
		t.Errorf("Month.Format = %q", got)
	}
}

func TestSteps(t *testing.T) {
	start := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	steps := Steps(Day, start, end)
	want := []time.Time{
		time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC),
	}
	if len(steps) != len(want) {
		t.Fatalf("Steps returned %d steps, want %d", len(steps), len(want))
	}
	for i, s := range steps {
		if !s.Equal(want[i]) {
			t.Errorf("step %d = %v, want %v", i, s, want[i])
		}
	}
}

func TestStepsEmptyRange(t *testing.T) {
	ts := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if steps := Steps(Day, ts, ts); steps != nil {
		t.Errorf("Steps with empty range should return nil, got %v", steps)
	}
}
