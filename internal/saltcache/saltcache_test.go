// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package saltcache

import (
	"sync"
	"testing"
	"time"
)

func TestSaltStableWithinDay(t *testing.T) {
	c := New()
	c.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC) }

	first, err := c.Salt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := c.Salt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(first) != string(second) {
		t.Error("salt changed within the same UTC day")
	}
	if len(first) != saltSize {
		t.Errorf("salt length = %d, want %d", len(first), saltSize)
	}
}

func TestSaltRotatesAcrossDays(t *testing.T) {
	day := time.Date(2026, 7, 31, 23, 59, 0, 0, time.UTC)
	c := New()
	c.nowFunc = func() time.Time { return day }

	before, err := c.Salt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c.nowFunc = func() time.Time { return day.Add(2 * time.Minute) }
	after, err := c.Salt()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(before) == string(after) {
		t.Error("salt did not rotate across a UTC day boundary")
	}
}

func TestSaltConcurrentSameDay(t *testing.T) {
	c := New()
	c.nowFunc = func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) }

	const workers = 16
	results := make([][]byte, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		i := i
		go func() {
			defer wg.Done()
			s, err := c.Salt()
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = s
		}()
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if string(results[i]) != string(results[0]) {
			t.Errorf("worker %d got a different salt than worker 0", i)
		}
	}
}
