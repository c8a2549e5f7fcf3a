// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package events

import (
	"errors"
	"testing"
)

func TestChainAppliesInOrder(t *testing.T) {
	chain := Chain{
		func(e Event) (Event, error) { e["step"] = 1; return e, nil },
		func(e Event) (Event, error) { e["step"] = e["step"].(int) + 1; return e, nil },
	}
	out, dropped, err := chain.Apply(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dropped {
		t.Fatal("expected chain not to drop")
	}
	if out["step"] != 2 {
		t.Errorf("step = %v, want 2", out["step"])
	}
}

func TestChainDrop(t *testing.T) {
	chain := Chain{
		func(e Event) (Event, error) { return nil, ErrDrop },
		func(e Event) (Event, error) { t.Fatal("should not run after drop"); return e, nil },
	}
	out, dropped, err := chain.Apply(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dropped || out != nil {
		t.Errorf("expected dropped=true, out=nil; got dropped=%v out=%v", dropped, out)
	}
}

func TestChainError(t *testing.T) {
	boom := errors.New("boom")
	chain := Chain{
		func(e Event) (Event, error) { return nil, boom },
	}
	_, dropped, err := chain.Apply(New())
	if dropped {
		t.Error("expected dropped=false for a non-drop error")
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected boom error, got %v", err)
	}
}

func TestChainDoesNotMutateInput(t *testing.T) {
	chain := Chain{
		func(e Event) (Event, error) { e["added"] = true; return e, nil },
	}
	in := New()
	in["original"] = true
	out, _, err := chain.Apply(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := in["added"]; ok {
		t.Error("Apply must operate on a clone, not mutate the input event")
	}
	if !out.GetBool("original") {
		t.Error("expected cloned event to retain original fields")
	}
}
