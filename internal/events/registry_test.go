// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package events

import "testing"

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Def{Type: "file-download", Template: "file-download"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	def, ok := r.Get("file-download")
	if !ok {
		t.Fatal("expected file-download to be registered")
	}
	if def.Template != "file-download" {
		t.Errorf("template = %q", def.Template)
	}
}

func TestRegistryDuplicateType(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Def{Type: "file-download"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(Def{Type: "file-download"}); err == nil {
		t.Fatal("expected error registering a duplicate type")
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()
	for _, typ := range []string{"record-view", "file-download", "community-event"} {
		if err := r.Register(Def{Type: typ}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	got := r.Types()
	want := []string{"community-event", "file-download", "record-view"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Types()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegistryMustGetPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected MustGet to panic for an unregistered type")
		}
	}()
	NewRegistry().MustGet("does-not-exist")
}
