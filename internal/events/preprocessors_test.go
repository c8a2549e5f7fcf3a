// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cartographus

package events

import (
	"errors"
	"testing"
	"time"

	"github.com/tomtom215/eventstats/internal/saltcache"
)

func TestFlagRobotsMatches(t *testing.T) {
	flag, err := FlagRobots(DefaultRobotPatterns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := New()
	e[FieldUserAgent] = "Mozilla/5.0 (compatible; Googlebot/2.1)"
	out, err := flag(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.GetBool(FieldIsRobot) {
		t.Error("expected is_robot = true for a googlebot user agent")
	}
}

func TestFlagRobotsNoMatch(t *testing.T) {
	flag, err := FlagRobots(DefaultRobotPatterns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := New()
	e[FieldUserAgent] = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)"
	out, err := flag(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GetBool(FieldIsRobot) {
		t.Error("expected is_robot = false for a regular browser user agent")
	}
}

func TestFlagRobotsAbsentAgent(t *testing.T) {
	flag, err := FlagRobots(DefaultRobotPatterns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := flag(New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GetBool(FieldIsRobot) {
		t.Error("expected is_robot = false when user_agent is absent")
	}
}

func TestFlagMachinesMatches(t *testing.T) {
	flag, err := FlagMachines(DefaultMachinePatterns)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := New()
	e[FieldUserAgent] = "Prometheus/2.45.0"
	out, err := flag(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.GetBool(FieldIsMachine) {
		t.Error("expected is_machine = true for a prometheus user agent")
	}
}

func TestBuildUniqueID(t *testing.T) {
	build := BuildUniqueID("bucket_id", "file_id")
	e := New()
	e["bucket_id"] = "b1"
	e["file_id"] = "f2"
	out, err := build(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.GetString(FieldUniqueID); got != "b1_f2" {
		t.Errorf("unique_id = %q, want %q", got, "b1_f2")
	}
}

func TestBuildUniqueIDMissingField(t *testing.T) {
	build := BuildUniqueID("bucket_id", "file_id")
	e := New()
	e["bucket_id"] = "b1"
	out, err := build(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := out.GetString(FieldUniqueID); got != "b1_" {
		t.Errorf("unique_id = %q, want %q", got, "b1_")
	}
}

func TestDropFilter(t *testing.T) {
	drop := DropFilter(func(e Event) bool { return e.GetBool("spam") })

	spam := New()
	spam["spam"] = true
	if _, err := drop(spam); !errors.Is(err, ErrDrop) {
		t.Errorf("expected ErrDrop, got %v", err)
	}

	clean := New()
	out, err := drop(clean)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out == nil {
		t.Error("expected event to pass through unchanged")
	}
}

func TestSha1Hex(t *testing.T) {
	got := Sha1Hex("hello")
	want := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"
	if got != want {
		t.Errorf("Sha1Hex(%q) = %q, want %q", "hello", got, want)
	}
}

func TestAnonymizeUserStripsIdentifiers(t *testing.T) {
	salts := saltcache.New()
	anon := AnonymizeUser(salts, NullCountryLookup{})

	e := New()
	e[FieldIPAddress] = "203.0.113.9"
	e[FieldUserID] = "user-42"
	e[FieldUserAgent] = "curl/8.0"
	e.SetTimestamp(time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC))

	out, err := anon(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.GetString(FieldIPAddress) != "" || out.GetString(FieldUserID) != "" || out.GetString(FieldUserAgent) != "" {
		t.Error("expected ip/user_id/user_agent to be stripped")
	}
	if out.GetString(FieldVisitorID) == "" {
		t.Error("expected visitor_id to be set")
	}
	if out.GetString(FieldUniqueSessionID) == "" {
		t.Error("expected unique_session_id to be set")
	}
}

func TestAnonymizeUserStableForSameIdentity(t *testing.T) {
	salts := saltcache.New()
	anon := AnonymizeUser(salts, NullCountryLookup{})
	ts := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)

	e1 := New()
	e1[FieldUserID] = "user-42"
	e1.SetTimestamp(ts)
	out1, err := anon(e1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e2 := New()
	e2[FieldUserID] = "user-42"
	e2.SetTimestamp(ts)
	out2, err := anon(e2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if out1.GetString(FieldVisitorID) != out2.GetString(FieldVisitorID) {
		t.Error("same user id and salt should produce the same visitor_id")
	}
}
