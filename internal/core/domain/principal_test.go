package domain

import (
	"testing"
	"time"
)

func TestPrincipal_IsLocked_Boundary(t *testing.T) {
	until := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	p := &Principal{LockedUntil: &until}

	if !p.IsLocked(until.Add(-time.Nanosecond)) {
		t.Fatalf("expected locked just before expiry")
	}
	// The exact expiry instant counts as unlocked.
	if p.IsLocked(until) {
		t.Fatalf("expected unlocked at the exact expiry instant")
	}
	if p.IsLocked(until.Add(time.Nanosecond)) {
		t.Fatalf("expected unlocked after expiry")
	}
}

func TestPrincipal_IsLocked_NoLock(t *testing.T) {
	p := &Principal{}
	if p.IsLocked(time.Now()) {
		t.Fatalf("principal without a lock must never be locked")
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	cases := map[string]string{
		"  Alice  ":         "alice",
		"Bob@Example.COM":   "bob@example.com",
		"already.lowercase": "already.lowercase",
	}
	for in, want := range cases {
		if got := NormalizeIdentifier(in); got != want {
			t.Fatalf("NormalizeIdentifier(%q) = %q, want %q", in, got, want)
		}
	}
}
