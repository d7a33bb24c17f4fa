package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

type stubSessionRepo struct {
	sessions map[string]*domain.Session // keyed by session id
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *stubSessionRepo) Insert(_ context.Context, s *domain.Session) error {
	clone := *s
	r.sessions[s.ID] = &clone
	return nil
}

func (r *stubSessionRepo) Rotate(_ context.Context, in ports.RotateInput) (*domain.Session, error) {
	now := time.Now().UTC()
	for _, s := range r.sessions {
		if s.RefreshHash == in.OldRefreshHash && s.IsActive && s.RefreshExpiresAt.After(now) {
			s.AccessHash = in.NewAccessHash
			s.RefreshHash = in.NewRefreshHash
			s.AccessExpiresAt = in.AccessExpiresAt
			s.RefreshExpiresAt = in.RefreshExpiresAt
			s.LastUsedAt = now
			clone := *s
			return &clone, nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (r *stubSessionRepo) Revoke(_ context.Context, principalID, sessionID string) error {
	s, ok := r.sessions[sessionID]
	if !ok || s.PrincipalID != principalID || !s.IsActive {
		return domain.ErrSessionNotFound
	}
	s.IsActive = false
	return nil
}

func (r *stubSessionRepo) RevokeAll(_ context.Context, principalID string) error {
	for _, s := range r.sessions {
		if s.PrincipalID == principalID {
			s.IsActive = false
		}
	}
	return nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for id, s := range r.sessions {
		if s.RefreshExpiresAt.Before(now) {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

func (r *stubSessionRepo) activeCount(principalID string) int {
	n := 0
	for _, s := range r.sessions {
		if s.PrincipalID == principalID && s.IsActive {
			n++
		}
	}
	return n
}

var pairSeq int

func testPair(refreshTTL time.Duration) domain.TokenPair {
	now := time.Now().UTC()
	pairSeq++
	return domain.TokenPair{
		Access:           fmt.Sprintf("access-%d", pairSeq),
		Refresh:          fmt.Sprintf("refresh-%d", pairSeq),
		AccessExpiresAt:  now.Add(time.Hour),
		RefreshExpiresAt: now.Add(refreshTTL),
	}
}

func TestSessionLedger_IssueStoresHashesOnly(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	pair := testPair(24 * time.Hour)
	id, err := ledger.Issue(context.Background(), "p-1", pair, "203.0.113.9")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	s := repo.sessions[id]
	if s == nil {
		t.Fatalf("session not stored")
	}
	if s.RefreshHash == pair.Refresh || s.AccessHash == pair.Access {
		t.Fatalf("raw tokens must never reach the ledger")
	}
	if s.RefreshHash != HashToken(pair.Refresh) {
		t.Fatalf("stored hash does not match the token digest")
	}
	if !s.IsActive {
		t.Fatalf("new session must be active")
	}
}

func TestSessionLedger_RotateSingleUse(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	pair := testPair(24 * time.Hour)
	if _, err := ledger.Issue(context.Background(), "p-1", pair, ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next := testPair(24 * time.Hour)
	if _, err := ledger.Rotate(context.Background(), pair.Refresh, next); err != nil {
		t.Fatalf("first rotation: %v", err)
	}

	// The presented token is spent: a replay loses the compare-and-swap.
	if _, err := ledger.Rotate(context.Background(), pair.Refresh, testPair(24*time.Hour)); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}

	// The replacement token keeps working.
	if _, err := ledger.Rotate(context.Background(), next.Refresh, testPair(24*time.Hour)); err != nil {
		t.Fatalf("rotation with replacement token: %v", err)
	}
}

func TestSessionLedger_RotateExpiredRejected(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	pair := testPair(-time.Minute)
	if _, err := ledger.Issue(context.Background(), "p-1", pair, ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.Rotate(context.Background(), pair.Refresh, testPair(24*time.Hour)); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for expired session, got %v", err)
	}
}

func TestSessionLedger_RevokeIdempotent(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	id, err := ledger.Issue(context.Background(), "p-1", testPair(24*time.Hour), "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := ledger.Revoke(context.Background(), "p-1", id); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	// Second revoke of the same session is silently absorbed.
	if err := ledger.Revoke(context.Background(), "p-1", id); err != nil {
		t.Fatalf("second revoke should be a no-op, got %v", err)
	}
	if repo.activeCount("p-1") != 0 {
		t.Fatalf("session still active after revoke")
	}
}

func TestSessionLedger_RevokeAll(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := ledger.Issue(context.Background(), "p-1", testPair(24*time.Hour), ""); err != nil {
			t.Fatalf("Issue: %v", err)
		}
	}
	if _, err := ledger.Issue(context.Background(), "p-2", testPair(24*time.Hour), ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Empty session id fans out to every session of the principal.
	if err := ledger.Revoke(context.Background(), "p-1", ""); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if repo.activeCount("p-1") != 0 {
		t.Fatalf("expected all p-1 sessions revoked")
	}
	if repo.activeCount("p-2") != 1 {
		t.Fatalf("other principals must be untouched")
	}
}

func TestSessionLedger_SweepExpired(t *testing.T) {
	repo := newStubSessionRepo()
	ledger := NewSessionLedger(repo, zerolog.Nop())

	if _, err := ledger.Issue(context.Background(), "p-1", testPair(-time.Minute), ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := ledger.Issue(context.Background(), "p-1", testPair(24*time.Hour), ""); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	n, err := ledger.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}
	if len(repo.sessions) != 1 {
		t.Fatalf("expected 1 remaining session, got %d", len(repo.sessions))
	}
}
