package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

// SessionLedger records issued token pairs as hashes and enforces single-use
// refresh rotation on top of a SessionRepository.
type SessionLedger struct {
	sessions ports.SessionRepository
	logger   zerolog.Logger
}

func NewSessionLedger(sessions ports.SessionRepository, logger zerolog.Logger) *SessionLedger {
	return &SessionLedger{sessions: sessions, logger: logger}
}

// Issue stores a new session for the pair and returns its opaque id.
func (l *SessionLedger) Issue(ctx context.Context, principalID string, pair domain.TokenPair, clientAddress string) (string, error) {
	now := time.Now().UTC()
	s := &domain.Session{
		ID:               uuid.NewString(),
		PrincipalID:      principalID,
		AccessHash:       HashToken(pair.Access),
		RefreshHash:      HashToken(pair.Refresh),
		AccessExpiresAt:  pair.AccessExpiresAt,
		RefreshExpiresAt: pair.RefreshExpiresAt,
		ClientAddress:    clientAddress,
		IsActive:         true,
		LastUsedAt:       now,
		CreatedAt:        now,
	}
	if err := l.sessions.Insert(ctx, s); err != nil {
		return "", err
	}
	return s.ID, nil
}

// Rotate swaps the stored hashes for the session matching the presented
// refresh token. Exactly one of two concurrent calls with the same token
// succeeds; the loser gets domain.ErrInvalidRefreshToken.
func (l *SessionLedger) Rotate(ctx context.Context, refreshRaw string, next domain.TokenPair) (*domain.Session, error) {
	s, err := l.sessions.Rotate(ctx, ports.RotateInput{
		OldRefreshHash:   HashToken(refreshRaw),
		NewAccessHash:    HashToken(next.Access),
		NewRefreshHash:   HashToken(next.Refresh),
		AccessExpiresAt:  next.AccessExpiresAt,
		RefreshExpiresAt: next.RefreshExpiresAt,
	})
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, err
	}
	return s, nil
}

// Revoke deactivates one session, or every session of the principal when
// sessionID is empty. A missing session is not an error (idempotent logout).
func (l *SessionLedger) Revoke(ctx context.Context, principalID, sessionID string) error {
	if sessionID == "" {
		return l.sessions.RevokeAll(ctx, principalID)
	}
	if err := l.sessions.Revoke(ctx, principalID, sessionID); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// SweepExpired deletes ledger rows past either expiry. Safe to run
// concurrently with issuance; intended for a periodic background loop.
func (l *SessionLedger) SweepExpired(ctx context.Context) (int64, error) {
	n, err := l.sessions.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.logger.Info().Int64("sessions", n).Msg("expired sessions swept")
	}
	return n, nil
}
