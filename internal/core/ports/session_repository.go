package ports

import (
	"context"
	"time"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// RotateInput carries the replacement hashes and expiries for one rotation.
type RotateInput struct {
	OldRefreshHash   string
	NewAccessHash    string
	NewRefreshHash   string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SessionRepository persists the session ledger. Rotation is a compare-and-swap
// on the stored refresh hash: of two concurrent calls with the same token
// exactly one wins, the other sees domain.ErrSessionNotFound.
type SessionRepository interface {
	Insert(ctx context.Context, s *domain.Session) error
	// Rotate replaces the hashes of the active, non-expired session matching
	// OldRefreshHash and returns the updated record.
	Rotate(ctx context.Context, in RotateInput) (*domain.Session, error)
	// Revoke deactivates one session owned by principalID.
	Revoke(ctx context.Context, principalID, sessionID string) error
	// RevokeAll deactivates every session owned by principalID.
	RevokeAll(ctx context.Context, principalID string) error
	// DeleteExpired removes rows past either expiry and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
