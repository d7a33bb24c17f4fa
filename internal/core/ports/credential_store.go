package ports

import (
	"context"
	"time"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// FailedLoginResult reports the counter state after one recorded failure.
type FailedLoginResult struct {
	Attempts    int
	LockedUntil *time.Time
}

// CredentialStore persists principal records, including the embedded lockout
// counters. Counter mutations must be atomic per principal so concurrent
// failed logins never under-count.
type CredentialStore interface {
	Create(ctx context.Context, p *domain.Principal) error
	FindByID(ctx context.Context, id string) (*domain.Principal, error)
	// FindByIdentifier resolves a normalized handle or email.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error)
	FindByExternalID(ctx context.Context, externalID string) (*domain.Principal, error)

	// RecordFailedLogin increments the failure counter in a single conditional
	// update; when the counter reaches threshold it stamps now+lockFor as the
	// lock expiry. The counter is not reset until a successful login.
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockFor time.Duration) (*FailedLoginResult, error)
	// RecordSuccessfulLogin atomically zeroes the counter, clears the lock
	// expiry and stamps the last-login time.
	RecordSuccessfulLogin(ctx context.Context, id string) error

	SetTenantResource(ctx context.Context, id, resource string) error
	// LinkExternalID attaches an external identity; fails with
	// domain.ErrAlreadyLinkedElsewhere when it belongs to another principal.
	LinkExternalID(ctx context.Context, id, externalID string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	Delete(ctx context.Context, id string) error
}
