package ports

import (
	"context"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// RegisterInput carries a validated registration request.
type RegisterInput struct {
	Handle    string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ExternalProfile is the subset of an OAuth profile the service needs.
type ExternalProfile struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// AuthResult bundles the authenticated principal with its issued tokens.
type AuthResult struct {
	Principal *domain.Principal
	Tokens    domain.TokenPair
	SessionID string
}

// AuthService is the public contract consumed by route handlers.
type AuthService interface {
	Register(ctx context.Context, in RegisterInput) (*domain.Principal, error)
	Authenticate(ctx context.Context, identifier, password, clientAddress string) (*AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error)
	// Logout is idempotent; an empty sessionID revokes every session.
	Logout(ctx context.Context, principalID, sessionID string) error
	LinkExternalAccount(ctx context.Context, principalID, externalID string) error
	// AuthenticateExternal resolves an OAuth profile to a principal, merging
	// into an existing account by contact address before creating a new one.
	AuthenticateExternal(ctx context.Context, profile ExternalProfile, clientAddress string) (*AuthResult, error)
	ChangePassword(ctx context.Context, principalID, current, next string) error
	DeleteAccount(ctx context.Context, principalID string) error
}
