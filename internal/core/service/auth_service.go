package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute

	minPasswordLength = 8
	maxHandleAttempts = 50
)

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{2,31}$`)

// AuthService orchestrates the credential store, session ledger and tenant
// store into the register / authenticate / refresh / logout use cases.
type AuthService struct {
	principals ports.CredentialStore
	ledger     *SessionLedger
	tenants    ports.TenantStore
	codec      *TokenCodec
	audit      ports.AuditSink
	logger     zerolog.Logger

	lockoutThreshold int
	lockoutDuration  time.Duration
}

func NewAuthService(
	principals ports.CredentialStore,
	ledger *SessionLedger,
	tenants ports.TenantStore,
	codec *TokenCodec,
	audit ports.AuditSink,
	logger zerolog.Logger,
	lockoutThreshold int,
	lockoutDuration time.Duration,
) *AuthService {
	if lockoutThreshold <= 0 {
		lockoutThreshold = defaultLockoutThreshold
	}
	if lockoutDuration <= 0 {
		lockoutDuration = defaultLockoutDuration
	}
	return &AuthService{
		principals:       principals,
		ledger:           ledger,
		tenants:          tenants,
		codec:            codec,
		audit:            audit,
		logger:           logger,
		lockoutThreshold: lockoutThreshold,
		lockoutDuration:  lockoutDuration,
	}
}

// Register creates the principal, provisions its tenant resource and seeds
// defaults as one logical unit. On provisioning failure the principal row is
// deleted again so no account exists without its storage.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (*domain.Principal, error) {
	handle := domain.NormalizeIdentifier(in.Handle)
	email := domain.NormalizeIdentifier(in.Email)
	if !handlePattern.MatchString(handle) {
		return nil, fmt.Errorf("%w: handle must be 3-32 characters of a-z, 0-9, '_', '.', '-'", domain.ErrWeakCredential)
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.codec.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	p := &domain.Principal{
		ID:           uuid.NewString(),
		Handle:       handle,
		Email:        email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}

	if err := s.provision(ctx, p); err != nil {
		return nil, err
	}

	s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Identifier: handle, Kind: domain.AuditRegistered, At: now})
	s.logger.Info().Str("principal_id", p.ID).Str("handle", handle).Msg("principal registered")
	return p, nil
}

// provision creates the tenant resource for a freshly inserted principal and
// compensates by deleting the row when provisioning fails. Default-category
// seeding is best-effort and never fails the registration.
func (s *AuthService) provision(ctx context.Context, p *domain.Principal) error {
	resource, err := s.tenants.EnsureProvisioned(ctx, p.ID, p.Handle)
	if err != nil {
		if delErr := s.principals.Delete(ctx, p.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("principal_id", p.ID).Msg("rollback of principal after provisioning failure failed")
		}
		return fmt.Errorf("%w: %v", domain.ErrProvisioningFailed, err)
	}
	p.TenantDB = resource

	if err := s.tenants.SeedDefaults(ctx, p.ID); err != nil {
		s.logger.Warn().Err(err).Str("principal_id", p.ID).Msg("default category seeding failed")
	}
	return nil
}

// Authenticate verifies credentials and issues a token pair. A locked account
// fails before any password work; the lock state is never extended by
// attempts made while it is in force.
func (s *AuthService) Authenticate(ctx context.Context, identifier, password, clientAddress string) (*ports.AuthResult, error) {
	identifier = domain.NormalizeIdentifier(identifier)
	now := time.Now().UTC()

	p, err := s.principals.FindByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			s.audit.Enqueue(domain.AuditEvent{Identifier: identifier, Kind: domain.AuditLoginFailed, ClientAddress: clientAddress, Detail: "unknown account", At: now})
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !p.IsActive {
		s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: domain.AuditLoginFailed, ClientAddress: clientAddress, Detail: "inactive account", At: now})
		return nil, domain.ErrInvalidCredentials
	}
	if p.IsLocked(now) {
		s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: domain.AuditLoginLocked, ClientAddress: clientAddress, At: now})
		return nil, domain.ErrAccountLocked
	}
	if !p.HasPassword() || !s.codec.VerifyPassword(password, p.PasswordHash) {
		res, recErr := s.principals.RecordFailedLogin(ctx, p.ID, s.lockoutThreshold, s.lockoutDuration)
		if recErr != nil {
			return nil, recErr
		}
		// The attempt that reaches the threshold already reports the lock, so
		// the caller learns immediately rather than on the next try.
		if res.LockedUntil != nil {
			s.logger.Warn().Str("principal_id", p.ID).Int("attempts", res.Attempts).Time("locked_until", *res.LockedUntil).Msg("account locked after repeated failures")
			s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: domain.AuditLoginLocked, ClientAddress: clientAddress, Detail: "wrong password", At: now})
			return nil, domain.ErrAccountLocked
		}
		s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: domain.AuditLoginFailed, ClientAddress: clientAddress, Detail: "wrong password", At: now})
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.principals.RecordSuccessfulLogin(ctx, p.ID); err != nil {
		return nil, err
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil

	return s.openSession(ctx, p, clientAddress, domain.AuditLoginOK)
}

// openSession issues a pair, records it in the ledger and audits the outcome.
func (s *AuthService) openSession(ctx context.Context, p *domain.Principal, clientAddress string, kind domain.AuditKind) (*ports.AuthResult, error) {
	pair, err := s.codec.IssuePair(p)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	sessionID, err := s.ledger.Issue(ctx, p.ID, pair, clientAddress)
	if err != nil {
		return nil, fmt.Errorf("record session: %w", err)
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: kind, ClientAddress: clientAddress, At: time.Now().UTC()})
	return &ports.AuthResult{Principal: p, Tokens: pair, SessionID: sessionID}, nil
}

// Refresh rotates a refresh token for a new pair. The presented token becomes
// unusable the moment rotation succeeds.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	claims, err := s.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrInvalidRefreshToken
	}
	p, err := s.principals.FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			return nil, domain.ErrInvalidRefreshToken
		}
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrInvalidRefreshToken
	}

	pair, err := s.codec.IssuePair(p)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	sess, err := s.ledger.Rotate(ctx, refreshToken, pair)
	if err != nil {
		return nil, err
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Kind: domain.AuditTokenRefresh, ClientAddress: sess.ClientAddress, At: time.Now().UTC()})
	return &pair, nil
}

// Logout revokes one session, or all of them when sessionID is empty. Always
// succeeds from the caller's perspective even without a matching session.
func (s *AuthService) Logout(ctx context.Context, principalID, sessionID string) error {
	if err := s.ledger.Revoke(ctx, principalID, sessionID); err != nil {
		return err
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: principalID, Kind: domain.AuditLogout, At: time.Now().UTC()})
	return nil
}

// LinkExternalAccount attaches an external identity unless it already belongs
// to a different principal.
func (s *AuthService) LinkExternalAccount(ctx context.Context, principalID, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return domain.ErrTokenInvalid
	}
	if err := s.principals.LinkExternalID(ctx, principalID, externalID); err != nil {
		return err
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: principalID, Kind: domain.AuditAccountLinked, At: time.Now().UTC()})
	return nil
}

// AuthenticateExternal resolves an OAuth profile: by external id first, then
// by contact address (merging the external identity into an existing password
// account), and only then by creating a new principal.
func (s *AuthService) AuthenticateExternal(ctx context.Context, profile ports.ExternalProfile, clientAddress string) (*ports.AuthResult, error) {
	now := time.Now().UTC()

	p, err := s.principals.FindByExternalID(ctx, profile.ExternalID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrPrincipalNotFound):
		p, err = s.mergeOrCreateExternal(ctx, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if !p.IsActive {
		return nil, domain.ErrInvalidCredentials
	}
	if p.IsLocked(now) {
		return nil, domain.ErrAccountLocked
	}
	return s.openSession(ctx, p, clientAddress, domain.AuditLoginOK)
}

func (s *AuthService) mergeOrCreateExternal(ctx context.Context, profile ports.ExternalProfile) (*domain.Principal, error) {
	email := domain.NormalizeIdentifier(profile.Email)

	existing, err := s.principals.FindByIdentifier(ctx, email)
	if err == nil {
		if linkErr := s.principals.LinkExternalID(ctx, existing.ID, profile.ExternalID); linkErr != nil {
			return nil, linkErr
		}
		existing.ExternalID = profile.ExternalID
		s.audit.Enqueue(domain.AuditEvent{PrincipalID: existing.ID, Kind: domain.AuditAccountLinked, At: time.Now().UTC()})
		return existing, nil
	}
	if !errors.Is(err, domain.ErrPrincipalNotFound) {
		return nil, err
	}

	handle, err := s.generateHandle(ctx, email)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	p := &domain.Principal{
		ID:         uuid.NewString(),
		Handle:     handle,
		Email:      email,
		ExternalID: profile.ExternalID,
		FirstName:  strings.TrimSpace(profile.FirstName),
		LastName:   strings.TrimSpace(profile.LastName),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.provision(ctx, p); err != nil {
		return nil, err
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: p.ID, Identifier: handle, Kind: domain.AuditRegistered, At: now})
	return p, nil
}

// generateHandle derives a collision-avoided handle from the local part of
// the contact address.
func (s *AuthService) generateHandle(ctx context.Context, email string) (string, error) {
	base := email
	if at := strings.IndexByte(base, '@'); at > 0 {
		base = base[:at]
	}
	base = sanitizeHandle(base)

	candidate := base
	for i := 2; i <= maxHandleAttempts; i++ {
		_, err := s.principals.FindByIdentifier(ctx, candidate)
		if errors.Is(err, domain.ErrPrincipalNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	// Pathological collision density: fall back to a random suffix.
	return fmt.Sprintf("%s-%s", base, uuid.NewString()[:8]), nil
}

func sanitizeHandle(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	h := strings.TrimLeft(b.String(), "_.-")
	if len(h) < 3 {
		h = "user" + h
	}
	if len(h) > 32 {
		h = h[:32]
	}
	return h
}

// ChangePassword verifies the current password, applies the policy to the new
// one and revokes every open session afterwards.
func (s *AuthService) ChangePassword(ctx context.Context, principalID, current, next string) error {
	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return err
	}
	if !p.HasPassword() || !s.codec.VerifyPassword(current, p.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.codec.HashPassword(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.principals.UpdatePassword(ctx, principalID, hash); err != nil {
		return err
	}
	if err := s.ledger.Revoke(ctx, principalID, ""); err != nil {
		s.logger.Error().Err(err).Str("principal_id", principalID).Msg("session revocation after password change failed")
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: principalID, Kind: domain.AuditPasswordReset, At: time.Now().UTC()})
	return nil
}

// DeleteAccount removes the principal and everything it owns. The principal
// row goes first; a crash before teardown leaves an orphaned tenant resource
// rather than a principal pointing at nothing.
func (s *AuthService) DeleteAccount(ctx context.Context, principalID string) error {
	if err := s.ledger.Revoke(ctx, principalID, ""); err != nil {
		return err
	}
	if err := s.principals.Delete(ctx, principalID); err != nil {
		return err
	}
	if err := s.tenants.Teardown(ctx, principalID); err != nil {
		s.logger.Error().Err(err).Str("principal_id", principalID).Msg("tenant teardown failed, resource orphaned")
	}
	s.audit.Enqueue(domain.AuditEvent{PrincipalID: principalID, Kind: domain.AuditAccountWiped, At: time.Now().UTC()})
	return nil
}

// validatePassword enforces the registration policy: minimum length plus
// upper case, lower case, digit and symbol.
func validatePassword(pw string) error {
	if len(pw) < minPasswordLength {
		return fmt.Errorf("%w: at least %d characters", domain.ErrWeakCredential, minPasswordLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return fmt.Errorf("%w: needs upper case, lower case, digit and symbol", domain.ErrWeakCredential)
	}
	return nil
}
