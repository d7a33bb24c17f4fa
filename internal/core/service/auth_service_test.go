package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

type stubCredentialStore struct {
	principals map[string]*domain.Principal // keyed by id
}

func newStubCredentialStore() *stubCredentialStore {
	return &stubCredentialStore{principals: make(map[string]*domain.Principal)}
}

func clonePrincipal(p *domain.Principal) *domain.Principal {
	if p == nil {
		return nil
	}
	clone := *p
	if p.LockedUntil != nil {
		t := *p.LockedUntil
		clone.LockedUntil = &t
	}
	return &clone
}

func (r *stubCredentialStore) Create(_ context.Context, p *domain.Principal) error {
	for _, existing := range r.principals {
		if existing.Handle == p.Handle || existing.Email == p.Email {
			return domain.ErrAlreadyExists
		}
	}
	r.principals[p.ID] = clonePrincipal(p)
	return nil
}

func (r *stubCredentialStore) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	if p, ok := r.principals[id]; ok {
		return clonePrincipal(p), nil
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *stubCredentialStore) FindByIdentifier(_ context.Context, identifier string) (*domain.Principal, error) {
	for _, p := range r.principals {
		if p.Handle == identifier || p.Email == identifier {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *stubCredentialStore) FindByExternalID(_ context.Context, externalID string) (*domain.Principal, error) {
	for _, p := range r.principals {
		if p.ExternalID == externalID && externalID != "" {
			return clonePrincipal(p), nil
		}
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *stubCredentialStore) RecordFailedLogin(_ context.Context, id string, threshold int, lockFor time.Duration) (*ports.FailedLoginResult, error) {
	p, ok := r.principals[id]
	if !ok {
		return nil, domain.ErrPrincipalNotFound
	}
	p.FailedAttempts++
	res := &ports.FailedLoginResult{Attempts: p.FailedAttempts}
	if p.FailedAttempts >= threshold {
		until := time.Now().UTC().Add(lockFor)
		p.LockedUntil = &until
		res.LockedUntil = &until
	}
	return res, nil
}

func (r *stubCredentialStore) RecordSuccessfulLogin(_ context.Context, id string) error {
	p, ok := r.principals[id]
	if !ok {
		return domain.ErrPrincipalNotFound
	}
	p.FailedAttempts = 0
	p.LockedUntil = nil
	now := time.Now().UTC()
	p.LastLoginAt = &now
	return nil
}

func (r *stubCredentialStore) SetTenantResource(_ context.Context, id, resource string) error {
	p, ok := r.principals[id]
	if !ok {
		return domain.ErrPrincipalNotFound
	}
	p.TenantDB = resource
	return nil
}

func (r *stubCredentialStore) LinkExternalID(_ context.Context, id, externalID string) error {
	for _, p := range r.principals {
		if p.ExternalID == externalID && p.ID != id {
			return domain.ErrAlreadyLinkedElsewhere
		}
	}
	p, ok := r.principals[id]
	if !ok {
		return domain.ErrPrincipalNotFound
	}
	p.ExternalID = externalID
	return nil
}

func (r *stubCredentialStore) UpdatePassword(_ context.Context, id, passwordHash string) error {
	p, ok := r.principals[id]
	if !ok {
		return domain.ErrPrincipalNotFound
	}
	p.PasswordHash = passwordHash
	return nil
}

func (r *stubCredentialStore) Delete(_ context.Context, id string) error {
	if _, ok := r.principals[id]; !ok {
		return domain.ErrPrincipalNotFound
	}
	delete(r.principals, id)
	return nil
}

type stubTenantStore struct {
	failProvision bool
	provisioned   map[string]bool
	seeded        map[string]bool
	tornDown      map[string]bool
}

func newStubTenantStore() *stubTenantStore {
	return &stubTenantStore{
		provisioned: make(map[string]bool),
		seeded:      make(map[string]bool),
		tornDown:    make(map[string]bool),
	}
}

func (s *stubTenantStore) EnsureProvisioned(_ context.Context, principalID, _ string) (string, error) {
	if s.failProvision {
		return "", errors.New("storage quota exceeded")
	}
	s.provisioned[principalID] = true
	return "tenant_" + principalID, nil
}

func (s *stubTenantStore) SeedDefaults(_ context.Context, principalID string) error {
	s.seeded[principalID] = true
	return nil
}

func (s *stubTenantStore) Tenant(_ context.Context, _ string) (ports.TenantConn, error) {
	return nil, domain.ErrTenantNotFound
}

func (s *stubTenantStore) Teardown(_ context.Context, principalID string) error {
	s.tornDown[principalID] = true
	return nil
}

type stubAuditSink struct {
	events []domain.AuditEvent
}

func (s *stubAuditSink) Enqueue(event domain.AuditEvent) {
	s.events = append(s.events, event)
}

func (s *stubAuditSink) kinds() []domain.AuditKind {
	out := make([]domain.AuditKind, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind
	}
	return out
}

type authFixture struct {
	svc     *AuthService
	creds   *stubCredentialStore
	seshs   *stubSessionRepo
	tenants *stubTenantStore
	audit   *stubAuditSink
}

func newAuthFixture() *authFixture {
	creds := newStubCredentialStore()
	seshs := newStubSessionRepo()
	tenants := newStubTenantStore()
	audit := &stubAuditSink{}

	codec := NewTokenCodec("secret", "fintrack", "fintrack-api", time.Hour, 24*time.Hour, bcrypt.MinCost)
	ledger := NewSessionLedger(seshs, zerolog.Nop())
	svc := NewAuthService(creds, ledger, tenants, codec, audit, zerolog.Nop(), 3, 15*time.Minute)

	return &authFixture{svc: svc, creds: creds, seshs: seshs, tenants: tenants, audit: audit}
}

func (f *authFixture) register(t *testing.T, handle, email, password string) *domain.Principal {
	t.Helper()
	p, err := f.svc.Register(context.Background(), ports.RegisterInput{
		Handle:   handle,
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", handle, err)
	}
	return p
}

func TestAuthService_Register_Success(t *testing.T) {
	f := newAuthFixture()

	p := f.register(t, "Alice", "Alice@Example.com", "Str0ng!pass")
	if p.Handle != "alice" || p.Email != "alice@example.com" {
		t.Fatalf("identifiers not normalized: %+v", p)
	}
	if p.PasswordHash == "Str0ng!pass" {
		t.Fatalf("password stored in the clear")
	}
	if p.TenantDB == "" {
		t.Fatalf("tenant resource not recorded on the principal")
	}
	if !f.tenants.provisioned[p.ID] {
		t.Fatalf("tenant not provisioned")
	}
	if !f.tenants.seeded[p.ID] {
		t.Fatalf("defaults not seeded")
	}
}

func TestAuthService_Register_WeakPassword(t *testing.T) {
	f := newAuthFixture()

	for _, pw := range []string{"short1!", "alllower1!", "NOUPPER1!", "NoDigits!!", "NoSymbol11"} {
		_, err := f.svc.Register(context.Background(), ports.RegisterInput{Handle: "bob", Email: "bob@example.com", Password: pw})
		if !errors.Is(err, domain.ErrWeakCredential) {
			t.Fatalf("password %q: expected ErrWeakCredential, got %v", pw, err)
		}
	}
}

func TestAuthService_Register_BadHandle(t *testing.T) {
	f := newAuthFixture()

	for _, h := range []string{"ab", "-leading", "has space", "wAy@bad"} {
		_, err := f.svc.Register(context.Background(), ports.RegisterInput{Handle: h, Email: "x@example.com", Password: "Str0ng!pass"})
		if !errors.Is(err, domain.ErrWeakCredential) {
			t.Fatalf("handle %q: expected ErrWeakCredential, got %v", h, err)
		}
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "carol", "carol@example.com", "Str0ng!pass")

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Handle: "carol", Email: "other@example.com", Password: "Str0ng!pass"})
	if !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAuthService_Register_ProvisioningRollback(t *testing.T) {
	f := newAuthFixture()
	f.tenants.failProvision = true

	_, err := f.svc.Register(context.Background(), ports.RegisterInput{Handle: "dave", Email: "dave@example.com", Password: "Str0ng!pass"})
	if !errors.Is(err, domain.ErrProvisioningFailed) {
		t.Fatalf("expected ErrProvisioningFailed, got %v", err)
	}
	// The principal row must not survive a failed provisioning.
	if _, err := f.creds.FindByIdentifier(context.Background(), "dave"); !errors.Is(err, domain.ErrPrincipalNotFound) {
		t.Fatalf("expected orphan principal to be rolled back, got %v", err)
	}
}

func TestAuthService_Authenticate_Success(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "erin", "erin@example.com", "Str0ng!pass")

	res, err := f.svc.Authenticate(context.Background(), "erin@example.com", "Str0ng!pass", "203.0.113.9")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Tokens.Access == "" || res.Tokens.Refresh == "" || res.SessionID == "" {
		t.Fatalf("incomplete auth result: %+v", res)
	}
	if f.seshs.activeCount(res.Principal.ID) != 1 {
		t.Fatalf("expected one recorded session")
	}
}

func TestAuthService_Authenticate_UnknownIdentifier(t *testing.T) {
	f := newAuthFixture()

	// Unknown accounts and wrong passwords are indistinguishable to callers.
	_, err := f.svc.Authenticate(context.Background(), "ghost@example.com", "whatever", "")
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthService_Lockout(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "frank", "frank@example.com", "Str0ng!pass")

	// Threshold is 3: first two failures just count.
	for i := 0; i < 2; i++ {
		if _, err := f.svc.Authenticate(context.Background(), "frank", "wrong", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
			t.Fatalf("failure %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
	// The third failure trips the lock and says so right away.
	if _, err := f.svc.Authenticate(context.Background(), "frank", "wrong", ""); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked on the locking attempt, got %v", err)
	}
	stored := f.creds.principals[p.ID]
	if stored.LockedUntil == nil {
		t.Fatalf("expected lock to be set after threshold failures")
	}
	attemptsAtLock := stored.FailedAttempts

	// Even the correct password is refused while the lock is in force, and the
	// refusal is distinguishable so the client can surface the lock.
	if _, err := f.svc.Authenticate(context.Background(), "frank", "Str0ng!pass", ""); !errors.Is(err, domain.ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
	// Locked attempts never touch the counter or extend the lock.
	if f.creds.principals[p.ID].FailedAttempts != attemptsAtLock {
		t.Fatalf("locked attempt changed the counter")
	}
}

func TestAuthService_LockExpiryAllowsLogin(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "grace", "grace@example.com", "Str0ng!pass")

	// Simulate an already-expired lock left over from earlier failures.
	past := time.Now().UTC().Add(-time.Second)
	f.creds.principals[p.ID].FailedAttempts = 3
	f.creds.principals[p.ID].LockedUntil = &past

	res, err := f.svc.Authenticate(context.Background(), "grace", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
	if res.Principal.ID != p.ID {
		t.Fatalf("unexpected principal: %+v", res.Principal)
	}
	// Success resets the counter so the next failure starts from zero.
	if stored := f.creds.principals[p.ID]; stored.FailedAttempts != 0 || stored.LockedUntil != nil {
		t.Fatalf("counter not reset on success: %+v", stored)
	}
}

func TestAuthService_Refresh_RotatesSingleUse(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "heidi", "heidi@example.com", "Str0ng!pass")

	res, err := f.svc.Authenticate(context.Background(), "heidi", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	next, err := f.svc.Refresh(context.Background(), res.Tokens.Refresh)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if next.Refresh == res.Tokens.Refresh {
		t.Fatalf("rotation must mint a new refresh token")
	}

	// The spent token is dead.
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.Refresh); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken on replay, got %v", err)
	}
	// The replacement still rotates.
	if _, err := f.svc.Refresh(context.Background(), next.Refresh); err != nil {
		t.Fatalf("refresh with replacement token: %v", err)
	}
}

func TestAuthService_Refresh_AccessTokenRejected(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ivan", "ivan@example.com", "Str0ng!pass")

	res, err := f.svc.Authenticate(context.Background(), "ivan", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.Access); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken for access token, got %v", err)
	}
}

func TestAuthService_Logout_RevokesSession(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "judy", "judy@example.com", "Str0ng!pass")

	res, err := f.svc.Authenticate(context.Background(), "judy", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.svc.Logout(context.Background(), p.ID, res.SessionID); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if f.seshs.activeCount(p.ID) != 0 {
		t.Fatalf("session still active after logout")
	}
	// A revoked session's refresh token no longer rotates.
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.Refresh); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after logout, got %v", err)
	}
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "kate", "kate@example.com", "Str0ng!pass")

	res, err := f.svc.Authenticate(context.Background(), "kate", "Str0ng!pass", "")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	if err := f.svc.ChangePassword(context.Background(), p.ID, "wrong", "N3w!passwd"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong current password, got %v", err)
	}
	if err := f.svc.ChangePassword(context.Background(), p.ID, "Str0ng!pass", "weak"); !errors.Is(err, domain.ErrWeakCredential) {
		t.Fatalf("expected ErrWeakCredential for weak replacement, got %v", err)
	}
	if err := f.svc.ChangePassword(context.Background(), p.ID, "Str0ng!pass", "N3w!passwd"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Every open session dies with the old password.
	if f.seshs.activeCount(p.ID) != 0 {
		t.Fatalf("sessions must be revoked after a password change")
	}
	if _, err := f.svc.Refresh(context.Background(), res.Tokens.Refresh); !errors.Is(err, domain.ErrInvalidRefreshToken) {
		t.Fatalf("old session refresh must fail, got %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), "kate", "N3w!passwd", ""); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestAuthService_DeleteAccount(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "leo", "leo@example.com", "Str0ng!pass")

	if _, err := f.svc.Authenticate(context.Background(), "leo", "Str0ng!pass", ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := f.svc.DeleteAccount(context.Background(), p.ID); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := f.creds.FindByID(context.Background(), p.ID); !errors.Is(err, domain.ErrPrincipalNotFound) {
		t.Fatalf("principal row must be gone, got %v", err)
	}
	if !f.tenants.tornDown[p.ID] {
		t.Fatalf("tenant resource must be torn down")
	}
	if f.seshs.activeCount(p.ID) != 0 {
		t.Fatalf("sessions must be revoked")
	}
}

func TestAuthService_ExternalLogin_MergesByEmail(t *testing.T) {
	f := newAuthFixture()
	p := f.register(t, "mallory", "mallory@example.com", "Str0ng!pass")

	res, err := f.svc.AuthenticateExternal(context.Background(), ports.ExternalProfile{
		ExternalID: "ext-123",
		Email:      "Mallory@Example.com",
	}, "")
	if err != nil {
		t.Fatalf("AuthenticateExternal: %v", err)
	}
	// Same contact address: the external identity merges into the password
	// account instead of creating a second principal.
	if res.Principal.ID != p.ID {
		t.Fatalf("expected merge into existing principal, got %s", res.Principal.ID)
	}
	if f.creds.principals[p.ID].ExternalID != "ext-123" {
		t.Fatalf("external id not linked")
	}
	if len(f.creds.principals) != 1 {
		t.Fatalf("expected one principal, got %d", len(f.creds.principals))
	}
}

func TestAuthService_ExternalLogin_CreatesAccount(t *testing.T) {
	f := newAuthFixture()

	res, err := f.svc.AuthenticateExternal(context.Background(), ports.ExternalProfile{
		ExternalID: "ext-456",
		Email:      "nina@example.com",
		FirstName:  "Nina",
	}, "")
	if err != nil {
		t.Fatalf("AuthenticateExternal: %v", err)
	}
	if res.Principal.Handle != "nina" {
		t.Fatalf("expected handle derived from address, got %q", res.Principal.Handle)
	}
	if res.Principal.HasPassword() {
		t.Fatalf("external account must not carry a password hash")
	}
	if !f.tenants.provisioned[res.Principal.ID] {
		t.Fatalf("external registration must provision a tenant")
	}

	// A returning visit resolves by external id, no second account.
	again, err := f.svc.AuthenticateExternal(context.Background(), ports.ExternalProfile{
		ExternalID: "ext-456",
		Email:      "nina@example.com",
	}, "")
	if err != nil {
		t.Fatalf("second AuthenticateExternal: %v", err)
	}
	if again.Principal.ID != res.Principal.ID {
		t.Fatalf("expected same principal on return visit")
	}
	if len(f.creds.principals) != 1 {
		t.Fatalf("expected one principal, got %d", len(f.creds.principals))
	}
}

func TestAuthService_ExternalLogin_HandleCollision(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "oscar", "oscar@corp.example.com", "Str0ng!pass")

	res, err := f.svc.AuthenticateExternal(context.Background(), ports.ExternalProfile{
		ExternalID: "ext-789",
		Email:      "oscar@example.com", // different address, colliding local part
	}, "")
	if err != nil {
		t.Fatalf("AuthenticateExternal: %v", err)
	}
	if res.Principal.Handle != "oscar2" {
		t.Fatalf("expected collision-avoided handle oscar2, got %q", res.Principal.Handle)
	}
}

func TestAuthService_LinkExternalAccount_Conflict(t *testing.T) {
	f := newAuthFixture()
	a := f.register(t, "peggy", "peggy@example.com", "Str0ng!pass")
	b := f.register(t, "quinn", "quinn@example.com", "Str0ng!pass")

	if err := f.svc.LinkExternalAccount(context.Background(), a.ID, "ext-dup"); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := f.svc.LinkExternalAccount(context.Background(), b.ID, "ext-dup"); !errors.Is(err, domain.ErrAlreadyLinkedElsewhere) {
		t.Fatalf("expected ErrAlreadyLinkedElsewhere, got %v", err)
	}
}

func TestAuthService_AuditTrail(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "rita", "rita@example.com", "Str0ng!pass")

	if _, err := f.svc.Authenticate(context.Background(), "rita", "wrong", ""); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), "rita", "Str0ng!pass", ""); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}

	want := []domain.AuditKind{domain.AuditRegistered, domain.AuditLoginFailed, domain.AuditLoginOK}
	got := f.audit.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected %d audit events, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("audit event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
