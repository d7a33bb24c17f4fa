package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
	"github.com/fintrack/fintrack-api/internal/core/service"
)

type stubPrincipalStore struct {
	principals map[string]*domain.Principal
}

func (r *stubPrincipalStore) FindByID(_ context.Context, id string) (*domain.Principal, error) {
	if p, ok := r.principals[id]; ok {
		clone := *p
		return &clone, nil
	}
	return nil, domain.ErrPrincipalNotFound
}

func (r *stubPrincipalStore) Create(context.Context, *domain.Principal) error { return nil }
func (r *stubPrincipalStore) FindByIdentifier(context.Context, string) (*domain.Principal, error) {
	return nil, domain.ErrPrincipalNotFound
}
func (r *stubPrincipalStore) FindByExternalID(context.Context, string) (*domain.Principal, error) {
	return nil, domain.ErrPrincipalNotFound
}
func (r *stubPrincipalStore) RecordFailedLogin(context.Context, string, int, time.Duration) (*ports.FailedLoginResult, error) {
	return nil, nil
}
func (r *stubPrincipalStore) RecordSuccessfulLogin(context.Context, string) error { return nil }
func (r *stubPrincipalStore) SetTenantResource(context.Context, string, string) error {
	return nil
}
func (r *stubPrincipalStore) LinkExternalID(context.Context, string, string) error { return nil }
func (r *stubPrincipalStore) UpdatePassword(context.Context, string, string) error { return nil }
func (r *stubPrincipalStore) Delete(context.Context, string) error                 { return nil }

func gateFixture(t *testing.T) (*service.TokenCodec, *stubPrincipalStore, *domain.Principal) {
	t.Helper()
	codec := service.NewTokenCodec("secret", "fintrack", "fintrack-api", time.Hour, 24*time.Hour, bcrypt.MinCost)
	p := &domain.Principal{ID: "p-1", Handle: "alice", Email: "alice@example.com", IsActive: true}
	store := &stubPrincipalStore{principals: map[string]*domain.Principal{p.ID: p}}
	return codec, store, p
}

func run(mw echo.MiddlewareFunc, req *http.Request) (*httptest.ResponseRecorder, bool, echo.Context) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	handler := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, called, c
}

func TestAuth_ValidToken(t *testing.T) {
	codec, store, p := gateFixture(t)
	pair, err := codec.IssuePair(p)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)

	rec, called, c := run(Auth(codec, store), req)
	if !called {
		t.Fatalf("next not called")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	got, _ := c.Get(ContextPrincipal).(*domain.Principal)
	if got == nil || got.ID != "p-1" {
		t.Fatalf("principal not attached: %+v", got)
	}
	if c.Get(ContextHandle) != "alice" {
		t.Fatalf("handle not attached")
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	codec, store, _ := gateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, called, _ := run(Auth(codec, store), req)
	if called {
		t.Fatalf("next must not run without a token")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAuth_BadScheme(t *testing.T) {
	codec, store, _ := gateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec, called, _ := run(Auth(codec, store), req)
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without next, got %d (called=%v)", rec.Code, called)
	}
}

func TestAuth_MalformedToken(t *testing.T) {
	codec, store, _ := gateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec, called, _ := run(Auth(codec, store), req)
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without next, got %d (called=%v)", rec.Code, called)
	}
}

func TestAuth_RefreshTokenRejected(t *testing.T) {
	codec, store, p := gateFixture(t)
	pair, err := codec.IssuePair(p)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	// A refresh token must not pass the access gate.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Refresh)
	rec, called, _ := run(Auth(codec, store), req)
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without next, got %d (called=%v)", rec.Code, called)
	}
}

func TestAuth_InactivePrincipal(t *testing.T) {
	codec, store, p := gateFixture(t)
	pair, err := codec.IssuePair(p)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	store.principals[p.ID].IsActive = false

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec, called, _ := run(Auth(codec, store), req)
	if called || rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for inactive principal, got %d (called=%v)", rec.Code, called)
	}
}

func TestOptionalAuth_FallsThroughAnonymously(t *testing.T) {
	codec, store, _ := gateFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec, called, c := run(OptionalAuth(codec, store), req)
	if !called {
		t.Fatalf("optional gate must let anonymous requests through")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if c.Get(ContextPrincipal) != nil {
		t.Fatalf("no principal must be attached anonymously")
	}
}

func TestAdminOnly(t *testing.T) {
	codec, store, p := gateFixture(t)
	pair, err := codec.IssuePair(p)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec, called, _ := run(AdminOnly(codec, store), req)
	if called || rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d (called=%v)", rec.Code, called)
	}

	store.principals[p.ID].IsAdmin = true
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec, called, _ = run(AdminOnly(codec, store), req)
	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d (called=%v)", rec.Code, called)
	}
}
