package ports

import (
	"context"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// ProvisionState is the explicit lifecycle tag of a tenant resource.
type ProvisionState string

const (
	TenantAbsent       ProvisionState = "absent"
	TenantProvisioning ProvisionState = "provisioning"
	TenantReady        ProvisionState = "ready"
)

// TenantConn is the only surface CRUD handlers get to tenant storage. Every
// operation is already scoped to the owning principal.
type TenantConn interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
	// DeleteCategory refuses to remove seeded default categories.
	DeleteCategory(ctx context.Context, categoryID string) error
	ListTransactions(ctx context.Context, limit int64) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, t *domain.Transaction) error
}

// TenantStore provisions and pools per-principal storage. Implementations:
// a pooled store with one logical database per principal, and a shared store
// filtering a single schema by owner. Exactly one is active per deployment.
type TenantStore interface {
	// EnsureProvisioned is idempotent: it creates the resource and baseline
	// schema on first call and is a cheap no-op afterwards. Returns the
	// deterministic resource name.
	EnsureProvisioned(ctx context.Context, principalID, handle string) (string, error)
	// SeedDefaults inserts the default category catalog. Best-effort: the
	// caller logs and continues on failure.
	SeedDefaults(ctx context.Context, principalID string) error
	// Tenant returns a connection for the principal, transparently reopening
	// a cached handle that fails its liveness probe.
	Tenant(ctx context.Context, principalID string) (TenantConn, error)
	// Teardown drops the tenant resource. Must only run after the owning
	// principal row is deleted.
	Teardown(ctx context.Context, principalID string) error
}
