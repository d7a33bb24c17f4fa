package ports

import (
	"context"

	"github.com/fintrack/fintrack-api/internal/core/domain"
)

// FinanceService exposes tenant-scoped category and transaction operations.
// All access goes through the TenantStore; handlers never open their own
// connections to tenant storage.
type FinanceService interface {
	Categories(ctx context.Context, principalID string) ([]domain.Category, error)
	CreateCategory(ctx context.Context, principalID string, c *domain.Category) (*domain.Category, error)
	DeleteCategory(ctx context.Context, principalID, categoryID string) error
	Transactions(ctx context.Context, principalID string, limit int64) ([]domain.Transaction, error)
	CreateTransaction(ctx context.Context, principalID string, t *domain.Transaction) (*domain.Transaction, error)
}
