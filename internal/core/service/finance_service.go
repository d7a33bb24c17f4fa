package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

const defaultTransactionLimit = 100

// FinanceService serves tenant-scoped category and transaction operations
// through the tenant store.
type FinanceService struct {
	tenants ports.TenantStore
	logger  zerolog.Logger
}

func NewFinanceService(tenants ports.TenantStore, logger zerolog.Logger) *FinanceService {
	return &FinanceService{tenants: tenants, logger: logger}
}

func (s *FinanceService) Categories(ctx context.Context, principalID string) ([]domain.Category, error) {
	conn, err := s.tenants.Tenant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return conn.ListCategories(ctx)
}

func (s *FinanceService) CreateCategory(ctx context.Context, principalID string, c *domain.Category) (*domain.Category, error) {
	if strings.TrimSpace(c.Name) == "" || !domain.ValidCategoryType(c.Type) {
		return nil, fmt.Errorf("%w: category needs a name and a valid type", domain.ErrInvalidInput)
	}
	conn, err := s.tenants.Tenant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	c.ID = uuid.NewString()
	c.IsDefault = false
	c.CreatedAt = time.Now().UTC()
	if err := conn.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *FinanceService) DeleteCategory(ctx context.Context, principalID, categoryID string) error {
	conn, err := s.tenants.Tenant(ctx, principalID)
	if err != nil {
		return err
	}
	return conn.DeleteCategory(ctx, categoryID)
}

func (s *FinanceService) Transactions(ctx context.Context, principalID string, limit int64) ([]domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	conn, err := s.tenants.Tenant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return conn.ListTransactions(ctx, limit)
}

func (s *FinanceService) CreateTransaction(ctx context.Context, principalID string, t *domain.Transaction) (*domain.Transaction, error) {
	if t.Amount == 0 || !domain.ValidCategoryType(t.Type) {
		return nil, fmt.Errorf("%w: transaction needs an amount and a valid type", domain.ErrInvalidInput)
	}
	conn, err := s.tenants.Tenant(ctx, principalID)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()
	if t.Date.IsZero() {
		t.Date = time.Now().UTC()
	}
	t.CreatedAt = time.Now().UTC()
	if err := conn.CreateTransaction(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}
