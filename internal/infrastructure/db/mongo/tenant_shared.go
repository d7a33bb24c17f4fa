package mongo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fintrack/fintrack-api/internal/api/metrics"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

// SharedTenantStore is the single-schema deployment variant: all tenants live
// in one database and every row carries owner_id. Provisioning only has to
// guarantee the shared indexes exist and seed the default catalog for the new
// owner.
type SharedTenantStore struct {
	db         *mongo.Database
	principals ports.CredentialStore

	indexOnce sync.Once
	indexErr  error
}

func NewSharedTenantStore(db *mongo.Database, principals ports.CredentialStore) *SharedTenantStore {
	return &SharedTenantStore{db: db, principals: principals}
}

func (s *SharedTenantStore) EnsureProvisioned(ctx context.Context, principalID, handle string) (string, error) {
	if err := s.ensureIndexes(ctx); err != nil {
		return "", fmt.Errorf("shared tenant indexes: %w", err)
	}
	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return "", fmt.Errorf("look up principal: %w", err)
	}
	if p.TenantDB == "" {
		if err := s.principals.SetTenantResource(ctx, principalID, s.db.Name()); err != nil {
			return "", fmt.Errorf("persist tenant pointer: %w", err)
		}
		metrics.TenantsProvisionedTotal.Inc()
	}
	return s.db.Name(), nil
}

func (s *SharedTenantStore) ensureIndexes(ctx context.Context) error {
	s.indexOnce.Do(func() {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		catIdx := []mongo.IndexModel{
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		}
		if _, err := s.db.Collection(collectionCategories).Indexes().CreateMany(ctx, catIdx); err != nil {
			s.indexErr = err
			return
		}
		txIdx := []mongo.IndexModel{
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "date", Value: -1}}},
		}
		if _, err := s.db.Collection(collectionTransactions).Indexes().CreateMany(ctx, txIdx); err != nil {
			s.indexErr = err
		}
	})
	return s.indexErr
}

func (s *SharedTenantStore) SeedDefaults(ctx context.Context, principalID string) error {
	return seedDefaultCategories(ctx, &tenantConn{db: s.db, owner: principalID})
}

func (s *SharedTenantStore) Tenant(ctx context.Context, principalID string) (ports.TenantConn, error) {
	return &tenantConn{db: s.db, owner: principalID}, nil
}

// Teardown deletes every row the principal owns. The shared database itself
// stays, so this is a filtered wipe rather than a drop.
func (s *SharedTenantStore) Teardown(ctx context.Context, principalID string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, name := range []string{collectionCategories, collectionTransactions, collectionSettings} {
		if _, err := s.db.Collection(name).DeleteMany(ctx, bson.M{"owner_id": principalID}); err != nil {
			return fmt.Errorf("wipe %s: %w", name, err)
		}
	}
	return nil
}
