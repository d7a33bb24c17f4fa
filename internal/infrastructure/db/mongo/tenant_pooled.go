package mongo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fintrack/fintrack-api/internal/api/metrics"
	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

const tenantDBPrefix = "tenant_"

// tenantEntry is one slot of the process-local connection cache, tagged with
// an explicit provisioning state instead of inferring it from lookup errors.
type tenantEntry struct {
	state ports.ProvisionState
	db    *mongo.Database
}

// PooledTenantStore provisions one logical database per principal and pools
// the handles for the process lifetime. The cache is mutex-guarded and only
// held for map operations, never across a network call; racing provisioners
// both run the (idempotent) schema setup and converge on the same resource.
type PooledTenantStore struct {
	client     *mongo.Client
	principals ports.CredentialStore
	logger     zerolog.Logger

	mu    sync.Mutex
	cache map[string]*tenantEntry
}

func NewPooledTenantStore(client *mongo.Client, principals ports.CredentialStore, logger zerolog.Logger) *PooledTenantStore {
	return &PooledTenantStore{
		client:     client,
		principals: principals,
		logger:     logger,
		cache:      make(map[string]*tenantEntry),
	}
}

// resourceName derives the tenant database name deterministically from the
// principal id, so re-provisioning can never create a second resource.
func resourceName(principalID string) string {
	return tenantDBPrefix + strings.ReplaceAll(principalID, "-", "")
}

func (s *PooledTenantStore) EnsureProvisioned(ctx context.Context, principalID, handle string) (string, error) {
	name := resourceName(principalID)

	s.mu.Lock()
	if e, ok := s.cache[principalID]; ok && e.state == ports.TenantReady {
		s.mu.Unlock()
		return name, nil
	}
	s.cache[principalID] = &tenantEntry{state: ports.TenantProvisioning}
	s.mu.Unlock()

	db := s.client.Database(name)

	// Already provisioned for this principal (pointer persisted earlier, or a
	// concurrent provisioner won): reuse without re-running schema setup.
	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		s.evict(principalID)
		return "", fmt.Errorf("look up principal: %w", err)
	}
	if p.TenantDB == "" {
		if err := s.applySchema(ctx, db, handle); err != nil {
			s.evict(principalID)
			return "", fmt.Errorf("apply tenant schema: %w", err)
		}
		if err := s.principals.SetTenantResource(ctx, principalID, name); err != nil {
			s.evict(principalID)
			return "", fmt.Errorf("persist tenant pointer: %w", err)
		}
		metrics.TenantsProvisionedTotal.Inc()
		s.logger.Info().Str("principal_id", principalID).Str("tenant_db", name).Msg("tenant database provisioned")
	}

	s.mu.Lock()
	s.cache[principalID] = &tenantEntry{state: ports.TenantReady, db: db}
	s.mu.Unlock()
	return name, nil
}

// applySchema creates the baseline collections and indexes. Every step is
// idempotent, so a second run against an existing database is a no-op.
func (s *PooledTenantStore) applySchema(ctx context.Context, db *mongo.Database, handle string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	catIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := db.Collection(collectionCategories).Indexes().CreateMany(ctx, catIdx); err != nil {
		return fmt.Errorf("categories indexes: %w", err)
	}

	txIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "category_id", Value: 1}}},
	}
	if _, err := db.Collection(collectionTransactions).Indexes().CreateMany(ctx, txIdx); err != nil {
		return fmt.Errorf("transactions indexes: %w", err)
	}

	_, err := db.Collection(collectionSettings).UpdateOne(ctx,
		bson.M{"_id": "profile"},
		bson.M{"$setOnInsert": bson.M{"handle": handle, "currency": "USD", "created_at": time.Now().UTC()}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("settings seed: %w", err)
	}
	return nil
}

func (s *PooledTenantStore) SeedDefaults(ctx context.Context, principalID string) error {
	conn, err := s.conn(ctx, principalID)
	if err != nil {
		return err
	}
	return seedDefaultCategories(ctx, conn)
}

func (s *PooledTenantStore) Tenant(ctx context.Context, principalID string) (ports.TenantConn, error) {
	return s.conn(ctx, principalID)
}

func (s *PooledTenantStore) conn(ctx context.Context, principalID string) (*tenantConn, error) {
	s.mu.Lock()
	e, ok := s.cache[principalID]
	s.mu.Unlock()

	if ok && e.state == ports.TenantReady {
		if err := s.probe(ctx); err != nil {
			// Stale handle: drop it and fall through to a fresh open below.
			s.logger.Warn().Err(err).Str("principal_id", principalID).Msg("tenant connection failed liveness probe, reopening")
			s.evict(principalID)
		} else {
			return &tenantConn{db: e.db}, nil
		}
	}

	p, err := s.principals.FindByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if p.TenantDB == "" {
		return nil, domain.ErrTenantNotFound
	}
	db := s.client.Database(p.TenantDB)

	s.mu.Lock()
	s.cache[principalID] = &tenantEntry{state: ports.TenantReady, db: db}
	s.mu.Unlock()
	return &tenantConn{db: db}, nil
}

func (s *PooledTenantStore) probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx, nil)
}

func (s *PooledTenantStore) evict(principalID string) {
	s.mu.Lock()
	delete(s.cache, principalID)
	s.mu.Unlock()
}

// Teardown drops the tenant database and evicts the cached handle. Call only
// after the owning principal row is deleted.
func (s *PooledTenantStore) Teardown(ctx context.Context, principalID string) error {
	s.evict(principalID)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.client.Database(resourceName(principalID)).Drop(ctx); err != nil {
		return fmt.Errorf("drop tenant database: %w", err)
	}
	return nil
}

// seedDefaultCategories upserts the fixed catalog so repeated seeding never
// duplicates rows.
func seedDefaultCategories(ctx context.Context, conn *tenantConn) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	col := conn.db.Collection(collectionCategories)
	for _, c := range domain.DefaultCategories {
		doc := bson.M{
			"_id":        uuid.NewString(),
			"name":       c.Name,
			"color":      c.Color,
			"type":       string(c.Type),
			"is_default": true,
			"created_at": time.Now().UTC(),
		}
		if conn.owner != "" {
			doc["owner_id"] = conn.owner
		}
		_, err := col.UpdateOne(ctx,
			conn.scope(bson.M{"name": c.Name, "is_default": true}),
			bson.M{"$setOnInsert": doc},
			options.Update().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("seed category %q: %w", c.Name, err)
		}
	}
	return nil
}
