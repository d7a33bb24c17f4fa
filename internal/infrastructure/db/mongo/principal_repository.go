package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

const collectionPrincipals = "principals"

// PrincipalRepository implements ports.CredentialStore on MongoDB. Lockout
// counter mutations use single-document atomic updates so concurrent failed
// logins never under-count.
type PrincipalRepository struct {
	col *mongo.Collection
}

func NewPrincipalRepository(db *mongo.Database) *PrincipalRepository {
	return &PrincipalRepository{col: db.Collection(collectionPrincipals)}
}

type mongoPrincipal struct {
	ID             string     `bson:"_id"`
	Handle         string     `bson:"handle"`
	Email          string     `bson:"email"`
	PasswordHash   string     `bson:"password_hash,omitempty"`
	ExternalID     string     `bson:"external_id,omitempty"`
	FirstName      string     `bson:"first_name,omitempty"`
	LastName       string     `bson:"last_name,omitempty"`
	IsAdmin        bool       `bson:"is_admin"`
	IsActive       bool       `bson:"is_active"`
	FailedAttempts int        `bson:"failed_attempts"`
	LockedUntil    *time.Time `bson:"locked_until,omitempty"`
	TenantDB       string     `bson:"tenant_db,omitempty"`
	LastLoginAt    *time.Time `bson:"last_login_at,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
}

func toMongoPrincipal(p *domain.Principal) mongoPrincipal {
	return mongoPrincipal{
		ID:             p.ID,
		Handle:         p.Handle,
		Email:          p.Email,
		PasswordHash:   p.PasswordHash,
		ExternalID:     p.ExternalID,
		FirstName:      p.FirstName,
		LastName:       p.LastName,
		IsAdmin:        p.IsAdmin,
		IsActive:       p.IsActive,
		FailedAttempts: p.FailedAttempts,
		LockedUntil:    p.LockedUntil,
		TenantDB:       p.TenantDB,
		LastLoginAt:    p.LastLoginAt,
		CreatedAt:      p.CreatedAt,
		UpdatedAt:      p.UpdatedAt,
	}
}

func (m mongoPrincipal) toDomain() *domain.Principal {
	return &domain.Principal{
		ID:             m.ID,
		Handle:         m.Handle,
		Email:          m.Email,
		PasswordHash:   m.PasswordHash,
		ExternalID:     m.ExternalID,
		FirstName:      m.FirstName,
		LastName:       m.LastName,
		IsAdmin:        m.IsAdmin,
		IsActive:       m.IsActive,
		FailedAttempts: m.FailedAttempts,
		LockedUntil:    m.LockedUntil,
		TenantDB:       m.TenantDB,
		LastLoginAt:    m.LastLoginAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func (r *PrincipalRepository) Create(ctx context.Context, p *domain.Principal) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if _, err := r.col.InsertOne(ctx, toMongoPrincipal(p)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert principal: %w", err)
	}
	return nil
}

func (r *PrincipalRepository) FindByID(ctx context.Context, id string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *PrincipalRepository) FindByIdentifier(ctx context.Context, identifier string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.M{"$or": bson.A{
		bson.M{"handle": identifier},
		bson.M{"email": identifier},
	}})
}

func (r *PrincipalRepository) FindByExternalID(ctx context.Context, externalID string) (*domain.Principal, error) {
	return r.findOne(ctx, bson.M{"external_id": externalID})
}

func (r *PrincipalRepository) findOne(ctx context.Context, filter bson.M) (*domain.Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var m mongoPrincipal
	if err := r.col.FindOne(ctx, filter).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("find principal: %w", err)
	}
	return m.toDomain(), nil
}

// RecordFailedLogin increments the counter and stamps the lock expiry in one
// aggregation-pipeline update, so two racing failures both count and the
// threshold check sees the incremented value.
func (r *PrincipalRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, lockFor time.Duration) (*ports.FailedLoginResult, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	lockAt := now.Add(lockFor)
	incremented := bson.D{{Key: "$add", Value: bson.A{"$failed_attempts", 1}}}

	update := mongo.Pipeline{
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "failed_attempts", Value: incremented},
			{Key: "locked_until", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{incremented, threshold}}},
				lockAt,
				"$locked_until",
			}}}},
			{Key: "updated_at", Value: now},
		}}},
	}

	var m mongoPrincipal
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("record failed login: %w", err)
	}

	res := &ports.FailedLoginResult{Attempts: m.FailedAttempts}
	if m.LockedUntil != nil && now.Before(*m.LockedUntil) {
		res.LockedUntil = m.LockedUntil
	}
	return res, nil
}

// RecordSuccessfulLogin zeroes the counter, clears the lock and stamps the
// login time in a single update.
func (r *PrincipalRepository) RecordSuccessfulLogin(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"failed_attempts": 0, "last_login_at": now, "updated_at": now},
		"$unset": bson.M{"locked_until": ""},
	})
	if err != nil {
		return fmt.Errorf("record successful login: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (r *PrincipalRepository) SetTenantResource(ctx context.Context, id, resource string) error {
	return r.setField(ctx, id, bson.M{"tenant_db": resource})
}

// LinkExternalID attaches the external identity. The unique sparse index on
// external_id turns a concurrent double-link into a duplicate-key error.
func (r *PrincipalRepository) LinkExternalID(ctx context.Context, id, externalID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	existing, err := r.FindByExternalID(ctx, externalID)
	if err == nil && existing.ID != id {
		return domain.ErrAlreadyLinkedElsewhere
	}
	if err != nil && !errors.Is(err, domain.ErrPrincipalNotFound) {
		return err
	}

	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"external_id": externalID, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyLinkedElsewhere
		}
		return fmt.Errorf("link external id: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.setField(ctx, id, bson.M{"password_hash": passwordHash})
}

func (r *PrincipalRepository) setField(ctx context.Context, id string, fields bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	fields["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update principal: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete principal: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrPrincipalNotFound
	}
	return nil
}

// EnsureIndexes creates the uniqueness constraints lookups rely on.
func (r *PrincipalRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "handle", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "external_id", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
