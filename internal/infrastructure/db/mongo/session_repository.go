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

const collectionSessions = "sessions"

// SessionRepository implements ports.SessionRepository on MongoDB. Rotation is
// a filtered FindOneAndUpdate: the filter matches the old refresh hash only
// while the session is active and unexpired, so of two concurrent rotations
// exactly one matches and the other observes ErrSessionNotFound.
type SessionRepository struct {
	col *mongo.Collection
}

func NewSessionRepository(db *mongo.Database) *SessionRepository {
	return &SessionRepository{col: db.Collection(collectionSessions)}
}

type mongoSession struct {
	ID               string    `bson:"_id"`
	PrincipalID      string    `bson:"principal_id"`
	AccessHash       string    `bson:"access_hash"`
	RefreshHash      string    `bson:"refresh_hash"`
	AccessExpiresAt  time.Time `bson:"access_expires_at"`
	RefreshExpiresAt time.Time `bson:"refresh_expires_at"`
	ClientAddress    string    `bson:"client_address,omitempty"`
	IsActive         bool      `bson:"is_active"`
	LastUsedAt       time.Time `bson:"last_used_at"`
	CreatedAt        time.Time `bson:"created_at"`
}

func (m mongoSession) toDomain() *domain.Session {
	return &domain.Session{
		ID:               m.ID,
		PrincipalID:      m.PrincipalID,
		AccessHash:       m.AccessHash,
		RefreshHash:      m.RefreshHash,
		AccessExpiresAt:  m.AccessExpiresAt,
		RefreshExpiresAt: m.RefreshExpiresAt,
		ClientAddress:    m.ClientAddress,
		IsActive:         m.IsActive,
		LastUsedAt:       m.LastUsedAt,
		CreatedAt:        m.CreatedAt,
	}
}

func (r *SessionRepository) Insert(ctx context.Context, s *domain.Session) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoSession{
		ID:               s.ID,
		PrincipalID:      s.PrincipalID,
		AccessHash:       s.AccessHash,
		RefreshHash:      s.RefreshHash,
		AccessExpiresAt:  s.AccessExpiresAt.UTC(),
		RefreshExpiresAt: s.RefreshExpiresAt.UTC(),
		ClientAddress:    s.ClientAddress,
		IsActive:         s.IsActive,
		LastUsedAt:       s.LastUsedAt.UTC(),
		CreatedAt:        s.CreatedAt.UTC(),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Rotate(ctx context.Context, in ports.RotateInput) (*domain.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	now := time.Now().UTC()
	filter := bson.M{
		"refresh_hash":       in.OldRefreshHash,
		"is_active":          true,
		"refresh_expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{
		"access_hash":        in.NewAccessHash,
		"refresh_hash":       in.NewRefreshHash,
		"access_expires_at":  in.AccessExpiresAt.UTC(),
		"refresh_expires_at": in.RefreshExpiresAt.UTC(),
		"last_used_at":       now,
	}}

	var m mongoSession
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("rotate session: %w", err)
	}
	return m.toDomain(), nil
}

func (r *SessionRepository) Revoke(ctx context.Context, principalID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": sessionID, "principal_id": principalID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "last_used_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) RevokeAll(ctx context.Context, principalID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateMany(ctx,
		bson.M{"principal_id": principalID, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "last_used_at": time.Now().UTC()}})
	if err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// DeleteExpired removes rows whose refresh expiry has passed plus inactive
// rows whose access expiry has passed. Idempotent.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	res, err := r.col.DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"refresh_expires_at": bson.M{"$lte": now}},
		bson.M{"is_active": false, "access_expires_at": bson.M{"$lte": now}},
	}})
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	return res.DeletedCount, nil
}

// EnsureIndexes creates the lookup indexes the ledger depends on.
func (r *SessionRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "refresh_hash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "principal_id", Value: 1}}},
		{Keys: bson.D{{Key: "refresh_expires_at", Value: 1}}},
	}

	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
