package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fintrack/fintrack-api/internal/core/domain"
	"github.com/fintrack/fintrack-api/internal/core/ports"
)

const collectionAuditEvents = "audit_events"

// AuditRepository persists authentication outcomes to the control database.
type AuditRepository struct {
	db *mongo.Database
}

func NewAuditRepository(db *mongo.Database) ports.AuditRecorder {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Record(ctx context.Context, event *domain.AuditEvent) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := bson.M{
		"kind":        string(event.Kind),
		"at":          event.At.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if event.PrincipalID != "" {
		doc["principal_id"] = event.PrincipalID
	}
	if event.Identifier != "" {
		doc["identifier"] = event.Identifier
	}
	if event.ClientAddress != "" {
		doc["client_address"] = event.ClientAddress
	}
	if event.Detail != "" {
		doc["detail"] = event.Detail
	}

	_, err := r.db.Collection(collectionAuditEvents).InsertOne(ctx, doc)
	return err
}
