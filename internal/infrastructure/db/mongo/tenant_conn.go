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
)

const (
	collectionCategories   = "categories"
	collectionTransactions = "transactions"
	collectionSettings     = "settings"
)

// tenantConn is the scoped connection handed to CRUD callers. For the pooled
// store it wraps the tenant's own database and owner is empty; for the shared
// store it wraps the shared database and every filter carries owner_id.
type tenantConn struct {
	db    *mongo.Database
	owner string
}

type mongoCategory struct {
	ID        string    `bson:"_id"`
	OwnerID   string    `bson:"owner_id,omitempty"`
	Name      string    `bson:"name"`
	Color     string    `bson:"color,omitempty"`
	Type      string    `bson:"type"`
	IsDefault bool      `bson:"is_default"`
	CreatedAt time.Time `bson:"created_at"`
}

type mongoTransaction struct {
	ID         string    `bson:"_id"`
	OwnerID    string    `bson:"owner_id,omitempty"`
	Amount     float64   `bson:"amount"`
	Type       string    `bson:"type"`
	CategoryID string    `bson:"category_id,omitempty"`
	Date       time.Time `bson:"date"`
	Note       string    `bson:"note,omitempty"`
	CreatedAt  time.Time `bson:"created_at"`
}

func (c *tenantConn) scope(filter bson.M) bson.M {
	if c.owner != "" {
		filter["owner_id"] = c.owner
	}
	return filter
}

func (c *tenantConn) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := c.db.Collection(collectionCategories).Find(ctx, c.scope(bson.M{}),
		options.Find().SetSort(bson.D{{Key: "is_default", Value: -1}, {Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.Category
	for cur.Next(ctx) {
		var m mongoCategory
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode category: %w", err)
		}
		out = append(out, domain.Category{
			ID:        m.ID,
			Name:      m.Name,
			Color:     m.Color,
			Type:      domain.CategoryType(m.Type),
			IsDefault: m.IsDefault,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, cur.Err()
}

func (c *tenantConn) CreateCategory(ctx context.Context, cat *domain.Category) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoCategory{
		ID:        cat.ID,
		OwnerID:   c.owner,
		Name:      cat.Name,
		Color:     cat.Color,
		Type:      string(cat.Type),
		IsDefault: cat.IsDefault,
		CreatedAt: cat.CreatedAt,
	}
	if _, err := c.db.Collection(collectionCategories).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

// DeleteCategory removes a custom category. Seeded defaults are not deletable.
func (c *tenantConn) DeleteCategory(ctx context.Context, categoryID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	col := c.db.Collection(collectionCategories)
	res, err := col.DeleteOne(ctx, c.scope(bson.M{"_id": categoryID, "is_default": false}))
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if res.DeletedCount > 0 {
		return nil
	}

	// Nothing deleted: distinguish "protected default" from "absent".
	err = col.FindOne(ctx, c.scope(bson.M{"_id": categoryID})).Err()
	switch {
	case err == nil:
		return domain.ErrForbidden
	case errors.Is(err, mongo.ErrNoDocuments):
		return domain.ErrCategoryNotFound
	default:
		return fmt.Errorf("delete category: %w", err)
	}
}

func (c *tenantConn) ListTransactions(ctx context.Context, limit int64) ([]domain.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cur, err := c.db.Collection(collectionTransactions).Find(ctx, c.scope(bson.M{}),
		options.Find().SetSort(bson.D{{Key: "date", Value: -1}}).SetLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer cur.Close(ctx)

	var out []domain.Transaction
	for cur.Next(ctx) {
		var m mongoTransaction
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		out = append(out, domain.Transaction{
			ID:         m.ID,
			Amount:     m.Amount,
			Type:       domain.CategoryType(m.Type),
			CategoryID: m.CategoryID,
			Date:       m.Date,
			Note:       m.Note,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out, cur.Err()
}

func (c *tenantConn) CreateTransaction(ctx context.Context, t *domain.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := mongoTransaction{
		ID:         t.ID,
		OwnerID:    c.owner,
		Amount:     t.Amount,
		Type:       string(t.Type),
		CategoryID: t.CategoryID,
		Date:       t.Date.UTC(),
		Note:       t.Note,
		CreatedAt:  t.CreatedAt.UTC(),
	}
	if _, err := c.db.Collection(collectionTransactions).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
