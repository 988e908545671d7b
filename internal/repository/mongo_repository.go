package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/aquakit/internal/domain"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const cartTTL = 90 * 24 * time.Hour

type cartDocument struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	OwnerKey  string             `bson:"owner_key"`
	OwnerKind string             `bson:"owner_kind"`
	OwnerID   string             `bson:"owner_id"`
	Items     []lineDocument     `bson:"items"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

// Prices are stored as decimal strings to keep them exact.
type lineDocument struct {
	LineID        string    `bson:"line_id"`
	CatalogItemID string    `bson:"catalog_item_id"`
	UnitPrice     string    `bson:"unit_price"`
	Quantity      int       `bson:"quantity"`
	DisplayName   string    `bson:"display_name"`
	ThumbnailRef  string    `bson:"thumbnail_ref"`
	AddedAt       time.Time `bson:"added_at"`
}

var _ CartRepository = (*MongoRepository)(nil)

// MongoRepository stores one document per owner in the carts collection.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{
		collection: db.Collection("carts"),
	}
}

func (m *MongoRepository) GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error) {
	var doc cartDocument

	err := m.collection.FindOne(ctx, bson.M{"owner_key": owner.Key()}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return doc.toDomain()
}

func (m *MongoRepository) UpsertLine(ctx context.Context, owner domain.Owner, line domain.CartLineItem) error {
	// The unique owner_key index turns a lost race on cart or line creation
	// into a duplicate key error; the second attempt then increments.
	for attempt := 0; attempt < 2; attempt++ {
		incremented, err := m.incrementLine(ctx, owner, line)
		if err != nil {
			return err
		}
		if incremented {
			return nil
		}

		err = m.pushLine(ctx, owner, line)
		if err == nil {
			return nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("failed to add line: %w", err)
		}
	}
	return fmt.Errorf("failed to add line for %s: concurrent update", owner)
}

func (m *MongoRepository) incrementLine(ctx context.Context, owner domain.Owner, line domain.CartLineItem) (bool, error) {
	filter := bson.M{
		"owner_key":             owner.Key(),
		"items.catalog_item_id": line.CatalogItemID,
	}
	update := bson.M{
		"$inc": bson.M{"items.$.quantity": line.Quantity},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to increment line: %w", err)
	}
	return result.MatchedCount > 0, nil
}

func (m *MongoRepository) pushLine(ctx context.Context, owner domain.Owner, line domain.CartLineItem) error {
	now := time.Now()
	if line.AddedAt.IsZero() {
		line.AddedAt = now
	}

	filter := bson.M{
		"owner_key":             owner.Key(),
		"items.catalog_item_id": bson.M{"$ne": line.CatalogItemID},
	}
	update := bson.M{
		"$push": bson.M{"items": toLineDocument(line)},
		"$set":  bson.M{"updated_at": now},
		"$setOnInsert": bson.M{
			"owner_kind": string(owner.Kind),
			"owner_id":   owner.ID,
			"created_at": now,
		},
	}

	_, err := m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (m *MongoRepository) UpdateLineQuantity(ctx context.Context, owner domain.Owner, lineID string, quantity int) error {
	filter := bson.M{
		"owner_key":     owner.Key(),
		"items.line_id": lineID,
	}

	update := bson.M{
		"$set": bson.M{
			"items.$[elem].quantity": quantity,
			"updated_at":             time.Now(),
		},
	}

	arrayFilters := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.line_id": lineID},
		},
	})

	result, err := m.collection.UpdateOne(ctx, filter, update, arrayFilters)
	if err != nil {
		return fmt.Errorf("failed to update line quantity: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrLineNotFound
	}
	return nil
}

func (m *MongoRepository) RemoveLine(ctx context.Context, owner domain.Owner, lineID string) error {
	filter := bson.M{"owner_key": owner.Key()}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"line_id": lineID},
		},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove line: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) DeleteCart(ctx context.Context, owner domain.Owner) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{"owner_key": owner.Key()})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

func (m *MongoRepository) DeleteCartUpdatedBefore(ctx context.Context, owner domain.Owner, cutoff time.Time) error {
	result, err := m.collection.DeleteOne(ctx, bson.M{
		"owner_key":  owner.Key(),
		"updated_at": bson.M{"$lte": cutoff},
	})
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.DeletedCount == 0 {
		return ErrCartNotFound
	}

	return nil
}

// TransferCart is not transactional. The target is written before the source
// is deleted, so a failure in between duplicates quantities rather than
// losing lines.
func (m *MongoRepository) TransferCart(ctx context.Context, from, to domain.Owner) error {
	src, err := m.GetCart(ctx, from)
	if errors.Is(err, ErrCartNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := time.Now()
	dst, err := m.GetCart(ctx, to)
	if errors.Is(err, ErrCartNotFound) {
		update := bson.M{"$set": bson.M{
			"owner_key":  to.Key(),
			"owner_kind": string(to.Kind),
			"owner_id":   to.ID,
			"updated_at": now,
		}}
		if _, err := m.collection.UpdateOne(ctx, bson.M{"owner_key": from.Key()}, update); err != nil {
			return fmt.Errorf("failed to re-key cart: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}

	merged := domain.MergeLines(dst.Items, src.Items)
	docs := make([]lineDocument, len(merged))
	for i, line := range merged {
		docs[i] = toLineDocument(line)
	}

	update := bson.M{"$set": bson.M{"items": docs, "updated_at": now}}
	if _, err := m.collection.UpdateOne(ctx, bson.M{"owner_key": to.Key()}, update); err != nil {
		return fmt.Errorf("failed to merge carts: %w", err)
	}

	if err := m.DeleteCart(ctx, from); err != nil && !errors.Is(err, ErrCartNotFound) {
		return fmt.Errorf("failed to delete merged cart: %w", err)
	}
	return nil
}

func (m *MongoRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner_key", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(cartTTL.Seconds())),
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

func toLineDocument(line domain.CartLineItem) lineDocument {
	return lineDocument{
		LineID:        line.LineID,
		CatalogItemID: line.CatalogItemID,
		UnitPrice:     line.UnitPrice.String(),
		Quantity:      line.Quantity,
		DisplayName:   line.DisplayName,
		ThumbnailRef:  line.ThumbnailRef,
		AddedAt:       line.AddedAt,
	}
}

func (d cartDocument) toDomain() (*domain.Cart, error) {
	cart := &domain.Cart{
		ID:        d.ID.Hex(),
		Owner:     domain.Owner{Kind: domain.OwnerKind(d.OwnerKind), ID: d.OwnerID},
		Items:     make([]domain.CartLineItem, len(d.Items)),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}

	for i, line := range d.Items {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return nil, fmt.Errorf("invalid unit price %q on line %s: %w", line.UnitPrice, line.LineID, err)
		}
		cart.Items[i] = domain.CartLineItem{
			LineID:        line.LineID,
			CatalogItemID: line.CatalogItemID,
			UnitPrice:     price,
			Quantity:      line.Quantity,
			DisplayName:   line.DisplayName,
			ThumbnailRef:  line.ThumbnailRef,
			AddedAt:       line.AddedAt,
		}
	}

	return cart, nil
}
