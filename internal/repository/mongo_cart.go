package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"backend/internal/models"
)

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewMongoCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{collection: db.Collection("cartItems")}
}

func (r *mongoCartRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user": userID}, options.Find().SetSort(bson.D{{Key: "addedAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list cart items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.CartItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	return items, nil
}

func (r *mongoCartRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartItemNotFound
		}
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// UpsertLine relies on the unique (user, product, variant) index: concurrent
// adds for the same combination collapse into one line via $inc.
func (r *mongoCartRepository) UpsertLine(ctx context.Context, userID, productID primitive.ObjectID, key models.VariantKey, qty int, unitPrice float64) (*models.CartItem, error) {
	filter := bson.M{
		"user":          userID,
		"product":       productID,
		"variant.size":  key.Size,
		"variant.color": key.Color,
	}
	update := bson.M{
		"$inc": bson.M{"quantity": qty},
		"$setOnInsert": bson.M{
			"user":    userID,
			"product": productID,
			"variant": key,
			"price":   unitPrice,
			"addedAt": time.Now(),
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var item models.CartItem
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&item); err != nil {
		return nil, fmt.Errorf("failed to upsert cart line: %w", err)
	}
	return &item, nil
}

func (r *mongoCartRepository) SetQuantity(ctx context.Context, id primitive.ObjectID, qty int) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"quantity": qty}})
	if err != nil {
		return fmt.Errorf("failed to update cart quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *mongoCartRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete cart item: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrCartItemNotFound
	}
	return nil
}

func (r *mongoCartRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := r.collection.DeleteMany(ctx, bson.M{"user": userID}); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
