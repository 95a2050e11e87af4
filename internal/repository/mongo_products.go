package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"backend/internal/models"
)

type mongoProductRepository struct {
	collection *mongo.Collection
}

func NewMongoProductRepository(db *mongo.Database) ProductRepository {
	return &mongoProductRepository{collection: db.Collection("products")}
}

func (r *mongoProductRepository) GetProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	var product models.Product

	filter := bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}
	err := r.collection.FindOne(ctx, filter).Decode(&product)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	return &product, nil
}

// AdjustVariantStock is the only write path for variant stock. The stock
// guard and the increment happen in a single UpdateOne, so two concurrent
// reservations can never both consume the last units.
func (r *mongoProductRepository) AdjustVariantStock(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, delta int, requireAtLeast int) error {
	filter := bson.M{
		"_id":       productID,
		"isDeleted": bson.M{"$ne": true},
		"variants": bson.M{"$elemMatch": bson.M{
			"size":  key.Size,
			"color": key.Color,
			"stock": bson.M{"$gte": requireAtLeast},
		}},
	}
	update := bson.M{"$inc": bson.M{"variants.$.stock": delta}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to adjust variant stock: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrVariantConditionFailed
	}
	return nil
}
