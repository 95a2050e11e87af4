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

type mongoOrderRepository struct {
	collection *mongo.Collection
}

func NewMongoOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{collection: db.Collection("orders")}
}

func (r *mongoOrderRepository) Insert(ctx context.Context, order *models.Order) (*models.Order, error) {
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		order.ID = id
	}
	return order, nil
}

func (r *mongoOrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &order, nil
}

func (r *mongoOrderRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return r.list(ctx, bson.M{"userId": userID})
}

func (r *mongoOrderRepository) ListAll(ctx context.Context) ([]models.Order, error) {
	return r.list(ctx, bson.M{})
}

func (r *mongoOrderRepository) list(ctx context.Context, filter bson.M) ([]models.Order, error) {
	cursor, err := r.collection.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// Transition moves the order to its next status only when the current status
// is one of from, in a single conditional update. The losing side of a
// concurrent transition race gets ErrOrderConditionFailed.
func (r *mongoOrderRepository) Transition(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error) {
	filter := bson.M{
		"_id":         id,
		"orderStatus": bson.M{"$in": from},
	}
	set := bson.M{
		"orderStatus": to,
		"updatedAt":   time.Now(),
	}
	if paymentStatus != nil {
		set["paymentStatus"] = *paymentStatus
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var order models.Order
	err := r.collection.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&order)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderConditionFailed
		}
		return nil, fmt.Errorf("failed to transition order: %w", err)
	}
	return &order, nil
}

func (r *mongoOrderRepository) SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	update := bson.M{"$set": bson.M{"paymentStatus": status, "updatedAt": time.Now()}}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to set order payment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *mongoOrderRepository) ListInconsistentDelivered(ctx context.Context) ([]models.Order, error) {
	return r.list(ctx, bson.M{
		"orderStatus":   models.OrderStatusDelivered,
		"paymentStatus": bson.M{"$ne": models.PaymentStatusCompleted},
	})
}
