package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"backend/internal/models"
)

type mongoPaymentRepository struct {
	collection *mongo.Collection
}

func NewMongoPaymentRepository(db *mongo.Database) PaymentRepository {
	return &mongoPaymentRepository{collection: db.Collection("payments")}
}

func (r *mongoPaymentRepository) Insert(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	now := time.Now()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	res, err := r.collection.InsertOne(ctx, payment)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Two unique indexes can reject the insert; the index name in the
			// error tells which constraint was violated.
			if strings.Contains(err.Error(), "transactionId") {
				return nil, ErrDuplicateTransaction
			}
			return nil, ErrDuplicateOrderPayment
		}
		return nil, fmt.Errorf("failed to insert payment: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		payment.ID = id
	}
	return payment, nil
}

func (r *mongoPaymentRepository) FindByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"orderId": orderID})
}

func (r *mongoPaymentRepository) FindByTransaction(ctx context.Context, transactionID string) (*models.Payment, error) {
	return r.findOne(ctx, bson.M{"transactionId": transactionID})
}

func (r *mongoPaymentRepository) findOne(ctx context.Context, filter bson.M) (*models.Payment, error) {
	var payment models.Payment
	err := r.collection.FindOne(ctx, filter).Decode(&payment)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *mongoPaymentRepository) Update(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt *time.Time) error {
	set := bson.M{"status": status, "updatedAt": time.Now()}
	if paidAt != nil {
		set["paidAt"] = *paidAt
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *mongoPaymentRepository) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Payment, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"userId": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}
