package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureCartIndexes enforces the one-line-per-(user, product, variant)
// invariant and speeds up per-user cart reads.
func EnsureCartIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("cartItems").Indexes()

	lineIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user", Value: 1},
			{Key: "product", Value: 1},
			{Key: "variant.size", Value: 1},
			{Key: "variant.color", Value: 1},
		},
		Options: options.Index().
			SetName("user_product_variant_unique").
			SetUnique(true),
	}

	log.Println("EnsureCartIndexes: creating user_product_variant_unique index")
	_, err := indexes.CreateOne(ctx, lineIndex)
	if err != nil {
		log.Println("EnsureCartIndexes: cart index error:", err)
		return err
	}
	return nil
}

// EnsureOrderIndexes covers per-user listings and the repair pass scan.
func EnsureOrderIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("orders").Indexes()

	userIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
		Options: options.Index().SetName("userId_createdAt_index"),
	}
	statusIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "orderStatus", Value: 1},
			{Key: "paymentStatus", Value: 1},
		},
		Options: options.Index().SetName("orderStatus_paymentStatus_index"),
	}

	log.Println("EnsureOrderIndexes: creating order indexes")
	_, err := indexes.CreateMany(ctx, []mongo.IndexModel{userIndex, statusIndex})
	if err != nil {
		log.Println("EnsureOrderIndexes: order index error:", err)
		return err
	}
	return nil
}

// EnsurePaymentIndexes enforces transaction id uniqueness and the 1:1
// payment-per-order relationship.
func EnsurePaymentIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("payments").Indexes()

	transactionIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "transactionId", Value: 1}},
		Options: options.Index().
			SetName("transactionId_unique").
			SetUnique(true),
	}
	orderIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "orderId", Value: 1}},
		Options: options.Index().
			SetName("orderId_unique").
			SetUnique(true),
	}

	log.Println("EnsurePaymentIndexes: creating payment indexes")
	_, err := indexes.CreateMany(ctx, []mongo.IndexModel{transactionIndex, orderIndex})
	if err != nil {
		log.Println("EnsurePaymentIndexes: payment index error:", err)
		return err
	}
	return nil
}
