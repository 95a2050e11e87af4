package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Payment is the companion record of an order. At most one payment exists per
// order, and TransactionID is globally unique; both are enforced by indexes.
type Payment struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID       primitive.ObjectID `bson:"orderId" json:"orderId"`
	UserID        primitive.ObjectID `bson:"userId" json:"userId"`
	Amount        float64            `bson:"amount" json:"amount"`
	Method        string             `bson:"method" json:"method"`
	Status        PaymentStatus      `bson:"status" json:"status"`
	TransactionID string             `bson:"transactionId" json:"transactionId"`
	PaidAt        *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}
