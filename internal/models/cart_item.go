package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CartItem is one reservation line in a user's cart. Exactly one line exists
// per (user, product, variant); adding the same combination again increments
// Quantity. Price is a snapshot taken when the line is created and is not
// recomputed on quantity changes.
type CartItem struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    primitive.ObjectID `bson:"user" json:"userId"`
	ProductID primitive.ObjectID `bson:"product" json:"productId"`
	Variant   VariantKey         `bson:"variant" json:"variant"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	AddedAt   time.Time          `bson:"addedAt" json:"addedAt"`
}
