package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// OrderItem is an immutable snapshot of a cart line at placement time. Later
// catalog changes never alter a placed order.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Title     string             `bson:"title" json:"title"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	Variant   VariantKey         `bson:"variant" json:"variant"`
}

// Address is the billing address captured on the order.
type Address struct {
	Street     string `bson:"street" json:"street"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state,omitempty" json:"state,omitempty"`
	PostalCode string `bson:"postalCode" json:"postalCode"`
	Country    string `bson:"country" json:"country"`
}

// Order is the persisted order document. Orders are never deleted, only
// transitioned.
type Order struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	Items          []OrderItem        `bson:"items" json:"items"`
	BillingAddress Address            `bson:"billingAddress" json:"billingAddress"`
	PaymentMethod  string             `bson:"paymentMethod" json:"paymentMethod"`
	PaymentStatus  PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	OrderStatus    OrderStatus        `bson:"orderStatus" json:"orderStatus"`
	TotalAmount    float64            `bson:"totalAmount" json:"totalAmount"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt" json:"updatedAt"`
}
