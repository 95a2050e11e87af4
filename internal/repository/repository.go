package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrOrderNotFound    = errors.New("order not found")
	ErrPaymentNotFound  = errors.New("payment not found")

	// ErrVariantConditionFailed is returned when a conditional stock update
	// matched no document: the product is missing, the (size, color) pair is
	// missing, or the stock guard failed. Callers disambiguate by re-reading.
	ErrVariantConditionFailed = errors.New("variant stock condition not met")

	// ErrOrderConditionFailed is returned when a conditional status transition
	// matched no document. Callers disambiguate missing vs wrong-state.
	ErrOrderConditionFailed = errors.New("order status condition not met")

	ErrDuplicateTransaction  = errors.New("payment with this transaction id already exists")
	ErrDuplicateOrderPayment = errors.New("payment for this order already exists")
)

// ProductRepository exposes product reads and the single atomic stock
// primitive. AdjustVariantStock applies delta to the variant's stock in one
// conditional write that only matches when the variant's current stock is at
// least requireAtLeast; reserve passes the requested quantity, release passes
// zero.
type ProductRepository interface {
	GetProduct(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	AdjustVariantStock(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, delta int, requireAtLeast int) error
}

// CartRepository owns cart lines. UpsertLine increments the quantity of the
// existing (user, product, variant) line or inserts a new one with the given
// price snapshot.
type CartRepository interface {
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.CartItem, error)
	UpsertLine(ctx context.Context, userID, productID primitive.ObjectID, key models.VariantKey, qty int, unitPrice float64) (*models.CartItem, error)
	SetQuantity(ctx context.Context, id primitive.ObjectID, qty int) error
	Delete(ctx context.Context, id primitive.ObjectID) error
	DeleteByUser(ctx context.Context, userID primitive.ObjectID) error
}

// OrderRepository owns order documents. Transition checks the current status
// and writes the new one in the same conditional update, so concurrent
// transitions on one order cannot both win.
type OrderRepository interface {
	Insert(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
	Transition(ctx context.Context, id primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, paymentStatus *models.PaymentStatus) (*models.Order, error)
	SetPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error
	ListInconsistentDelivered(ctx context.Context) ([]models.Order, error)
}

// PaymentRepository owns payment records. Insert surfaces unique-index
// violations as ErrDuplicateTransaction / ErrDuplicateOrderPayment.
type PaymentRepository interface {
	Insert(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error)
	FindByTransaction(ctx context.Context, transactionID string) (*models.Payment, error)
	Update(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus, paidAt *time.Time) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Payment, error)
}

// TxRunner runs fn inside a multi-document transaction. Repository calls made
// with the callback's context participate in the transaction.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
