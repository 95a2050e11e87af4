package inventory

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

// reserveAttempts bounds the retry loop around the conditional decrement.
// A retry only happens when a re-read shows enough stock, i.e. the update
// lost a race against a concurrent release.
const reserveAttempts = 3

var ErrVariantNotFound = errors.New("product variant not found")

// InsufficientStockError reports how much stock was available when a
// reservation failed, so clients can react without blind retries.
type InsufficientStockError struct {
	ProductID primitive.ObjectID
	Variant   models.VariantKey
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for variant %s/%s of product %s: requested %d, available %d",
		e.Variant.Size, e.Variant.Color, e.ProductID.Hex(), e.Requested, e.Available)
}

// Ledger is the single point of truth for variant stock. Every mutation goes
// through the repository's atomic conditional update; the ledger adds retry
// and turns condition failures into explicit errors instead of silent no-ops.
type Ledger struct {
	products repository.ProductRepository
}

func NewLedger(products repository.ProductRepository) *Ledger {
	return &Ledger{products: products}
}

// Reserve atomically checks stock >= qty and decrements by qty.
func (l *Ledger) Reserve(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("reserve quantity must be positive, got %d", qty)
	}

	available := 0
	for attempt := 0; attempt < reserveAttempts; attempt++ {
		err := l.products.AdjustVariantStock(ctx, productID, key, -qty, qty)
		if err == nil {
			return nil
		}
		if !errors.Is(err, repository.ErrVariantConditionFailed) {
			return err
		}

		// The conditional update matched nothing: missing product, missing
		// variant, or not enough stock. Re-read to tell which.
		product, err := l.products.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		variant, ok := product.FindVariant(key)
		if !ok {
			return ErrVariantNotFound
		}
		if variant.Stock < qty {
			return &InsufficientStockError{
				ProductID: productID,
				Variant:   key,
				Requested: qty,
				Available: variant.Stock,
			}
		}

		// Enough stock on re-read means a concurrent release landed between
		// the update and the read; try the conditional update again.
		available = variant.Stock
		log.Printf("[INVENTORY] [WARN] reserve retry %d for product %s variant %s/%s", attempt+1, productID.Hex(), key.Size, key.Color)
	}

	return &InsufficientStockError{
		ProductID: productID,
		Variant:   key,
		Requested: qty,
		Available: available,
	}
}

// Release atomically returns qty units to the variant. Callers own
// idempotence: a logical release must not be issued twice.
func (l *Ledger) Release(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("release quantity must be positive, got %d", qty)
	}

	err := l.products.AdjustVariantStock(ctx, productID, key, qty, 0)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrVariantConditionFailed) {
		return err
	}

	// stock >= 0 always holds, so a condition failure here can only mean the
	// product or the variant is gone.
	product, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if _, ok := product.FindVariant(key); !ok {
		return ErrVariantNotFound
	}
	return repository.ErrVariantConditionFailed
}
