package cart

import (
	"context"
	"errors"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

var (
	ErrNotCartOwner    = errors.New("not authorized to access this cart item")
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
)

// StockLedger is the slice of the inventory ledger the cart needs. The cart
// never touches stock itself; every change is delegated here.
type StockLedger interface {
	Reserve(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, qty int) error
	Release(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, qty int) error
}

// Service maintains the reservation set for each user. Any ledger failure
// aborts the cart mutation so the line set is unchanged on error.
type Service struct {
	items    repository.CartRepository
	products repository.ProductRepository
	ledger   StockLedger
}

func NewService(items repository.CartRepository, products repository.ProductRepository, ledger StockLedger) *Service {
	return &Service{items: items, products: products, ledger: ledger}
}

// AddLine reserves qty units and increments the matching line, or creates a
// new line with a price snapshot of the product's current effective price.
func (s *Service) AddLine(ctx context.Context, userID, productID primitive.ObjectID, key models.VariantKey, qty int) (*models.CartItem, error) {
	if qty < 1 {
		return nil, ErrInvalidQuantity
	}

	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	if err := s.ledger.Reserve(ctx, productID, key, qty); err != nil {
		return nil, err
	}

	unitPrice := models.EffectiveUnitPrice(product)
	item, err := s.items.UpsertLine(ctx, userID, productID, key, qty, unitPrice)
	if err != nil {
		// The reservation went through but the line write did not; hand the
		// stock back so it is not leaked.
		if relErr := s.ledger.Release(ctx, productID, key, qty); relErr != nil {
			log.Println("[CART] [ERROR] failed to release stock after line write failure:", relErr)
		}
		return nil, err
	}

	log.Printf("[CART] [INFO] user %s reserved %d of product %s variant %s/%s", userID.Hex(), qty, productID.Hex(), key.Size, key.Color)
	return item, nil
}

// RemoveLine releases the line's full reservation and deletes the line.
func (s *Service) RemoveLine(ctx context.Context, lineID, userID primitive.ObjectID) error {
	item, err := s.items.FindByID(ctx, lineID)
	if err != nil {
		return err
	}
	if item.UserID != userID {
		return ErrNotCartOwner
	}

	if err := s.ledger.Release(ctx, item.ProductID, item.Variant, item.Quantity); err != nil {
		return err
	}
	return s.items.Delete(ctx, item.ID)
}

// SetLineQuantity moves the line to newQty, reserving or releasing only the
// difference. A newQty of zero removes the line entirely; in that case the
// returned item is nil.
func (s *Service) SetLineQuantity(ctx context.Context, lineID, userID primitive.ObjectID, newQty int) (*models.CartItem, error) {
	if newQty < 0 {
		return nil, ErrInvalidQuantity
	}

	item, err := s.items.FindByID(ctx, lineID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, ErrNotCartOwner
	}

	delta := newQty - item.Quantity
	switch {
	case delta > 0:
		if err := s.ledger.Reserve(ctx, item.ProductID, item.Variant, delta); err != nil {
			return nil, err
		}
	case delta < 0:
		if err := s.ledger.Release(ctx, item.ProductID, item.Variant, -delta); err != nil {
			return nil, err
		}
	default:
		return item, nil
	}

	if newQty == 0 {
		if err := s.items.Delete(ctx, item.ID); err != nil {
			return nil, s.compensate(ctx, item, delta, err)
		}
		return nil, nil
	}

	if err := s.items.SetQuantity(ctx, item.ID, newQty); err != nil {
		return nil, s.compensate(ctx, item, delta, err)
	}
	item.Quantity = newQty
	return item, nil
}

// compensate undoes a ledger adjustment after the line write failed.
func (s *Service) compensate(ctx context.Context, item *models.CartItem, delta int, cause error) error {
	var err error
	if delta > 0 {
		err = s.ledger.Release(ctx, item.ProductID, item.Variant, delta)
	} else {
		err = s.ledger.Reserve(ctx, item.ProductID, item.Variant, -delta)
	}
	if err != nil {
		log.Println("[CART] [ERROR] failed to compensate ledger after line write failure:", err)
	}
	return cause
}

func (s *Service) ListLines(ctx context.Context, userID primitive.ObjectID) ([]models.CartItem, error) {
	return s.items.ListByUser(ctx, userID)
}

// Clear removes all lines for the user without releasing stock. It is used
// after order placement, when the reservation is owned by the order.
func (s *Service) Clear(ctx context.Context, userID primitive.ObjectID) error {
	return s.items.DeleteByUser(ctx, userID)
}
