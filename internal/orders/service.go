package orders

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrNotOrderOwner = errors.New("not authorized to access this order")
	ErrAdminOnly     = errors.New("not authorized to update order status")
)

// StockReleaser is the slice of the inventory ledger cancellation needs.
type StockReleaser interface {
	Release(ctx context.Context, productID primitive.ObjectID, key models.VariantKey, qty int) error
}

// PaymentSync is implemented by the payment reconciler; the state machine
// notifies it on every lifecycle transition that touches payment state.
type PaymentSync interface {
	OnShip(ctx context.Context, order *models.Order) (*models.Payment, error)
	OnDeliver(ctx context.Context, order *models.Order) (*models.Payment, error)
	RepairDeliveredOrder(ctx context.Context, order *models.Order) (*models.Payment, error)
}

// Service owns the order lifecycle: processing -> shipped -> delivered, or
// processing/pending -> cancelled. Transitions are serialized per order by a
// status-conditioned write; the loser of a race sees InvalidTransitionError.
type Service struct {
	orders     repository.OrderRepository
	cartItems  repository.CartRepository
	products   repository.ProductRepository
	ledger     StockReleaser
	reconciler PaymentSync
	tx         repository.TxRunner
}

func NewService(orders repository.OrderRepository, cartItems repository.CartRepository, products repository.ProductRepository, ledger StockReleaser, reconciler PaymentSync, tx repository.TxRunner) *Service {
	return &Service{
		orders:     orders,
		cartItems:  cartItems,
		products:   products,
		ledger:     ledger,
		reconciler: reconciler,
		tx:         tx,
	}
}

// PlaceOrder materializes the user's cart into an immutable order snapshot.
// Stock was already reserved when lines were added, so no ledger call happens
// here; the insert and the cart wipe share one transaction.
func (s *Service) PlaceOrder(ctx context.Context, userID primitive.ObjectID, billing models.Address, paymentMethod string) (*models.Order, error) {
	lines, err := s.cartItems.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, ErrEmptyCart
	}

	items := make([]models.OrderItem, 0, len(lines))
	total := 0.0
	for _, line := range lines {
		product, err := s.products.GetProduct(ctx, line.ProductID)
		if err != nil {
			return nil, fmt.Errorf("cart line %s: %w", line.ID.Hex(), err)
		}
		items = append(items, models.OrderItem{
			ProductID: line.ProductID,
			Title:     product.Title,
			Quantity:  line.Quantity,
			Price:     line.Price,
			Variant:   line.Variant,
		})
		total += line.Price * float64(line.Quantity)
	}

	order := &models.Order{
		UserID:         userID,
		Items:          items,
		BillingAddress: billing,
		PaymentMethod:  paymentMethod,
		PaymentStatus:  models.PaymentStatusPending,
		OrderStatus:    models.OrderStatusProcessing,
		TotalAmount:    total,
	}

	err = s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if order, err = s.orders.Insert(ctx, order); err != nil {
			return err
		}
		// The reservation now belongs to the order: clear without releasing.
		return s.cartItems.DeleteByUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[ORDER] [INFO] order %s placed for user %s, total %.2f", order.ID.Hex(), userID.Hex(), total)
	return order, nil
}

// CancelOrder cancels a processing or pending order and returns its reserved
// quantities to the ledger. Ownership is checked before state, so a non-owner
// is told "unauthorized" even for a terminal order.
func (s *Service) CancelOrder(ctx context.Context, orderID, requesterID primitive.ObjectID, role models.Role) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && order.UserID != requesterID {
		return nil, ErrNotOrderOwner
	}

	cancelled, err := s.transition(ctx, orderID, cancellableFrom, models.OrderStatusCancelled, nil, "cancelled")
	if err != nil {
		return nil, err
	}

	// The order is cancelled at this point; a failed release is surfaced so
	// the ledger discrepancy is driven to resolution rather than lost.
	var releaseErrs error
	for _, item := range cancelled.Items {
		if err := s.ledger.Release(ctx, item.ProductID, item.Variant, item.Quantity); err != nil {
			log.Printf("[ORDER] [ERROR] failed to return stock for product %s on cancel of %s: %v", item.ProductID.Hex(), orderID.Hex(), err)
			releaseErrs = errors.Join(releaseErrs, err)
		}
	}
	if releaseErrs != nil {
		return nil, fmt.Errorf("order cancelled but stock return failed: %w", releaseErrs)
	}

	log.Printf("[ORDER] [INFO] order %s cancelled", orderID.Hex())
	return cancelled, nil
}

// ShipOrder moves a processing order to shipped and tells the reconciler to
// move the payment to processing.
func (s *Service) ShipOrder(ctx context.Context, orderID primitive.ObjectID, role models.Role) (*models.Order, *models.Payment, error) {
	if _, err := s.authorizeAdmin(ctx, orderID, role); err != nil {
		return nil, nil, err
	}

	paymentStatus := models.PaymentStatusProcessing
	shipped, err := s.transition(ctx, orderID, shippableFrom, models.OrderStatusShipped, &paymentStatus, "shipped")
	if err != nil {
		return nil, nil, err
	}

	payment, err := s.reconciler.OnShip(ctx, shipped)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[ORDER] [INFO] order %s shipped", orderID.Hex())
	return shipped, payment, nil
}

// DeliverOrder moves a shipped order to delivered and finalizes the payment.
// An order already delivered with a stale payment status is repaired in place
// instead of being rejected.
func (s *Service) DeliverOrder(ctx context.Context, orderID primitive.ObjectID, role models.Role) (*models.Order, *models.Payment, error) {
	order, err := s.authorizeAdmin(ctx, orderID, role)
	if err != nil {
		return nil, nil, err
	}

	if order.OrderStatus == models.OrderStatusDelivered && order.PaymentStatus != models.PaymentStatusCompleted {
		log.Printf("[ORDER] [WARN] order %s is delivered with payment status %s, repairing", orderID.Hex(), order.PaymentStatus)
		payment, err := s.reconciler.RepairDeliveredOrder(ctx, order)
		if err != nil {
			return nil, nil, err
		}
		return order, payment, nil
	}

	paymentStatus := models.PaymentStatusCompleted
	delivered, err := s.transition(ctx, orderID, deliverableFrom, models.OrderStatusDelivered, &paymentStatus, "delivered")
	if err != nil {
		return nil, nil, err
	}

	payment, err := s.reconciler.OnDeliver(ctx, delivered)
	if err != nil {
		return nil, nil, err
	}
	log.Printf("[ORDER] [INFO] order %s delivered", orderID.Hex())
	return delivered, payment, nil
}

// GetOrder returns a single order; admins may read any, users only their own.
func (s *Service) GetOrder(ctx context.Context, orderID, requesterID primitive.ObjectID, role models.Role) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin && order.UserID != requesterID {
		return nil, ErrNotOrderOwner
	}
	return order, nil
}

// ListOrders returns all orders for admins and the requester's own otherwise.
func (s *Service) ListOrders(ctx context.Context, requesterID primitive.ObjectID, role models.Role) ([]models.Order, error) {
	if role == models.RoleAdmin {
		return s.orders.ListAll(ctx)
	}
	return s.orders.ListByUser(ctx, requesterID)
}

func (s *Service) authorizeAdmin(ctx context.Context, orderID primitive.ObjectID, role models.Role) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if role != models.RoleAdmin {
		return nil, ErrAdminOnly
	}
	return order, nil
}

// transition runs the conditional status update and, when the condition
// fails, re-reads the order to produce an error naming the blocking state.
func (s *Service) transition(ctx context.Context, orderID primitive.ObjectID, from []models.OrderStatus, to models.OrderStatus, paymentStatus *models.PaymentStatus, action string) (*models.Order, error) {
	updated, err := s.orders.Transition(ctx, orderID, from, to, paymentStatus)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, repository.ErrOrderConditionFailed) {
		return nil, err
	}

	current, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return nil, &InvalidTransitionError{OrderID: orderID, Current: current.OrderStatus, Action: action}
}
