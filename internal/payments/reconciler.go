package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

var ErrNotOrderOwner = errors.New("not authorized to access this order")

// RepairResult summarizes one batch repair pass over inconsistent delivered
// orders.
type RepairResult struct {
	OrdersFixed     int           `json:"ordersFixed"`
	PaymentsCreated int           `json:"paymentsCreated"`
	PaymentsUpdated int           `json:"paymentsUpdated"`
	Errors          []RepairError `json:"errors"`
}

type RepairError struct {
	OrderID string `json:"orderId"`
	Error   string `json:"error"`
}

// Reconciler keeps order.paymentStatus and the payment record in agreement.
// Lifecycle transitions push state from the order onto the payment (OnShip,
// OnDeliver); the sync and repair paths pull or force state the other way.
type Reconciler struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
}

func NewReconciler(payments repository.PaymentRepository, orders repository.OrderRepository) *Reconciler {
	return &Reconciler{payments: payments, orders: orders}
}

// OnShip finds or creates the payment for a freshly shipped order and moves
// it to processing. A payment that already completed is left alone: shipping
// never regresses a completed payment.
func (r *Reconciler) OnShip(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, err := r.payments.FindByOrder(ctx, order.ID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return r.createForOrder(ctx, order, models.PaymentStatusProcessing, "ship", nil)
	}
	if err != nil {
		return nil, err
	}

	if payment.Status == models.PaymentStatusCompleted {
		return payment, nil
	}
	if err := r.payments.Update(ctx, payment.ID, models.PaymentStatusProcessing, nil); err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusProcessing
	return payment, nil
}

// OnDeliver finds or creates the payment for a delivered order and finalizes
// it to completed. PaidAt is set only when previously unset.
func (r *Reconciler) OnDeliver(ctx context.Context, order *models.Order) (*models.Payment, error) {
	now := time.Now()

	payment, err := r.payments.FindByOrder(ctx, order.ID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return r.createForOrder(ctx, order, models.PaymentStatusCompleted, "deliver", &now)
	}
	if err != nil {
		return nil, err
	}

	var paidAt *time.Time
	if payment.PaidAt == nil {
		paidAt = &now
	}
	if err := r.payments.Update(ctx, payment.ID, models.PaymentStatusCompleted, paidAt); err != nil {
		return nil, err
	}
	payment.Status = models.PaymentStatusCompleted
	if payment.PaidAt == nil {
		payment.PaidAt = &now
	}
	return payment, nil
}

// RepairDeliveredOrder is the inline repair branch: an order already marked
// delivered whose payment state went stale is forced back into agreement. It
// shares its logic with the batch pass so both produce the same end state.
func (r *Reconciler) RepairDeliveredOrder(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, _, _, err := r.repair(ctx, order, "deliver_fix")
	return payment, err
}

// RepairDeliveredInconsistencies scans for delivered orders whose payment
// status is not completed and repairs each independently. One order's failure
// is recorded and does not abort the batch; re-running the pass is idempotent.
func (r *Reconciler) RepairDeliveredInconsistencies(ctx context.Context) (*RepairResult, error) {
	inconsistent, err := r.orders.ListInconsistentDelivered(ctx)
	if err != nil {
		return nil, err
	}

	log.Printf("[PAYMENT] [INFO] repair pass found %d inconsistent delivered orders", len(inconsistent))

	result := &RepairResult{Errors: []RepairError{}}
	for i := range inconsistent {
		order := &inconsistent[i]
		_, created, updated, err := r.repair(ctx, order, "fix_batch")
		if err != nil {
			log.Printf("[PAYMENT] [ERROR] repair failed for order %s: %v", order.ID.Hex(), err)
			result.Errors = append(result.Errors, RepairError{OrderID: order.ID.Hex(), Error: err.Error()})
			continue
		}
		result.OrdersFixed++
		if created {
			result.PaymentsCreated++
		}
		if updated {
			result.PaymentsUpdated++
		}
	}
	return result, nil
}

func (r *Reconciler) repair(ctx context.Context, order *models.Order, txnPrefix string) (payment *models.Payment, created, updated bool, err error) {
	if err := r.orders.SetPaymentStatus(ctx, order.ID, models.PaymentStatusCompleted); err != nil {
		return nil, false, false, err
	}
	order.PaymentStatus = models.PaymentStatusCompleted

	now := time.Now()
	payment, err = r.payments.FindByOrder(ctx, order.ID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		payment, err = r.createForOrder(ctx, order, models.PaymentStatusCompleted, txnPrefix, &now)
		if err != nil {
			return nil, false, false, err
		}
		return payment, true, false, nil
	}
	if err != nil {
		return nil, false, false, err
	}

	if payment.Status == models.PaymentStatusCompleted {
		return payment, false, false, nil
	}
	var paidAt *time.Time
	if payment.PaidAt == nil {
		paidAt = &now
	}
	if err := r.payments.Update(ctx, payment.ID, models.PaymentStatusCompleted, paidAt); err != nil {
		return nil, false, false, err
	}
	payment.Status = models.PaymentStatusCompleted
	if payment.PaidAt == nil {
		payment.PaidAt = &now
	}
	return payment, false, true, nil
}

// createForOrder inserts a synthetic payment for a lifecycle transition. If a
// concurrent create won the unique orderId index race, the winner's record is
// returned instead.
func (r *Reconciler) createForOrder(ctx context.Context, order *models.Order, status models.PaymentStatus, txnPrefix string, paidAt *time.Time) (*models.Payment, error) {
	method := order.PaymentMethod
	if method == "" {
		method = "unknown"
	}
	payment := &models.Payment{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Amount:        order.TotalAmount,
		Method:        method,
		Status:        status,
		TransactionID: syntheticTransactionID(txnPrefix, order.ID),
		PaidAt:        paidAt,
	}

	inserted, err := r.payments.Insert(ctx, payment)
	if errors.Is(err, repository.ErrDuplicateOrderPayment) {
		return r.payments.FindByOrder(ctx, order.ID)
	}
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

func syntheticTransactionID(prefix string, orderID primitive.ObjectID) string {
	return fmt.Sprintf("%s_%s_%d", prefix, orderID.Hex(), time.Now().UnixMilli())
}
