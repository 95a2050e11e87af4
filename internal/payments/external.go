package payments

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/repository"
)

// ExternalPaymentInput is a payment reported out-of-band, e.g. by a gateway
// callback relayed through the API layer.
type ExternalPaymentInput struct {
	OrderID       primitive.ObjectID
	TransactionID string
	Amount        float64
	Method        string
	Status        models.PaymentStatus
}

// RecordExternalPayment stores an out-of-band payment for an order the
// requester owns. It rejects reused transaction ids and second payments for
// the same order. A completed payment also completes the order's payment
// status; the order's lifecycle status is never touched here.
func (r *Reconciler) RecordExternalPayment(ctx context.Context, userID primitive.ObjectID, in ExternalPaymentInput) (*models.Payment, error) {
	order, err := r.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}

	if _, err := r.payments.FindByTransaction(ctx, in.TransactionID); err == nil {
		return nil, repository.ErrDuplicateTransaction
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}

	if _, err := r.payments.FindByOrder(ctx, in.OrderID); err == nil {
		return nil, repository.ErrDuplicateOrderPayment
	} else if !errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, err
	}

	payment, err := r.payments.Insert(ctx, &models.Payment{
		OrderID:       in.OrderID,
		UserID:        userID,
		Amount:        in.Amount,
		Method:        in.Method,
		Status:        in.Status,
		TransactionID: in.TransactionID,
	})
	if err != nil {
		return nil, err
	}

	if in.Status == models.PaymentStatusCompleted {
		if err := r.orders.SetPaymentStatus(ctx, in.OrderID, models.PaymentStatusCompleted); err != nil {
			return nil, err
		}
	}
	return payment, nil
}

// SyncOrderPaymentStatus is a one-shot reconciliation where the payment is
// authoritative: a differing order paymentStatus is overwritten to match.
func (r *Reconciler) SyncOrderPaymentStatus(ctx context.Context, orderID primitive.ObjectID) (*models.Order, *models.Payment, error) {
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	payment, err := r.payments.FindByOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	if payment.Status != order.PaymentStatus {
		if err := r.orders.SetPaymentStatus(ctx, orderID, payment.Status); err != nil {
			return nil, nil, err
		}
		order.PaymentStatus = payment.Status
	}
	return order, payment, nil
}

// GetPaymentByOrder returns the payment for an order the requester owns.
func (r *Reconciler) GetPaymentByOrder(ctx context.Context, orderID, userID primitive.ObjectID) (*models.Payment, error) {
	order, err := r.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, ErrNotOrderOwner
	}
	return r.payments.FindByOrder(ctx, orderID)
}

// ListUserPayments returns all payments belonging to the user, newest first.
func (r *Reconciler) ListUserPayments(ctx context.Context, userID primitive.ObjectID) ([]models.Payment, error) {
	return r.payments.ListByUser(ctx, userID)
}
