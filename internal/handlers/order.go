package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"backend/internal/models"
	"backend/internal/orders"
	"backend/internal/payments"
)

type billingAddressRequest struct {
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

type createOrderRequest struct {
	BillingAddress billingAddressRequest `json:"billingAddress" binding:"required"`
	PaymentMethod  string                `json:"paymentMethod" binding:"required,oneof=card cash cash-on-delivery stripe"`
}

func CreateOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders"
		defer handlePanic(c, route)

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		userID, _ := identityFromContext(c)
		billing := models.Address{
			Street:     req.BillingAddress.Street,
			City:       req.BillingAddress.City,
			State:      req.BillingAddress.State,
			PostalCode: req.BillingAddress.PostalCode,
			Country:    req.BillingAddress.Country,
		}

		order, err := svc.PlaceOrder(c.Request.Context(), userID, billing, req.PaymentMethod)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, order)
	}
}

func GetOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders"
		defer handlePanic(c, route)

		userID, role := identityFromContext(c)
		list, err := svc.ListOrders(c.Request.Context(), userID, role)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		if list == nil {
			list = []models.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(list), "orders": list})
	}
}

func GetOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /orders/:id"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		userID, role := identityFromContext(c)
		order, err := svc.GetOrder(c.Request.Context(), orderID, userID, role)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func CancelOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /orders/:id"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		userID, role := identityFromContext(c)
		order, err := svc.CancelOrder(c.Request.Context(), orderID, userID, role)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func ShipOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id/ship"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		_, role := identityFromContext(c)
		order, payment, err := svc.ShipOrder(c.Request.Context(), orderID, role)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order, "payment": payment})
	}
}

func DeliverOrder(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id/deliver"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		_, role := identityFromContext(c)
		order, payment, err := svc.DeliverOrder(c.Request.Context(), orderID, role)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order, "payment": payment})
	}
}

func SyncOrderPaymentStatus(rec *payments.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /orders/:id/sync-payment"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		order, payment, err := rec.SyncOrderPaymentStatus(c.Request.Context(), orderID)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"order": order, "payment": payment})
	}
}

func FixPaymentStatuses(rec *payments.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /orders/fix-payment-status"
		defer handlePanic(c, route)

		result, err := rec.RepairDeliveredInconsistencies(c.Request.Context())
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
