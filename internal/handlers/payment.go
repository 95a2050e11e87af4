package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
	"backend/internal/payments"
)

type recordPaymentRequest struct {
	OrderID       string  `json:"orderId" binding:"required"`
	TransactionID string  `json:"transactionId" binding:"required"`
	Amount        float64 `json:"amount" binding:"required,gt=0"`
	Method        string  `json:"method" binding:"required"`
	Status        string  `json:"status" binding:"required,oneof=pending processing completed failed"`
}

func RecordPayment(rec *payments.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /payments"
		defer handlePanic(c, route)

		var req recordPaymentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}
		orderID, err := primitive.ObjectIDFromHex(req.OrderID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid orderId")
			return
		}

		userID, _ := identityFromContext(c)
		payment, err := rec.RecordExternalPayment(c.Request.Context(), userID, payments.ExternalPaymentInput{
			OrderID:       orderID,
			TransactionID: req.TransactionID,
			Amount:        req.Amount,
			Method:        req.Method,
			Status:        models.PaymentStatus(req.Status),
		})
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, payment)
	}
}

func GetPaymentByOrder(rec *payments.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payments/:orderId"
		defer handlePanic(c, route)

		orderID, ok := parseObjectID(c, "orderId")
		if !ok {
			return
		}

		userID, _ := identityFromContext(c)
		payment, err := rec.GetPaymentByOrder(c.Request.Context(), orderID, userID)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, payment)
	}
}

func GetUserPayments(rec *payments.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /payments"
		defer handlePanic(c, route)

		userID, _ := identityFromContext(c)
		list, err := rec.ListUserPayments(c.Request.Context(), userID)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		if list == nil {
			list = []models.Payment{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(list), "payments": list})
	}
}
