package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"backend/internal/cart"
	"backend/internal/inventory"
	"backend/internal/models"
	"backend/internal/orders"
	"backend/internal/payments"
	"backend/internal/repository"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// DBGuard rejects mutating requests early when the database is unreachable.
func DBGuard(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		checkCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.Client().Ping(checkCtx, readpref.Primary()); err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "database unavailable"})
			return
		}
		c.Next()
	}
}

// identityFromContext reads the identity placed by the auth middleware.
func identityFromContext(c *gin.Context) (primitive.ObjectID, models.Role) {
	userID, _ := c.Value("userId").(primitive.ObjectID)
	role, ok := c.Value("role").(models.Role)
	if !ok {
		role = models.RoleCustomer
	}
	return userID, role
}

func parseObjectID(c *gin.Context, param string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(param))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// writeServiceError translates engine errors into HTTP responses, keeping
// enough context (available stock, blocking status) for clients to react.
func writeServiceError(c *gin.Context, route string, err error) {
	var stockErr *inventory.InsufficientStockError
	if errors.As(err, &stockErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "not enough stock available for the selected variant",
			"productId": stockErr.ProductID.Hex(),
			"requested": stockErr.Requested,
			"available": stockErr.Available,
		})
		return
	}

	var transitionErr *orders.InvalidTransitionError
	if errors.As(err, &transitionErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":         transitionErr.Error(),
			"currentStatus": transitionErr.Current,
		})
		return
	}

	switch {
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, inventory.ErrVariantNotFound),
		errors.Is(err, repository.ErrCartItemNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrPaymentNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cart.ErrNotCartOwner),
		errors.Is(err, orders.ErrNotOrderOwner),
		errors.Is(err, payments.ErrNotOrderOwner):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrAdminOnly):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, repository.ErrDuplicateTransaction),
		errors.Is(err, repository.ErrDuplicateOrderPayment):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		respondWithError(c, http.StatusInternalServerError, route, "db error")
	}
}
