package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/cart"
	"backend/internal/models"
)

type variantKeyRequest struct {
	Size  string `json:"size" binding:"required"`
	Color string `json:"color" binding:"required"`
}

type addToCartRequest struct {
	ProductID string            `json:"productId" binding:"required"`
	Quantity  int               `json:"quantity" binding:"required,min=1"`
	Variant   variantKeyRequest `json:"variant" binding:"required"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,min=0"`
}

func GetCart(svc *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /cart"
		defer handlePanic(c, route)

		userID, _ := identityFromContext(c)
		items, err := svc.ListLines(c.Request.Context(), userID)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		if items == nil {
			items = []models.CartItem{}
		}
		c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
	}
}

func AddToCart(svc *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /cart"
		defer handlePanic(c, route)

		var req addToCartRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}
		productID, err := primitive.ObjectIDFromHex(req.ProductID)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid productId")
			return
		}

		userID, _ := identityFromContext(c)
		key := models.VariantKey{Size: req.Variant.Size, Color: req.Variant.Color}

		item, err := svc.AddLine(c.Request.Context(), userID, productID, key, req.Quantity)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

func UpdateCartItem(svc *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /cart/:id"
		defer handlePanic(c, route)

		lineID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}
		var req updateCartItemRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request body")
			return
		}

		userID, _ := identityFromContext(c)
		item, err := svc.SetLineQuantity(c.Request.Context(), lineID, userID, *req.Quantity)
		if err != nil {
			writeServiceError(c, route, err)
			return
		}
		if item == nil {
			// Quantity reached zero and the line was removed.
			c.JSON(http.StatusOK, gin.H{"removed": true})
			return
		}
		c.JSON(http.StatusOK, item)
	}
}

func RemoveFromCart(svc *cart.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /cart/:id"
		defer handlePanic(c, route)

		lineID, ok := parseObjectID(c, "id")
		if !ok {
			return
		}

		userID, _ := identityFromContext(c)
		if err := svc.RemoveLine(c.Request.Context(), lineID, userID); err != nil {
			writeServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"removed": true})
	}
}
