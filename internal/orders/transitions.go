package orders

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"backend/internal/models"
)

// cancellableFrom lists the statuses an order can be cancelled from. Once
// shipped, inventory is never auto-returned.
var cancellableFrom = []models.OrderStatus{
	models.OrderStatusProcessing,
	models.OrderStatusPending,
}

var shippableFrom = []models.OrderStatus{models.OrderStatusProcessing}

var deliverableFrom = []models.OrderStatus{models.OrderStatusShipped}

// InvalidTransitionError reports the state that blocked a transition so the
// client can react without retrying blindly.
type InvalidTransitionError struct {
	OrderID primitive.ObjectID
	Current models.OrderStatus
	Action  string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s cannot be %s as it is currently %s", e.OrderID.Hex(), e.Action, e.Current)
}
