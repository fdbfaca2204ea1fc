package domain

import "time"

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderFulfilled = "OrderFulfilled"
	EventOrderCancelled = "OrderCancelled"
)

type OrderCreated struct {
	OrderID          int64       `json:"orderId"`
	UserID           string      `json:"userId"`
	TotalAmountCents int64       `json:"totalAmount"`
	Items            []OrderItem `json:"items"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// StatusChanged is the payload of every lifecycle event after creation.
type StatusChanged struct {
	OrderID          int64       `json:"orderId"`
	UserID           string      `json:"userId"`
	From             OrderStatus `json:"from"`
	To               OrderStatus `json:"to"`
	PaymentIntentRef *string     `json:"paymentIntentId,omitempty"`
	At               time.Time   `json:"at"`
}

func EventFor(to OrderStatus) string {
	switch to {
	case StatusPaid:
		return EventOrderPaid
	case StatusFulfilled:
		return EventOrderFulfilled
	case StatusCancelled:
		return EventOrderCancelled
	}
	return "OrderStatusChanged"
}
