package domain

import (
	"time"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusFulfilled OrderStatus = "fulfilled"
	StatusCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFulfilled, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal lifecycle step.
func CanTransition(from, to OrderStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusPaid || to == StatusCancelled
	case StatusPaid:
		return to == StatusFulfilled
	}
	return false
}

type Order struct {
	ID               int64       `json:"id"`
	UserID           string      `json:"userId"`
	Status           OrderStatus `json:"status"`
	TotalAmountCents int64       `json:"totalAmount"`
	PaymentIntentRef *string     `json:"paymentIntentId"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

func (o Order) OwnedBy(userID string) bool {
	return o.UserID == userID
}

type OrderItem struct {
	ID                   int64   `json:"id"`
	OrderID              int64   `json:"orderId"`
	ProductID            int64   `json:"productId"`
	Quantity             int     `json:"quantity"`
	PriceAtPurchaseCents int64   `json:"priceAtPurchase"`
	SpecialRequests      *string `json:"specialRequests"`
}

// OrderItemView pairs an item with its product. Product is nil once the product is deleted.
type OrderItemView struct {
	OrderItem
	Product *catalog.Product `json:"product"`
}

type OrderView struct {
	Order
	Items []OrderItemView `json:"items"`
}

type CartItem struct {
	ProductID       int64   `json:"productId" validate:"gt=0"`
	Quantity        int     `json:"quantity" validate:"min=1,max=10000"`
	SpecialRequests *string `json:"specialRequests" validate:"omitnil,max=500"`
}

type PlaceOrderInput struct {
	Items []CartItem `json:"items" validate:"required,min=1,max=100,dive"`
}

func (in PlaceOrderInput) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(in.Items))
	for _, it := range in.Items {
		lines = append(lines, pricing.Line{
			ProductID:       it.ProductID,
			Quantity:        it.Quantity,
			SpecialRequests: it.SpecialRequests,
		})
	}
	return lines
}

// PaymentIntent is what the client needs to complete payment with the provider.
type PaymentIntent struct {
	OrderID         int64  `json:"orderId"`
	PaymentIntentID string `json:"paymentIntentId"`
	ClientSecret    string `json:"clientSecret"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
}
