package application

import (
	"context"
	"time"

	identity "github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	payment "github.com/dmehra2102/storefront/internal/payment/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, userID string, lines []pricing.Line, quotedTotal int64) (domain.OrderView, error)
	GetOrders(ctx context.Context, userID *string) ([]domain.OrderView, error)
	GetOrder(ctx context.Context, id int64) (domain.OrderView, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentIntentRef *string) (domain.Order, error)
	TransitionStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (domain.Order, error)
	ExpirePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error)
	StalePendingWithIntent(ctx context.Context, olderThan time.Time, afterID int64, limit int) ([]domain.Order, error)
}

type PaymentProvider interface {
	CreateIntent(ctx context.Context, req payment.CreateIntentRequest) (payment.Intent, error)
	GetIntent(ctx context.Context, ref string) (payment.Intent, error)
	CancelIntent(ctx context.Context, ref string) (payment.Intent, error)
}

type AdminGate interface {
	RequireAdmin(ctx context.Context, who *identity.Identity) (identity.User, error)
	IsAdmin(ctx context.Context, who *identity.Identity) (bool, error)
}

type IdempotencyStore interface {
	Key(scope, owner, key string) string
	Begin(ctx context.Context, key string) (result string, claimed bool, err error)
	Complete(ctx context.Context, key, result string) error
	Release(ctx context.Context, key string) error
}
