package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/storefront/internal/audit"
	identity "github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

// UpdateStatus is the admin fulfillment step. Admins may fulfil paid orders and cancel
// pending ones; payment itself is only ever recorded by ConfirmPayment.
func (s *Service) UpdateStatus(ctx context.Context, who *identity.Identity, orderID int64, to domain.OrderStatus) (domain.Order, error) {
	if _, err := s.gate.RequireAdmin(ctx, who); err != nil {
		return domain.Order{}, err
	}
	if !to.Valid() {
		return domain.Order{}, apperr.New(apperr.KindValidation, "status must be one of pending, paid, fulfilled, cancelled")
	}

	view, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	from := view.Status
	if err := adminTransitionAllowed(from, to); err != nil {
		return domain.Order{}, err
	}

	order, err := s.repo.TransitionStatus(ctx, orderID, from, to)
	if errors.Is(err, domain.ErrStatusConflict) {
		return domain.Order{}, s.lostRace(ctx, orderID, to)
	}
	if err != nil {
		return domain.Order{}, err
	}

	s.log.Info("order status updated", "order_id", orderID, "from", from, "to", to, "admin_id", who.UserID)
	s.audit.Record(ctx, audit.Entry{
		Action:   audit.ActionStatusChanged,
		EntityID: orderEntity(orderID),
		ActorID:  who.UserID,
		Data:     map[string]any{"from": string(from), "to": string(to)},
	})
	return order, nil
}

func adminTransitionAllowed(from, to domain.OrderStatus) error {
	switch {
	case from == domain.StatusPending && to == domain.StatusFulfilled:
		return apperr.New(apperr.KindPaymentNotCompleted, "order has not been paid")
	case from == domain.StatusPending && to == domain.StatusPaid:
		return apperr.New(apperr.KindInvalidTransition, "orders are marked paid by payment confirmation only")
	case !domain.CanTransition(from, to):
		return domain.InvalidTransition(from, to)
	}
	return nil
}
