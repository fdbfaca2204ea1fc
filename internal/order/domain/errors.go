package domain

import (
	"errors"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

var (
	ErrOrderNotFound = apperr.New(apperr.KindOrderNotFound, "order not found")
	ErrAlreadyPaid   = apperr.New(apperr.KindAlreadyPaid, "order is already paid")
	ErrPricesChanged = apperr.New(apperr.KindValidation, "prices changed, please review your cart")

	// ErrStatusConflict is returned by compare-and-set writes when the order left the expected status.
	ErrStatusConflict = errors.New("order status changed concurrently")
)

func InvalidTransition(from, to OrderStatus) error {
	return apperr.Newf(apperr.KindInvalidTransition, "cannot move order from %s to %s", from, to)
}
