package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(KindInsufficientInventory, "not enough stock for Spicy Tomato Basil")
	wrapped := fmt.Errorf("create order: %w", base)

	assert.Equal(t, KindInsufficientInventory, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindInsufficientInventory))
	assert.False(t, Is(wrapped, KindAlreadyPaid))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestErrorsIsMatchesKind(t *testing.T) {
	sentinel := &Error{Kind: KindAlreadyPaid}
	err := fmt.Errorf("confirm: %w", New(KindAlreadyPaid, "order is already paid"))

	assert.True(t, errors.Is(err, sentinel))
	assert.False(t, errors.Is(err, &Error{Kind: KindOrderNotFound}))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.3:5432: connection refused")

	assert.Equal(t, "internal server error", PublicMessage(Internal(cause)))
	assert.Equal(t, "internal server error", PublicMessage(cause))
	assert.Equal(t, "order not found", PublicMessage(New(KindOrderNotFound, "order not found")))

	w := Wrap(KindProductNotFound, cause, "product not found")
	require.ErrorIs(t, w, cause)
	assert.Equal(t, "product not found", PublicMessage(w))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:            http.StatusBadRequest,
		KindUnauthenticated:       http.StatusUnauthorized,
		KindForbidden:             http.StatusForbidden,
		KindProductNotFound:       http.StatusNotFound,
		KindOrderNotFound:         http.StatusNotFound,
		KindInsufficientInventory: http.StatusConflict,
		KindAlreadyPaid:           http.StatusConflict,
		KindInternal:              http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}
