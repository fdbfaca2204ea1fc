package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

type line struct {
	ProductID int64  `json:"productId" validate:"gt=0"`
	Quantity  int    `json:"quantity" validate:"min=1"`
	Note      string `json:"specialRequests" validate:"max=5"`
}

type cart struct {
	Items []line `json:"items" validate:"required,min=1,dive"`
}

func TestStructMessagesUseJSONNames(t *testing.T) {
	v := New()

	require.NoError(t, v.Struct(cart{Items: []line{{ProductID: 1, Quantity: 1}}}))

	cases := []struct {
		in   cart
		want string
	}{
		{cart{}, "items is required"},
		{cart{Items: []line{}}, "items must have at least 1 element(s)"},
		{cart{Items: []line{{ProductID: 0, Quantity: 1}}}, "items[0].productId must be greater than 0"},
		{cart{Items: []line{{ProductID: 1, Quantity: 0}}}, "items[0].quantity must be at least 1"},
		{cart{Items: []line{{ProductID: 1, Quantity: 1, Note: "no salt please"}}}, "items[0].specialRequests must be at most 5 characters"},
	}
	for _, tc := range cases {
		err := v.Struct(tc.in)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Equal(t, tc.want, apperr.PublicMessage(err))
	}
}
