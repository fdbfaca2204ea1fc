package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/logging"
)

func TestWriteErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{apperr.New(apperr.KindValidation, "quantity must be at least 1"), http.StatusBadRequest, `{"message":"quantity must be at least 1"}`},
		{apperr.New(apperr.KindForbidden, "Forbidden"), http.StatusForbidden, `{"message":"Forbidden"}`},
		{apperr.New(apperr.KindOrderNotFound, "order not found"), http.StatusNotFound, `{"message":"order not found"}`},
		{errors.New("pq: relation does not exist"), http.StatusInternalServerError, `{"message":"internal server error"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logging.Discard(), tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.JSONEq(t, tc.body, rec.Body.String())
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Name string `json:"name"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Soup"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "Soup", dst.Name)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nam":"Soup"}`))
	err := DecodeJSON(r, &dst)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(``))
	err = DecodeJSON(r, &dst)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
