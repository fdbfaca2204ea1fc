package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/internal/catalog/application"
	"github.com/dmehra2102/storefront/internal/catalog/catalogtest"
	"github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/httpx"
	"github.com/dmehra2102/storefront/pkg/logging"
)

// adminHeader stands in for the identity gate.
func adminHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Test-Admin") != "yes" {
			httpx.WriteError(w, r, logging.Discard(), apperr.New(apperr.KindForbidden, "Forbidden"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newServer(repo *catalogtest.Repository) http.Handler {
	log := logging.Discard()
	r := chi.NewRouter()
	r.Mount("/api/products", NewHandler(log, application.NewService(log, repo)).Routes(adminHeader))
	return r
}

func send(h http.Handler, method, path, body string, admin bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("X-Test-Admin", "yes")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestProducts_PublicReads(t *testing.T) {
	repo := catalogtest.NewRepository(
		domain.Product{ID: 1, Name: "Chicken Noodle", PriceCents: 800, InventoryCount: 20, IsActive: true},
		domain.Product{ID: 2, Name: "Old Mug", PriceCents: 1200, IsActive: false},
	)
	h := newServer(repo)

	rec := send(h, http.MethodGet, "/api/products", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2, "inactive products are listed")
	assert.Equal(t, int64(2), list[0].ID)

	rec = send(h, http.MethodGet, "/api/products/1", "", false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"name":"Chicken Noodle","description":"","price":800,"imageUrl":"","category":"","inventoryCount":20,"isActive":true}`, rec.Body.String())

	rec = send(h, http.MethodGet, "/api/products/42", "", false)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"product not found"}`, rec.Body.String())

	rec = send(h, http.MethodGet, "/api/products/abc", "", false)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProducts_WritesRequireAdminBeforeValidation(t *testing.T) {
	repo := catalogtest.NewRepository(domain.Product{ID: 1, Name: "Soup", IsActive: true})
	h := newServer(repo)

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodPost, "/api/products", `{"name":""}`},
		{http.MethodPost, "/api/products", `not json`},
		{http.MethodPut, "/api/products/1", `{"price":-5}`},
		{http.MethodDelete, "/api/products/1", ``},
	} {
		rec := send(h, tc.method, tc.path, tc.body, false)
		assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s", tc.method, tc.path)
	}

	p, err := repo.Get(t.Context(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Soup", p.Name)
}

func TestProducts_AdminWrites(t *testing.T) {
	repo := catalogtest.NewRepository()
	h := newServer(repo)

	rec := send(h, http.MethodPost, "/api/products",
		`{"name":"Miso","description":"Umami","price":650,"imageUrl":"https://example.com/m.jpg","category":"soup","inventoryCount":7}`, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.True(t, created.IsActive)
	assert.Equal(t, 7, created.InventoryCount)

	rec = send(h, http.MethodPost, "/api/products", `{"name":"x","description":"y","price":-1,"imageUrl":"u","category":"c"}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(h, http.MethodPost, "/api/products", `{"name":"x","bogus":true}`, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(h, http.MethodPut, "/api/products/1", `{"inventoryCount":3,"isActive":false}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.Product
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 3, updated.InventoryCount)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "Miso", updated.Name)

	rec = send(h, http.MethodPut, "/api/products/99", `{"name":"ghost"}`, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(h, http.MethodDelete, "/api/products/1", "", true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = send(h, http.MethodDelete, "/api/products/1", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
