//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
	"github.com/dmehra2102/storefront/internal/testenv"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/logging"
)

type suite struct {
	env      *testenv.Env
	orders   *Repository
	products *catalogpg.Repository
}

func newSuite(t *testing.T) *suite {
	env := testenv.Postgres(t)
	log := logging.Discard()
	return &suite{env: env, orders: NewRepository(log, env.Pool), products: catalogpg.NewRepository(log, env.Pool)}
}

func (s *suite) product(t *testing.T, name string, price int64, stock int) catalog.Product {
	t.Helper()
	p, err := s.products.Create(context.Background(), catalog.NewProduct{
		Name: name, Description: name, PriceCents: price, ImageURL: "u", Category: "soup", InventoryCount: stock,
	})
	require.NoError(t, err)
	return p
}

func (s *suite) stock(t *testing.T, id int64) int {
	t.Helper()
	p, err := s.products.Get(context.Background(), id)
	require.NoError(t, err)
	return p.InventoryCount
}

func (s *suite) count(t *testing.T, sql string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, s.env.Pool.QueryRow(context.Background(), sql, args...).Scan(&n))
	return n
}

func TestOrderStore(t *testing.T) {
	s := newSuite(t)
	ctx := context.Background()

	t.Run("create decrements exactly and writes outbox", func(t *testing.T) {
		s.env.Reset(t)
		noodle := s.product(t, "Noodle", 800, 20)
		tomato := s.product(t, "Tomato", 750, 15)
		note := "extra basil"

		view, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{
			{ProductID: tomato.ID, Quantity: 1, SpecialRequests: &note},
			{ProductID: noodle.ID, Quantity: 2},
		}, 3350)
		require.NoError(t, err)
		assert.Equal(t, int64(3350), view.TotalAmountCents)
		assert.Equal(t, domain.StatusPending, view.Status)
		require.Len(t, view.Items, 2)

		assert.Equal(t, 18, s.stock(t, noodle.ID))
		assert.Equal(t, 14, s.stock(t, tomato.ID))
		assert.Equal(t, 1, s.count(t, `SELECT count(*) FROM outbox WHERE type='OrderCreated' AND aggregate_id=$1`, "1"))

		got, err := s.orders.GetOrder(ctx, view.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 2)
		for _, it := range got.Items {
			require.NotNil(t, it.Product)
			if it.ProductID == tomato.ID {
				require.NotNil(t, it.SpecialRequests)
				assert.Equal(t, note, *it.SpecialRequests)
			}
		}
	})

	t.Run("failure rolls back everything", func(t *testing.T) {
		s.env.Reset(t)
		a := s.product(t, "A", 100, 5)
		b := s.product(t, "B", 100, 1)

		_, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{
			{ProductID: a.ID, Quantity: 3},
			{ProductID: b.ID, Quantity: 2},
		}, 500)
		assert.True(t, apperr.Is(err, apperr.KindInsufficientInventory), "got %v", err)
		assert.Equal(t, 5, s.stock(t, a.ID))
		assert.Zero(t, s.count(t, `SELECT count(*) FROM orders`))
		assert.Zero(t, s.count(t, `SELECT count(*) FROM order_items`))
		assert.Zero(t, s.count(t, `SELECT count(*) FROM outbox`))

		_, err = s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: 999, Quantity: 1}}, 100)
		assert.True(t, apperr.Is(err, apperr.KindProductNotFound))
	})

	t.Run("inactive products cannot be ordered", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Retired", 100, 5)
		off := false
		_, err := s.products.Update(ctx, p.ID, catalog.ProductPatch{IsActive: &off})
		require.NoError(t, err)

		_, err = s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 100)
		assert.True(t, apperr.Is(err, apperr.KindProductNotFound))
		assert.Equal(t, 5, s.stock(t, p.ID))
	})

	t.Run("price change under lock fails the order", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 800, 5)

		_, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 700)
		assert.ErrorIs(t, err, domain.ErrPricesChanged)
		assert.Equal(t, 5, s.stock(t, p.ID))
	})

	t.Run("concurrent orders never oversell", func(t *testing.T) {
		s.env.Reset(t)
		const stock, buyers = 5, 20
		p := s.product(t, "Last Pot", 1000, stock)

		var ok, short atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < buyers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.orders.CreateOrder(ctx, "buyer", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 1000)
				switch {
				case err == nil:
					ok.Add(1)
				case apperr.Is(err, apperr.KindInsufficientInventory):
					short.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(stock), ok.Load())
		assert.Equal(t, int32(buyers-stock), short.Load())
		assert.Zero(t, s.stock(t, p.ID))
	})

	t.Run("opposite line order does not deadlock", func(t *testing.T) {
		s.env.Reset(t)
		a := s.product(t, "A", 100, 100)
		b := s.product(t, "B", 100, 100)

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			lines := []pricing.Line{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}
			if i%2 == 1 {
				lines[0], lines[1] = lines[1], lines[0]
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.orders.CreateOrder(ctx, "u", lines, 200)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 80, s.stock(t, a.ID))
		assert.Equal(t, 80, s.stock(t, b.ID))
	})

	t.Run("transition is compare and set", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 800, 10)
		view, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 3}}, 2400)
		require.NoError(t, err)

		ref := "pi_123"
		o, err := s.orders.UpdateOrderStatus(ctx, view.ID, domain.StatusPending, &ref)
		require.NoError(t, err)
		require.NotNil(t, o.PaymentIntentRef)

		paid, err := s.orders.TransitionStatus(ctx, view.ID, domain.StatusPending, domain.StatusPaid)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPaid, paid.Status)
		assert.Equal(t, "pi_123", *paid.PaymentIntentRef)

		_, err = s.orders.TransitionStatus(ctx, view.ID, domain.StatusPending, domain.StatusPaid)
		assert.ErrorIs(t, err, domain.ErrStatusConflict)
		_, err = s.orders.TransitionStatus(ctx, 999, domain.StatusPending, domain.StatusPaid)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)

		late := "pi_456"
		_, err = s.orders.UpdateOrderStatus(ctx, view.ID, domain.StatusPending, &late)
		assert.ErrorIs(t, err, domain.ErrStatusConflict, "a paid order never goes back to pending")

		assert.Equal(t, 1, s.count(t, `SELECT count(*) FROM outbox WHERE type='OrderPaid'`))
		assert.Equal(t, 7, s.stock(t, p.ID), "paying does not restock")
	})

	t.Run("cancel restocks and stays cancelled", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 800, 10)
		view, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 2}, {ProductID: p.ID, Quantity: 1}}, 2400)
		require.NoError(t, err)
		require.Equal(t, 7, s.stock(t, p.ID))

		_, err = s.orders.TransitionStatus(ctx, view.ID, domain.StatusPending, domain.StatusCancelled)
		require.NoError(t, err)
		assert.Equal(t, 10, s.stock(t, p.ID))

		ref := "pi_late"
		_, err = s.orders.UpdateOrderStatus(ctx, view.ID, domain.StatusPending, &ref)
		assert.ErrorIs(t, err, domain.ErrStatusConflict)
		_, err = s.orders.UpdateOrderStatus(ctx, 999, domain.StatusPending, nil)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("listing and deleted products", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 100, 10)
		q := s.product(t, "Mug", 200, 10)
		first, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 100)
		require.NoError(t, err)
		_, err = s.orders.CreateOrder(ctx, "bob", []pricing.Line{{ProductID: q.ID, Quantity: 1}}, 200)
		require.NoError(t, err)
		second, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: q.ID, Quantity: 2}}, 400)
		require.NoError(t, err)

		require.NoError(t, s.products.Delete(ctx, p.ID))

		alice := "alice"
		mine, err := s.orders.GetOrders(ctx, &alice)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, second.ID, mine[0].ID)
		assert.Equal(t, first.ID, mine[1].ID)
		require.Len(t, mine[1].Items, 1)
		assert.Nil(t, mine[1].Items[0].Product, "deleted product")
		assert.Equal(t, int64(100), mine[1].Items[0].PriceAtPurchaseCents)

		all, err := s.orders.GetOrders(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		_, err = s.orders.GetOrder(ctx, 999)
		assert.ErrorIs(t, err, domain.ErrOrderNotFound)
	})

	t.Run("expire pending", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 100, 10)
		old, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 4}}, 400)
		require.NoError(t, err)
		fresh, err := s.orders.CreateOrder(ctx, "bob", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 100)
		require.NoError(t, err)
		_, err = s.env.Pool.Exec(ctx, `UPDATE orders SET created_at = now() - interval '2 days' WHERE id=$1`, old.ID)
		require.NoError(t, err)

		expired, err := s.orders.ExpirePending(ctx, time.Now().Add(-24*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, old.ID, expired[0].ID)
		assert.Equal(t, domain.StatusCancelled, expired[0].Status)
		assert.Equal(t, 9, s.stock(t, p.ID))
		assert.Equal(t, 1, s.count(t, `SELECT count(*) FROM outbox WHERE type='OrderCancelled'`))

		got, err := s.orders.GetOrder(ctx, fresh.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, got.Status)
	})

	t.Run("stale orders with an intent are left for reconciliation", func(t *testing.T) {
		s.env.Reset(t)
		p := s.product(t, "Soup", 100, 10)
		var ids []int64
		for i := 0; i < 3; i++ {
			o, err := s.orders.CreateOrder(ctx, "alice", []pricing.Line{{ProductID: p.ID, Quantity: 1}}, 100)
			require.NoError(t, err)
			ref := fmt.Sprintf("pi_%d", i)
			_, err = s.orders.UpdateOrderStatus(ctx, o.ID, domain.StatusPending, &ref)
			require.NoError(t, err)
			ids = append(ids, o.ID)
		}
		_, err := s.env.Pool.Exec(ctx, `UPDATE orders SET created_at = now() - interval '2 days'`)
		require.NoError(t, err)
		cutoff := time.Now().Add(-24 * time.Hour)

		expired, err := s.orders.ExpirePending(ctx, cutoff, 10)
		require.NoError(t, err)
		assert.Empty(t, expired)
		assert.Equal(t, 7, s.stock(t, p.ID))

		page, err := s.orders.StalePendingWithIntent(ctx, cutoff, 0, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, ids[0], page[0].ID)
		require.NotNil(t, page[0].PaymentIntentRef)
		assert.Equal(t, "pi_0", *page[0].PaymentIntentRef)

		rest, err := s.orders.StalePendingWithIntent(ctx, cutoff, page[1].ID, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, ids[2], rest[0].ID)
	})
}
