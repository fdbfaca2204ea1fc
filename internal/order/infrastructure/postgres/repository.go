package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	catalogpg "github.com/dmehra2102/storefront/internal/catalog/infrastructure/postgres"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
	"github.com/dmehra2102/storefront/pkg/outbox"
	"github.com/dmehra2102/storefront/pkg/tracing"
)

const orderColumns = `id, user_id, status, total_amount_cents, payment_intent_ref, created_at, updated_at`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalAmountCents, &o.PaymentIntentRef, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

// CreateOrder inserts the order and its items and takes their stock in one transaction.
// Products are locked in ascending id order so concurrent checkouts cannot deadlock, and
// every decrement is guarded so stock never goes below zero.
func (r *Repository) CreateOrder(ctx context.Context, userID string, lines []pricing.Line, quotedTotal int64) (domain.OrderView, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("begin create order: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := scanOrder(tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, status, total_amount_cents) VALUES ($1, 'pending', 0)
		RETURNING `+orderColumns, userID))
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("insert order: %w", err)
	}

	sorted := append([]pricing.Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	locked := make(map[int64]catalog.Product, len(sorted))
	view := domain.OrderView{Items: make([]domain.OrderItemView, 0, len(sorted))}
	var total int64
	for _, l := range sorted {
		p, ok := locked[l.ProductID]
		if !ok {
			p, err = catalogpg.ScanProduct(tx.QueryRow(ctx,
				`SELECT `+catalogpg.Columns+` FROM products WHERE id=$1 FOR UPDATE`, l.ProductID))
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.OrderView{}, catalog.ErrProductNotFound
			}
			if err != nil {
				return domain.OrderView{}, fmt.Errorf("lock product %d: %w", l.ProductID, err)
			}
			if !p.IsActive {
				return domain.OrderView{}, catalog.ErrProductNotFound
			}
		}
		if p.InventoryCount < l.Quantity {
			return domain.OrderView{}, pricing.InsufficientInventory(p)
		}

		ct, err := tx.Exec(ctx, `
			UPDATE products SET inventory_count = inventory_count - $2
			WHERE id=$1 AND inventory_count >= $2`, p.ID, l.Quantity)
		if err != nil {
			return domain.OrderView{}, fmt.Errorf("decrement product %d: %w", p.ID, err)
		}
		if ct.RowsAffected() != 1 {
			return domain.OrderView{}, pricing.InsufficientInventory(p)
		}
		p.InventoryCount -= l.Quantity
		locked[p.ID] = p

		item := domain.OrderItem{
			OrderID:              o.ID,
			ProductID:            p.ID,
			Quantity:             l.Quantity,
			PriceAtPurchaseCents: p.PriceCents,
			SpecialRequests:      l.SpecialRequests,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price_at_purchase_cents, special_requests)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.OrderID, item.ProductID, item.Quantity, item.PriceAtPurchaseCents, item.SpecialRequests).Scan(&item.ID)
		if err != nil {
			return domain.OrderView{}, fmt.Errorf("insert order item: %w", err)
		}
		product := p
		view.Items = append(view.Items, domain.OrderItemView{OrderItem: item, Product: &product})
		sub, err := pricing.LineSubtotal(p.PriceCents, l.Quantity, l.HasSpecialRequests())
		if err != nil {
			return domain.OrderView{}, err
		}
		if total, err = pricing.AddCents(total, sub); err != nil {
			return domain.OrderView{}, err
		}
	}

	if total != quotedTotal {
		r.log.Warn("order total changed under lock", "quoted", quotedTotal, "locked", total, "user_id", userID)
		return domain.OrderView{}, domain.ErrPricesChanged
	}

	o, err = scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET total_amount_cents=$2 WHERE id=$1 RETURNING `+orderColumns, o.ID, total))
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("set order total: %w", err)
	}
	view.Order = o

	items := make([]domain.OrderItem, 0, len(view.Items))
	for _, it := range view.Items {
		items = append(items, it.OrderItem)
	}
	if err := insertEvent(ctx, tx, o, domain.EventOrderCreated, domain.OrderCreated{
		OrderID:          o.ID,
		UserID:           o.UserID,
		TotalAmountCents: o.TotalAmountCents,
		Items:            items,
		CreatedAt:        o.CreatedAt,
	}); err != nil {
		return domain.OrderView{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.OrderView{}, fmt.Errorf("commit create order: %w", err)
	}
	return view, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, o domain.Order, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}
	return outbox.Insert(ctx, tx, outbox.Record{
		AggregateType: "order",
		AggregateID:   strconv.FormatInt(o.ID, 10),
		Type:          eventType,
		Payload:       payload,
		Traceparent:   tracing.Traceparent(ctx),
	})
}

func (r *Repository) GetOrders(ctx context.Context, userID *string) ([]domain.OrderView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE $1::text IS NULL OR user_id = $1
		ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}
	return r.hydrate(ctx, orders)
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (domain.OrderView, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.OrderView{}, fmt.Errorf("get order %d: %w", id, err)
	}
	views, err := r.hydrate(ctx, []domain.Order{o})
	if err != nil {
		return domain.OrderView{}, err
	}
	return views[0], nil
}

// hydrate attaches items and their products. Items whose product was deleted keep a nil Product.
func (r *Repository) hydrate(ctx context.Context, orders []domain.Order) ([]domain.OrderView, error) {
	views := make([]domain.OrderView, len(orders))
	if len(orders) == 0 {
		return views, nil
	}
	ids := make([]int64, len(orders))
	index := make(map[int64]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		index[o.ID] = i
		views[i] = domain.OrderView{Order: o, Items: []domain.OrderItemView{}}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, i.quantity, i.price_at_purchase_cents, i.special_requests,
		       p.id, p.name, p.description, p.price_cents, p.image_url, p.category, p.inventory_count, p.is_active
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1)
		ORDER BY i.order_id, i.id`, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			it         domain.OrderItem
			pid        *int64
			name, desc *string
			price      *int64
			image, cat *string
			inventory  *int
			active     *bool
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.PriceAtPurchaseCents, &it.SpecialRequests,
			&pid, &name, &desc, &price, &image, &cat, &inventory, &active); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		iv := domain.OrderItemView{OrderItem: it}
		if pid != nil {
			iv.Product = &catalog.Product{
				ID:             *pid,
				Name:           *name,
				Description:    *desc,
				PriceCents:     *price,
				ImageURL:       *image,
				Category:       *cat,
				InventoryCount: *inventory,
				IsActive:       *active,
			}
		}
		v := &views[index[it.OrderID]]
		v.Items = append(v.Items, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return views, nil
}

// UpdateOrderStatus overwrites status and, when ref is non-nil, the payment intent ref.
// A cancelled order has already returned its stock, so it can only be rewritten as cancelled.
func (r *Repository) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentIntentRef *string) (domain.Order, error) {
	o, err := scanOrder(r.pool.QueryRow(ctx, `
		UPDATE orders
		SET status=$2, payment_intent_ref=COALESCE($3, payment_intent_ref), updated_at=now()
		WHERE id=$1
		  AND (status <> 'cancelled' OR $2 = 'cancelled')
		  AND ($2 <> 'pending' OR status = 'pending')
		RETURNING `+orderColumns, id, string(status), paymentIntentRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, r.missingOrConflict(ctx, r.pool, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("update order %d: %w", id, err)
	}
	return o, nil
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) missingOrConflict(ctx context.Context, q queryRower, id int64) error {
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order %d: %w", id, err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrStatusConflict
}

// TransitionStatus moves the order from -> to only if it is still in from, writing the
// matching outbox event in the same transaction. Cancelling returns the items to stock.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin transition: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, r.missingOrConflict(ctx, tx, id)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("transition order %d: %w", id, err)
	}

	if err := r.applyTransition(ctx, tx, o, from); err != nil {
		return domain.Order{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("commit transition: %w", err)
	}
	return o, nil
}

func (r *Repository) applyTransition(ctx context.Context, tx pgx.Tx, o domain.Order, from domain.OrderStatus) error {
	if o.Status == domain.StatusCancelled {
		if err := restock(ctx, tx, o.ID); err != nil {
			return err
		}
	}
	return insertEvent(ctx, tx, o, domain.EventFor(o.Status), domain.StatusChanged{
		OrderID:          o.ID,
		UserID:           o.UserID,
		From:             from,
		To:               o.Status,
		PaymentIntentRef: o.PaymentIntentRef,
		At:               o.UpdatedAt,
	})
}

func restock(ctx context.Context, tx pgx.Tx, orderID int64) error {
	_, err := tx.Exec(ctx, `
		SELECT id FROM products
		WHERE id IN (SELECT product_id FROM order_items WHERE order_id=$1)
		ORDER BY id FOR UPDATE`, orderID)
	if err != nil {
		return fmt.Errorf("lock restock products: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE products p SET inventory_count = p.inventory_count + i.qty
		FROM (SELECT product_id, SUM(quantity)::int AS qty FROM order_items WHERE order_id=$1 GROUP BY product_id) i
		WHERE p.id = i.product_id`, orderID)
	if err != nil {
		return fmt.Errorf("restock order %d: %w", orderID, err)
	}
	return nil
}

// ExpirePending cancels up to limit pending orders created before olderThan that never got
// a payment intent. Rows another transaction holds are skipped and picked up by a later sweep.
func (r *Repository) ExpirePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin expire: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	rows, err := tx.Query(ctx, `
		SELECT id FROM orders
		WHERE status='pending' AND payment_intent_ref IS NULL AND created_at < $1
		ORDER BY id
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("select stale orders: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("scan stale orders: %w", err)
	}

	expired := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := scanOrder(tx.QueryRow(ctx, `
			UPDATE orders SET status='cancelled', updated_at=now()
			WHERE id=$1 RETURNING `+orderColumns, id))
		if err != nil {
			return nil, fmt.Errorf("expire order %d: %w", id, err)
		}
		if err := r.applyTransition(ctx, tx, o, domain.StatusPending); err != nil {
			return nil, err
		}
		expired = append(expired, o)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit expire: %w", err)
	}
	return expired, nil
}

// StalePendingWithIntent lists pending orders created before olderThan that carry a payment
// intent, in id order after afterID. Nothing is locked; callers settle each one through
// TransitionStatus once the provider has been asked.
func (r *Repository) StalePendingWithIntent(ctx context.Context, olderThan time.Time, afterID int64, limit int) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status='pending' AND payment_intent_ref IS NOT NULL AND created_at < $1 AND id > $2
		ORDER BY id
		LIMIT $3`, olderThan, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale orders with intent: %w", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Order, error) {
		return scanOrder(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan stale orders with intent: %w", err)
	}
	return orders, nil
}
