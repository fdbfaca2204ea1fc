// Package ordertest provides an in-memory order store for tests. It mirrors the postgres
// store's semantics: creation reserves stock, cancellation returns it.
package ordertest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmehra2102/storefront/internal/catalog/catalogtest"
	catalog "github.com/dmehra2102/storefront/internal/catalog/domain"
	"github.com/dmehra2102/storefront/internal/order/domain"
	"github.com/dmehra2102/storefront/internal/pricing"
)

type Repository struct {
	mu       sync.Mutex
	products *catalogtest.Repository
	orders   map[int64]domain.Order
	items    map[int64][]domain.OrderItem
	nextID   int64
	nextItem int64
	Events   []string
	Now      func() time.Time
	Err      error
}

func NewRepository(products *catalogtest.Repository) *Repository {
	return &Repository{
		products: products,
		orders:   map[int64]domain.Order{},
		items:    map[int64][]domain.OrderItem{},
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) CreateOrder(ctx context.Context, userID string, lines []pricing.Line, quotedTotal int64) (domain.OrderView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return domain.OrderView{}, r.Err
	}

	sorted := append([]pricing.Line(nil), lines...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	stock := map[int64]catalog.Product{}
	var total int64
	for _, l := range sorted {
		p, ok := stock[l.ProductID]
		if !ok {
			got, err := r.products.Get(ctx, l.ProductID)
			if err != nil || !got.IsActive {
				return domain.OrderView{}, catalog.ErrProductNotFound
			}
			p = got
		}
		if p.InventoryCount < l.Quantity {
			return domain.OrderView{}, pricing.InsufficientInventory(p)
		}
		p.InventoryCount -= l.Quantity
		stock[l.ProductID] = p
		sub, err := pricing.LineSubtotal(p.PriceCents, l.Quantity, l.HasSpecialRequests())
		if err != nil {
			return domain.OrderView{}, err
		}
		if total, err = pricing.AddCents(total, sub); err != nil {
			return domain.OrderView{}, err
		}
	}
	if total != quotedTotal {
		return domain.OrderView{}, domain.ErrPricesChanged
	}
	for id, p := range stock {
		r.products.SetInventory(id, p.InventoryCount)
	}

	r.nextID++
	now := r.Now()
	o := domain.Order{ID: r.nextID, UserID: userID, Status: domain.StatusPending, TotalAmountCents: total, CreatedAt: now, UpdatedAt: now}
	r.orders[o.ID] = o
	for _, l := range sorted {
		r.nextItem++
		r.items[o.ID] = append(r.items[o.ID], domain.OrderItem{
			ID:                   r.nextItem,
			OrderID:              o.ID,
			ProductID:            l.ProductID,
			Quantity:             l.Quantity,
			PriceAtPurchaseCents: stock[l.ProductID].PriceCents,
			SpecialRequests:      l.SpecialRequests,
		})
	}
	r.Events = append(r.Events, domain.EventOrderCreated)
	return r.view(ctx, o), nil
}

func (r *Repository) view(ctx context.Context, o domain.Order) domain.OrderView {
	v := domain.OrderView{Order: o, Items: []domain.OrderItemView{}}
	for _, it := range r.items[o.ID] {
		iv := domain.OrderItemView{OrderItem: it}
		if p, err := r.products.Get(ctx, it.ProductID); err == nil {
			iv.Product = &p
		}
		v.Items = append(v.Items, iv)
	}
	return v
}

func (r *Repository) GetOrders(ctx context.Context, userID *string) ([]domain.OrderView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]domain.OrderView, 0)
	for _, o := range r.orders {
		if userID != nil && o.UserID != *userID {
			continue
		}
		out = append(out, r.view(ctx, o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (domain.OrderView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return domain.OrderView{}, r.Err
	}
	o, ok := r.orders[id]
	if !ok {
		return domain.OrderView{}, domain.ErrOrderNotFound
	}
	return r.view(ctx, o), nil
}

func (r *Repository) UpdateOrderStatus(_ context.Context, id int64, status domain.OrderStatus, ref *string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status == domain.StatusCancelled && status != domain.StatusCancelled {
		return domain.Order{}, domain.ErrStatusConflict
	}
	if status == domain.StatusPending && o.Status != domain.StatusPending {
		return domain.Order{}, domain.ErrStatusConflict
	}
	o.Status = status
	if ref != nil {
		o.PaymentIntentRef = ref
	}
	o.UpdatedAt = r.Now()
	r.orders[id] = o
	return o, nil
}

func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to domain.OrderStatus) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.Order{}, domain.ErrStatusConflict
	}
	return r.transition(ctx, o, to), nil
}

func (r *Repository) transition(ctx context.Context, o domain.Order, to domain.OrderStatus) domain.Order {
	if to == domain.StatusCancelled {
		for _, it := range r.items[o.ID] {
			if p, err := r.products.Get(ctx, it.ProductID); err == nil {
				r.products.SetInventory(p.ID, p.InventoryCount+it.Quantity)
			}
		}
	}
	o.Status = to
	o.UpdatedAt = r.Now()
	r.orders[o.ID] = o
	r.Events = append(r.Events, domain.EventFor(to))
	return o
}

func (r *Repository) ExpirePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	var stale []domain.Order
	for _, o := range r.orders {
		if o.Status == domain.StatusPending && o.PaymentIntentRef == nil && o.CreatedAt.Before(olderThan) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	out := make([]domain.Order, 0, len(stale))
	for _, o := range stale {
		out = append(out, r.transition(ctx, o, domain.StatusCancelled))
	}
	return out, nil
}

func (r *Repository) StalePendingWithIntent(_ context.Context, olderThan time.Time, afterID int64, limit int) ([]domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	stale := []domain.Order{}
	for _, o := range r.orders {
		if o.Status == domain.StatusPending && o.PaymentIntentRef != nil && o.ID > afterID && o.CreatedAt.Before(olderThan) {
			stale = append(stale, o)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ID < stale[j].ID })
	if len(stale) > limit {
		stale = stale[:limit]
	}
	return stale, nil
}

// Backdate moves an order's creation time, for expiry tests.
func (r *Repository) Backdate(id int64, by time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[id]
	o.CreatedAt = o.CreatedAt.Add(-by)
	r.orders[id] = o
}
