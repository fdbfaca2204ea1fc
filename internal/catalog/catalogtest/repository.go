// Package catalogtest provides an in-memory product repository for tests.
package catalogtest

import (
	"context"
	"sort"
	"sync"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

type Repository struct {
	mu       sync.Mutex
	nextID   int64
	products map[int64]domain.Product
	Err      error
}

func NewRepository(products ...domain.Product) *Repository {
	r := &Repository{products: map[int64]domain.Product{}}
	for _, p := range products {
		r.Put(p)
	}
	return r
}

// Put stores p as-is, assigning an id when p.ID is zero.
func (r *Repository) Put(p domain.Product) domain.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		r.nextID++
		p.ID = r.nextID
	} else if p.ID > r.nextID {
		r.nextID = p.ID
	}
	r.products[p.ID] = p
	return p
}

func (r *Repository) List(context.Context) ([]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]domain.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Repository) Get(_ context.Context, id int64) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return domain.Product{}, r.Err
	}
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (r *Repository) GetMany(_ context.Context, ids []int64) (map[int64]domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	out := make(map[int64]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (r *Repository) Create(_ context.Context, in domain.NewProduct) (domain.Product, error) {
	if r.Err != nil {
		return domain.Product{}, r.Err
	}
	return r.Put(domain.Product{
		Name:           in.Name,
		Description:    in.Description,
		PriceCents:     in.PriceCents,
		ImageURL:       in.ImageURL,
		Category:       in.Category,
		InventoryCount: in.InventoryCount,
		IsActive:       in.Active(),
	}), nil
}

func (r *Repository) Update(_ context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return domain.Product{}, r.Err
	}
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p = patch.Apply(p)
	r.products[id] = p
	return p, nil
}

func (r *Repository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(r.products, id)
	return nil
}

func (r *Repository) Count(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	return len(r.products), nil
}

// SetInventory adjusts stock directly, bypassing validation.
func (r *Repository) SetInventory(id int64, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.products[id]
	p.InventoryCount = n
	r.products[id] = p
}
