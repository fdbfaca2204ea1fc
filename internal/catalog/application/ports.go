package application

import (
	"context"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

type ProductRepository interface {
	List(ctx context.Context) ([]domain.Product, error)
	Get(ctx context.Context, id int64) (domain.Product, error)
	GetMany(ctx context.Context, ids []int64) (map[int64]domain.Product, error)
	Create(ctx context.Context, p domain.NewProduct) (domain.Product, error)
	Update(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error)
	Delete(ctx context.Context, id int64) error
	Count(ctx context.Context) (int, error)
}
