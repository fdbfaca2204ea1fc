package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/catalog/domain"
)

// Columns is the select list ScanProduct expects.
const Columns = `id, name, description, price_cents, image_url, category, inventory_count, is_active`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func ScanProduct(row pgx.Row) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.PriceCents, &p.ImageURL, &p.Category, &p.InventoryCount, &p.IsActive)
	return p, err
}

func (r *Repository) List(ctx context.Context) ([]domain.Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+Columns+` FROM products ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := ScanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

func (r *Repository) Get(ctx context.Context, id int64) (domain.Product, error) {
	p, err := ScanProduct(r.pool.QueryRow(ctx, `SELECT `+Columns+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("get product %d: %w", id, err)
	}
	return p, nil
}

func (r *Repository) GetMany(ctx context.Context, ids []int64) (map[int64]domain.Product, error) {
	out := make(map[int64]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+Columns+` FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		p, err := ScanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repository) Create(ctx context.Context, in domain.NewProduct) (domain.Product, error) {
	p, err := ScanProduct(r.pool.QueryRow(ctx, `
		INSERT INTO products (name, description, price_cents, image_url, category, inventory_count, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING `+Columns,
		in.Name, in.Description, in.PriceCents, in.ImageURL, in.Category, in.InventoryCount, in.Active()))
	if err != nil {
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

// Update uses COALESCE so absent patch fields keep their stored value.
func (r *Repository) Update(ctx context.Context, id int64, patch domain.ProductPatch) (domain.Product, error) {
	p, err := ScanProduct(r.pool.QueryRow(ctx, `
		UPDATE products SET
			name            = COALESCE($2, name),
			description     = COALESCE($3, description),
			price_cents     = COALESCE($4, price_cents),
			image_url       = COALESCE($5, image_url),
			category        = COALESCE($6, category),
			inventory_count = COALESCE($7, inventory_count),
			is_active       = COALESCE($8, is_active)
		WHERE id=$1
		RETURNING `+Columns,
		id, patch.Name, patch.Description, patch.PriceCents, patch.ImageURL, patch.Category, patch.InventoryCount, patch.IsActive))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete product %d: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return n, nil
}
