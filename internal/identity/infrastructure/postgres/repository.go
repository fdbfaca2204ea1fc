package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/storefront/internal/identity/application"
	"github.com/dmehra2102/storefront/internal/identity/domain"
)

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Get(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.pool.QueryRow(ctx, `SELECT id, email, is_admin, created_at FROM users WHERE id=$1`, id).
		Scan(&u.ID, &u.Email, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, application.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Ensure inserts the user if missing and fills in an email learned later. It never touches is_admin.
func (r *Repository) Ensure(ctx context.Context, id, email string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email
		WHERE users.email = '' AND EXCLUDED.email <> ''`, id, email)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

func (r *Repository) SetAdmin(ctx context.Context, id string, admin bool) error {
	ct, err := r.pool.Exec(ctx, `UPDATE users SET is_admin=$2 WHERE id=$1`, id, admin)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return application.ErrUserNotFound
	}
	return nil
}
