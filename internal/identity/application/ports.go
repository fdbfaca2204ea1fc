package application

import (
	"context"

	"github.com/dmehra2102/storefront/internal/identity/domain"
)

type UserRepository interface {
	Get(ctx context.Context, id string) (domain.User, error)
	Ensure(ctx context.Context, id, email string) error
	SetAdmin(ctx context.Context, id string, admin bool) error
}
