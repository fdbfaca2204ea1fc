package application

import (
	"context"
	"errors"

	"github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
)

var ErrUserNotFound = errors.New("user not found")

// Gate answers capability questions. It reads the users table on every call and never
// trusts a flag carried by the caller.
type Gate struct {
	users UserRepository
}

func NewGate(users UserRepository) *Gate {
	return &Gate{users: users}
}

func (g *Gate) RequireAdmin(ctx context.Context, who *domain.Identity) (domain.User, error) {
	if who == nil || who.UserID == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	u, err := g.users.Get(ctx, who.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return domain.User{}, domain.ErrForbidden
	}
	if err != nil {
		return domain.User{}, apperr.Internal(err)
	}
	if !u.IsAdmin {
		return domain.User{}, domain.ErrForbidden
	}
	return u, nil
}

func (g *Gate) IsAdmin(ctx context.Context, who *domain.Identity) (bool, error) {
	_, err := g.RequireAdmin(ctx, who)
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.KindForbidden):
		return false, nil
	default:
		return false, err
	}
}

func (g *Gate) CurrentUser(ctx context.Context, who *domain.Identity) (domain.User, error) {
	if who == nil || who.UserID == "" {
		return domain.User{}, domain.ErrUnauthenticated
	}
	u, err := g.users.Get(ctx, who.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return domain.User{ID: who.UserID, Email: who.Email}, nil
	}
	if err != nil {
		return domain.User{}, apperr.Internal(err)
	}
	return u, nil
}
