package domain

import (
	"time"

	"github.com/dmehra2102/storefront/pkg/apperr"
)

var (
	ErrUnauthenticated = apperr.New(apperr.KindUnauthenticated, "Unauthorized")
	ErrForbidden       = apperr.New(apperr.KindForbidden, "Forbidden")
)

// User is the authoritative record for the admin capability.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
}

// Identity is what the identity provider vouches for: who is calling. It carries no
// capabilities; those are always read from the users table.
type Identity struct {
	UserID string
	Email  string
}
