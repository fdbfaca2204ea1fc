package http

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SignToken issues an HS256 token the Authenticator accepts. Used by tests and local tooling;
// production tokens come from the identity provider.
func SignToken(secret, userID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
}
