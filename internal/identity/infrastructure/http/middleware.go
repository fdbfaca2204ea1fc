package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmehra2102/storefront/internal/identity/application"
	"github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/pkg/httpx"
)

type ctxKey struct{}

func WithIdentity(ctx context.Context, who *domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, who)
}

// FromContext returns the verified caller, or nil for anonymous requests.
func FromContext(ctx context.Context) *domain.Identity {
	who, _ := ctx.Value(ctxKey{}).(*domain.Identity)
	return who
}

type Authenticator struct {
	log      *slog.Logger
	secret   []byte
	registry *application.Service
}

func NewAuthenticator(log *slog.Logger, secret string, registry *application.Service) *Authenticator {
	return &Authenticator{log: log, secret: []byte(secret), registry: registry}
}

// Middleware verifies an optional bearer token. Requests without one pass through anonymous;
// a present but invalid token is rejected.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		who, err := a.verify(raw)
		if err != nil {
			a.log.Debug("token rejected", "err", err)
			httpx.WriteError(w, r, a.log, domain.ErrUnauthenticated)
			return
		}
		if err := a.registry.Register(r.Context(), *who); err != nil {
			httpx.WriteError(w, r, a.log, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), who)))
	})
}

type claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

func (a *Authenticator) verify(raw string) (*domain.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if c.Subject == "" {
		return nil, jwt.ErrTokenRequiredClaimMissing
	}
	return &domain.Identity{UserID: c.Subject, Email: c.Email}, nil
}

func bearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", true
	}
	return strings.TrimSpace(tok), true
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if FromContext(r.Context()) == nil {
				httpx.WriteError(w, r, log, domain.ErrUnauthenticated)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin consults the gate before the handler runs, so a non-admin never gets as far
// as body validation.
func RequireAdmin(log *slog.Logger, gate *application.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := gate.RequireAdmin(r.Context(), FromContext(r.Context())); err != nil {
				httpx.WriteError(w, r, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
