package application

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/storefront/internal/identity/domain"
	"github.com/dmehra2102/storefront/pkg/apperr"
	"github.com/dmehra2102/storefront/pkg/logging"
)

type memUsers struct {
	mu    sync.Mutex
	users map[string]domain.User
	err   error
}

func newMemUsers(users ...domain.User) *memUsers {
	m := &memUsers{users: map[string]domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) Get(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return domain.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) Ensure(_ context.Context, id, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		m.users[id] = domain.User{ID: id, Email: email}
		return nil
	}
	if u.Email == "" && email != "" {
		u.Email = email
		m.users[id] = u
	}
	return nil
}

func (m *memUsers) SetAdmin(_ context.Context, id string, admin bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsAdmin = admin
	m.users[id] = u
	return nil
}

func TestGate_RequireAdmin(t *testing.T) {
	users := newMemUsers(
		domain.User{ID: "admin-1", IsAdmin: true},
		domain.User{ID: "user-1"},
	)
	gate := NewGate(users)
	ctx := context.Background()

	_, err := gate.RequireAdmin(ctx, nil)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = gate.RequireAdmin(ctx, &domain.Identity{UserID: "user-1"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = gate.RequireAdmin(ctx, &domain.Identity{UserID: "ghost"})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	u, err := gate.RequireAdmin(ctx, &domain.Identity{UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, "admin-1", u.ID)
}

func TestGate_RequireAdminReadsStoreEveryTime(t *testing.T) {
	users := newMemUsers(domain.User{ID: "u", IsAdmin: true})
	gate := NewGate(users)
	who := &domain.Identity{UserID: "u"}

	ok, err := gate.IsAdmin(context.Background(), who)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, users.SetAdmin(context.Background(), "u", false))

	ok, err = gate.IsAdmin(context.Background(), who)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGate_StoreFailureIsInternal(t *testing.T) {
	users := newMemUsers()
	users.err = errors.New("connection refused")
	gate := NewGate(users)

	_, err := gate.RequireAdmin(context.Background(), &domain.Identity{UserID: "u"})
	assert.True(t, apperr.Is(err, apperr.KindInternal))

	_, err = gate.IsAdmin(context.Background(), &domain.Identity{UserID: "u"})
	assert.Error(t, err)
}

func TestGate_CurrentUserFallsBackToIdentity(t *testing.T) {
	gate := NewGate(newMemUsers())

	u, err := gate.CurrentUser(context.Background(), &domain.Identity{UserID: "new", Email: "n@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "new", u.ID)
	assert.False(t, u.IsAdmin)

	_, err = gate.CurrentUser(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestService_Promote(t *testing.T) {
	users := newMemUsers(domain.User{ID: "existing", Email: "e@example.com"})
	svc := NewService(logging.Discard(), users)

	require.NoError(t, svc.Promote(context.Background(), []string{"existing", "", "fresh"}))

	for _, id := range []string{"existing", "fresh"} {
		u, err := users.Get(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, u.IsAdmin, id)
	}
	u, _ := users.Get(context.Background(), "existing")
	assert.Equal(t, "e@example.com", u.Email)
}
