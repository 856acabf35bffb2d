package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/internal/identity"
)

type memStore struct {
	users  map[string]model.User
	tokens map[string]model.AuthToken
}

func newMemStore() *memStore {
	return &memStore{users: map[string]model.User{}, tokens: map[string]model.AuthToken{}}
}

func (m *memStore) CreateUser(_ context.Context, u model.User) error {
	m.users[u.ID] = u
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (model.User, error) {
	u, ok := m.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, apperror.ErrNotFound)
	}
	return u, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return model.User{}, fmt.Errorf("user %s: %w", username, apperror.ErrNotFound)
}

func (m *memStore) CreateToken(_ context.Context, t model.AuthToken) error {
	m.tokens[t.Digest] = t
	return nil
}

func (m *memStore) DeleteToken(_ context.Context, digest string) error {
	if _, ok := m.tokens[digest]; !ok {
		return fmt.Errorf("token: %w", apperror.ErrNotFound)
	}
	delete(m.tokens, digest)
	return nil
}

func (m *memStore) FindTokensByKey(_ context.Context, key string) ([]model.AuthToken, error) {
	var out []model.AuthToken
	for _, t := range m.tokens {
		if t.TokenKey == key {
			out = append(out, t)
		}
	}
	return out, nil
}

func newService() (*AccountService, *memStore) {
	store := newMemStore()
	svc := NewAccountService(store, time.Hour)
	svc.cost = bcrypt.MinCost
	return svc, store
}

func TestRegisterIssuesWorkingToken(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()

	resp, err := svc.Register(ctx, model.RegisterRequest{Username: "alice", Email: "a@example.com", Password: "correct horse"})
	require.NoError(t, err)
	assert.Len(t, resp.Token, 64)
	assert.Equal(t, "alice", resp.User.Username)
	assert.NotEqual(t, "correct horse", store.users[resp.User.ID].PasswordHash)

	who := identity.NewTokenResolver(store, time.Hour).Resolve(ctx, resp.Token)
	assert.Equal(t, resp.User.ID, who.UserID)
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, err := svc.Register(ctx, model.RegisterRequest{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, model.RegisterRequest{Username: "alice", Password: "password2"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestLogin(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	_, err := svc.Register(ctx, model.RegisterRequest{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	resp, err := svc.Login(ctx, model.LoginRequest{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	_, err = svc.Login(ctx, model.LoginRequest{Username: "alice", Password: "wrong"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	_, err = svc.Login(ctx, model.LoginRequest{Username: "bob", Password: "password1"})
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, store := newService()
	ctx := context.Background()
	resp, err := svc.Register(ctx, model.RegisterRequest{Username: "alice", Password: "password1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, resp.Token))
	who := identity.NewTokenResolver(store, time.Hour).Resolve(ctx, resp.Token)
	assert.True(t, who.IsAnonymous())

	assert.ErrorIs(t, svc.Logout(ctx, resp.Token), apperror.ErrNotFound)
	assert.ErrorIs(t, svc.Logout(ctx, ""), apperror.ErrUnauthorized)
}

func TestIssueTokenStoresExplicitExpiry(t *testing.T) {
	svc, store := newService()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	store.users["u1"] = model.User{ID: "u1", Username: "ops"}

	resp, err := svc.IssueTokenFor(context.Background(), "ops")
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(time.Hour), resp.Expiry)

	stored := store.tokens[identity.TokenDigest(resp.Token)]
	require.NotNil(t, stored.Expiry)
	assert.Equal(t, fixed.Add(time.Hour), *stored.Expiry)
	assert.Equal(t, resp.Token[:8], stored.TokenKey)
}

func TestMe(t *testing.T) {
	svc, store := newService()
	store.users["u1"] = model.User{ID: "u1", Username: "alice", Email: "a@example.com"}

	me, err := svc.Me(context.Background(), identity.Identity{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, model.UserResponse{ID: "u1", Username: "alice", Email: "a@example.com"}, me)
}
