package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
)

type fakeStore struct {
	tokens  []model.AuthToken
	users   map[string]model.User
	err     error
	lookups int
}

func (s *fakeStore) FindTokensByKey(_ context.Context, key string) ([]model.AuthToken, error) {
	s.lookups++
	if s.err != nil {
		return nil, s.err
	}
	var out []model.AuthToken
	for _, t := range s.tokens {
		if t.TokenKey == key {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeStore) GetUserByID(_ context.Context, id string) (model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s: %w", id, apperror.ErrNotFound)
	}
	return u, nil
}

func newStoreWithToken(t *testing.T, created time.Time, expiry *time.Time) (*fakeStore, string) {
	t.Helper()
	raw, err := GenerateToken()
	require.NoError(t, err)
	store := &fakeStore{
		users: map[string]model.User{"u1": {ID: "u1", Username: "alice"}},
		tokens: []model.AuthToken{{
			Digest:    TokenDigest(raw),
			TokenKey:  TokenKey(raw),
			UserID:    "u1",
			CreatedAt: created,
			Expiry:    expiry,
		}},
	}
	return store, raw
}

func TestGenerateTokenShape(t *testing.T) {
	raw, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, raw, 64)
	assert.Equal(t, raw[:8], TokenKey(raw))
	assert.Len(t, TokenDigest(raw), 128)
}

func TestTokenResolverResolvesValidToken(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	store, raw := newStoreWithToken(t, time.Now(), &exp)

	id := NewTokenResolver(store, 0).Resolve(context.Background(), raw)
	assert.Equal(t, Identity{UserID: "u1", Username: "alice"}, id)
}

func TestTokenResolverUsesDefaultWindowWithoutExpiry(t *testing.T) {
	store, raw := newStoreWithToken(t, time.Now().Add(-9*24*time.Hour), nil)
	r := NewTokenResolver(store, 0)
	assert.False(t, r.Resolve(context.Background(), raw).IsAnonymous())

	store, raw = newStoreWithToken(t, time.Now().Add(-11*24*time.Hour), nil)
	r = NewTokenResolver(store, 0)
	assert.True(t, r.Resolve(context.Background(), raw).IsAnonymous())
}

func TestTokenResolverExpiredTokenIsAnonymous(t *testing.T) {
	exp := time.Now().Add(-time.Minute)
	store, raw := newStoreWithToken(t, time.Now().Add(-time.Hour), &exp)

	assert.True(t, NewTokenResolver(store, 0).Resolve(context.Background(), raw).IsAnonymous())
}

func TestTokenResolverFailsClosed(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	store, raw := newStoreWithToken(t, time.Now(), &exp)
	r := NewTokenResolver(store, 0)

	t.Run("empty credential skips lookup", func(t *testing.T) {
		assert.True(t, r.Resolve(context.Background(), "").IsAnonymous())
		assert.Zero(t, store.lookups)
	})
	t.Run("unknown key", func(t *testing.T) {
		assert.True(t, r.Resolve(context.Background(), "zzzzzzzz-not-a-token").IsAnonymous())
	})
	t.Run("same key wrong secret", func(t *testing.T) {
		assert.True(t, r.Resolve(context.Background(), raw[:8]+"tampered").IsAnonymous())
	})
	t.Run("deleted user", func(t *testing.T) {
		delete(store.users, "u1")
		defer func() { store.users["u1"] = model.User{ID: "u1", Username: "alice"} }()
		assert.True(t, r.Resolve(context.Background(), raw).IsAnonymous())
	})
	t.Run("store error", func(t *testing.T) {
		store.err = errors.New("connection reset")
		defer func() { store.err = nil }()
		assert.True(t, r.Resolve(context.Background(), raw).IsAnonymous())
	})
}

func TestJWTResolver(t *testing.T) {
	store := &fakeStore{users: map[string]model.User{"u1": {ID: "u1", Username: "alice"}}}
	r := NewJWTResolver("secret", store)

	valid, err := SignJWT("secret", "u1", time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "alice", r.Resolve(context.Background(), valid).Username)

	expired, err := SignJWT("secret", "u1", -time.Hour)
	require.NoError(t, err)
	assert.True(t, r.Resolve(context.Background(), expired).IsAnonymous())

	forged, err := SignJWT("other", "u1", time.Hour)
	require.NoError(t, err)
	assert.True(t, r.Resolve(context.Background(), forged).IsAnonymous())

	unknown, err := SignJWT("secret", "ghost", time.Hour)
	require.NoError(t, err)
	assert.True(t, r.Resolve(context.Background(), unknown).IsAnonymous())

	assert.True(t, NewJWTResolver("", store).Resolve(context.Background(), valid).IsAnonymous())
}

func TestChainReturnsFirstKnownIdentity(t *testing.T) {
	never := ResolverFunc(func(context.Context, string) Identity { return Anonymous() })
	bob := ResolverFunc(func(context.Context, string) Identity { return Identity{UserID: "u2", Username: "bob"} })

	assert.Equal(t, "bob", Chain(never, bob).Resolve(context.Background(), "x").Username)
	assert.True(t, Chain(never).Resolve(context.Background(), "x").IsAnonymous())
	assert.True(t, Chain(bob).Resolve(context.Background(), "").IsAnonymous())
}

func TestCredentialFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/ws/documents/1?token=abc", nil)
	r.Header.Set("Authorization", "Token header")
	assert.Equal(t, "abc", CredentialFromRequest(r))

	r = httptest.NewRequest("GET", "/api/documents", nil)
	r.Header.Set("Authorization", "Token knox")
	assert.Equal(t, "knox", CredentialFromRequest(r))

	r.Header.Set("Authorization", "bearer jwt.a.b")
	assert.Equal(t, "jwt.a.b", CredentialFromRequest(r))

	r.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	assert.Equal(t, "", CredentialFromRequest(r))
}

func TestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := NewContext(context.Background(), Identity{UserID: "u1"})
	id, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u1", id.UserID)
}
