package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"time"

	"naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/pkg/logger"
)

const (
	TokenKeyLength  = 8
	DefaultTokenTTL = 10 * 24 * time.Hour

	tokenBytes = 32
)

type TokenStore interface {
	FindTokensByKey(ctx context.Context, key string) ([]model.AuthToken, error)
	GetUserByID(ctx context.Context, id string) (model.User, error)
}

// GenerateToken returns a new random credential, hex encoded.
func GenerateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// TokenKey is the short, non-secret lookup key stored next to the digest.
func TokenKey(raw string) string {
	if len(raw) < TokenKeyLength {
		return raw
	}
	return raw[:TokenKeyLength]
}

func TokenDigest(raw string) string {
	sum := sha512.Sum512([]byte(raw))
	return hex.EncodeToString(sum[:])
}

type TokenResolver struct {
	store TokenStore
	ttl   time.Duration
	now   func() time.Time
}

func NewTokenResolver(store TokenStore, ttl time.Duration) *TokenResolver {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenResolver{store: store, ttl: ttl, now: time.Now}
}

// ExpiresAt is the stored expiry, or the creation time plus the default
// validity window when the token was stored without one.
func (r *TokenResolver) ExpiresAt(t model.AuthToken) time.Time {
	if t.Expiry != nil {
		return *t.Expiry
	}
	return t.CreatedAt.Add(r.ttl)
}

func (r *TokenResolver) Resolve(ctx context.Context, credential string) Identity {
	if len(credential) < TokenKeyLength {
		return Anonymous()
	}

	tokens, err := r.store.FindTokensByKey(ctx, TokenKey(credential))
	if err != nil {
		logger.Sugar.Errorw("Error resolving user from token", "error", err)
		return Anonymous()
	}

	digest := TokenDigest(credential)
	for _, t := range tokens {
		if subtle.ConstantTimeCompare([]byte(t.Digest), []byte(digest)) != 1 {
			continue
		}
		if r.now().After(r.ExpiresAt(t)) {
			logger.Sugar.Debugw("Token is expired", "token_key", t.TokenKey)
			return Anonymous()
		}
		user, err := r.store.GetUserByID(ctx, t.UserID)
		if err != nil {
			if !errors.Is(err, apperror.ErrNotFound) {
				logger.Sugar.Errorw("Error loading token owner", "user_id", t.UserID, "error", err)
			}
			return Anonymous()
		}
		return Identity{UserID: user.ID, Username: user.Username}
	}
	return Anonymous()
}
