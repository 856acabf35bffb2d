package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"naskahlive/internal/account/model"
	"naskahlive/pkg/logger"
)

type UserStore interface {
	GetUserByID(ctx context.Context, id string) (model.User, error)
}

// JWTResolver accepts HMAC signed tokens issued by an external identity
// provider. The sub claim carries the user id.
type JWTResolver struct {
	secret []byte
	users  UserStore
}

func NewJWTResolver(secret string, users UserStore) *JWTResolver {
	return &JWTResolver{secret: []byte(secret), users: users}
}

func (r *JWTResolver) Resolve(ctx context.Context, credential string) Identity {
	if len(r.secret) == 0 || strings.Count(credential, ".") != 2 {
		return Anonymous()
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		logger.Sugar.Debugw("Invalid token", "error", err)
		return Anonymous()
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return Anonymous()
	}

	user, err := r.users.GetUserByID(ctx, sub)
	if err != nil {
		logger.Sugar.Debugw("JWT subject does not resolve to a user", "sub", sub, "error", err)
		return Anonymous()
	}
	return Identity{UserID: user.ID, Username: user.Username}
}

// SignJWT issues an HS256 token for userID valid for ttl.
func SignJWT(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		Issuer:    "naskahlive",
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
