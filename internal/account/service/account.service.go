package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/internal/identity"
	"naskahlive/pkg/logger"
)

type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUserByID(ctx context.Context, id string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)
	CreateToken(ctx context.Context, t model.AuthToken) error
	DeleteToken(ctx context.Context, digest string) error
}

type AccountService struct {
	store Store
	ttl   time.Duration
	cost  int
	now   func() time.Time
}

func NewAccountService(store Store, ttl time.Duration) *AccountService {
	if ttl <= 0 {
		ttl = identity.DefaultTokenTTL
	}
	return &AccountService{
		store: store,
		ttl:   ttl,
		cost:  bcrypt.DefaultCost,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *AccountService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	username := strings.TrimSpace(req.Username)
	_, err := s.store.GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return model.AuthResponse{}, fmt.Errorf("username %q is taken: %w", username, apperror.ErrConflict)
	case !errors.Is(err, apperror.ErrNotFound):
		return model.AuthResponse{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.AuthResponse{}, err
	}
	logger.Sugar.Infof("Registered user %s (%s)", user.Username, user.ID)
	return s.IssueToken(ctx, user)
}

// Login never says whether the username or the password was wrong.
func (s *AccountService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if errors.Is(err, apperror.ErrNotFound) {
		return model.AuthResponse{}, fmt.Errorf("invalid credentials: %w", apperror.ErrUnauthorized)
	}
	if err != nil {
		return model.AuthResponse{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return model.AuthResponse{}, fmt.Errorf("invalid credentials: %w", apperror.ErrUnauthorized)
	}
	return s.IssueToken(ctx, user)
}

// Logout revokes the presented credential.
func (s *AccountService) Logout(ctx context.Context, credential string) error {
	if credential == "" {
		return fmt.Errorf("no credential: %w", apperror.ErrUnauthorized)
	}
	return s.store.DeleteToken(ctx, identity.TokenDigest(credential))
}

func (s *AccountService) Me(ctx context.Context, who identity.Identity) (model.UserResponse, error) {
	user, err := s.store.GetUserByID(ctx, who.UserID)
	if err != nil {
		return model.UserResponse{}, err
	}
	return user.Response(), nil
}

// IssueToken mints an opaque credential for user. Only its key and digest
// are stored; the raw token is returned once.
func (s *AccountService) IssueToken(ctx context.Context, user model.User) (model.AuthResponse, error) {
	raw, err := identity.GenerateToken()
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("generate token: %w", err)
	}
	now := s.now()
	expiry := now.Add(s.ttl)
	if err := s.store.CreateToken(ctx, model.AuthToken{
		Digest:    identity.TokenDigest(raw),
		TokenKey:  identity.TokenKey(raw),
		UserID:    user.ID,
		CreatedAt: now,
		Expiry:    &expiry,
	}); err != nil {
		return model.AuthResponse{}, err
	}
	return model.AuthResponse{Token: raw, Expiry: expiry, User: user.Response()}, nil
}

// IssueTokenFor is IssueToken by username, for operators.
func (s *AccountService) IssueTokenFor(ctx context.Context, username string) (model.AuthResponse, error) {
	user, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return model.AuthResponse{}, err
	}
	return s.IssueToken(ctx, user)
}
