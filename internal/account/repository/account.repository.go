package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"naskahlive/internal/account/model"
	"naskahlive/internal/apperror"
	"naskahlive/pkg/logger"
)

type AccountRepository struct {
	DB *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{DB: db}
}

func (r *AccountRepository) CreateUser(ctx context.Context, u model.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users (id, username, email, password_hash, created_at) VALUES ($1, $2, $3, $4, $5)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.CreatedAt)
	if err != nil {
		logger.Sugar.Errorf("Failed to create user %s: %v", u.Username, err)
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetUserByID(ctx context.Context, id string) (model.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1`, id)
}

func (r *AccountRepository) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return r.getUser(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1`, username)
}

func (r *AccountRepository) getUser(ctx context.Context, query, arg string) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, fmt.Errorf("user %s: %w", arg, apperror.ErrNotFound)
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get user %s: %v", arg, err)
		return model.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (r *AccountRepository) CreateToken(ctx context.Context, t model.AuthToken) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO auth_tokens (digest, token_key, user_id, created_at, expiry) VALUES ($1, $2, $3, $4, $5)`,
		t.Digest, t.TokenKey, t.UserID, t.CreatedAt, t.Expiry)
	if err != nil {
		logger.Sugar.Errorf("Failed to create token for user %s: %v", t.UserID, err)
		return fmt.Errorf("create token: %w", err)
	}
	return nil
}

// FindTokensByKey returns every token sharing the short lookup key. Keys are
// not unique; callers compare digests to pick the right one.
func (r *AccountRepository) FindTokensByKey(ctx context.Context, key string) ([]model.AuthToken, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT digest, token_key, user_id, created_at, expiry FROM auth_tokens WHERE token_key = $1`, key)
	if err != nil {
		return nil, fmt.Errorf("find tokens: %w", err)
	}
	defer rows.Close()

	var tokens []model.AuthToken
	for rows.Next() {
		var t model.AuthToken
		var expiry sql.NullTime
		if err := rows.Scan(&t.Digest, &t.TokenKey, &t.UserID, &t.CreatedAt, &expiry); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if expiry.Valid {
			exp := expiry.Time
			t.Expiry = &exp
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *AccountRepository) DeleteToken(ctx context.Context, digest string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM auth_tokens WHERE digest = $1`, digest)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete token: %v", err)
		return fmt.Errorf("delete token: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("token: %w", apperror.ErrNotFound)
	}
	return nil
}
