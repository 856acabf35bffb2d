package database

import (
	"context"
	"database/sql"
	"fmt"

	"naskahlive/pkg/logger"
)

// schema is written in the subset of SQL understood by both postgres and
// sqlite. Timestamps are always supplied by the application in UTC.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		digest     TEXT PRIMARY KEY,
		token_key  TEXT NOT NULL,
		user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		expiry     TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS auth_tokens_token_key_idx ON auth_tokens (token_key)`,
	`CREATE TABLE IF NOT EXISTS documents (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL,
		content    TEXT NOT NULL,
		owner_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS documents_owner_id_idx ON documents (owner_id)`,
	`CREATE TABLE IF NOT EXISTS document_collaborators (
		id          TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		permission  TEXT NOT NULL,
		added_at    TIMESTAMP NOT NULL,
		UNIQUE (document_id, user_id)
	)`,
	`CREATE INDEX IF NOT EXISTS document_collaborators_user_id_idx ON document_collaborators (user_id)`,
}

// Migrate creates any missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for migration: %w", err)
	}
	defer conn.Close()

	for _, stmt := range schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	logger.Sugar.Infow("Schema is up to date", "statements", len(schema))
	return nil
}
