package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/avast/retry-go/v4"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"naskahlive/config"
	"naskahlive/pkg/logger"
)

// Connect opens the configured database and pings it until it answers or the
// configured attempts are exhausted.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if cfg.Driver == config.DriverSQLite {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(cfg.ConnectAttempts),
		retry.Delay(cfg.ConnectDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", cfg.ConnectDelay, err)
		}),
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("could not connect to database after %d attempts: %w", cfg.ConnectAttempts, err)
	}

	logger.Sugar.Infow("Successfully connected to the database", "driver", cfg.Driver)
	return db, nil
}
