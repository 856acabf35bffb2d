package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"naskahlive/config"
	"naskahlive/config/database"
	accountRepository "naskahlive/internal/account/repository"
	accountService "naskahlive/internal/account/service"
	"naskahlive/internal/identity"
	"naskahlive/pkg/logger"
	"naskahlive/router"
	"naskahlive/socket"
)

func main() {
	cmd := &cli.Command{
		Name:  "naskahlive",
		Usage: "real-time collaborative document server",
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			issueTokenCommand(),
		},
		DefaultCommand: "serve",
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Sugar.Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}

// setup loads configuration, starts logging and opens the migrated database.
func setup(ctx context.Context) (*config.Config, *sql.DB, error) {
	cfg, err := config.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.LogLevel)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the HTTP and WebSocket server",
		Action: serve,
		Description: `
Environment variables:
	LISTEN_ADDR         (default: :8080)
	LOG_LEVEL           (default: info)
	ALLOWED_ORIGINS     (comma-separated, default: any)
	DB_DRIVER           postgres | sqlite3 (default: postgres)
	DB_DSN, DB_USER, DB_PASSWORD, DB_HOST, DB_PORT, DB_NAME, DB_SSLMODE
	AUTH_TOKEN_TTL      (default: 240h)
	AUTH_JWT_SECRET     enables HMAC JWT credentials
	WS_PING_INTERVAL, WS_PONG_WAIT, WS_WRITE_WAIT, WS_MAX_MESSAGE_BYTES, WS_SEND_BUFFER
	REDIS_ADDR          enables the cross-instance relay
`,
	}
}

func serve(ctx context.Context, _ *cli.Command) error {
	cfg, db, err := setup(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	var relay socket.Relay
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		relay = socket.NewRedisRelay(rdb, cfg.Redis.ChannelPrefix)
	}
	registry := socket.NewRegistry(relay)

	handler, err := router.Setup(cfg, db, registry)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Hijacked WebSocket connections are not tracked by Shutdown; they
		// stop when this context is cancelled.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Sugar.Infof("naskahlive listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Sugar.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the database schema",
		Action: func(ctx context.Context, _ *cli.Command) error {
			_, db, err := setup(ctx)
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Sugar.Info("Database schema is up to date")
			return nil
		},
	}
}

func issueTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "issue-token",
		Usage: "mint a credential for an existing user",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Usage: "user to issue the token for", Required: true},
			&cli.BoolFlag{Name: "jwt", Usage: "issue a signed JWT instead of an opaque token"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, db, err := setup(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			accounts := accountRepository.NewAccountRepository(db)
			username := cmd.String("username")

			if cmd.Bool("jwt") {
				if cfg.Auth.JWTSecret == "" {
					return errors.New("AUTH_JWT_SECRET is not set")
				}
				user, err := accounts.GetUserByUsername(ctx, username)
				if err != nil {
					return err
				}
				token, err := identity.SignJWT(cfg.Auth.JWTSecret, user.ID, cfg.Auth.TokenTTL)
				if err != nil {
					return err
				}
				fmt.Println(token)
				return nil
			}

			resp, err := accountService.NewAccountService(accounts, cfg.Auth.TokenTTL).IssueTokenFor(ctx, username)
			if err != nil {
				return err
			}
			fmt.Printf("%s\t(expires %s)\n", resp.Token, resp.Expiry.Format(time.RFC3339))
			return nil
		},
	}
}
