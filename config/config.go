package config

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"

	"naskahlive/pkg/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

type Config struct {
	ListenAddr     string   `env:"LISTEN_ADDR, default=:8080"`
	LogLevel       string   `env:"LOG_LEVEL, default=info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`

	Database DatabaseConfig `env:", prefix=DB_"`
	Auth     AuthConfig     `env:", prefix=AUTH_"`
	Socket   SocketConfig   `env:", prefix=WS_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DRIVER, default=postgres"`
	DSN             string        `env:"DSN"`
	User            string        `env:"USER"`
	Password        string        `env:"PASSWORD"`
	Host            string        `env:"HOST, default=localhost"`
	Port            string        `env:"PORT, default=5432"`
	Name            string        `env:"NAME, default=naskahlive"`
	SSLMode         string        `env:"SSLMODE, default=require"`
	ConnectAttempts uint          `env:"CONNECT_ATTEMPTS, default=5"`
	ConnectDelay    time.Duration `env:"CONNECT_DELAY, default=2s"`
}

type AuthConfig struct {
	// TokenTTL applies to tokens stored without an explicit expiry.
	TokenTTL  time.Duration `env:"TOKEN_TTL, default=240h"`
	JWTSecret string        `env:"JWT_SECRET"`
}

type SocketConfig struct {
	PingInterval    time.Duration `env:"PING_INTERVAL, default=30s"`
	PongWait        time.Duration `env:"PONG_WAIT, default=60s"`
	WriteWait       time.Duration `env:"WRITE_WAIT, default=10s"`
	MaxMessageBytes int64         `env:"MAX_MESSAGE_BYTES, default=1048576"`
	SendBuffer      int           `env:"SEND_BUFFER, default=256"`
}

type RedisConfig struct {
	// Addr empty disables the cross-instance relay.
	Addr          string `env:"ADDR"`
	Password      string `env:"PASSWORD"`
	DB            int    `env:"DB, default=0"`
	ChannelPrefix string `env:"CHANNEL_PREFIX, default=naskahlive"`
}

// Load reads an optional .env file and then the process environment.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Sugar.Debug("No .env file found, using environment variables from OS")
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Database.ConnectAttempts == 0 {
		return fmt.Errorf("DB_CONNECT_ATTEMPTS must be at least 1")
	}
	if c.Socket.PingInterval >= c.Socket.PongWait {
		return fmt.Errorf("WS_PING_INTERVAL (%s) must be shorter than WS_PONG_WAIT (%s)", c.Socket.PingInterval, c.Socket.PongWait)
	}
	if c.Socket.SendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive")
	}
	return nil
}

// ConnString builds the driver specific data source name. An explicit DSN
// always wins.
func (c DatabaseConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	if c.Driver == DriverSQLite {
		return c.Name + "?_foreign_keys=1&_journal_mode=WAL"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}
