// Package config defines the service configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDMKT_* environment variables.
type Config struct {
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Archive  ArchiveConfig  `toml:"archive"`
	House    HouseConfig    `toml:"house"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// Ledger storage backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Run modes.
const (
	ModeServer  = "server"
	ModeArchive = "archive"
	ModeInit    = "init"
)

// StoreConfig selects where the ledger lives.
type StoreConfig struct {
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters. AuditLog mirrors
// committed events into the audit_log table regardless of the backend.
type PostgresConfig struct {
	DSN             string   `toml:"dsn"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Database        string   `toml:"database"`
	User            string   `toml:"user"`
	Password        string   `toml:"password"`
	SSLMode         string   `toml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns"`
	MaxConnLifetime duration `toml:"max_conn_lifetime"`
	RunMigrations   bool     `toml:"run_migrations"`
	AuditLog        bool     `toml:"audit_log"`
}

// RedisConfig holds Redis connection parameters. EventBus publishes events
// to pub/sub and a stream; RateLimit enables per-client API limits.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	KeyPrefix  string `toml:"key_prefix"`
	EventBus   bool   `toml:"event_bus"`
	RateLimit  bool   `toml:"rate_limit"`
}

// S3Config holds object storage settings for the archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// KafkaConfig enables publishing events to a Kafka topic.
type KafkaConfig struct {
	Enabled      bool     `toml:"enabled"`
	Brokers      []string `toml:"brokers"`
	Topic        string   `toml:"topic"`
	WriteTimeout duration `toml:"write_timeout"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `toml:"port"`
	CORSOrigins    []string `toml:"cors_origins"`
	APIKey         string   `toml:"api_key"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	WebSocket      bool     `toml:"websocket"`
	ShutdownPeriod duration `toml:"shutdown_period"`
}

// NotifyConfig holds chat notification channels. Events lists the event
// kinds forwarded; empty selects settlements and treasury movements.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
}

// ArchiveConfig schedules copies of the ledger to S3.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// HouseConfig names the owner account used by init mode.
type HouseConfig struct {
	Owner string `toml:"owner"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
}

// duration wraps time.Duration so it can be decoded from TOML strings like
// "30s" or "5m".
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults for local
// development against docker-compose services.
func Defaults() Config {
	return Config{
		Store: StoreConfig{Backend: BackendMemory},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "predmkt",
			User:            "postgres",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    2,
			MaxConnLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			KeyPrefix:  "ledger:",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predmkt-archive",
			ForcePathStyle: true,
		},
		Kafka: KafkaConfig{
			Topic:        "predmkt.events",
			WriteTimeout: duration{10 * time.Second},
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:      120,
			RateWindow:     duration{time.Minute},
			WebSocket:      true,
			ShutdownPeriod: duration{15 * time.Second},
		},
		Archive: ArchiveConfig{
			Cron: "@every 1h",
		},
		Metrics:  MetricsConfig{Enabled: true},
		Mode:     ModeServer,
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	ModeServer:  true,
	ModeArchive: true,
	ModeInit:    true,
}

var validBackends = map[string]bool{
	BackendMemory:   true,
	BackendPostgres: true,
	BackendRedis:    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// NeedsPostgres reports whether any component uses PostgreSQL.
func (c *Config) NeedsPostgres() bool {
	return c.Store.Backend == BackendPostgres || c.Postgres.AuditLog
}

// NeedsRedis reports whether any component uses Redis.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == BackendRedis || c.Redis.EventBus || c.Redis.RateLimit
}

// Validate checks the configuration and returns every problem found, joined
// into one error.
func (c *Config) Validate() error {
	var errs []string

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, archive, init)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if !validBackends[c.Store.Backend] {
		errs = append(errs, fmt.Sprintf("unknown store.backend %q (valid: memory, postgres, redis)", c.Store.Backend))
	}
	if c.Store.Backend == BackendMemory && mode != ModeServer && validModes[mode] {
		errs = append(errs, fmt.Sprintf("mode %q needs a persistent store.backend", c.Mode))
	}

	if c.NeedsPostgres() && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, "postgres.dsn or postgres.host is required")
	}
	if c.NeedsRedis() && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}

	if c.Archive.Enabled || mode == ModeArchive {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required for archiving")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3.region is required for archiving")
		}
		if c.Archive.Cron == "" {
			errs = append(errs, "archive.cron is required")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required when kafka is enabled")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required when kafka is enabled")
		}
	}

	if mode == ModeServer && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Redis.RateLimit && (c.Server.RateLimit <= 0 || c.Server.RateWindow.Duration <= 0) {
		errs = append(errs, "server.rate_limit and server.rate_window must be positive when redis.rate_limit is set")
	}

	if mode == ModeInit && strings.TrimSpace(c.House.Owner) == "" {
		errs = append(errs, "house.owner is required in init mode")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify.telegram_token and notify.telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %d validation error(s):\n  - %s", len(errs), strings.Join(errs, "\n  - "))
	}
	return nil
}
