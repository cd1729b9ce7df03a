package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path over Defaults(), loads a .env file when
// present and applies PREDMKT_* environment overrides. An empty path skips
// the file. The result is not validated; call Config.Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose PREDMKT_* variable is set, so
// secrets can be injected at deploy time without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Store ──
	setStr(&cfg.Store.Backend, "PREDMKT_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDMKT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL")
	setStr(&cfg.Postgres.Host, "PREDMKT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDMKT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDMKT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDMKT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDMKT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDMKT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDMKT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDMKT_POSTGRES_POOL_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "PREDMKT_POSTGRES_MAX_CONN_LIFETIME")
	setBool(&cfg.Postgres.RunMigrations, "PREDMKT_POSTGRES_RUN_MIGRATIONS")
	setBool(&cfg.Postgres.AuditLog, "PREDMKT_POSTGRES_AUDIT_LOG")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDMKT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDMKT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDMKT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDMKT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDMKT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDMKT_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "PREDMKT_REDIS_KEY_PREFIX")
	setBool(&cfg.Redis.EventBus, "PREDMKT_REDIS_EVENT_BUS")
	setBool(&cfg.Redis.RateLimit, "PREDMKT_REDIS_RATE_LIMIT")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDMKT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDMKT_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDMKT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "PREDMKT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "PREDMKT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDMKT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDMKT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDMKT_S3_FORCE_PATH_STYLE")

	// ── Kafka ──
	setBool(&cfg.Kafka.Enabled, "PREDMKT_KAFKA_ENABLED")
	setStringSlice(&cfg.Kafka.Brokers, "PREDMKT_KAFKA_BROKERS")
	setStr(&cfg.Kafka.Topic, "PREDMKT_KAFKA_TOPIC")
	setDuration(&cfg.Kafka.WriteTimeout, "PREDMKT_KAFKA_WRITE_TIMEOUT")

	// ── Server ──
	setInt(&cfg.Server.Port, "PREDMKT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDMKT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDMKT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "PREDMKT_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDMKT_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.WebSocket, "PREDMKT_SERVER_WEBSOCKET")
	setDuration(&cfg.Server.ShutdownPeriod, "PREDMKT_SERVER_SHUTDOWN_PERIOD")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDMKT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDMKT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDMKT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.DiscordUsername, "PREDMKT_NOTIFY_DISCORD_USERNAME")
	setStringSlice(&cfg.Notify.Events, "PREDMKT_NOTIFY_EVENTS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PREDMKT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "PREDMKT_ARCHIVE_CRON")

	// ── House / metrics ──
	setStr(&cfg.House.Owner, "PREDMKT_HOUSE_OWNER")
	setBool(&cfg.Metrics.Enabled, "PREDMKT_METRICS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDMKT_MODE")
	setStr(&cfg.LogLevel, "PREDMKT_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
