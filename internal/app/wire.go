package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/predictionamm/internal/blob/s3"
	"github.com/alanyoungcy/predictionamm/internal/cache/redis"
	"github.com/alanyoungcy/predictionamm/internal/config"
	"github.com/alanyoungcy/predictionamm/internal/domain"
	"github.com/alanyoungcy/predictionamm/internal/engine"
	"github.com/alanyoungcy/predictionamm/internal/events"
	"github.com/alanyoungcy/predictionamm/internal/metrics"
	"github.com/alanyoungcy/predictionamm/internal/notify"
	"github.com/alanyoungcy/predictionamm/internal/server/handler"
	"github.com/alanyoungcy/predictionamm/internal/server/ws"
	"github.com/alanyoungcy/predictionamm/internal/store/memory"
	"github.com/alanyoungcy/predictionamm/internal/store/postgres"
)

// Dependencies bundles everything the modes need. It is constructed by Wire
// and torn down by the returned cleanup function. Optional parts are nil when
// their configuration leaves them off.
type Dependencies struct {
	Store  domain.KVStore
	Engine *engine.Engine
	Sinks  *events.Fanout

	AuditStore  domain.AuditStore
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	Metrics     *metrics.Recorder
	Hub         *ws.Hub
	Archiver    domain.Archiver

	// Checks are the readiness probes reported by /api/health.
	Checks map[string]handler.Check
}

// Wire constructs the configured backends and sinks and the engine on top of
// them. On error everything built so far is released.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	mode := strings.ToLower(cfg.Mode)
	deps := &Dependencies{Checks: make(map[string]handler.Check)}
	var sinks []domain.EventSink

	if cfg.Metrics.Enabled {
		deps.Metrics = metrics.New()
		sinks = append(sinks, deps.Metrics)
	}

	// --- PostgreSQL ---
	if cfg.NeedsPostgres() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)
		deps.Checks["postgres"] = pgClient.Ping

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		if cfg.Store.Backend == config.BackendPostgres {
			deps.Store = postgres.NewKVStore(pool)
		}
		audit := postgres.NewAuditStore(pool)
		deps.AuditStore = audit
		if cfg.Postgres.AuditLog {
			sinks = append(sinks, audit)
		}
	}

	// --- Redis ---
	if cfg.NeedsRedis() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })
		deps.Checks["redis"] = redisClient.Ping

		if cfg.Store.Backend == config.BackendRedis {
			deps.Store = redis.NewKVStore(redisClient, redis.NewLockManager(redisClient), cfg.Redis.KeyPrefix)
		}
		if cfg.Redis.EventBus {
			bus := redis.NewSignalBus(redisClient)
			deps.SignalBus = bus
			sinks = append(sinks, redis.NewEventPublisher(bus))
		}
		if cfg.Redis.RateLimit {
			deps.RateLimiter = redis.NewRateLimiter(redisClient)
		}
	}

	if cfg.Store.Backend == config.BackendMemory {
		logger.WarnContext(ctx, "using the in-memory ledger; state is lost on exit")
		deps.Store = memory.NewKVStore()
	}
	if deps.Store == nil {
		return fail(fmt.Errorf("wire: no ledger store for backend %q", cfg.Store.Backend))
	}

	// --- Kafka ---
	if cfg.Kafka.Enabled {
		sink, err := events.NewKafkaSink(events.KafkaConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			WriteTimeout: cfg.Kafka.WriteTimeout.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: kafka: %w", err))
		}
		closers = append(closers, func() { _ = sink.Close() })
		sinks = append(sinks, sink)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL, cfg.Notify.DiscordUsername))
	}
	if len(senders) > 0 {
		sinks = append(sinks, notify.NewNotifier(senders, cfg.Notify.Events, logger))
	}

	// --- WebSocket hub ---
	// With a bus the hub follows the shared channel so every replica sees
	// every event; without one it is fed directly by this process.
	if mode == config.ModeServer && cfg.Server.WebSocket {
		deps.Hub = ws.NewHub(deps.SignalBus, logger, ws.Config{
			Channel: redis.EventsChannel,
			Stream:  redis.EventsStream,
		})
		if deps.SignalBus == nil {
			sinks = append(sinks, deps.Hub)
		}
	}

	deps.Sinks = events.NewFanout(logger, sinks...)

	opts := []engine.Option{
		engine.WithLogger(logger.With(slog.String("component", "engine"))),
		engine.WithSink(deps.Sinks),
	}
	if deps.Metrics != nil {
		opts = append(opts, engine.WithObserver(deps.Metrics))
	}
	deps.Engine = engine.New(deps.Store, opts...)

	// --- S3 archive ---
	if cfg.Archive.Enabled || mode == config.ModeArchive {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.Checks["s3"] = s3Client.Health
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Engine,
			deps.Engine,
			deps.AuditStore,
		)
	}

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("store", cfg.Store.Backend),
		slog.Int("sinks", deps.Sinks.Len()),
		slog.Bool("archive", deps.Archiver != nil),
	)
	return deps, cleanup, nil
}
