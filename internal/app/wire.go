package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/arbiterhq/arbiter/internal/blob/s3"
	"github.com/arbiterhq/arbiter/internal/cache/redis"
	"github.com/arbiterhq/arbiter/internal/config"
	"github.com/arbiterhq/arbiter/internal/crypto"
	"github.com/arbiterhq/arbiter/internal/domain"
	"github.com/arbiterhq/arbiter/internal/events"
	"github.com/arbiterhq/arbiter/internal/notify"
	"github.com/arbiterhq/arbiter/internal/store/postgres"
)

// Dependencies bundles the infrastructure-level collaborators the modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Warm archive (nil in monitor mode).
	Executions domain.ExecutionStore
	Cycles     domain.CycleStore

	// Cold archive (nil outside live/paper).
	Archiver domain.Archiver

	// Event bus and broker plumbing.
	Redis       *redis.Client
	Bus         *redis.Bus
	RateLimiter *redis.RateLimiter

	// Events is the fan-out every component publishes into; Memory is the
	// in-process ring behind it, kept for the operator surface.
	Events domain.EventPublisher
	Memory *events.MemoryPublisher

	// APIKey guards the operator API; empty disables auth.
	APIKey string
}

// needsPostgres returns true for modes that persist execution records.
func needsPostgres(mode string) bool {
	switch mode {
	case "live", "paper", "server":
		return true
	default:
		return false
	}
}

// needsS3 returns true for modes that archive to object storage.
func needsS3(mode string) bool {
	switch mode {
	case "live", "paper":
		return true
	default:
		return false
	}
}

// Wire constructs the concrete infrastructure from configuration and returns
// it together with a cleanup function that releases resources in reverse
// order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL warm archive ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Executions = postgres.NewExecutionStore(pool)
		deps.Cycles = postgres.NewCycleStore(pool)
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.Redis = redisClient
	deps.Bus = redis.NewBus(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)

	// --- S3 cold archive ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		if deps.Executions != nil {
			deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), deps.Executions, logger)
		}
	}

	// --- Events: in-process ring, Redis fan-out, operator alerts ---
	memory := events.NewMemoryPublisher(1024)
	fanout := events.Fanout{memory}

	fanout = append(fanout, events.NewRedisPublisher(ctx, deps.Bus, logger))

	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		fanout = append(fanout, notify.NewAlerter(ctx, senders, cfg.Notify.Events, logger))
	}

	deps.Memory = memory
	deps.Events = fanout

	// --- Operator API key ---
	if cfg.Server.Enabled && cfg.Server.APIKeyPath != "" {
		key, err := crypto.LoadSecret(crypto.SecretConfig{
			EncryptedPath: cfg.Server.APIKeyPath,
			Password:      cfg.Server.APIKeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: api key: %w", err)
		}
		deps.APIKey = key
	}

	return deps, cleanup, nil
}
