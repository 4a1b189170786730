package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/brianmcmichael/ajna-core/internal/blob/s3"
	"github.com/brianmcmichael/ajna-core/internal/cache/redis"
	"github.com/brianmcmichael/ajna-core/internal/config"
	"github.com/brianmcmichael/ajna-core/internal/crypto"
	"github.com/brianmcmichael/ajna-core/internal/domain"
	"github.com/brianmcmichael/ajna-core/internal/ledger"
	"github.com/brianmcmichael/ajna-core/internal/notify"
	"github.com/brianmcmichael/ajna-core/internal/pool/eth"
	"github.com/brianmcmichael/ajna-core/internal/pool/sim"
	"github.com/brianmcmichael/ajna-core/internal/registry"
	"github.com/brianmcmichael/ajna-core/internal/service"
	"github.com/brianmcmichael/ajna-core/internal/store/memory"
	"github.com/brianmcmichael/ajna-core/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores. In-memory implementations stand in when Postgres is disabled.
	PositionStore domain.PositionStore
	EventStore    domain.EventStore
	AuditStore    domain.AuditStore

	// Redis-backed collaborators (nil when Redis is disabled)
	MetadataCache domain.MetadataCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	// Blob storage (nil when S3 is disabled)
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Pool backend. Sim is non-nil only when the sim backend is selected and
	// exposes the seeding surface the HTTP API registers for it.
	Pools domain.PoolDirectory
	Sim   *sim.Directory

	// Core engines
	Registry *registry.Registry
	Ledger   *ledger.Ledger
	Service  *service.PositionService

	// Notifications
	Notifier *notify.Notifier

	// HealthChecks holds one connectivity probe per wired backend, keyed by
	// backend name for the health endpoint.
	HealthChecks map[string]func(context.Context) error
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		HealthChecks: make(map[string]func(context.Context) error),
	}

	// --- Stores: PostgreSQL, or in-memory when disabled ---
	if cfg.Postgres.Enabled {
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
		}, logger)
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
		deps.PositionStore = postgres.NewPositionStore(pool)
		deps.EventStore = postgres.NewEventStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pool.Ping
	} else {
		logger.WarnContext(ctx, "wire: postgres disabled, using in-memory stores (state is lost on restart)")
		deps.PositionStore = memory.NewPositionStore()
		deps.EventStore = memory.NewEventStore()
		deps.AuditStore = memory.NewAuditStore()
	}

	// --- Redis: bus, cache, rate limiter, archive lock ---
	if cfg.Redis.Enabled {
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

		deps.MetadataCache = redis.NewMetadataCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.HealthChecks["redis"] = redisClient.Ping
	} else {
		logger.WarnContext(ctx, "wire: redis disabled, running without signal bus, metadata cache, rate limiting, and archive locking")
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
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
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.EventStore, deps.AuditStore, logger)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Pool backend ---
	switch strings.ToLower(cfg.Pools.Backend) {
	case "eth":
		dir, err := eth.Dial(ctx, cfg.Pools.RPCURL, logger)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: eth pools: %w", err)
		}
		deps.Pools = dir
	default:
		simDir := sim.NewDirectory(logger)
		deps.Sim = simDir
		deps.Pools = simDir
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if cfg.Notify.WebhookURL != "" {
		senders = append(senders, notify.NewWebhookSender(cfg.Notify.WebhookURL, cfg.Notify.WebhookSecret))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Core engines ---
	fanout := service.NewEventFanout(
		deps.SignalBus,
		deps.EventStore,
		deps.AuditStore,
		deps.MetadataCache,
		deps.Notifier,
		logger,
	)

	deps.Registry = registry.New(fanout, logger)
	deps.Ledger = ledger.New(deps.Registry, deps.Pools, deps.PositionStore, fanout, logger)

	if err := deps.Ledger.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	// Ownership lives in the registry at runtime but is persisted on the
	// position records, so the registry is reseeded from the restored ledger.
	restored := deps.Ledger.List(domain.ListOpts{})
	if len(restored) > 0 {
		owners := make(map[uint64]common.Address, len(restored))
		for _, pos := range restored {
			owners[pos.TokenID] = pos.Owner
		}
		deps.Registry.Seed(owners)
	}

	// Registry transfers flow back into the ledger so position records track
	// the holder of record.
	deps.Registry.OnTransfer(deps.Ledger.HandleTransfer)

	permitDomain := crypto.Domain{
		Name:              cfg.Permit.Name,
		Version:           cfg.Permit.Version,
		ChainID:           cfg.Permit.ChainID,
		VerifyingContract: common.HexToAddress(cfg.Permit.VerifyingContract),
	}

	svc := service.NewPositionService(deps.Ledger, deps.Registry, deps.EventStore, permitDomain, logger)
	if deps.MetadataCache != nil {
		svc.WithMetadataCache(deps.MetadataCache)
	}

	if cfg.Wallet.PrivateKey != "" || cfg.Wallet.EncryptedKeyPath != "" {
		key, err := crypto.LoadKey(crypto.KeyConfig{
			RawPrivateKey:    cfg.Wallet.PrivateKey,
			EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
			KeyPassword:      cfg.Wallet.KeyPassword,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
		}
		signer, err := crypto.NewSigner(key, permitDomain)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: signer: %w", err)
		}
		svc.WithSigner(signer)
		logger.InfoContext(ctx, "wire: operator signer loaded",
			slog.String("address", signer.Address().Hex()),
		)
	} else {
		logger.InfoContext(ctx, "wire: no wallet key configured, permit signing endpoint is unavailable")
	}

	deps.Service = svc

	return deps, cleanup, nil
}
