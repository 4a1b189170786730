package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies AJNA_* environment variable overrides, and
// returns the final Config. An empty path skips the file and starts from the
// defaults alone. The returned Config has NOT been validated; the caller
// should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides reads well-known AJNA_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Secret-bearing fields additionally honor an AJNA_*_FILE
// variant naming a file whose contents become the value, for container
// secret mounts.
func applyEnvOverrides(cfg *Config) error {
	var errs []string
	secret := func(dst *string, key string) {
		if err := setSecret(dst, key); err != nil {
			errs = append(errs, err.Error())
		}
	}

	// ── Wallet ──
	secret(&cfg.Wallet.PrivateKey, "AJNA_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.EncryptedKeyPath, "AJNA_WALLET_ENCRYPTED_KEY_PATH")
	secret(&cfg.Wallet.KeyPassword, "AJNA_WALLET_KEY_PASSWORD")

	// ── Permit ──
	setStr(&cfg.Permit.Name, "AJNA_PERMIT_NAME")
	setStr(&cfg.Permit.Version, "AJNA_PERMIT_VERSION")
	setInt64(&cfg.Permit.ChainID, "AJNA_PERMIT_CHAIN_ID")
	setStr(&cfg.Permit.VerifyingContract, "AJNA_PERMIT_VERIFYING_CONTRACT")

	// ── Pools ──
	setStr(&cfg.Pools.Backend, "AJNA_POOLS_BACKEND")
	setStr(&cfg.Pools.RPCURL, "AJNA_POOLS_RPC_URL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "AJNA_POSTGRES_ENABLED")
	secret(&cfg.Postgres.DSN, "AJNA_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "AJNA_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "AJNA_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "AJNA_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "AJNA_POSTGRES_USER")
	secret(&cfg.Postgres.Password, "AJNA_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "AJNA_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "AJNA_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "AJNA_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "AJNA_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "AJNA_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "AJNA_REDIS_ADDR")
	secret(&cfg.Redis.Password, "AJNA_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "AJNA_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "AJNA_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "AJNA_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "AJNA_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.CacheTTL, "AJNA_REDIS_CACHE_TTL")
	setInt64(&cfg.Redis.StreamMaxLen, "AJNA_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "AJNA_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "AJNA_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "AJNA_S3_REGION")
	setStr(&cfg.S3.Bucket, "AJNA_S3_BUCKET")
	secret(&cfg.S3.AccessKey, "AJNA_S3_ACCESS_KEY")
	secret(&cfg.S3.SecretKey, "AJNA_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "AJNA_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "AJNA_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "AJNA_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "AJNA_SERVER_CORS_ORIGINS")
	secret(&cfg.Server.APIKey, "AJNA_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "AJNA_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateLimitWindow, "AJNA_SERVER_RATE_LIMIT_WINDOW")

	// ── Notify ──
	secret(&cfg.Notify.TelegramToken, "AJNA_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "AJNA_NOTIFY_TELEGRAM_CHAT_ID")
	secret(&cfg.Notify.DiscordWebhookURL, "AJNA_NOTIFY_DISCORD_WEBHOOK_URL")
	setStr(&cfg.Notify.WebhookURL, "AJNA_NOTIFY_WEBHOOK_URL")
	secret(&cfg.Notify.WebhookSecret, "AJNA_NOTIFY_WEBHOOK_SECRET")
	setStringSlice(&cfg.Notify.Events, "AJNA_NOTIFY_EVENTS")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "AJNA_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "AJNA_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "AJNA_MODE")
	setStr(&cfg.LogLevel, "AJNA_LOG_LEVEL")

	if len(errs) > 0 {
		return fmt.Errorf("config: resolving secrets:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
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

// setSecret behaves like setStr but also honors a <key>_FILE variant: when
// set, the trimmed contents of the named file become the value. The direct
// variable wins if both are present.
func setSecret(dst *string, key string) error {
	if v := os.Getenv(key); v != "" {
		*dst = v
		return nil
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s_FILE: %w", key, err)
		}
		*dst = strings.TrimSpace(string(data))
	}
	return nil
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
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
