package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate(), "defaults must be runnable as-is")
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, "sim", cfg.Pools.Backend)
	assert.False(t, cfg.Postgres.Enabled)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "all"
log_level = "debug"

[server]
port = 9090
api_key = "sekrit"
rate_limit = 120
rate_limit_window = "30s"

[pools]
backend = "eth"
rpc_url = "http://localhost:8545"

[redis]
enabled = true
cache_ttl = "45s"
stream_max_len = 1000

[archive]
retention_days = 30
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Mode)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 120, cfg.Server.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.Server.RateLimitWindow.Duration)
	assert.Equal(t, "eth", cfg.Pools.Backend)
	assert.Equal(t, 45*time.Second, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, int64(1000), cfg.Redis.StreamMaxLen)
	assert.Equal(t, 30, cfg.Archive.RetentionDays)

	// Untouched sections keep their defaults.
	assert.Equal(t, "Ajna Positions", cfg.Permit.Name)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults().Server.Port, cfg.Server.Port)
}

func TestLoadRejectsMalformedTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = [broken"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AJNA_MODE", "archiver")
	t.Setenv("AJNA_SERVER_PORT", "7777")
	t.Setenv("AJNA_POSTGRES_ENABLED", "true")
	t.Setenv("AJNA_REDIS_CACHE_TTL", "2m")
	t.Setenv("AJNA_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("AJNA_PERMIT_CHAIN_ID", "31337")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "archiver", cfg.Mode)
	assert.Equal(t, 7777, cfg.Server.Port)
	assert.True(t, cfg.Postgres.Enabled)
	assert.Equal(t, 2*time.Minute, cfg.Redis.CacheTTL.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, int64(31337), cfg.Permit.ChainID)
}

func TestSecretFileIndirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_password")
	require.NoError(t, os.WriteFile(path, []byte("hunter2\n"), 0o600))
	t.Setenv("AJNA_POSTGRES_PASSWORD_FILE", path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Postgres.Password, "file contents are trimmed")
}

func TestSecretDirectVariableWinsOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pg_password")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))
	t.Setenv("AJNA_POSTGRES_PASSWORD_FILE", path)
	t.Setenv("AJNA_POSTGRES_PASSWORD", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Postgres.Password)
}

func TestSecretFileMissingFails(t *testing.T) {
	t.Setenv("AJNA_S3_SECRET_KEY_FILE", filepath.Join(t.TempDir(), "nope"))

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AJNA_S3_SECRET_KEY_FILE")
}

func TestValidateAccumulatesProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "spelunk"
	cfg.LogLevel = "shouty"
	cfg.Server.Port = 0
	cfg.Pools.Backend = "eth" // rpc_url left empty
	cfg.Archive.Cron = "* *"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "spelunk"`)
	assert.Contains(t, msg, `unknown log_level "shouty"`)
	assert.Contains(t, msg, "port must be 1-65535")
	assert.Contains(t, msg, "rpc_url is required")
	assert.Contains(t, msg, "cron must have 5 fields")
}

func TestValidateArchiverModeNeedsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archiver"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires s3 to be enabled")
	assert.Contains(t, err.Error(), "requires postgres to be enabled")

	cfg.S3.Enabled = true
	cfg.Postgres.Enabled = true
	require.NoError(t, cfg.Validate())
}

func TestValidateWalletPasswordRequiredWithKeyfile(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.EncryptedKeyPath = "/run/secrets/keyfile.json"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_password is required")
}

func TestValidateRejectsBadVerifyingContract(t *testing.T) {
	cfg := Defaults()
	cfg.Permit.VerifyingContract = "not-an-address"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verifying_contract")
}

func TestRedactedConfigMasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Postgres.Password = "pgpass"
	cfg.Server.APIKey = "sekrit"
	cfg.Notify.WebhookSecret = "whsec"

	red := RedactedConfig(&cfg)

	assert.Equal(t, "***", red.Wallet.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Server.APIKey)
	assert.Equal(t, "***", red.Notify.WebhookSecret)
	assert.Empty(t, red.Redis.Password, "empty secrets stay empty")

	// Original is untouched.
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)

	// Slices are copies.
	red.Notify.Events[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Notify.Events[0])
}
