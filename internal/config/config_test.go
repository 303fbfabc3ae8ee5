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
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 50, cfg.Sync.PriceBatchSize)
	assert.Equal(t, 20, cfg.Sync.HolderBatchSize)
	assert.Equal(t, 2*time.Second, cfg.Sync.BatchDelay.Duration)
	assert.Equal(t, "1d", cfg.Sync.PriceInterval)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "replay"
	cfg.LogLevel = "verbose"
	cfg.Sync.PriceBatchSize = 0
	cfg.Sync.PriceInterval = "5m"
	cfg.Database.PoolMinConns = 50

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "replay"`)
	assert.Contains(t, err.Error(), `unknown log_level "verbose"`)
	assert.Contains(t, err.Error(), "price_batch_size")
	assert.Contains(t, err.Error(), `unknown price_interval "5m"`)
	assert.Contains(t, err.Error(), "pool_min_conns")
}

func TestValidateArchiveModeRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "archive"
	cfg.S3.Bucket = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestValidateAlpacaCredentialsSetTogether(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.Alpaca.KeyID = "AK123"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_id and secret_key must be set together")
}

func TestLoadFromTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "sync"
log_level = "debug"

[sync]
interval = "15m"
max_entities = 25

[server]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sync", cfg.Mode)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 15*time.Minute, cfg.Sync.Interval.Duration)
	assert.Equal(t, 25, cfg.Sync.MaxEntities)
	assert.False(t, cfg.Server.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, 50, cfg.Sync.PriceBatchSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Sync.Interval, cfg.Sync.Interval)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNCD_MODE", "catchup")
	t.Setenv("SYNCD_DB_PASSWORD", "hunter2")
	t.Setenv("SYNCD_SYNC_CONCURRENCY", "8")
	t.Setenv("SYNCD_SYNC_BATCH_DELAY", "500ms")
	t.Setenv("SYNCD_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SYNCD_STOOQ_ENABLED", "false")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "catchup", cfg.Mode)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.BatchDelay.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Providers.Stooq.Enabled)
}

func TestEnvOverridesIgnoreMalformedValues(t *testing.T) {
	t.Setenv("SYNCD_SYNC_CONCURRENCY", "many")
	t.Setenv("SYNCD_SYNC_BATCH_DELAY", "soon")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, Defaults().Sync.Concurrency, cfg.Sync.Concurrency)
	assert.Equal(t, Defaults().Sync.BatchDelay, cfg.Sync.BatchDelay)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Providers.Tiingo.Token = "tok"
	cfg.Database.Password = "pw"
	cfg.Redis.Password = "pw"
	cfg.S3.SecretKey = "sk"
	cfg.Server.APIKey = "key"

	red := RedactedConfig(cfg)

	assert.Equal(t, "***", red.Providers.Tiingo.Token)
	assert.Equal(t, "***", red.Database.Password)
	assert.Equal(t, "***", red.Redis.Password)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Server.APIKey)

	// original untouched
	assert.Equal(t, "tok", cfg.Providers.Tiingo.Token)

	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
