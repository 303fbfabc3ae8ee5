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

// Load reads configuration from the TOML file at path (skipped when the file
// does not exist), applies SYNCD_* environment variable overrides, and
// validates the result. A .env file in the working directory is loaded first
// so overrides can live there during development.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config: stat %s: %w", path, err)
		}
	}

	// Best effort; most deployments set real environment variables instead.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides maps SYNCD_* environment variables onto cfg. Only
// variables that are set and non-empty are applied.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "SYNCD_MODE")
	setStr(&cfg.LogLevel, "SYNCD_LOG_LEVEL")

	setStr(&cfg.Providers.Tiingo.Token, "SYNCD_TIINGO_TOKEN")
	setStr(&cfg.Providers.Tiingo.BaseURL, "SYNCD_TIINGO_BASE_URL")
	setFloat64(&cfg.Providers.Tiingo.RequestsPerHour, "SYNCD_TIINGO_REQUESTS_PER_HOUR")
	setStr(&cfg.Providers.Alpaca.KeyID, "SYNCD_ALPACA_KEY_ID")
	setStr(&cfg.Providers.Alpaca.SecretKey, "SYNCD_ALPACA_SECRET_KEY")
	setStr(&cfg.Providers.Alpaca.BaseURL, "SYNCD_ALPACA_BASE_URL")
	setFloat64(&cfg.Providers.Alpaca.RequestsPerMin, "SYNCD_ALPACA_REQUESTS_PER_MIN")
	setBool(&cfg.Providers.Stooq.Enabled, "SYNCD_STOOQ_ENABLED")
	setStr(&cfg.Providers.Stooq.BaseURL, "SYNCD_STOOQ_BASE_URL")
	setFloat64(&cfg.Providers.Stooq.RequestsPerMin, "SYNCD_STOOQ_REQUESTS_PER_MIN")

	setStr(&cfg.Polymarket.GammaHost, "SYNCD_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "SYNCD_DATA_HOST")
	setStr(&cfg.Polymarket.ClobHost, "SYNCD_CLOB_HOST")

	setStr(&cfg.Database.DSN, "SYNCD_DB_DSN")
	setStr(&cfg.Database.Host, "SYNCD_DB_HOST")
	setInt(&cfg.Database.Port, "SYNCD_DB_PORT")
	setStr(&cfg.Database.Database, "SYNCD_DB_NAME")
	setStr(&cfg.Database.User, "SYNCD_DB_USER")
	setStr(&cfg.Database.Password, "SYNCD_DB_PASSWORD")
	setStr(&cfg.Database.SSLMode, "SYNCD_DB_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "SYNCD_DB_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "SYNCD_DB_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "SYNCD_DB_RUN_MIGRATIONS")

	setStr(&cfg.Redis.Addr, "SYNCD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SYNCD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SYNCD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SYNCD_REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "SYNCD_REDIS_TLS")

	setStr(&cfg.S3.Endpoint, "SYNCD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SYNCD_S3_REGION")
	setStr(&cfg.S3.Bucket, "SYNCD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SYNCD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SYNCD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SYNCD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SYNCD_S3_FORCE_PATH_STYLE")

	setDuration(&cfg.Sync.Interval, "SYNCD_SYNC_INTERVAL")
	setInt(&cfg.Sync.MaxEntities, "SYNCD_SYNC_MAX_ENTITIES")
	setInt(&cfg.Sync.PriceBatchSize, "SYNCD_SYNC_PRICE_BATCH_SIZE")
	setInt(&cfg.Sync.HolderBatchSize, "SYNCD_SYNC_HOLDER_BATCH_SIZE")
	setDuration(&cfg.Sync.BatchDelay, "SYNCD_SYNC_BATCH_DELAY")
	setInt(&cfg.Sync.Concurrency, "SYNCD_SYNC_CONCURRENCY")
	setInt(&cfg.Sync.HoldersLimit, "SYNCD_SYNC_HOLDERS_LIMIT")
	setInt(&cfg.Sync.ActivityLimit, "SYNCD_SYNC_ACTIVITY_LIMIT")
	setStr(&cfg.Sync.PriceInterval, "SYNCD_SYNC_PRICE_INTERVAL")
	setInt(&cfg.Sync.RateLimit, "SYNCD_SYNC_RATE_LIMIT")
	setDuration(&cfg.Sync.RateWindow, "SYNCD_SYNC_RATE_WINDOW")
	setInt(&cfg.Sync.RetentionDays, "SYNCD_SYNC_RETENTION_DAYS")

	setBool(&cfg.Server.Enabled, "SYNCD_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SYNCD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "SYNCD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "SYNCD_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "SYNCD_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SYNCD_SERVER_RATE_WINDOW")
}

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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			*dst = out
		}
	}
}
