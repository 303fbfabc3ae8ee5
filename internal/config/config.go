// Package config defines the top-level configuration for the sync daemon and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SYNCD_* environment variables.
type Config struct {
	Providers  ProvidersConfig  `toml:"providers"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Sync       SyncConfig       `toml:"sync"`
	Server     ServerConfig     `toml:"server"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// ProvidersConfig holds the equity history provider chain. An empty credential
// disables the provider; stooq needs none.
type ProvidersConfig struct {
	Tiingo TiingoConfig `toml:"tiingo"`
	Alpaca AlpacaConfig `toml:"alpaca"`
	Stooq  StooqConfig  `toml:"stooq"`
}

// TiingoConfig holds Tiingo API parameters.
type TiingoConfig struct {
	Token           string  `toml:"token"`
	BaseURL         string  `toml:"base_url"`
	RequestsPerHour float64 `toml:"requests_per_hour"`
}

// AlpacaConfig holds Alpaca Market Data API credentials.
type AlpacaConfig struct {
	KeyID          string  `toml:"key_id"`
	SecretKey      string  `toml:"secret_key"`
	BaseURL        string  `toml:"base_url"`
	RequestsPerMin float64 `toml:"requests_per_min"`
}

// StooqConfig holds the keyless stooq CSV endpoint parameters.
type StooqConfig struct {
	Enabled        bool    `toml:"enabled"`
	BaseURL        string  `toml:"base_url"`
	RequestsPerMin float64 `toml:"requests_per_min"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	GammaHost string `toml:"gamma_host"`
	DataHost  string `toml:"data_host"`
	ClobHost  string `toml:"clob_host"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the activity
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// SyncConfig holds the batch sync pass parameters.
type SyncConfig struct {
	Interval        duration `toml:"interval"`
	MaxEntities     int      `toml:"max_entities"`
	PriceBatchSize  int      `toml:"price_batch_size"`
	HolderBatchSize int      `toml:"holder_batch_size"`
	BatchDelay      duration `toml:"batch_delay"`
	Concurrency     int      `toml:"concurrency"`
	HoldersLimit    int      `toml:"holders_limit"`
	ActivityLimit   int      `toml:"activity_limit"`
	PriceInterval   string   `toml:"price_interval"`
	RateLimit       int      `toml:"rate_limit"`
	RateWindow      duration `toml:"rate_window"`
	RetentionDays   int      `toml:"retention_days"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Providers: ProvidersConfig{
			Tiingo: TiingoConfig{
				BaseURL:         "https://api.tiingo.com",
				RequestsPerHour: 50,
			},
			Alpaca: AlpacaConfig{
				BaseURL:        "https://data.alpaca.markets",
				RequestsPerMin: 200,
			},
			Stooq: StooqConfig{
				Enabled:        true,
				BaseURL:        "https://stooq.com",
				RequestsPerMin: 30,
			},
		},
		Polymarket: PolymarketConfig{
			GammaHost: "https://gamma-api.polymarket.com",
			DataHost:  "https://data-api.polymarket.com",
			ClobHost:  "https://clob.polymarket.com",
		},
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "syncd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "syncd-archive",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Sync: SyncConfig{
			Interval:        duration{30 * time.Minute},
			MaxEntities:     100,
			PriceBatchSize:  50,
			HolderBatchSize: 20,
			BatchDelay:      duration{2 * time.Second},
			Concurrency:     5,
			HoldersLimit:    20,
			ActivityLimit:   100,
			PriceInterval:   "1d",
			RateLimit:       30,
			RateWindow:      duration{10 * time.Second},
			RetentionDays:   90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{time.Second},
		},
		Mode:     "serve",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"serve":   true,
	"sync":    true,
	"catchup": true,
	"archive": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validPriceIntervals enumerates the resolutions the Data API serves.
var validPriceIntervals = map[string]bool{
	"1m": true,
	"1h": true,
	"1d": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: serve, sync, catchup, archive)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Providers: credentials are optional (a missing one just drops the
	// provider from the chain) but the configured endpoints must be sane.
	if c.Providers.Tiingo.BaseURL == "" {
		errs = append(errs, "providers.tiingo: base_url must not be empty")
	}
	if c.Providers.Alpaca.BaseURL == "" {
		errs = append(errs, "providers.alpaca: base_url must not be empty")
	}
	if c.Providers.Stooq.Enabled && c.Providers.Stooq.BaseURL == "" {
		errs = append(errs, "providers.stooq: base_url must not be empty when enabled")
	}
	if (c.Providers.Alpaca.KeyID == "") != (c.Providers.Alpaca.SecretKey == "") {
		errs = append(errs, "providers.alpaca: key_id and secret_key must be set together")
	}

	// Polymarket endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.DataHost == "" {
		errs = append(errs, "polymarket: data_host must not be empty")
	}
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 is only mandatory for archive mode; a serve/sync deployment can run
	// without cold storage.
	if strings.ToLower(c.Mode) == "archive" {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty for archive mode")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty for archive mode")
		}
	}

	// Sync
	if c.Sync.Interval.Duration <= 0 {
		errs = append(errs, "sync: interval must be > 0")
	}
	if c.Sync.MaxEntities < 1 {
		errs = append(errs, "sync: max_entities must be >= 1")
	}
	if c.Sync.PriceBatchSize < 1 {
		errs = append(errs, "sync: price_batch_size must be >= 1")
	}
	if c.Sync.HolderBatchSize < 1 {
		errs = append(errs, "sync: holder_batch_size must be >= 1")
	}
	if c.Sync.BatchDelay.Duration < 0 {
		errs = append(errs, "sync: batch_delay must be >= 0")
	}
	if c.Sync.Concurrency < 1 {
		errs = append(errs, "sync: concurrency must be >= 1")
	}
	if c.Sync.HoldersLimit < 1 {
		errs = append(errs, "sync: holders_limit must be >= 1")
	}
	if c.Sync.ActivityLimit < 1 {
		errs = append(errs, "sync: activity_limit must be >= 1")
	}
	if !validPriceIntervals[c.Sync.PriceInterval] {
		errs = append(errs, fmt.Sprintf("sync: unknown price_interval %q (valid: 1m, 1h, 1d)", c.Sync.PriceInterval))
	}
	if c.Sync.RetentionDays < 1 {
		errs = append(errs, "sync: retention_days must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
