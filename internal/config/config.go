// Package config defines the top-level configuration for indexlab and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/indexlab/internal/scheduler"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by INDEXLAB_* environment variables.
type Config struct {
	Storage   StorageConfig   `toml:"storage"`
	S3        S3Config        `toml:"s3"`
	Redis     RedisConfig     `toml:"redis"`
	Postgres  PostgresConfig  `toml:"postgres"`
	Market    MarketConfig    `toml:"market"`
	Server    ServerConfig    `toml:"server"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Notify    NotifyConfig    `toml:"notify"`
	Schedule  ScheduleConfig  `toml:"schedule"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// StorageConfig selects where snapshots and treemaps live. Backend is the
// default used when a request or command names none.
type StorageConfig struct {
	Backend  string `toml:"backend"`
	LocalDir string `toml:"local_dir"`
}

// S3Config holds S3-compatible object storage parameters. An empty bucket
// leaves the s3 backend unconfigured.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RedisConfig holds Redis connection parameters. Redis backs the series
// cache, the API rate limiter and the daily job lock.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled"`
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix"`
	SeriesTTL  duration `toml:"series_ttl"`
}

// PostgresConfig holds PostgreSQL connection parameters for the price
// history and snapshot tables.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
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

// MarketConfig controls where prices and constituents come from.
type MarketConfig struct {
	IndexSymbol      string   `toml:"index_symbol"`
	YahooBaseURL     string   `toml:"yahoo_base_url"`
	UserAgent        string   `toml:"user_agent"`
	HTTPTimeout      duration `toml:"http_timeout"`
	ConstituentsPath string   `toml:"constituents_path"`
	// ChangesPath is the index change log used to rewind the constituent
	// list to a past date. Empty disables the rewind.
	ChangesPath string `toml:"changes_path"`
	Concurrency int    `toml:"concurrency"`
	// UseIndustry adds a GICS sub-industry level between sector and symbol.
	UseIndustry bool `toml:"use_industry"`
}

// RateLimitConfig bounds API requests per client IP. Requires Redis.
type RateLimitConfig struct {
	Enabled  bool     `toml:"enabled"`
	Requests int      `toml:"requests"`
	Window   duration `toml:"window"`
}

// NotifyConfig holds chat credentials for daily job alerts. A channel is
// active when its credentials are set.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Outcomes          []string `toml:"outcomes"`
}

// ScheduleConfig runs the daily snapshot inside server mode. Cron is a
// 5-field expression evaluated in New York time.
type ScheduleConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with sensible defaults. Only the local
// backend is usable out of the box.
func Defaults() Config {
	return Config{
		Storage: StorageConfig{
			Backend:  "local",
			LocalDir: "./storage",
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "indexlab:",
			SeriesTTL:  duration{6 * time.Hour},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "indexlab",
			User:          "indexlab",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Market: MarketConfig{
			IndexSymbol:      "^GSPC",
			YahooBaseURL:     "https://query1.finance.yahoo.com",
			UserAgent:        "Mozilla/5.0 (compatible; indexlab/1.0)",
			HTTPTimeout:      duration{20 * time.Second},
			ConstituentsPath: "sp500_companies.csv",
			ChangesPath:      "sp500_changes.csv",
			Concurrency:      8,
			UseIndustry:      false,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		RateLimit: RateLimitConfig{
			Enabled:  false,
			Requests: 60,
			Window:   duration{time.Minute},
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Cron:    "30 17 * * 1-5",
		},
		Notify: NotifyConfig{
			Outcomes: []string{"error", "future_not_exist", "value_error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"snapshot": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, snapshot)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Storage
	switch strings.ToLower(c.Storage.Backend) {
	case "local":
		if c.Storage.LocalDir == "" {
			errs = append(errs, "storage: local_dir must not be empty for the local backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, "storage: backend s3 requires s3.bucket")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unknown backend %q (valid: local, s3)", c.Storage.Backend))
	}

	// S3 keys come as a pair or not at all.
	if (c.S3.AccessKey == "") != (c.S3.SecretKey == "") {
		errs = append(errs, "s3: access_key and secret_key must be set together")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.SeriesTTL.Duration <= 0 {
			errs = append(errs, "redis: series_ttl must be > 0")
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Market
	if c.Market.IndexSymbol == "" {
		errs = append(errs, "market: index_symbol must not be empty")
	}
	if c.Market.YahooBaseURL == "" {
		errs = append(errs, "market: yahoo_base_url must not be empty")
	}
	if c.Market.ConstituentsPath == "" {
		errs = append(errs, "market: constituents_path must not be empty")
	}
	if c.Market.Concurrency < 1 {
		errs = append(errs, "market: concurrency must be >= 1")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		if !c.Redis.Enabled {
			errs = append(errs, "rate_limit: requires redis.enabled")
		}
		if c.RateLimit.Requests < 1 {
			errs = append(errs, "rate_limit: requests must be >= 1")
		}
		if c.RateLimit.Window.Duration <= 0 {
			errs = append(errs, "rate_limit: window must be > 0")
		}
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	// Schedule
	if c.Schedule.Enabled {
		if _, err := scheduler.Parse(c.Schedule.Cron); err != nil {
			errs = append(errs, "schedule: "+err.Error())
		}
	}

	// Server
	if strings.EqualFold(c.Mode, "server") {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
