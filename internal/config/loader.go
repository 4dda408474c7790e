package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies INDEXLAB_* environment variable overrides, and
// returns the final Config. A missing file is not an error when path is
// empty. The returned Config has NOT been validated; the caller should invoke
// Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known INDEXLAB_* environment variables and
// overwrites the corresponding Config fields when a variable is set.
func applyEnvOverrides(cfg *Config) {
	// ── Storage ──
	setStr(&cfg.Storage.Backend, "INDEXLAB_STORAGE_BACKEND")
	setStr(&cfg.Storage.LocalDir, "INDEXLAB_STORAGE_LOCAL_DIR")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "INDEXLAB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "INDEXLAB_S3_REGION")
	setStr(&cfg.S3.Bucket, "INDEXLAB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "INDEXLAB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "INDEXLAB_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "INDEXLAB_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "INDEXLAB_S3_FORCE_PATH_STYLE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "INDEXLAB_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "INDEXLAB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "INDEXLAB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "INDEXLAB_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "INDEXLAB_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "INDEXLAB_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "INDEXLAB_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.KeyPrefix, "INDEXLAB_REDIS_KEY_PREFIX")
	setDuration(&cfg.Redis.SeriesTTL, "INDEXLAB_REDIS_SERIES_TTL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "INDEXLAB_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "INDEXLAB_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "INDEXLAB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "INDEXLAB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "INDEXLAB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "INDEXLAB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "INDEXLAB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "INDEXLAB_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "INDEXLAB_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "INDEXLAB_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "INDEXLAB_POSTGRES_RUN_MIGRATIONS")

	// ── Market ──
	setStr(&cfg.Market.IndexSymbol, "INDEXLAB_MARKET_INDEX_SYMBOL")
	setStr(&cfg.Market.YahooBaseURL, "INDEXLAB_MARKET_YAHOO_BASE_URL")
	setStr(&cfg.Market.UserAgent, "INDEXLAB_MARKET_USER_AGENT")
	setDuration(&cfg.Market.HTTPTimeout, "INDEXLAB_MARKET_HTTP_TIMEOUT")
	setStr(&cfg.Market.ConstituentsPath, "INDEXLAB_MARKET_CONSTITUENTS_PATH")
	setStr(&cfg.Market.ChangesPath, "INDEXLAB_MARKET_CHANGES_PATH")
	setInt(&cfg.Market.Concurrency, "INDEXLAB_MARKET_CONCURRENCY")
	setBool(&cfg.Market.UseIndustry, "INDEXLAB_MARKET_USE_INDUSTRY")

	// ── Rate limit ──
	setBool(&cfg.RateLimit.Enabled, "INDEXLAB_RATE_LIMIT_ENABLED")
	setInt(&cfg.RateLimit.Requests, "INDEXLAB_RATE_LIMIT_REQUESTS")
	setDuration(&cfg.RateLimit.Window, "INDEXLAB_RATE_LIMIT_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "INDEXLAB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "INDEXLAB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "INDEXLAB_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Outcomes, "INDEXLAB_NOTIFY_OUTCOMES")

	// ── Schedule ──
	setBool(&cfg.Schedule.Enabled, "INDEXLAB_SCHEDULE_ENABLED")
	setStr(&cfg.Schedule.Cron, "INDEXLAB_SCHEDULE_CRON")

	// ── Server ──
	setInt(&cfg.Server.Port, "INDEXLAB_SERVER_PORT")
	setInt(&cfg.Server.Port, "PORT") // platform-assigned port
	setStringSlice(&cfg.Server.CORSOrigins, "INDEXLAB_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.Mode, "INDEXLAB_MODE")
	setStr(&cfg.LogLevel, "INDEXLAB_LOG_LEVEL")
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
