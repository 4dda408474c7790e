package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "^GSPC", cfg.Market.IndexSymbol)
	assert.Equal(t, "local", cfg.Storage.Backend)
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("INDEXLAB_S3_SECRET_KEY", "from-env")
	t.Setenv("INDEXLAB_RATE_LIMIT_WINDOW", "30s")
	t.Setenv("INDEXLAB_SERVER_CORS_ORIGINS", " https://a.test , ,https://b.test")

	path := writeTOML(t, `
mode = "snapshot"

[storage]
backend = "s3"

[s3]
bucket = "indexlab"
access_key = "from-file"

[redis]
enabled = true
series_ttl = "1h"

[market]
concurrency = 4
use_industry = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "snapshot", cfg.Mode)
	assert.Equal(t, "s3", cfg.Storage.Backend)
	assert.Equal(t, "indexlab", cfg.S3.Bucket)
	assert.Equal(t, "from-file", cfg.S3.AccessKey)
	assert.Equal(t, "from-env", cfg.S3.SecretKey)
	assert.Equal(t, time.Hour, cfg.Redis.SeriesTTL.Duration)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window.Duration)
	assert.Equal(t, 4, cfg.Market.Concurrency)
	assert.True(t, cfg.Market.UseIndustry)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	// untouched defaults survive
	assert.Equal(t, "sp500_companies.csv", cfg.Market.ConstituentsPath)
	assert.Equal(t, "sp500_changes.csv", cfg.Market.ChangesPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(writeTOML(t, "mode = "))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Storage.Backend = "s3"
	cfg.S3.AccessKey = "only-one"
	cfg.Market.Concurrency = 0
	cfg.RateLimit.Enabled = true
	cfg.Notify.TelegramToken = "t"
	cfg.Schedule.Enabled = true
	cfg.Schedule.Cron = "every day"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		`unknown mode "trade"`,
		`unknown log_level "loud"`,
		"backend s3 requires s3.bucket",
		"access_key and secret_key must be set together",
		"market: concurrency",
		"rate_limit: requires redis.enabled",
		"telegram_token and telegram_chat_id",
		"schedule: scheduler: cron",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidatePostgres(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Enabled = true
	cfg.Postgres.Port = 0
	cfg.Postgres.PoolMinConns = 20
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: port")
	assert.Contains(t, err.Error(), "pool_min_conns")

	cfg.Postgres.DSN = "postgres://u:p@db/indexlab"
	cfg.Postgres.PoolMinConns = 1
	assert.NoError(t, cfg.Validate())
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.S3.AccessKey = "AKIA"
	cfg.S3.SecretKey = "secret"
	cfg.Postgres.DSN = "postgres://u:p@db/x"
	cfg.Notify.DiscordWebhookURL = "https://discord.test/hook"

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.S3.AccessKey)
	assert.Equal(t, "***", red.S3.SecretKey)
	assert.Equal(t, "***", red.Postgres.DSN)
	assert.Equal(t, "***", red.Notify.DiscordWebhookURL)
	assert.Empty(t, red.Redis.Password)

	red.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "secret", cfg.S3.SecretKey)
}
