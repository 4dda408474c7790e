package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/indexlab/internal/blob"
	localblob "github.com/alanyoungcy/indexlab/internal/blob/local"
	s3blob "github.com/alanyoungcy/indexlab/internal/blob/s3"
	"github.com/alanyoungcy/indexlab/internal/cache/redis"
	"github.com/alanyoungcy/indexlab/internal/config"
	"github.com/alanyoungcy/indexlab/internal/domain"
	"github.com/alanyoungcy/indexlab/internal/notify"
	"github.com/alanyoungcy/indexlab/internal/observability"
	"github.com/alanyoungcy/indexlab/internal/platform/yahoo"
	"github.com/alanyoungcy/indexlab/internal/server/handler"
	"github.com/alanyoungcy/indexlab/internal/service"
	"github.com/alanyoungcy/indexlab/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency the services need.
// Optional backends that are disabled stay nil.
type Dependencies struct {
	Stores   blob.Stores
	Provider domain.MarketDataProvider

	// Redis
	SeriesCache domain.SeriesCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Postgres
	PriceStore    domain.PriceStore
	SnapshotStore domain.SnapshotStore

	Metrics  *observability.Metrics
	Notifier *notify.Notifier

	// Checks are pinged by the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	defaultBackend, err := blob.ParseBackend(cfg.Storage.Backend, domain.StorageLocal)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: %w", err)
	}

	deps := &Dependencies{
		Stores: blob.Stores{
			Local:   localblob.New(cfg.Storage.LocalDir),
			Default: defaultBackend,
		},
		Provider: yahoo.NewClient(cfg.Market.YahooBaseURL,
			yahoo.WithHTTPClient(&http.Client{Timeout: cfg.Market.HTTPTimeout.Duration}),
			yahoo.WithUserAgent(cfg.Market.UserAgent),
		),
		Metrics: observability.NewMetrics("indexlab"),
		Checks:  map[string]handler.Pinger{},
	}

	// --- S3 blob storage (only when a bucket is configured) ---
	if cfg.S3.Bucket != "" {
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
		deps.Stores.S3 = s3blob.NewStore(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- PostgreSQL ---
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
		deps.PriceStore = postgres.NewPriceStore(pool)
		deps.SnapshotStore = postgres.NewSnapshotStore(pool)
		deps.Checks["postgres"] = pool.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SeriesCache = redis.NewSeriesCache(redisClient, cfg.Redis.SeriesTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender("", cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Outcomes, logger)

	logger.InfoContext(ctx, "dependencies wired",
		slog.String("default_storage", string(defaultBackend)),
		slog.Bool("s3", deps.Stores.S3 != nil),
		slog.Bool("postgres", deps.PriceStore != nil),
		slog.Bool("redis", deps.SeriesCache != nil),
		slog.Int("notify_senders", len(senders)),
	)

	return deps, cleanup, nil
}

// Services are the domain services built on top of Dependencies.
type Services struct {
	Prices      *service.PriceService
	Simulations *service.SimulationService
	Market      *service.MarketService
	Treemaps    *service.TreemapService
}

// NewServices builds the service layer.
func NewServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *Services {
	prices := service.NewPriceService(
		cfg.Market.IndexSymbol,
		deps.Provider,
		deps.SeriesCache,
		deps.PriceStore,
		deps.Metrics,
		logger.With(slog.String("component", "price_service")),
	)
	market := service.NewMarketService(
		service.MarketConfig{
			IndexSymbol:      cfg.Market.IndexSymbol,
			ConstituentsPath: cfg.Market.ConstituentsPath,
			ChangesPath:      cfg.Market.ChangesPath,
			Concurrency:      cfg.Market.Concurrency,
		},
		deps.Provider,
		deps.Stores,
		deps.SnapshotStore,
		deps.Metrics,
		logger.With(slog.String("component", "market_service")),
	)
	return &Services{
		Prices: prices,
		Simulations: service.NewSimulationService(prices, deps.Metrics,
			logger.With(slog.String("component", "simulation_service"))),
		Market: market,
		Treemaps: service.NewTreemapService(market, deps.Stores, deps.LockManager,
			cfg.Market.UseIndustry, deps.Metrics,
			logger.With(slog.String("component", "treemap_service"))),
	}
}
