package app

import (
	"context"
	"fmt"

	"link-router/internal/cache"
	"link-router/internal/circuitbreaker"
	"link-router/internal/common/logging"
	"link-router/internal/common/ratelimit"
	"link-router/internal/config"
	"link-router/internal/locks"
	"link-router/internal/metrics"
	"link-router/internal/models"
	"link-router/internal/redis"
	"link-router/internal/warmsource"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	RedisClient *redis.Client
	Metrics     *metrics.Collector
	Cache       *cache.Orchestrator[models.Link]
	WarmSource  *warmsource.Source[models.Link]
	Locks       *locks.Manager
	RateLimiter *ratelimit.Limiter
	Logger      logging.Logger

	cancelWarm func()
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.GetGlobalLogger().WithFields(logging.Field{"component", "app"}),
	}

	if err := app.initializeRedis(); err != nil {
		// The cache runs on its local tiers without Redis
		app.Logger.Warn("Redis initialization failed, continuing with local tiers only",
			logging.Field{"error", err.Error()})
	}

	if err := app.initializeMetrics(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeCache(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRateLimit(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.initializeWarming()
	return app, nil
}

func (app *App) initializeMetrics() error {
	collector, err := metrics.NewCollector(app.Config.MetricsConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	app.Metrics = collector
	return nil
}

func (app *App) initializeCache() error {
	codec, err := app.Config.CacheCodec()
	if err != nil {
		return err
	}

	opts := cache.Options{
		Logger:   logging.GetGlobalLogger().Named("cache"),
		Recorder: app.Metrics,
		Codec:    codec,
	}

	// a nil *redis.Client must not reach the Backend interface
	var backend cache.Backend
	if app.RedisClient != nil {
		backend = app.RedisClient
		opts.Breaker = circuitbreaker.New(cache.TierDistributed, circuitbreaker.DefaultConfig(), opts.Logger)
	}

	orch, err := cache.New[models.Link](app.Config.Cache, backend, opts)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	app.Cache = orch

	app.Logger.Info("Cache: Ready",
		logging.Field{"distributed", backend != nil},
		logging.Field{"codec", codec.Name()},
		logging.Field{"popular_threshold", orch.Config().PopularThreshold},
		logging.Field{"extreme_threshold", orch.Config().ExtremeThreshold},
	)
	return nil
}

func (app *App) initializeRateLimit() error {
	if !app.Config.RateLimitEnabled {
		return nil
	}
	limiter, err := ratelimit.NewLimiter(app.Config.RateLimitConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize rate limiter: %w", err)
	}
	app.RateLimiter = limiter
	return nil
}

// Health reports the Distributed tier connection state.
func (app *App) Health() error {
	if app.RedisClient == nil {
		return nil
	}
	return app.RedisClient.Health()
}

// Shutdown stops background work. In-flight warming passes finish on their
// own deadline.
func (app *App) Shutdown(ctx context.Context) error {
	if app.cancelWarm != nil {
		app.cancelWarm()
	}
	if app.Cache != nil {
		app.Cache.Close()
		stats := app.Cache.Stats(ctx)
		app.Logger.Info("Cache: Final statistics",
			logging.Field{"hits", stats.Hits},
			logging.Field{"misses", stats.Misses},
			logging.Field{"errors", stats.Errors},
			logging.Field{"hit_ratio", stats.HitRatio},
		)
	}
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Cache != nil {
		app.Cache.Close()
	}
	if app.RedisClient != nil {
		app.RedisClient.Close()
	}
}
