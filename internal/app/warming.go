package app

import (
	"context"
	stderrors "errors"
	"time"

	"link-router/internal/cache"
	"link-router/internal/common/logging"
	"link-router/internal/locks"
	"link-router/internal/models"
	"link-router/internal/warmsource"
)

const warmLockName = "cache-warm"

// initializeWarming arms the periodic warming pass fed by the usage history.
// Without Redis there is no history to read.
func (app *App) initializeWarming() {
	if !app.Config.WarmEnabled || app.RedisClient == nil {
		app.Logger.Info("Cache warming: Disabled")
		return
	}

	codec, _ := app.Config.CacheCodec()
	app.WarmSource = warmsource.New[models.Link](
		app.RedisClient.Cmdable(),
		app.Config.WarmSourceConfig(),
		codec,
		logging.GetGlobalLogger().Named("warmsource"),
	)

	supplier := app.WarmSource.Supplier()
	if app.Config.WarmExclusive {
		manager, err := locks.NewManager(app.RedisClient.Universal(), "")
		if err != nil {
			app.Logger.Warn("Cache warming: lock manager unavailable, every instance will warm",
				logging.Field{"error", err.Error()})
		} else {
			app.Locks = manager
			supplier = exclusiveSupplier(manager, app.warmInterval(), supplier, app.Logger)
		}
	}

	app.cancelWarm = app.Cache.ScheduleWarmCache(supplier, app.Config.Cache.WarmInterval, app.warmOptions())
	app.Logger.Info("Cache warming: Scheduled",
		logging.Field{"interval", app.warmInterval().String()},
		logging.Field{"exclusive", app.Locks != nil},
	)
}

func (app *App) warmOptions() cache.WarmOptions {
	return cache.WarmOptions{
		MaxItems:   app.Config.Cache.WarmMaxItems,
		PreloadHot: true,
	}
}

func (app *App) warmInterval() time.Duration {
	if app.Config.Cache.WarmInterval > 0 {
		return app.Config.Cache.WarmInterval
	}
	return cache.DefaultConfig().WarmInterval
}

// WarmNow runs one warming pass outside the schedule. It does not take the
// fleet lock.
func (app *App) WarmNow(ctx context.Context) cache.WarmStats {
	if app.WarmSource == nil {
		return cache.WarmStats{}
	}
	return app.Cache.WarmCache(ctx, app.WarmSource.Supplier(), app.warmOptions())
}

// exclusiveSupplier lets one instance per interval read the usage history.
// The lock is left to expire so that the other instances skip the same
// interval; they return no candidates instead of an error.
func exclusiveSupplier[V any](manager *locks.Manager, interval time.Duration, next cache.Supplier[V], logger logging.Logger) cache.Supplier[V] {
	expiry := interval * 9 / 10
	if expiry <= 0 {
		expiry = interval
	}
	return func(ctx context.Context) ([]cache.Candidate[V], error) {
		if _, err := manager.TryAcquire(ctx, warmLockName, expiry); err != nil {
			if stderrors.Is(err, locks.ErrNotAcquired) {
				logger.Debug("Cache warming: another instance holds this interval")
				return nil, nil
			}
			return nil, err
		}
		return next(ctx)
	}
}
