package app

import (
	"link-router/internal/common/logging"
	"link-router/internal/redis"
)

func (app *App) initializeRedis() error {
	if !app.Config.DistributedEnabled {
		app.Logger.Info("Redis: Disabled (distributed tier and warming off)")
		return nil
	}

	redisClient, err := redis.NewClient(app.Config.RedisConfig())
	if err != nil {
		return err
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected",
		logging.Field{"address", app.Config.RedisAddress},
		logging.Field{"key_prefix", app.Config.KeyPrefix},
	)
	return nil
}
