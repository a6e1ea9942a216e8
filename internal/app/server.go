package app

import (
	"net/http"

	"link-router/internal/common/logging"
	"link-router/internal/server"
)

// RunServer builds the admin HTTP server with all routes configured
func (app *App) RunServer() (*server.Server, http.Handler) {
	deps := server.Dependencies{
		Cache:     app.Cache,
		Logger:    logging.GetGlobalLogger().Named("http"),
		Health:    app.Health,
		RateLimit: app.RateLimiter,
	}
	if app.WarmSource != nil {
		deps.Warm = app.WarmNow
	}
	if app.Config.MetricsEnabled {
		deps.Metrics = app.Metrics.Handler()
		deps.MetricsPath = app.Metrics.Path()
	}

	router := server.NewRouter(deps)
	return server.New(router, app.Config.Port), router
}
