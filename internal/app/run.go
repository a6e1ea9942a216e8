package app

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"link-router/internal/common/logging"
	"link-router/internal/config"
)

// Run is the main entry point for the application
func Run() error {
	// Load environment variables
	_ = godotenv.Load()

	// Parse command line flags
	var configFile string
	flag.StringVar(&configFile, "config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.Parse()

	// Load configuration before the logger so a file can set the level
	cfg, err := config.LoadFile(configFile)
	if err != nil {
		logging.Error("Configuration loading failed", err)
		return err
	}

	// Initialize logging
	if err := logging.InitGlobalLogger(cfg.LogLevel); err != nil {
		return err
	}
	defer logging.MustSync()

	logging.Info("Starting link router cache",
		logging.Field{"cpus", runtime.NumCPU()},
		logging.Field{"version", "1.0.0"},
	)

	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return err
	}

	// Initialize application
	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	// Start server
	srv, _ := app.RunServer()
	serveErr, err := srv.Start()
	if err != nil {
		logging.Error("Server failed to start", err)
		return err
	}
	logging.Info("Admin server listening", logging.Field{"port", cfg.Port})

	// Wait for interrupt signal or a server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			logging.Error("Server stopped unexpectedly", err)
			return err
		}
	}

	logging.Info("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Shutdown(ctx); err != nil {
		logging.Warn("Error during app shutdown", logging.Field{"error", err})
	}

	if err := srv.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}
