// Package cli provides the initialization shared by cmd/fintrack and
// cmd/fintrack-export.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"github.com/joho/godotenv"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration from the environment.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// SetupLogger builds the process logger from cfg and makes it the default.
func SetupLogger(cfg *config.Config) *log.Logger {
	logCfg := log.DefaultConfig()
	logCfg.Level = log.ParseLevel(cfg.LogLevel)
	logCfg.Format = cfg.LogFormat
	logger := log.New(logCfg)
	log.SetDefault(logger)
	return logger
}

// InitServices opens the configured data layer.
// Returns the services or exits the process on failure.
func InitServices(ctx context.Context, logger *log.Logger, cfg *config.Config) *backend.Services {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	svc, err := backend.NewFactory(logger).Create(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err,
			"data_backend", cfg.DataBackend, "notify_backend", cfg.NotifyBackend)
		os.Exit(1)
	}
	return svc
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
