// Package cli holds the startup steps shared by cmd/fintrack,
// cmd/fintrack-worker and cmd/fintrack-admin.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"fintrack/internal/backend"
	"fintrack/internal/config"
	"fintrack/internal/log"
	"fintrack/internal/services"
)

// LoadEnvFile loads .env for local development. A missing file is ignored.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadConfig reads the environment and validates the result.
func LoadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetupLogger builds the logger for component and installs it as the slog
// default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := cfg.Logger(component)
	log.SetDefault(logger)
	return logger
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// App is the ledger wiring every binary starts from.
type App struct {
	Config     *config.Config
	Logger     *log.Logger
	Backend    *backend.BackendResult
	Categories *services.CategoryManager
	Entries    *services.EntryService
	Reports    *services.ReportingService
}

// NewApp opens the configured backend and builds the services on top of it.
// Close releases the backend.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, fmt.Errorf("create %s backend: %w", bcfg.Type, err)
	}

	events := res.Publisher()
	return &App{
		Config:     cfg,
		Logger:     logger,
		Backend:    res,
		Categories: services.NewCategoryManager(res.Store, events),
		Entries:    services.NewEntryService(res.Store, events),
		Reports:    services.NewReportingService(res.Store, cfg.Location(), cfg.TrendMonths),
	}, nil
}

func (a *App) Close() error {
	if a.Backend == nil || a.Backend.Cleanup == nil {
		return nil
	}
	return a.Backend.Cleanup()
}
