// Package app wires configuration, clients, and services into a runnable core.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/sift/internal/clients/fmp"
	"github.com/bobmcallan/sift/internal/common"
	"github.com/bobmcallan/sift/internal/interfaces"
	"github.com/bobmcallan/sift/internal/services/screen"
)

// App holds all initialized services and clients. It is the shared core used
// by cmd/sift-server.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Gateway       interfaces.MarketDataClient
	ScreenService interfaces.ScreenService
	StartupTime   time.Time

	scheduler *warmScheduler
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, the gateway client, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Load configuration - check provided path, SIFT_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("SIFT_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "sift.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/sift.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	if config.Gateway.APIKey == "" {
		logger.Warn().Msg("Gateway API key not configured - upstream requests will be rejected")
	}

	gateway := fmp.NewClient(config.Gateway.APIKey,
		fmp.WithBaseURL(config.Gateway.BaseURL),
		fmp.WithLogger(logger),
		fmp.WithRateLimit(config.Gateway.RateLimit),
		fmp.WithTimeout(config.Gateway.GetTimeout()),
	)

	screenService := screen.NewService(gateway, config.Screen, logger)

	a := &App{
		Config:        config,
		Logger:        logger,
		Gateway:       gateway,
		ScreenService: screenService,
		StartupTime:   startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.scheduler != nil {
		a.scheduler.stop()
		a.scheduler = nil
	}
}

// StartWarmScheduler launches the cron-driven cache warming job when
// configured. A missing cron spec disables it.
func (a *App) StartWarmScheduler() error {
	if a.Config.Screen.WarmCron == "" {
		a.Logger.Debug().Msg("Warm scan scheduler disabled")
		return nil
	}

	scheduler, err := newWarmScheduler(a.Config.Screen, a.ScreenService, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to start warm scan scheduler: %w", err)
	}
	a.scheduler = scheduler
	return nil
}
