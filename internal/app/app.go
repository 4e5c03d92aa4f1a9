// Package app wires configuration, storage, clients, and services into the
// shared core used by the command binaries.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/fundback/internal/clients/eastmoney"
	"github.com/bobmcallan/fundback/internal/common"
	"github.com/bobmcallan/fundback/internal/interfaces"
	"github.com/bobmcallan/fundback/internal/services/funddata"
	"github.com/bobmcallan/fundback/internal/services/report"
	"github.com/bobmcallan/fundback/internal/storage/fundfs"
	"github.com/bobmcallan/fundback/internal/storage/runsdb"
)

// App holds all initialized services, clients, and storage.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	FundStore       interfaces.FundStore
	RunStore        interfaces.RunStore
	EastmoneyClient interfaces.EastmoneyClient
	FundDataService *funddata.Service
	ReportService   *report.Service
	StartupTime     time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage, clients, and services. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Check provided path, FUNDBACK_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("FUNDBACK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "fundback.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fundback.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.ResolveStoragePaths(binDir)

	logger := common.NewLoggerFromConfig(config.Logging)

	fundStore, err := fundfs.NewFundStore(logger, config.Storage.Funds.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize fund store: %w", err)
	}

	runStore, err := runsdb.NewStore(logger, config.Storage.Runs.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run index: %w", err)
	}

	client := eastmoney.NewClient(
		eastmoney.WithLogger(logger),
		eastmoney.WithBaseURL(config.Clients.Eastmoney.BaseURL),
		eastmoney.WithFeeBaseURL(config.Clients.Eastmoney.FeeBaseURL),
		eastmoney.WithRateLimit(config.Clients.Eastmoney.RateLimit),
		eastmoney.WithTimeout(config.Clients.Eastmoney.GetTimeout()),
	)

	fundDataService := funddata.NewService(fundStore, client, logger)
	reportService := report.NewService(runStore, logger, config.Storage.Results.Path)

	logger.Info().
		Str("environment", config.Environment).
		Str("funds_path", config.Storage.Funds.Path).
		Str("results_path", config.Storage.Results.Path).
		Dur("startup", time.Since(startupStart)).
		Msg("Fundback initialized")

	return &App{
		Config:          config,
		Logger:          logger,
		FundStore:       fundStore,
		RunStore:        runStore,
		EastmoneyClient: client,
		FundDataService: fundDataService,
		ReportService:   reportService,
		StartupTime:     startupStart,
	}, nil
}

// Close releases storage resources.
func (a *App) Close() error {
	if a.RunStore != nil {
		if err := a.RunStore.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close run index")
			return err
		}
	}
	return nil
}
