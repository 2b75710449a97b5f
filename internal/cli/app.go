package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/merchant-sync-backend/internal/adapters/privvy"
	appsync "github.com/eshaffer321/merchant-sync-backend/internal/application/sync"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/config"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/storage"
	"github.com/eshaffer321/merchant-sync-backend/internal/observability/metrics"
)

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	repo     storage.Repository
	registry *prometheus.Registry
	metrics  *metrics.SyncMetrics
}

// loadConfig reads --config and --verbose. An explicitly passed config file
// must load; the default path silently falls back to the environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}

	var cfg *config.Config
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		cfg = config.LoadOrEnvWithPath(path)
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, fmt.Errorf("failed to get verbose flag: %w", err)
	}
	if verbose {
		cfg.Observability.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp opens storage (applying migrations) and sets up metrics.
func newApp(ctx context.Context, cfg *config.Config, system string) (*app, error) {
	a := &app{
		cfg:    cfg,
		logger: logging.NewLoggerWithSystem(cfg.Observability.Logging, system),
	}

	if cfg.Observability.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m, err := metrics.NewSyncMetrics(a.registry)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		a.metrics = m
	}

	repo, err := storage.Open(ctx, cfg.Storage, logging.NewLoggerWithSystem(cfg.Observability.Logging, "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.repo = repo

	return a, nil
}

// newReconciler wires the Privvy client into a reconciler that records runs.
func (a *app) newReconciler() (*appsync.Reconciler, error) {
	if err := a.cfg.ValidatePrivvy(); err != nil {
		return nil, err
	}

	client := privvy.NewClient(privvy.Config{
		BaseURL:  a.cfg.Privvy.APIURL,
		Email:    a.cfg.Privvy.Email,
		Password: a.cfg.Privvy.Password,
		Timeout:  a.cfg.Privvy.Timeout,
	}, logging.NewLoggerWithSystem(a.cfg.Observability.Logging, "privvy"), a.metrics)

	return appsync.NewReconciler(client, a.repo,
		logging.NewLoggerWithSystem(a.cfg.Observability.Logging, "sync"),
		appsync.WithRunRecorder(a.repo),
		appsync.WithMetrics(a.metrics),
	), nil
}

func (a *app) Close() {
	if a.repo == nil {
		return
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("failed to close storage", "error", err)
	}
}
