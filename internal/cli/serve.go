package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/eshaffer321/merchant-sync-backend/internal/api"
	"github.com/eshaffer321/merchant-sync-backend/internal/application/service"
)

const (
	shutdownTimeout = 30 * time.Second
	cleanupInterval = 5 * time.Minute
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the merchant sync API server",
		Long: `Start the HTTP API. Merchant sync endpoints are enabled when Privvy
credentials are configured; sync.interval additionally schedules periodic runs.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().Int("port", 0, "Port to listen on (overrides api.port)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.API.Port, _ = cmd.Flags().GetInt("port")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, "api")
	if err != nil {
		return err
	}
	defer a.Close()

	deps := api.Deps{Repo: a.repo}
	if a.registry != nil {
		deps.Metrics = promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})
	}

	reconciler, err := a.newReconciler()
	if err != nil {
		a.logger.Warn("merchant sync disabled", "reason", err)
	} else {
		syncs := service.NewSyncService(reconciler, a.logger, cfg.Sync.FailFast)
		syncs.StartBackgroundCleanup(cleanupInterval)
		if cfg.Sync.Interval > 0 {
			syncs.StartScheduler(cfg.Sync.Interval)
		}
		defer syncs.Stop()
		deps.Syncs = syncs
	}

	if cfg.Observability.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	server := api.NewServer(api.Config{
		Port:             cfg.API.Port,
		AllowedOrigins:   cfg.API.AllowedOrigins,
		StorageDriver:    cfg.Storage.Driver,
		PrivvyConfigured: deps.Syncs != nil,
	}, deps, a.logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
