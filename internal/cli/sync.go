package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/merchant-sync-backend/internal/application/service"
)

// ErrPartialSync is returned when a run finished but some merchants could not be stored.
var ErrPartialSync = errors.New("sync completed with errors")

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one merchant sync and print the result",
		Long: `Fetch the merchant list from Privvy, reconcile it into the local store,
and print a summary. Exits non-zero if the run failed or any merchant could
not be stored.`,
		Args: cobra.NoArgs,
		RunE: runSync,
	}
	cmd.Flags().Bool("fail-fast", false, "Abort on the first merchant that cannot be stored")
	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.Sync.FailFast, _ = cmd.Flags().GetBool("fail-fast")
	}

	a, err := newApp(cmd.Context(), cfg, "sync")
	if err != nil {
		return err
	}
	defer a.Close()

	reconciler, err := a.newReconciler()
	if err != nil {
		return err
	}

	syncs := service.NewSyncService(reconciler, a.logger, cfg.Sync.FailFast)
	defer syncs.Stop()

	out := cmd.OutOrStdout()
	PrintHeader(out, cfg)

	result, err := syncs.RunNow(cmd.Context(), service.TriggerCLI)
	if err != nil {
		PrintSyncFailure(out, err)
		return err
	}

	if err := PrintSyncSummary(out, result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("%w: %d of %d merchants failed", ErrPartialSync, result.Failed, result.Fetched)
	}
	return nil
}
