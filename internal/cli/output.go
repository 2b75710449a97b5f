package cli

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/eshaffer321/merchant-sync-backend/internal/adapters/privvy"
	appsync "github.com/eshaffer321/merchant-sync-backend/internal/application/sync"
	"github.com/eshaffer321/merchant-sync-backend/internal/infrastructure/config"
)

var (
	okStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
)

// PrintHeader prints where the sync reads from and writes to
func PrintHeader(w io.Writer, cfg *config.Config) {
	target := cfg.Storage.DatabasePath
	if cfg.Storage.Driver == config.DriverPostgres {
		target = "postgres"
	}
	mode := "continue on error"
	if cfg.Sync.FailFast {
		mode = "fail fast"
	}
	fmt.Fprintf(w, "merchant-sync: %s -> %s (%s)\n\n", cfg.Privvy.APIURL, target, mode)
}

// PrintSyncSummary prints the result table of a finished run
func PrintSyncSummary(w io.Writer, result *appsync.Result) error {
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Merchants", "Count"})

	rows := [][]string{
		{"Fetched", strconv.Itoa(result.Fetched)},
		{"Created", strconv.Itoa(result.Created)},
		{"Updated", strconv.Itoa(result.Updated)},
		{"Skipped", strconv.Itoa(result.Skipped)},
		{"Failed", strconv.Itoa(result.Failed)},
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nDuration: %s\n", appsync.FormatDuration(result.Duration))

	if result.Failed > 0 {
		fmt.Fprintf(w, "%s Failed MIDs: %s\n",
			warnStyle.Render("Sync completed with errors."),
			strings.Join(result.FailedMIDs, ", "))
		return nil
	}
	fmt.Fprintln(w, okStyle.Render("Sync completed successfully."))
	return nil
}

// PrintSyncFailure explains which phase of the run failed
func PrintSyncFailure(w io.Writer, err error) {
	var phased interface{ Phase() string }
	phase := "sync"
	if errors.As(err, &phased) {
		phase = phased.Phase()
	}

	var status *privvy.StatusError
	if errors.As(err, &status) {
		fmt.Fprintf(w, "%s %s failed with HTTP %d\n", failStyle.Render("Sync failed:"), phase, status.StatusCode)
		return
	}
	fmt.Fprintf(w, "%s %s failed: %v\n", failStyle.Render("Sync failed:"), phase, err)
}
