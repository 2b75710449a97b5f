// Package cli implements the merchant-sync command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd builds the merchant-sync command with its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "merchant-sync",
		Short: "Synchronize Privvy merchants into the local store",
		Long: `merchant-sync mirrors the merchant list of the Privvy boarding platform
into a local SQLite or PostgreSQL database, either on demand or behind an HTTP API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().String("config", "config.yaml", "Path to config file (environment variables are used when it is absent)")
	root.PersistentFlags().Bool("verbose", false, "Enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newSyncCmd())
	root.AddCommand(newMigrateCmd())

	return root
}
