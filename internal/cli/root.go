package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	DB      string
	Config  string
	Network string
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the chainstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chainstore",
		Short: "chainstore - SQLite persistence for chain-tracking state",
		Long:  "Inspect and maintain a chainstore database: run schema migrations, report schema versions, and dump persisted state.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.applyConfig()
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "path to the sqlite database file")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "path to a yaml config file")
	cmd.PersistentFlags().StringVar(&opts.Network, "network", "", "network name (mainnet|testnet3|signet|simnet|regtest)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
