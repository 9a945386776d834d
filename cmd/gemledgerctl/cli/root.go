// Package cli implements gemledgerctl, the operator command line for the ledger.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gemledger/gemledger/internal/app"
)

var version = "dev"

// ctlEnv is populated by the root command before any subcommand runs.
type ctlEnv struct {
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	rt := &ctlEnv{}
	root := &cobra.Command{
		Use:           "gemledgerctl",
		Short:         "Operator tooling for the gemledger sales ledger",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			rt.cfg = cfg
			rt.logger = app.NewLogger(cfg).With(slog.String("component", "ctl"), slog.String("command", cmd.Name()))
			return nil
		},
	}
	root.AddCommand(newMigrateCmd(rt), newRapCmd(rt), newJobsCmd(rt))
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "gemledgerctl: %v\n", err)
		os.Exit(1)
	}
}
