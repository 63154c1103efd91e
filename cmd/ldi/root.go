package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand
type globalFlags struct {
	configPath string
	snapshot   string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "ldi",
		Short: "Liability-driven investment engine",
		Long: `ldi values a portfolio's liabilities, optimizes its allocation under a
surplus risk budget, schedules the rebalancing trades and sizes a derivatives
overlay for whatever rate and equity gap remains.

Examples:
  ldi run --as-of 2026-03-02
  ldi run --portfolio PENSION-A --snapshot configs/snapshot.yaml
  ldi watch --config configs/ldi.yaml
  ldi remote list --addr localhost:8080 --token dev-token`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flags.configPath, "config", "configs/ldi.yaml", "Path to the configuration file (empty for defaults and environment only)")
	root.PersistentFlags().StringVar(&flags.snapshot, "snapshot", "", "Market and portfolio snapshot file (overrides store.snapshot)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (overrides log.level)")

	root.AddCommand(newRunCmd(flags))
	root.AddCommand(newWatchCmd(flags))
	root.AddCommand(newRemoteCmd())
	return root
}
