package main

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/tabloop/internal/cli"
	"github.com/spf13/cobra"
)

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect or clear the ledger of completed loops",
}

var ledgerSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print success statistics of recorded loops",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		l, closeFn, err := cli.OpenLedger(cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		summary, err := l.Summary(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every ledger entry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		l, closeFn, err := cli.OpenLedger(cfg.Ledger, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		if err := l.Clear(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Ledger cleared (%s).\n", cfg.Ledger.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ledgerCmd)
	ledgerCmd.AddCommand(ledgerSummaryCmd, ledgerClearCmd)
}
