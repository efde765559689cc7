package main

import (
	"fmt"
	"strings"

	"github.com/aretw0/tabloop"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of tabloop",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tabloop version %s\n", strings.TrimSpace(tabloop.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
