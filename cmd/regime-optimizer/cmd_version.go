package main

import (
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		common.PrintVersion(cmd.OutOrStdout(), "regime-optimizer")
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
