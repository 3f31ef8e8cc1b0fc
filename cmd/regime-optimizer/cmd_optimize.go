package main

import (
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
)

var selectRank int

var optimizeRegimesCmd = &cobra.Command{
	Use:   "optimize-regimes",
	Short: "Stage 1: search regime template parameters",
	Long: `Run the TPE search with Hyperband pruning over the regime template's
parameter ranges. The ranked trials are exported to
optimization_results.json and the trial at --select to regime_config.json.`,
	RunE: runOptimizeRegimes,
}

func init() {
	optimizeRegimesCmd.Flags().IntVar(&selectRank, "select", 1, "Rank of the trial to export as the regime configuration")
	rootCmd.AddCommand(optimizeRegimesCmd)
}

func runOptimizeRegimes(cmd *cobra.Command, args []string) error {
	if err := common.NewFlagValidator().ValidateInt("select", selectRank, 1, 1<<20).GetError(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer a.Close()

	bars, err := a.loadBars(cmd.Context())
	if err != nil {
		return err
	}
	_, err = a.runRegimeStage(cmd.Context(), bars, selectRank)
	return err
}
