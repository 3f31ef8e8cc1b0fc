package main

import (
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run both stages on the same data",
	Long: `Run optimize-regimes, then optimize-signals on every regime of the
selected configuration. Cancelling during Stage 1 still exports the
finished trials and skips Stage 2.`,
	RunE: runPipeline,
}

func init() {
	pipelineCmd.Flags().IntVar(&selectRank, "select", 1, "Rank of the Stage-1 trial used for Stage 2")
	rootCmd.AddCommand(pipelineCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := common.NewFlagValidator().ValidateInt("select", selectRank, 1, 1<<20).GetError(); err != nil {
		return err
	}

	a, err := newApp(cmd.Context(), flags)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	bars, err := a.loadBars(ctx)
	if err != nil {
		return err
	}
	artifact, err := a.runRegimeStage(ctx, bars, selectRank)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		a.log.Warn().Msg("Pipeline cancelled after Stage 1")
		return nil
	}
	return a.runSignalStage(ctx, bars, artifact, nil)
}
