package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
)

var (
	signalsRegimeFile string
	signalsRegimes    []string
)

var optimizeSignalsCmd = &cobra.Command{
	Use:   "optimize-signals",
	Short: "Stage 2: search entry and exit signals per regime",
	Long: `Classify the data with an exported regime configuration, then search
every configured indicator for the best entry and exit signal of each
side inside each regime. Selections are exported to
indicator_set_<regime>.json.`,
	RunE: runOptimizeSignals,
}

func init() {
	f := optimizeSignalsCmd.Flags()
	f.StringVar(&signalsRegimeFile, "regime-file", "", "Exported regime configuration (default: the Stage-1 output)")
	f.StringSliceVar(&signalsRegimes, "regime", nil, "Regime ids to search (default: every regime that labels a bar)")
	rootCmd.AddCommand(optimizeSignalsCmd)
}

func runOptimizeSignals(cmd *cobra.Command, args []string) error {
	v := common.NewFlagValidator().ValidateFile("regime-file", signalsRegimeFile, false)
	for _, id := range signalsRegimes {
		if strings.TrimSpace(id) == "" {
			v.AddError("regime ids must not be empty")
		}
	}
	if err := v.GetError(); err != nil {
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
	artifact, err := a.loadRegimeArtifact(signalsRegimeFile, bars)
	if err != nil {
		return err
	}
	return a.runSignalStage(cmd.Context(), bars, artifact, signalsRegimes)
}
