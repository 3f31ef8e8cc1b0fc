package main

import (
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/config"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

var classifyRegimeFile string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label bars with a regime configuration",
	Long: `Classify the configured data with an exported regime configuration.

Without --regime-file the Stage-1 output of the configured symbol and
interval is used when present, otherwise the template's default
parameter values.`,
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifyRegimeFile, "regime-file", "", "Exported regime configuration (regime_config.json)")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	if err := common.NewFlagValidator().ValidateFile("regime-file", classifyRegimeFile, false).GetError(); err != nil {
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

	cfg, source, err := a.classifierConfig(classifyRegimeFile, bars)
	if err != nil {
		return err
	}
	a.log.Info().Str("source", source).Int("regimes", len(cfg.Regimes)).Msg("Classifying")

	cls, err := regime.Classify(cfg, bars, regime.Options{Logger: &a.log})
	if err != nil {
		return a.fail(err)
	}
	if cls.Faults > 0 {
		a.log.Warn().Int("faults", cls.Faults).Msg("Regime evaluations skipped")
	}

	summary := regime.Summarize(cls.Labels)
	meta := a.meta(results.StageRegime, "classify", bars)
	meta.RegimeSummary = &summary
	written, err := a.reports.ReportClassification(meta, bars, cls.Labels, cls.Periods)
	if err != nil {
		return a.fail(err)
	}
	a.printWritten(written)
	return nil
}

// classifierConfig resolves the configuration to classify with and
// describes where it came from
func (a *app) classifierConfig(path string, bars []types.OHLCV) (regime.Config, string, error) {
	if path == "" {
		candidate := a.artifactPath(a.meta(results.StageRegime, "", bars), config.SelectedRegimeFile)
		if common.FileExists(candidate) {
			path = candidate
		}
	}
	if path != "" {
		artifact, err := a.loadRegimeArtifact(path, bars)
		if err != nil {
			return regime.Config{}, "", err
		}
		return artifact.Config(), path, nil
	}

	template := a.cfg.RegimeTemplate()
	cfg, err := template.Bind(template.ParamValues())
	if err != nil {
		return regime.Config{}, "", a.fail(err)
	}
	return cfg, "template", nil
}
