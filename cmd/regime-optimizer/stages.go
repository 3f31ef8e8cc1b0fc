package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ducminhle1904/regime-optimizer/cmd/common"
	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/notifications"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/config"
	"github.com/ducminhle1904/regime-optimizer/pkg/optimization"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
	"github.com/ducminhle1904/regime-optimizer/pkg/validation"
)

// runRegimeStage searches the regime template, selects the trial at rank
// and exports both the ranked history and the applied configuration. A
// cancelled search still exports the trials finished so far.
func (a *app) runRegimeStage(ctx context.Context, bars []types.OHLCV, rank int) (*results.RegimeArtifact, error) {
	template := a.cfg.RegimeTemplate()
	opt, err := optimization.NewRegimeOptimizer(template, a.cfg.RegimeSearch, a.optimizerOptions()...)
	if err != nil {
		return nil, a.fail(err)
	}

	a.log.Info().Str("study", a.cfg.RegimeSearch.Study).Int("trials", a.cfg.RegimeSearch.Trials).
		Int("dimensions", len(opt.Space())).Int("bars", len(bars)).Msg("Regime search started")
	started := time.Now()
	res, err := opt.Optimize(ctx, bars)
	if err != nil {
		return nil, a.fail(err)
	}
	if res.Cancelled {
		a.log.Warn().Int("trials", res.Results.Len()).Msg("Regime search cancelled, exporting finished trials")
	}
	if !res.HasBest {
		return nil, a.fail(errors.NewConfigError("optimization", "regime_search",
			"no trial of study %q completed", res.Study))
	}
	a.log.Info().Float64("best_score", res.Best.Value).Int("best_trial", res.Best.Number).
		Str("elapsed", common.FormatDuration(time.Since(started))).Msg("Regime search finished")

	if _, err := res.Results.SelectResult(rank); err != nil {
		return nil, a.fail(err)
	}
	meta := a.meta(results.StageRegime, res.Study, bars)
	artifact, err := res.Results.ExportSelectedRegime(a.artifactPath(meta, config.SelectedRegimeFile), meta, opt.Template(), bars)
	if err != nil {
		return nil, a.fail(err)
	}
	resultsPath := a.artifactPath(meta, config.OptimizationResultsFile)
	if _, err := res.Results.ExportOptimizationResults(resultsPath, artifact.Meta, a.cfg.RegimeSearch, opt.Space().Ranges()); err != nil {
		return nil, a.fail(err)
	}

	written, err := a.reports.ReportRegimeSearch(artifact.Meta, res.Results.RankResults(), artifact.RegimePeriods)
	if err != nil {
		return nil, a.fail(err)
	}
	a.printWritten(append([]string{a.artifactPath(meta, config.SelectedRegimeFile), resultsPath}, written...))
	a.notify(notifications.LevelSuccess, "%s %s regime search finished: %d trials, best score %.2f, %d regimes selected",
		meta.Symbol, meta.Interval, res.Results.Len(), res.Best.Value, len(artifact.Regimes))
	return artifact, nil
}

// runSignalStage searches entry and exit signals for each regime of the
// artifact's labelling; an empty regimeIDs searches every active regime
func (a *app) runSignalStage(ctx context.Context, bars []types.OHLCV, artifact *results.RegimeArtifact, regimeIDs []string) error {
	cls, err := regime.Classify(artifact.Config(), bars, regime.Options{Logger: &a.log})
	if err != nil {
		return a.fail(err)
	}
	if len(regimeIDs) == 0 {
		regimeIDs = regime.Summarize(cls.Labels).Active()
	}
	if len(regimeIDs) == 0 {
		return a.fail(errors.NewConfigError("optimization", "regime", "the regime configuration classifies no bar"))
	}

	opt, err := optimization.NewIndicatorSetOptimizer(a.cfg.SignalSearch, a.optimizerOptions()...)
	if err != nil {
		return a.fail(err)
	}

	searchBars, searchPeriods := bars, cls.Periods
	split, holdout := validation.Holdout(bars, a.cfg.Validation)
	switch {
	case holdout:
		searchBars = bars[:split.Index]
		searchPeriods = validation.ClipPeriods(cls.Periods, bars, split.Index)
		a.log.Info().Int("searched", split.Index).Int("held_out", len(bars)-split.Index).
			Time("holdout_from", split.TestStart).Msg("Holding out trailing bars")
	case a.cfg.Validation.Enabled():
		a.log.Warn().Float64("ratio", a.cfg.Validation.HoldoutRatio).Int("min_test_bars", a.cfg.Validation.MinTestBars).
			Msg("Holdout too small, searching every bar")
	}
	validator := validation.NewHoldoutValidator(a.cfg.SignalSearch.Backtest, a.log)

	for _, id := range regimeIDs {
		if ctx.Err() != nil {
			a.log.Warn().Str("regime", id).Msg("Signal search cancelled before regime")
			return nil
		}
		if !covers(searchPeriods, id) {
			a.log.Warn().Str("regime", id).Msg("Regime labels no searched bar, skipped")
			continue
		}
		started := time.Now()
		a.log.Info().Str("regime", id).Int("combinations",
			len(a.cfg.SignalSearch.Indicators)*len(a.cfg.SignalSearch.Sides)*len(a.cfg.SignalSearch.Purposes)).
			Msg("Signal search started")
		res, err := opt.Optimize(ctx, searchBars, id, searchPeriods)
		if err != nil {
			return a.fail(err)
		}
		selections := res.Selections()
		a.log.Info().Str("regime", id).Int("selected", len(selections)).Bool("cancelled", res.Cancelled).
			Str("elapsed", common.FormatDuration(time.Since(started))).Msg("Signal search finished")

		meta := a.meta(results.StageSignal, "signals_"+strings.ToLower(id), bars)
		var written []string
		if len(selections) > 0 {
			path := a.artifactPath(meta, fmt.Sprintf(config.IndicatorSetFile, strings.ToLower(id)))
			exported, err := results.ExportIndicatorSet(path, meta, id, selections, cls.PeriodsCopy())
			if err != nil {
				return a.fail(err)
			}
			meta = exported.Meta
			written = append(written, path)
		} else {
			a.log.Warn().Str("regime", id).Msg("No signal traded in this regime, nothing exported")
		}

		legs := legsOf(selections)
		bt, err := a.backtestLegs(bars, cls, id, legs)
		if err != nil {
			return a.fail(err)
		}
		files, err := a.reports.ReportSignalSearch(meta, id, selections, periodsOf(cls.Periods, id), bt)
		if err != nil {
			return a.fail(err)
		}
		a.printWritten(append(written, files...))

		if holdout && len(legs) > 0 {
			summary, err := validator.Validate(bars, cls.Labels, regime.Mask(cls.Periods, id, len(bars)), split, id, legs)
			if err != nil {
				return a.fail(err)
			}
			a.reports.ReportHoldout(summary)
			if summary.OverfittingRisk == validation.RiskHigh {
				a.notify(notifications.LevelWarning, "%s signals degrade %.1f%% on held-out bars", id, summary.ReturnDegradation)
			}
		}
		a.notify(notifications.LevelSuccess, "%s signal search finished: %d selections, %d trades",
			id, len(selections), bt.Metrics.TotalTrades)
	}
	return nil
}

// legsOf pairs the selected entry of each side with its selected exit;
// a nil exit replays the entry's opposite rule
func legsOf(selections []results.SignalSelection) []validation.Leg {
	var legs []validation.Leg
	for _, side := range types.Sides {
		var leg *validation.Leg
		var exit *backtest.SignalConfig
		for _, s := range selections {
			if s.Side != side {
				continue
			}
			switch s.Purpose {
			case types.PurposeEntry:
				leg = &validation.Leg{Entry: s.Signal}
			case types.PurposeExit:
				sig := s.Signal
				exit = &sig
			}
		}
		if leg != nil {
			leg.Exit = exit
			legs = append(legs, *leg)
		}
	}
	return legs
}

// backtestLegs replays every leg inside the regime over the full series
func (a *app) backtestLegs(bars []types.OHLCV, cls *regime.Result, regimeID string, legs []validation.Leg) (*backtest.Result, error) {
	bt := backtest.New(a.cfg.SignalSearch.Backtest, backtest.WithLogger(a.log))
	opts := backtest.SessionOptions{Mask: regime.Mask(cls.Periods, regimeID, len(bars)), Labels: cls.Labels}
	combined := &backtest.Result{}
	for _, leg := range legs {
		entry := leg.Entry
		res, err := bt.Run(bars, &entry, leg.Exit, opts)
		if err != nil {
			return nil, err
		}
		combined.Trades = append(combined.Trades, res.Trades...)
		combined.Faults += res.Faults
	}
	sort.SliceStable(combined.Trades, func(i, j int) bool {
		return combined.Trades[i].EntryTime.Before(combined.Trades[j].EntryTime)
	})
	combined.Metrics = backtest.Calculate(combined.Trades, cls.Labels, a.cfg.SignalSearch.Backtest.PositionSize)
	return combined, nil
}

// loadRegimeArtifact reads the Stage-1 output; an empty path uses the
// default location for the configured symbol and interval
func (a *app) loadRegimeArtifact(path string, bars []types.OHLCV) (*results.RegimeArtifact, error) {
	if path == "" {
		path = a.artifactPath(a.meta(results.StageRegime, "", bars), config.SelectedRegimeFile)
	}
	artifact, err := results.LoadRegimeArtifact(path)
	if err != nil {
		return nil, a.fail(err)
	}
	a.log.Info().Str("path", path).Int("regimes", len(artifact.Regimes)).Msg("Regime configuration loaded")
	return artifact, nil
}

func covers(periods []regime.Period, regimeID string) bool {
	for _, p := range periods {
		if p.RegimeID == regimeID {
			return true
		}
	}
	return false
}

func periodsOf(periods []regime.Period, regimeID string) []regime.Period {
	var out []regime.Period
	for _, p := range periods {
		if p.RegimeID == regimeID {
			out = append(out, p)
		}
	}
	return out
}

func (a *app) printWritten(paths []string) {
	for _, p := range paths {
		a.printf("wrote %s\n", p)
	}
}
