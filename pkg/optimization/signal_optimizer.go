package optimization

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync/atomic"
	"time"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// SignalSearchConfig configures a Stage-2 search
type SignalSearchConfig struct {
	Trials  int `json:"trials" yaml:"trials" default:"60" validate:"gte=1"`
	Chunks  int `json:"chunks" yaml:"chunks" default:"10" validate:"gte=1,lte=100"`
	Workers int `json:"workers" yaml:"workers" default:"4" validate:"gte=0"`
	// Indicators lists the kinds searched for every side and purpose
	Indicators []indicators.Kind `json:"indicators" yaml:"indicators"`
	Sides      []types.Side      `json:"sides" yaml:"sides"`
	Purposes   []types.Purpose   `json:"purposes" yaml:"purposes"`
	Sampler    TPEConfig         `json:"sampler" yaml:"sampler"`
	Pruner     HyperbandConfig   `json:"pruner" yaml:"pruner"`
	Backtest   backtest.Config   `json:"backtest" yaml:"backtest"`
}

// DefaultSignalKinds are the kinds searched when none are configured
var DefaultSignalKinds = []indicators.Kind{
	indicators.KindRSI, indicators.KindMACD, indicators.KindBollinger, indicators.KindEMA, indicators.KindStochastic,
}

// DefaultSignalSearchConfig searches every side and purpose
func DefaultSignalSearchConfig() SignalSearchConfig {
	return SignalSearchConfig{
		Trials:     60,
		Chunks:     10,
		Workers:    4,
		Indicators: append([]indicators.Kind(nil), DefaultSignalKinds...),
		Sides:      append([]types.Side(nil), types.Sides...),
		Purposes:   append([]types.Purpose(nil), types.Purposes...),
		Sampler:    DefaultTPEConfig(),
		Pruner:     DefaultHyperbandConfig(),
		Backtest:   backtest.DefaultConfig(),
	}
}

// IndicatorSetOptimizer searches signal parameters per regime, independently
// for every (indicator, side, purpose) combination
type IndicatorSetOptimizer struct {
	cfg        SignalSearchConfig
	backtester *backtest.Backtester
	pruner     *HyperbandPruner
	opts       runOptions
}

// NewIndicatorSetOptimizer validates the search settings
func NewIndicatorSetOptimizer(cfg SignalSearchConfig, opts ...Option) (*IndicatorSetOptimizer, error) {
	if cfg.Trials < 1 || cfg.Chunks < 1 {
		return nil, errors.NewConfigError("optimization", "signal_search", "trials and chunks must be positive")
	}
	if len(cfg.Indicators) == 0 {
		cfg.Indicators = append([]indicators.Kind(nil), DefaultSignalKinds...)
	}
	if len(cfg.Sides) == 0 {
		cfg.Sides = append([]types.Side(nil), types.Sides...)
	}
	if len(cfg.Purposes) == 0 {
		cfg.Purposes = append([]types.Purpose(nil), types.Purposes...)
	}
	for _, k := range cfg.Indicators {
		if !backtest.Searchable(k) {
			return nil, errors.NewConfigError("optimization", "signal_search.indicators", "%s has no signal rule", k)
		}
	}
	for _, s := range cfg.Sides {
		if _, err := types.ParseSide(string(s)); err != nil {
			return nil, errors.WrapConfigError(err, "optimization", "signal_search.sides")
		}
	}
	for _, p := range cfg.Purposes {
		if _, err := types.ParsePurpose(string(p)); err != nil {
			return nil, errors.WrapConfigError(err, "optimization", "signal_search.purposes")
		}
	}
	pruner, err := NewHyperbandPruner(cfg.Pruner)
	if err != nil {
		return nil, err
	}
	o := &IndicatorSetOptimizer{cfg: cfg, pruner: pruner, opts: buildOptions(opts)}
	o.backtester = backtest.New(cfg.Backtest, backtest.WithLogger(o.opts.log))
	return o, nil
}

// SignalRun is the outcome of one (indicator, side, purpose) search
type SignalRun struct {
	Study       string
	RegimeID    string
	Kind        indicators.Kind
	Side        types.Side
	Purpose     types.Purpose
	Results     *results.Manager
	Best        backtest.SignalConfig
	BestTrial   int
	BestScore   float64
	BestMetrics backtest.Metrics
	HasBest     bool
	Cancelled   bool
	Err         error
}

// SignalSearchResult collects the runs of one regime
type SignalSearchResult struct {
	RegimeID  string
	Runs      []SignalRun
	Cancelled bool
}

// Best returns the best run for a side and purpose across indicator kinds;
// ties keep the earlier kind
func (r *SignalSearchResult) Best(side types.Side, purpose types.Purpose) (SignalRun, bool) {
	var best SignalRun
	found := false
	for _, run := range r.Runs {
		if run.Side != side || run.Purpose != purpose || !run.HasBest {
			continue
		}
		if !found || run.BestScore > best.BestScore {
			best, found = run, true
		}
	}
	return best, found
}

// Selections returns the best signal per side and purpose that traded at
// least once and marks its trial selected in the winning run's results
func (r *SignalSearchResult) Selections() []results.SignalSelection {
	var out []results.SignalSelection
	for _, side := range types.Sides {
		for _, purpose := range types.Purposes {
			run, ok := r.Best(side, purpose)
			if !ok || run.BestScore <= NoTradeScore {
				continue
			}
			rank := 0
			for _, rr := range run.Results.RankResults() {
				if rr.TrialNumber == run.BestTrial {
					rank = rr.Rank
					break
				}
			}
			sel, err := run.Results.SelectResult(rank)
			if err != nil {
				continue
			}
			out = append(out, results.SignalSelection{
				Side:    side,
				Purpose: purpose,
				Signal:  run.Best.Clone(),
				Score:   run.BestScore,
				Rank:    sel.Rank,
				Study:   run.Study,
				Metrics: run.BestMetrics.AsMap(),
			})
		}
	}
	return out
}

type signalJob struct {
	kind    indicators.Kind
	side    types.Side
	purpose types.Purpose
}

func (j signalJob) study(regimeID string) string {
	return fmt.Sprintf("%s_%s_%s_%s", regimeID, j.kind, j.side, j.purpose)
}

// Optimize searches every configured combination for regimeID. Entries are
// restricted to the regime's periods; runs execute in parallel, each with its
// own study and results manager.
func (o *IndicatorSetOptimizer) Optimize(ctx context.Context, bars []types.OHLCV, regimeID string, periods []regime.Period) (*SignalSearchResult, error) {
	mask := regime.Mask(periods, regimeID, len(bars))
	active := false
	for _, m := range mask {
		if m {
			active = true
			break
		}
	}
	if !active {
		return nil, errors.NewConfigError("optimization", "regime", "regime %q covers no bar of the series", regimeID)
	}
	labels := regime.Expand(periods, len(bars))

	var specs []signalJob
	for _, purpose := range o.cfg.Purposes {
		for _, side := range o.cfg.Sides {
			for _, kind := range o.cfg.Indicators {
				specs = append(specs, signalJob{kind: kind, side: side, purpose: purpose})
			}
		}
	}

	reporter := newProgressReporter(o.opts.progress)
	defer reporter.close()
	var finished int64
	total := len(specs) * o.cfg.Trials
	tick := func(study string, trials int, best float64, state TrialState) {
		n := atomic.AddInt64(&finished, int64(trials))
		reporter.publish(Progress{Stage: StageSignal, Study: study, Trial: int(n), Total: total, BestScore: best, State: state})
	}

	// managers outlive their jobs so that trials saved before a
	// cancellation are reported even for runs without a pool result
	managers := make([]*results.Manager, len(specs))
	jobs := make([]Job[SignalRun], len(specs))
	for i, spec := range specs {
		i, spec := i, spec
		managers[i] = results.NewManager()
		jobs[i] = Job[SignalRun]{
			ID: spec.study(regimeID),
			Run: func(ctx context.Context) (SignalRun, error) {
				run := o.runOne(ctx, spec, regimeID, bars, mask, labels, managers[i], tick)
				return run, run.Err
			},
		}
	}
	pool := RunParallel(ctx, o.cfg.Workers, jobs)

	out := &SignalSearchResult{RegimeID: regimeID}
	for i, r := range pool {
		run := r.Value
		if run.Results == nil {
			run = SignalRun{
				Study: specs[i].study(regimeID), RegimeID: regimeID, Kind: specs[i].kind,
				Side: specs[i].side, Purpose: specs[i].purpose, Results: managers[i],
				Cancelled: true, Err: r.Error, BestScore: NoTradeScore,
			}
		}
		if run.Cancelled {
			out.Cancelled = true
		}
		if run.Err != nil && !run.Cancelled {
			return out, fmt.Errorf("signal search %s: %w", run.Study, run.Err)
		}
		out.Runs = append(out.Runs, run)
	}
	sort.SliceStable(out.Runs, func(i, j int) bool { return out.Runs[i].Study < out.Runs[j].Study })
	return out, nil
}

func seedFor(base int64, key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return base ^ int64(h.Sum64()&math.MaxInt64)
}

// runOne searches one combination; the trial history stays local to the run
func (o *IndicatorSetOptimizer) runOne(ctx context.Context, job signalJob, regimeID string, bars []types.OHLCV, mask []bool, labels []string,
	mgr *results.Manager, tick func(study string, trials int, best float64, state TrialState)) SignalRun {
	name := job.study(regimeID)
	run := SignalRun{
		Study: name, RegimeID: regimeID, Kind: job.kind, Side: job.side, Purpose: job.purpose,
		Results: mgr, BestScore: NoTradeScore,
	}
	log := o.opts.log.With().Str("stage", StageSignal).Str("study", name).Logger()

	base := backtest.SignalParamSpecs(job.kind)
	space, err := SignalSearchSpace(base)
	if err != nil {
		run.Err = err
		return run
	}
	sampler := o.cfg.Sampler
	sampler.Seed = seedFor(sampler.Seed, name)
	study, err := NewStudy(ctx, name, space, StudyOptions{
		Sampler: NewTPESampler(sampler),
		Pruner:  o.pruner,
		Storage: o.opts.storage,
	})
	if err != nil {
		run.Err = err
		return run
	}
	for _, t := range study.Trials() {
		run.Results.AddTrial(trialRecord(t, map[string]interface{}{"resumed": true}))
	}
	if resumed := len(study.Trials()); resumed > 0 {
		tick(name, resumed, run.BestScore, "")
	}

	for i := len(study.Trials()); i < o.cfg.Trials; i++ {
		if ctx.Err() != nil {
			run.Cancelled = true
			break
		}
		trial, err := study.SuggestParams(ctx)
		if err != nil {
			run.Cancelled = true
			break
		}
		start := time.Now()
		sig := signalFromParams(job, base, trial.Params)
		value, state, m, err := o.evaluate(study, trial, sig, bars, mask, labels)
		if err != nil {
			run.Err = err
			break
		}
		ft, err := study.ReportResult(context.WithoutCancel(ctx), trial, state, value)
		if err != nil {
			run.Err = err
			break
		}
		metrics := m.AsMap()
		metrics["exit_reasons"] = m.ExitReasons
		run.Results.AddTrial(trialRecord(ft, metrics))
		monitoring.RecordTrial(StageSignal, string(state), time.Since(start))

		if state == TrialComplete && (!run.HasBest || value > run.BestScore) {
			run.Best, run.BestTrial, run.BestScore, run.HasBest = sig, trial.Number, value, true
			run.BestMetrics = m
			monitoring.UpdateBestScore(name, value)
		}
		tick(name, 1, run.BestScore, state)
		log.Debug().Int("trial", trial.Number).Str("state", string(state)).Float64("score", value).Msg("trial finished")
	}

	log.Info().Int("trials", run.Results.Len()).Float64("best", run.BestScore).Bool("cancelled", run.Cancelled).
		Msg("signal search finished")
	return run
}

// signalFromParams applies sampled values over the kind's defaults
func signalFromParams(job signalJob, base []indicators.ParameterSpec, params map[string]float64) backtest.SignalConfig {
	specs := indicators.CloneParams(base)
	for i, p := range specs {
		if v, ok := params[p.Name]; ok {
			specs[i] = p.WithValue(v)
		}
	}
	return backtest.SignalConfig{IndicatorType: job.kind, Params: specs, Side: job.side, Purpose: job.purpose}
}

// evaluate simulates the signal in resource steps, pruning on partial metrics
func (o *IndicatorSetOptimizer) evaluate(study Study, t *Trial, sig backtest.SignalConfig, bars []types.OHLCV, mask []bool, labels []string) (float64, TrialState, backtest.Metrics, error) {
	var entry, exit *backtest.SignalConfig
	if sig.Purpose == types.PurposeEntry {
		entry = &sig
	} else {
		exit = &sig
	}
	session, err := o.backtester.NewSession(bars, entry, exit, backtest.SessionOptions{Mask: mask, Labels: labels})
	if err != nil {
		if errors.CategoryOf(err) == errors.ErrorCategoryConfiguration {
			o.opts.log.Debug().Err(err).Int("trial", t.Number).Msg("sampled parameters rejected")
			return NoTradeScore, TrialFailed, backtest.Metrics{}, nil
		}
		return 0, TrialFailed, backtest.Metrics{}, err
	}

	n := session.Len()
	for c := 1; c < o.cfg.Chunks; c++ {
		session.Advance(n * c / o.cfg.Chunks)
		m := session.Metrics()
		resource := o.cfg.Pruner.MaxResource * c / o.cfg.Chunks
		study.Report(t, resource, ScoreSignal(m))
		if study.ShouldPrune(t) {
			return ScoreSignal(m), TrialPruned, m, nil
		}
	}
	res := session.Finish()
	score := ScoreSignal(res.Metrics)
	study.Report(t, o.cfg.Pruner.MaxResource, score)
	return score, TrialComplete, res.Metrics, nil
}
