package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/results"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Stage labels used in metrics and progress
const (
	StageRegime = "regime"
	StageSignal = "signal"
)

// RegimeSearchConfig configures a Stage-1 run
type RegimeSearchConfig struct {
	Study  string `json:"study" yaml:"study" default:"regimes"`
	Trials int    `json:"trials" yaml:"trials" default:"150" validate:"gte=1"`
	// Chunks is the number of resource steps a trial is evaluated in
	Chunks  int               `json:"chunks" yaml:"chunks" default:"10" validate:"gte=1,lte=100"`
	Sampler TPEConfig         `json:"sampler" yaml:"sampler"`
	Pruner  HyperbandConfig   `json:"pruner" yaml:"pruner"`
	Score   RegimeScoreConfig `json:"score" yaml:"score"`
}

// DefaultRegimeSearchConfig returns 150 trials over 10 resource steps
func DefaultRegimeSearchConfig() RegimeSearchConfig {
	return RegimeSearchConfig{
		Study:   "regimes",
		Trials:  150,
		Chunks:  10,
		Sampler: DefaultTPEConfig(),
		Pruner:  DefaultHyperbandConfig(),
		Score:   DefaultRegimeScoreConfig(),
	}
}

// Option configures an optimizer
type Option func(*runOptions)

type runOptions struct {
	storage  Storage
	log      zerolog.Logger
	progress ProgressFunc
}

func buildOptions(opts []Option) runOptions {
	o := runOptions{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.storage == nil {
		o.storage = NewMemoryStorage()
	}
	return o
}

// WithStorage persists trials in s instead of process memory
func WithStorage(s Storage) Option {
	return func(o *runOptions) { o.storage = s }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(o *runOptions) { o.log = l }
}

// WithProgress registers a progress callback. It runs on its own goroutine
// and may miss intermediate snapshots.
func WithProgress(fn ProgressFunc) Option {
	return func(o *runOptions) { o.progress = fn }
}

// RegimeOptimizer searches the parameters of a regime template for the
// labelling with the best regime-quality score
type RegimeOptimizer struct {
	template regime.Config
	space    SearchSpace
	cfg      RegimeSearchConfig
	pruner   *HyperbandPruner
	opts     runOptions
}

// NewRegimeOptimizer validates the template and the search settings
func NewRegimeOptimizer(template regime.Config, cfg RegimeSearchConfig, opts ...Option) (*RegimeOptimizer, error) {
	if err := template.ValidateTemplate(); err != nil {
		return nil, err
	}
	if err := cfg.Score.Validate(); err != nil {
		return nil, err
	}
	if cfg.Trials < 1 || cfg.Chunks < 1 {
		return nil, errors.NewConfigError("optimization", "regime_search", "trials and chunks must be positive")
	}
	if cfg.Study == "" {
		cfg.Study = "regimes"
	}
	space, err := RegimeSearchSpace(template)
	if err != nil {
		return nil, err
	}
	pruner, err := NewHyperbandPruner(cfg.Pruner)
	if err != nil {
		return nil, err
	}
	return &RegimeOptimizer{
		template: template.Clone(),
		space:    space,
		cfg:      cfg,
		pruner:   pruner,
		opts:     buildOptions(opts),
	}, nil
}

// Space returns the searched dimensions
func (o *RegimeOptimizer) Space() SearchSpace { return o.space }

// Template returns a copy of the searched template
func (o *RegimeOptimizer) Template() regime.Config { return o.template.Clone() }

// RegimeSearchResult is the outcome of a Stage-1 run
type RegimeSearchResult struct {
	Study   string
	Results *results.Manager
	Best    FrozenTrial
	HasBest bool
	// Cancelled is set when the run stopped before its trial budget
	Cancelled bool
}

// Optimize runs the search over bars. Trials run one after another; on
// cancellation the result holds every trial finished so far.
func (o *RegimeOptimizer) Optimize(ctx context.Context, bars []types.OHLCV) (*RegimeSearchResult, error) {
	if len(bars) == 0 {
		return nil, errors.NewConfigError("optimization", "bars", "no bars to classify")
	}
	study, err := NewStudy(ctx, o.cfg.Study, o.space, StudyOptions{
		Sampler: NewTPESampler(o.cfg.Sampler),
		Pruner:  o.pruner,
		Storage: o.opts.storage,
	})
	if err != nil {
		return nil, err
	}

	out := &RegimeSearchResult{Study: study.Name(), Results: results.NewManager()}
	for _, t := range study.Trials() {
		out.Results.AddTrial(trialRecord(t, map[string]interface{}{"resumed": true}))
	}
	remaining := o.cfg.Trials - len(study.Trials())

	reporter := newProgressReporter(o.opts.progress)
	defer reporter.close()

	log := o.opts.log.With().Str("stage", StageRegime).Str("study", study.Name()).Logger()
	log.Info().Int("trials", o.cfg.Trials).Int("resumed", o.cfg.Trials-max(remaining, 0)).
		Int("dimensions", len(o.space)).Int("bars", len(bars)).Msg("regime search started")

	best := math.Inf(-1)
	if b, ok := study.Best(); ok {
		best = b.Value
	}
	for i := 0; i < remaining; i++ {
		if ctx.Err() != nil {
			out.Cancelled = true
			break
		}
		trial, err := study.SuggestParams(ctx)
		if err != nil {
			out.Cancelled = true
			break
		}

		start := time.Now()
		value, state, metrics, err := o.evaluate(study, trial, bars)
		if err != nil {
			return out, fmt.Errorf("trial %d: %w", trial.Number, err)
		}
		ft, err := study.ReportResult(context.WithoutCancel(ctx), trial, state, value)
		if err != nil {
			return out, err
		}
		out.Results.AddTrial(trialRecord(ft, metrics))
		monitoring.RecordTrial(StageRegime, string(state), time.Since(start))

		if state != TrialFailed && value > best {
			best = value
			monitoring.UpdateBestScore(study.Name(), best)
		}
		log.Debug().Int("trial", trial.Number).Str("state", string(state)).Float64("score", value).Msg("trial finished")
		reporter.publish(Progress{
			Stage: StageRegime, Study: study.Name(), Trial: trial.Number + 1,
			Total: o.cfg.Trials, BestScore: best, State: state,
		})
	}

	out.Best, out.HasBest = study.Best()
	log.Info().Int("trials", out.Results.Len()).Float64("best", out.Best.Value).Bool("cancelled", out.Cancelled).
		Msg("regime search finished")
	return out, nil
}

// evaluate classifies bars under the trial's parameters in resource steps.
// Sampled combinations the configuration rejects become failed trials;
// evaluation errors abort the run.
func (o *RegimeOptimizer) evaluate(study Study, t *Trial, bars []types.OHLCV) (float64, TrialState, map[string]interface{}, error) {
	cfg, err := o.template.Bind(t.Params)
	if err != nil {
		return o.rejected(t, err)
	}
	frame, err := indicators.Compute(bars, cfg.Indicators)
	if err != nil {
		return o.rejected(t, err)
	}
	clf, err := regime.NewClassifier(cfg, regime.Options{Logger: &o.opts.log})
	if err != nil {
		return o.rejected(t, err)
	}

	n := len(bars)
	labels := make([]string, n)
	defined := cfg.RegimeIDs()
	var score RegimeScore
	from := 0
	for c := 1; c <= o.cfg.Chunks; c++ {
		to := n * c / o.cfg.Chunks
		if err := clf.LabelFrame(frame, from, to, labels); err != nil {
			return 0, TrialFailed, nil, err
		}
		from = to

		score = ScoreRegimes(labels[:to], defined, o.cfg.Score)
		resource := o.cfg.Pruner.MaxResource * c / o.cfg.Chunks
		study.Report(t, resource, score.Score)
		if c < o.cfg.Chunks && study.ShouldPrune(t) {
			metrics := score.Metrics()
			metrics["pruned_at"] = resource
			return score.Score, TrialPruned, metrics, nil
		}
	}

	monitoring.RecordClassified(score.Summary.Distribution)
	metrics := score.Metrics()
	metrics["faults"] = clf.Faults()
	return score.Score, TrialComplete, metrics, nil
}

func (o *RegimeOptimizer) rejected(t *Trial, err error) (float64, TrialState, map[string]interface{}, error) {
	if errors.CategoryOf(err) != errors.ErrorCategoryConfiguration {
		return 0, TrialFailed, nil, err
	}
	o.opts.log.Debug().Err(err).Int("trial", t.Number).Msg("sampled parameters rejected")
	return 0, TrialFailed, map[string]interface{}{"error": err.Error()}, nil
}

// trialRecord converts a study trial for the results manager
func trialRecord(t FrozenTrial, metrics map[string]interface{}) results.Trial {
	return results.Trial{
		TrialNumber: t.Number,
		Params:      t.Params,
		Score:       t.Value,
		Metrics:     metrics,
		State:       string(t.State),
		Timestamp:   t.Finished.UTC(),
	}
}
