package regime

import (
	stderrors "errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Options tune a classification run
type Options struct {
	// Scope selects entry-only or exit-only definitions; empty means all
	Scope  Scope
	Logger *zerolog.Logger
}

func (o Options) logger() zerolog.Logger {
	if o.Logger == nil {
		return zerolog.Nop()
	}
	return *o.Logger
}

// Result is the outcome of classifying a bar series
type Result struct {
	Labels  []string
	Periods []Period
	// Faults counts regime evaluations skipped because of a runtime fault
	Faults int
}

// PeriodsCopy returns a copy of the periods for read-only collaborators
func (r *Result) PeriodsCopy() []Period {
	return append([]Period(nil), r.Periods...)
}

// Classifier assigns labels bar by bar. It holds no per-bar state, so the
// batch and incremental paths share it.
type Classifier struct {
	ordered []Definition
	log     zerolog.Logger
	faults  int
}

// NewClassifier validates cfg and prepares the evaluation order
func NewClassifier(cfg Config, opts Options) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	ordered := cfg.Ordered(opts.Scope)
	for i := range ordered {
		ordered[i] = ordered[i].Clone()
	}
	return &Classifier{ordered: ordered, log: opts.logger()}, nil
}

// Faults returns the number of isolated runtime faults so far
func (c *Classifier) Faults() int { return c.faults }

// Label returns the first matching regime in priority order, or Unknown.
// Configuration and evaluation errors abort; warmup leaves a regime
// inactive; runtime faults are logged and leave the regime inactive for
// this bar only.
func (c *Classifier) Label(ctx conditions.Context) (string, error) {
	for _, def := range c.ordered {
		ok, err := conditions.Evaluate(def.Conditions, ctx)
		if err != nil {
			if conditions.IsWarmup(err) {
				continue
			}
			var fault *errors.RuntimeFault
			if stderrors.As(err, &fault) {
				c.faults++
				monitoring.RecordRuntimeFault("regime")
				c.log.Warn().Err(err).Str("regime", def.ID).Int("bar", ctx.Bar).Msg("regime evaluation fault, treating regime as inactive")
				continue
			}
			return "", fmt.Errorf("regime %s at bar %d: %w", def.ID, ctx.Bar, err)
		}
		if ok {
			return def.ID, nil
		}
	}
	return Unknown, nil
}

// LabelFrame labels bars [from, to) of a computed frame into labels
func (c *Classifier) LabelFrame(frame *indicators.Frame, from, to int, labels []string) error {
	var prev indicators.Snapshot
	if from > 0 {
		prev = frame.Snapshot(from - 1)
	}
	for i := from; i < to; i++ {
		cur := frame.Snapshot(i)
		label, err := c.Label(conditions.Context{Current: cur, Previous: prev, Bar: i})
		if err != nil {
			return err
		}
		labels[i] = label
		prev = cur
	}
	return nil
}

// Classify labels every bar of bars under cfg. It has no side effects on
// its inputs.
func Classify(cfg Config, bars []types.OHLCV, opts Options) (*Result, error) {
	c, err := NewClassifier(cfg, opts)
	if err != nil {
		return nil, err
	}
	frame, err := indicators.Compute(bars, cfg.Indicators)
	if err != nil {
		return nil, err
	}

	labels := make([]string, len(bars))
	if err := c.LabelFrame(frame, 0, len(bars), labels); err != nil {
		return nil, err
	}
	return &Result{Labels: labels, Periods: Periods(labels, bars), Faults: c.faults}, nil
}

// Tracker classifies a live series one bar at a time. Its labels equal those
// of Classify over the same bars.
type Tracker struct {
	classifier *Classifier
	stream     *indicators.Stream
	prev       indicators.Snapshot
	bars       []types.OHLCV
	labels     []string
}

// NewTracker validates cfg and returns an empty tracker
func NewTracker(cfg Config, opts Options) (*Tracker, error) {
	c, err := NewClassifier(cfg, opts)
	if err != nil {
		return nil, err
	}
	stream, err := indicators.NewStream(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	return &Tracker{classifier: c, stream: stream}, nil
}

// Push classifies the next bar
func (t *Tracker) Push(bar types.OHLCV) (string, error) {
	snap, err := t.stream.Push(bar)
	if err != nil {
		return "", err
	}
	idx := len(t.bars)
	label, err := t.classifier.Label(conditions.Context{Current: snap, Previous: t.prev, Bar: idx})
	if err != nil {
		return "", err
	}
	t.prev = snap
	t.bars = append(t.bars, bar)
	t.labels = append(t.labels, label)
	return label, nil
}

// Labels returns a copy of the labels so far
func (t *Tracker) Labels() []string {
	return append([]string(nil), t.labels...)
}

// Result returns labels and periods so far
func (t *Tracker) Result() *Result {
	labels := t.Labels()
	return &Result{Labels: labels, Periods: Periods(labels, t.bars), Faults: t.classifier.faults}
}
