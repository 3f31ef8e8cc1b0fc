package backtest

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/monitoring"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// ExitReason explains why a trade was closed
type ExitReason string

const (
	ExitSignal    ExitReason = "signal"
	ExitHorizon   ExitReason = "horizon"
	ExitEndOfData ExitReason = "end_of_data"
)

// Config holds the simulation costs and limits
type Config struct {
	FeeRate        float64 `json:"fee_rate" yaml:"fee_rate" default:"0.001" validate:"gte=0,lt=1"`
	SlippageRate   float64 `json:"slippage_rate" yaml:"slippage_rate" default:"0.0005" validate:"gte=0,lt=1"`
	MaxHoldingBars int     `json:"max_holding_bars" yaml:"max_holding_bars" default:"48" validate:"gte=1"`
	PositionSize   float64 `json:"position_size" yaml:"position_size" default:"1000" validate:"gt=0"`
}

// DefaultConfig returns the default simulation settings
func DefaultConfig() Config {
	return Config{FeeRate: 0.001, SlippageRate: 0.0005, MaxHoldingBars: 48, PositionSize: 1000}
}

// Trade is one closed simulated position
type Trade struct {
	EntryTime  time.Time  `json:"entry_time"`
	ExitTime   time.Time  `json:"exit_time"`
	EntryIdx   int        `json:"entry_idx"`
	ExitIdx    int        `json:"exit_idx"`
	Side       types.Side `json:"side"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  float64    `json:"exit_price"`
	Quantity   float64    `json:"quantity"`
	Fees       float64    `json:"fees"`
	PnL        float64    `json:"pnl"`
	ReturnPct  float64    `json:"return_pct"`
	ExitReason ExitReason `json:"exit_reason"`
	RegimeIDs  []string   `json:"regime_ids,omitempty"`
}

// Result is the outcome of a full simulation
type Result struct {
	Trades  []Trade
	Metrics Metrics
	// Faults counts bars where a signal was skipped because of a runtime fault
	Faults int
}

// Backtester simulates single-indicator signal rules
type Backtester struct {
	cfg Config
	log zerolog.Logger
}

// Option configures a Backtester
type Option func(*Backtester)

// WithLogger sets the logger used for fault reporting
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backtester) { b.log = l }
}

// New creates a backtester
func New(cfg Config, opts ...Option) *Backtester {
	b := &Backtester{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Config returns the simulation settings
func (b *Backtester) Config() Config { return b.cfg }

// SessionOptions restrict a simulation
type SessionOptions struct {
	// Mask allows entries only on bars where it is true; nil allows every bar
	Mask []bool
	// Labels are per-bar regime labels used for trade attribution
	Labels []string
}

// Run simulates entry/exit over bars. A nil entry opens a position at the
// first bar of every masked run; a nil exit uses the entry rule's opposite.
func (b *Backtester) Run(bars []types.OHLCV, entry, exit *SignalConfig, opts SessionOptions) (*Result, error) {
	s, err := b.NewSession(bars, entry, exit, opts)
	if err != nil {
		return nil, err
	}
	s.Advance(len(bars))
	return s.Finish(), nil
}

type position struct {
	side       types.Side
	entryIdx   int
	entryPrice float64
	quantity   float64
	entryFee   float64
}

type pendingAction int

const (
	pendingNone pendingAction = iota
	pendingEntry
	pendingExit
)

// Session is a simulation that can be advanced in steps, so that a caller
// can inspect partial metrics and stop early
type Session struct {
	cfg    Config
	bars   []types.OHLCV
	side   types.Side
	entry  []bool
	exit   []bool
	mask   []bool
	labels []string
	faults int

	pos     *position
	pending pendingAction
	next    int
	trades  []Trade
	done    bool
}

// NewSession prepares signal series for a simulation
func (b *Backtester) NewSession(bars []types.OHLCV, entry, exit *SignalConfig, opts SessionOptions) (*Session, error) {
	if entry == nil && exit == nil {
		return nil, errors.NewConfigError("backtest", "signals", "an entry or exit signal is required")
	}
	if opts.Mask != nil && len(opts.Mask) != len(bars) {
		return nil, errors.NewConfigError("backtest", "mask", "mask covers %d bars, series has %d", len(opts.Mask), len(bars))
	}
	if opts.Labels != nil && len(opts.Labels) != len(bars) {
		return nil, errors.NewConfigError("backtest", "labels", "labels cover %d bars, series has %d", len(opts.Labels), len(bars))
	}
	if entry != nil && entry.Purpose != types.PurposeEntry {
		return nil, errors.NewConfigError("backtest", "entry.purpose", "entry signal has purpose %q", entry.Purpose)
	}
	if exit != nil && exit.Purpose != types.PurposeExit {
		return nil, errors.NewConfigError("backtest", "exit.purpose", "exit signal has purpose %q", exit.Purpose)
	}

	if exit == nil {
		opposite := entry.Opposite()
		exit = &opposite
	}
	side := exit.Side
	if entry != nil {
		side = entry.Side
		if exit.Side != side {
			return nil, errors.NewConfigError("backtest", "side", "entry is %s but exit is %s", entry.Side, exit.Side)
		}
	}

	s := &Session{cfg: b.cfg, bars: bars, side: side, mask: opts.Mask, labels: opts.Labels}

	var err error
	if entry != nil {
		if s.entry, s.faults, err = b.signalSeries(bars, *entry, "entry"); err != nil {
			return nil, err
		}
	} else {
		s.entry = runStarts(opts.Mask, len(bars))
	}
	exitSeries, faults, err := b.signalSeries(bars, *exit, "exit")
	if err != nil {
		return nil, err
	}
	s.exit = exitSeries
	s.faults += faults
	return s, nil
}

// runStarts marks the first bar of every masked run
func runStarts(mask []bool, n int) []bool {
	out := make([]bool, n)
	if mask == nil {
		if n > 0 {
			out[0] = true
		}
		return out
	}
	for i := range mask {
		out[i] = mask[i] && (i == 0 || !mask[i-1])
	}
	return out
}

// signalSeries evaluates a rule on every bar through the shared condition
// evaluator. Warmup bars are false; runtime faults are counted and false.
func (b *Backtester) signalSeries(bars []types.OHLCV, sig SignalConfig, id string) ([]bool, int, error) {
	def, node, err := sig.Build(id)
	if err != nil {
		return nil, 0, err
	}
	frame, err := indicators.Compute(bars, []indicators.Definition{def})
	if err != nil {
		return nil, 0, err
	}

	out := make([]bool, len(bars))
	faults := 0
	var prev indicators.Snapshot
	for i := range bars {
		cur := frame.Snapshot(i)
		ok, err := conditions.Evaluate(node, conditions.Context{Current: cur, Previous: prev, Bar: i})
		prev = cur
		if err != nil {
			var fault *errors.RuntimeFault
			switch {
			case conditions.IsWarmup(err):
				continue
			case stderrors.As(err, &fault):
				faults++
				monitoring.RecordRuntimeFault("backtest")
				b.log.Warn().Err(err).Str("signal", id).Int("bar", i).Msg("signal evaluation fault")
				continue
			default:
				return nil, 0, fmt.Errorf("%s signal at bar %d: %w", id, i, err)
			}
		}
		out[i] = ok
	}
	return out, faults, nil
}

// Len returns the number of bars in the session
func (s *Session) Len() int { return len(s.bars) }

// Position returns the index of the next bar to simulate
func (s *Session) Position() int { return s.next }

// Advance simulates bars up to (excluding) to
func (s *Session) Advance(to int) {
	if to > len(s.bars) {
		to = len(s.bars)
	}
	for i := s.next; i < to; i++ {
		s.step(i)
	}
	if to > s.next {
		s.next = to
	}
}

func (s *Session) step(i int) {
	bar := s.bars[i]

	// orders scheduled on the previous close fill at this open
	switch s.pending {
	case pendingExit:
		if s.pos != nil {
			s.close(i, bar.Open, ExitSignal)
		}
	case pendingEntry:
		if s.pos == nil {
			s.open(i, bar.Open)
		}
	}
	s.pending = pendingNone

	if s.pos != nil && i-s.pos.entryIdx >= s.cfg.MaxHoldingBars {
		s.close(i, bar.Close, ExitHorizon)
	}

	if i+1 >= len(s.bars) {
		return
	}
	switch {
	case s.pos != nil && s.exit[i]:
		s.pending = pendingExit
	case s.pos == nil && s.entry[i] && (s.mask == nil || s.mask[i]):
		s.pending = pendingEntry
	}
}

func (s *Session) fill(price float64, opening bool) float64 {
	adverse := s.side == types.SideLong
	if !opening {
		adverse = !adverse
	}
	if adverse {
		return price * (1 + s.cfg.SlippageRate)
	}
	return price * (1 - s.cfg.SlippageRate)
}

func (s *Session) open(i int, price float64) {
	fill := s.fill(price, true)
	if fill <= 0 {
		return
	}
	qty := s.cfg.PositionSize / fill
	s.pos = &position{
		side:       s.side,
		entryIdx:   i,
		entryPrice: fill,
		quantity:   qty,
		entryFee:   fill * qty * s.cfg.FeeRate,
	}
}

func (s *Session) close(i int, price float64, reason ExitReason) {
	p := s.pos
	fill := s.fill(price, false)
	exitFee := fill * p.quantity * s.cfg.FeeRate
	fees := p.entryFee + exitFee
	pnl := p.side.Sign()*(fill-p.entryPrice)*p.quantity - fees
	notional := p.entryPrice * p.quantity

	s.trades = append(s.trades, Trade{
		EntryTime:  s.bars[p.entryIdx].Timestamp,
		ExitTime:   s.bars[i].Timestamp,
		EntryIdx:   p.entryIdx,
		ExitIdx:    i,
		Side:       p.side,
		EntryPrice: p.entryPrice,
		ExitPrice:  fill,
		Quantity:   p.quantity,
		Fees:       fees,
		PnL:        pnl,
		ReturnPct:  pnl / notional * 100,
		ExitReason: reason,
		RegimeIDs:  s.regimesBetween(p.entryIdx, i),
	})
	s.pos = nil
}

func (s *Session) regimesBetween(from, to int) []string {
	if s.labels == nil {
		return nil
	}
	var out []string
	for i := from; i <= to; i++ {
		if len(out) == 0 || out[len(out)-1] != s.labels[i] {
			if !containsString(out, s.labels[i]) {
				out = append(out, s.labels[i])
			}
		}
	}
	return out
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// Metrics returns metrics over the trades closed so far
func (s *Session) Metrics() Metrics {
	return Calculate(s.trades, s.labels, s.cfg.PositionSize)
}

// Finish simulates the remaining bars, closes any open position at the last
// close and returns the result. Further calls return the same result.
func (s *Session) Finish() *Result {
	if !s.done {
		s.Advance(len(s.bars))
		if s.pos != nil {
			last := len(s.bars) - 1
			s.close(last, s.bars[last].Close, ExitEndOfData)
		}
		s.done = true
	}
	trades := append([]Trade(nil), s.trades...)
	return &Result{Trades: trades, Metrics: Calculate(trades, s.labels, s.cfg.PositionSize), Faults: s.faults}
}
