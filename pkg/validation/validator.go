package validation

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// HoldoutValidator replays selected signals on the searched bars and on
// the held-out bars with the same backtest settings
type HoldoutValidator struct {
	cfg backtest.Config
	bt  *backtest.Backtester
	log zerolog.Logger
}

// NewHoldoutValidator creates a validator using cfg for both replays
func NewHoldoutValidator(cfg backtest.Config, log zerolog.Logger) *HoldoutValidator {
	return &HoldoutValidator{cfg: cfg, bt: backtest.New(cfg, backtest.WithLogger(log)), log: log}
}

// Validate compares the legs before and after split. mask marks the bars
// of regimeID; holdout entries see the full indicator history so they are
// warmed up at split.Index.
func (v *HoldoutValidator) Validate(bars []types.OHLCV, labels []string, mask []bool, split Split, regimeID string, legs []Leg) (*Summary, error) {
	if split.Index < 1 || split.Index >= len(bars) {
		return nil, errors.NewConfigError("validation", "split", "split index %d outside 1..%d", split.Index, len(bars)-1)
	}
	if len(mask) != len(bars) || len(labels) != len(bars) {
		return nil, errors.NewConfigError("validation", "mask", "mask and labels must cover all %d bars", len(bars))
	}

	var trainTrades, testTrades []backtest.Trade
	for _, leg := range legs {
		entry, exit := leg.Entry, leg.Exit
		train, err := v.bt.Run(bars[:split.Index], &entry, exit, backtest.SessionOptions{
			Mask:   mask[:split.Index],
			Labels: labels[:split.Index],
		})
		if err != nil {
			return nil, err
		}
		test, err := v.bt.Run(bars, &entry, exit, backtest.SessionOptions{
			Mask:   TestMask(mask, split.Index),
			Labels: labels,
		})
		if err != nil {
			return nil, err
		}
		trainTrades = append(trainTrades, train.Trades...)
		testTrades = append(testTrades, test.Trades...)
	}

	s := &Summary{
		RegimeID: regimeID,
		Split:    split,
		TestBars: len(bars) - split.Index,
		Train:    backtest.Calculate(trainTrades, labels[:split.Index], v.cfg.PositionSize),
		Test:     backtest.Calculate(testTrades, labels, v.cfg.PositionSize),
	}
	assess(s)

	v.log.Info().Str("regime", regimeID).
		Int("train_trades", s.Train.TotalTrades).Int("test_trades", s.Test.TotalTrades).
		Float64("train_avg_return", s.Train.AvgReturn).Float64("test_avg_return", s.Test.AvgReturn).
		Str("risk", s.OverfittingRisk).Msg("Holdout validation")
	return s, nil
}

// assess fills the degradation and risk fields
func assess(s *Summary) {
	if s.Train.TotalTrades == 0 || s.Test.TotalTrades == 0 {
		s.OverfittingRisk = RiskInsufficient
		return
	}
	s.ReturnDegradation = (s.Train.AvgReturn - s.Test.AvgReturn) / math.Max(0.01, math.Abs(s.Train.AvgReturn)) * 100
	s.IsRobust = s.ReturnDegradation <= 30
	switch {
	case s.ReturnDegradation > 50:
		s.OverfittingRisk = RiskHigh
	case s.ReturnDegradation > 20:
		s.OverfittingRisk = RiskModerate
	default:
		s.OverfittingRisk = RiskLow
	}
}
