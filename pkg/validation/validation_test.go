package validation

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// squareWave alternates between 100 and 110 every 10 bars, starting low
func squareWave(n int) []types.OHLCV {
	bars := make([]types.OHLCV, n)
	for i := range bars {
		p := 100.0
		if (i/10)%2 == 1 {
			p = 110
		}
		bars[i] = types.OHLCV{Timestamp: t0.Add(time.Duration(i) * time.Hour), Open: p, High: p, Low: p, Close: p, Volume: 1}
	}
	return bars
}

func smaLeg() Leg {
	return Leg{Entry: backtest.SignalConfig{
		IndicatorType: indicators.KindSMA,
		Params:        []indicators.ParameterSpec{{Name: "period", Value: 5, Range: indicators.Range{Min: 5, Max: 200, Step: 1}}},
		Side:          types.SideLong,
		Purpose:       types.PurposeEntry,
	}}
}

func allTrue(n int) []bool {
	m := make([]bool, n)
	for i := range m {
		m[i] = true
	}
	return m
}

func TestSplitByRatio(t *testing.T) {
	bars := squareWave(200)
	split, ok := SplitByRatio(bars, 0.5)
	require.True(t, ok)
	assert.Equal(t, 100, split.Index)
	assert.Equal(t, 100, split.TrainBars())
	assert.Equal(t, bars[99].Timestamp, split.TrainEnd)
	assert.Equal(t, bars[100].Timestamp, split.TestStart)
	assert.Equal(t, bars[199].Timestamp, split.TestEnd)

	_, ok = SplitByRatio(bars, 0)
	assert.False(t, ok)
	_, ok = SplitByRatio(bars[:1], 0.5)
	assert.False(t, ok)
}

func TestHoldoutHonoursMinimumTestBars(t *testing.T) {
	bars := squareWave(200)
	split, ok := Holdout(bars, Config{HoldoutRatio: 0.25, MinTestBars: 50})
	require.True(t, ok)
	assert.Equal(t, 150, split.Index)

	_, ok = Holdout(bars, Config{HoldoutRatio: 0.25, MinTestBars: 60})
	assert.False(t, ok)
	_, ok = Holdout(bars, Config{MinTestBars: 1})
	assert.False(t, ok, "zero ratio disables the holdout")
}

func TestClipPeriods(t *testing.T) {
	bars := squareWave(30)
	periods := []regime.Period{
		{RegimeID: "low", StartIdx: 0, EndIdx: 9, StartTS: bars[0].Timestamp, EndTS: bars[9].Timestamp},
		{RegimeID: "high", StartIdx: 10, EndIdx: 19, StartTS: bars[10].Timestamp, EndTS: bars[19].Timestamp},
		{RegimeID: "low", StartIdx: 20, EndIdx: 29, StartTS: bars[20].Timestamp, EndTS: bars[29].Timestamp},
	}
	clipped := ClipPeriods(periods, bars, 15)
	require.Len(t, clipped, 2)
	assert.Equal(t, 14, clipped[1].EndIdx)
	assert.Equal(t, bars[14].Timestamp, clipped[1].EndTS)
	assert.Equal(t, 19, periods[1].EndIdx, "input is not modified")
}

func TestTestMask(t *testing.T) {
	assert.Equal(t, []bool{false, false, true, false}, TestMask([]bool{true, true, true, false}, 2))
}

func TestValidateConsistentSignal(t *testing.T) {
	bars := squareWave(200)
	labels := regime.Expand(nil, len(bars))
	split, ok := SplitByRatio(bars, 0.5)
	require.True(t, ok)

	v := NewHoldoutValidator(backtest.DefaultConfig(), zerolog.Nop())
	s, err := v.Validate(bars, labels, allTrue(len(bars)), split, "any", []Leg{smaLeg()})
	require.NoError(t, err)

	assert.Equal(t, 100, s.TestBars)
	assert.Equal(t, 5, s.Train.TotalTrades)
	assert.Equal(t, 5, s.Test.TotalTrades)
	assert.InDelta(t, 0, s.ReturnDegradation, 1e-6)
	assert.True(t, s.IsRobust)
	assert.Equal(t, RiskLow, s.OverfittingRisk)
}

func TestValidateWithoutHoldoutTrades(t *testing.T) {
	bars := squareWave(200)
	labels := regime.Expand(nil, len(bars))
	mask := make([]bool, len(bars))
	for i := 0; i < 100; i++ {
		mask[i] = true
	}
	split, _ := SplitByRatio(bars, 0.5)

	s, err := NewHoldoutValidator(backtest.DefaultConfig(), zerolog.Nop()).
		Validate(bars, labels, mask, split, "any", []Leg{smaLeg()})
	require.NoError(t, err)
	assert.Zero(t, s.Test.TotalTrades)
	assert.Equal(t, RiskInsufficient, s.OverfittingRisk)
	assert.False(t, s.IsRobust)
}

func TestValidateRejectsBadInput(t *testing.T) {
	bars := squareWave(50)
	v := NewHoldoutValidator(backtest.DefaultConfig(), zerolog.Nop())
	_, err := v.Validate(bars, regime.Expand(nil, 50), allTrue(50), Split{Index: 0}, "any", nil)
	assert.Error(t, err)
	_, err = v.Validate(bars, regime.Expand(nil, 50), allTrue(10), Split{Index: 25}, "any", nil)
	assert.Error(t, err)
}

func TestAssessThresholds(t *testing.T) {
	s := &Summary{
		Train: backtest.Metrics{TotalTrades: 3, AvgReturn: 2},
		Test:  backtest.Metrics{TotalTrades: 3, AvgReturn: 0.5},
	}
	assess(s)
	assert.InDelta(t, 75, s.ReturnDegradation, 1e-9)
	assert.Equal(t, RiskHigh, s.OverfittingRisk)
	assert.False(t, s.IsRobust)

	s.Test.AvgReturn = 1.5
	assess(s)
	assert.Equal(t, RiskModerate, s.OverfittingRisk)
	assert.True(t, s.IsRobust)
}
