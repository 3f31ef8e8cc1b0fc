package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateEmpty(t *testing.T) {
	m := Calculate(nil, nil, 1000)
	assert.Equal(t, Metrics{}, m)
}

func TestProfitFactorIsCapped(t *testing.T) {
	trades := []Trade{{PnL: 10, ReturnPct: 1}, {PnL: 20, ReturnPct: 2}}
	m := Calculate(trades, nil, 1000)

	assert.Equal(t, ProfitFactorCap, m.ProfitFactor)
	assert.Equal(t, 1.0, m.WinRate)
	assert.InDelta(t, 1.5, m.AvgReturn, 1e-12)
}

func TestCalculateMixedTrades(t *testing.T) {
	trades := []Trade{
		{EntryIdx: 0, PnL: 30, ReturnPct: 3, ExitReason: ExitSignal},
		{EntryIdx: 2, PnL: -10, ReturnPct: -1, ExitReason: ExitHorizon},
		{EntryIdx: 3, PnL: -20, ReturnPct: -2, ExitReason: ExitSignal},
	}
	labels := []string{"UP", "UP", "UP", "DOWN"}
	m := Calculate(trades, labels, 1000)

	assert.Equal(t, 3, m.TotalTrades)
	assert.Equal(t, 1, m.Wins)
	assert.Equal(t, 2, m.Losses)
	assert.InDelta(t, 1.0/3, m.WinRate, 1e-12)
	assert.InDelta(t, 1.0, m.ProfitFactor, 1e-12)
	assert.InDelta(t, 0.0, m.AvgReturn, 1e-12)
	assert.InDelta(t, 30.0/1030, m.MaxDrawdown, 1e-12)
	assert.Equal(t, 2, m.ExitReasons[ExitSignal])

	assert.Equal(t, RegimeBreakdown{Trades: 2, Wins: 1, WinRate: 0.5, AvgReturn: 1, NetPnL: 20}, m.ByRegime["UP"])
	assert.Equal(t, 1, m.ByRegime["DOWN"].Trades)
}

func TestSharpe(t *testing.T) {
	assert.Equal(t, 0.0, sharpe([]float64{1}))
	assert.Equal(t, 0.0, sharpe([]float64{2, 2, 2}))
	assert.InDelta(t, 1.0, sharpe([]float64{0, 2}), 1e-12)
}
