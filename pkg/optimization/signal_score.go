package optimization

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/internal/backtest"
)

// NoTradeScore is the reserved score of a signal that never traded. Every
// signal with at least one trade scores at least 0.
const NoTradeScore = -9999.0

// ScoreSignal rates backtest metrics on [0,100]:
// win rate 40, profit factor (3 or more is full marks) 20, trade count (50 or
// more) 10, average return mapped from -5%..+5% 30
func ScoreSignal(m backtest.Metrics) float64 {
	if m.TotalTrades == 0 {
		return NoTradeScore
	}
	pf := math.Min(m.ProfitFactor/3, 1)
	count := math.Min(float64(m.TotalTrades)/50, 1)
	ret := math.Max(0, math.Min(1, (m.AvgReturn+5)/10))
	return m.WinRate*40 + pf*20 + count*10 + ret*30
}
