package backtest

import (
	"math"
	"sort"
)

// ProfitFactorCap replaces an infinite profit factor when no trade lost money
const ProfitFactorCap = 999.0

// RegimeBreakdown aggregates trades by the regime of their entry bar
type RegimeBreakdown struct {
	Trades    int     `json:"trades"`
	Wins      int     `json:"wins"`
	WinRate   float64 `json:"win_rate"`
	AvgReturn float64 `json:"avg_return"`
	NetPnL    float64 `json:"net_pnl"`
}

// Metrics summarises a trade list. WinRate is a fraction, AvgReturn is the
// mean per-trade return in percent.
type Metrics struct {
	TotalTrades  int                        `json:"total_trades"`
	Wins         int                        `json:"wins"`
	Losses       int                        `json:"losses"`
	WinRate      float64                    `json:"win_rate"`
	GrossProfit  float64                    `json:"gross_profit"`
	GrossLoss    float64                    `json:"gross_loss"`
	ProfitFactor float64                    `json:"profit_factor"`
	AvgReturn    float64                    `json:"avg_return"`
	NetPnL       float64                    `json:"net_pnl"`
	MaxDrawdown  float64                    `json:"max_drawdown"`
	SharpeRatio  float64                    `json:"sharpe_ratio"`
	ExitReasons  map[ExitReason]int         `json:"exit_reasons,omitempty"`
	ByRegime     map[string]RegimeBreakdown `json:"by_regime,omitempty"`
}

// Calculate derives metrics from trades. labels, when set, attributes each
// trade to the regime of its entry bar. positionSize is the equity base for
// drawdown.
func Calculate(trades []Trade, labels []string, positionSize float64) Metrics {
	m := Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	m.ExitReasons = make(map[ExitReason]int)
	returns := make([]float64, 0, len(trades))
	sumReturn := 0.0
	for _, t := range trades {
		if t.PnL > 0 {
			m.Wins++
			m.GrossProfit += t.PnL
		} else {
			m.Losses++
			m.GrossLoss += -t.PnL
		}
		m.NetPnL += t.PnL
		sumReturn += t.ReturnPct
		returns = append(returns, t.ReturnPct)
		m.ExitReasons[t.ExitReason]++
	}

	m.WinRate = float64(m.Wins) / float64(len(trades))
	m.AvgReturn = sumReturn / float64(len(trades))
	m.ProfitFactor = profitFactor(m.GrossProfit, m.GrossLoss)
	m.MaxDrawdown = maxDrawdown(trades, positionSize)
	m.SharpeRatio = sharpe(returns)

	if labels != nil {
		m.ByRegime = breakdown(trades, labels)
	}
	return m
}

func profitFactor(gross, loss float64) float64 {
	if loss == 0 {
		if gross > 0 {
			return ProfitFactorCap
		}
		return 0
	}
	return math.Min(gross/loss, ProfitFactorCap)
}

// maxDrawdown is the largest peak-to-trough drop of cumulative PnL,
// relative to the peak equity
func maxDrawdown(trades []Trade, base float64) float64 {
	equity, peak, dd := base, base, 0.0
	for _, t := range trades {
		equity += t.PnL
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd = math.Max(dd, (peak-equity)/peak)
		}
	}
	return dd
}

// sharpe is the per-trade Sharpe ratio with a zero risk-free rate
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std < 1e-10 {
		return 0
	}
	return mean / std
}

func breakdown(trades []Trade, labels []string) map[string]RegimeBreakdown {
	grouped := make(map[string][]Trade)
	for _, t := range trades {
		label := labels[t.EntryIdx]
		grouped[label] = append(grouped[label], t)
	}

	keys := make([]string, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]RegimeBreakdown, len(grouped))
	for _, k := range keys {
		b := RegimeBreakdown{Trades: len(grouped[k])}
		sum := 0.0
		for _, t := range grouped[k] {
			if t.PnL > 0 {
				b.Wins++
			}
			b.NetPnL += t.PnL
			sum += t.ReturnPct
		}
		b.WinRate = float64(b.Wins) / float64(b.Trades)
		b.AvgReturn = sum / float64(b.Trades)
		out[k] = b
	}
	return out
}

// AsMap flattens the headline metrics for trial storage
func (m Metrics) AsMap() map[string]interface{} {
	return map[string]interface{}{
		"total_trades":  m.TotalTrades,
		"win_rate":      m.WinRate,
		"profit_factor": m.ProfitFactor,
		"avg_return":    m.AvgReturn,
		"net_pnl":       m.NetPnL,
		"max_drawdown":  m.MaxDrawdown,
		"sharpe_ratio":  m.SharpeRatio,
	}
}
