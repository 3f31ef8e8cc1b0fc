package optimization

import (
	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
)

func paramSpec(name string, v, min, max, step float64) indicators.ParameterSpec {
	return indicators.ParameterSpec{Name: name, Value: v, Range: indicators.Range{Min: min, Max: max, Step: step}}
}

// DefaultRegimeTemplate is the stock Stage-1 search template: a trend
// strength/direction pair, a momentum band and a volatility width. Thresholds
// are indicator parameters referenced by placeholders, so the sampler tunes
// them together with the calculation periods.
func DefaultRegimeTemplate() regime.Config {
	ref, param := conditions.Ref, conditions.Param
	cmp := conditions.Compare

	return regime.Config{
		Indicators: []indicators.Definition{
			{ID: "adx1", Type: indicators.KindADX, Params: []indicators.ParameterSpec{
				paramSpec("period", 14, 7, 30, 1),
				paramSpec("threshold", 25, 15, 40, 1),
			}},
			{ID: "sma_fast", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{
				paramSpec("period", 50, 10, 100, 5),
			}},
			{ID: "sma_slow", Type: indicators.KindSMA, Params: []indicators.ParameterSpec{
				paramSpec("period", 200, 100, 300, 10),
			}},
			{ID: "rsi1", Type: indicators.KindRSI, Params: []indicators.ParameterSpec{
				paramSpec("period", 14, 5, 30, 1),
				paramSpec("low", 30, 20, 45, 1),
				paramSpec("high", 70, 55, 80, 1),
			}},
			{ID: "bb1", Type: indicators.KindBollinger, Params: []indicators.ParameterSpec{
				paramSpec("period", 20, 10, 50, 1),
				paramSpec("std_dev", 2, 1, 3, 0.1),
				paramSpec("width_threshold", 0.05, 0.01, 0.2, 0.01),
			}},
		},
		Regimes: []regime.Definition{
			{
				ID: "STRONG_UPTREND", Name: "Strong uptrend", Priority: 40, Scope: regime.ScopeBoth,
				Conditions: conditions.AllOf(
					cmp(ref("adx1", "value"), conditions.OpGT, param("adx1", "threshold")),
					cmp(ref("sma_fast", "value"), conditions.OpGT, ref("sma_slow", "value")),
					cmp(ref("adx1", "plus_di"), conditions.OpGT, ref("adx1", "minus_di")),
				),
			},
			{
				ID: "STRONG_DOWNTREND", Name: "Strong downtrend", Priority: 40, Scope: regime.ScopeBoth,
				Conditions: conditions.AllOf(
					cmp(ref("adx1", "value"), conditions.OpGT, param("adx1", "threshold")),
					cmp(ref("sma_fast", "value"), conditions.OpLT, ref("sma_slow", "value")),
					cmp(ref("adx1", "minus_di"), conditions.OpGT, ref("adx1", "plus_di")),
				),
			},
			{
				ID: "HIGH_VOLATILITY", Name: "High volatility", Priority: 30, Scope: regime.ScopeBoth,
				Conditions: conditions.AllOf(
					cmp(ref("bb1", "width"), conditions.OpGT, param("bb1", "width_threshold")),
				),
			},
			{
				ID: "RANGE", Name: "Range", Priority: 10, Scope: regime.ScopeBoth,
				Conditions: conditions.AllOf(
					cmp(ref("rsi1", "value"), conditions.OpGT, param("rsi1", "low")),
					cmp(ref("rsi1", "value"), conditions.OpLT, param("rsi1", "high")),
					cmp(ref("adx1", "value"), conditions.OpLT, param("adx1", "threshold")),
				),
			},
		},
	}
}
