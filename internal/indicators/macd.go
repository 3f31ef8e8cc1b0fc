package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepMACD emits the MACD line, its signal EMA and the histogram
func stepMACD(p Params) stepFunc {
	fast := newEMA(p.Int("fast_period"))
	slow := newEMA(p.Int("slow_period"))
	signal := newEMA(p.Int("signal_period"))
	return func(b types.OHLCV, out []float64) {
		f, s := fast.next(b.Close), slow.next(b.Close)
		line := math.NaN()
		if !math.IsNaN(f) && !math.IsNaN(s) {
			line = f - s
		}
		sig := signal.next(line)
		hist := math.NaN()
		if !math.IsNaN(sig) {
			hist = line - sig
		}
		out[0], out[1], out[2] = line, sig, hist
	}
}
