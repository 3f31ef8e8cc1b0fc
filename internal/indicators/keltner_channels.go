package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepKeltner emits an EMA midline with ATR-based channels
func stepKeltner(p Params) stepFunc {
	ema := newEMA(p.Int("period"))
	rng := newATR(p.Int("atr_period"))
	mult := p["multiplier"]
	return func(b types.OHLCV, out []float64) {
		middle, a := ema.next(b.Close), rng.next(b)
		if math.IsNaN(middle) || math.IsNaN(a) {
			fillNaN(out)
			return
		}
		out[0], out[1], out[2] = middle+mult*a, middle, middle-mult*a
	}
}
