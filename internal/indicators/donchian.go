package indicators

import (
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepDonchian emits the highest high, the channel midpoint and the lowest low
func stepDonchian(p Params) stepFunc {
	period := p.Int("period")
	highs, lows := newWindow(period), newWindow(period)
	return func(b types.OHLCV, out []float64) {
		highs.push(b.High)
		lows.push(b.Low)
		if period < 1 || !highs.full() {
			fillNaN(out)
			return
		}
		upper, lower := highs.max(), lows.min()
		out[0], out[1], out[2] = upper, (upper+lower)/2, lower
	}
}
