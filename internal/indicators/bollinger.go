package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepBollinger emits SMA bands at std_dev population deviations, plus the
// relative band width and the close position within the bands
func stepBollinger(p Params) stepFunc {
	period := p.Int("period")
	k := p["std_dev"]
	closes := newWindow(period)
	return func(b types.OHLCV, out []float64) {
		closes.push(b.Close)
		if period < 1 || !closes.full() {
			fillNaN(out)
			return
		}

		middle := closes.sum() / float64(period)
		variance := 0.0
		for j := 0; j < period; j++ {
			d := closes.at(j) - middle
			variance += d * d
		}
		sd := math.Sqrt(variance / float64(period))
		upper, lower := middle+k*sd, middle-k*sd

		width := 0.0
		if middle != 0 {
			width = (upper - lower) / middle
		}
		percent := 0.5
		if spread := upper - lower; spread != 0 {
			percent = (b.Close - lower) / spread
		}
		out[0], out[1], out[2], out[3], out[4] = upper, middle, lower, width, percent
	}
}

func fillNaN(out []float64) {
	for i := range out {
		out[i] = math.NaN()
	}
}
