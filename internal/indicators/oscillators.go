package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepMFI emits the Money Flow Index. It needs period+1 bars since every flow
// is compared with the previous typical price.
func stepMFI(p Params) stepFunc {
	period := p.Int("period")
	typical, volume := newWindow(period+1), newWindow(period+1)
	return func(b types.OHLCV, out []float64) {
		typical.push((b.High + b.Low + b.Close) / 3)
		volume.push(b.Volume)
		out[0] = math.NaN()
		if period < 1 || !typical.full() {
			return
		}

		pos, neg := 0.0, 0.0
		for j := 1; j <= period; j++ {
			tp, prev := typical.at(j), typical.at(j-1)
			flow := tp * volume.at(j)
			switch {
			case tp > prev:
				pos += flow
			case tp < prev:
				neg += flow
			}
		}
		switch {
		case pos == 0 && neg == 0:
			out[0] = 50
		case neg == 0:
			out[0] = 100
		default:
			out[0] = 100 - 100/(1+pos/neg)
		}
	}
}

// stepStochastic emits %K over k_period bars and %D as its SMA
func stepStochastic(p Params) stepFunc {
	kPeriod := p.Int("k_period")
	highs, lows := newWindow(kPeriod), newWindow(kPeriod)
	d := newMovingAverage(p.Int("d_period"))
	return func(b types.OHLCV, out []float64) {
		highs.push(b.High)
		lows.push(b.Low)
		k := math.NaN()
		if kPeriod >= 1 && highs.full() {
			hh, ll := highs.max(), lows.min()
			k = 50
			if spread := hh - ll; spread != 0 {
				k = 100 * (b.Close - ll) / spread
			}
		}
		out[0], out[1] = k, d.next(k)
	}
}
