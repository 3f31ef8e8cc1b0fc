package indicators

import (
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepOBV emits On-Balance Volume starting from zero on the first bar, and an
// SMA signal line over it
func stepOBV(p Params) stepFunc {
	signal := newMovingAverage(p.Int("period"))
	obv, prevClose := 0.0, 0.0
	seen := false
	return func(b types.OHLCV, out []float64) {
		if seen {
			switch {
			case b.Close > prevClose:
				obv += b.Volume
			case b.Close < prevClose:
				obv -= b.Volume
			}
		}
		prevClose, seen = b.Close, true
		out[0], out[1] = obv, signal.next(obv)
	}
}
