package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// rsi is the Relative Strength Index with Wilder smoothing.
// The first value appears on bar period.
type rsi struct {
	gain, loss *smoother
	prev       float64
	seen       bool
}

func newRSI(period int) *rsi {
	return &rsi{gain: newWilder(period), loss: newWilder(period)}
}

func (r *rsi) next(close float64) float64 {
	g, l := math.NaN(), math.NaN()
	if r.seen {
		change := close - r.prev
		g, l = math.Max(change, 0), math.Max(-change, 0)
	}
	r.prev, r.seen = close, true

	avgGain, avgLoss := r.gain.next(g), r.loss.next(l)
	switch {
	case math.IsNaN(avgGain) || math.IsNaN(avgLoss):
		return math.NaN()
	case avgLoss == 0 && avgGain == 0:
		return 50
	case avgLoss == 0:
		return 100
	default:
		return 100 - 100/(1+avgGain/avgLoss)
	}
}

func stepRSI(p Params) stepFunc {
	r := newRSI(p.Int("period"))
	return func(b types.OHLCV, out []float64) {
		out[0] = r.next(b.Close)
	}
}
