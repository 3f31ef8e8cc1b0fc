package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// trueRange is undefined on the first bar since it needs a previous close
type trueRange struct {
	prevClose float64
	seen      bool
}

func (t *trueRange) next(b types.OHLCV) float64 {
	if !t.seen {
		t.prevClose, t.seen = b.Close, true
		return math.NaN()
	}
	pc := t.prevClose
	t.prevClose = b.Close
	return math.Max(b.High-b.Low, math.Max(math.Abs(b.High-pc), math.Abs(b.Low-pc)))
}

type atr struct {
	tr  trueRange
	avg *smoother
}

func newATR(period int) *atr {
	return &atr{avg: newWilder(period)}
}

func (a *atr) next(b types.OHLCV) float64 {
	return a.avg.next(a.tr.next(b))
}

func stepATR(p Params) stepFunc {
	a := newATR(p.Int("period"))
	return func(b types.OHLCV, out []float64) {
		out[0] = a.next(b)
	}
}

// stepADX emits the Average Directional Index with its +DI/-DI lines.
// The DI lines appear on bar period, ADX itself on 2*period-1.
func stepADX(p Params) stepFunc {
	period := p.Int("period")
	rng := newATR(period)
	smPlus, smMinus := newWilder(period), newWilder(period)
	adx := newWilder(period)

	var prev types.OHLCV
	seen := false
	return func(b types.OHLCV, out []float64) {
		plusDM, minusDM := math.NaN(), math.NaN()
		if seen {
			up := b.High - prev.High
			down := prev.Low - b.Low
			plusDM, minusDM = 0, 0
			if up > down && up > 0 {
				plusDM = up
			}
			if down > up && down > 0 {
				minusDM = down
			}
		}
		prev, seen = b, true

		a := rng.next(b)
		sp, sm := smPlus.next(plusDM), smMinus.next(minusDM)
		plusDI, minusDI, dx := math.NaN(), math.NaN(), math.NaN()
		if !math.IsNaN(a) {
			plusDI, minusDI = 0, 0
			if a != 0 {
				plusDI = 100 * sp / a
				minusDI = 100 * sm / a
			}
			dx = 0
			if sum := plusDI + minusDI; sum != 0 {
				dx = 100 * math.Abs(plusDI-minusDI) / sum
			}
		}
		out[0], out[1], out[2] = adx.next(dx), plusDI, minusDI
	}
}
