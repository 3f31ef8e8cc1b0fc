package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// smoother is an exponential average seeded with the simple average of the
// first period valid values. NaNs after the seed are skipped.
type smoother struct {
	period int
	alpha  float64
	count  int
	sum    float64
	prev   float64
}

// newEMA uses alpha = 2/(period+1)
func newEMA(period int) *smoother {
	return &smoother{period: period, alpha: 2.0 / float64(period+1)}
}

// newWilder is Wilder's smoothing (RMA), alpha = 1/period
func newWilder(period int) *smoother {
	return &smoother{period: period, alpha: 1.0 / float64(period)}
}

func (s *smoother) next(v float64) float64 {
	if s.period < 1 {
		return math.NaN()
	}
	if s.count < s.period {
		if s.count == 0 && math.IsNaN(v) {
			return math.NaN()
		}
		s.sum += v
		s.count++
		if s.count < s.period {
			return math.NaN()
		}
		s.prev = s.sum / float64(s.period)
		return s.prev
	}
	if math.IsNaN(v) {
		return math.NaN()
	}
	s.prev = v*s.alpha + s.prev*(1-s.alpha)
	return s.prev
}

func stepEMA(p Params) stepFunc {
	ema := newEMA(p.Int("period"))
	return func(b types.OHLCV, out []float64) {
		out[0] = ema.next(b.Close)
	}
}
