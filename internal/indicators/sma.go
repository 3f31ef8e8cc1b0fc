package indicators

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// stepFunc advances an indicator by one bar and writes one value per raw
// output into out. NaN marks an absent value.
type stepFunc func(b types.OHLCV, out []float64)

// window keeps the most recent values of a series, oldest first
type window struct {
	buf   []float64
	start int
	size  int
}

func newWindow(n int) *window {
	if n < 1 {
		n = 1
	}
	return &window{buf: make([]float64, n)}
}

func (w *window) push(v float64) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = v
		w.size++
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
}

func (w *window) full() bool { return w.size == len(w.buf) }

// at returns the k-th oldest value
func (w *window) at(k int) float64 { return w.buf[(w.start+k)%len(w.buf)] }

func (w *window) sum() float64 {
	s := 0.0
	for k := 0; k < w.size; k++ {
		s += w.at(k)
	}
	return s
}

func (w *window) max() float64 {
	m := w.at(0)
	for k := 1; k < w.size; k++ {
		m = math.Max(m, w.at(k))
	}
	return m
}

func (w *window) min() float64 {
	m := w.at(0)
	for k := 1; k < w.size; k++ {
		m = math.Min(m, w.at(k))
	}
	return m
}

// movingAverage is a simple moving average over period values. Leading NaNs
// shift the warmup; the window starts at the first valid value.
type movingAverage struct {
	period  int
	values  *window
	started bool
}

func newMovingAverage(period int) *movingAverage {
	return &movingAverage{period: period, values: newWindow(period)}
}

func (m *movingAverage) next(v float64) float64 {
	if m.period < 1 {
		return math.NaN()
	}
	if !m.started {
		if math.IsNaN(v) {
			return math.NaN()
		}
		m.started = true
	}
	m.values.push(v)
	if !m.values.full() {
		return math.NaN()
	}
	return m.values.sum() / float64(m.period)
}

func stepSMA(p Params) stepFunc {
	ma := newMovingAverage(p.Int("period"))
	return func(b types.OHLCV, out []float64) {
		out[0] = ma.next(b.Close)
	}
}
