package validation

import (
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// SplitByRatio splits bars so that the leading ratio is searched. It
// reports false when either side would be empty.
func SplitByRatio(bars []types.OHLCV, ratio float64) (Split, bool) {
	if ratio <= 0 || ratio >= 1 {
		return Split{}, false
	}
	n := int(float64(len(bars)) * ratio)
	if n < 1 || n >= len(bars) {
		return Split{}, false
	}
	return Split{
		Index:      n,
		TrainStart: bars[0].Timestamp,
		TrainEnd:   bars[n-1].Timestamp,
		TestStart:  bars[n].Timestamp,
		TestEnd:    bars[len(bars)-1].Timestamp,
	}, true
}

// Holdout splits bars so that the trailing cfg.HoldoutRatio is held out
func Holdout(bars []types.OHLCV, cfg Config) (Split, bool) {
	if !cfg.Enabled() {
		return Split{}, false
	}
	split, ok := SplitByRatio(bars, 1-cfg.HoldoutRatio)
	if !ok || len(bars)-split.Index < cfg.MinTestBars {
		return Split{}, false
	}
	return split, true
}

// ClipPeriods keeps the parts of periods before index; bars supplies the
// timestamp of a clipped period's new last bar
func ClipPeriods(periods []regime.Period, bars []types.OHLCV, index int) []regime.Period {
	var out []regime.Period
	for _, p := range periods {
		if p.StartIdx >= index {
			break
		}
		if p.EndIdx >= index {
			p.EndIdx = index - 1
			p.EndTS = bars[index-1].Timestamp
		}
		out = append(out, p)
	}
	return out
}

// TestMask keeps the entries of mask from index on
func TestMask(mask []bool, index int) []bool {
	out := make([]bool, len(mask))
	for i := index; i < len(mask); i++ {
		out[i] = mask[i]
	}
	return out
}
