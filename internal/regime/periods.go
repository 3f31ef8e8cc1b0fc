package regime

import (
	"math"
	"sort"

	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Periods run-length encodes labels. bars supplies timestamps and may be nil.
func Periods(labels []string, bars []types.OHLCV) []Period {
	var out []Period
	for i, label := range labels {
		if len(out) > 0 && out[len(out)-1].RegimeID == label {
			out[len(out)-1].EndIdx = i
			if i < len(bars) {
				out[len(out)-1].EndTS = bars[i].Timestamp
			}
			continue
		}
		p := Period{RegimeID: label, StartIdx: i, EndIdx: i}
		if i < len(bars) {
			p.StartTS = bars[i].Timestamp
			p.EndTS = bars[i].Timestamp
		}
		out = append(out, p)
	}
	return out
}

// Expand turns periods back into per-bar labels over n bars; uncovered bars are Unknown
func Expand(periods []Period, n int) []string {
	labels := make([]string, n)
	for i := range labels {
		labels[i] = Unknown
	}
	for _, p := range periods {
		for i := max(p.StartIdx, 0); i <= p.EndIdx && i < n; i++ {
			labels[i] = p.RegimeID
		}
	}
	return labels
}

// Mask marks the bars covered by periods of regimeID
func Mask(periods []Period, regimeID string, n int) []bool {
	mask := make([]bool, n)
	for _, p := range periods {
		if p.RegimeID != regimeID {
			continue
		}
		for i := max(p.StartIdx, 0); i <= p.EndIdx && i < n; i++ {
			mask[i] = true
		}
	}
	return mask
}

// Summary describes the shape of a classification
type Summary struct {
	TotalBars    int            `json:"total_bars"`
	Classified   int            `json:"classified_bars"`
	Coverage     float64        `json:"coverage"`
	Distribution map[string]int `json:"distribution"`
	PeriodCount  map[string]int `json:"period_count"`
	Transitions  int            `json:"transitions"`
	// AvgRunLength is the mean length of non-Unknown periods
	AvgRunLength float64 `json:"avg_run_length"`
	// Entropy is the Shannon entropy of the classified-bar distribution,
	// normalised to [0,1] by the number of regimes observed
	Entropy float64 `json:"entropy"`
}

// Summarize computes distribution statistics of a labelling
func Summarize(labels []string) Summary {
	s := Summary{
		TotalBars:    len(labels),
		Distribution: make(map[string]int),
		PeriodCount:  make(map[string]int),
	}
	periods := Periods(labels, nil)
	runBars, runs := 0, 0
	for i, p := range periods {
		s.PeriodCount[p.RegimeID]++
		if i > 0 {
			s.Transitions++
		}
		if p.RegimeID != Unknown {
			runBars += p.Bars()
			runs++
		}
	}
	for _, l := range labels {
		s.Distribution[l]++
		if l != Unknown {
			s.Classified++
		}
	}
	if s.TotalBars > 0 {
		s.Coverage = float64(s.Classified) / float64(s.TotalBars)
	}
	if runs > 0 {
		s.AvgRunLength = float64(runBars) / float64(runs)
	}

	active := s.Active()
	regimes := len(active)
	h := 0.0
	for _, id := range active {
		p := float64(s.Distribution[id]) / float64(s.Classified)
		h -= p * math.Log(p)
	}
	if regimes > 1 {
		s.Entropy = h / math.Log(float64(regimes))
	}
	return s
}

// Active returns the sorted regime ids with at least one classified bar
func (s Summary) Active() []string {
	var out []string
	for id, n := range s.Distribution {
		if id != Unknown && n > 0 {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
