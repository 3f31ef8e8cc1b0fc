package optimization

import (
	"math"
	"sort"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

// HyperbandConfig bounds the resource axis of the pruner
type HyperbandConfig struct {
	MinResource     int `json:"min_resource" yaml:"min_resource" default:"1" validate:"gte=1"`
	MaxResource     int `json:"max_resource" yaml:"max_resource" default:"100" validate:"gtfield=MinResource"`
	ReductionFactor int `json:"reduction_factor" yaml:"reduction_factor" default:"3" validate:"gte=2"`
}

// DefaultHyperbandConfig returns min=1, max=100, factor=3
func DefaultHyperbandConfig() HyperbandConfig {
	return HyperbandConfig{MinResource: 1, MaxResource: 100, ReductionFactor: 3}
}

// HyperbandPruner runs several successive-halving brackets side by side.
// Bracket b promotes trials at resources min*eta^(b+k); at every rung a trial
// survives only if it ranks in the top 1/eta of the trials of its bracket
// that reached the same rung.
type HyperbandPruner struct {
	cfg      HyperbandConfig
	brackets int
}

// NewHyperbandPruner validates cfg
func NewHyperbandPruner(cfg HyperbandConfig) (*HyperbandPruner, error) {
	if cfg.MinResource < 1 || cfg.MaxResource <= cfg.MinResource || cfg.ReductionFactor < 2 {
		return nil, errors.NewConfigError("optimization", "pruner",
			"invalid hyperband settings min=%d max=%d factor=%d", cfg.MinResource, cfg.MaxResource, cfg.ReductionFactor)
	}
	n := 0
	for r := cfg.MinResource; r*cfg.ReductionFactor <= cfg.MaxResource; r *= cfg.ReductionFactor {
		n++
	}
	return &HyperbandPruner{cfg: cfg, brackets: n + 1}, nil
}

// Brackets returns the number of brackets
func (p *HyperbandPruner) Brackets() int { return p.brackets }

// Bracket assigns trials to brackets round-robin by trial number
func (p *HyperbandPruner) Bracket(number int) int {
	return number % p.brackets
}

func (p *HyperbandPruner) promotionStep(bracket, rung int) int {
	step := p.cfg.MinResource
	for i := 0; i < bracket+rung; i++ {
		step *= p.cfg.ReductionFactor
	}
	return step
}

// Prune implements Pruner. Rung values reached by t are recorded on t.
func (p *HyperbandPruner) Prune(history []FrozenTrial, t *Trial) bool {
	step, value, ok := t.Last()
	if !ok {
		return false
	}
	bracket := p.Bracket(t.Number)

	for rung := len(t.rungs); ; rung++ {
		if step < p.promotionStep(bracket, rung) {
			return false
		}
		if math.IsNaN(value) {
			return true
		}
		t.rungs[rung] = value

		competing := []float64{value}
		for _, h := range history {
			if p.Bracket(h.Number) != bracket {
				continue
			}
			if v, ok := h.Rungs[rung]; ok {
				competing = append(competing, v)
			}
		}
		if !promotable(value, competing, p.cfg.ReductionFactor) {
			return true
		}
	}
}

// promotable reports whether value ranks in the top 1/eta of competing
func promotable(value float64, competing []float64, eta int) bool {
	idx := len(competing)/eta - 1
	if idx < 0 {
		idx = 0
	}
	sorted := append([]float64(nil), competing...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	return value >= sorted[idx]
}

// NopPruner never prunes
type NopPruner struct{}

// Prune implements Pruner
func (NopPruner) Prune([]FrozenTrial, *Trial) bool { return false }
