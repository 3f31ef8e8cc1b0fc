package optimization

import (
	"math"
	"math/rand"
	"sort"
)

// TPEConfig configures the tree-structured Parzen estimator
type TPEConfig struct {
	Seed int64 `json:"seed" yaml:"seed" default:"42"`
	// StartupTrials are sampled uniformly before the model is used
	StartupTrials int `json:"startup_trials" yaml:"startup_trials" default:"20" validate:"gte=0"`
	// Candidates is the number of draws from the good-trial model per suggestion
	Candidates int `json:"candidates" yaml:"candidates" default:"24" validate:"gte=1"`
	// BelowFraction and MaxBelow size the good set: min(ceil(fraction*n), max)
	BelowFraction float64 `json:"below_fraction" yaml:"below_fraction" default:"0.1" validate:"gt=0,lt=1"`
	MaxBelow      int     `json:"max_below" yaml:"max_below" default:"25" validate:"gte=1"`
	PriorWeight   float64 `json:"prior_weight" yaml:"prior_weight" default:"1" validate:"gte=0"`
}

// DefaultTPEConfig returns the reference sampler settings
func DefaultTPEConfig() TPEConfig {
	return TPEConfig{Seed: 42, StartupTrials: 20, Candidates: 24, BelowFraction: 0.1, MaxBelow: 25, PriorWeight: 1}
}

// TPESampler models the joint distribution of good and bad trials with
// multivariate Parzen estimators and proposes the candidate with the best
// density ratio. Sampling is a pure function of the seed, the trial number
// and the history, so resumed studies continue deterministically.
type TPESampler struct {
	cfg TPEConfig
}

// NewTPESampler creates a sampler
func NewTPESampler(cfg TPEConfig) *TPESampler {
	return &TPESampler{cfg: cfg}
}

// Sample implements Sampler
func (s *TPESampler) Sample(space SearchSpace, history []FrozenTrial, number int) map[string]float64 {
	rng := rand.New(rand.NewSource(s.cfg.Seed*1_000_003 + int64(number)))

	obs := observations(space, history)
	if len(space) == 0 || len(obs) < max(s.cfg.StartupTrials, 2) {
		return sampleUniform(space, rng)
	}

	sort.SliceStable(obs, func(i, j int) bool {
		if obs[i].Value != obs[j].Value {
			return obs[i].Value > obs[j].Value
		}
		return obs[i].Number < obs[j].Number
	})
	nBelow := s.gamma(len(obs))
	below, above := obs[:nBelow], obs[nBelow:]
	if len(above) == 0 {
		return sampleUniform(space, rng)
	}

	good := newParzen(space, below, s.cfg.PriorWeight)
	bad := newParzen(space, above, s.cfg.PriorWeight)

	var best []float64
	bestScore := math.Inf(-1)
	for c := 0; c < s.cfg.Candidates; c++ {
		u := good.sample(rng)
		score := good.logPDF(u) - bad.logPDF(u)
		if best == nil || score > bestScore {
			best, bestScore = u, score
		}
	}
	return space.fromUnit(best)
}

func (s *TPESampler) gamma(n int) int {
	k := int(math.Ceil(s.cfg.BelowFraction * float64(n)))
	return max(1, min(k, s.cfg.MaxBelow))
}

// observations keeps finished trials that carry a value for every dimension
func observations(space SearchSpace, history []FrozenTrial) []FrozenTrial {
	out := make([]FrozenTrial, 0, len(history))
	for _, t := range history {
		if t.State != TrialComplete && t.State != TrialPruned {
			continue
		}
		if math.IsNaN(t.Value) || math.IsInf(t.Value, 0) {
			continue
		}
		complete := true
		for _, d := range space {
			if _, ok := t.Params[d.Key]; !ok {
				complete = false
				break
			}
		}
		if complete {
			out = append(out, t)
		}
	}
	return out
}

func sampleUniform(space SearchSpace, rng *rand.Rand) map[string]float64 {
	out := make(map[string]float64, len(space))
	for _, d := range space {
		out[d.Key] = d.Range.At(rng.Intn(d.Range.Steps()))
	}
	return out
}

func (s SearchSpace) width(i int) float64 {
	return s[i].Range.Max - s[i].Range.Min
}

func (s SearchSpace) toUnit(params map[string]float64) []float64 {
	u := make([]float64, len(s))
	for i, d := range s {
		if w := s.width(i); w > 0 {
			u[i] = (params[d.Key] - d.Range.Min) / w
		} else {
			u[i] = 0.5
		}
	}
	return u
}

func (s SearchSpace) fromUnit(u []float64) map[string]float64 {
	out := make(map[string]float64, len(s))
	for i, d := range s {
		out[d.Key] = d.Range.Snap(d.Range.Min + u[i]*s.width(i))
	}
	return out
}

// snapUnit moves a unit-space point onto the grid
func (s SearchSpace) snapUnit(u []float64) []float64 {
	return s.toUnit(s.fromUnit(u))
}

// parzen is a mixture of truncated Gaussians over the unit hypercube, one
// component per observation plus a wide prior component
type parzen struct {
	space   SearchSpace
	mus     [][]float64
	sigmas  []float64
	weights []float64
	// prior is the index of the prior component, -1 when there is none
	prior int
}

const priorSigma = 1.0

func newParzen(space SearchSpace, obs []FrozenTrial, priorWeight float64) *parzen {
	d := len(space)
	n := len(obs)

	// Scott-style bandwidth shrinking with the number of observations, never
	// narrower than half a grid step
	bw := 0.2 * math.Pow(float64(max(n, 1)), -1/float64(d+4))
	sigmas := make([]float64, d)
	for i := range space {
		sigmas[i] = bw
		if w := space.width(i); w > 0 {
			sigmas[i] = math.Max(bw, 0.5*space[i].Range.Step/w)
		}
	}

	p := &parzen{space: space, sigmas: sigmas, prior: -1}
	total := float64(n) + priorWeight
	for _, t := range obs {
		p.mus = append(p.mus, space.toUnit(t.Params))
		p.weights = append(p.weights, 1/total)
	}
	if priorWeight > 0 {
		prior := make([]float64, d)
		for i := range prior {
			prior[i] = 0.5
		}
		p.prior = len(p.mus)
		p.mus = append(p.mus, prior)
		p.weights = append(p.weights, priorWeight/total)
	}
	return p
}

func (p *parzen) sigma(component, dim int) float64 {
	if component == p.prior {
		return priorSigma
	}
	return p.sigmas[dim]
}

func (p *parzen) sample(rng *rand.Rand) []float64 {
	r := rng.Float64()
	c := len(p.weights) - 1
	acc := 0.0
	for i, w := range p.weights {
		acc += w
		if r < acc {
			c = i
			break
		}
	}

	u := make([]float64, len(p.space))
	for d := range u {
		mu, sigma := p.mus[c][d], p.sigma(c, d)
		x := mu
		for try := 0; try < 16; try++ {
			x = mu + sigma*rng.NormFloat64()
			if x >= 0 && x <= 1 {
				break
			}
		}
		u[d] = math.Min(1, math.Max(0, x))
	}
	return p.space.snapUnit(u)
}

func (p *parzen) logPDF(u []float64) float64 {
	logs := make([]float64, len(p.weights))
	for c, w := range p.weights {
		l := math.Log(w)
		for d, x := range u {
			l += truncatedNormalLogPDF(x, p.mus[c][d], p.sigma(c, d))
		}
		logs[c] = l
	}
	return logSumExp(logs)
}

func truncatedNormalLogPDF(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	mass := normalCDF((1-mu)/sigma) - normalCDF(-mu/sigma)
	if mass < 1e-12 {
		mass = 1e-12
	}
	return -0.5*z*z - math.Log(sigma*math.Sqrt(2*math.Pi)) - math.Log(mass)
}

func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func logSumExp(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	if math.IsInf(m, -1) {
		return m
	}
	sum := 0.0
	for _, x := range xs {
		sum += math.Exp(x - m)
	}
	return m + math.Log(sum)
}
