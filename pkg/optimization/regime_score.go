package optimization

import (
	"math"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
)

// RegimeScoreWeights are the tunable weights of the regime-quality score.
// They must sum to 100 so that the score stays in [0,100].
type RegimeScoreWeights struct {
	Count     float64 `json:"count" yaml:"count" default:"25" validate:"gte=0"`
	Stability float64 `json:"stability" yaml:"stability" default:"30" validate:"gte=0"`
	Quality   float64 `json:"quality" yaml:"quality" default:"20" validate:"gte=0"`
	Coverage  float64 `json:"coverage" yaml:"coverage" default:"25" validate:"gte=0"`
}

// RegimeScoreConfig parameterises ScoreRegimes
type RegimeScoreConfig struct {
	Weights    RegimeScoreWeights `json:"weights" yaml:"weights"`
	MinRegimes int                `json:"min_regimes" yaml:"min_regimes" default:"2" validate:"gte=1"`
	MaxRegimes int                `json:"max_regimes" yaml:"max_regimes" default:"5" validate:"gtefield=MinRegimes"`
	// TargetRunLength is the average period length that earns full stability
	TargetRunLength float64 `json:"target_run_length" yaml:"target_run_length" default:"20" validate:"gt=0"`
	// DegeneratePenalty multiplies the score of degenerate classifications
	DegeneratePenalty float64 `json:"degenerate_penalty" yaml:"degenerate_penalty" default:"0.05" validate:"gte=0,lte=1"`
}

// DefaultRegimeScoreConfig returns weights 25/30/20/25
func DefaultRegimeScoreConfig() RegimeScoreConfig {
	return RegimeScoreConfig{
		Weights:           RegimeScoreWeights{Count: 25, Stability: 30, Quality: 20, Coverage: 25},
		MinRegimes:        2,
		MaxRegimes:        5,
		TargetRunLength:   20,
		DegeneratePenalty: 0.05,
	}
}

// Validate checks the weight sum and bounds
func (c RegimeScoreConfig) Validate() error {
	w := c.Weights
	for _, v := range []float64{w.Count, w.Stability, w.Quality, w.Coverage} {
		if v < 0 || math.IsNaN(v) {
			return errors.NewConfigError("optimization", "score.weights", "weights must be non-negative")
		}
	}
	if sum := w.Count + w.Stability + w.Quality + w.Coverage; math.Abs(sum-100) > 1e-9 {
		return errors.NewConfigError("optimization", "score.weights", "weights sum to %v, want 100", sum)
	}
	if c.MinRegimes < 1 || c.MaxRegimes < c.MinRegimes {
		return errors.NewConfigError("optimization", "score.regimes", "invalid regime count bounds [%d, %d]", c.MinRegimes, c.MaxRegimes)
	}
	if c.TargetRunLength <= 0 {
		return errors.NewConfigError("optimization", "score.target_run_length", "must be positive")
	}
	if c.DegeneratePenalty < 0 || c.DegeneratePenalty > 1 {
		return errors.NewConfigError("optimization", "score.degenerate_penalty", "must lie in [0,1]")
	}
	return nil
}

// RegimeScore is the decomposed regime-quality score
type RegimeScore struct {
	Score      float64 `json:"score"`
	Count      float64 `json:"count"`
	Stability  float64 `json:"stability"`
	Quality    float64 `json:"quality"`
	Coverage   float64 `json:"coverage"`
	Degenerate bool    `json:"degenerate"`
	Summary    regime.Summary
}

// ScoreRegimes rates a labelling against the defined regime ids. Degenerate
// labellings (one regime on every bar, or a defined regime that never
// activates) keep a small non-zero score so the sampler stays informed.
func ScoreRegimes(labels []string, defined []string, cfg RegimeScoreConfig) RegimeScore {
	s := regime.Summarize(labels)
	out := RegimeScore{Summary: s, Coverage: s.Coverage, Quality: s.Entropy}

	active := len(s.Active())
	switch {
	case active == 0:
		out.Count = 0
	case active >= cfg.MinRegimes && active <= cfg.MaxRegimes:
		out.Count = 1
	case active < cfg.MinRegimes:
		out.Count = 0.3 * float64(active) / float64(max(cfg.MinRegimes-1, 1))
	default:
		out.Count = math.Exp(-0.5 * float64(active-cfg.MaxRegimes))
	}
	out.Stability = math.Min(1, s.AvgRunLength/cfg.TargetRunLength)

	w := cfg.Weights
	out.Score = w.Count*out.Count + w.Stability*out.Stability + w.Quality*out.Quality + w.Coverage*out.Coverage

	for _, id := range defined {
		if s.Distribution[id] == 0 {
			out.Degenerate = true
			break
		}
	}
	if active == 1 && s.Classified == s.TotalBars {
		out.Degenerate = true
	}
	if out.Degenerate {
		out.Score *= cfg.DegeneratePenalty
	}
	out.Score = math.Max(0, math.Min(100, out.Score))
	return out
}

// Metrics flattens the score for trial records
func (r RegimeScore) Metrics() map[string]interface{} {
	return map[string]interface{}{
		"count_score":     r.Count,
		"stability_score": r.Stability,
		"quality_score":   r.Quality,
		"coverage":        r.Coverage,
		"degenerate":      r.Degenerate,
		"active_regimes":  len(r.Summary.Active()),
		"avg_run_length":  r.Summary.AvgRunLength,
		"transitions":     r.Summary.Transitions,
		"distribution":    r.Summary.Distribution,
	}
}
