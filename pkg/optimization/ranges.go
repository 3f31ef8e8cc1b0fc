package optimization

import (
	"sort"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/internal/regime"
)

// Dimension is one searchable parameter
type Dimension struct {
	Key   string           `json:"key"`
	Range indicators.Range `json:"range"`
}

// SearchSpace is a set of dimensions sorted by key
type SearchSpace []Dimension

// NewSearchSpace validates and sorts dims
func NewSearchSpace(dims ...Dimension) (SearchSpace, error) {
	seen := make(map[string]bool, len(dims))
	out := make(SearchSpace, 0, len(dims))
	for _, d := range dims {
		if d.Key == "" {
			return nil, errors.NewConfigError("optimization", "search_space", "dimension key is required")
		}
		if seen[d.Key] {
			return nil, errors.NewConfigError("optimization", d.Key, "duplicate dimension")
		}
		if err := d.Range.Validate(); err != nil {
			return nil, errors.WrapConfigError(err, "optimization", d.Key)
		}
		seen[d.Key] = true
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// RegimeSearchSpace covers every indicator parameter of a regime template.
// Parameters whose range holds a single grid point are left out.
func RegimeSearchSpace(tmpl regime.Config) (SearchSpace, error) {
	var dims []Dimension
	for _, p := range tmpl.Parameters() {
		if p.Spec.Range.Steps() > 1 {
			dims = append(dims, Dimension{Key: p.Key, Range: p.Spec.Range})
		}
	}
	return NewSearchSpace(dims...)
}

// SignalSearchSpace covers the parameters of one signal configuration
func SignalSearchSpace(specs []indicators.ParameterSpec) (SearchSpace, error) {
	var dims []Dimension
	for _, p := range specs {
		if p.Range.Steps() > 1 {
			dims = append(dims, Dimension{Key: p.Name, Range: p.Range})
		}
	}
	return NewSearchSpace(dims...)
}

// Size returns the number of grid points, saturating at maxInt
func (s SearchSpace) Size() int {
	const maxInt = int(^uint(0) >> 1)
	n := 1
	for _, d := range s {
		steps := d.Range.Steps()
		if n > maxInt/steps {
			return maxInt
		}
		n *= steps
	}
	return n
}

// Ranges returns key -> range, used when exporting search settings
func (s SearchSpace) Ranges() map[string]indicators.Range {
	out := make(map[string]indicators.Range, len(s))
	for _, d := range s {
		out[d.Key] = d.Range
	}
	return out
}

// Snap moves every value in params onto its dimension's grid
func (s SearchSpace) Snap(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, d := range s {
		if v, ok := out[d.Key]; ok {
			out[d.Key] = d.Range.Snap(v)
		}
	}
	return out
}
