package indicators

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

const stepTolerance = 1e-9

// Range is the search interval of a parameter
type Range struct {
	Min  float64 `json:"min" yaml:"min"`
	Max  float64 `json:"max" yaml:"max"`
	Step float64 `json:"step" yaml:"step"`
}

// ParameterSpec is a named parameter value together with its search range
type ParameterSpec struct {
	Name  string  `json:"name" yaml:"name"`
	Value float64 `json:"value" yaml:"value"`
	Range Range   `json:"range" yaml:"range"`
}

// Validate checks min <= max and step > 0
func (r Range) Validate() error {
	if r.Step <= 0 || math.IsNaN(r.Step) {
		return fmt.Errorf("step must be positive, got %v", r.Step)
	}
	if math.IsNaN(r.Min) || math.IsNaN(r.Max) || r.Min > r.Max {
		return fmt.Errorf("invalid range [%v, %v]", r.Min, r.Max)
	}
	return nil
}

// Steps returns the number of grid points in the range
func (r Range) Steps() int {
	return int(math.Floor((r.Max-r.Min)/r.Step+stepTolerance)) + 1
}

// OnGrid reports whether v lies inside the range on a step multiple
func (r Range) OnGrid(v float64) bool {
	if v < r.Min-stepTolerance*math.Max(1, math.Abs(r.Min)) || v > r.Max+stepTolerance*math.Max(1, math.Abs(r.Max)) {
		return false
	}
	k := (v - r.Min) / r.Step
	return math.Abs(k-math.Round(k)) <= stepTolerance*math.Max(1, math.Abs(k))
}

// Snap moves v to the closest grid point inside the range
func (r Range) Snap(v float64) float64 {
	if math.IsNaN(v) {
		v = r.Min
	}
	k := math.Round((v - r.Min) / r.Step)
	maxK := float64(r.Steps() - 1)
	if k < 0 {
		k = 0
	}
	if k > maxK {
		k = maxK
	}
	return roundTo(r.Min+k*r.Step, r.decimals())
}

// At returns the k-th grid point
func (r Range) At(k int) float64 {
	return roundTo(r.Min+float64(k)*r.Step, r.decimals())
}

// decimals is the number of fractional digits needed to print min and step exactly
func (r Range) decimals() int {
	d := 0
	for _, v := range []float64{r.Min, r.Step} {
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > d {
			d = len(s) - i - 1
		}
	}
	if d > 10 {
		d = 10
	}
	return d
}

func roundTo(v float64, decimals int) float64 {
	out, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return out
}

// Validate enforces min <= value <= max and (value-min) being a step multiple
func (p ParameterSpec) Validate() error {
	if p.Name == "" {
		return errors.NewConfigError("parameters", "name", "parameter name is required")
	}
	if err := p.Range.Validate(); err != nil {
		return errors.WrapConfigError(err, "parameters", p.Name)
	}
	if !p.Range.OnGrid(p.Value) {
		return errors.NewConfigError("parameters", p.Name,
			"value %v is not on the grid min=%v max=%v step=%v", p.Value, p.Range.Min, p.Range.Max, p.Range.Step)
	}
	return nil
}

// WithValue returns a copy holding v snapped to the range grid
func (p ParameterSpec) WithValue(v float64) ParameterSpec {
	p.Value = p.Range.Snap(v)
	return p
}

// Params is a flat name -> value view of a parameter list
type Params map[string]float64

// Int returns the named parameter rounded to an integer
func (p Params) Int(name string) int {
	return int(math.Round(p[name]))
}

// ParamsOf flattens specs into a Params map
func ParamsOf(specs []ParameterSpec) Params {
	out := make(Params, len(specs))
	for _, s := range specs {
		out[s.Name] = s.Value
	}
	return out
}

// FindParam looks up a spec by name
func FindParam(specs []ParameterSpec, name string) (ParameterSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return ParameterSpec{}, false
}

// CloneParams copies a parameter list
func CloneParams(specs []ParameterSpec) []ParameterSpec {
	if specs == nil {
		return nil
	}
	out := make([]ParameterSpec, len(specs))
	copy(out, specs)
	return out
}
