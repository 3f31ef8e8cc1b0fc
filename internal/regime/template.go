package regime

import (
	"sort"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
)

// Parameter is one tunable value of a configuration, addressed as
// "indicator_id.param"
type Parameter struct {
	Key         string
	IndicatorID string
	Spec        indicators.ParameterSpec
}

// ParamKey joins an indicator id and a parameter name
func ParamKey(indicatorID, name string) string {
	return indicatorID + "." + name
}

// Parameters lists every parameter of every indicator, in declaration order
func (c Config) Parameters() []Parameter {
	var out []Parameter
	for _, d := range c.Indicators {
		for _, p := range d.Params {
			out = append(out, Parameter{Key: ParamKey(d.ID, p.Name), IndicatorID: d.ID, Spec: p})
		}
	}
	return out
}

// ParamValues returns the current value of every parameter by key
func (c Config) ParamValues() map[string]float64 {
	out := make(map[string]float64)
	for _, p := range c.Parameters() {
		out[p.Key] = p.Spec.Value
	}
	return out
}

// Bind returns a concrete configuration: parameter values from params
// (snapped to their grids) replace the template values, and every condition
// placeholder is resolved. Keys absent from params keep the template value.
func (c Config) Bind(params map[string]float64) (Config, error) {
	out := c.Clone()
	for i := range out.Indicators {
		d := &out.Indicators[i]
		for j, p := range d.Params {
			if v, ok := params[ParamKey(d.ID, p.Name)]; ok {
				d.Params[j] = p.WithValue(v)
			}
		}
	}

	values := out.ParamValues()
	for i := range out.Regimes {
		node, err := conditions.Bind(out.Regimes[i].Conditions, values)
		if err != nil {
			return Config{}, errors.WrapConfigError(err, "regime", out.Regimes[i].ID+".conditions")
		}
		out.Regimes[i].Conditions = node
	}
	if err := out.Validate(); err != nil {
		return Config{}, err
	}
	return out, nil
}

// UnknownParams returns the sorted keys of params that name no parameter of c
func (c Config) UnknownParams(params map[string]float64) []string {
	known := c.ParamValues()
	var out []string
	for k := range params {
		if _, ok := known[k]; !ok {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
