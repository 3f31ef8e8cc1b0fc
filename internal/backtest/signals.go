package backtest

import (
	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// ruleFunc builds the condition tree of one side/purpose for an indicator
// instance named id. Rule parameters appear as placeholders on id.
type ruleFunc func(id string, side types.Side, purpose types.Purpose) conditions.Node

type signalRule struct {
	// params are rule thresholds searched alongside the calculation parameters
	params []indicators.ParamDef
	// build is nil for kinds that carry no direction on their own
	build ruleFunc
}

var (
	ref   = conditions.Ref
	lit   = conditions.Lit
	param = conditions.Param
	cmp   = conditions.Compare
	all   = conditions.AllOf
)

func price(field string) *conditions.Operand { return ref(indicators.PriceID, field) }

// bullish reports whether the rule should look for upward moves: long entries
// and short exits trigger on the same conditions.
func bullish(side types.Side, purpose types.Purpose) bool {
	return (side == types.SideLong) == (purpose == types.PurposeEntry)
}

// crossRule: close crossing the primary line of a moving-average style indicator
func crossRule(left func(id string) *conditions.Operand, right func(id string) *conditions.Operand) ruleFunc {
	return func(id string, side types.Side, purpose types.Purpose) conditions.Node {
		op := conditions.OpCrossesBelow
		if bullish(side, purpose) {
			op = conditions.OpCrossesAbove
		}
		return all(cmp(left(id), op, right(id)))
	}
}

// bandRule: oscillator leaving an oversold/overbought zone
func bandRule(field string) ruleFunc {
	return func(id string, side types.Side, purpose types.Purpose) conditions.Node {
		if bullish(side, purpose) {
			return all(cmp(ref(id, field), conditions.OpLT, param(id, "oversold")))
		}
		return all(cmp(ref(id, field), conditions.OpGT, param(id, "overbought")))
	}
}

func closeOf(string) *conditions.Operand { return price("close") }

func field(name string) func(id string) *conditions.Operand {
	return func(id string) *conditions.Operand { return ref(id, name) }
}

var signalRules = [...]signalRule{
	indicators.KindSMA: {build: crossRule(closeOf, field("value"))},
	indicators.KindEMA: {build: crossRule(closeOf, field("value"))},
	indicators.KindRSI: {
		params: []indicators.ParamDef{
			{Name: "oversold", Default: 30, Range: indicators.Range{Min: 10, Max: 40, Step: 1}},
			{Name: "overbought", Default: 70, Range: indicators.Range{Min: 60, Max: 90, Step: 1}},
		},
		build: bandRule("value"),
	},
	indicators.KindMACD: {build: crossRule(field("value"), field("signal"))},
	indicators.KindBollinger: {
		build: func(id string, side types.Side, purpose types.Purpose) conditions.Node {
			if bullish(side, purpose) {
				return all(cmp(price("close"), conditions.OpLT, ref(id, "lower")))
			}
			return all(cmp(price("close"), conditions.OpGT, ref(id, "upper")))
		},
	},
	indicators.KindADX: {
		params: []indicators.ParamDef{
			{Name: "threshold", Default: 25, Range: indicators.Range{Min: 15, Max: 40, Step: 1}},
		},
		build: func(id string, side types.Side, purpose types.Purpose) conditions.Node {
			up, down := ref(id, "plus_di"), ref(id, "minus_di")
			if !bullish(side, purpose) {
				up, down = down, up
			}
			if purpose == types.PurposeExit {
				return all(cmp(up, conditions.OpCrossesAbove, down))
			}
			return all(
				cmp(ref(id, "value"), conditions.OpGT, param(id, "threshold")),
				cmp(up, conditions.OpCrossesAbove, down),
			)
		},
	},
	indicators.KindATR: {},
	indicators.KindDonchian: {build: crossRule(closeOf, field("middle"))},
	indicators.KindMFI: {
		params: []indicators.ParamDef{
			{Name: "oversold", Default: 20, Range: indicators.Range{Min: 5, Max: 35, Step: 1}},
			{Name: "overbought", Default: 80, Range: indicators.Range{Min: 65, Max: 95, Step: 1}},
		},
		build: bandRule("value"),
	},
	indicators.KindKeltner: {
		build: func(id string, side types.Side, purpose types.Purpose) conditions.Node {
			if bullish(side, purpose) {
				return all(cmp(price("close"), conditions.OpCrossesAbove, ref(id, "upper")))
			}
			return all(cmp(price("close"), conditions.OpCrossesBelow, ref(id, "lower")))
		},
	},
	indicators.KindStochastic: {
		params: []indicators.ParamDef{
			{Name: "oversold", Default: 20, Range: indicators.Range{Min: 5, Max: 35, Step: 1}},
			{Name: "overbought", Default: 80, Range: indicators.Range{Min: 65, Max: 95, Step: 1}},
		},
		build: bandRule("k"),
	},
	indicators.KindOBV: {build: crossRule(field("value"), field("signal"))},
}

// fails to compile when a Kind has no signal rule entry
var _ = [1]struct{}{}[len(signalRules)-indicators.KindCount]

// Searchable reports whether kind can drive entry/exit signals on its own
func Searchable(kind indicators.Kind) bool {
	return kind.Valid() && signalRules[kind].build != nil
}

// SignalParamSpecs returns calculation and rule parameters of kind at their defaults
func SignalParamSpecs(kind indicators.Kind) []indicators.ParameterSpec {
	specs := kind.DefaultParams()
	for _, d := range signalRules[kind].params {
		specs = append(specs, indicators.ParameterSpec{Name: d.Name, Value: d.Default, Range: d.Range})
	}
	return specs
}

// SignalConfig is one indicator-driven entry or exit rule
type SignalConfig struct {
	IndicatorType indicators.Kind            `json:"indicator_type" yaml:"indicator_type"`
	Params        []indicators.ParameterSpec `json:"params" yaml:"params"`
	Side          types.Side                 `json:"side" yaml:"side"`
	Purpose       types.Purpose              `json:"purpose" yaml:"purpose"`
}

// DefaultSignalConfig returns kind's rule with default parameters
func DefaultSignalConfig(kind indicators.Kind, side types.Side, purpose types.Purpose) (SignalConfig, error) {
	cfg := SignalConfig{IndicatorType: kind, Side: side, Purpose: purpose}
	if !kind.Valid() {
		return cfg, errors.NewConfigError("backtest", "indicator_type", "unknown indicator kind %d", int(kind))
	}
	cfg.Params = SignalParamSpecs(kind)
	return cfg, cfg.Validate()
}

// Clone returns a deep copy of s
func (s SignalConfig) Clone() SignalConfig {
	s.Params = indicators.CloneParams(s.Params)
	return s
}

// Opposite returns the same indicator and parameters for the other purpose
func (s SignalConfig) Opposite() SignalConfig {
	out := s.Clone()
	if s.Purpose == types.PurposeEntry {
		out.Purpose = types.PurposeExit
	} else {
		out.Purpose = types.PurposeEntry
	}
	return out
}

// Validate checks kind, side, purpose and parameters
func (s SignalConfig) Validate() error {
	if !s.IndicatorType.Valid() {
		return errors.NewConfigError("backtest", "indicator_type", "unknown indicator kind %d", int(s.IndicatorType))
	}
	if !Searchable(s.IndicatorType) {
		return errors.NewConfigError("backtest", "indicator_type", "%s has no directional signal rule", s.IndicatorType)
	}
	if _, err := types.ParseSide(string(s.Side)); err != nil {
		return errors.WrapConfigError(err, "backtest", "side")
	}
	if _, err := types.ParsePurpose(string(s.Purpose)); err != nil {
		return errors.WrapConfigError(err, "backtest", "purpose")
	}
	for _, p := range s.Params {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Build returns the indicator definition and bound condition tree for the
// rule, with the indicator registered under id
func (s SignalConfig) Build(id string) (indicators.Definition, conditions.Node, error) {
	if err := s.Validate(); err != nil {
		return indicators.Definition{}, conditions.Node{}, err
	}

	rule := signalRules[s.IndicatorType]
	def := indicators.Definition{ID: id, Type: s.IndicatorType}
	values := make(map[string]float64, len(s.Params))
	for _, d := range s.IndicatorType.ParamDefs() {
		if p, ok := indicators.FindParam(s.Params, d.Name); ok {
			def.Params = append(def.Params, p)
		}
	}
	for _, d := range rule.params {
		values[id+"."+d.Name] = d.Default
	}
	for _, p := range s.Params {
		values[id+"."+p.Name] = p.Value
	}

	node, err := conditions.Bind(rule.build(id, s.Side, s.Purpose), values)
	if err != nil {
		return indicators.Definition{}, conditions.Node{}, err
	}
	return def, node, nil
}
