package indicators

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// Kind is the closed set of indicator types the engine can compute
type Kind int

const (
	KindSMA Kind = iota
	KindEMA
	KindRSI
	KindMACD
	KindBollinger
	KindADX
	KindATR
	KindDonchian
	KindMFI
	KindKeltner
	KindStochastic
	KindOBV

	kindCount
)

// KindCount is the number of supported kinds
const KindCount = int(kindCount)

// ParamDef declares one calculation parameter with its default search range
type ParamDef struct {
	Name    string
	Default float64
	Range   Range
}

type calculator struct {
	name    string
	aliases []string
	// fields are the canonical output names; the first one is the primary field
	fields []string
	params []ParamDef
	// raw maps the names emitted by the stepper onto canonical fields
	raw     map[string]string
	warmup  func(p Params) int
	// outputs are the raw names in the order the stepper writes them
	outputs []string
	stepper func(p Params) stepFunc
}

// run replays the stepper over bars and returns one raw series per output
func (c *calculator) run(bars []types.OHLCV, p Params) map[string][]float64 {
	step := c.stepper(p)
	series := make([][]float64, len(c.outputs))
	for k := range series {
		series[k] = make([]float64, len(bars))
	}
	row := make([]float64, len(c.outputs))
	for i, b := range bars {
		step(b, row)
		for k, v := range row {
			series[k][i] = v
		}
	}
	out := make(map[string][]float64, len(c.outputs))
	for k, name := range c.outputs {
		out[name] = series[k]
	}
	return out
}

func periodWarmup(name string) func(Params) int {
	return func(p Params) int { return p.Int(name) }
}

var calculators = [...]calculator{
	KindSMA: {
		name:    "sma",
		aliases: []string{"ma", "simple_moving_average"},
		fields:  []string{"value"},
		params:  []ParamDef{{"period", 20, Range{5, 200, 1}}},
		raw:     map[string]string{"sma": "value"},
		warmup:  func(p Params) int { return p.Int("period") - 1 },
		outputs: []string{"sma"},
		stepper: stepSMA,
	},
	KindEMA: {
		name:    "ema",
		aliases: []string{"exponential_moving_average"},
		fields:  []string{"value"},
		params:  []ParamDef{{"period", 20, Range{5, 200, 1}}},
		raw:     map[string]string{"ema": "value"},
		warmup:  func(p Params) int { return p.Int("period") - 1 },
		outputs: []string{"ema"},
		stepper: stepEMA,
	},
	KindRSI: {
		name:    "rsi",
		fields:  []string{"value"},
		params:  []ParamDef{{"period", 14, Range{5, 30, 1}}},
		raw:     map[string]string{"rsi": "value"},
		warmup:  periodWarmup("period"),
		outputs: []string{"rsi"},
		stepper: stepRSI,
	},
	KindMACD: {
		name:   "macd",
		fields: []string{"value", "signal", "histogram"},
		params: []ParamDef{
			{"fast_period", 12, Range{5, 19, 1}},
			{"slow_period", 26, Range{20, 50, 1}},
			{"signal_period", 9, Range{5, 15, 1}},
		},
		raw: map[string]string{"macd": "value", "macdsignal": "signal", "macdhist": "histogram"},
		warmup: func(p Params) int {
			return p.Int("slow_period") + p.Int("signal_period") - 2
		},
		outputs: []string{"macd", "macdsignal", "macdhist"},
		stepper: stepMACD,
	},
	KindBollinger: {
		name:    "bbands",
		aliases: []string{"bb", "bollinger", "bollinger_bands"},
		fields:  []string{"upper", "middle", "lower", "width", "percent"},
		params: []ParamDef{
			{"period", 20, Range{10, 50, 1}},
			{"std_dev", 2, Range{1, 3, 0.1}},
		},
		raw: map[string]string{
			"upperband": "upper", "middleband": "middle", "lowerband": "lower",
			"bandwidth": "width", "percent_b": "percent",
		},
		warmup:  func(p Params) int { return p.Int("period") - 1 },
		outputs: []string{"upperband", "middleband", "lowerband", "bandwidth", "percent_b"},
		stepper: stepBollinger,
	},
	KindADX: {
		name:    "adx",
		fields:  []string{"value", "plus_di", "minus_di"},
		params:  []ParamDef{{"period", 14, Range{7, 30, 1}}},
		raw:     map[string]string{"adx": "value", "plus_di": "plus_di", "minus_di": "minus_di"},
		warmup:  func(p Params) int { return 2*p.Int("period") - 1 },
		outputs: []string{"adx", "plus_di", "minus_di"},
		stepper: stepADX,
	},
	KindATR: {
		name:    "atr",
		fields:  []string{"value"},
		params:  []ParamDef{{"period", 14, Range{5, 30, 1}}},
		raw:     map[string]string{"atr": "value"},
		warmup:  periodWarmup("period"),
		outputs: []string{"atr"},
		stepper: stepATR,
	},
	KindDonchian: {
		name:    "donchian",
		aliases: []string{"dc", "donchian_channels"},
		fields:  []string{"upper", "middle", "lower"},
		params:  []ParamDef{{"period", 20, Range{10, 60, 1}}},
		raw:     map[string]string{"dcu": "upper", "dcm": "middle", "dcl": "lower"},
		warmup:  func(p Params) int { return p.Int("period") - 1 },
		outputs: []string{"dcu", "dcm", "dcl"},
		stepper: stepDonchian,
	},
	KindMFI: {
		name:    "mfi",
		fields:  []string{"value"},
		params:  []ParamDef{{"period", 14, Range{5, 30, 1}}},
		raw:     map[string]string{"mfi": "value"},
		warmup:  periodWarmup("period"),
		outputs: []string{"mfi"},
		stepper: stepMFI,
	},
	KindKeltner: {
		name:    "keltner",
		aliases: []string{"kc", "keltner_channels"},
		fields:  []string{"upper", "middle", "lower"},
		params: []ParamDef{
			{"period", 20, Range{10, 50, 1}},
			{"atr_period", 10, Range{5, 30, 1}},
			{"multiplier", 2, Range{1, 3, 0.1}},
		},
		raw: map[string]string{"kcu": "upper", "kcm": "middle", "kcl": "lower"},
		warmup: func(p Params) int {
			return max(p.Int("period")-1, p.Int("atr_period"))
		},
		outputs: []string{"kcu", "kcm", "kcl"},
		stepper: stepKeltner,
	},
	KindStochastic: {
		name:    "stoch",
		aliases: []string{"stochastic"},
		fields:  []string{"k", "d"},
		params: []ParamDef{
			{"k_period", 14, Range{5, 30, 1}},
			{"d_period", 3, Range{2, 10, 1}},
		},
		raw: map[string]string{"slowk": "k", "slowd": "d"},
		warmup: func(p Params) int {
			return p.Int("k_period") + p.Int("d_period") - 2
		},
		outputs: []string{"slowk", "slowd"},
		stepper: stepStochastic,
	},
	KindOBV: {
		name:    "obv",
		aliases: []string{"on_balance_volume"},
		fields:  []string{"value", "signal"},
		params:  []ParamDef{{"period", 20, Range{5, 60, 1}}},
		raw:     map[string]string{"obv": "value", "obv_signal": "signal"},
		warmup:  func(p Params) int { return p.Int("period") - 1 },
		outputs: []string{"obv", "obv_signal"},
		stepper: stepOBV,
	},
}

// fails to compile when a Kind has no calculator entry
var _ = [1]struct{}{}[len(calculators)-int(kindCount)]

func init() {
	for k := Kind(0); k < kindCount; k++ {
		c := &calculators[k]
		if c.stepper == nil || len(c.outputs) == 0 || len(c.fields) == 0 {
			panic(fmt.Sprintf("indicators: kind %d has no calculator", int(k)))
		}
	}
}

var kindsByName = func() map[string]Kind {
	m := make(map[string]Kind)
	for k := Kind(0); k < kindCount; k++ {
		m[calculators[k].name] = k
		for _, a := range calculators[k].aliases {
			m[a] = k
		}
	}
	return m
}()

// Kinds returns every supported kind in declaration order
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// KindNames returns the canonical names of every kind, sorted
func KindNames() []string {
	out := make([]string, 0, kindCount)
	for _, k := range Kinds() {
		out = append(out, k.String())
	}
	sort.Strings(out)
	return out
}

// ParseKind resolves a canonical name or alias
func ParseKind(name string) (Kind, error) {
	if k, ok := kindsByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return k, nil
	}
	return 0, errors.NewConfigError("indicators", "type", "unknown indicator type %q (supported: %s)",
		name, strings.Join(KindNames(), ", "))
}

// Valid reports whether k is a member of the enum
func (k Kind) Valid() bool { return k >= 0 && k < kindCount }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return calculators[k].name
}

// MarshalText implements encoding.TextMarshaler
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, errors.NewConfigError("indicators", "type", "invalid indicator kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Fields returns the canonical output fields, primary first
func (k Kind) Fields() []string {
	return append([]string(nil), calculators[k].fields...)
}

// ParamDefs returns the calculation parameters of k
func (k Kind) ParamDefs() []ParamDef {
	return append([]ParamDef(nil), calculators[k].params...)
}

// DefaultParams returns the calculation parameters of k at their default values
func (k Kind) DefaultParams() []ParameterSpec {
	defs := calculators[k].params
	out := make([]ParameterSpec, len(defs))
	for i, d := range defs {
		out[i] = ParameterSpec{Name: d.Name, Value: d.Default, Range: d.Range}
	}
	return out
}

// Warmup returns the number of leading bars without a primary value
func (k Kind) Warmup(specs []ParameterSpec) int {
	return calculators[k].warmup(k.resolve(specs))
}

// resolve merges specs over the kind defaults
func (k Kind) resolve(specs []ParameterSpec) Params {
	p := make(Params, len(specs)+len(calculators[k].params))
	for _, d := range calculators[k].params {
		p[d.Name] = d.Default
	}
	for _, s := range specs {
		p[s.Name] = s.Value
	}
	return p
}
