package indicators

import (
	"fmt"
	"math"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/pkg/types"
)

// PriceID is the reserved pseudo-indicator exposing the raw bar values
const PriceID = "price"

// PriceFields are the fields of the price pseudo-indicator
var PriceFields = []string{"open", "high", "low", "close", "volume"}

// Definition is one configured indicator instance
type Definition struct {
	ID     string          `json:"id" yaml:"id"`
	Type   Kind            `json:"type" yaml:"type"`
	Params []ParameterSpec `json:"params" yaml:"params"`
}

// Clone returns a deep copy of d
func (d Definition) Clone() Definition {
	d.Params = CloneParams(d.Params)
	return d
}

// Warmup returns the number of leading bars without a primary value
func (d Definition) Warmup() int {
	return d.Type.Warmup(d.Params)
}

// Validate checks kind, id and every parameter spec
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.NewConfigError("indicators", "id", "indicator id is required")
	}
	if d.ID == PriceID {
		return errors.NewConfigError("indicators", "id", "%q is reserved", PriceID)
	}
	if !d.Type.Valid() {
		return errors.NewConfigError("indicators", d.ID+".type", "unknown indicator type %d", int(d.Type))
	}
	seen := make(map[string]bool, len(d.Params))
	for _, p := range d.Params {
		if seen[p.Name] {
			return errors.NewConfigError("indicators", d.ID+"."+p.Name, "duplicate parameter")
		}
		seen[p.Name] = true
		if err := p.Validate(); err != nil {
			return errors.WrapConfigError(err, "indicators", d.ID+"."+p.Name)
		}
	}

	p := d.Type.resolve(d.Params)
	for _, def := range calculators[d.Type].params {
		if p[def.Name] <= 0 {
			return errors.NewConfigError("indicators", d.ID+"."+def.Name, "must be positive, got %v", p[def.Name])
		}
	}
	if d.Type == KindMACD && p.Int("fast_period") >= p.Int("slow_period") {
		return errors.NewConfigError("indicators", d.ID, "fast_period must be below slow_period")
	}
	return nil
}

// ValidateDefinitions checks every definition and id uniqueness
func ValidateDefinitions(defs []Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.ID] {
			return errors.NewConfigError("indicators", "id", "duplicate indicator id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Reading is the value set of one indicator on one bar. Fields lists every
// canonical field in order; Values only holds fields that have a value.
type Reading struct {
	Fields []string
	Values map[string]float64
}

// Lookup returns the value of field together with whether the field exists
// for this indicator and whether it has a value on this bar
func (r Reading) Lookup(field string) (v float64, known, present bool) {
	for _, f := range r.Fields {
		if f == field {
			v, present = r.Values[field]
			return v, true, present
		}
	}
	return 0, false, false
}

// Snapshot maps indicator id to its reading on one bar
type Snapshot map[string]Reading

// IDs returns the indicator ids in the snapshot
func (s Snapshot) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

type computed struct {
	kind   Kind
	fields []string
	series map[string][]float64
}

// Frame holds canonical indicator series for a bar series
type Frame struct {
	bars []types.OHLCV
	ids  []string
	data map[string]computed
}

// Compute evaluates every definition over bars
func Compute(bars []types.OHLCV, defs []Definition) (*Frame, error) {
	if err := ValidateDefinitions(defs); err != nil {
		return nil, err
	}

	f := &Frame{bars: bars, ids: make([]string, 0, len(defs)), data: make(map[string]computed, len(defs))}
	for _, d := range defs {
		c := &calculators[d.Type]
		series, err := Normalize(d.Type, c.run(bars, d.Type.resolve(d.Params)))
		if err != nil {
			return nil, fmt.Errorf("computing %s: %w", d.ID, err)
		}
		f.ids = append(f.ids, d.ID)
		f.data[d.ID] = computed{kind: d.Type, fields: c.fields, series: series}
	}
	return f, nil
}

// Len returns the number of bars
func (f *Frame) Len() int { return len(f.bars) }

// Bars returns the underlying bar series
func (f *Frame) Bars() []types.OHLCV { return f.bars }

// IDs returns the indicator ids in definition order
func (f *Frame) IDs() []string { return append([]string(nil), f.ids...) }

// Series returns a copy of one canonical series
func (f *Frame) Series(id, field string) ([]float64, bool) {
	c, ok := f.data[id]
	if !ok {
		return nil, false
	}
	s, ok := c.series[field]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), s...), true
}

// Snapshot returns the readings of every indicator on bar i
func (f *Frame) Snapshot(i int) Snapshot {
	snap := make(Snapshot, len(f.ids)+1)
	snap[PriceID] = priceReading(f.bars[i])
	for _, id := range f.ids {
		c := f.data[id]
		r := Reading{Fields: c.fields, Values: make(map[string]float64, len(c.fields))}
		for _, field := range c.fields {
			if v := c.series[field][i]; !math.IsNaN(v) {
				r.Values[field] = v
			}
		}
		snap[id] = r
	}
	return snap
}

func priceReading(b types.OHLCV) Reading {
	return Reading{
		Fields: PriceFields,
		Values: map[string]float64{
			"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume,
		},
	}
}
