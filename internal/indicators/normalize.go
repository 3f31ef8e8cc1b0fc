package indicators

import (
	"fmt"
	"math"
	"strings"
)

// sharedAliases are spellings produced by other libraries for the same canonical field
var sharedAliases = map[string]string{
	"upper_band":  "upper",
	"middle_band": "middle",
	"lower_band":  "lower",
	"bb_upper":    "upper",
	"bb_middle":   "middle",
	"bb_lower":    "lower",
	"bb_width":    "width",
	"bb_percent":  "percent",
	"macd_line":   "value",
	"macd_signal": "signal",
	"signal_line": "signal",
	"macd_hist":   "histogram",
	"hist":        "histogram",
	"basis":       "middle",
	"percent_k":   "k",
	"percent_d":   "d",
	"pdi":         "plus_di",
	"mdi":         "minus_di",
}

// CanonicalField maps a raw output name of kind k onto its canonical field.
// This is the only place where field names are translated.
func CanonicalField(k Kind, raw string) (string, bool) {
	c := &calculators[k]
	key := strings.ToLower(strings.TrimSpace(raw))
	if f, ok := c.raw[key]; ok {
		return f, true
	}
	candidate := key
	if f, ok := sharedAliases[key]; ok {
		candidate = f
	}
	if key == c.name {
		candidate = c.fields[0]
	}
	for _, f := range c.fields {
		if f == candidate {
			return f, true
		}
	}
	return "", false
}

// Normalize renames raw series of kind k to canonical fields. Every canonical
// field must be produced exactly once.
func Normalize(k Kind, raw map[string][]float64) (map[string][]float64, error) {
	out := make(map[string][]float64, len(raw))
	for name, series := range raw {
		field, ok := CanonicalField(k, name)
		if !ok {
			return nil, fmt.Errorf("%s: unrecognised output %q", k, name)
		}
		if _, dup := out[field]; dup {
			return nil, fmt.Errorf("%s: output %q duplicates field %q", k, name, field)
		}
		out[field] = series
	}
	for _, f := range calculators[k].fields {
		if _, ok := out[f]; !ok {
			return nil, fmt.Errorf("%s: missing field %q", k, f)
		}
	}
	return out, nil
}

// NormalizeReading builds a Reading of kind k from one bar of raw values.
// NaN values are treated as absent.
func NormalizeReading(k Kind, raw map[string]float64) (Reading, error) {
	r := Reading{Fields: k.Fields(), Values: make(map[string]float64, len(raw))}
	for name, v := range raw {
		field, ok := CanonicalField(k, name)
		if !ok {
			return Reading{}, fmt.Errorf("%s: unrecognised output %q", k, name)
		}
		if math.IsNaN(v) {
			continue
		}
		r.Values[field] = v
	}
	return r, nil
}
