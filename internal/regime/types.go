package regime

import (
	"sort"
	"time"

	"github.com/ducminhle1904/regime-optimizer/internal/conditions"
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
)

// Unknown labels bars where no regime matched
const Unknown = "UNKNOWN"

// Scope restricts a definition to entry-side, exit-side or both classifications
type Scope string

const (
	ScopeEntry Scope = "entry"
	ScopeExit  Scope = "exit"
	ScopeBoth  Scope = "both"
)

// Valid reports whether s is a known scope
func (s Scope) Valid() bool {
	return s == ScopeEntry || s == ScopeExit || s == ScopeBoth
}

// admits reports whether a definition with scope s takes part in a
// classification requested for filter
func (s Scope) admits(filter Scope) bool {
	if filter == "" || filter == ScopeBoth || s == ScopeBoth {
		return true
	}
	return s == filter
}

// Definition is one regime rule
type Definition struct {
	ID         string          `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Conditions conditions.Node `json:"conditions" yaml:"conditions"`
	Priority   int             `json:"priority" yaml:"priority"`
	Scope      Scope           `json:"scope" yaml:"scope"`
}

// Clone returns a deep copy of d
func (d Definition) Clone() Definition {
	d.Conditions = d.Conditions.Clone()
	return d
}

// Config is a complete, immutable classification setup
type Config struct {
	Indicators []indicators.Definition `json:"indicators" yaml:"indicators"`
	Regimes    []Definition            `json:"regimes" yaml:"regimes"`
}

// Clone returns a deep copy of c
func (c Config) Clone() Config {
	out := Config{
		Indicators: make([]indicators.Definition, len(c.Indicators)),
		Regimes:    make([]Definition, len(c.Regimes)),
	}
	for i, d := range c.Indicators {
		out.Indicators[i] = d.Clone()
	}
	for i, r := range c.Regimes {
		out.Regimes[i] = r.Clone()
	}
	return out
}

// FieldMap returns the canonical fields of every declared indicator plus the
// price pseudo-indicator
func (c Config) FieldMap() map[string][]string {
	fields := make(map[string][]string, len(c.Indicators)+1)
	fields[indicators.PriceID] = indicators.PriceFields
	for _, d := range c.Indicators {
		fields[d.ID] = d.Type.Fields()
	}
	return fields
}

// Validate reports configuration faults. Placeholders must already be bound
// unless allowParams is set.
func (c Config) Validate() error {
	return c.validate(false)
}

// ValidateTemplate is Validate for configurations whose conditions may still
// hold parameter placeholders
func (c Config) ValidateTemplate() error {
	return c.validate(true)
}

func (c Config) validate(allowParams bool) error {
	if err := indicators.ValidateDefinitions(c.Indicators); err != nil {
		return err
	}
	if len(c.Regimes) == 0 {
		return errors.NewConfigError("regime", "regimes", "at least one regime definition is required")
	}

	fields := c.FieldMap()
	values := c.ParamValues()
	seen := make(map[string]bool, len(c.Regimes))
	for _, r := range c.Regimes {
		switch {
		case r.ID == "":
			return errors.NewConfigError("regime", "id", "regime id is required")
		case r.ID == Unknown:
			return errors.NewConfigError("regime", "id", "%q is reserved", Unknown)
		case seen[r.ID]:
			return errors.NewConfigError("regime", "id", "duplicate regime id %q", r.ID)
		case !r.Scope.Valid():
			return errors.NewConfigError("regime", r.ID+".scope", "unknown scope %q", r.Scope)
		}
		seen[r.ID] = true

		if err := conditions.Validate(r.Conditions, fields); err != nil {
			return errors.WrapConfigError(err, "regime", r.ID+".conditions")
		}
		keys := r.Conditions.ParamKeys()
		if len(keys) > 0 && !allowParams {
			return errors.NewConfigError("regime", r.ID+".conditions", "unbound parameters %v", keys)
		}
		for _, k := range keys {
			if _, ok := values[k]; !ok {
				return errors.NewConfigError("regime", r.ID+".conditions", "placeholder %s names no indicator parameter", k)
			}
		}
	}
	return nil
}

// Ordered returns the definitions admitted by filter, highest priority first;
// equal priorities keep their configured order
func (c Config) Ordered(filter Scope) []Definition {
	out := make([]Definition, 0, len(c.Regimes))
	for _, r := range c.Regimes {
		if r.Scope.admits(filter) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// RegimeIDs returns the regime ids in configured order
func (c Config) RegimeIDs() []string {
	ids := make([]string, len(c.Regimes))
	for i, r := range c.Regimes {
		ids[i] = r.ID
	}
	return ids
}

// Period is a maximal run of bars sharing one label. EndIdx is inclusive.
type Period struct {
	RegimeID string    `json:"regime_id" validate:"required"`
	StartIdx int       `json:"start_idx" validate:"min=0"`
	EndIdx   int       `json:"end_idx" validate:"gtefield=StartIdx"`
	StartTS  time.Time `json:"start_ts"`
	EndTS    time.Time `json:"end_ts"`
}

// Bars returns the number of bars in the period
func (p Period) Bars() int { return p.EndIdx - p.StartIdx + 1 }
