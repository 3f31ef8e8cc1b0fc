package conditions

import (
	stderrors "errors"
	"fmt"
	"math"
	"sort"

	"github.com/ducminhle1904/regime-optimizer/internal/errors"
	"github.com/ducminhle1904/regime-optimizer/internal/indicators"
)

const eqTolerance = 1e-9

// ErrWarmup marks a referenced value that exists but is not available yet on
// this bar. It is not a fault: the condition is simply not ready.
var ErrWarmup = stderrors.New("indicator value not available yet")

// Context is the data a tree is evaluated against. Previous is nil on the
// first bar.
type Context struct {
	Current  indicators.Snapshot
	Previous indicators.Snapshot
	Bar      int
}

// Evaluate evaluates n against ctx. Errors are one of: *errors.EvaluationError
// or *errors.ConfigError (fatal), an ErrWarmup wrap (not ready), or
// *errors.RuntimeFault.
func Evaluate(n Node, ctx Context) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = errors.NewRuntimeFault("conditions", "evaluate", fmt.Errorf("panic: %v", r)).
				WithContext("bar", ctx.Bar)
		}
	}()
	return evaluate(n, ctx)
}

// IsWarmup reports whether err only signals missing history
func IsWarmup(err error) bool {
	return stderrors.Is(err, ErrWarmup)
}

func deferrable(err error) bool {
	var fault *errors.RuntimeFault
	return IsWarmup(err) || stderrors.As(err, &fault)
}

func evaluate(n Node, ctx Context) (bool, error) {
	if !n.IsGroup() {
		return evaluateLeaf(n, ctx)
	}

	// deferred holds the first not-ready child; a later definitive child still wins
	var deferred error
	switch n.Operator {
	case And:
		for _, child := range n.Children {
			ok, err := evaluate(child, ctx)
			if err != nil {
				if !deferrable(err) {
					return false, err
				}
				if deferred == nil {
					deferred = err
				}
				continue
			}
			if !ok {
				return false, nil
			}
		}
		if deferred != nil {
			return false, deferred
		}
		return true, nil
	case Or:
		for _, child := range n.Children {
			ok, err := evaluate(child, ctx)
			if err != nil {
				if !deferrable(err) {
					return false, err
				}
				if deferred == nil {
					deferred = err
				}
				continue
			}
			if ok {
				return true, nil
			}
		}
		if deferred != nil {
			return false, deferred
		}
		return false, nil
	default:
		return false, errors.NewConfigError("conditions", "operator", "unknown group operator %q", n.Operator)
	}
}

func evaluateLeaf(n Node, ctx Context) (bool, error) {
	left, err := resolve(n.Left, ctx.Current, ctx.Bar)
	if err != nil {
		return false, err
	}
	right, err := resolve(n.Right, ctx.Current, ctx.Bar)
	if err != nil {
		return false, err
	}

	switch n.Op {
	case OpGT:
		return left > right, nil
	case OpLT:
		return left < right, nil
	case OpGTE:
		return left >= right, nil
	case OpLTE:
		return left <= right, nil
	case OpEQ:
		return math.Abs(left-right) <= eqTolerance, nil
	case OpCrossesAbove, OpCrossesBelow:
		if ctx.Previous == nil {
			return false, fmt.Errorf("%w: %s needs a previous bar", ErrWarmup, n.Op)
		}
		prevLeft, err := resolve(n.Left, ctx.Previous, ctx.Bar-1)
		if err != nil {
			return false, err
		}
		prevRight, err := resolve(n.Right, ctx.Previous, ctx.Bar-1)
		if err != nil {
			return false, err
		}
		if n.Op == OpCrossesAbove {
			return prevLeft <= prevRight && left > right, nil
		}
		return prevLeft >= prevRight && left < right, nil
	default:
		return false, errors.NewConfigError("conditions", "op", "unknown operator %q", n.Op)
	}
}

func resolve(o *Operand, snap indicators.Snapshot, bar int) (float64, error) {
	switch {
	case o == nil:
		return 0, errors.NewConfigError("conditions", "operand", "missing operand")
	case o.isLiteral():
		return *o.Value, nil
	case o.isParam():
		return 0, errors.NewConfigError("conditions", o.ParamKey(), "parameter placeholder was not bound")
	}

	reading, ok := snap[o.IndicatorID]
	if !ok {
		ids := snap.IDs()
		sort.Strings(ids)
		return 0, &errors.EvaluationError{IndicatorID: o.IndicatorID, Available: ids, BarIndex: bar}
	}
	v, known, present := reading.Lookup(o.Field)
	if !known {
		return 0, &errors.EvaluationError{
			IndicatorID: o.IndicatorID,
			Field:       o.Field,
			Available:   append([]string(nil), reading.Fields...),
			BarIndex:    bar,
		}
	}
	if !present {
		return 0, fmt.Errorf("%w: %s.%s at bar %d", ErrWarmup, o.IndicatorID, o.Field, bar)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.NewRuntimeFault("conditions", "resolve", fmt.Errorf("non-finite value %v", v)).
			WithContext("ref", o.String()).WithContext("bar", bar)
	}
	return v, nil
}
