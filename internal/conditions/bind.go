package conditions

import (
	"github.com/ducminhle1904/regime-optimizer/internal/errors"
)

// Bind returns a copy of n with every parameter placeholder replaced by the
// value found under its "indicator_id.param" key
func Bind(n Node, params map[string]float64) (Node, error) {
	out := n.Clone()
	if err := bind(&out, params); err != nil {
		return Node{}, err
	}
	return out, nil
}

func bind(n *Node, params map[string]float64) error {
	if n.IsGroup() {
		for i := range n.Children {
			if err := bind(&n.Children[i], params); err != nil {
				return err
			}
		}
		return nil
	}
	for _, o := range []*Operand{n.Left, n.Right} {
		if o == nil || !o.isParam() {
			continue
		}
		v, ok := params[o.ParamKey()]
		if !ok {
			return errors.NewConfigError("conditions", o.ParamKey(), "no value for parameter placeholder")
		}
		*o = Operand{Value: &v}
	}
	return nil
}

// Validate checks the structure of n and that every reference names a
// declared indicator and one of its fields. fields maps indicator id to its
// canonical field list.
func Validate(n Node, fields map[string][]string) error {
	if n.IsGroup() {
		if n.Operator != And && n.Operator != Or {
			return errors.NewConfigError("conditions", "operator", "unknown group operator %q", n.Operator)
		}
		if len(n.Children) == 0 {
			return errors.NewConfigError("conditions", "children", "%s group has no children", n.Operator)
		}
		for _, c := range n.Children {
			if err := Validate(c, fields); err != nil {
				return err
			}
		}
		return nil
	}

	if !n.Op.Valid() {
		return errors.NewConfigError("conditions", "op", "unknown operator %q", n.Op)
	}
	if n.Left == nil || n.Right == nil {
		return errors.NewConfigError("conditions", "operand", "leaf %q needs left and right operands", n.Op)
	}
	if !n.Left.isRef() {
		return errors.NewConfigError("conditions", "left", "left operand must be a field reference, got %s", n.Left)
	}
	for _, o := range []*Operand{n.Left, n.Right} {
		if o.isLiteral() {
			continue
		}
		known, ok := fields[o.IndicatorID]
		if !ok {
			return errors.NewConfigError("conditions", o.String(), "condition references unknown indicator id %q", o.IndicatorID)
		}
		if o.isParam() {
			continue
		}
		if o.Field == "" {
			return errors.NewConfigError("conditions", o.IndicatorID, "field reference needs a field")
		}
		if !contains(known, o.Field) {
			return errors.NewConfigError("conditions", o.String(), "indicator %q has no field %q (fields: %v)",
				o.IndicatorID, o.Field, known)
		}
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
