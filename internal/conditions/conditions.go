// Package conditions evaluates boolean rule trees over indicator snapshots.
//
// A tree is made of groups (AND/OR over children) and leaves comparing a
// field reference with a literal, another field reference, or a parameter
// placeholder that is bound to a concrete value before evaluation.
package conditions

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Op is a leaf comparison operator
type Op string

const (
	OpGT           Op = "gt"
	OpLT           Op = "lt"
	OpEQ           Op = "eq"
	OpGTE          Op = "gte"
	OpLTE          Op = "lte"
	OpCrossesAbove Op = "crosses_above"
	OpCrossesBelow Op = "crosses_below"
)

// Valid reports whether op is a known operator
func (op Op) Valid() bool {
	switch op {
	case OpGT, OpLT, OpEQ, OpGTE, OpLTE, OpCrossesAbove, OpCrossesBelow:
		return true
	}
	return false
}

// IsCross reports whether op needs the previous bar
func (op Op) IsCross() bool {
	return op == OpCrossesAbove || op == OpCrossesBelow
}

// Logic combines the children of a group
type Logic string

const (
	And Logic = "AND"
	Or  Logic = "OR"
)

// Operand is one side of a leaf. Exactly one of the forms is set:
// a literal Value, a field reference (IndicatorID + Field), or a parameter
// placeholder (IndicatorID + Param).
type Operand struct {
	IndicatorID string   `json:"indicator_id,omitempty" yaml:"indicator_id,omitempty"`
	Field       string   `json:"field,omitempty" yaml:"field,omitempty"`
	Param       string   `json:"param,omitempty" yaml:"param,omitempty"`
	Value       *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// Ref builds a field reference operand
func Ref(indicatorID, field string) *Operand {
	return &Operand{IndicatorID: indicatorID, Field: field}
}

// Lit builds a literal operand
func Lit(v float64) *Operand {
	return &Operand{Value: &v}
}

// Param builds a parameter placeholder operand
func Param(indicatorID, name string) *Operand {
	return &Operand{IndicatorID: indicatorID, Param: name}
}

func (o *Operand) isLiteral() bool { return o.Value != nil }
func (o *Operand) isParam() bool   { return o.Value == nil && o.Param != "" }
func (o *Operand) isRef() bool     { return o.Value == nil && o.Param == "" }

// ParamKey is the "indicator_id.param" key of a placeholder
func (o *Operand) ParamKey() string { return o.IndicatorID + "." + o.Param }

func (o *Operand) String() string {
	switch {
	case o == nil:
		return "<nil>"
	case o.isLiteral():
		return strconv.FormatFloat(*o.Value, 'g', -1, 64)
	case o.isParam():
		return "$" + o.ParamKey()
	default:
		return o.IndicatorID + "." + o.Field
	}
}

func (o *Operand) clone() *Operand {
	if o == nil {
		return nil
	}
	c := *o
	if o.Value != nil {
		v := *o.Value
		c.Value = &v
	}
	return &c
}

// Node is either a group (Operator set) or a leaf (Op set)
type Node struct {
	Operator Logic  `json:"operator,omitempty" yaml:"operator,omitempty"`
	Children []Node `json:"children,omitempty" yaml:"children,omitempty"`

	Left  *Operand `json:"left,omitempty" yaml:"left,omitempty"`
	Op    Op       `json:"op,omitempty" yaml:"op,omitempty"`
	Right *Operand `json:"right,omitempty" yaml:"right,omitempty"`
}

// AllOf builds an AND group
func AllOf(children ...Node) Node {
	return Node{Operator: And, Children: children}
}

// AnyOf builds an OR group
func AnyOf(children ...Node) Node {
	return Node{Operator: Or, Children: children}
}

// Compare builds a leaf
func Compare(left *Operand, op Op, right *Operand) Node {
	return Node{Left: left, Op: op, Right: right}
}

// IsGroup reports whether n is a group node
func (n Node) IsGroup() bool { return n.Operator != "" }

// Clone returns a deep copy of n
func (n Node) Clone() Node {
	out := Node{Operator: n.Operator, Op: n.Op, Left: n.Left.clone(), Right: n.Right.clone()}
	if n.Children != nil {
		out.Children = make([]Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

func (n Node) String() string {
	if !n.IsGroup() {
		return fmt.Sprintf("%s %s %s", n.Left, n.Op, n.Right)
	}
	parts := make([]string, len(n.Children))
	for i, c := range n.Children {
		parts[i] = c.String()
	}
	return "(" + strings.Join(parts, " "+string(n.Operator)+" ") + ")"
}

// Walk calls fn for every leaf in evaluation order
func (n Node) Walk(fn func(leaf Node)) {
	if !n.IsGroup() {
		fn(n)
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// ParamKeys returns the sorted, de-duplicated placeholder keys of n
func (n Node) ParamKeys() []string {
	seen := map[string]bool{}
	n.Walk(func(leaf Node) {
		for _, o := range []*Operand{leaf.Left, leaf.Right} {
			if o != nil && o.isParam() {
				seen[o.ParamKey()] = true
			}
		}
	})
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IndicatorIDs returns the sorted indicator ids referenced by n
func (n Node) IndicatorIDs() []string {
	seen := map[string]bool{}
	n.Walk(func(leaf Node) {
		for _, o := range []*Operand{leaf.Left, leaf.Right} {
			if o != nil && !o.isLiteral() {
				seen[o.IndicatorID] = true
			}
		}
	})
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
