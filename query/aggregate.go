package query

import (
	"sort"

	"hubd/component"
)

// AggOp is the aggregation operator for GetValue(post_op). None means the
// action returns the raw list of matching values.
type AggOp int

const (
	AggNone AggOp = iota
	AggMean
	AggMedian
	AggMin
	AggMax
	AggSum
	AggAny
	AggAll
)

// aggregatable reports which component types each operator accepts.
// Mean/median/min/max/sum require a numeric projection (Dimmer/Int/Real);
// any/all require a boolean projection (Switch/Bool). Text has no
// aggregation operator.
func aggregatable(op AggOp, t component.Type) bool {
	switch op {
	case AggMean, AggMedian, AggMin, AggMax, AggSum:
		return t == component.TypeDimmer || t == component.TypeInt || t == component.TypeReal
	case AggAny, AggAll:
		return t == component.TypeSwitch || t == component.TypeBool
	}
	return false
}

// aggregate folds vals (already confirmed value-bearing and of a uniform
// type) using op. An empty vals returns (zero, false): "no value" per §9,
// not an error.
func aggregate(op AggOp, kind component.Type, vals []component.Value) (component.Value, bool) {
	if len(vals) == 0 {
		return component.Value{}, false
	}
	switch op {
	case AggMean:
		sum := 0.0
		for _, v := range vals {
			sum += v.Num
		}
		return component.Value{Kind: kind, Num: sum / float64(len(vals))}, true
	case AggMedian:
		nums := make([]float64, len(vals))
		for i, v := range vals {
			nums[i] = v.Num
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return component.Value{Kind: kind, Num: nums[mid]}, true
		}
		return component.Value{Kind: kind, Num: (nums[mid-1] + nums[mid]) / 2}, true
	case AggMin:
		min := vals[0].Num
		for _, v := range vals[1:] {
			if v.Num < min {
				min = v.Num
			}
		}
		return component.Value{Kind: kind, Num: min}, true
	case AggMax:
		max := vals[0].Num
		for _, v := range vals[1:] {
			if v.Num > max {
				max = v.Num
			}
		}
		return component.Value{Kind: kind, Num: max}, true
	case AggSum:
		sum := 0.0
		for _, v := range vals {
			sum += v.Num
		}
		return component.Value{Kind: kind, Num: sum}, true
	case AggAny:
		any := false
		for _, v := range vals {
			if v.Bool {
				any = true
				break
			}
		}
		return component.Value{Kind: kind, Bool: any}, true
	case AggAll:
		all := true
		for _, v := range vals {
			if !v.Bool {
				all = false
				break
			}
		}
		return component.Value{Kind: kind, Bool: all}, true
	}
	return component.Value{}, false
}

// ApplyOp is a unary or binary math/logic operator for the Apply action
// (§4.5: read current value, apply op, Set-equivalent emit).
type ApplyOp struct {
	Kind    ApplyOpKind
	Operand component.Value // unused for unary ops
}

// ApplyOpKind enumerates the operators Apply supports.
type ApplyOpKind int

const (
	ApplyNegate ApplyOpKind = iota // unary: !bool, -num
	ApplyNot                       // unary: !bool
	ApplyAdd                       // binary: num + operand
	ApplySub                       // binary: num - operand
	ApplyMul                       // binary: num * operand
	ApplyDiv                       // binary: num / operand
	ApplyAnd                       // binary: bool && operand
	ApplyOr                        // binary: bool || operand
)

// applyTo computes the post-op value for cur given op, preserving cur's
// Kind. The caller has already confirmed cur is value-bearing.
func applyTo(op ApplyOp, cur component.Value) component.Value {
	out := cur
	switch op.Kind {
	case ApplyNegate:
		if cur.Text != "" {
			break
		}
		out.Num = -cur.Num
		out.Bool = !cur.Bool
	case ApplyNot:
		out.Bool = !cur.Bool
	case ApplyAdd:
		out.Num = cur.Num + op.Operand.Num
	case ApplySub:
		out.Num = cur.Num - op.Operand.Num
	case ApplyMul:
		out.Num = cur.Num * op.Operand.Num
	case ApplyDiv:
		out.Num = cur.Num / op.Operand.Num
	case ApplyAnd:
		out.Bool = cur.Bool && op.Operand.Bool
	case ApplyOr:
		out.Bool = cur.Bool || op.Operand.Bool
	}
	return out
}
