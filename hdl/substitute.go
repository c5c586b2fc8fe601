package hdl

import (
	"hdlflow/ir"
	"hdlflow/statemachine"
)

// substituteExpr forwards every reference to a variable in subs to the
// expression that computes its value, recursively. emitStateArm uses
// this to resolve a fused clock state's chain of assigns — fusing
// several originally-sequential assignments into one clock state can
// produce a chain like "a = 1; b = a + 1" — purely in terms of the
// registers as they stood at the start of the cycle. The emitted module
// still renders each step with `<=`, and non-blocking assignment never
// makes a same-cycle write visible to a later read in the same always
// block, so without this forwarding step "b <= a + 1" would silently
// read last cycle's `a`, not the `1` just computed.
func substituteExpr(e ir.Expression, subs map[*ir.Variable]ir.Expression) ir.Expression {
	switch v := e.(type) {
	case ir.VarRef:
		if sub, ok := subs[v.Var]; ok {
			return sub
		}
		return v
	case ir.Ternary:
		return ir.Ternary{
			Cond:  substituteExpr(v.Cond, subs),
			Left:  substituteExpr(v.Left, subs),
			Right: substituteExpr(v.Right, subs),
		}
	case ir.BinOp:
		return ir.BinOp{Left: substituteExpr(v.Left, subs), Op: v.Op, Right: substituteExpr(v.Right, subs)}
	case ir.UnaryOp:
		return ir.UnaryOp{Op: v.Op, Expr: substituteExpr(v.Expr, subs)}
	default:
		return e
	}
}

// resolveAssigns forwards each assign's right-hand side through every
// earlier assign in the same state (in execution order) and returns the
// resolved expressions alongside a substitution map covering the whole
// chain, for use by a trailing Yield's output expressions.
func resolveAssigns(assigns []statemachine.Assign) ([]ir.Expression, map[*ir.Variable]ir.Expression) {
	subs := make(map[*ir.Variable]ir.Expression, len(assigns))
	resolved := make([]ir.Expression, len(assigns))
	for i, a := range assigns {
		resolved[i] = substituteExpr(a.Rvalue, subs)
		subs[a.Lvalue] = resolved[i]
	}
	return resolved, subs
}
