package hdl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdlflow/cfgbuild"
	"hdlflow/frontend"
	"hdlflow/ir"
	"hdlflow/statemachine"
)

func buildModule(t *testing.T, source, entry string, threshold int) *statemachine.Module {
	t.Helper()
	captured, err := frontend.Load("test.go", source)
	require.NoError(t, err)
	ns, err := cfgbuild.Build(captured, entry)
	require.NoError(t, err)
	m, err := statemachine.Build(ns, threshold)
	require.NoError(t, err)
	return m
}

const counterSource = `
func counter(limit gen.Int) {
	i := 0
	for i < limit {
		gen.Yield(i)
		i = i + 1
	}
}
`

func TestGenerateModule_BasicShape(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	v := GenerateModule(m, Options{ModuleName: "counter"})

	assert.Contains(t, v, "module counter (")
	assert.Contains(t, v, "input clock,")
	assert.Contains(t, v, "input signed [31:0] limit,")
	assert.Contains(t, v, "output reg signed [31:0] out0,")
	assert.Contains(t, v, "endmodule")
	assert.Contains(t, v, "always @(posedge clock) begin")
}

func TestGenerateModule_SystemVerilogUsesLogicAndAlwaysFF(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	v := GenerateModule(m, Options{ModuleName: "counter", IsSystemVerilog: true})

	assert.Contains(t, v, "always_ff @(posedge clock) begin")
	assert.Contains(t, v, "logic [")
	assert.NotContains(t, v, "reg [")
}

func TestGenerateModule_DefaultsModuleName(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	v := GenerateModule(m, Options{})
	assert.Contains(t, v, "module generated_module (")
}

func TestGenerateModule_IdleStateWaitsForStart(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	v := GenerateModule(m, Options{ModuleName: "counter"})
	assert.Contains(t, v, "if (start) begin")
}

func TestGenerateTestbench_DrivesEachInputTuple(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	tb := GenerateTestbench(m, Options{ModuleName: "counter"}, [][]int32{{3}, {5}})

	assert.Contains(t, tb, "module counter_tb;")
	assert.Contains(t, tb, "counter dut (")
	assert.Contains(t, tb, "wait (done);")
	assert.Contains(t, tb, "$finish;")
	assert.Equal(t, 2, countOccurrences(tb, "wait (done);"))
}

func TestGenerateTestbench_RandomReadyPulsesBackpressure(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	tb := GenerateTestbench(m, Options{ModuleName: "counter", RandomReady: true}, nil)
	assert.Contains(t, tb, "$random")
}

func TestGenerateTestbench_DisplayFormatMatchesArity(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)
	tb := GenerateTestbench(m, Options{ModuleName: "counter"}, nil)
	assert.Contains(t, tb, `$display("%d,%d", valid,out0);`)
}

func countOccurrences(haystack, needle string) int {
	count := 0
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			count++
			i += len(needle) - 1
		}
	}
	return count
}

// TestGenerateModule_FusedAssignForwardsIntoYieldOutput builds with a
// work-per-cycle threshold high enough that the increment feeding the
// yield fuses into the same clock state as the yield itself, and
// checks the emitted out0 expression is resolved against the state's
// starting register value (not left as a bare reference to a register
// the fused assign ahead of it hasn't committed yet) and that the
// register mutation only happens inside the ready-gated block.
func TestGenerateModule_FusedAssignForwardsIntoYieldOutput(t *testing.T) {
	const src = `
func bumper(limit gen.Int) {
	i := 0
	for i < limit {
		i = i + 1
		gen.Yield(i)
	}
}
`
	m := buildModule(t, src, "bumper", 4)
	v := GenerateModule(m, Options{ModuleName: "bumper"})

	const sum = "$signed($signed(_i) + $signed(1))"
	assert.Contains(t, v, "out0 <= "+sum+";")
	assert.NotContains(t, v, "out0 <= $signed(_i);")

	readyIdx := indexOf(v, "if (ready) begin")
	require.GreaterOrEqual(t, readyIdx, 0)
	assignIdx := indexOf(v, "_i <= "+sum+";")
	require.GreaterOrEqual(t, assignIdx, 0)
	assert.Greater(t, assignIdx, readyIdx, "fused register commit must be gated inside the ready block")
}

// TestGenerateModule_RepeatedInlinedYieldFromDeclaresDistinctRegisters
// builds a procedure that delegates to the same helper twice via a
// non-tail `gen.YieldFrom` (so both calls are inlined into the caller's
// own body rather than becoming a state jump) and checks the emitted
// declaration block declares two distinct registers for the helper's
// local `product`, not one name reused by both inlined copies.
func TestGenerateModule_RepeatedInlinedYieldFromDeclaresDistinctRegisters(t *testing.T) {
	const src = `
func quad_multiply(left gen.Int, right gen.Int) {
	gen.YieldFrom(multiplier_generator(left, right))
	gen.YieldFrom(multiplier_generator(left, right))
}

func multiplier_generator(multiplicand gen.Int, multiplier gen.Int) {
	product := 0
	count := 0
	for count < multiplier {
		product = product + multiplicand
		count = count + 1
	}
	gen.Yield(product)
}
`
	m := buildModule(t, src, "quad_multiply", 0)
	v := GenerateModule(m, Options{ModuleName: "quad_multiply"})

	assert.Equal(t, 1, countOccurrences(v, "_product$1;"), "first inlined copy's product register must be declared exactly once")
	assert.Equal(t, 1, countOccurrences(v, "_product$2;"), "second inlined copy's product register must be declared exactly once")
	assert.NotContains(t, v, "_product;", "plain, unsuffixed helper locals must never appear once inlining uniquifies them")
}

// evalConst evaluates e over a concrete register file, mirroring the
// arithmetic the emitted always-block performs, so a test can replay a
// Module's state transitions without a real Verilog simulator.
func evalConst(e ir.Expression, regs map[*ir.Variable]int32) int32 {
	switch expr := e.(type) {
	case ir.IntLit:
		return expr.Value
	case ir.UIntLit:
		return int32(expr.Value)
	case ir.VarRef:
		return regs[expr.Var]
	case ir.BinOp:
		l := evalConst(expr.Left, regs)
		r := evalConst(expr.Right, regs)
		switch expr.Op {
		case ir.OpAdd:
			return l + r
		case ir.OpSub:
			return l - r
		case ir.OpMul:
			return l * r
		case ir.OpLess:
			return boolInt32(l < r)
		case ir.OpLessEq:
			return boolInt32(l <= r)
		case ir.OpGreater:
			return boolInt32(l > r)
		case ir.OpGreaterEq:
			return boolInt32(l >= r)
		case ir.OpEq:
			return boolInt32(l == r)
		case ir.OpNotEq:
			return boolInt32(l != r)
		default:
			panic("evalConst: unsupported operator " + expr.Op)
		}
	default:
		panic("evalConst: unsupported expression kind")
	}
}

func boolInt32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

// simulateWithReady replays m's states exactly the way emitStateArm's
// `if (ready) begin ... end` gates a yield state: a stalled cycle
// (ready false) re-parks on the same state without committing any
// register or advancing, a ready cycle commits the fused assigns and
// the transition together. It returns the sequence of yielded tuples
// in commit order, regardless of how many stall cycles preceded each.
func simulateWithReady(t *testing.T, m *statemachine.Module, args []int32, ready func(cycle int) bool) [][]int32 {
	t.Helper()
	regs := make(map[*ir.Variable]int32, len(m.Registers))
	for _, r := range m.Registers {
		regs[r] = r.InitialValue
	}
	for i, p := range m.Params {
		regs[p] = args[i]
	}

	var outputs [][]int32
	cur := m.EntryState
	for cycle := 0; ; cycle++ {
		require.Less(t, cycle, 100000, "simulation did not terminate")
		st := m.States[cur]

		if st.Done {
			return outputs
		}

		if st.Yield != nil {
			if !ready(cycle) {
				continue // parked: valid/out restated, nothing commits
			}
			// Fused assigns ahead of the yield (e.g. "i = i + 1;
			// gen.Yield(i)") commit first, since Yield.Outputs refers to
			// the variable's value as of after them, not before.
			for _, a := range st.Assigns {
				regs[a.Lvalue] = evalConst(a.Rvalue, regs)
			}
			tuple := make([]int32, len(st.Yield.Outputs))
			for i, e := range st.Yield.Outputs {
				tuple[i] = evalConst(e, regs)
			}
			outputs = append(outputs, tuple)
			cur = st.Yield.Next
			continue
		}

		for _, a := range st.Assigns {
			regs[a.Lvalue] = evalConst(a.Rvalue, regs)
		}
		switch {
		case st.Branch != nil:
			if evalConst(st.Branch.Cond, regs) != 0 {
				cur = st.Branch.Then
			} else {
				cur = st.Branch.Else
			}
		case st.Call != nil:
			cur = st.Call.Target
		case st.Fallthrough != nil:
			cur = *st.Fallthrough
		default:
			t.Fatalf("state %d has no terminal form", st.ID)
		}
	}
}

// TestSimulateWithReady_BackpressureInvariance checks that stalling the
// consumer (deasserting ready for stretches of cycles before a yield
// commits) never changes the sequence of values yielded, only how many
// cycles it takes to get there — the same module driven with an
// always-ready waveform and one that is ready only every third cycle
// must agree.
func TestSimulateWithReady_BackpressureInvariance(t *testing.T) {
	m := buildModule(t, counterSource, "counter", 0)

	alwaysReady := func(cycle int) bool { return true }
	stalls := func(cycle int) bool { return cycle%3 == 2 } // ready only every third cycle

	withoutStalls := simulateWithReady(t, m, []int32{5}, alwaysReady)
	withStalls := simulateWithReady(t, m, []int32{5}, stalls)

	assert.Equal(t, withoutStalls, withStalls)
	assert.Equal(t, [][]int32{{0}, {1}, {2}, {3}, {4}}, withoutStalls)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
