package hdl

import "hdlflow/statemachine"

// Options configures emission: the module name, whether to target
// SystemVerilog instead of plain Verilog, and the testbench's
// backpressure mode.
type Options struct {
	ModuleName      string // defaults to "generated_module" when empty
	IsSystemVerilog bool
	RandomReady     bool // testbench-only, see testbench.go
}

func (o Options) name() string {
	if o.ModuleName == "" {
		return "generated_module"
	}
	return o.ModuleName
}

// regWord and logicWord pick the storage keyword: SystemVerilog's
// `logic` when requested, Verilog's `reg` otherwise. always_ff is used
// in place of a plain always block the same way.
func (o Options) regWord() string {
	if o.IsSystemVerilog {
		return "logic"
	}
	return "reg"
}

func (o Options) alwaysWord() string {
	if o.IsSystemVerilog {
		return "always_ff"
	}
	return "always"
}

// idleState is a synthetic state id one past the last real state,
// reserved for the post-reset, pre-start wait: the module sits here
// latching nothing until `start` pulses, then copies the input ports
// into their internal registers and jumps to the entry state. This
// keeps statemachine.Module itself free of any notion of "waiting for
// start" — that is purely an artifact of how the module's ports meet
// the outside world, not of the compiled generator's own control flow.
func idleState(m *statemachine.Module) int {
	return len(m.States)
}

// GenerateModule renders the synthesizable module: port list, register
// declarations, and the clocked case statement.
func GenerateModule(m *statemachine.Module, opts Options) string {
	b := NewLineBuffer()
	emitPorts(b, m, opts)
	b.Blank()
	emitDeclarations(b, m, opts)
	b.Blank()
	emitAlwaysBlock(b, m, opts)
	b.Add("endmodule")
	return b.String()
}

func emitPorts(b *LineBuffer, m *statemachine.Module, opts Options) {
	b.Add("module %s (", opts.name())
	b.Indent()
	b.Add("input clock,")
	b.Add("input reset,")
	b.Add("input start,")
	for _, p := range m.Params {
		b.Add("input signed [%d:0] %s,", p.Width-1, p.SourceName)
	}
	b.Add("input ready,")
	for i := 0; i < m.OutputArity; i++ {
		b.Add("output %s signed [31:0] out%d,", opts.regWord(), i)
	}
	b.Add("output %s valid,", opts.regWord())
	b.Add("output %s done", opts.regWord())
	b.Dedent()
	b.Add(");")
}

func emitDeclarations(b *LineBuffer, m *statemachine.Module, opts Options) {
	bits := stateBits(len(m.States) + 1) // +1 for the synthetic idle state
	b.Add("%s [%d:0] state;", opts.regWord(), bits-1)
	for _, v := range m.Registers {
		b.Add("%s signed [%d:0] %s;", opts.regWord(), v.Width-1, v.EmittedName)
	}
}

func emitAlwaysBlock(b *LineBuffer, m *statemachine.Module, opts Options) {
	b.Add("%s @(posedge clock) begin", opts.alwaysWord())
	b.Indent()
	b.Add("if (reset) begin")
	b.Indent()
	b.Add("state <= %d;", idleState(m))
	b.Add("valid <= 1'b0;")
	b.Add("done <= 1'b0;")
	for _, v := range m.Registers {
		b.Add("%s <= %d;", v.EmittedName, v.InitialValue)
	}
	b.Dedent()
	b.Add("end else begin")
	b.Indent()
	b.Add("valid <= 1'b0;")
	b.Add("case (state)")
	b.Indent()

	emitIdleArm(b, m)
	for _, st := range m.States {
		emitStateArm(b, st)
	}

	b.Add("default: state <= %d;", idleState(m))
	b.Dedent()
	b.Add("endcase")
	b.Dedent()
	b.Add("end")
	b.Dedent()
	b.Add("end")
}

func emitIdleArm(b *LineBuffer, m *statemachine.Module) {
	b.Add("%d: begin", idleState(m))
	b.Indent()
	b.Add("if (start) begin")
	b.Indent()
	for _, p := range m.Params {
		b.Add("%s <= %s;", p.EmittedName, p.SourceName)
	}
	b.Add("state <= %d;", m.EntryState)
	b.Dedent()
	b.Add("end")
	b.Dedent()
	b.Add("end")
}

func emitStateArm(b *LineBuffer, st *statemachine.State) {
	b.Add("%d: begin", st.ID)
	b.Indent()

	// Forward each fused assign's right-hand side through every earlier
	// one in this same state (see hdl/substitute.go), so a chain like
	// "a = 1; b = a + 1" resolves b purely in terms of registers as
	// they stood at the start of the cycle.
	resolved, subs := resolveAssigns(st.Assigns)

	if st.Yield != nil {
		// The yielded tuple must stay stable for as long as the FSM
		// parks here waiting on `ready`, so it is driven from `subs` —
		// this cycle's starting register values algebraically advanced
		// by the fused assigns — not from a register write that has not
		// committed yet. The fused assigns themselves, and the state
		// transition, only fire once: inside `if (ready)`. Without that
		// gate, a mutation like `i = i + 1` fused ahead of a yield would
		// silently re-run on every cycle the consumer backs off, corrupting
		// the register each extra cycle it waits.
		for i, out := range st.Yield.Outputs {
			b.Add("out%d <= %s;", i, substituteExpr(out, subs).Verilog())
		}
		b.Add("valid <= 1'b1;")
		b.Add("if (ready) begin")
		b.Indent()
		for i, a := range st.Assigns {
			b.Add("%s <= %s;", a.Lvalue.EmittedName, resolved[i].Verilog())
		}
		b.Add("state <= %d;", st.Yield.Next)
		b.Dedent()
		b.Add("end")

		b.Dedent()
		b.Add("end")
		return
	}

	for i, a := range st.Assigns {
		b.Add("%s <= %s;", a.Lvalue.EmittedName, resolved[i].Verilog())
	}

	switch {
	case st.Branch != nil:
		b.Add("if (%s) begin", substituteExpr(st.Branch.Cond, subs).Verilog())
		b.Indent()
		b.Add("state <= %d;", st.Branch.Then)
		b.Dedent()
		b.Add("end else begin")
		b.Indent()
		b.Add("state <= %d;", st.Branch.Else)
		b.Dedent()
		b.Add("end")

	case st.Call != nil:
		b.Add("state <= %d;", st.Call.Target)

	case st.Done:
		b.Add("done <= 1'b1;")
		b.Add("state <= %d;", st.ID) // sticky: hold forever once done

	case st.Fallthrough != nil:
		b.Add("state <= %d;", *st.Fallthrough)
	}

	b.Dedent()
	b.Add("end")
}

// stateBits returns the register width needed to hold n distinct state
// values, at least 1 bit.
func stateBits(n int) int {
	bits := 1
	for (1 << bits) < n {
		bits++
	}
	return bits
}
