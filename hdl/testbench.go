package hdl

import (
	"strconv"
	"strings"

	"hdlflow/statemachine"
)

// clockPeriod is the fixed half-period (in timescale units) the
// testbench toggles clock at.
const clockPeriod = 5

// GenerateTestbench renders a self-driving testbench that instantiates
// the module under test, applies each of inputs sequentially (pulsing
// reset between runs, since `done` is sticky until reset), toggles the
// clock at a fixed period, drives `ready` either always-high or
// pseudorandomly per opts.RandomReady, and prints one CSV row per cycle
// `(valid,out0,out1,...)` until `done`.
func GenerateTestbench(m *statemachine.Module, opts Options, inputs [][]int32) string {
	b := NewLineBuffer()
	name := opts.name()

	b.Add("`timescale 1ns/1ps")
	b.Add("module %s_tb;", name)
	b.Blank()
	b.Add("reg clock;")
	b.Add("reg reset;")
	b.Add("reg start;")
	for _, p := range m.Params {
		b.Add("reg signed [%d:0] %s;", p.Width-1, p.SourceName)
	}
	b.Add("reg ready;")
	for i := 0; i < m.OutputArity; i++ {
		b.Add("wire signed [31:0] out%d;", i)
	}
	b.Add("wire valid;")
	b.Add("wire done;")
	b.Blank()

	b.Add("%s dut (", name)
	b.Indent()
	b.Add(".clock(clock),")
	b.Add(".reset(reset),")
	b.Add(".start(start),")
	for _, p := range m.Params {
		b.Add(".%s(%s),", p.SourceName, p.SourceName)
	}
	b.Add(".ready(ready),")
	for i := 0; i < m.OutputArity; i++ {
		b.Add(".out%d(out%d),", i, i)
	}
	b.Add(".valid(valid),")
	b.Add(".done(done)")
	b.Dedent()
	b.Add(");")
	b.Blank()

	b.Add("always #%d clock = ~clock;", clockPeriod)
	b.Blank()

	if opts.RandomReady {
		// Pulses low roughly every third cycle, exercising the
		// consumer-backpressure path rather than always-ready.
		b.Add("always @(posedge clock) ready <= ($random %% 3) != 0;")
		b.Blank()
	}

	b.Add("always @(posedge clock) begin")
	b.Indent()
	b.Add("if (!reset) $display(\"%s\", valid%s);", csvFormat(m.OutputArity), csvArgs(m.OutputArity))
	b.Dedent()
	b.Add("end")
	b.Blank()

	b.Add("initial begin")
	b.Indent()
	b.Add("clock = 0;")
	b.Add("reset = 1;")
	b.Add("start = 0;")
	b.Add("ready = 1;")
	for _, p := range m.Params {
		b.Add("%s = 0;", p.SourceName)
	}
	b.Add("#%d;", clockPeriod*2)

	for _, tuple := range inputs {
		b.Add("reset = 1;")
		b.Add("#%d;", clockPeriod*2)
		b.Add("reset = 0;")
		for i, p := range m.Params {
			var v int32
			if i < len(tuple) {
				v = tuple[i]
			}
			b.Add("%s = %d;", p.SourceName, v)
		}
		b.Add("start = 1;")
		b.Add("#%d;", clockPeriod*2)
		b.Add("start = 0;")
		b.Add("wait (done);")
		b.Add("#%d;", clockPeriod*2)
	}

	b.Add("$finish;")
	b.Dedent()
	b.Add("end")
	b.Add("endmodule")
	return b.String()
}

// csvFormat builds the $display format string "%d,%d,...,%d" for
// valid followed by one field per output, and csvArgs the matching
// ",out0,out1,..." argument list.
func csvFormat(arity int) string {
	return "%d" + strings.Repeat(",%d", arity)
}

func csvArgs(arity int) string {
	var b strings.Builder
	for i := 0; i < arity; i++ {
		b.WriteString(",out")
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}
