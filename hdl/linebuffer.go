// Package hdl emits a synchronous Verilog/SystemVerilog module and a
// self-driving testbench from a statemachine.Module. Text assembly is
// grounded on the original implementation's
// generatorParser.py stringify_module/stringify_declarations/
// stringify_always_block/stringify_initialization functions (one
// nested block per HDL section) and on a hand-built strings.Builder
// formatting idiom seen elsewhere in this pipeline for how Go code
// assembles text output. linebuffer.go is the Go equivalent of the
// original's utils.py Lines/StringBuffer nesting helper.
package hdl

import (
	"fmt"
	"strings"
)

// LineBuffer accumulates indented lines of generated source text. A new
// Indent/Dedent pair wraps one nested block (a case arm, an if/else
// body) the way the original's StringBuffer nests an inner Lines
// object per block.
type LineBuffer struct {
	lines  []string
	indent int
}

// NewLineBuffer creates an empty buffer.
func NewLineBuffer() *LineBuffer {
	return &LineBuffer{}
}

// Add appends one formatted line at the buffer's current indent level.
func (b *LineBuffer) Add(format string, args ...any) *LineBuffer {
	b.lines = append(b.lines, strings.Repeat("    ", b.indent)+fmt.Sprintf(format, args...))
	return b
}

// Blank appends an empty line, used to visually separate sections the
// way the original's generated files separate declarations from the
// always block.
func (b *LineBuffer) Blank() *LineBuffer {
	b.lines = append(b.lines, "")
	return b
}

// Indent increases the indent level for subsequent Add calls.
func (b *LineBuffer) Indent() *LineBuffer {
	b.indent++
	return b
}

// Dedent decreases the indent level for subsequent Add calls.
func (b *LineBuffer) Dedent() *LineBuffer {
	b.indent--
	return b
}

// String renders the accumulated lines, one per line, trailing newline.
func (b *LineBuffer) String() string {
	return strings.Join(b.lines, "\n") + "\n"
}
