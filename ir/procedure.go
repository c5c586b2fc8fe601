package ir

import "fmt"

// Variable is a named storage location. Every variable that appears in
// a procedure's body is given one, declared automatically the first
// time the CFG builder meets it: as a parameter, an assignment target,
// or a read.
type Variable struct {
	SourceName   string // name in the source code
	EmittedName  string // canonical name used in the emitted HDL
	Width        int    // bit width, default 32
	Signed       bool   // signedness, default true
	InitialValue int32  // reset value, default 0
}

// NewVariable creates a Variable with this compiler's default width,
// signedness, and emitted-name convention.
func NewVariable(sourceName string) *Variable {
	return &Variable{
		SourceName:  sourceName,
		EmittedName: "_" + sourceName,
		Width:       32,
		Signed:      true,
	}
}

// Procedure is a named, co-compiled unit: an ordered list of input
// parameters, an ordered list of output channels (the yielded tuple's
// width), an is-generator flag, and its body as a CFG.
type Procedure struct {
	Name           string
	Parameters     []*Variable
	OutputArity    int // width of the yielded tuple, shared by every procedure in the namespace; 0 when nothing yields
	IsGenerator    bool
	IsEntry        bool
	Graph          *Graph
	Entry          NodeID
	SourceSnippet  string // captured source text, diagnostics only
	LocalVariables []*Variable
}

// Namespace maps procedure name to Procedure. Exactly one procedure is
// the entry point; the rest may only be reached by tail call. A
// Namespace holds at most MaxProcedures procedures.
type Namespace struct {
	Procedures map[string]*Procedure
	EntryName  string
}

// MaxProcedures is the cap on co-compiled procedures in one namespace.
const MaxProcedures = 4

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{Procedures: make(map[string]*Procedure)}
}

// Entry returns the namespace's single entry procedure.
func (n *Namespace) Entry() (*Procedure, error) {
	p, ok := n.Procedures[n.EntryName]
	if !ok {
		return nil, fmt.Errorf("namespace has no entry procedure %q", n.EntryName)
	}
	return p, nil
}

// Add registers a procedure, enforcing the namespace cap and unique
// names.
func (n *Namespace) Add(p *Procedure) error {
	if _, exists := n.Procedures[p.Name]; exists {
		return fmt.Errorf("duplicate procedure name %q in namespace", p.Name)
	}
	if len(n.Procedures) >= MaxProcedures {
		return fmt.Errorf("namespace exceeds cap of %d procedures", MaxProcedures)
	}
	n.Procedures[p.Name] = p
	return nil
}
