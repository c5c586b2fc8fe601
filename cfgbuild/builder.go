// Package cfgbuild walks the frontend's captured Go AST and builds the
// ir.Graph/ir.Namespace model: the CFG Builder stage of the pipeline.
// Subset validation and CFG construction are a single traversal here,
// rather than two passes over two different IRs — go/parser already
// enforces Go's own grammar, so the only extra work this stage does is
// reject constructs outside the compilable subset, which naturally
// fuses with the walk that builds nodes.
//
// Grounded on a node/edge arena shape and a processIf/processFor
// traversal pattern seen elsewhere in this pipeline's lineage, adapted
// from basic blocks of machine statements to this compiler's
// single-statement CFG nodes.
package cfgbuild

import (
	"fmt"

	"hdlflow/diag"
	"hdlflow/frontend"
	"hdlflow/ir"
)

const genPackage = "gen"

// Build compiles every procedure reachable from entryName — by genuine
// tail call — into an ir.Namespace. A `gen.YieldFrom` call not in tail
// position is inlined at its call site instead of becoming a jump;
// only the literal `return gen.YieldFrom(...)` form at the end of a
// procedure body becomes an ir.CallNode resolved later to a state jump.
func Build(captured *frontend.Captured, entryName string) (*ir.Namespace, error) {
	if len(captured.Order) > ir.MaxProcedures {
		return nil, diag.NamespaceViolation(fmt.Sprintf("namespace has %d procedures, cap is %d", len(captured.Order), ir.MaxProcedures))
	}
	if _, ok := captured.Procedures[entryName]; !ok {
		return nil, diag.NamespaceViolation(fmt.Sprintf("entry procedure %q not found", entryName))
	}

	ns := ir.NewNamespace()
	ns.EntryName = entryName

	arity := new(int)
	*arity = -1

	worklist := []string{entryName}
	visited := map[string]bool{}

	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		proc, tailTargets, err := buildProcedure(captured, name, arity)
		if err != nil {
			return nil, err
		}
		proc.IsEntry = name == entryName
		proc.IsGenerator = name == entryName
		if err := ns.Add(proc); err != nil {
			return nil, diag.NamespaceViolation(err.Error())
		}
		worklist = append(worklist, tailTargets...)
	}

	resolvedArity := *arity
	if resolvedArity < 0 {
		resolvedArity = 0
	}
	for _, p := range ns.Procedures {
		p.OutputArity = resolvedArity
	}
	return ns, nil
}

// continuation names the node a statement's fallthrough control should
// reach, and whether the edge that reaches it must be clocked. Threading
// this explicitly (rather than always defaulting to non-clocked) is
// what lets a single recursive lowering handle the one case that must
// be clocked by construction: a while-loop's back edge.
type continuation struct {
	node    ir.NodeID
	clocked bool
}

// builder holds the per-procedure construction state: the graph being
// built, the variable scope, the loop-nesting stack for break/continue,
// and bookkeeping shared across every procedure built within one
// Build() call (the output arity and the set of genuine tail targets).
type builder struct {
	captured     *frontend.Captured
	graph        *ir.Graph
	scope        map[string]*ir.Variable
	loops        []loopCtx
	arity        *int
	tailTargets  *[]string
	declared     *[]*ir.Variable // every local (non-parameter) variable declared anywhere in this procedure, including inlined callee bindings, in first-declaration order
	inlining     bool            // true once construction has entered an inlined callee body
	inlineDepth  int
	inlineSeq    *int
	inlineSuffix int // uniquifies every name this builder declares, when inlining is true
}

type loopCtx struct {
	continueTo continuation // where `continue` jumps
	breakTo    continuation // where `break` jumps
}

// maxInlineDepth bounds inlined-call recursion; the namespace's own
// MaxProcedures cap already bounds how many distinct procedures exist,
// but a procedure could in principle inline itself or a short cycle of
// others, so depth still needs an independent backstop.
const maxInlineDepth = 8

// buildProcedure compiles one named procedure's body into a fresh
// graph, returning the procedure plus the names of any procedures it
// reaches via a genuine (non-inlined) tail call.
func buildProcedure(captured *frontend.Captured, name string, arity *int) (*ir.Procedure, []string, error) {
	fp, ok := captured.Procedures[name]
	if !ok {
		return nil, nil, diag.Internal(fmt.Sprintf("procedure %q not found while building namespace", name))
	}

	graph := ir.NewGraph()
	scope := map[string]*ir.Variable{}

	var params []*ir.Variable
	for _, pn := range fp.ParamNames {
		v := ir.NewVariable(pn)
		scope[pn] = v
		params = append(params, v)
	}

	var tailTargets []string
	var declared []*ir.Variable
	seq := 0
	b := &builder{
		captured:    captured,
		graph:       graph,
		scope:       scope,
		arity:       arity,
		tailTargets: &tailTargets,
		declared:    &declared,
		inlineSeq:   &seq,
	}

	done := graph.NewDoneNode()
	entry, err := b.buildSeq(fp.Decl.Body.List, continuation{node: done.NodeID(), clocked: false})
	if err != nil {
		return nil, nil, err
	}
	if entry == ir.NoNode {
		entry = done.NodeID()
	}

	proc := &ir.Procedure{
		Name:          name,
		Parameters:    params,
		Graph:         graph,
		Entry:         entry,
		SourceSnippet: fp.Source,
	}
	proc.LocalVariables = declared
	return proc, tailTargets, nil
}

// recordArity checks a yield's output width against the namespace-wide
// output arity, fixing it on the first yield encountered anywhere in
// the namespace (the entry's or an inlined/tail-called helper's).
func (b *builder) recordArity(n int, pos diag.Position) error {
	if *b.arity == -1 {
		*b.arity = n
		return nil
	}
	if *b.arity != n {
		return diag.ArityMismatch(fmt.Sprintf("yield has %d outputs, namespace expects %d", n, *b.arity), pos)
	}
	return nil
}

// nextInlineSuffix returns a fresh integer for uniquifying variable
// names introduced by inlining a callee's parameters and locals, so two
// inlined copies of the same procedure never alias each other's state.
func (b *builder) nextInlineSuffix() int {
	*b.inlineSeq++
	return *b.inlineSeq
}
