// Package statemachine lowers an optimized ir.Namespace into a Module:
// a dense per-namespace state id space, one State per fused clock
// state, and tail-call resolution that binds a callee's parameters to
// the caller's actuals in the same cycle before jumping to the
// callee's entry state — no runtime call stack, since the accepted
// subset forbids non-tail calls.
//
// Loosely grounded on the pipeline's convention of pairing a function's
// IR with its built CFG, and on a CallingConvention-style interface
// shape for argument binding, simplified to a same-cycle register copy
// since this repository's calls are tail-only.
package statemachine

import (
	"fmt"
	"sort"

	"hdlflow/diag"
	"hdlflow/ir"
	"hdlflow/optimizer"
)

// Assign is one `lvalue = rvalue` step absorbed into a state, in the
// order it must execute.
type Assign struct {
	Lvalue *ir.Variable
	Rvalue ir.Expression
}

// Branch is a state's trailing IfElseNode: depending on Cond, control
// continues at Then or Else on the next clock edge.
type Branch struct {
	Cond Expression
	Then int
	Else int
}

// Expression is a re-export of ir.Expression for readability in this
// package's exported field types.
type Expression = ir.Expression

// Yield is a state's trailing YieldNode: Outputs are published for one
// cycle, then control continues at Next.
type Yield struct {
	Outputs []Expression
	Next    int
}

// Call is a state's trailing CallNode, already resolved to a same-cycle
// jump: Target is the callee's entry state id (its parameter bindings
// are folded into the state's Assigns, executing in the same cycle as
// every other absorbed step).
type Call struct {
	Target int
}

// State is one clocked state: a fused run of CFG nodes (per the
// optimizer's Partition) ending in exactly one of Branch, Yield, Call,
// Done, or a plain unconditional Fallthrough (when the optimizer ended
// the state early purely on budget, mid-chain of assignments).
type State struct {
	ID          int
	Procedure   string
	LocalID     int // dense state id within Procedure, entry state is 0
	Assigns     []Assign
	Branch      *Branch
	Yield       *Yield
	Call        *Call
	Fallthrough *int
	Done        bool
}

// Module is the complete lowered namespace: every state across every
// co-compiled procedure, the full register file, and the entry
// procedure's ports.
type Module struct {
	EntryState  int
	States      []*State // index == ID
	Registers   []*ir.Variable
	OutputArity int
	Params      []*ir.Variable
}

// Build lowers ns into a Module, running the optimizer over every
// procedure's graph with the given work-per-cycle threshold.
func Build(ns *ir.Namespace, threshold int) (*Module, error) {
	entry, err := ns.Entry()
	if err != nil {
		return nil, diag.NamespaceViolation(err.Error())
	}

	procOrder := orderedProcedures(ns, entry.Name)

	partitions := make(map[string]*optimizer.Partition, len(procOrder))
	for _, p := range procOrder {
		partitions[p.Name] = optimizer.IncreaseWorkPerClockCycle(p.Graph, p.Entry, threshold)
	}

	// Assign dense global ids: entry procedure's states first, then every
	// other procedure in name-sorted order. Within a procedure the state
	// rooted at its entry node comes first (so EntryState==0 and every
	// LocalID 0 is an entry state), the rest in ascending root-node-id
	// order for determinism: compiling the same namespace twice must
	// yield byte-identical output.
	globalID := map[string]map[ir.NodeID]int{}
	var states []*State
	for _, p := range procOrder {
		globalID[p.Name] = map[ir.NodeID]int{}
		roots := []ir.NodeID{p.Entry}
		for _, r := range partitions[p.Name].StateRoots() {
			if r != p.Entry {
				roots = append(roots, r)
			}
		}
		for li, root := range roots {
			id := len(states)
			globalID[p.Name][root] = id
			states = append(states, &State{ID: id, Procedure: p.Name, LocalID: li})
		}
	}

	entryState, ok := globalID[entry.Name][entry.Entry]
	if !ok {
		return nil, diag.Internal("entry procedure's entry node was not assigned a state")
	}

	// resolve looks up the global state id a node id (always itself a
	// partition state-root, since it only ever appears as an edge
	// target the optimizer pushed onto its worklist) belongs to.
	resolve := func(proc string, node ir.NodeID) (int, error) {
		id, ok := globalID[proc][node]
		if !ok {
			return 0, diag.Internal(fmt.Sprintf("node %d in procedure %q has no assigned state", node, proc))
		}
		return id, nil
	}

	byName := make(map[string]*ir.Procedure, len(procOrder))
	for _, p := range procOrder {
		byName[p.Name] = p
	}

	for _, p := range procOrder {
		part := partitions[p.Name]
		for _, root := range part.StateRoots() {
			st := states[globalID[p.Name][root]]
			if err := fillState(st, p, part, root, byName, resolve); err != nil {
				return nil, err
			}
		}
	}

	var registers []*ir.Variable
	for _, p := range procOrder {
		registers = append(registers, p.Parameters...)
		registers = append(registers, p.LocalVariables...)
	}

	return &Module{
		EntryState:  entryState,
		States:      states,
		Registers:   registers,
		OutputArity: entry.OutputArity,
		Params:      entry.Parameters,
	}, nil
}

// orderedProcedures returns the namespace's procedures with the entry
// procedure first and the rest in a deterministic (name-sorted) order,
// so state numbering never depends on Go's randomized map iteration.
func orderedProcedures(ns *ir.Namespace, entryName string) []*ir.Procedure {
	var rest []string
	for name := range ns.Procedures {
		if name != entryName {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)

	ordered := []*ir.Procedure{ns.Procedures[entryName]}
	for _, name := range rest {
		ordered = append(ordered, ns.Procedures[name])
	}
	return ordered
}

// fillState renders one partition state-root's member chain into the
// State's Assigns plus exactly one trailing control form.
func fillState(
	st *State,
	p *ir.Procedure,
	part *optimizer.Partition,
	root ir.NodeID,
	byName map[string]*ir.Procedure,
	resolve func(proc string, node ir.NodeID) (int, error),
) error {
	members := part.Members[root]
	for i, id := range members {
		last := i == len(members)-1
		switch n := p.Graph.Node(id).(type) {
		case *ir.AssignNode:
			st.Assigns = append(st.Assigns, Assign{Lvalue: n.Lvalue, Rvalue: n.Rvalue})
			if last {
				target, err := resolve(p.Name, n.Next)
				if err != nil {
					return err
				}
				st.Fallthrough = &target
			}

		case *ir.IfElseNode:
			thenTarget, err := resolve(p.Name, n.Then)
			if err != nil {
				return err
			}
			elseTarget, err := resolve(p.Name, n.Else)
			if err != nil {
				return err
			}
			st.Branch = &Branch{Cond: n.Cond, Then: thenTarget, Else: elseTarget}

		case *ir.YieldNode:
			target, err := resolve(p.Name, n.Next)
			if err != nil {
				return err
			}
			st.Yield = &Yield{Outputs: n.Outputs, Next: target}

		case *ir.CallNode:
			callee, ok := byName[n.Target]
			if !ok {
				return diag.Internal(fmt.Sprintf("tail call target %q not found while lowering %q", n.Target, p.Name))
			}
			for i, param := range callee.Parameters {
				st.Assigns = append(st.Assigns, Assign{Lvalue: param, Rvalue: n.Args[i]})
			}
			target, err := resolve(callee.Name, callee.Entry)
			if err != nil {
				return err
			}
			st.Call = &Call{Target: target}

		case *ir.DoneNode:
			st.Done = true

		default:
			return diag.Internal(fmt.Sprintf("unknown node kind %T while lowering state %d", n, st.ID))
		}
	}
	return nil
}

