// Package optimizer implements a single optimization pass,
// IncreaseWorkPerClockCycle(threshold K). It does not mutate the
// ir.Graph it is given; it computes a Partition of the graph's nodes
// into clock states, which the statemachine package consumes directly.
// Keeping the pass pure and side-effect-free on the graph follows the
// convention, seen elsewhere in this pipeline, of one pure analysis
// function per concern rather than an in-place CFG rewrite.
package optimizer

import (
	"fmt"
	"sort"

	"hdlflow/ir"
)

// Partition assigns every reachable node to the state-root node id that
// owns it. A state-root is the procedure's entry node, any node reached
// by a clocked edge, a branch or a yield, any node with more than one
// incoming edge, and the successor of a state whose budget ran out;
// Members lists,
// per state-root, every node absorbed into that state in execution
// order (the root itself first).
type Partition struct {
	StateOf map[ir.NodeID]ir.NodeID
	Members map[ir.NodeID][]ir.NodeID
}

// StateRoots returns every state-root id in deterministic (ascending)
// order, so two runs of the optimizer over the same graph produce
// identical state numbering downstream.
func (p *Partition) StateRoots() []ir.NodeID {
	roots := make([]ir.NodeID, 0, len(p.Members))
	for r := range p.Members {
		roots = append(roots, r)
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// IncreaseWorkPerClockCycle partitions g's nodes, reachable from entry,
// into clock states. threshold is the work-per-cycle budget K: a state
// may absorb up to threshold additional steps beyond its root (so a state's total
// depth, AssignNode count plus a trailing IfElseNode's branch-depth
// unit, never exceeds threshold+1). threshold<=0 assigns exactly one
// node per state, i.e. disables fusing, matching "K=0 disables
// optimization".
//
// A node with more than one incoming edge (a loop test, the join after
// an if) is never absorbed; it always roots a state of its own, so every
// edge that ends a state lands on a state-root.
//
// Guarantees preserved: a YieldNode's outgoing edge is
// always mandatory-clocked, so no state ever absorbs past a yield and
// no two yields ever share a state. A while loop's back edge is built
// mandatory-clocked by cfgbuild, so loop liveness is never affected by
// fusing. The graph the CFG builder produces is acyclic except through
// those mandatory-clocked back edges, so the inner absorption loop
// below always terminates without needing its own visited guard.
func IncreaseWorkPerClockCycle(g *ir.Graph, entry ir.NodeID, threshold int) *Partition {
	budget := threshold + 1
	if budget < 1 {
		budget = 1
	}

	p := &Partition{StateOf: map[ir.NodeID]ir.NodeID{}, Members: map[ir.NodeID][]ir.NodeID{}}
	worklist := []ir.NodeID{entry}

	for len(worklist) > 0 {
		root := worklist[0]
		worklist = worklist[1:]
		if root == ir.NoNode {
			continue
		}
		if _, placed := p.StateOf[root]; placed {
			continue // already a state-root, pushed by an earlier edge
		}

		depth := 0
		cur := root
		for {
			p.StateOf[cur] = root
			p.Members[root] = append(p.Members[root], cur)

			switch n := g.Node(cur).(type) {
			case *ir.AssignNode:
				depth++
				edge, ok := g.OutEdge(cur, ir.EdgeNext)
				if !ok {
					cur = ir.NoNode
				} else if edge.Clocked || depth >= budget || len(g.In[edge.To]) > 1 {
					worklist = append(worklist, edge.To)
					cur = ir.NoNode
				} else {
					cur = edge.To
				}

			case *ir.IfElseNode:
				// A branch always ends the growing state: its two
				// successors are reached through a predecessor (this
				// node) with two outgoing edges, so neither qualifies
				// for further absorption into the same linear state.
				depth++
				if then, ok := g.OutEdge(cur, ir.EdgeThen); ok {
					worklist = append(worklist, then.To)
				}
				if els, ok := g.OutEdge(cur, ir.EdgeElse); ok {
					worklist = append(worklist, els.To)
				}
				cur = ir.NoNode

			case *ir.YieldNode:
				// YieldNode's outgoing edge is always mandatory-clocked,
				// so it always ends the state regardless of remaining
				// budget.
				if edge, ok := g.OutEdge(cur, ir.EdgeNext); ok {
					worklist = append(worklist, edge.To)
				}
				cur = ir.NoNode

			case *ir.CallNode, *ir.DoneNode:
				cur = ir.NoNode

			default:
				panic(fmt.Sprintf("optimizer: unknown node kind %T while partitioning state %d", n, root))
			}

			if cur == ir.NoNode {
				break
			}
		}
	}
	return p
}
