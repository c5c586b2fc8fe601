package optimizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hdlflow/ir"
)

// chainGraph builds n AssignNodes in a straight line (no branches, no
// yields), each falling through non-clocked to the next, terminating
// in a DoneNode.
func chainGraph(n int) (*ir.Graph, ir.NodeID) {
	g := ir.NewGraph()
	v := ir.NewVariable("x")
	done := g.NewDoneNode()
	prev := done.NodeID()
	var entry ir.NodeID
	nodes := make([]ir.NodeID, n)
	for i := n - 1; i >= 0; i-- {
		a := g.NewAssignNode(v, ir.IntLit{Value: int32(i)})
		nodes[i] = a.NodeID()
	}
	for i := n - 1; i >= 0; i-- {
		g.AddEdge(nodes[i], ir.EdgeNext, prev, false)
		prev = nodes[i]
	}
	entry = nodes[0]
	return g, entry
}

func TestIncreaseWorkPerClockCycle_ZeroDisablesFusing(t *testing.T) {
	g, entry := chainGraph(5)
	part := IncreaseWorkPerClockCycle(g, entry, 0)

	roots := part.StateRoots()
	assert.Len(t, roots, 6, "K=0 must assign exactly one node per state (5 assigns + 1 done)")
	for _, r := range roots {
		assert.Len(t, part.Members[r], 1)
	}
}

func TestIncreaseWorkPerClockCycle_PositiveKFusesAssigns(t *testing.T) {
	g, entry := chainGraph(5)
	part := IncreaseWorkPerClockCycle(g, entry, 2)

	roots := part.StateRoots()
	require.NotEmpty(t, roots)
	// Budget K+1 = 3 AssignNodes absorbed per state, so the entry state
	// holds the chain's first three assigns.
	first := part.Members[entry]
	assert.LessOrEqual(t, len(first), 3)
	assert.Greater(t, len(first), 1, "a positive K must fuse more than one node into the entry state")
}

func TestIncreaseWorkPerClockCycle_YieldAlwaysEndsState(t *testing.T) {
	g := ir.NewGraph()
	v := ir.NewVariable("x")
	done := g.NewDoneNode()
	yield := g.NewYieldNode([]ir.Expression{ir.VarRef{Var: v}})
	assign := g.NewAssignNode(v, ir.IntLit{Value: 1})

	g.AddEdge(assign.NodeID(), ir.EdgeNext, yield.NodeID(), false)
	g.AddEdge(yield.NodeID(), ir.EdgeNext, done.NodeID(), true)

	part := IncreaseWorkPerClockCycle(g, assign.NodeID(), 10)
	roots := part.StateRoots()

	// The assign+yield fuse into one state (non-clocked edge between
	// them), but the yield's own mandatory-clocked outgoing edge always
	// starts a fresh state for Done, regardless of the large budget.
	require.Len(t, roots, 2)
	first := part.Members[assign.NodeID()]
	assert.Contains(t, first, assign.NodeID())
	assert.Contains(t, first, yield.NodeID())
	second := part.Members[done.NodeID()]
	assert.Equal(t, []ir.NodeID{done.NodeID()}, second)
}

func TestIncreaseWorkPerClockCycle_BranchEndsStateAndForksTwoRoots(t *testing.T) {
	g := ir.NewGraph()
	v := ir.NewVariable("x")
	thenDone := g.NewDoneNode()
	elseDone := g.NewDoneNode()
	branch := g.NewIfElseNode(ir.VarRef{Var: v})
	g.AddEdge(branch.NodeID(), ir.EdgeThen, thenDone.NodeID(), false)
	g.AddEdge(branch.NodeID(), ir.EdgeElse, elseDone.NodeID(), false)

	part := IncreaseWorkPerClockCycle(g, branch.NodeID(), 10)
	roots := part.StateRoots()
	require.Len(t, roots, 3)
	assert.Equal(t, []ir.NodeID{branch.NodeID()}, part.Members[branch.NodeID()])
}

func TestPartition_StateRootsDeterministic(t *testing.T) {
	g, entry := chainGraph(8)
	a := IncreaseWorkPerClockCycle(g, entry, 1)
	b := IncreaseWorkPerClockCycle(g, entry, 1)
	assert.Equal(t, a.StateRoots(), b.StateRoots())
}
