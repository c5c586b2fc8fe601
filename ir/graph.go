package ir

import "fmt"

// NodeID is an integer handle into a Graph's node arena. Representing
// the CFG as an arena indexed by handle (rather than as a web of
// pointers) means loop back-edges need no ownership cycle and every
// traversal can carry a simple visited set keyed by NodeID.
type NodeID int

// NoNode marks the absence of a successor (e.g. a CallNode or DoneNode
// has none).
const NoNode NodeID = -1

// Node is the closed sum of CFG node kinds: AssignNode, IfElseNode,
// YieldNode, CallNode, DoneNode. A switch over Node that reaches a
// default case is an internal-invariant error — there is no sixth
// kind.
type Node interface {
	NodeID() NodeID
	isNode()
}

type nodeBase struct{ id NodeID }

func (n nodeBase) NodeID() NodeID { return n.id }
func (nodeBase) isNode()          {}

// AssignNode performs `lvalue = rvalue` and falls through to Next.
type AssignNode struct {
	nodeBase
	Lvalue *Variable
	Rvalue Expression
	Next   NodeID
}

// IfElseNode is a pure branch with no side effect: evaluates Cond and
// continues at Then or Else.
type IfElseNode struct {
	nodeBase
	Cond Expression
	Then NodeID
	Else NodeID
}

// YieldNode publishes a tuple on the output channels and marks the
// module valid for one cycle, then falls through to Next. The
// outgoing edge of a YieldNode is always clocked.
type YieldNode struct {
	nodeBase
	Outputs []Expression
	Next    NodeID
}

// CallNode is a tail call to another procedure in the namespace; it
// terminates the current procedure's control flow (no Next).
type CallNode struct {
	nodeBase
	Target string
	Args   []Expression
}

// DoneNode is terminal: once reached, `done` is asserted and held
// forever.
type DoneNode struct {
	nodeBase
}

// EdgeLabel distinguishes an IfElseNode's two successors from the
// single successor every other non-terminal node kind has.
type EdgeLabel int

const (
	EdgeNext EdgeLabel = iota
	EdgeThen
	EdgeElse
)

// Edge is (source, sink, clocked?). A clocked edge is a state
// boundary; a non-clocked edge is zero-delay and resolved within the
// same state by the lowering pass.
type Edge struct {
	From    NodeID
	To      NodeID
	Label   EdgeLabel
	Clocked bool
}

// Graph is a directed graph of Nodes connected by Edges, the output of
// the CFG builder and the input to the optimizer and state-machine
// lowering.
type Graph struct {
	Nodes []Node
	Out   map[NodeID][]Edge
	In    map[NodeID][]Edge
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Out: make(map[NodeID][]Edge), In: make(map[NodeID][]Edge)}
}

func (g *Graph) alloc(n Node) NodeID {
	id := NodeID(len(g.Nodes))
	switch v := n.(type) {
	case *AssignNode:
		v.id = id
	case *IfElseNode:
		v.id = id
	case *YieldNode:
		v.id = id
	case *CallNode:
		v.id = id
	case *DoneNode:
		v.id = id
	default:
		panic(fmt.Sprintf("ir: unknown node kind %T passed to Graph.alloc", n))
	}
	g.Nodes = append(g.Nodes, n)
	return id
}

// NewAssignNode allocates and appends an AssignNode.
func (g *Graph) NewAssignNode(lvalue *Variable, rvalue Expression) *AssignNode {
	n := &AssignNode{Lvalue: lvalue, Rvalue: rvalue, Next: NoNode}
	g.alloc(n)
	return n
}

// NewIfElseNode allocates and appends an IfElseNode.
func (g *Graph) NewIfElseNode(cond Expression) *IfElseNode {
	n := &IfElseNode{Cond: cond, Then: NoNode, Else: NoNode}
	g.alloc(n)
	return n
}

// NewYieldNode allocates and appends a YieldNode.
func (g *Graph) NewYieldNode(outputs []Expression) *YieldNode {
	n := &YieldNode{Outputs: outputs, Next: NoNode}
	g.alloc(n)
	return n
}

// NewCallNode allocates and appends a CallNode.
func (g *Graph) NewCallNode(target string, args []Expression) *CallNode {
	n := &CallNode{Target: target, Args: args}
	g.alloc(n)
	return n
}

// NewDoneNode allocates and appends a DoneNode.
func (g *Graph) NewDoneNode() *DoneNode {
	n := &DoneNode{}
	g.alloc(n)
	return n
}

// Node looks up a node by id.
func (g *Graph) Node(id NodeID) Node {
	if id == NoNode {
		return nil
	}
	return g.Nodes[id]
}

// AddEdge records a control-flow edge and keeps the Next/Then/Else
// fields of the source node in sync, so callers only need to think in
// terms of one operation ("connect these two nodes") rather than two.
func (g *Graph) AddEdge(from NodeID, label EdgeLabel, to NodeID, clocked bool) {
	e := Edge{From: from, To: to, Label: label, Clocked: clocked}
	g.Out[from] = append(g.Out[from], e)
	g.In[to] = append(g.In[to], e)

	switch n := g.Node(from).(type) {
	case *AssignNode:
		n.Next = to
	case *YieldNode:
		n.Next = to
	case *IfElseNode:
		if label == EdgeThen {
			n.Then = to
		} else {
			n.Else = to
		}
	}
}

// ReplaceEdge redirects an existing edge's destination and keeps the
// source node's Next/Then/Else field in sync. The optimizer does not
// call it; it leaves the graph unchanged.
func (g *Graph) ReplaceEdge(from NodeID, label EdgeLabel, newTo NodeID, clocked bool) {
	out := g.Out[from]
	for i := range out {
		if out[i].Label == label {
			old := out[i].To
			g.removeInEdge(old, from, label)
			out[i].To = newTo
			out[i].Clocked = clocked
			g.In[newTo] = append(g.In[newTo], out[i])
			break
		}
	}
	g.Out[from] = out

	switch n := g.Node(from).(type) {
	case *AssignNode:
		n.Next = newTo
	case *YieldNode:
		n.Next = newTo
	case *IfElseNode:
		if label == EdgeThen {
			n.Then = newTo
		} else {
			n.Else = newTo
		}
	}
}

func (g *Graph) removeInEdge(to, from NodeID, label EdgeLabel) {
	in := g.In[to]
	for i, e := range in {
		if e.From == from && e.Label == label {
			g.In[to] = append(in[:i], in[i+1:]...)
			return
		}
	}
}

// OutEdge returns the single labeled outgoing edge from a node, if any.
func (g *Graph) OutEdge(from NodeID, label EdgeLabel) (Edge, bool) {
	for _, e := range g.Out[from] {
		if e.Label == label {
			return e, true
		}
	}
	return Edge{}, false
}

// Successors returns every node id reachable in one edge from id.
func (g *Graph) Successors(id NodeID) []NodeID {
	var out []NodeID
	for _, e := range g.Out[id] {
		out = append(out, e.To)
	}
	return out
}

// String renders the graph for diagnostics, mirroring the debug dump
// style used throughout the pipeline (one line per node, successors
// inline).
func (g *Graph) String() string {
	s := "Graph:\n"
	for _, n := range g.Nodes {
		s += fmt.Sprintf("  %d: %s -> %v\n", n.NodeID(), describe(n), g.Successors(n.NodeID()))
	}
	return s
}

func describe(n Node) string {
	switch v := n.(type) {
	case *AssignNode:
		return fmt.Sprintf("%s = %s", v.Lvalue.SourceName, v.Rvalue)
	case *IfElseNode:
		return fmt.Sprintf("if %s", v.Cond)
	case *YieldNode:
		return fmt.Sprintf("yield %v", v.Outputs)
	case *CallNode:
		return fmt.Sprintf("tailcall %s%v", v.Target, v.Args)
	case *DoneNode:
		return "done"
	default:
		panic(fmt.Sprintf("ir: unknown node kind %T in describe", n))
	}
}
