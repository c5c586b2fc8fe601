package cfgbuild

import (
	"fmt"
	"go/ast"
	"go/token"

	"hdlflow/diag"
	"hdlflow/ir"
)

// buildSeq lowers a statement list, wiring the fallthrough of the last
// statement (if it doesn't terminate on its own) to after. It recurses
// from the tail of the list so that a statement needing to know its
// successor's entry node — an if/else's two branches, a loop back-edge
// — already has it before it's built.
func (b *builder) buildSeq(stmts []ast.Stmt, after continuation) (ir.NodeID, error) {
	if len(stmts) == 0 {
		return after.node, nil
	}
	rest, err := b.buildSeq(stmts[1:], after)
	if err != nil {
		return ir.NoNode, err
	}
	return b.buildStmt(stmts[0], continuation{node: rest, clocked: after.clocked && len(stmts) == 1})
}

func (b *builder) buildStmt(stmt ast.Stmt, after continuation) (ir.NodeID, error) {
	switch s := stmt.(type) {
	case *ast.AssignStmt:
		return b.buildAssign(s, after)
	case *ast.IncDecStmt:
		return b.buildIncDec(s, after)
	case *ast.IfStmt:
		return b.buildIf(s, after)
	case *ast.ForStmt:
		return b.buildFor(s, after)
	case *ast.RangeStmt:
		return b.buildRange(s, after)
	case *ast.ExprStmt:
		return b.buildExprStmt(s, after)
	case *ast.ReturnStmt:
		return b.buildReturn(s, after)
	case *ast.BranchStmt:
		return b.buildBranch(s)
	case *ast.BlockStmt:
		return b.buildSeq(s.List, after)
	default:
		return ir.NoNode, diag.Unsupported(fmt.Sprintf("%T", stmt), diag.Position(b.captured.Position(stmt)))
	}
}

func (b *builder) buildAssign(s *ast.AssignStmt, after continuation) (ir.NodeID, error) {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return ir.NoNode, diag.Unsupported("multi-value assignment", diag.Position(b.captured.Position(s)))
	}
	ident, ok := s.Lhs[0].(*ast.Ident)
	if !ok {
		return ir.NoNode, diag.Unsupported("non-identifier assignment target", diag.Position(b.captured.Position(s)))
	}

	v := b.lookupOrDeclare(ident.Name)

	var rvalue ir.Expression
	var err error
	switch s.Tok {
	case token.DEFINE, token.ASSIGN:
		rvalue, err = b.buildExpr(s.Rhs[0])
	default:
		op, ok := augmentedOp[s.Tok]
		if !ok {
			return ir.NoNode, diag.Unsupported(s.Tok.String()+" assignment", diag.Position(b.captured.Position(s)))
		}
		rhs, rerr := b.buildExpr(s.Rhs[0])
		if rerr != nil {
			return ir.NoNode, rerr
		}
		rvalue, err = ir.BinOp{Left: ir.VarRef{Var: v}, Op: op, Right: rhs}, nil
	}
	if err != nil {
		return ir.NoNode, err
	}

	node := b.graph.NewAssignNode(v, rvalue)
	b.graph.AddEdge(node.NodeID(), ir.EdgeNext, after.node, after.clocked)
	return node.NodeID(), nil
}

var augmentedOp = map[token.Token]ir.BinOpKind{
	token.ADD_ASSIGN: ir.OpAdd,
	token.SUB_ASSIGN: ir.OpSub,
	token.MUL_ASSIGN: ir.OpMul,
	token.QUO_ASSIGN: ir.OpFloorDiv,
	token.REM_ASSIGN: ir.OpMod,
	token.AND_ASSIGN: ir.OpBitAnd,
	token.OR_ASSIGN:  ir.OpBitOr,
	token.XOR_ASSIGN: ir.OpBitXor,
	token.SHL_ASSIGN: ir.OpLShift,
	token.SHR_ASSIGN: ir.OpRShift,
}

func (b *builder) buildIncDec(s *ast.IncDecStmt, after continuation) (ir.NodeID, error) {
	ident, ok := s.X.(*ast.Ident)
	if !ok {
		return ir.NoNode, diag.Unsupported("non-identifier inc/dec target", diag.Position(b.captured.Position(s)))
	}
	v := b.lookupOrDeclare(ident.Name)
	op := ir.OpAdd
	if s.Tok == token.DEC {
		op = ir.OpSub
	}
	node := b.graph.NewAssignNode(v, ir.BinOp{Left: ir.VarRef{Var: v}, Op: op, Right: ir.IntLit{Value: 1}})
	b.graph.AddEdge(node.NodeID(), ir.EdgeNext, after.node, after.clocked)
	return node.NodeID(), nil
}

func (b *builder) buildIf(s *ast.IfStmt, after continuation) (ir.NodeID, error) {
	if s.Init != nil {
		return ir.NoNode, diag.Unsupported("if-statement init clause", diag.Position(b.captured.Position(s)))
	}
	cond, err := b.buildExpr(s.Cond)
	if err != nil {
		return ir.NoNode, err
	}

	thenEntry, err := b.buildSeq(s.Body.List, after)
	if err != nil {
		return ir.NoNode, err
	}

	elseEntry := after.node
	if s.Else != nil {
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			elseEntry, err = b.buildSeq(e.List, after)
		case *ast.IfStmt:
			elseEntry, err = b.buildIf(e, after)
		default:
			return ir.NoNode, diag.Unsupported(fmt.Sprintf("%T as else clause", s.Else), diag.Position(b.captured.Position(s)))
		}
		if err != nil {
			return ir.NoNode, err
		}
	}

	node := b.graph.NewIfElseNode(cond)
	b.graph.AddEdge(node.NodeID(), ir.EdgeThen, thenEntry, false)
	b.graph.AddEdge(node.NodeID(), ir.EdgeElse, elseEntry, false)
	return node.NodeID(), nil
}

// buildFor lowers a classic `for`, in any of its three forms (bare
// condition, full init;cond;post, or infinite with break), into an
// IfElseNode test plus the mandatory clocked back edge.
func (b *builder) buildFor(s *ast.ForStmt, after continuation) (ir.NodeID, error) {
	return b.buildWhileLoop(s.Init, s.Cond, s.Post, s.Body.List, after, s)
}

// buildRange lowers the bounded counting form `for i := range n { ... }`
// into the same while-loop shape: i starts at 0, tests i < n, increments
// by one each iteration.
func (b *builder) buildRange(s *ast.RangeStmt, after continuation) (ir.NodeID, error) {
	if s.Value != nil {
		return ir.NoNode, diag.Unsupported("range with a value variable", diag.Position(b.captured.Position(s)))
	}
	ident, ok := s.Key.(*ast.Ident)
	if !ok || ident.Name == "_" {
		return ir.NoNode, diag.Unsupported("range without a named counter", diag.Position(b.captured.Position(s)))
	}

	init := &ast.AssignStmt{Lhs: []ast.Expr{ident}, Tok: token.DEFINE, Rhs: []ast.Expr{&ast.BasicLit{Kind: token.INT, Value: "0"}}}
	cond := &ast.BinaryExpr{X: ident, Op: token.LSS, Y: s.X}
	post := &ast.IncDecStmt{X: ident, Tok: token.INC}

	return b.buildWhileLoop(init, cond, post, s.Body.List, after, s)
}

func (b *builder) buildWhileLoop(init ast.Stmt, cond ast.Expr, post ast.Stmt, body []ast.Stmt, after continuation, pos ast.Node) (ir.NodeID, error) {
	condExpr, err := b.loopCondition(cond)
	if err != nil {
		return ir.NoNode, err
	}

	test := b.graph.NewIfElseNode(condExpr)

	backEdge := continuation{node: test.NodeID(), clocked: true}
	bodyAfter := backEdge
	if post != nil {
		postEntry, err := b.buildStmt(post, backEdge)
		if err != nil {
			return ir.NoNode, err
		}
		bodyAfter = continuation{node: postEntry, clocked: false}
	}

	b.loops = append(b.loops, loopCtx{
		continueTo: bodyAfter,
		breakTo:    continuation{node: after.node, clocked: false},
	})
	bodyEntry, err := b.buildSeq(body, bodyAfter)
	b.loops = b.loops[:len(b.loops)-1]
	if err != nil {
		return ir.NoNode, err
	}

	b.graph.AddEdge(test.NodeID(), ir.EdgeThen, bodyEntry, false)
	b.graph.AddEdge(test.NodeID(), ir.EdgeElse, after.node, false)

	if init == nil {
		return test.NodeID(), nil
	}
	return b.buildStmt(init, continuation{node: test.NodeID(), clocked: false})
}

func (b *builder) loopCondition(cond ast.Expr) (ir.Expression, error) {
	if cond == nil {
		return ir.IntLit{Value: 1}, nil
	}
	return b.buildExpr(cond)
}

func (b *builder) buildBranch(s *ast.BranchStmt) (ir.NodeID, error) {
	if len(b.loops) == 0 {
		return ir.NoNode, diag.Unsupported(s.Tok.String()+" outside a loop", diag.Position(b.captured.Position(s)))
	}
	top := b.loops[len(b.loops)-1]
	switch s.Tok {
	case token.BREAK:
		return top.breakTo.node, nil
	case token.CONTINUE:
		return top.continueTo.node, nil
	default:
		return ir.NoNode, diag.Unsupported(s.Tok.String(), diag.Position(b.captured.Position(s)))
	}
}

// buildReturn handles the three accepted forms: a bare `return` (done),
// `return <constant>` (also coerced to DoneNode — the value itself is
// never part of a generator's observable channel, only its yields are,
// so a constant return is accepted but discarded), and
// `return gen.YieldFrom(callee(args...))`, the only construct that
// compiles to a genuine, non-returning tail call.
func (b *builder) buildReturn(s *ast.ReturnStmt, after continuation) (ir.NodeID, error) {
	if len(s.Results) == 0 {
		done := b.graph.NewDoneNode()
		return done.NodeID(), nil
	}
	if len(s.Results) != 1 {
		return ir.NoNode, diag.Unsupported("multi-value return", diag.Position(b.captured.Position(s)))
	}

	if call, ok := asCall(s.Results[0], genPackage, "YieldFrom"); ok {
		if b.inlining {
			// A yield-from reached while already inlining a callee must itself
			// be inlined: promoting it to a jump would abandon the remaining
			// statements of whichever procedure is doing the inlining.
			return b.inlineYieldFrom(call, after)
		}
		return b.tailCall(call)
	}

	if isConstantExpr(s.Results[0]) {
		done := b.graph.NewDoneNode()
		return done.NodeID(), nil
	}
	return ir.NoNode, diag.Unsupported("return of a non-constant, non-tail-delegation expression", diag.Position(b.captured.Position(s)))
}

// isConstantExpr reports whether expr is a literal constant (optionally
// negated), the only value form permitted on a `return` besides a tail
// delegation.
func isConstantExpr(expr ast.Expr) bool {
	switch e := expr.(type) {
	case *ast.BasicLit:
		return e.Kind == token.INT
	case *ast.UnaryExpr:
		return e.Op == token.SUB && isConstantExpr(e.X)
	case *ast.Ident:
		return e.Name == "true" || e.Name == "false"
	default:
		return false
	}
}

func (b *builder) tailCall(call *ast.CallExpr) (ir.NodeID, error) {
	inner, ok := asInnerCall(call)
	if !ok {
		return ir.NoNode, diag.Unsupported("gen.YieldFrom argument must be a call to a procedure", diag.Position(b.captured.Position(call)))
	}
	target, args, err := b.resolveCall(inner)
	if err != nil {
		return ir.NoNode, err
	}
	callee, ok := b.captured.Procedures[target]
	if !ok {
		return ir.NoNode, diag.Unsupported(fmt.Sprintf("tail call to unknown procedure %q", target), diag.Position(b.captured.Position(call)))
	}
	if len(args) != len(callee.ParamNames) {
		return ir.NoNode, diag.ArityMismatch(
			fmt.Sprintf("tail call to %q passes %d args, wants %d", target, len(args), len(callee.ParamNames)),
			diag.Position(b.captured.Position(call)))
	}

	*b.tailTargets = append(*b.tailTargets, target)
	node := b.graph.NewCallNode(target, args)
	return node.NodeID(), nil
}

func (b *builder) buildExprStmt(s *ast.ExprStmt, after continuation) (ir.NodeID, error) {
	if call, ok := asCall(s.X, genPackage, "Yield"); ok {
		return b.buildYield(call, after)
	}
	if call, ok := asCall(s.X, genPackage, "YieldFrom"); ok {
		return b.inlineYieldFrom(call, after)
	}
	return ir.NoNode, diag.Unsupported("expression statement outside yield/yield-from", diag.Position(b.captured.Position(s)))
}

func (b *builder) buildYield(call *ast.CallExpr, after continuation) (ir.NodeID, error) {
	outputs := make([]ir.Expression, len(call.Args))
	for i, a := range call.Args {
		e, err := b.buildExpr(a)
		if err != nil {
			return ir.NoNode, err
		}
		outputs[i] = e
	}
	if err := b.recordArity(len(outputs), diag.Position(b.captured.Position(call))); err != nil {
		return ir.NoNode, err
	}

	node := b.graph.NewYieldNode(outputs)
	b.graph.AddEdge(node.NodeID(), ir.EdgeNext, after.node, true)
	return node.NodeID(), nil
}

// inlineYieldFrom handles a `gen.YieldFrom` not in true tail position:
// it binds the callee's parameters to fresh, uniquified variables via
// AssignNodes, then lowers the callee's own body inline, with `after`
// as the callee's continuation so control returns to whatever follows
// this statement in the caller.
func (b *builder) inlineYieldFrom(call *ast.CallExpr, after continuation) (ir.NodeID, error) {
	if b.inlineDepth >= maxInlineDepth {
		return ir.NoNode, diag.Internal("inlined yield-from recursion exceeded the depth bound")
	}
	inner, ok := asInnerCall(call)
	if !ok {
		return ir.NoNode, diag.Unsupported("gen.YieldFrom argument must be a call to a procedure", diag.Position(b.captured.Position(call)))
	}
	target, args, err := b.resolveCall(inner)
	if err != nil {
		return ir.NoNode, err
	}
	callee, ok := b.captured.Procedures[target]
	if !ok {
		return ir.NoNode, diag.Unsupported(fmt.Sprintf("yield-from of unknown procedure %q", target), diag.Position(b.captured.Position(call)))
	}
	if len(args) != len(callee.ParamNames) {
		return ir.NoNode, diag.ArityMismatch(
			fmt.Sprintf("yield-from of %q passes %d args, wants %d", target, len(args), len(callee.ParamNames)),
			diag.Position(b.captured.Position(call)))
	}

	suffix := b.nextInlineSuffix()
	childScope := map[string]*ir.Variable{}
	child := &builder{
		captured:     b.captured,
		graph:        b.graph,
		scope:        childScope,
		arity:        b.arity,
		tailTargets:  b.tailTargets,
		declared:     b.declared,
		inlining:     true,
		inlineDepth:  b.inlineDepth + 1,
		inlineSeq:    b.inlineSeq,
		inlineSuffix: suffix,
	}

	// The parameters enter the callee's scope before its body is lowered,
	// so the body's reads resolve to the bound variables.
	paramVars := make([]*ir.Variable, len(callee.ParamNames))
	for i, pn := range callee.ParamNames {
		v := ir.NewVariable(fmt.Sprintf("%s$%d", pn, suffix))
		childScope[pn] = v
		*b.declared = append(*b.declared, v)
		paramVars[i] = v
	}

	bodyEntry, err := child.buildSeq(callee.Decl.Body.List, after)
	if err != nil {
		return ir.NoNode, err
	}

	// Bind parameters last-to-first so each bound AssignNode's fallthrough
	// points at the next binding, ending at the callee body's entry.
	entry := bodyEntry
	for i := len(callee.ParamNames) - 1; i >= 0; i-- {
		node := b.graph.NewAssignNode(paramVars[i], args[i])
		b.graph.AddEdge(node.NodeID(), ir.EdgeNext, entry, false)
		entry = node.NodeID()
	}
	if len(callee.ParamNames) == 0 {
		entry = bodyEntry
	}
	return entry, nil
}

// resolveCall translates a plain callee(args...) call — already
// unwrapped from its enclosing gen.YieldFrom by asInnerCall — into a
// target procedure name and its evaluated argument expressions.
func (b *builder) resolveCall(call *ast.CallExpr) (string, []ir.Expression, error) {
	ident, ok := call.Fun.(*ast.Ident)
	if !ok {
		return "", nil, diag.Unsupported("call target must be a plain procedure name", diag.Position(b.captured.Position(call)))
	}
	args := make([]ir.Expression, len(call.Args))
	for i, a := range call.Args {
		e, err := b.buildExpr(a)
		if err != nil {
			return "", nil, err
		}
		args[i] = e
	}
	return ident.Name, args, nil
}

// lookupOrDeclare returns the Variable bound to name in the current
// scope, declaring one if this is its first mention. While inlining a
// callee's body, a freshly declared name is suffixed with this
// builder's inlineSuffix so two inlined copies of the same (or two
// different) procedures never collide on the same emitted register
// name — e.g. two successive `gen.YieldFrom` calls to the same helper
// each declaring a local named `product`.
func (b *builder) lookupOrDeclare(name string) *ir.Variable {
	if v, ok := b.scope[name]; ok {
		return v
	}
	declName := name
	if b.inlining {
		declName = fmt.Sprintf("%s$%d", name, b.inlineSuffix)
	}
	v := ir.NewVariable(declName)
	b.scope[name] = v
	*b.declared = append(*b.declared, v)
	return v
}

// asCall reports whether expr is a call to pkg.fn (e.g. gen.Yield),
// returning the call expression itself.
func asCall(expr ast.Expr, pkg, fn string) (*ast.CallExpr, bool) {
	call, ok := expr.(*ast.CallExpr)
	if !ok {
		return nil, false
	}
	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return nil, false
	}
	x, ok := sel.X.(*ast.Ident)
	if !ok || x.Name != pkg || sel.Sel.Name != fn {
		return nil, false
	}
	return call, true
}

// asInnerCall unwraps a gen.YieldFrom(callee(args...)) expression down
// to its sole argument, the inner callee(args...) call that
// resolveCall actually resolves. gen.YieldFrom's own Fun is a
// SelectorExpr (gen.YieldFrom), never a plain identifier, so callers
// must unwrap before resolveCall sees it.
func asInnerCall(yieldFrom *ast.CallExpr) (*ast.CallExpr, bool) {
	if len(yieldFrom.Args) != 1 {
		return nil, false
	}
	inner, ok := yieldFrom.Args[0].(*ast.CallExpr)
	return inner, ok
}
