package cfgbuild

import (
	"fmt"
	"go/ast"
	"go/token"

	"hdlflow/diag"
	"hdlflow/ir"
)

// buildExpr lowers a go/ast expression into the ir.Expression sum. Only
// the forms the frontend accepts survive here; anything else is an
// unsupported construct, not a crash — the subset is validated during
// this same walk rather than as a separate pass.
func (b *builder) buildExpr(expr ast.Expr) (ir.Expression, error) {
	switch e := expr.(type) {
	case *ast.Ident:
		return b.buildIdent(e)
	case *ast.BasicLit:
		return b.buildBasicLit(e)
	case *ast.ParenExpr:
		return b.buildExpr(e.X)
	case *ast.UnaryExpr:
		return b.buildUnary(e)
	case *ast.BinaryExpr:
		return b.buildBinary(e)
	default:
		return nil, diag.Unsupported(fmt.Sprintf("%T expression", expr), diag.Position(b.captured.Position(expr)))
	}
}

func (b *builder) buildIdent(e *ast.Ident) (ir.Expression, error) {
	switch e.Name {
	case "true":
		return ir.IntLit{Value: 1}, nil
	case "false":
		return ir.IntLit{Value: 0}, nil
	case "_":
		return ir.Unknown{}, nil
	}
	// buildSeq lowers a statement list from its tail, so a read can be
	// built before the assignment that introduces the name; the name is
	// declared on whichever mention is built first.
	return ir.VarRef{Var: b.lookupOrDeclare(e.Name)}, nil
}

func (b *builder) buildBasicLit(e *ast.BasicLit) (ir.Expression, error) {
	if e.Kind != token.INT {
		return nil, diag.Unsupported("non-integer literal", diag.Position(b.captured.Position(e)))
	}
	var value int32
	if _, err := fmt.Sscanf(e.Value, "%d", &value); err != nil {
		return nil, diag.Unsupported(fmt.Sprintf("malformed integer literal %q", e.Value), diag.Position(b.captured.Position(e)))
	}
	return ir.IntLit{Value: value}, nil
}

func (b *builder) buildUnary(e *ast.UnaryExpr) (ir.Expression, error) {
	x, err := b.buildExpr(e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.SUB:
		return ir.UnaryOp{Op: "-", Expr: x}, nil
	case token.NOT:
		return ir.UnaryOp{Op: "!", Expr: x}, nil
	case token.XOR:
		return ir.UnaryOp{Op: "~", Expr: x}, nil
	case token.ADD:
		return x, nil
	default:
		return nil, diag.Unsupported(e.Op.String()+" unary operator", diag.Position(b.captured.Position(e)))
	}
}

// binOpTokens maps go/token binary operators onto the closed BinOpKind
// set. `/` and `%` map to the sign-correcting FloorDiv/Mod variants
// rather than Go's own truncating semantics: the restricted integer
// type's division keeps Python sign conventions regardless of
// host-language truncation rules.
var binOpTokens = map[token.Token]ir.BinOpKind{
	token.ADD:     ir.OpAdd,
	token.SUB:     ir.OpSub,
	token.MUL:     ir.OpMul,
	token.QUO:     ir.OpFloorDiv,
	token.REM:     ir.OpMod,
	token.LSS:     ir.OpLess,
	token.EQL:     ir.OpEq,
	token.NEQ:     ir.OpNotEq,
	token.LEQ:     ir.OpLessEq,
	token.GTR:     ir.OpGreater,
	token.GEQ:     ir.OpGreaterEq,
	token.SHL:     ir.OpLShift,
	token.SHR:     ir.OpRShift,
	token.AND:     ir.OpBitAnd,
	token.OR:      ir.OpBitOr,
	token.XOR:     ir.OpBitXor,
	token.LAND:    ir.OpBitAnd, // restricted subset has no bool type; && reuses bitwise and over 0/1
	token.LOR:     ir.OpBitOr,
}

func (b *builder) buildBinary(e *ast.BinaryExpr) (ir.Expression, error) {
	left, err := b.buildExpr(e.X)
	if err != nil {
		return nil, err
	}
	right, err := b.buildExpr(e.Y)
	if err != nil {
		return nil, err
	}
	op, ok := binOpTokens[e.Op]
	if !ok {
		return nil, diag.Unsupported(e.Op.String()+" binary operator", diag.Position(b.captured.Position(e)))
	}
	return ir.BinOp{Left: left, Op: op, Right: right}, nil
}
