// Package frontend captures the input to the compiler: a Go source
// file containing a restricted subset of ordinary Go function syntax,
// one function per co-compiled procedure. This package's job ends at
// producing an AST plus a source snippet per procedure — everything
// downstream (subset validation, CFG construction) is the CFG
// builder's job (package cfgbuild).
//
// Capturing via Go's own go/parser mirrors the original project's
// reliance on CPython's `ast` module: neither hand-writes a lexer or
// grammar for the language it compiles.
package frontend

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
)

// Procedure is one captured function: its declaration, its parameter
// names in order, and the verbatim source text used for diagnostics.
type Procedure struct {
	Name       string
	Decl       *ast.FuncDecl
	ParamNames []string
	Source     string
}

// Captured is the frontend's output: every procedure found in the
// source file, in declaration order, plus the token.FileSet needed to
// translate AST positions into line/column diagnostics.
type Captured struct {
	Fset       *token.FileSet
	Procedures map[string]*Procedure
	Order      []string
}

// Load parses source (a single Go source file's text, or a bare list of
// function declarations, which is given a package clause on its first
// line so line numbers are unchanged) and captures every top-level
// function declaration as a procedure. It does not validate the
// restricted subset; that happens during CFG construction, where a
// rejected AST node kind carries file/line position back to the caller.
func Load(filename, source string) (*Captured, error) {
	if _, err := parser.ParseFile(token.NewFileSet(), filename, source, parser.PackageClauseOnly); err != nil {
		source = "package gensrc;" + source
	}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, source, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("frontend: parse error: %w", err)
	}

	captured := &Captured{
		Fset:       fset,
		Procedures: make(map[string]*Procedure),
	}

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue // top-level non-function decls (imports, consts) are plumbing, ignored
		}
		if fn.Recv != nil {
			return nil, fmt.Errorf("frontend: method %q not allowed, procedures must be plain functions", fn.Name.Name)
		}

		var params []string
		if fn.Type.Params != nil {
			for _, field := range fn.Type.Params.List {
				names := field.Names
				if len(names) == 0 {
					return nil, fmt.Errorf("frontend: unnamed parameter in %q", fn.Name.Name)
				}
				for _, n := range names {
					params = append(params, n.Name)
				}
			}
		}

		proc := &Procedure{
			Name:       fn.Name.Name,
			Decl:       fn,
			ParamNames: params,
			Source:     sourceSnippet(fset, source, fn),
		}
		if _, dup := captured.Procedures[proc.Name]; dup {
			return nil, fmt.Errorf("frontend: duplicate procedure name %q", proc.Name)
		}
		captured.Procedures[proc.Name] = proc
		captured.Order = append(captured.Order, proc.Name)
	}

	if len(captured.Order) == 0 {
		return nil, fmt.Errorf("frontend: no procedures found in source")
	}
	return captured, nil
}

// sourceSnippet extracts the verbatim text of a function declaration,
// used only for diagnostics.
func sourceSnippet(fset *token.FileSet, source string, fn *ast.FuncDecl) string {
	start := fset.Position(fn.Pos()).Offset
	end := fset.Position(fn.End()).Offset
	if start < 0 || end > len(source) || start > end {
		return ""
	}
	return source[start:end]
}

// Position renders a node's start position as "line:col" for error
// messages.
func (c *Captured) Position(n ast.Node) string {
	p := c.Fset.Position(n.Pos())
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}
