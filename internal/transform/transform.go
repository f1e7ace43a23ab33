// Package transform implements the Transformer. Since goja
// exposes no AST-to-source codegen, rewrites are done as position-based
// source splices against the original text (MagicString-style) rather than
// reconstructing statements from scratch: every edit is computed from an
// AST node's Idx0()/Idx1() span, collected into a list, and applied in one
// descending-offset pass so earlier edits never invalidate later offsets.
package transform

import (
	"fmt"
	"sort"

	gojaast "github.com/dop251/goja/ast"

	"github.com/jonwraymond/enclavejs/internal/ast"
)

// Result is the outcome of a successful transform.
type Result struct {
	// Source is the rewritten program text, ready to be loaded by the
	// Sandbox as the body of an async __ag_main function.
	Source string
}

type edit struct {
	start, end int
	replace    string
}

// Transform rewrites source per §4.2:
//   - loop bodies get a per-iteration host checkpoint call injected at
//     their start;
//   - callTool(...) call sites are re-pointed at __safe_callTool so the
//     mediated path is taken even if callTool was shadowed locally;
//   - the whole program is wrapped in an async function __ag_main so the
//     Sandbox can await top-level await.
//
// Transform assumes source already passed Guard.Validate; it does not
// re-validate.
func Transform(source string) (Result, error) {
	prog, err := ast.Parse("<transform>", source)
	if err != nil {
		return Result{}, fmt.Errorf("transform: parse: %w", err)
	}

	var edits []edit
	var walkStmt func(gojaast.Statement)
	var walkExpr func(gojaast.Expression)

	injectCheckpoint := func(body gojaast.Statement, call string) {
		if block, ok := body.(*gojaast.BlockStatement); ok {
			pos := prog.Offset(block.LeftBrace) + 1
			edits = append(edits, edit{start: pos, end: pos, replace: call + ";"})
			return
		}
		start := prog.Offset(body.Idx0())
		end := prog.Offset(body.Idx1())
		original := source[start:end]
		edits = append(edits, edit{start: start, end: end, replace: "{" + call + ";" + original + "}"})
	}

	walkExpr = func(e gojaast.Expression) {
		switch n := e.(type) {
		case nil:
			return
		case *gojaast.CallExpression:
			if callee, ok := n.Callee.(*gojaast.Identifier); ok && string(callee.Name) == "callTool" {
				start := prog.Offset(callee.Idx0())
				end := prog.Offset(callee.Idx1())
				edits = append(edits, edit{start: start, end: end, replace: "__safe_callTool"})
			} else {
				walkExpr(n.Callee)
			}
			for _, a := range n.ArgumentList {
				walkExpr(a)
			}
		case *gojaast.NewExpression:
			walkExpr(n.Callee)
			for _, a := range n.ArgumentList {
				walkExpr(a)
			}
		case *gojaast.AssignExpression:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *gojaast.BinaryExpression:
			walkExpr(n.Left)
			walkExpr(n.Right)
		case *gojaast.UnaryExpression:
			walkExpr(n.Operand)
		case *gojaast.ConditionalExpression:
			walkExpr(n.Test)
			walkExpr(n.Consequent)
			walkExpr(n.Alternate)
		case *gojaast.SequenceExpression:
			for _, e := range n.Sequence {
				walkExpr(e)
			}
		case *gojaast.ArrayLiteral:
			for _, e := range n.Value {
				walkExpr(e)
			}
		case *gojaast.ObjectLiteral:
			for _, p := range n.Value {
				if pk, ok := p.(*gojaast.PropertyKeyed); ok {
					walkExpr(pk.Value)
				}
			}
		case *gojaast.DotExpression:
			walkExpr(n.Left)
		case *gojaast.BracketExpression:
			walkExpr(n.Left)
			walkExpr(n.Member)
		case *gojaast.SpreadElement:
			walkExpr(n.Expression)
		case *gojaast.TemplateLiteral:
			for _, e := range n.Expressions {
				walkExpr(e)
			}
		case *gojaast.FunctionLiteral:
			if n.Body != nil {
				for _, st := range n.Body.List {
					walkStmt(st)
				}
			}
		case *gojaast.ArrowFunctionLiteral:
			switch body := n.Body.(type) {
			case *gojaast.BlockStatement:
				for _, st := range body.List {
					walkStmt(st)
				}
			case gojaast.Expression:
				walkExpr(body)
			}
		}
	}

	walkStmt = func(s gojaast.Statement) {
		switch n := s.(type) {
		case nil:
			return
		case *gojaast.BlockStatement:
			for _, st := range n.List {
				walkStmt(st)
			}
		case *gojaast.ExpressionStatement:
			walkExpr(n.Expression)
		case *gojaast.VariableStatement:
			for _, b := range n.List {
				walkExpr(b.Initializer)
			}
		case *gojaast.LexicalDeclaration:
			for _, b := range n.List {
				walkExpr(b.Initializer)
			}
		case *gojaast.IfStatement:
			walkExpr(n.Test)
			walkStmt(n.Consequent)
			walkStmt(n.Alternate)
		case *gojaast.ReturnStatement:
			walkExpr(n.Argument)
		case *gojaast.ThrowStatement:
			walkExpr(n.Argument)
		case *gojaast.TryStatement:
			if n.Body != nil {
				for _, st := range n.Body.List {
					walkStmt(st)
				}
			}
			if n.Catch != nil {
				for _, st := range n.Catch.Body.List {
					walkStmt(st)
				}
			}
			if n.Finally != nil {
				for _, st := range n.Finally.List {
					walkStmt(st)
				}
			}
		case *gojaast.SwitchStatement:
			walkExpr(n.Discriminant)
			for _, c := range n.Body {
				walkExpr(c.Test)
				for _, st := range c.Consequent {
					walkStmt(st)
				}
			}
		case *gojaast.LabelledStatement:
			walkStmt(n.Statement)
		case *gojaast.ForStatement:
			walkExpr(n.Test)
			walkExpr(n.Update)
			walkStmt(n.Body)
			injectCheckpoint(n.Body, "__safe_for()")
		case *gojaast.WhileStatement:
			walkExpr(n.Test)
			walkStmt(n.Body)
			injectCheckpoint(n.Body, "__safe_while()")
		case *gojaast.DoWhileStatement:
			walkExpr(n.Test)
			walkStmt(n.Body)
			injectCheckpoint(n.Body, "__safe_doWhile()")
		case *gojaast.ForOfStatement:
			walkExpr(n.Source)
			walkStmt(n.Body)
			injectCheckpoint(n.Body, "__safe_forOf()")
		case *gojaast.ForInStatement:
			walkExpr(n.Source)
			walkStmt(n.Body)
			// §4.2 only names a dedicated checkpoint for for/while/
			// do-while/for-of; for-in shares __safe_forOf's counter
			// rather than inventing a fifth host global.
			injectCheckpoint(n.Body, "__safe_forOf()")
		}
	}

	for _, stmt := range prog.Body {
		walkStmt(stmt)
	}

	rewritten := applyEdits(source, edits)

	wrapped := "async function __ag_main() {\n" + rewritten + "\n}\n"
	return Result{Source: wrapped}, nil
}

func applyEdits(source string, edits []edit) string {
	sort.Slice(edits, func(i, j int) bool {
		if edits[i].start != edits[j].start {
			return edits[i].start > edits[j].start
		}
		return edits[i].end > edits[j].end
	})
	out := source
	for _, e := range edits {
		out = out[:e.start] + e.replace + out[e.end:]
	}
	return out
}
