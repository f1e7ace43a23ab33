// Package ast wraps goja's parser so the Guard and Transformer can share a
// single parsing path and a single notion of source position.
package ast

import (
	"fmt"

	gojaast "github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
)

// wrapPrefix/wrapSuffix turn the submitted source into the body of an async
// function declaration before parsing. A program-level return and a
// top-level await are both illegal in a bare script - goja's parser rejects
// them the same way the spec itself does - but both are exactly what the
// Sandbox runs once Transform wraps the source in __ag_main. Parsing the
// same shape here means Guard and Transform see what the Sandbox will
// actually execute, instead of rejecting a program the Sandbox accepts.
const (
	wrapPrefix = "async function __ag_main() {\n"
	wrapSuffix = "\n}\n"
	wrapLines  = 1 // number of '\n' in wrapPrefix
)

// Program is the parsed syntax tree of a source string, alongside the file
// set needed to resolve node positions back to line/column in the original,
// unwrapped source.
type Program struct {
	*gojaast.Program
	FileSet *file.FileSet

	// Body is the statement list the caller passed to Parse as source. It
	// shadows the embedded Program's Body, which instead holds the single
	// synthetic function declaration Parse wraps source in.
	Body []gojaast.Statement
}

// Parse parses source as the body of an async function, under the given
// name used only for position reporting. It does not evaluate or transform
// anything.
func Parse(name, source string) (*Program, error) {
	fset := new(file.FileSet)
	prog, err := parser.ParseFile(fset, name, wrapPrefix+source+wrapSuffix, 0)
	if err != nil {
		return nil, err
	}
	if len(prog.Body) != 1 {
		return nil, fmt.Errorf("ast: parse: unexpected wrap shape (%d top-level statements)", len(prog.Body))
	}
	fn, ok := prog.Body[0].(*gojaast.FunctionDeclaration)
	if !ok || fn.Function == nil || fn.Function.Body == nil {
		return nil, fmt.Errorf("ast: parse: unexpected wrap shape")
	}
	return &Program{Program: prog, FileSet: fset, Body: fn.Function.Body.List}, nil
}

// Position resolves idx to a 1-based line and column within the original,
// unwrapped source that was passed to Parse.
func (p *Program) Position(idx file.Idx) (line, col int) {
	pos := p.FileSet.Position(idx)
	return pos.Line - wrapLines, pos.Column
}

// Offset converts idx into a 0-based byte offset into the original,
// unwrapped source text, undoing both the 1-based file.Idx indexing and
// Parse's wrap prefix.
func (p *Program) Offset(idx file.Idx) int {
	return int(idx) - 1 - len(wrapPrefix)
}
