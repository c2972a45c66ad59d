// Package compiler wires the full pipeline of spec.md §2 together:
// preprocess, materialize referenced procedures, lower the main body,
// close with HALT, then post-pass. Grounded directly on the teacher's
// pkg/compiler/compile.go linear-pipeline shape (Preprocess → Lex →
// Parse → Generate → Assemble) — this package drops the lexer/parser
// stages spec.md excludes (an AST arrives already built) and keeps the
// same "thread the output of one stage into the next, bail on the
// first error" structure.
package compiler

import (
	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/codegen"
	"github.com/junsevith/kompilator/isa"
	"github.com/junsevith/kompilator/postpass"
	"github.com/junsevith/kompilator/preprocess"
	"github.com/junsevith/kompilator/procedures"
	"github.com/junsevith/kompilator/symtab"
)

// firstScopeCell is where the main scope's allocator starts: cell 0 is
// the immutable zero cell and cells 1-9 are codegen's fixed scratch
// cells (see codegen.ScratchLHS etc.).
const firstScopeCell = 10

// Compile lowers prog into a final, fully-resolved instruction sequence
// ready for the serializer.
func Compile(prog *ast.Program) ([]isa.Instruction, error) {
	result, err := preprocess.Run(prog)
	if err != nil {
		return nil, err
	}

	global := symtab.New(firstScopeCell)
	for _, d := range prog.Declarations {
		if err := global.Add(d); err != nil {
			return nil, err
		}
	}

	buf := buffer.New()
	mgr := procedures.New(global, buf, prog.Procedures, result.RefCounts)
	if err := mgr.MaterializeReferenced(); err != nil {
		return nil, err
	}
	// Every materialized procedure drew its own cells from a table
	// seeded at global.Top(), in parallel with global itself — rebase
	// before lowering main so its own synthesized locals (for-loop
	// bounds) never collide with them.
	global.Rebase(mgr.NextCell())

	// Any materialized procedure body (Multiply/Divide or a user
	// procedure called twice or more) was just merged into buf ahead of
	// this point, so buf's first entry is no longer where the main body
	// starts. Claim the "main" label explicitly — postpass's fallback
	// (stamping entries[0]) only covers the no-materialized-procedures
	// case.
	buf.SetLabel(postpass.MainLabel)
	main := codegen.NewLowerer("main", global, buf, mgr)
	buf.PushContext("main")
	if err := main.LowerCommands(prog.Commands); err != nil {
		return nil, err
	}
	buf.PopContext()
	buf.Push(isa.Halt, buffer.NoOperand())

	return postpass.Resolve(buf, global.Top())
}
