// Package preprocess implements the single AST rewrite/analysis walk of
// spec.md §4.1: strength-reducing multiply/divide by a power of two into
// shifts, and counting how many times each procedure (user-defined or
// synthetic) is statically referenced.
//
// Grounded on the teacher's optimize.go reachability walk
// (findCallsExpr/findCallsStmt): the same exhaustive per-statement-kind
// switch shape, adapted from "mark reachable" to "count references" and
// from "read-only" to "mutate multiply/divide nodes in place".
package preprocess

import (
	"fmt"
	"math/bits"

	"github.com/junsevith/kompilator/ast"
)

// Synthetic routine names seeded into the reference-count map before the
// walk begins, per spec.md §4.1.
const (
	Multiply  = "@multiply"
	Divide    = "@divide"
	ShiftLeft = "@shift_left"
	ShiftRight = "@shift_right"
)

// UnknownFunctionError is returned when a call targets a name that is
// neither a declared procedure nor a synthetic routine.
type UnknownFunctionError struct{ Name string }

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("UnknownFunction(%q)", e.Name)
}

// NegativeShiftError reports a negative shift amount (see
// codegen.NegativeShiftError for the lowering-time counterpart this
// mirrors). Run does not return it: a negative literal is never a
// power of two, so its multiply or divide is left for @multiply/@divide.
type NegativeShiftError struct{ Amount int }

func (e *NegativeShiftError) Error() string {
	return fmt.Sprintf("NegativeShift(%d)", e.Amount)
}

// Result holds the reference counts produced by Run.
type Result struct {
	RefCounts map[string]int
}

// Run mutates prog in place (strength-reducing multiply/divide nodes)
// and returns the reference counts every procedure name was seen with.
func Run(prog *ast.Program) (*Result, error) {
	known := make(map[string]bool)
	for _, p := range prog.Procedures {
		known[p.Name] = true
	}

	counts := map[string]int{Multiply: 0, Divide: 0, ShiftLeft: 0, ShiftRight: 0}

	for _, p := range prog.Procedures {
		iters, err := walkCommands(p.Commands, known, counts)
		if err != nil {
			return nil, err
		}
		addIterDecls(p, iters)
	}

	iters, err := walkCommands(prog.Commands, known, counts)
	if err != nil {
		return nil, err
	}
	addProgramIterDecls(prog, iters)

	return &Result{RefCounts: counts}, nil
}

// addIterDecls appends a fresh ScalarDecl for every for-loop iterator
// name not already declared in the procedure's own scope.
func addIterDecls(p *ast.Procedure, iters []string) {
	declared := declaredNames(p.Declarations)
	for _, name := range iters {
		if declared[name] {
			continue
		}
		p.Declarations = append(p.Declarations, ast.ScalarDecl{Name: name})
		declared[name] = true
	}
}

func addProgramIterDecls(prog *ast.Program, iters []string) {
	declared := declaredNames(prog.Declarations)
	for _, name := range iters {
		if declared[name] {
			continue
		}
		prog.Declarations = append(prog.Declarations, ast.ScalarDecl{Name: name})
		declared[name] = true
	}
}

func declaredNames(decls []ast.Declaration) map[string]bool {
	m := make(map[string]bool, len(decls))
	for _, d := range decls {
		m[d.Ident()] = true
	}
	return m
}

// walkCommands recursively visits every command, mutating multiply and
// divide assigns and tallying procedure references. It returns the
// distinct for-loop iterator names encountered, in first-seen order.
func walkCommands(cmds []ast.Command, known map[string]bool, counts map[string]int) ([]string, error) {
	var iters []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			iters = append(iters, name)
		}
	}

	var walk func([]ast.Command) error
	walk = func(cmds []ast.Command) error {
		for i, c := range cmds {
			switch cmd := c.(type) {
			case ast.Assign:
				cmds[i] = rewriteAssign(cmd, counts)
			case ast.If:
				if err := walk(cmd.Then); err != nil {
					return err
				}
			case ast.IfElse:
				if err := walk(cmd.Then); err != nil {
					return err
				}
				if err := walk(cmd.Else); err != nil {
					return err
				}
			case ast.While:
				if err := walk(cmd.Body); err != nil {
					return err
				}
			case ast.RepeatUntil:
				if err := walk(cmd.Body); err != nil {
					return err
				}
			case ast.ForUp:
				add(cmd.Iter)
				if err := walk(cmd.Body); err != nil {
					return err
				}
			case ast.ForDown:
				add(cmd.Iter)
				if err := walk(cmd.Body); err != nil {
					return err
				}
			case ast.Call:
				if !known[cmd.Name] {
					return &UnknownFunctionError{Name: cmd.Name}
				}
				counts[cmd.Name]++
			case ast.Read, ast.Write:
				// No procedure references or multiply/divide nodes here.
			default:
				return fmt.Errorf("preprocess: unsupported command %T", c)
			}
		}
		return nil
	}

	if err := walk(cmds); err != nil {
		return nil, err
	}
	return iters, nil
}

// rewriteAssign applies the power-of-two strength reduction described in
// spec.md §4.1, returning the (possibly mutated) assignment and updating
// counts in place.
func rewriteAssign(a ast.Assign, counts map[string]int) ast.Assign {
	switch a.Op {
	case ast.OpMul:
		if lit, v, ok := literalVarPair(a.Left, a.Right); ok {
			if shift, isPow2 := powerOfTwoShift(lit); isPow2 {
				counts[ShiftLeft] += shift
				return ast.Assign{Dest: a.Dest, Op: ast.OpShl, Left: v, Right: ast.Literal{Value: shift}}
			}
		}
		counts[Multiply]++
		return a
	case ast.OpDiv:
		// Only (Var, Literal) is eligible per spec.md §4.1 — the left
		// operand must be the variable being divided.
		if lit, ok := asLiteral(a.Right); ok {
			if _, ok := asIdent(a.Left); ok {
				if shift, isPow2 := powerOfTwoShift(lit); isPow2 {
					counts[ShiftRight] += shift
					return ast.Assign{Dest: a.Dest, Op: ast.OpShr, Left: a.Left, Right: ast.Literal{Value: shift}}
				}
			}
		}
		counts[Divide]++
		return a
	default:
		return a
	}
}

func asLiteral(v ast.Value) (int, bool) {
	if l, ok := v.(ast.Literal); ok {
		return l.Value, true
	}
	return 0, false
}

func asIdent(v ast.Value) (ast.Ident, bool) {
	if id, ok := v.(ast.Ident); ok {
		return id, true
	}
	return ast.Ident{}, false
}

// literalVarPair recognizes (Literal, Ident) or (Ident, Literal) in
// either order, returning the literal's value and the identifier Value.
func literalVarPair(left, right ast.Value) (int, ast.Value, bool) {
	if l, ok := asLiteral(left); ok {
		if _, ok := asIdent(right); ok {
			return l, right, true
		}
	}
	if l, ok := asLiteral(right); ok {
		if _, ok := asIdent(left); ok {
			return l, left, true
		}
	}
	return 0, nil, false
}

// powerOfTwoShift reports the log2 of n when n > 0 and n is a power of
// two.
func powerOfTwoShift(n int) (int, bool) {
	if n <= 0 {
		return 0, false
	}
	if bits.OnesCount(uint(n)) != 1 {
		return 0, false
	}
	return bits.TrailingZeros(uint(n)), true
}
