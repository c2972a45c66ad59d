package codegen

import (
	"fmt"

	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
	"github.com/junsevith/kompilator/symtab"
)

// Names of the two synthetic procedures that lowerOperation dispatches
// to for the cases strength reduction couldn't eliminate. These are
// never declared in an ast.Program; the procedure manager special-cases
// them (see procedures.Manager), binding operands through the fixed
// ScratchLHS/ScratchRHS/ScratchResult cells instead of named parameters.
const (
	multiplyProc = "@multiply"
	divideProc   = "@divide"
)

// lowerOperation leaves the result of left Op right in the accumulator.
func (l *Lowerer) lowerOperation(op ast.Operator, left, right ast.Value) error {
	switch op {
	case ast.OpIdentity:
		_, err := l.loadValue(left)
		return err
	case ast.OpAdd:
		if _, err := l.loadValue(left); err != nil {
			return err
		}
		return l.addSubValue(true, right)
	case ast.OpSub:
		if _, err := l.loadValue(left); err != nil {
			return err
		}
		return l.addSubValue(false, right)
	case ast.OpShl:
		n, err := literalAmount(right)
		if err != nil {
			return err
		}
		if _, err := l.loadValue(left); err != nil {
			return err
		}
		l.shiftLeft(n)
		return nil
	case ast.OpShr:
		n, err := literalAmount(right)
		if err != nil {
			return err
		}
		if _, err := l.loadValue(left); err != nil {
			return err
		}
		l.shiftRight(n)
		return nil
	case ast.OpMul:
		if err := l.stageOperands(left, right); err != nil {
			return err
		}
		if err := l.Calls.Call(l, ast.Call{Name: multiplyProc}); err != nil {
			return err
		}
		l.Buf.Push(isa.Load, buffer.CellOperand(ScratchResult))
		return nil
	case ast.OpDiv:
		if err := l.stageOperands(left, right); err != nil {
			return err
		}
		if err := l.Calls.Call(l, ast.Call{Name: divideProc}); err != nil {
			return err
		}
		l.Buf.Push(isa.Load, buffer.CellOperand(ScratchResult))
		return nil
	case ast.OpMod:
		if lit, ok := right.(ast.Literal); ok && lit.Value == 2 {
			return l.lowerMod2(left)
		}
		if err := l.stageOperands(left, right); err != nil {
			return err
		}
		if err := l.Calls.Call(l, ast.Call{Name: divideProc}); err != nil {
			return err
		}
		// @divide leaves its remainder in ScratchOperand (see scratch.go).
		l.Buf.Push(isa.Load, buffer.CellOperand(ScratchOperand))
		return nil
	default:
		return fmt.Errorf("codegen: unsupported operator %v", op)
	}
}

// loadValue resolves and loads a Value, returning its resolved Type for
// callers that need it.
func (l *Lowerer) loadValue(v ast.Value) (symtab.Type, error) {
	t, err := l.Table.ReadValue(v)
	if err != nil {
		return symtab.Type{}, err
	}
	l.Load(t)
	return t, nil
}

// addSubValue resolves v and emits ADD/ADDI or SUB/SUBI against it,
// materializing an array element's address through ScratchOperand first
// when necessary.
func (l *Lowerer) addSubValue(add bool, v ast.Value) error {
	t, err := l.Table.ReadValue(v)
	if err != nil {
		return err
	}
	if t.IsArray {
		addr := l.PreparePointer(t, ScratchOperand)
		l.addOrSub(add, addr)
		return nil
	}
	if t.Variable.IsLiteralZero() {
		return nil
	}
	l.addOrSub(add, t.Variable)
	return nil
}

// stageOperands evaluates left and right and stores them into the
// fixed ScratchLHS/ScratchRHS cells @multiply and @divide read from.
func (l *Lowerer) stageOperands(left, right ast.Value) error {
	if _, err := l.loadValue(left); err != nil {
		return err
	}
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchLHS))
	if _, err := l.loadValue(right); err != nil {
		return err
	}
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchRHS))
	return nil
}

// shiftLeft doubles the accumulator n times. spec.md §4.4/§8 require the
// emission to be literally n copies of "ADD cell0" (ground-truth emission
// shape, also asserted by scenario 1's "three ADD 0"): ADD has no "add
// self" addressing mode, so each doubling round-trips the running value
// through ZeroCell itself rather than through an ordinary scratch cell.
// That leaves ZeroCell holding the last doubled value, so once the loop
// is done its contents are restored to 0 before returning — every other
// user of ZeroCell in this package depends on it reading back as the
// constant zero.
func (l *Lowerer) shiftLeft(n int) {
	for i := 0; i < n; i++ {
		l.Buf.Push(isa.Store, buffer.CellOperand(ZeroCell))
		l.Buf.Push(isa.Add, buffer.CellOperand(ZeroCell))
	}
	if n == 0 {
		return
	}
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Load, buffer.LiteralOperand(0))
	l.Buf.Push(isa.Store, buffer.CellOperand(ZeroCell))
	l.Buf.Push(isa.Load, buffer.CellOperand(ScratchOperand))
}

// shiftRight applies HALF n times.
func (l *Lowerer) shiftRight(n int) {
	for i := 0; i < n; i++ {
		l.Buf.Push(isa.Half, buffer.NoOperand())
	}
}

// lowerMod2 computes left mod 2 without a full @divide call: HALF gives
// floor(v/2), doubling and subtracting from the original recovers the
// remainder.
func (l *Lowerer) lowerMod2(left ast.Value) error {
	if _, err := l.loadValue(left); err != nil {
		return err
	}
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchLHS))
	l.Buf.Push(isa.Half, buffer.NoOperand())
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Add, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Load, buffer.CellOperand(ScratchLHS))
	l.Buf.Push(isa.Sub, buffer.CellOperand(ScratchOperand))
	return nil
}

func literalAmount(v ast.Value) (int, error) {
	lit, ok := v.(ast.Literal)
	if !ok {
		return 0, fmt.Errorf("codegen: shift amount must be a compile-time literal, got %T", v)
	}
	if lit.Value < 0 {
		return 0, &NegativeShiftError{Amount: lit.Value}
	}
	return lit.Value, nil
}
