package codegen

import (
	"fmt"

	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
)

// HandleCondition computes cond and jumps to falseLabel when cond is
// false, otherwise falls through. Every control construct (If, While,
// RepeatUntil) is built from this one primitive — RepeatUntil simply
// passes its own start label, since "loop back when not yet true" and
// "jump to false-label" are the same operation.
//
// Grounded on original_source/src/intermediate/condition.rs's
// handle_condition: the target machine there lacks a direct
// jump-if-nonzero/jump-if-not-negative/jump-if-not-positive opcode, so
// Equal/Lesser/Greater test the true condition and skip over an
// unconditional jump to falseLabel, while NotEqual/LesserEqual/
// GreaterEqual test the false condition directly. This machine has the
// same three primitive tests (Jzero/Jpos/Jneg), so the same asymmetry
// applies; the skip distance is a same-buffer symbolic label rather
// than a hand-counted relative offset.
func (l *Lowerer) HandleCondition(cond ast.Condition, falseLabel string) error {
	l.Buf.PushContext(fmt.Sprintf("condition %v", cond.Op))
	defer l.Buf.PopContext()

	lt, err := l.loadValue(cond.Left)
	_ = lt
	if err != nil {
		return err
	}
	if err := l.addSubValue(false, cond.Right); err != nil {
		return err
	}

	switch cond.Op {
	case ast.CondEq:
		l.jumpPast(isa.Jzero, falseLabel)
	case ast.CondLt:
		l.jumpPast(isa.Jneg, falseLabel)
	case ast.CondGt:
		l.jumpPast(isa.Jpos, falseLabel)
	case ast.CondNe:
		l.Buf.Push(isa.Jzero, buffer.LabelOperand(falseLabel))
	case ast.CondLe:
		l.Buf.Push(isa.Jpos, buffer.LabelOperand(falseLabel))
	case ast.CondGe:
		l.Buf.Push(isa.Jneg, buffer.LabelOperand(falseLabel))
	default:
		return fmt.Errorf("codegen: unsupported condition operator %v", cond.Op)
	}
	return nil
}

// jumpPast emits "if test, skip the jump to falseLabel" — used when the
// machine's primitive test matches the TRUE condition, so the false
// case needs an explicit unconditional jump that the true case must
// hop over.
func (l *Lowerer) jumpPast(test isa.Op, falseLabel string) {
	skip := l.Buf.ReserveLabel(l.Scope, "condSkip")
	l.Buf.Push(test, buffer.LabelOperand(skip))
	l.Buf.Push(isa.Jump, buffer.LabelOperand(falseLabel))
	l.Buf.SetLabel(skip)
}
