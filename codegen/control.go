package codegen

import (
	"fmt"

	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
)

func (l *Lowerer) lowerIf(c ast.If) error {
	end := l.Buf.ReserveLabel(l.Scope, "if_end")
	if err := l.HandleCondition(c.Cond, end); err != nil {
		return err
	}
	if err := l.LowerCommands(c.Then); err != nil {
		return err
	}
	l.Buf.SetLabel(end)
	return nil
}

func (l *Lowerer) lowerIfElse(c ast.IfElse) error {
	elseLabel := l.Buf.ReserveLabel(l.Scope, "if_else")
	end := l.Buf.ReserveLabel(l.Scope, "if_end")
	if err := l.HandleCondition(c.Cond, elseLabel); err != nil {
		return err
	}
	if err := l.LowerCommands(c.Then); err != nil {
		return err
	}
	l.Buf.Push(isa.Jump, buffer.LabelOperand(end))
	l.Buf.SetLabel(elseLabel)
	if err := l.LowerCommands(c.Else); err != nil {
		return err
	}
	l.Buf.SetLabel(end)
	return nil
}

func (l *Lowerer) lowerWhile(c ast.While) error {
	start := l.Buf.ReserveLabel(l.Scope, "while_start")
	end := l.Buf.ReserveLabel(l.Scope, "while_end")
	l.Buf.SetLabel(start)
	if err := l.HandleCondition(c.Cond, end); err != nil {
		return err
	}
	if err := l.LowerCommands(c.Body); err != nil {
		return err
	}
	l.Buf.Push(isa.Jump, buffer.LabelOperand(start))
	l.Buf.SetLabel(end)
	return nil
}

// lowerRepeat relies on HandleCondition's falseLabel meaning "jump here
// when the condition is false" being exactly repeat-until's "loop back
// while not yet true" — no separate end label is needed.
func (l *Lowerer) lowerRepeat(c ast.RepeatUntil) error {
	start := l.Buf.ReserveLabel(l.Scope, "repeat_start")
	l.Buf.SetLabel(start)
	if err := l.LowerCommands(c.Body); err != nil {
		return err
	}
	return l.HandleCondition(c.Cond, start)
}

func (l *Lowerer) lowerForUp(f ast.ForUp) error {
	return l.lowerFor(f.Iter, f.Start, f.End, f.Body, ast.CondLe, ast.OpAdd)
}

func (l *Lowerer) lowerForDown(f ast.ForDown) error {
	return l.lowerFor(f.Iter, f.Start, f.End, f.Body, ast.CondGe, ast.OpSub)
}

// lowerFor implements both FOR..TO and FOR..DOWNTO: the iterator, bound
// direction and step direction are the only differences. The loop bound
// is snapshotted into a synthesized cell once, before the loop starts,
// so a body that mutates the bound's source variable never perturbs an
// in-flight loop.
func (l *Lowerer) lowerFor(iter string, start, end ast.Value, body []ast.Command, continueOp ast.ConditionOperator, step ast.Operator) error {
	boundName := fmt.Sprintf("@for_bound@%d", l.forCounter)
	l.forCounter++
	if err := l.Table.Add(ast.ScalarDecl{Name: boundName}); err != nil {
		return err
	}

	if err := l.lowerAssign(ast.Assign{Dest: ast.Variable{Name_: iter}, Op: ast.OpIdentity, Left: start}); err != nil {
		return err
	}
	if err := l.lowerAssign(ast.Assign{Dest: ast.Variable{Name_: boundName}, Op: ast.OpIdentity, Left: end}); err != nil {
		return err
	}

	startLabel := l.Buf.ReserveLabel(l.Scope, "for_start")
	endLabel := l.Buf.ReserveLabel(l.Scope, "for_end")
	l.Buf.SetLabel(startLabel)

	cond := ast.Condition{
		Left:  ast.Ident{Identifier: ast.Variable{Name_: iter}},
		Right: ast.Ident{Identifier: ast.Variable{Name_: boundName}},
		Op:    continueOp,
	}
	if err := l.HandleCondition(cond, endLabel); err != nil {
		return err
	}

	if err := l.LowerCommands(body); err != nil {
		return err
	}

	step1 := ast.Assign{
		Dest:  ast.Variable{Name_: iter},
		Op:    step,
		Left:  ast.Ident{Identifier: ast.Variable{Name_: iter}},
		Right: ast.Literal{Value: 1},
	}
	if err := l.lowerAssign(step1); err != nil {
		return err
	}

	l.Buf.Push(isa.Jump, buffer.LabelOperand(startLabel))
	l.Buf.SetLabel(endLabel)
	return nil
}
