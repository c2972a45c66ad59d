package codegen

import (
	"testing"

	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
	"github.com/junsevith/kompilator/symtab"
)

// stubCalls records every dispatched call without emitting anything,
// standing in for procedures.Manager so this package's tests never need
// to import it (procedures already imports codegen; the reverse would
// be a cycle).
type stubCalls struct{ seen []ast.Call }

func (s *stubCalls) Call(l *Lowerer, call ast.Call) error {
	s.seen = append(s.seen, call)
	return nil
}

func newLowerer(startCell int) (*Lowerer, *buffer.Buffer, *stubCalls) {
	table := symtab.New(startCell)
	buf := buffer.New()
	calls := &stubCalls{}
	return NewLowerer("main", table, buf, calls), buf, calls
}

func v(name string) ast.Value { return ast.Ident{Identifier: ast.Variable{Name_: name}} }
func lit(n int) ast.Value     { return ast.Literal{Value: n} }

func countOp(entries []buffer.Entry, op isa.Op) int {
	n := 0
	for _, e := range entries {
		if e.Instr.Op == op {
			n++
		}
	}
	return n
}

func TestLowerOperationAddLoadsLeftThenAddsRight(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpAdd, v("a"), lit(5)); err != nil {
		t.Fatalf("lowerOperation: %v", err)
	}
	entries := buf.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries; want 2 (LOAD, ADD)", len(entries))
	}
	if entries[0].Instr.Op != isa.Load {
		t.Errorf("entries[0].Op = %v; want Load", entries[0].Instr.Op)
	}
	if entries[1].Instr.Op != isa.Add {
		t.Errorf("entries[1].Op = %v; want Add", entries[1].Instr.Op)
	}
}

func TestLowerOperationAddSkipsLiteralZero(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpAdd, v("a"), lit(0)); err != nil {
		t.Fatalf("lowerOperation: %v", err)
	}
	if len(buf.Entries()) != 1 {
		t.Fatalf("got %d entries; want 1 (LOAD only, ADD 0 elided)", len(buf.Entries()))
	}
}

func TestLowerOperationMulDispatchesMultiplyCall(t *testing.T) {
	l, buf, calls := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpMul, v("a"), lit(7)); err != nil {
		t.Fatalf("lowerOperation: %v", err)
	}
	if len(calls.seen) != 1 || calls.seen[0].Name != multiplyProc {
		t.Fatalf("calls = %v; want one call to %q", calls.seen, multiplyProc)
	}
	last := buf.Entries()[len(buf.Entries())-1]
	if last.Instr.Op != isa.Load || last.Instr.Operand.Int != ScratchResult {
		t.Fatalf("final load = %+v; want LOAD of ScratchResult", last.Instr)
	}
}

func TestLowerOperationMod2UsesHalfFastPath(t *testing.T) {
	l, buf, calls := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpMod, v("a"), lit(2)); err != nil {
		t.Fatalf("lowerOperation: %v", err)
	}
	if len(calls.seen) != 0 {
		t.Fatalf("a %% 2 must not dispatch a call, got %v", calls.seen)
	}
	if countOp(buf.Entries(), isa.Half) != 1 {
		t.Fatalf("want exactly one HALF, got %d", countOp(buf.Entries(), isa.Half))
	}
}

func TestShiftLeftEmitsNDoublings(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpShl, v("a"), lit(3)); err != nil {
		t.Fatalf("lowerOperation: %v", err)
	}
	if got := countOp(buf.Entries(), isa.Add); got != 3 {
		t.Fatalf("ADD count = %d; want 3", got)
	}
	for _, e := range buf.Entries() {
		if e.Instr.Op == isa.Add && e.Instr.Operand.Int != ZeroCell {
			t.Errorf("ADD operand = %d; want ZeroCell (%d)", e.Instr.Operand.Int, ZeroCell)
		}
	}
}

func TestLiteralAmountRejectsNegativeShift(t *testing.T) {
	l, _, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	err := l.lowerOperation(ast.OpShl, v("a"), lit(-1))
	if _, ok := err.(*NegativeShiftError); !ok {
		t.Fatalf("err = %v (%T); want *NegativeShiftError", err, err)
	}
}

func TestLiteralAmountRejectsNonLiteral(t *testing.T) {
	l, _, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.Add(ast.ScalarDecl{Name: "n"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.Table.MarkInitialized("n"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	if err := l.lowerOperation(ast.OpShl, v("a"), v("n")); err == nil {
		t.Fatal("lowerOperation: want error for a runtime shift amount, got nil")
	}
}

func TestHandleConditionEqUsesJzeroThenSkip(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	cond := ast.Condition{Left: v("a"), Right: lit(0), Op: ast.CondEq}
	if err := l.HandleCondition(cond, "false_target"); err != nil {
		t.Fatalf("HandleCondition: %v", err)
	}
	entries := buf.Entries()
	// LOAD a; SUB 0 is elided (literal zero); JZERO skip; JUMP
	// false_target; skip: lands nowhere yet (no more entries pushed).
	var sawJzero, sawJumpToFalse bool
	for _, e := range entries {
		if e.Instr.Op == isa.Jzero {
			sawJzero = true
		}
		if e.Instr.Op == isa.Jump && e.Instr.Operand.Label == "false_target" {
			sawJumpToFalse = true
		}
	}
	if !sawJzero || !sawJumpToFalse {
		t.Fatalf("entries = %+v; want a JZERO skip and a JUMP to false_target", entries)
	}
}

func TestHandleConditionNeJumpsDirectlyOnZero(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	cond := ast.Condition{Left: v("a"), Right: lit(0), Op: ast.CondNe}
	if err := l.HandleCondition(cond, "false_target"); err != nil {
		t.Fatalf("HandleCondition: %v", err)
	}
	last := buf.Entries()[len(buf.Entries())-1]
	if last.Instr.Op != isa.Jzero || last.Instr.Operand.Label != "false_target" {
		t.Fatalf("last entry = %+v; want a direct JZERO to false_target", last.Instr)
	}
}

func TestLowerIfAttachesEndLabelAfterBody(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := l.Table.MarkInitialized("a"); err != nil {
		t.Fatalf("MarkInitialized: %v", err)
	}
	c := ast.If{
		Cond: ast.Condition{Left: v("a"), Right: lit(0), Op: ast.CondGt},
		Then: []ast.Command{ast.Write{Src: v("a")}},
	}
	if err := l.lowerCommand(c); err != nil {
		t.Fatalf("lowerCommand: %v", err)
	}
	// lowerIf's end label is only queued, not yet attached to anything;
	// push one more instruction to see where it lands.
	buf.Push(isa.Halt, buffer.NoOperand())
	last := buf.Entries()[len(buf.Entries())-1]
	if len(last.Labels) != 1 {
		t.Fatalf("last entry labels = %v; want exactly one (if_end)", last.Labels)
	}
}

func TestLowerForSynthesizesDistinctBoundPerLoop(t *testing.T) {
	l, _, _ := newLowerer(10)
	for _, name := range []string{"i", "j"} {
		if err := l.Table.Add(ast.ScalarDecl{Name: name}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	f1 := ast.ForUp{Iter: "i", Start: lit(1), End: lit(3), Body: nil}
	f2 := ast.ForUp{Iter: "j", Start: lit(1), End: lit(3), Body: nil}
	if err := l.lowerForUp(f1); err != nil {
		t.Fatalf("lowerForUp 1: %v", err)
	}
	if err := l.lowerForUp(f2); err != nil {
		t.Fatalf("lowerForUp 2: %v", err)
	}
	if _, err := l.Table.Read(ast.Variable{Name_: "@for_bound@0"}); err != nil {
		t.Errorf("first loop's bound cell missing: %v", err)
	}
	if _, err := l.Table.Read(ast.Variable{Name_: "@for_bound@1"}); err != nil {
		t.Errorf("second loop's bound cell missing or collided: %v", err)
	}
}

func TestPreparePointerPlainVariableConsumesNoScratch(t *testing.T) {
	l, _, _ := newLowerer(10)
	if err := l.Table.Add(ast.ScalarDecl{Name: "a"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	typ, err := l.Table.Write(ast.Variable{Name_: "a"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	p := l.PreparePointer(typ, ScratchDestAddr)
	if p != typ.Variable {
		t.Fatalf("PreparePointer(scalar) = %v; want the variable's own pointer unchanged", p)
	}
}

func TestPreparePointerArrayStagesThroughScratch(t *testing.T) {
	l, buf, _ := newLowerer(10)
	if err := l.Table.Add(ast.ArrayDecl{Name: "t", Lo: 0, Hi: 3}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	typ, err := l.Table.Write(ast.ArrayLiteralIndex{Name_: "t", Index: 2})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	p := l.PreparePointer(typ, ScratchDestAddr)
	if p.Kind != symtab.KindIndirectCell || p.Value != ScratchDestAddr {
		t.Fatalf("PreparePointer(array) = %v; want IndirectCell(ScratchDestAddr)", p)
	}
	if countOp(buf.Entries(), isa.Store) == 0 {
		t.Fatalf("expected at least one STORE staging the computed address")
	}
}
