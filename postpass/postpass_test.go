package postpass

import (
	"testing"

	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
)

func TestResolveLiteralPoolDeterministicAndDeduped(t *testing.T) {
	buf := buffer.New()
	buf.Push(isa.Load, buffer.LiteralOperand(5))
	buf.Push(isa.Add, buffer.LiteralOperand(2))
	buf.Push(isa.Load, buffer.LiteralOperand(5))
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// [0] GOTO literals, [1] LOAD @lit5, [2] ADD @lit2, [3] LOAD @lit5,
	// [4] HALT, then the pool: SET 2/STORE, SET 5/STORE, GOTO main.
	if len(out) != 10 {
		t.Fatalf("len(out) = %d; want 10\n%v", len(out), out)
	}
	if out[0].Op != isa.Jump {
		t.Fatalf("out[0].Op = %v; want Jump", out[0].Op)
	}
	if out[0].Operand != 5 {
		t.Errorf("GOTO literals delta = %d; want 5 (to index 5)", out[0].Operand)
	}

	// Literals are allocated in ascending value order starting at
	// nextCell=10: @lit2 -> 10, @lit5 -> 11.
	if out[1].Op != isa.Load || out[1].Operand != 11 {
		t.Errorf("out[1] = %v; want LOAD 11 (@lit5)", out[1])
	}
	if out[2].Op != isa.Add || out[2].Operand != 10 {
		t.Errorf("out[2] = %v; want ADD 10 (@lit2)", out[2])
	}
	if out[3].Op != isa.Load || out[3].Operand != 11 {
		t.Errorf("out[3] = %v; want LOAD 11 (@lit5)", out[3])
	}
	if out[4].Op != isa.Halt {
		t.Errorf("out[4].Op = %v; want Halt", out[4].Op)
	}

	pool := out[5:]
	want := []isa.Instruction{
		{Op: isa.Set, Operand: 2},
		{Op: isa.Store, Operand: 10},
		{Op: isa.Set, Operand: 5},
		{Op: isa.Store, Operand: 11},
		{Op: isa.Jump, Operand: 1 - 9}, // GOTO main: index 9 -> index 1
	}
	for i, w := range want {
		if pool[i] != w {
			t.Errorf("pool[%d] = %v; want %v", i, pool[i], w)
		}
	}
}

func TestResolveNoLiterals(t *testing.T) {
	buf := buffer.New()
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// [0] GOTO literals (-> index 2), [1] HALT, [2] GOTO main (-> index 1).
	if len(out) != 3 {
		t.Fatalf("len(out) = %d; want 3\n%v", len(out), out)
	}
	if out[0] != (isa.Instruction{Op: isa.Jump, Operand: 2}) {
		t.Errorf("out[0] = %v; want GOTO +2", out[0])
	}
	if out[1].Op != isa.Halt {
		t.Errorf("out[1].Op = %v; want Halt", out[1].Op)
	}
	if out[2] != (isa.Instruction{Op: isa.Jump, Operand: -1}) {
		t.Errorf("out[2] = %v; want GOTO -1", out[2])
	}
}

func TestResolveSymbolicLabels(t *testing.T) {
	buf := buffer.New()
	end := buf.ReserveLabel("main", "end")
	buf.Push(isa.Jzero, buffer.LabelOperand(end))
	buf.Push(isa.Load, buffer.LiteralOperand(1))
	buf.SetLabel(end)
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// [0] GOTO literals, [1] JZERO end, [2] LOAD @lit1, [3] HALT(=end), ...
	if out[1].Op != isa.Jzero || out[1].Operand != 2 {
		t.Errorf("out[1] = %v; want JZERO +2 (to index 3)", out[1])
	}
}

func TestResolveUnresolvedLabelIsFatal(t *testing.T) {
	buf := buffer.New()
	buf.Push(isa.Jump, buffer.LabelOperand("nowhere"))
	buf.Push(isa.Halt, buffer.NoOperand())

	if _, err := Resolve(buf, 10); err == nil {
		t.Fatal("Resolve: want error for undefined label, got nil")
	}
}

func TestResolvePCPlusPseudoOp(t *testing.T) {
	buf := buffer.New()
	buf.Push(isa.Load, buffer.PCPlusOperand(3))
	buf.Push(isa.Store, buffer.CellOperand(20))
	buf.Push(isa.Jump, buffer.LabelOperand("target"))
	buf.SetLabel("target")
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 10)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// The LOAD PC+3 is at final index 1 (after the prepended GOTO
	// literals), so it resolves to a literal equal to 1+3=4, allocated
	// at cell 10 (the only literal).
	if out[1] != (isa.Instruction{Op: isa.Load, Operand: 10}) {
		t.Errorf("out[1] = %v; want LOAD 10", out[1])
	}
	pool := out[5:]
	if pool[0] != (isa.Instruction{Op: isa.Set, Operand: 4}) {
		t.Errorf("pool[0] = %v; want SET 4", pool[0])
	}
}

func TestResolveDedupeLoadsAcrossLabelIsSuppressed(t *testing.T) {
	buf := buffer.New()
	skip := buf.ReserveLabel("main", "skip")
	buf.Push(isa.Load, buffer.CellOperand(10))
	buf.SetLabel(skip)
	buf.Push(isa.Load, buffer.CellOperand(10))
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 20)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	// The second LOAD 10 immediately follows another LOAD 10 but carries
	// a label a jump could land on, so it must survive the dedupe.
	loads := 0
	for _, in := range out {
		if in.Op == isa.Load && in.Operand == 10 {
			loads++
		}
	}
	if loads != 2 {
		t.Errorf("loads of cell 10 = %d; want 2 (the labeled load survives)", loads)
	}
}

func TestResolveDedupeLoadsStraightLine(t *testing.T) {
	buf := buffer.New()
	buf.Push(isa.Load, buffer.CellOperand(10))
	buf.Push(isa.Load, buffer.CellOperand(10))
	buf.Push(isa.Halt, buffer.NoOperand())

	out, err := Resolve(buf, 20)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	loads := 0
	for _, in := range out {
		if in.Op == isa.Load && in.Operand == 10 {
			loads++
		}
	}
	if loads != 1 {
		t.Errorf("loads of cell 10 = %d; want 1 (second is a redundant straight-line repeat)", loads)
	}
}
