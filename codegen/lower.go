package codegen

import (
	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
	"github.com/junsevith/kompilator/symtab"
)

// CallHandler dispatches a procedure call to either the inline or the
// materialized call-site lowering path. Implemented by procedures.Manager;
// defined here (rather than imported from there) so codegen has no
// dependency on the procedure manager — the manager depends on codegen
// to build procedure bodies, and is wired into a Lowerer after
// construction. This mirrors the teacher's preference for small,
// separately testable pieces wired together by the driver.
type CallHandler interface {
	Call(l *Lowerer, call ast.Call) error
}

// Lowerer lowers one scope's commands (a procedure body or the main
// body) into buf, resolving names against table.
type Lowerer struct {
	Table *symtab.Table
	Buf   *buffer.Buffer
	Calls CallHandler

	// Scope names this lowerer's labels, e.g. "main" or the procedure
	// name, used as the scope component of reserved label names.
	Scope string

	forCounter int
}

func NewLowerer(scope string, table *symtab.Table, buf *buffer.Buffer, calls CallHandler) *Lowerer {
	return &Lowerer{Table: table, Buf: buf, Calls: calls, Scope: scope}
}

// Load emits the sequence that leaves t's value in the accumulator.
func (l *Lowerer) Load(t symtab.Type) {
	if !t.IsArray {
		l.loadPointer(t.Variable)
		return
	}
	l.loadArray(t.Base, t.Index)
}

// loadPointer emits a direct load/literal-load of a scalar Pointer's
// value.
func (l *Lowerer) loadPointer(p symtab.Pointer) {
	switch p.Kind {
	case symtab.KindLiteral:
		l.Buf.Push(isa.Load, buffer.LiteralOperand(p.Value))
	case symtab.KindCell:
		l.Buf.Push(isa.Load, buffer.CellOperand(p.Value))
	case symtab.KindIndirectCell:
		l.Buf.Push(isa.LoadI, buffer.CellOperand(p.Value))
	}
}

// loadArray emits `LOAD base; ADD index; LOADI scratch` — compute the
// effective address in the accumulator, stage it, then dereference.
// When both base and index are direct the computation only needs cell
// 0 (the zero cell is never actually touched here; it's reserved for
// shift/no-op arithmetic elsewhere — see ScratchOperand for why a
// staging cell is still needed to dereference through).
func (l *Lowerer) loadArray(base, index symtab.Pointer) {
	l.emitAddressCompute(base, index)
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.LoadI, buffer.CellOperand(ScratchOperand))
}

// emitAddressCompute leaves base+index in the accumulator. base is
// always an array's offset pointer, never a scalar variable's: loaded
// via LoadAddressValue rather than loadPointer, since an array
// parameter's IndirectCell already holds the usable offset number
// itself (spec.md §3.2 — "the cell c holds the actual base offset at
// runtime"), not the address of one more cell to dereference the way a
// by-reference scalar's IndirectCell does. index, by contrast, is a
// genuine scalar Pointer (a runtime index variable can itself be a
// by-reference parameter) and keeps loadPointer/addOrSub's ordinary
// two-level semantics.
func (l *Lowerer) emitAddressCompute(base, index symtab.Pointer) {
	l.LoadAddressValue(base)
	l.addOrSub(true, index)
}

// addOrSub emits ADD/ADDI (add=true) or SUB/SUBI (add=false) against p.
func (l *Lowerer) addOrSub(add bool, p symtab.Pointer) {
	var direct, indirect isa.Op
	if add {
		direct, indirect = isa.Add, isa.AddI
	} else {
		direct, indirect = isa.Sub, isa.SubI
	}
	switch p.Kind {
	case symtab.KindLiteral:
		l.Buf.Push(direct, buffer.LiteralOperand(p.Value))
	case symtab.KindCell:
		l.Buf.Push(direct, buffer.CellOperand(p.Value))
	case symtab.KindIndirectCell:
		l.Buf.Push(indirect, buffer.CellOperand(p.Value))
	}
}

// PreparePointer materializes an address into scratch, returning an
// IndirectCell pointer through it. For a plain Variable it returns the
// pointer unchanged — no scratch cell is consumed.
func (l *Lowerer) PreparePointer(t symtab.Type, scratch int) symtab.Pointer {
	if !t.IsArray {
		return t.Variable
	}
	l.emitAddressCompute(t.Base, t.Index)
	l.Buf.Push(isa.Store, buffer.CellOperand(scratch))
	return symtab.IndirectCell(scratch)
}

// LoadAddressValue loads the integer that identifies p's storage
// location — not the value stored there. A direct Cell's own index is
// a compile-time constant and goes through the literal pool (the same
// mechanism the return-address pseudo-op uses, see postpass); an
// IndirectCell already holds a forwarded address and is loaded
// directly; a Literal passes through unchanged. Used when forwarding
// addresses for by-reference call arguments (see procedures.Manager).
func (l *Lowerer) LoadAddressValue(p symtab.Pointer) {
	switch p.Kind {
	case symtab.KindCell:
		l.Buf.Push(isa.Load, buffer.LiteralOperand(p.Value))
	case symtab.KindIndirectCell:
		l.Buf.Push(isa.Load, buffer.CellOperand(p.Value))
	case symtab.KindLiteral:
		l.Buf.Push(isa.Load, buffer.LiteralOperand(p.Value))
	}
}

// LowerCommands lowers a command list in order.
func (l *Lowerer) LowerCommands(cmds []ast.Command) error {
	for _, c := range cmds {
		if err := l.lowerCommand(c); err != nil {
			return err
		}
	}
	return nil
}

func (l *Lowerer) lowerCommand(c ast.Command) error {
	switch cmd := c.(type) {
	case ast.Assign:
		return l.lowerAssign(cmd)
	case ast.If:
		return l.lowerIf(cmd)
	case ast.IfElse:
		return l.lowerIfElse(cmd)
	case ast.While:
		return l.lowerWhile(cmd)
	case ast.RepeatUntil:
		return l.lowerRepeat(cmd)
	case ast.ForUp:
		return l.lowerForUp(cmd)
	case ast.ForDown:
		return l.lowerForDown(cmd)
	case ast.Call:
		return l.Calls.Call(l, cmd)
	case ast.Read:
		return l.lowerRead(cmd)
	case ast.Write:
		return l.lowerWrite(cmd)
	default:
		panic("codegen: unsupported command type")
	}
}

func (l *Lowerer) lowerRead(r ast.Read) error {
	dest, err := l.Table.Write(r.Dest)
	if err != nil {
		return err
	}
	addr := l.PreparePointer(dest, ScratchDestAddr)
	if addr.Kind == symtab.KindCell {
		l.Buf.Push(isa.Get, operandFor(addr))
		return nil
	}
	l.Buf.Push(isa.Get, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Load, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.StoreI, buffer.CellOperand(addr.Value))
	return nil
}

func (l *Lowerer) lowerWrite(w ast.Write) error {
	src, err := l.Table.ReadValue(w.Src)
	if err != nil {
		return err
	}
	if !src.IsArray && src.Variable.Kind == symtab.KindCell {
		l.Buf.Push(isa.Put, operandFor(src.Variable))
		return nil
	}
	l.Load(src)
	l.Buf.Push(isa.Store, buffer.CellOperand(ScratchOperand))
	l.Buf.Push(isa.Put, buffer.CellOperand(ScratchOperand))
	return nil
}

// operandFor turns a direct-cell Pointer into a buffer Operand for
// GET/PUT, which only address a cell directly; an indirect or literal
// operand is staged through ScratchOperand by the caller instead.
func operandFor(p symtab.Pointer) buffer.Operand {
	return buffer.CellOperand(p.Value)
}

func (l *Lowerer) lowerAssign(a ast.Assign) error {
	destType, err := l.Table.Write(a.Dest)
	if err != nil {
		return err
	}
	destAddr := l.PreparePointer(destType, ScratchDestAddr)

	l.Buf.PushContext(a.Op.String())
	defer l.Buf.PopContext()

	if err := l.lowerOperation(a.Op, a.Left, a.Right); err != nil {
		return err
	}

	op := isa.Store
	if destAddr.Kind == symtab.KindIndirectCell {
		op = isa.StoreI
	}
	l.Buf.Push(op, operandForStore(destAddr))
	return nil
}

// operandForStore extracts the cell operand of a store destination;
// the caller has already decided STORE vs STOREI by inspecting
// addr, so this just extracts the cell operand.
func operandForStore(addr symtab.Pointer) buffer.Operand {
	return buffer.CellOperand(addr.Value)
}
