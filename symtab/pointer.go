// Package symtab implements the per-scope symbol table: the mapping
// from source names to storage descriptors on the target machine, and
// the monotone cell allocator that backs it.
//
// There is one Table per procedure scope and one for the main body.
// Unlike a stack-frame symbol table, cells here are never reclaimed:
// the accumulator machine has no call stack, so "top of memory" only
// ever grows, and a materialized procedure's locals permanently own
// the cells allocated to them (see Table.Top / Table.Rebase).
package symtab

import "fmt"

// PointerKind tags how an operand's address is found.
type PointerKind int

const (
	// KindCell addresses a cell directly.
	KindCell PointerKind = iota
	// KindIndirectCell addresses the cell whose contents are the
	// effective address of the operand (array bases, by-reference
	// parameters).
	KindIndirectCell
	// KindLiteral is an integer constant, resolved to a cell by the
	// post-pass literal pool.
	KindLiteral
)

// Pointer is a tagged address: a direct cell, an indirect cell, or a
// not-yet-materialized literal constant.
type Pointer struct {
	Kind  PointerKind
	Value int
}

func Cell(i int) Pointer         { return Pointer{Kind: KindCell, Value: i} }
func IndirectCell(i int) Pointer { return Pointer{Kind: KindIndirectCell, Value: i} }
func Literal(n int) Pointer      { return Pointer{Kind: KindLiteral, Value: n} }

func (p Pointer) String() string {
	switch p.Kind {
	case KindCell:
		return fmt.Sprintf("cell(%d)", p.Value)
	case KindIndirectCell:
		return fmt.Sprintf("*cell(%d)", p.Value)
	case KindLiteral:
		return fmt.Sprintf("lit(%d)", p.Value)
	default:
		return fmt.Sprintf("ptr(?%d)", p.Value)
	}
}

// IsLiteralZero reports whether p is the literal constant 0, the one
// case codegen is allowed to skip emitting an operation for.
func (p Pointer) IsLiteralZero() bool {
	return p.Kind == KindLiteral && p.Value == 0
}

// Type is the resolved shape of an Identifier lookup.
type Type struct {
	IsArray bool
	// Variable is valid when !IsArray: the address of a scalar operand.
	Variable Pointer
	// Base/Index are valid when IsArray: a deferred base+index
	// computation, collapsed by codegen.Load / codegen.PreparePointer.
	Base, Index Pointer
}
