// Package buffer implements the append-only instruction buffer described
// in spec.md §3.3/§4.3: a list of (opcode, debug-trail, pending-labels)
// triples, label reservation/attachment, and sub-buffer merging.
//
// Grounded on the teacher's two-pass assembler (pkg/asm/asm.go): pass1
// there walks source lines collecting label addresses into a map before
// pass2 resolves operands against it. This package plays the role of
// that first pass's bookkeeping as entries are produced, rather than
// after the fact — labels are recorded on the Entry they're attached to
// as they're pushed, and the postpass package (§4.7) does the resolving
// walk equivalent to pass2.
package buffer

import (
	"fmt"
	"strings"

	"github.com/junsevith/kompilator/isa"
)

// OperandKind tags what Operand.Int/Operand.Label mean before the
// post-pass has run.
type OperandKind int

const (
	OperandNone OperandKind = iota
	// OperandCell is a resolved cell index, used directly as-is.
	OperandCell
	// OperandLiteral is a pending integer constant, to be allocated a
	// cell by the post-pass's literal pool.
	OperandLiteral
	// OperandImmediate is a raw integer written verbatim into the
	// output (used only by SET, which is how literal-pool cells
	// themselves get initialized).
	OperandImmediate
	// OperandLabel is a symbolic jump target, resolved to a signed
	// relative delta by the post-pass.
	OperandLabel
	// OperandPCPlus is the "load PC+k" pseudo-op (spec.md §9): resolved
	// by the post-pass into OperandLiteral(ownIndex+k).
	OperandPCPlus
)

// Operand is a not-yet-fully-resolved instruction operand.
type Operand struct {
	Kind  OperandKind
	Int   int
	Label string
}

func NoOperand() Operand                { return Operand{Kind: OperandNone} }
func CellOperand(i int) Operand         { return Operand{Kind: OperandCell, Int: i} }
func LiteralOperand(n int) Operand      { return Operand{Kind: OperandLiteral, Int: n} }
func ImmediateOperand(n int) Operand    { return Operand{Kind: OperandImmediate, Int: n} }
func LabelOperand(label string) Operand { return Operand{Kind: OperandLabel, Label: label} }
func PCPlusOperand(k int) Operand       { return Operand{Kind: OperandPCPlus, Int: k} }

// Instr is a not-yet-resolved instruction: an opcode plus a pending
// operand.
type Instr struct {
	Op      isa.Op
	Operand Operand
}

// Entry is one slot of the buffer: the instruction, its debug trail,
// and any symbolic labels attached to its address.
type Entry struct {
	Instr   Instr
	Comment string
	Labels  []string
}

// Buffer is the append-only instruction list.
type Buffer struct {
	entries []Entry

	// pendingLabels holds labels reserved by SetLabel that have not yet
	// landed on a pushed instruction.
	pendingLabels []string

	actionStack []string

	labelCounters map[string]int
}

func New() *Buffer {
	return &Buffer{labelCounters: make(map[string]int)}
}

// Len is spec.md's where_we_finished: the buffer's current absolute
// length, i.e. the address the next pushed instruction will occupy.
func (b *Buffer) Len() int { return len(b.entries) }

// Entries exposes the buffer's contents for the post-pass.
func (b *Buffer) Entries() []Entry { return b.entries }

// PushContext adds a human-readable frame to the action stack; every
// instruction pushed while it is active records it in its comment.
// Pair with PopContext (usually via defer).
func (b *Buffer) PushContext(frame string) { b.actionStack = append(b.actionStack, frame) }

func (b *Buffer) PopContext() {
	if len(b.actionStack) > 0 {
		b.actionStack = b.actionStack[:len(b.actionStack)-1]
	}
}

func (b *Buffer) comment() string {
	return strings.Join(b.actionStack, " / ")
}

// Push appends an instruction, attaching any labels queued by SetLabel
// and stamping the current action stack as its comment.
func (b *Buffer) Push(op isa.Op, operand Operand) int {
	e := Entry{
		Instr:   Instr{Op: op, Operand: operand},
		Comment: b.comment(),
		Labels:  b.pendingLabels,
	}
	b.pendingLabels = nil
	b.entries = append(b.entries, e)
	return len(b.entries) - 1
}

// ReserveLabel mints a unique label of the form "<scope> <purpose> <n>".
func (b *Buffer) ReserveLabel(scope, purpose string) string {
	key := scope + " " + purpose
	n := b.labelCounters[key]
	b.labelCounters[key] = n + 1
	return fmt.Sprintf("%s %s %d", scope, purpose, n)
}

// SetLabel queues label to attach to the next pushed instruction. If no
// instruction follows before the buffer is consumed, the label is
// simply carried forward (never lost) and will land on whatever is
// pushed next, even across a Merge.
func (b *Buffer) SetLabel(label string) {
	b.pendingLabels = append(b.pendingLabels, label)
}

// Merge appends other's entries to b. Per spec.md §3.4 this requires
// that other was built to start exactly where b currently ends; callers
// that build a procedure body into its own sub-buffer must do so
// knowing the global buffer's length at that time.
func (b *Buffer) Merge(other *Buffer, expectedStart int) error {
	if expectedStart != b.Len() {
		return fmt.Errorf("buffer merge boundary mismatch: sub-buffer expected start %d, buffer is at %d", expectedStart, b.Len())
	}
	entries := other.entries
	if len(b.pendingLabels) > 0 {
		if len(entries) == 0 {
			// Nothing to attach to yet; carry forward untouched.
			other.pendingLabels = append(b.pendingLabels, other.pendingLabels...)
			b.pendingLabels = nil
		} else {
			first := entries[0]
			first.Labels = append(append([]string{}, b.pendingLabels...), first.Labels...)
			entries = append([]Entry{first}, entries[1:]...)
			b.pendingLabels = nil
		}
	}
	b.entries = append(b.entries, entries...)
	// Any still-unattached labels from the sub-buffer (it ended with a
	// SetLabel but nothing pushed after) carry forward onto whatever b
	// pushes next.
	b.pendingLabels = append(b.pendingLabels, other.pendingLabels...)
	return nil
}
