// Package postpass implements spec.md §4.7: the two scans that turn a
// buffer's provisional entries — opcodes with pending literal and
// symbolic-label operands — into the final, fully-resolved instruction
// sequence a serializer can print one line at a time.
//
// Grounded on the teacher's pkg/asm two-pass assembler: pass1 there
// walks source lines collecting label addresses into a map before
// pass2 resolves operands against it, with duplicate-label and
// unknown-label both treated as fatal. This package keeps that same
// two-map, two-walk shape, just resolving instruction indices directly
// rather than byte addresses, since this ISA has no variable-width
// encoding.
package postpass

import (
	"fmt"
	"sort"

	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/isa"
)

const (
	literalsLabel = "literals"
	// MainLabel is the jump target the literal pool's closing GOTO
	// targets. A caller that materializes procedure bodies into the same
	// buffer ahead of the main body (procedures.Manager does, merging
	// each one in before compiler.Compile lowers the main commands) must
	// call buf.SetLabel(MainLabel) itself immediately before lowering
	// those commands, since the main body is then no longer buf's first
	// entry. Resolve only falls back to stamping it on entries[0] when
	// nothing has claimed it already — the simple case of a buffer with
	// no materialized procedures ahead of main.
	MainLabel = "main"
)

// Resolve consumes buf's provisional entries (the lowered main body,
// already ending in HALT) and returns the final instruction sequence:
// a leading "GOTO literals", the main body with every Literal(n) and
// "load PC+k" operand rewritten to its resolved pool cell, a literal
// pool block terminated by "GOTO main", and every symbolic jump turned
// into a signed relative delta. nextCell is the first cell not yet
// claimed by any scope — where the literal pool starts allocating.
func Resolve(buf *buffer.Buffer, nextCell int) ([]isa.Instruction, error) {
	entries := buf.Entries()
	if len(entries) == 0 {
		return nil, fmt.Errorf("postpass: empty program")
	}

	seq := make([]buffer.Entry, 0, len(entries)+1)
	seq = append(seq, buffer.Entry{
		Instr: buffer.Instr{Op: isa.Jump, Operand: buffer.LabelOperand(literalsLabel)},
	})
	seq = append(seq, entries...)
	if !hasLabel(seq, MainLabel) {
		seq[1].Labels = append([]string{MainLabel}, seq[1].Labels...)
	}

	seq = dedupeLoads(seq)

	counts := collectLiterals(seq)
	seq = append(seq, literalPool(counts, nextCell)...)
	rewriteLiterals(seq, counts, nextCell)

	return resolveLabels(seq)
}

// collectLiterals walks every instruction, expanding the "load PC+k"
// pseudo-op into a genuine Literal(ownIndex+k) in place (own index is
// final at this point: the prologue is already prepended, the load
// dedupe has already run, and nothing before the literal pool shifts
// again), and counts every distinct
// literal value that ends up needing a pool cell.
func collectLiterals(seq []buffer.Entry) map[int]int {
	counts := make(map[int]int)
	for i := range seq {
		op := seq[i].Instr.Operand
		switch op.Kind {
		case buffer.OperandLiteral:
			counts[op.Int]++
		case buffer.OperandPCPlus:
			n := i + op.Int
			seq[i].Instr.Operand = buffer.LiteralOperand(n)
			counts[n]++
		}
	}
	return counts
}

// literalPool builds the prologue block: SET/STORE per distinct literal
// in deterministic (sorted ascending) order, terminated by GOTO main.
// The first emitted instruction carries the "literals" label; if there
// are no literals at all, GOTO main itself carries it.
func literalPool(counts map[int]int, nextCell int) []buffer.Entry {
	ns := sortedKeys(counts)
	block := make([]buffer.Entry, 0, len(ns)*2+1)
	cell := nextCell
	for i, n := range ns {
		set := buffer.Entry{Instr: buffer.Instr{Op: isa.Set, Operand: buffer.ImmediateOperand(n)}}
		if i == 0 {
			set.Labels = append(set.Labels, literalsLabel)
		}
		block = append(block, set)
		block = append(block, buffer.Entry{
			Instr: buffer.Instr{Op: isa.Store, Operand: buffer.CellOperand(cell)},
		})
		cell++
	}
	gotoMain := buffer.Entry{Instr: buffer.Instr{Op: isa.Jump, Operand: buffer.LabelOperand(MainLabel)}}
	if len(ns) == 0 {
		gotoMain.Labels = append(gotoMain.Labels, literalsLabel)
	}
	block = append(block, gotoMain)
	return block
}

// rewriteLiterals replaces every OperandLiteral in seq with the
// resolved cell its value was allocated in literalPool.
func rewriteLiterals(seq []buffer.Entry, counts map[int]int, nextCell int) {
	ns := sortedKeys(counts)
	cellOf := make(map[int]int, len(ns))
	cell := nextCell
	for _, n := range ns {
		cellOf[n] = cell
		cell++
	}
	for i := range seq {
		if seq[i].Instr.Operand.Kind == buffer.OperandLiteral {
			seq[i].Instr.Operand = buffer.CellOperand(cellOf[seq[i].Instr.Operand.Int])
		}
	}
}

// hasLabel reports whether some entry in seq already carries label —
// used to detect a caller that claimed MainLabel itself before merging
// materialized procedure bodies ahead of the main body.
func hasLabel(seq []buffer.Entry, label string) bool {
	for _, e := range seq {
		for _, l := range e.Labels {
			if l == label {
				return true
			}
		}
	}
	return false
}

func sortedKeys(counts map[int]int) []int {
	ns := make([]int, 0, len(counts))
	for n := range counts {
		ns = append(ns, n)
	}
	sort.Ints(ns)
	return ns
}

// dedupeLoads collapses a LOAD immediately following another LOAD of
// the same cell or the same literal into a no-op removal. It runs
// before collectLiterals, so no "load PC+k" return address is computed
// from a position that a removal later shifts. Guarded by
// len(e.Labels) == 0: any position a jump can land on carries a label
// at this point (labelPos is built from exactly this same Labels data
// later), so a labeled LOAD is never assumed redundant even if it
// matches the one before it textually.
func dedupeLoads(seq []buffer.Entry) []buffer.Entry {
	out := make([]buffer.Entry, 0, len(seq))
	for _, e := range seq {
		kind := e.Instr.Operand.Kind
		if n := len(out); n > 0 && len(e.Labels) == 0 &&
			e.Instr.Op == isa.Load && out[n-1].Instr.Op == isa.Load &&
			(kind == buffer.OperandCell || kind == buffer.OperandLiteral) &&
			e.Instr.Operand == out[n-1].Instr.Operand {
			continue
		}
		out = append(out, e)
	}
	return out
}

// resolveLabels runs spec.md §4.7's third scan: record every label's
// final position, then rewrite every symbolic jump operand to the
// signed delta from its own position to that target.
func resolveLabels(seq []buffer.Entry) ([]isa.Instruction, error) {
	labelPos := make(map[string]int, len(seq))
	for i, e := range seq {
		for _, l := range e.Labels {
			if _, dup := labelPos[l]; dup {
				return nil, &DuplicateLabelError{Label: l}
			}
			labelPos[l] = i
		}
	}

	out := make([]isa.Instruction, len(seq))
	for i, e := range seq {
		switch e.Instr.Operand.Kind {
		case buffer.OperandLabel:
			pos, ok := labelPos[e.Instr.Operand.Label]
			if !ok {
				return nil, &UnresolvedLabelError{Label: e.Instr.Operand.Label}
			}
			out[i] = isa.Instruction{Op: e.Instr.Op, Operand: pos - i}
		case buffer.OperandCell, buffer.OperandImmediate:
			out[i] = isa.Instruction{Op: e.Instr.Op, Operand: e.Instr.Operand.Int}
		case buffer.OperandNone:
			out[i] = isa.Instruction{Op: e.Instr.Op}
		default:
			return nil, fmt.Errorf("postpass: unresolved operand kind %d on %s", e.Instr.Operand.Kind, e.Instr.Op)
		}
	}
	return out, nil
}
