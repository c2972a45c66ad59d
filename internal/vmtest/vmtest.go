// Package vmtest implements a minimal fetch-decode-execute interpreter
// over the target ISA, used only by _test.go files across this module
// to check that an emitted instruction sequence actually reproduces the
// source program's semantics, without requiring a real external VM.
//
// Grounded on the shape of the teacher's pkg/cpu Step/RunUntilDone loop
// — fetch the instruction at PC, advance PC, switch over the opcode,
// every case but a jump falls through to the already-advanced PC — not
// on its register-file ISA, which this package does not use (our
// machine has one accumulator and flat cells, not registers).
package vmtest

import (
	"fmt"

	"github.com/junsevith/kompilator/isa"
)

// MaxSteps bounds runaway programs in tests; a real compiler bug
// (e.g. a miscomputed relative jump) should fail loudly rather than
// hang the test suite.
const MaxSteps = 1_000_000

// StepLimitError is returned when a program runs past MaxSteps without
// halting.
type StepLimitError struct{ Limit int }

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("vmtest: exceeded %d steps without HALT", e.Limit)
}

// Run executes program against a fresh, initially empty cell array
// (grown automatically as instructions address further out),
// feeding input to GET in order and collecting PUT's outputs. Cell 0
// starts and stays zero only by the program's own convention — vmtest
// does not special-case it.
func Run(program []isa.Instruction, input []int) ([]int, error) {
	var mem []int
	var output []int
	var acc int
	pc := 0
	inPos := 0

	cell := func(i int) int {
		if i < 0 {
			return 0
		}
		if i >= len(mem) {
			grown := make([]int, i+1)
			copy(grown, mem)
			mem = grown
		}
		return mem[i]
	}
	setCell := func(i, v int) {
		cell(i) // ensure grown
		mem[i] = v
	}

	for steps := 0; ; steps++ {
		if steps >= MaxSteps {
			return output, &StepLimitError{Limit: MaxSteps}
		}
		if pc < 0 || pc >= len(program) {
			return output, fmt.Errorf("vmtest: pc %d out of program bounds", pc)
		}
		in := program[pc]
		next := pc + 1

		switch in.Op {
		case isa.Get:
			if inPos >= len(input) {
				return output, fmt.Errorf("vmtest: GET past end of input (consumed %d)", inPos)
			}
			setCell(in.Operand, input[inPos])
			inPos++
		case isa.Put:
			output = append(output, cell(in.Operand))
		case isa.Load:
			acc = cell(in.Operand)
		case isa.Store:
			setCell(in.Operand, acc)
		case isa.LoadI:
			acc = cell(cell(in.Operand))
		case isa.StoreI:
			setCell(cell(in.Operand), acc)
		case isa.Add:
			acc += cell(in.Operand)
		case isa.Sub:
			acc -= cell(in.Operand)
		case isa.AddI:
			acc += cell(cell(in.Operand))
		case isa.SubI:
			acc -= cell(cell(in.Operand))
		case isa.Set:
			acc = in.Operand
		case isa.Half:
			acc = floorDiv2(acc)
		case isa.Jump:
			next = pc + in.Operand
		case isa.Jpos:
			if acc > 0 {
				next = pc + in.Operand
			}
		case isa.Jzero:
			if acc == 0 {
				next = pc + in.Operand
			}
		case isa.Jneg:
			if acc < 0 {
				next = pc + in.Operand
			}
		case isa.Rtrn:
			next = cell(in.Operand)
		case isa.Halt:
			return output, nil
		default:
			return output, fmt.Errorf("vmtest: unknown opcode %v at pc %d", in.Op, pc)
		}
		pc = next
	}
}

// floorDiv2 divides by two rounding toward negative infinity, matching
// HALF's documented semantics (an arithmetic shift right).
func floorDiv2(v int) int {
	if v >= 0 || v%2 == 0 {
		return v / 2
	}
	return v/2 - 1
}
