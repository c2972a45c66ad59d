// Package arith builds the two synthetic procedure bodies the lowerer
// falls back to when strength reduction in preprocess couldn't turn a
// multiply or divide into a shift: @multiply (Russian-peasant doubling)
// and @divide (restoring division via a doubling divisor). Both read
// their operands from codegen.ScratchLHS/ScratchRHS and leave their
// result in codegen.ScratchResult; @divide additionally leaves its
// remainder in codegen.ScratchOperand.
//
// Grounded on original_source/src/procedures/division.rs's cell layout
// (6=dividend, 7=divisor, 4=quotient, 2=remainder, 3=divisor working
// copy, 5=doubling shift counter) — kept verbatim. Its jump targets are
// NOT kept: that file hand-counts absolute relative offsets valid only
// for its own one-shot emission order. This package emits the same
// algorithm using the buffer's symbolic-label machinery instead, the
// same way every other control-flow construct in codegen does.
package arith

import (
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/codegen"
	"github.com/junsevith/kompilator/isa"
)

// Transient workspace cells, live only for the duration of one
// @multiply/@divide call — safe to reuse freely because the machine
// never runs two calls concurrently.
const (
	signSum     = 5 // also @divide's doubling shift counter; never both live at once
	tmpA        = 3 // @multiply's halved-b staging; @divide's divisor working copy
	tmpB        = 9
	divisorSign = 8 // @divide only: whether the original divisor was negative
)

// Build constructs the full body of the named synthetic procedure
// (including its entry label and closing RTRN) in a fresh buffer, ready
// to be merged into the global buffer by the procedure manager. Used
// when the procedure is referenced two or more times and is therefore
// materialized rather than inlined (spec.md §4.5's policy applies to
// the synthetic arithmetic procedures exactly as it does to
// user-defined ones).
func Build(name, startLabel string, returnCell int) *buffer.Buffer {
	buf := buffer.New()
	buf.SetLabel(startLabel)
	buf.PushContext(name)
	defer buf.PopContext()
	BuildInline(name, buf)
	buf.Push(isa.Rtrn, buffer.CellOperand(returnCell))
	return buf
}

// BuildInline emits just the computational body (no entry label, no
// RTRN) directly into buf, for the single-call-site case where the
// procedure is spliced in place rather than materialized.
func BuildInline(name string, buf *buffer.Buffer) {
	switch name {
	case "@multiply":
		buildMultiply(buf)
	case "@divide":
		buildDivide(buf)
	default:
		panic("arith: unknown synthetic procedure " + name)
	}
}

func negate(buf *buffer.Buffer, cell int) {
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Sub, buffer.CellOperand(cell))
	buf.Push(isa.Store, buffer.CellOperand(cell))
}

// takeSign replaces cell's contents with its absolute value and bumps
// sumCell when it was negative, so that after taking the sign of every
// operand, sumCell's parity tells the caller whether to negate the
// final result.
func takeSign(buf *buffer.Buffer, scope string, cell, sumCell int) {
	nonNeg := buf.ReserveLabel(scope, "sign_nonneg")
	isNeg := buf.ReserveLabel(scope, "sign_neg")
	buf.Push(isa.Load, buffer.CellOperand(cell))
	buf.Push(isa.Jneg, buffer.LabelOperand(isNeg))
	buf.Push(isa.Jump, buffer.LabelOperand(nonNeg))
	buf.SetLabel(isNeg)
	negate(buf, cell)
	buf.Push(isa.Load, buffer.CellOperand(sumCell))
	buf.Push(isa.Add, buffer.LiteralOperand(1))
	buf.Push(isa.Store, buffer.CellOperand(sumCell))
	buf.SetLabel(nonNeg)
}

// negateIfOdd negates target when sumCell holds an odd value.
func negateIfOdd(buf *buffer.Buffer, scope string, target, sumCell int) {
	skip := buf.ReserveLabel(scope, "sign_fixup_skip")
	doNegate := buf.ReserveLabel(scope, "sign_fixup_negate")
	buf.Push(isa.Load, buffer.CellOperand(sumCell))
	buf.Push(isa.Sub, buffer.LiteralOperand(1))
	buf.Push(isa.Jzero, buffer.LabelOperand(doNegate))
	buf.Push(isa.Jump, buffer.LabelOperand(skip))
	buf.SetLabel(doNegate)
	negate(buf, target)
	buf.SetLabel(skip)
}

// parityInto leaves src's value mod 2 in dst, via the same HALF-double-
// subtract trick codegen's lowerMod2 uses, using scratch as workspace.
func parityInto(buf *buffer.Buffer, src, dst, scratch, scratch2 int) {
	buf.Push(isa.Load, buffer.CellOperand(src))
	buf.Push(isa.Store, buffer.CellOperand(scratch))
	buf.Push(isa.Half, buffer.NoOperand())
	buf.Push(isa.Store, buffer.CellOperand(scratch2))
	buf.Push(isa.Add, buffer.CellOperand(scratch2))
	buf.Push(isa.Store, buffer.CellOperand(scratch2))
	buf.Push(isa.Load, buffer.CellOperand(scratch))
	buf.Push(isa.Sub, buffer.CellOperand(scratch2))
	buf.Push(isa.Store, buffer.CellOperand(dst))
}

func buildMultiply(buf *buffer.Buffer) {
	scope := "multiply"
	a, b, result := codegen.ScratchLHS, codegen.ScratchRHS, codegen.ScratchResult

	zeroResult := buf.ReserveLabel(scope, "zero_result")
	afterZeroCheck := buf.ReserveLabel(scope, "after_zero_check")
	done := buf.ReserveLabel(scope, "done")

	buf.Push(isa.Load, buffer.CellOperand(a))
	buf.Push(isa.Jzero, buffer.LabelOperand(zeroResult))
	buf.Push(isa.Load, buffer.CellOperand(b))
	buf.Push(isa.Jzero, buffer.LabelOperand(zeroResult))
	buf.Push(isa.Jump, buffer.LabelOperand(afterZeroCheck))

	buf.SetLabel(zeroResult)
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(result))
	buf.Push(isa.Jump, buffer.LabelOperand(done))

	buf.SetLabel(afterZeroCheck)
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(signSum))
	takeSign(buf, scope, a, signSum)
	takeSign(buf, scope, b, signSum)
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(result))

	start := buf.ReserveLabel(scope, "loop_start")
	loopEnd := buf.ReserveLabel(scope, "loop_end")
	evenBit := buf.ReserveLabel(scope, "even_bit")

	buf.SetLabel(start)
	buf.Push(isa.Load, buffer.CellOperand(b))
	buf.Push(isa.Jzero, buffer.LabelOperand(loopEnd))

	parityInto(buf, b, codegen.ScratchOperand, tmpA, tmpB)
	// parityInto used tmpA as pure scratch; recompute floor(b/2) fresh
	// for the next iteration's b.
	buf.Push(isa.Load, buffer.CellOperand(b))
	buf.Push(isa.Half, buffer.NoOperand())
	buf.Push(isa.Store, buffer.CellOperand(tmpA))

	buf.Push(isa.Load, buffer.CellOperand(codegen.ScratchOperand))
	buf.Push(isa.Jzero, buffer.LabelOperand(evenBit))
	buf.Push(isa.Load, buffer.CellOperand(result))
	buf.Push(isa.Add, buffer.CellOperand(a))
	buf.Push(isa.Store, buffer.CellOperand(result))
	buf.SetLabel(evenBit)

	buf.Push(isa.Load, buffer.CellOperand(a))
	buf.Push(isa.Add, buffer.CellOperand(a))
	buf.Push(isa.Store, buffer.CellOperand(a))
	buf.Push(isa.Load, buffer.CellOperand(tmpA))
	buf.Push(isa.Store, buffer.CellOperand(b))
	buf.Push(isa.Jump, buffer.LabelOperand(start))

	buf.SetLabel(loopEnd)
	negateIfOdd(buf, scope, result, signSum)
	buf.SetLabel(done)
}

// buildDivide implements restoring division via a doubling divisor:
// scale the divisor copy (tmpA, spec.md's cell 3) up by repeated
// doubling alongside a place-value counter (signSum's cell, reused here
// as the "doubling shift counter" of spec.md §7) until doubling again
// would exceed the remainder, then walk back down, subtracting and
// accumulating the quotient whenever the scaled divisor still fits.
func buildDivide(buf *buffer.Buffer) {
	scope := "divide"
	dividend, divisor := codegen.ScratchLHS, codegen.ScratchRHS
	quotient, remainder := codegen.ScratchResult, codegen.ScratchOperand
	divisorCopy, place := tmpA, signSum

	zeroDivisor := buf.ReserveLabel(scope, "zero_divisor")
	afterZeroCheck := buf.ReserveLabel(scope, "after_zero_check")
	done := buf.ReserveLabel(scope, "done")

	buf.Push(isa.Load, buffer.CellOperand(divisor))
	buf.Push(isa.Jzero, buffer.LabelOperand(zeroDivisor))
	buf.Push(isa.Jump, buffer.LabelOperand(afterZeroCheck))

	buf.SetLabel(zeroDivisor)
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(quotient))
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(remainder))
	buf.Push(isa.Jump, buffer.LabelOperand(done))

	buf.SetLabel(afterZeroCheck)
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(tmpB))

	// Capture the divisor's original sign before takeSign overwrites it
	// with its absolute value: spec.md §4.6 has the remainder follow the
	// divisor's sign, not the dividend's.
	captureDivisorSign(buf, scope, divisor)

	takeSign(buf, scope, dividend, tmpB)
	takeSign(buf, scope, divisor, tmpB)

	// remainder := |dividend|; divisorCopy := |divisor|; place := 1
	buf.Push(isa.Load, buffer.CellOperand(dividend))
	buf.Push(isa.Store, buffer.CellOperand(remainder))
	buf.Push(isa.Load, buffer.CellOperand(divisor))
	buf.Push(isa.Store, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Load, buffer.LiteralOperand(1))
	buf.Push(isa.Store, buffer.CellOperand(place))
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(quotient))

	// Scale-up phase: while divisorCopy+divisorCopy <= remainder,
	// double both divisorCopy and place.
	scaleStart := buf.ReserveLabel(scope, "scale_start")
	scaleEnd := buf.ReserveLabel(scope, "scale_end")
	buf.SetLabel(scaleStart)
	buf.Push(isa.Load, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Add, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Sub, buffer.CellOperand(remainder))
	buf.Push(isa.Jpos, buffer.LabelOperand(scaleEnd))
	buf.Push(isa.Load, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Add, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Store, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Load, buffer.CellOperand(place))
	buf.Push(isa.Add, buffer.CellOperand(place))
	buf.Push(isa.Store, buffer.CellOperand(place))
	buf.Push(isa.Jump, buffer.LabelOperand(scaleStart))
	buf.SetLabel(scaleEnd)

	// Subtract-and-shrink phase: while place > 0, try to subtract
	// divisorCopy from remainder, then halve both.
	shrinkStart := buf.ReserveLabel(scope, "shrink_start")
	shrinkEnd := buf.ReserveLabel(scope, "shrink_end")
	noSubtract := buf.ReserveLabel(scope, "no_subtract")
	buf.SetLabel(shrinkStart)
	buf.Push(isa.Load, buffer.CellOperand(place))
	buf.Push(isa.Jzero, buffer.LabelOperand(shrinkEnd))

	buf.Push(isa.Load, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Sub, buffer.CellOperand(remainder))
	buf.Push(isa.Jpos, buffer.LabelOperand(noSubtract))
	buf.Push(isa.Load, buffer.CellOperand(remainder))
	buf.Push(isa.Sub, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Store, buffer.CellOperand(remainder))
	buf.Push(isa.Load, buffer.CellOperand(quotient))
	buf.Push(isa.Add, buffer.CellOperand(place))
	buf.Push(isa.Store, buffer.CellOperand(quotient))
	buf.SetLabel(noSubtract)

	buf.Push(isa.Load, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Half, buffer.NoOperand())
	buf.Push(isa.Store, buffer.CellOperand(divisorCopy))
	buf.Push(isa.Load, buffer.CellOperand(place))
	buf.Push(isa.Half, buffer.NoOperand())
	buf.Push(isa.Store, buffer.CellOperand(place))
	buf.Push(isa.Jump, buffer.LabelOperand(shrinkStart))
	buf.SetLabel(shrinkEnd)

	// Quotient sign follows the XOR of the two operand signs; remainder
	// follows the divisor's original sign alone (spec.md §4.6), tracked
	// separately since takeSign already folded both signs into the one
	// shared tmpB counter.
	negateIfOdd(buf, scope, quotient, tmpB)
	negateIfOdd(buf, scope, remainder, divisorSign)

	buf.SetLabel(done)
}

// captureDivisorSign records (as 0 or 1, not a running sum) whether
// divisor is currently negative, before any sign-normalizing mutation
// runs — the remainder's sign tracks the divisor's original sign alone
// (spec.md §4.6), independent of the dividend's.
func captureDivisorSign(buf *buffer.Buffer, scope string, divisor int) {
	nonNeg := buf.ReserveLabel(scope, "divisor_sign_nonneg")
	isNeg := buf.ReserveLabel(scope, "divisor_sign_neg")
	buf.Push(isa.Load, buffer.CellOperand(codegen.ZeroCell))
	buf.Push(isa.Store, buffer.CellOperand(divisorSign))
	buf.Push(isa.Load, buffer.CellOperand(divisor))
	buf.Push(isa.Jneg, buffer.LabelOperand(isNeg))
	buf.Push(isa.Jump, buffer.LabelOperand(nonNeg))
	buf.SetLabel(isNeg)
	buf.Push(isa.Load, buffer.LiteralOperand(1))
	buf.Push(isa.Store, buffer.CellOperand(divisorSign))
	buf.SetLabel(nonNeg)
}
