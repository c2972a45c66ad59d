package postpass

import "fmt"

// DuplicateLabelError is returned when two instructions in the final
// sequence both claim the same symbolic label — a codegen bug, since
// ReserveLabel's counters are supposed to make every name unique.
type DuplicateLabelError struct{ Label string }

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("postpass: label %q defined more than once", e.Label)
}

// UnresolvedLabelError is returned when a GOTO/JPOS/JNEG/JZERO references
// a label nothing ever attached to an instruction.
type UnresolvedLabelError struct{ Label string }

func (e *UnresolvedLabelError) Error() string {
	return fmt.Sprintf("postpass: undefined label %q", e.Label)
}
