package symtab

import "fmt"

// Error is the tagged error kind carried up from symbol table
// operations. Every compile-time failure in this package is an *Error
// carrying one of the sentinel Kind values below, which Unwrap returns,
// so callers can match with errors.Is while still getting a formatted
// message.
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Unwrap() error { return e.Kind }

// Kind identifies the category of a symbol table error, matched with
// errors.Is against the sentinels below.
type Kind struct{ name string }

func (k Kind) Error() string { return k.name }

var (
	ErrNameCollision    = Kind{"name already declared in this scope"}
	ErrVariableMixup    = Kind{"name is an array, not a scalar"}
	ErrArrayMixup       = Kind{"name is a scalar, not an array"}
	ErrUndeclared       = Kind{"undeclared name"}
	ErrNotInitialized   = Kind{"read of uninitialized variable"}
	ErrIndexOutOfBounds = Kind{"literal array index out of declared bounds"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, msg: fmt.Sprintf("%s: %s", kind.name, fmt.Sprintf(format, args...))}
}
