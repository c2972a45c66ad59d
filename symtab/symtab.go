package symtab

import "github.com/junsevith/kompilator/ast"

type variable struct {
	cell        Pointer
	initialized bool
}

type array struct {
	offset Pointer
	start  int
	length int
}

type entry struct {
	isArray bool
	v       variable
	a       array
}

// Table is a single scope's name → storage mapping, backed by a
// monotone cell allocator shared across scopes that start from the
// same top-of-memory (see New and Rebase).
type Table struct {
	entries map[string]entry
	top     int
}

// New creates a fresh table whose allocator starts at startCell. Cell 0
// is reserved by convention (the immutable zero cell); scratch cells 1-9
// are reserved for codegen temporaries (see the codegen package), so the
// first Table in the program should start at cell 10.
func New(startCell int) *Table {
	return &Table{entries: make(map[string]entry), top: startCell}
}

// Top returns the first free cell, i.e. spec.md's where_we_finished.
func (t *Table) Top() int { return t.top }

// Rebase advances the allocator to n, used by the compiler driver to
// keep the main scope's table in sync with the shared monotone
// allocator after procedures.Manager has handed out cells to every
// materialized procedure's own table in parallel. n must never be less
// than the current top — the allocator only ever moves forward.
func (t *Table) Rebase(n int) {
	if n > t.top {
		t.top = n
	}
}

func (t *Table) lookup(name string) (entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Add allocates storage for a declaration in this scope.
func (t *Table) Add(decl ast.Declaration) error {
	if _, exists := t.lookup(decl.Ident()); exists {
		return newError(ErrNameCollision, "%q", decl.Ident())
	}
	switch d := decl.(type) {
	case ast.ScalarDecl:
		cell := t.top
		t.top++
		t.entries[d.Name] = entry{v: variable{cell: Cell(cell), initialized: false}}
	case ast.ArrayDecl:
		length := d.Hi - d.Lo + 1
		base := t.top
		t.top += length
		// arr[i] lives at cell base + (i - lo), so offset = base - lo.
		t.entries[d.Name] = entry{isArray: true, a: array{
			offset: Literal(base - d.Lo),
			start:  d.Lo,
			length: length,
		}}
	case ast.ConstDecl:
		t.entries[d.Name] = entry{v: variable{cell: Literal(d.Value), initialized: true}}
	default:
		return newError(ErrUndeclared, "unsupported declaration %T", decl)
	}
	return nil
}

// AddArgument binds a procedure's formal parameter. Both kinds consume
// exactly one cell and are marked initialized, since the caller is
// responsible for populating them before the call.
func (t *Table) AddArgument(arg ast.ArgumentDecl) error {
	if _, exists := t.lookup(arg.Ident()); exists {
		return newError(ErrNameCollision, "%q", arg.Ident())
	}
	cell := t.top
	t.top++
	switch a := arg.(type) {
	case ast.ScalarArg:
		t.entries[a.Name] = entry{v: variable{cell: IndirectCell(cell), initialized: true}}
	case ast.ArrayArg:
		t.entries[a.Name] = entry{isArray: true, a: array{
			offset: IndirectCell(cell),
			start:  0,
			length: 0,
		}}
	default:
		return newError(ErrUndeclared, "unsupported argument %T", arg)
	}
	return nil
}

// Read resolves an Identifier for use as an operand, failing if the
// name is uninitialized, undeclared, or used with the wrong kind.
func (t *Table) Read(id ast.Identifier) (Type, error) {
	switch v := id.(type) {
	case ast.Variable:
		e, ok := t.lookup(v.Name_)
		if !ok {
			return Type{}, newError(ErrUndeclared, "%q", v.Name_)
		}
		if e.isArray {
			return Type{}, newError(ErrArrayMixup, "%q", v.Name_)
		}
		if !e.v.initialized {
			return Type{}, newError(ErrNotInitialized, "%q", v.Name_)
		}
		return Type{Variable: e.v.cell}, nil
	case ast.ArrayLiteralIndex:
		e, ok := t.lookup(v.Name_)
		if !ok {
			return Type{}, newError(ErrUndeclared, "%q", v.Name_)
		}
		if !e.isArray {
			return Type{}, newError(ErrVariableMixup, "%q", v.Name_)
		}
		if e.a.length > 0 && (v.Index < e.a.start || v.Index >= e.a.start+e.a.length) {
			return Type{}, newError(ErrIndexOutOfBounds, "%q[%d]", v.Name_, v.Index)
		}
		return Type{IsArray: true, Base: e.a.offset, Index: Literal(v.Index)}, nil
	case ast.ArrayVarIndex:
		e, ok := t.lookup(v.Name_)
		if !ok {
			return Type{}, newError(ErrUndeclared, "%q", v.Name_)
		}
		if !e.isArray {
			return Type{}, newError(ErrVariableMixup, "%q", v.Name_)
		}
		idxE, ok := t.lookup(v.Index)
		if !ok {
			return Type{}, newError(ErrUndeclared, "%q", v.Index)
		}
		if idxE.isArray {
			return Type{}, newError(ErrArrayMixup, "%q", v.Index)
		}
		if !idxE.v.initialized {
			return Type{}, newError(ErrNotInitialized, "%q", v.Index)
		}
		return Type{IsArray: true, Base: e.a.offset, Index: idxE.v.cell}, nil
	default:
		return Type{}, newError(ErrUndeclared, "unsupported identifier %T", id)
	}
}

// ReadValue resolves a Value (literal or Identifier) for use as an
// operand.
func (t *Table) ReadValue(v ast.Value) (Type, error) {
	switch val := v.(type) {
	case ast.Literal:
		return Type{Variable: Literal(val.Value)}, nil
	case ast.Ident:
		return t.Read(val.Identifier)
	default:
		return Type{}, newError(ErrUndeclared, "unsupported value %T", v)
	}
}

// Write resolves an Identifier for use as an assignment destination,
// marking it initialized. Writing an array element does not require
// the array itself to carry an "initialized" flag: arrays have no
// uniform initialization state in this language.
func (t *Table) Write(id ast.Identifier) (Type, error) {
	switch v := id.(type) {
	case ast.Variable:
		e, ok := t.lookup(v.Name_)
		if !ok {
			return Type{}, newError(ErrUndeclared, "%q", v.Name_)
		}
		if e.isArray {
			return Type{}, newError(ErrArrayMixup, "%q", v.Name_)
		}
		e.v.initialized = true
		t.entries[v.Name_] = e
		return Type{Variable: e.v.cell}, nil
	case ast.ArrayLiteralIndex, ast.ArrayVarIndex:
		return t.Read(id)
	default:
		return Type{}, newError(ErrUndeclared, "unsupported identifier %T", id)
	}
}

// ArrayOffset returns the offset Pointer of a declared array, used by
// call-site lowering when passing an array by reference.
func (t *Table) ArrayOffset(name string) (Pointer, error) {
	e, ok := t.lookup(name)
	if !ok {
		return Pointer{}, newError(ErrUndeclared, "%q", name)
	}
	if !e.isArray {
		return Pointer{}, newError(ErrVariableMixup, "%q", name)
	}
	return e.a.offset, nil
}

// ScalarCell returns the storage cell of a declared scalar, used by
// call-site lowering when passing a scalar by reference.
func (t *Table) ScalarCell(name string) (Pointer, error) {
	e, ok := t.lookup(name)
	if !ok {
		return Pointer{}, newError(ErrUndeclared, "%q", name)
	}
	if e.isArray {
		return Pointer{}, newError(ErrArrayMixup, "%q", name)
	}
	return e.v.cell, nil
}

// MarkInitialized forces a declared scalar's initialized flag without
// going through Write.
func (t *Table) MarkInitialized(name string) error {
	e, ok := t.lookup(name)
	if !ok {
		return newError(ErrUndeclared, "%q", name)
	}
	e.v.initialized = true
	t.entries[name] = e
	return nil
}

// IsArray reports whether name is declared as an array in this scope,
// used by call-site argument-kind checking.
func (t *Table) IsArray(name string) (bool, error) {
	e, ok := t.lookup(name)
	if !ok {
		return false, newError(ErrUndeclared, "%q", name)
	}
	return e.isArray, nil
}
