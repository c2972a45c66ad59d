// Package procedures implements spec.md §4.5's call-policy decision
// (0 references → skip, 1 → inline, ≥2 → materialize-with-return-
// address) and the by-reference calling convention for both outcomes.
// It also owns the two synthetic arithmetic procedures of arith, which
// follow the exact same policy.
//
// Grounded on original_source/src/procedures/{procedures,regular,
// assembly,swap_vars}.rs: a RegularProcedure/AssemblyProcedure starts
// with an implicit "inline" disposition and only flips to materialized
// when the driver proactively initializes it (which it only does for
// procedures referenced twice or more); Call() then branches on that
// flag. The "swap-through-map" mechanic of swap_vars.rs — rename every
// local declaration to `@<proc>@<name>`, map every argument name to its
// caller-supplied actual, and substitute both across a cloned command
// list — is carried as Manager's inline-expansion path.
package procedures

import (
	"fmt"

	"github.com/junsevith/kompilator/arith"
	"github.com/junsevith/kompilator/ast"
	"github.com/junsevith/kompilator/buffer"
	"github.com/junsevith/kompilator/codegen"
	"github.com/junsevith/kompilator/isa"
	"github.com/junsevith/kompilator/symtab"
)

// Synthetic procedure names, materialized/inlined under the same
// policy as user-defined ones.
const (
	Multiply = "@multiply"
	Divide   = "@divide"
)

// UndeclaredProcedureError is returned when a call references a name
// preprocess didn't already validate (defensive: preprocess.Run should
// have rejected this earlier).
type UndeclaredProcedureError struct{ Name string }

func (e *UndeclaredProcedureError) Error() string {
	return fmt.Sprintf("procedures: call to undeclared procedure %q", e.Name)
}

type userProc struct {
	decl         *ast.Procedure
	materialized bool
	table        *symtab.Table
	returnCell   symtab.Pointer
}

type arithProc struct {
	materialized bool
	returnCell   symtab.Pointer
}

// Manager owns every user-defined and synthetic procedure's
// materialize-or-inline decision and emits call sites for both. It
// implements codegen.CallHandler.
type Manager struct {
	global    *symtab.Table
	buf       *buffer.Buffer
	nextCell  int
	refCounts map[string]int

	users map[string]*userProc
	arith map[string]*arithProc
}

// New builds a Manager over every procedure declared in procs, plus the
// two synthetic arithmetic procedures, using counts (from preprocess.Run)
// to decide each one's eventual disposition. global is the main body's
// symbol table; its Top() seeds the shared cell allocator every
// materialized procedure's own table draws from.
func New(global *symtab.Table, buf *buffer.Buffer, procs []*ast.Procedure, counts map[string]int) *Manager {
	m := &Manager{
		global:    global,
		buf:       buf,
		nextCell:  global.Top(),
		refCounts: counts,
		users:     make(map[string]*userProc, len(procs)),
		arith: map[string]*arithProc{
			Multiply: {},
			Divide:   {},
		},
	}
	for _, p := range procs {
		m.users[p.Name] = &userProc{decl: p}
	}
	return m
}

// MaterializeReferenced runs spec.md §4.5's policy: every procedure
// (synthetic or user-defined) referenced twice or more gets its own
// cell, entry label and body emitted into the global buffer now, so
// every call site lowered after that point binds against it.
// Synthetic procedures materialize first since a user body may invoke
// them, never the reverse. User procedures then materialize in name
// order, so a call inside one user body to a procedure whose name sorts
// later is lowered inline there.
func (m *Manager) MaterializeReferenced() error {
	for _, name := range []string{Multiply, Divide} {
		if m.refCounts[name] >= 2 {
			if err := m.materializeArith(name); err != nil {
				return err
			}
		}
	}
	for _, p := range orderedProcs(m.users) {
		if m.refCounts[p.decl.Name] >= 2 {
			if err := m.materializeUser(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// orderedProcs returns the procedures in a stable, declaration-adjacent
// order (by name, since the map was built from the program's own
// slice but Go map iteration is not ordered) — determinism requires
// never iterating m.users directly when order affects emission.
func orderedProcs(users map[string]*userProc) []*userProc {
	ordered := make([]*userProc, 0, len(users))
	for _, p := range users {
		ordered = append(ordered, p)
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j-1].decl.Name > ordered[j].decl.Name; j-- {
			ordered[j-1], ordered[j] = ordered[j], ordered[j-1]
		}
	}
	return ordered
}

func (m *Manager) materializeArith(name string) error {
	a := m.arith[name]
	table := symtab.New(m.nextCell)
	if err := table.Add(ast.ScalarDecl{Name: "@return@" + name}); err != nil {
		return err
	}
	ret, err := table.ScalarCell("@return@" + name)
	if err != nil {
		return err
	}
	m.nextCell = table.Top()
	a.returnCell = ret
	a.materialized = true

	sub := arith.Build(name, startLabel(name), ret.Value)
	return m.buf.Merge(sub, m.buf.Len())
}

func (m *Manager) materializeUser(p *userProc) error {
	table := symtab.New(m.nextCell)
	for _, d := range p.decl.Declarations {
		if err := table.Add(d); err != nil {
			return err
		}
	}
	for _, a := range p.decl.Arguments {
		if err := table.AddArgument(a); err != nil {
			return err
		}
	}
	if err := table.Add(ast.ScalarDecl{Name: "@return@" + p.decl.Name}); err != nil {
		return err
	}
	ret, err := table.ScalarCell("@return@" + p.decl.Name)
	if err != nil {
		return err
	}

	sub := buffer.New()
	start := startLabel(p.decl.Name)
	sub.SetLabel(start)
	lowerer := codegen.NewLowerer(p.decl.Name, table, sub, m)
	if err := lowerer.LowerCommands(p.decl.Commands); err != nil {
		return err
	}
	sub.Push(isa.Rtrn, buffer.CellOperand(ret.Value))

	m.nextCell = table.Top()
	p.table = table
	p.returnCell = ret
	p.materialized = true
	return m.buf.Merge(sub, m.buf.Len())
}

func startLabel(name string) string { return "@start@" + name }

// NextCell returns the first cell not yet claimed by any materialized
// procedure's table — the compiler driver rebases the main scope's
// table to this value before lowering the main body, so synthesized
// locals (e.g. for-loop bounds) never collide with a materialized
// procedure's cells.
func (m *Manager) NextCell() int { return m.nextCell }

// Call implements codegen.CallHandler, dispatching to the materialized
// or inline path for both user-defined and synthetic procedures.
func (m *Manager) Call(l *codegen.Lowerer, call ast.Call) error {
	if call.Name == Multiply || call.Name == Divide {
		return m.callArith(l, call.Name)
	}
	p, ok := m.users[call.Name]
	if !ok {
		return &UndeclaredProcedureError{Name: call.Name}
	}
	// The entry is taken out of the map while this call is lowered and
	// put back afterwards.
	delete(m.users, call.Name)
	defer func() { m.users[call.Name] = p }()
	if p.materialized {
		return m.callMaterialized(l, p, call.Args)
	}
	return m.callInline(l, p, call.Args)
}

func (m *Manager) callArith(l *codegen.Lowerer, name string) error {
	a := m.arith[name]
	if !a.materialized {
		l.Buf.PushContext("inlined " + name)
		arith.BuildInline(name, l.Buf)
		l.Buf.PopContext()
		return nil
	}
	m.emitMaterializedGoto(l, startLabel(name), a.returnCell)
	return nil
}

// emitMaterializedGoto stages the "load PC+3" return address, stores it
// to the callee's return cell, and jumps to its entry label — the
// three-instruction sequence the pseudo-op's delta counts over.
func (m *Manager) emitMaterializedGoto(l *codegen.Lowerer, entryLabel string, returnCell symtab.Pointer) {
	l.Buf.PushContext("set return")
	l.Buf.Push(isa.Load, buffer.PCPlusOperand(3))
	l.Buf.Push(isa.Store, buffer.CellOperand(returnCell.Value))
	l.Buf.PopContext()
	l.Buf.Push(isa.Jump, buffer.LabelOperand(entryLabel))
}

// callMaterialized binds each actual argument into the callee's
// parameter cell by forwarding an ADDRESS, never a value: a scalar
// parameter cell is an IndirectCell the callee dereferences, so the
// caller stores the address of its own actual into it; an array
// parameter forwards the actual array's offset pointer directly. This
// mirrors RegularProcedure::prepare_for_call using `write` (not
// `read`) on the caller's actual — binding by reference means the
// callee may write through it, so the caller-side variable is marked
// initialized up front rather than merely read.
func (m *Manager) callMaterialized(l *codegen.Lowerer, p *userProc, args []string) error {
	if len(args) != len(p.decl.Arguments) {
		return &codegen.ArityError{Proc: p.decl.Name, Want: len(p.decl.Arguments), Got: len(args)}
	}
	l.Buf.PushContext("call " + p.decl.Name)
	for i, arg := range args {
		decl := p.decl.Arguments[i]
		wantArray := isArrayArg(decl)
		gotArray, err := l.Table.IsArray(arg)
		if err != nil {
			return err
		}
		if gotArray != wantArray {
			return &codegen.ArgKindMismatchError{Proc: p.decl.Name, Arg: decl.Ident(), WantArray: wantArray}
		}
		l.Buf.PushContext(fmt.Sprintf("%s -> %s", arg, decl.Ident()))
		var paramCell, actual symtab.Pointer
		if wantArray {
			paramCell, err = p.table.ArrayOffset(decl.Ident())
			if err != nil {
				return err
			}
			actual, err = l.Table.ArrayOffset(arg)
			if err != nil {
				return err
			}
		} else {
			paramCell, err = p.table.ScalarCell(decl.Ident())
			if err != nil {
				return err
			}
			if _, err := l.Table.Write(ast.Variable{Name_: arg}); err != nil {
				return err
			}
			actual, err = l.Table.ScalarCell(arg)
			if err != nil {
				return err
			}
		}
		l.LoadAddressValue(actual)
		l.Buf.Push(isa.Store, buffer.CellOperand(paramCell.Value))
		l.Buf.PopContext()
	}
	m.emitMaterializedGoto(l, startLabel(p.decl.Name), p.returnCell)
	l.Buf.PopContext()
	return nil
}

func isArrayArg(a ast.ArgumentDecl) bool {
	_, ok := a.(ast.ArrayArg)
	return ok
}

// callInline splices a renamed copy of the procedure's own commands
// directly into the caller's instruction stream, sharing the caller's
// table: every local declaration is registered under a
// `@<proc>@<name>` alias and every reference renamed to match (or to
// `@unid@<name>` if somehow neither a local nor a parameter — the same
// quarantine fallback swap_vars.rs uses, which should be unreachable
// given preprocess/symtab validation but is kept as a defensive
// guardrail rather than a panic).
func (m *Manager) callInline(l *codegen.Lowerer, p *userProc, args []string) error {
	if len(args) != len(p.decl.Arguments) {
		return &codegen.ArityError{Proc: p.decl.Name, Want: len(p.decl.Arguments), Got: len(args)}
	}
	rename := make(map[string]string, len(p.decl.Declarations)+len(p.decl.Arguments))
	for _, d := range p.decl.Declarations {
		aliased := fmt.Sprintf("@%s@%s", p.decl.Name, d.Ident())
		rename[d.Ident()] = aliased
		if err := l.Table.Add(renameDecl(d, aliased)); err != nil {
			return err
		}
	}
	for i, a := range p.decl.Arguments {
		gotArray, err := l.Table.IsArray(args[i])
		if err != nil {
			return err
		}
		if gotArray != isArrayArg(a) {
			return &codegen.ArgKindMismatchError{Proc: p.decl.Name, Arg: a.Ident(), WantArray: isArrayArg(a)}
		}
		rename[a.Ident()] = args[i]
	}

	body := renameCommands(p.decl.Commands, rename)
	l.Buf.PushContext("inlined " + p.decl.Name)
	defer l.Buf.PopContext()
	return l.LowerCommands(body)
}

func renameDecl(d ast.Declaration, newName string) ast.Declaration {
	switch v := d.(type) {
	case ast.ScalarDecl:
		return ast.ScalarDecl{Name: newName}
	case ast.ArrayDecl:
		return ast.ArrayDecl{Name: newName, Lo: v.Lo, Hi: v.Hi}
	case ast.ConstDecl:
		return ast.ConstDecl{Name: newName, Value: v.Value}
	default:
		panic(fmt.Sprintf("procedures: unsupported declaration %T", d))
	}
}
