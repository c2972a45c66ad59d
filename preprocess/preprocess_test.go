package preprocess

import (
	"testing"

	"github.com/junsevith/kompilator/ast"
)

func v(name string) ast.Value { return ast.Ident{Identifier: ast.Variable{Name_: name}} }
func lit(n int) ast.Value     { return ast.Literal{Value: n} }

func TestRunStrengthReducesMultiplyByPowerOfTwo(t *testing.T) {
	prog := &ast.Program{
		Commands: []ast.Command{
			ast.Assign{Dest: ast.Variable{Name_: "b"}, Op: ast.OpMul, Left: v("a"), Right: lit(8)},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := prog.Commands[0].(ast.Assign)
	if got.Op != ast.OpShl {
		t.Fatalf("op = %v; want OpShl", got.Op)
	}
	if lit, ok := got.Right.(ast.Literal); !ok || lit.Value != 3 {
		t.Fatalf("shift amount = %v; want literal 3", got.Right)
	}
	if res.RefCounts[ShiftLeft] != 3 {
		t.Fatalf("ShiftLeft refcount = %d; want 3", res.RefCounts[ShiftLeft])
	}
	if res.RefCounts[Multiply] != 0 {
		t.Fatalf("Multiply refcount = %d; want 0 (strength-reduced away)", res.RefCounts[Multiply])
	}
}

func TestRunStrengthReductionAcceptsEitherOperandOrder(t *testing.T) {
	prog := &ast.Program{
		Commands: []ast.Command{
			ast.Assign{Dest: ast.Variable{Name_: "b"}, Op: ast.OpMul, Left: lit(4), Right: v("a")},
		},
	}
	if _, err := Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := prog.Commands[0].(ast.Assign)
	if got.Op != ast.OpShl {
		t.Fatalf("op = %v; want OpShl", got.Op)
	}
	if got.Left != v("a") {
		t.Fatalf("Left = %v; want the variable operand", got.Left)
	}
}

func TestRunNonPowerOfTwoMultiplyCountsRealCall(t *testing.T) {
	prog := &ast.Program{
		Commands: []ast.Command{
			ast.Assign{Dest: ast.Variable{Name_: "b"}, Op: ast.OpMul, Left: v("a"), Right: lit(6)},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := prog.Commands[0].(ast.Assign)
	if got.Op != ast.OpMul {
		t.Fatalf("op = %v; want OpMul unchanged", got.Op)
	}
	if res.RefCounts[Multiply] != 1 {
		t.Fatalf("Multiply refcount = %d; want 1", res.RefCounts[Multiply])
	}
}

func TestRunDivideByPowerOfTwoRequiresVariableOnLeft(t *testing.T) {
	prog := &ast.Program{
		Commands: []ast.Command{
			// 8 / a is NOT eligible for strength reduction: the dividend
			// must be the identifier, per spec.md §4.1.
			ast.Assign{Dest: ast.Variable{Name_: "b"}, Op: ast.OpDiv, Left: lit(8), Right: v("a")},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := prog.Commands[0].(ast.Assign)
	if got.Op != ast.OpDiv {
		t.Fatalf("op = %v; want OpDiv unchanged", got.Op)
	}
	if res.RefCounts[Divide] != 1 {
		t.Fatalf("Divide refcount = %d; want 1", res.RefCounts[Divide])
	}
}

func TestRunDivideByPowerOfTwoStrengthReduces(t *testing.T) {
	prog := &ast.Program{
		Commands: []ast.Command{
			ast.Assign{Dest: ast.Variable{Name_: "b"}, Op: ast.OpDiv, Left: v("a"), Right: lit(4)},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := prog.Commands[0].(ast.Assign)
	if got.Op != ast.OpShr {
		t.Fatalf("op = %v; want OpShr", got.Op)
	}
	if res.RefCounts[ShiftRight] != 2 {
		t.Fatalf("ShiftRight refcount = %d; want 2", res.RefCounts[ShiftRight])
	}
	if res.RefCounts[Divide] != 0 {
		t.Fatalf("Divide refcount = %d; want 0", res.RefCounts[Divide])
	}
}

func TestRunCountsProcedureCallsAndRejectsUnknown(t *testing.T) {
	prog := &ast.Program{
		Procedures: []*ast.Procedure{{Name: "p"}},
		Commands: []ast.Command{
			ast.Call{Name: "p", Args: []string{"a"}},
			ast.Call{Name: "p", Args: []string{"a"}},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RefCounts["p"] != 2 {
		t.Fatalf("refcount[p] = %d; want 2", res.RefCounts["p"])
	}

	bad := &ast.Program{
		Commands: []ast.Command{ast.Call{Name: "ghost"}},
	}
	if _, err := Run(bad); err == nil {
		t.Fatal("Run: want UnknownFunctionError for undeclared procedure, got nil")
	}
}

func TestRunAddsIterDeclOnlyWhenNotAlreadyDeclared(t *testing.T) {
	prog := &ast.Program{
		Declarations: []ast.Declaration{ast.ScalarDecl{Name: "i"}},
		Commands: []ast.Command{
			ast.ForUp{Iter: "i", Start: lit(1), End: lit(3), Body: nil},
			ast.ForUp{Iter: "j", Start: lit(1), End: lit(2), Body: nil},
		},
	}
	if _, err := Run(prog); err != nil {
		t.Fatalf("Run: %v", err)
	}
	count := 0
	foundJ := false
	for _, d := range prog.Declarations {
		if d.Ident() == "i" {
			count++
		}
		if d.Ident() == "j" {
			foundJ = true
		}
	}
	if count != 1 {
		t.Fatalf("iterator %q declared %d times; want 1 (no duplicate)", "i", count)
	}
	if !foundJ {
		t.Fatalf("iterator %q never declared", "j")
	}
}

func TestRunRecursesIntoNestedBodies(t *testing.T) {
	prog := &ast.Program{
		Procedures: []*ast.Procedure{{Name: "p"}},
		Commands: []ast.Command{
			ast.If{
				Cond: ast.Condition{Left: lit(1), Right: lit(0), Op: ast.CondGt},
				Then: []ast.Command{
					ast.While{
						Cond: ast.Condition{Left: lit(1), Right: lit(0), Op: ast.CondGt},
						Body: []ast.Command{ast.Call{Name: "p"}},
					},
				},
			},
		},
	}
	res, err := Run(prog)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RefCounts["p"] != 1 {
		t.Fatalf("refcount[p] = %d; want 1 (nested inside If/While)", res.RefCounts["p"])
	}
}
