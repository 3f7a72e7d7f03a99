package lower

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// buildAdd constructs `int add(int a, int b) { return a + b; }` by hand,
// the shape internal/parser would hand to LowerFunction.
func buildAdd(t *testing.T) (*ast.Arena, *intern.Interner, ast.Handle) {
	t.Helper()

	arena := ast.NewArena()
	strs := intern.New()

	intTy := types.TypeSpecifierNode{Base: types.Int}

	aName := strs.Intern("a")
	bName := strs.Intern("b")
	addName := strs.Intern("add")

	paramA := arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: aName, Type: intTy})
	paramB := arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: bName, Type: intTy})

	sum := arena.Alloc(ast.Node{
		Kind: ast.KindBinaryOperator, BinOp: ast.OpAdd,
		A: arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: aName}),
		B: arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: bName}),
	})
	ret := arena.Alloc(ast.Node{Kind: ast.KindReturnStatement, A: sum})
	body := arena.Alloc(ast.Node{Kind: ast.KindBlock, List: []ast.Handle{ret}})

	fn := arena.Alloc(ast.Node{
		Kind: ast.KindFunctionDeclaration, Name: addName, Type: intTy,
		List: []ast.Handle{paramA, paramB}, Body: body,
	})

	return arena, strs, fn
}

func TestLowerFunctionEmitsAddAndReturn(t *testing.T) {
	arena, strs, fn := buildAdd(t)

	l := New(strs, types.NewRegistry(), arena, symtab.NewTable())

	got, err := l.LowerFunction(fn)
	if err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}

	if len(got.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(got.Params))
	}

	var sawAdd, sawReturn bool

	for _, instr := range got.Instrs {
		switch instr.Op {
		case ir.OpAddI:
			sawAdd = true
		case ir.OpReturn:
			sawReturn = true
		}
	}

	if !sawAdd {
		t.Error("expected an OpAddI instruction")
	}

	if !sawReturn {
		t.Error("expected an OpReturn instruction")
	}
}

func TestLowerFunctionRejectsUnsupportedStatement(t *testing.T) {
	arena := ast.NewArena()
	strs := intern.New()

	body := arena.Alloc(ast.Node{Kind: ast.KindBlock, List: []ast.Handle{
		arena.Alloc(ast.Node{Kind: ast.KindForStatement}),
	}})

	fn := arena.Alloc(ast.Node{
		Kind: ast.KindFunctionDeclaration, Name: strs.Intern("loopy"),
		Type: types.TypeSpecifierNode{Base: types.Void}, Body: body,
	})

	l := New(strs, types.NewRegistry(), arena, symtab.NewTable())

	_, err := l.LowerFunction(fn)
	if err == nil {
		t.Fatal("expected an error lowering a for-loop whose body is not a supported statement")
	}

	if !cerr.IsKind(err, cerr.KindCodegen) {
		t.Fatalf("expected a KindCodegen error, got %T: %v", err, err)
	}
}

func TestLowerTranslationUnitSkipsPrototypesAndNonFunctions(t *testing.T) {
	arena := ast.NewArena()
	strs := intern.New()

	proto := arena.Alloc(ast.Node{Kind: ast.KindFunctionDeclaration, Name: strs.Intern("proto"), Body: ast.NoHandle})
	structDecl := arena.Alloc(ast.Node{Kind: ast.KindStructDeclaration, Name: strs.Intern("S")})

	l := New(strs, types.NewRegistry(), arena, symtab.NewTable())

	mod, err := l.LowerTranslationUnit([]ast.Handle{proto, structDecl})
	if err != nil {
		t.Fatalf("LowerTranslationUnit: %v", err)
	}

	if len(mod.Functions) != 0 {
		t.Fatalf("expected no lowered functions, got %d", len(mod.Functions))
	}
}
