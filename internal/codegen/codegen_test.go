package codegen

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/lower"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// buildAdd constructs `int add(int a, int b) { return a + b; }`, the same
// shape internal/lower's own tests use, so codegen can be exercised on a
// real lowered function rather than a hand-built ir.Function.
func buildAdd(t *testing.T) (*ast.Arena, *intern.Interner, ast.Handle) {
	t.Helper()

	arena := ast.NewArena()
	strs := intern.New()

	intTy := types.TypeSpecifierNode{Base: types.Int}

	aName := strs.Intern("a")
	bName := strs.Intern("b")

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
		Kind: ast.KindFunctionDeclaration, Name: strs.Intern("add"), Type: intTy,
		List: []ast.Handle{paramA, paramB}, Body: body,
	})

	return arena, strs, fn
}

func TestCompileAddEndsInRet(t *testing.T) {
	arena, strs, fnHandle := buildAdd(t)

	l := lower.New(strs, types.NewRegistry(), arena, symtab.NewTable())

	irFn, err := l.LowerFunction(fnHandle)
	if err != nil {
		t.Fatalf("LowerFunction: %v", err)
	}

	result, err := Compile(strs, irFn, mangle.Itanium, TargetELF)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	if len(result.Code) == 0 {
		t.Fatal("expected non-empty machine code")
	}

	if result.Code[0] != 0x55 {
		t.Fatalf("expected the prologue to start with `push rbp` (0x55), got 0x%02x", result.Code[0])
	}

	last := result.Code[len(result.Code)-1]
	if last != 0xC3 {
		t.Fatalf("expected the function to end in `ret` (0xC3), got 0x%02x", last)
	}

	if result.MangledName != "_Z3addii" {
		t.Fatalf("expected Itanium mangling _Z3addii, got %q", result.MangledName)
	}

	if result.FrameSize%16 != 0 {
		t.Fatalf("expected a 16-byte aligned frame, got %d", result.FrameSize)
	}
}

func TestPersonalityBySelectsByTarget(t *testing.T) {
	if personalityFor(TargetELF) == personalityFor(TargetCOFF) {
		t.Fatal("expected ELF and COFF personality symbols to differ")
	}
}
