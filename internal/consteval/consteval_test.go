package consteval

import (
	"strings"
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// buildFactorial constructs, by hand, the AST for:
//
//	constexpr int fact(int n) { if (n <= 1) return 1; return n * fact(n - 1); }
//
// mirroring the shape internal/parser would produce, so consteval's
// function-call evaluation path (spec.md §8's `fact(5) == 120` scenario)
// can be exercised without running the parser.
func buildFactorial(t *testing.T) (*ast.Arena, *intern.Interner, *symtab.Table, ast.Handle) {
	t.Helper()

	arena := ast.NewArena()
	strs := intern.New()
	syms := symtab.NewTable()

	factName := strs.Intern("fact")
	nName := strs.Intern("n")

	intTy := types.TypeSpecifierNode{Base: types.Int}

	paramN := arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: nName, Type: intTy})

	nIdent := func() ast.Handle { return arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: nName}) }

	one := arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, Int: 1, UInt: 1})
	cond := arena.Alloc(ast.Node{Kind: ast.KindBinaryOperator, BinOp: ast.OpLe, A: nIdent(), B: one})
	retOne := arena.Alloc(ast.Node{Kind: ast.KindReturnStatement, A: one})
	ifStmt := arena.Alloc(ast.Node{Kind: ast.KindIfStatement, A: cond, B: retOne})

	nMinus1 := arena.Alloc(ast.Node{Kind: ast.KindBinaryOperator, BinOp: ast.OpSub, A: nIdent(), B: one})
	callFact := arena.Alloc(ast.Node{Kind: ast.KindFunctionCall, A: arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: factName}), List: []ast.Handle{nMinus1}})
	mulExpr := arena.Alloc(ast.Node{Kind: ast.KindBinaryOperator, BinOp: ast.OpMul, A: nIdent(), B: callFact})
	retMul := arena.Alloc(ast.Node{Kind: ast.KindReturnStatement, A: mulExpr})

	body := arena.Alloc(ast.Node{Kind: ast.KindBlock, List: []ast.Handle{ifStmt, retMul}})

	fn := arena.Alloc(ast.Node{
		Kind: ast.KindFunctionDeclaration, Name: factName, Type: intTy,
		List: []ast.Handle{paramN}, Body: body, IsConstexpr: true,
	})

	syms.Insert(factName, symtab.Candidate{ASTNode: uint32(fn), Kind: symtab.DeclFunction})

	return arena, strs, syms, fn
}

func TestEvalCallFactorial(t *testing.T) {
	arena, strs, syms, fn := buildFactorial(t)
	_ = fn

	ctx := NewContext(strs, syms, types.NewRegistry(), arena)

	five := arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, Int: 5, UInt: 5})
	call := arena.Alloc(ast.Node{
		Kind: ast.KindFunctionCall,
		A:    arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: strs.Intern("fact")}),
		List: []ast.Handle{five},
	})

	result, err := ctx.Evaluate(call)
	if err != nil {
		t.Fatalf("Evaluate(fact(5)): %v", err)
	}

	if got := result.AsInt64(); got != 120 {
		t.Fatalf("fact(5) = %d, want 120", got)
	}
}

func TestCheckStaticAssertFailureReportsMessage(t *testing.T) {
	arena := ast.NewArena()
	strs := intern.New()
	ctx := NewContext(strs, symtab.NewTable(), types.NewRegistry(), arena)

	msg := strs.Intern("nope")
	falseLit := arena.Alloc(ast.Node{Kind: ast.KindBoolLiteral, Bool: false})
	assertNode := ast.Node{Kind: ast.KindDeclaration, A: falseLit, Str: msg}

	err := ctx.CheckStaticAssert(&assertNode, strs)
	if err == nil {
		t.Fatal("expected an error for a false static_assert")
	}

	if !strings.Contains(err.Error(), "nope") {
		t.Errorf("expected the static_assert message in the error, got %q", err.Error())
	}
}

func TestEvaluateRejectsStepBudgetExhaustion(t *testing.T) {
	arena := ast.NewArena()
	strs := intern.New()
	ctx := NewContext(strs, symtab.NewTable(), types.NewRegistry(), arena)

	ctx.steps = MaxSteps

	lit := arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, Int: 1, UInt: 1})

	if _, err := ctx.Evaluate(lit); err == nil {
		t.Fatal("expected a step-budget error")
	}
}
