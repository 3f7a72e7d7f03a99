package lower

import (
	"encoding/binary"
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/parser"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// lowerSource parses src and lowers the whole translation unit,
// returning the module, so control-flow lowering is exercised on
// parser-built ASTs rather than hand-assembled nodes.
func lowerSource(t *testing.T, src string) (*ir.Module, *Lowerer) {
	t.Helper()

	strs := intern.New()
	lines := position.NewLineMap()
	lines.RegisterFile("t.cpp")
	lines.Append(0, 1, 0)

	tys := types.NewRegistry()
	syms := symtab.NewTable()
	arena := ast.NewArena()

	p := parser.New(strs, lines, tys, syms, template.NewRegistry(), arena, src, "t.cpp")

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	l := New(strs, tys, arena, syms)

	mod, err := l.LowerTranslationUnit(decls)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}

	return mod, l
}

// checkWellFormed enforces spec.md §8 invariant 7 on one function: every
// branch targets a label placed exactly once in the same function,
// TryBegin/TryEnd, LoopBegin/LoopEnd, and ScopeBegin/ScopeEnd balance.
func checkWellFormed(t *testing.T, f *ir.Function) {
	t.Helper()

	placed := map[ir.LabelID]int{}

	var tries, loops, scopes int

	for _, in := range f.Instrs {
		switch in.Op {
		case ir.OpLabel:
			placed[in.Label]++
		case ir.OpTryBegin:
			tries++
		case ir.OpTryEnd:
			tries--
		case ir.OpLoopBegin:
			loops++
		case ir.OpLoopEnd:
			loops--
		case ir.OpScopeBegin:
			scopes++
		case ir.OpScopeEnd:
			scopes--
		}
	}

	for _, in := range f.Instrs {
		switch in.Op {
		case ir.OpBranch, ir.OpConditionalBranch, ir.OpBreak, ir.OpContinue, ir.OpTryBegin:
			if placed[in.Label] != 1 {
				t.Errorf("%s targets label %d placed %d times", in.Op, in.Label, placed[in.Label])
			}
		}
	}

	if tries != 0 {
		t.Errorf("TryBegin/TryEnd unbalanced by %d", tries)
	}

	if loops != 0 {
		t.Errorf("LoopBegin/LoopEnd unbalanced by %d", loops)
	}

	if scopes != 0 {
		t.Errorf("ScopeBegin/ScopeEnd unbalanced by %d", scopes)
	}
}

func countOps(f *ir.Function, op ir.Opcode) int {
	n := 0

	for _, in := range f.Instrs {
		if in.Op == op {
			n++
		}
	}

	return n
}

func TestLowerWhileLoopIsWellFormed(t *testing.T) {
	src := `
int spin(int n) {
	int i = 0;
	while (i < n) {
		if (i == 7) break;
		i = i + 1;
	}
	return i;
}
`
	mod, _ := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	if countOps(f, ir.OpLoopBegin) != 1 || countOps(f, ir.OpLoopEnd) != 1 {
		t.Error("expected exactly one LoopBegin/LoopEnd pair")
	}

	if countOps(f, ir.OpBreak) != 1 {
		t.Error("expected the break to lower to an OpBreak")
	}
}

func TestLowerForLoopContinueTargetsIncrement(t *testing.T) {
	src := `
int evens(int n) {
	int total = 0;
	for (int i = 0; i < n; i++) {
		if (i % 2 == 1) continue;
		total = total + i;
	}
	return total;
}
`
	mod, _ := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	var loopBegin, cont *ir.Instruction

	for i := range f.Instrs {
		switch f.Instrs[i].Op {
		case ir.OpLoopBegin:
			loopBegin = &f.Instrs[i]
		case ir.OpContinue:
			cont = &f.Instrs[i]
		}
	}

	if loopBegin == nil || cont == nil {
		t.Fatal("expected both a LoopBegin and a Continue")
	}

	if int64(cont.Label) != loopBegin.Imm {
		t.Errorf("continue targets label %d, want the increment label %d", cont.Label, loopBegin.Imm)
	}
}

func TestLowerSwitchEmitsComparisonChain(t *testing.T) {
	src := `
int pick(int v) {
	switch (v) {
	case 1:
		return 10;
	case 2:
		return 20;
	default:
		return 30;
	}
}
`
	mod, _ := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	if got := countOps(f, ir.OpCmpEqI); got != 2 {
		t.Errorf("expected 2 case comparisons, got %d", got)
	}
}

func TestLowerTryCatchThrow(t *testing.T) {
	src := `
struct E { int x; };
int main() {
	try {
		throw E{7};
	} catch (const E& e) {
		return e.x;
	}
	return 0;
}
`
	mod, l := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	if countOps(f, ir.OpTryBegin) != 1 || countOps(f, ir.OpCatchBegin) != 1 || countOps(f, ir.OpCatchEnd) != 1 {
		t.Fatal("expected one TryBegin and one CatchBegin/CatchEnd pair")
	}

	var throw *ir.Instruction

	for i := range f.Instrs {
		if f.Instrs[i].Op == ir.OpThrow {
			throw = &f.Instrs[i]
		}
	}

	if throw == nil {
		t.Fatal("expected an OpThrow")
	}

	if got := l.Strings.View(throw.Name); got != "_ZTI1E" {
		t.Errorf("throw type_info symbol = %q, want _ZTI1E", got)
	}

	if throw.Imm != 4 {
		t.Errorf("thrown object size = %d, want 4", throw.Imm)
	}
}

func TestLowerNoExceptionsRewritesThrowToAbort(t *testing.T) {
	src := `
struct E { int x; };
int main() {
	throw E{1};
	return 0;
}
`
	strs := intern.New()
	lines := position.NewLineMap()
	lines.RegisterFile("t.cpp")
	lines.Append(0, 1, 0)

	tys := types.NewRegistry()
	syms := symtab.NewTable()
	arena := ast.NewArena()

	p := parser.New(strs, lines, tys, syms, template.NewRegistry(), arena, src, "t.cpp")

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	l := New(strs, tys, arena, syms)
	l.NoExceptions = true

	mod, err := l.LowerTranslationUnit(decls)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}

	f := mod.Functions[0]

	if countOps(f, ir.OpThrow) != 0 {
		t.Error("expected no OpThrow with exceptions disabled")
	}

	found := false

	for _, in := range f.Instrs {
		if in.Op == ir.OpCall && strs.View(in.Name) == "abort" {
			found = true
		}
	}

	if !found {
		t.Error("expected throw to lower to an abort call")
	}
}

func TestLowerGlobalVariableFoldsInitializer(t *testing.T) {
	src := `int answer = 40 + 2;`

	mod, l := lowerSource(t, src)

	if len(mod.Globals) != 1 {
		t.Fatalf("expected 1 global, got %d", len(mod.Globals))
	}

	g := mod.Globals[0]
	if l.Strings.View(g.Name) != "answer" {
		t.Errorf("unexpected global name %q", l.Strings.View(g.Name))
	}

	if len(g.InitBytes) != 4 {
		t.Fatalf("expected 4 init bytes for an int, got %d", len(g.InitBytes))
	}

	if got := binary.LittleEndian.Uint32(g.InitBytes); got != 42 {
		t.Errorf("global init = %d, want 42", got)
	}
}

func TestLowerGotoUndeclaredLabelFails(t *testing.T) {
	src := `
int main() {
	goto nowhere;
	return 0;
}
`
	strs := intern.New()
	lines := position.NewLineMap()
	lines.RegisterFile("t.cpp")
	lines.Append(0, 1, 0)

	tys := types.NewRegistry()
	syms := symtab.NewTable()
	arena := ast.NewArena()

	p := parser.New(strs, lines, tys, syms, template.NewRegistry(), arena, src, "t.cpp")

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	l := New(strs, tys, arena, syms)

	if _, err := l.LowerTranslationUnit(decls); err == nil {
		t.Fatal("expected an error for a goto with no matching label")
	} else if !cerr.IsKind(err, cerr.KindCodegen) {
		t.Fatalf("expected a KindCodegen error, got %v", err)
	}
}

func TestLowerRangedForDesugarsToPointerLoop(t *testing.T) {
	src := `
int sum() {
	int arr[3] = {1, 2, 3};
	int total = 0;
	for (int v : arr) {
		total = total + v;
	}
	return total;
}
`
	mod, _ := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	if countOps(f, ir.OpArrayElementAddress) < 2 {
		t.Error("expected begin/end element-address computations")
	}

	if countOps(f, ir.OpDeref) < 1 {
		t.Error("expected the loop variable to load through the range pointer")
	}
}

func TestLowerStructuredBindingFromAggregate(t *testing.T) {
	src := `
struct Pair { int a; int b; };
int main() {
	Pair p = Pair{3, 4};
	auto [x, y] = p;
	return x + y;
}
`
	mod, _ := lowerSource(t, src)
	f := mod.Functions[0]

	checkWellFormed(t, f)

	if got := countOps(f, ir.OpStructuredBindingBind); got != 2 {
		t.Errorf("expected 2 binding markers, got %d", got)
	}
}
