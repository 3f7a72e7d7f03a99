package parser

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
)

// bodyOf parses src, expecting its last declaration to be a function
// with a body, and returns the body's statement handles.
func bodyOf(t *testing.T, src string) (*Parser, []ast.Handle) {
	t.Helper()

	p := newParser(t, src)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fn := p.Arena.Get(decls[len(decls)-1])
	if fn.Kind != ast.KindFunctionDeclaration || fn.Body == ast.NoHandle {
		t.Fatalf("expected a function definition, got %v", fn.Kind)
	}

	return p, p.Arena.Get(fn.Body).List
}

func TestParseForLoop(t *testing.T) {
	p, stmts := bodyOf(t, `int main() { for (int i = 0; i < 10; i = i + 1) { } return 0; }`)

	loop := p.Arena.Get(stmts[0])
	if loop.Kind != ast.KindForStatement {
		t.Fatalf("expected for statement, got %v", loop.Kind)
	}

	if loop.A == ast.NoHandle || loop.B == ast.NoHandle || loop.C == ast.NoHandle || loop.D == ast.NoHandle {
		t.Fatal("expected init, condition, increment, and body to all be present")
	}

	if p.Arena.Get(loop.A).Kind != ast.KindVariableDeclaration {
		t.Errorf("expected the init clause to be a declaration, got %v", p.Arena.Get(loop.A).Kind)
	}
}

func TestParseWhileAndDoWhile(t *testing.T) {
	p, stmts := bodyOf(t, `int main() { while (1) { break; } do { continue; } while (0); return 0; }`)

	w := p.Arena.Get(stmts[0])
	if w.Kind != ast.KindWhileStatement {
		t.Fatalf("expected while statement, got %v", w.Kind)
	}

	brk := p.Arena.Get(p.Arena.Get(w.B).List[0])
	if brk.Kind != ast.KindBreakStatement {
		t.Errorf("expected break inside while body, got %v", brk.Kind)
	}

	dw := p.Arena.Get(stmts[1])
	if dw.Kind != ast.KindDoWhileStatement {
		t.Fatalf("expected do-while statement, got %v", dw.Kind)
	}

	cont := p.Arena.Get(p.Arena.Get(dw.B).List[0])
	if cont.Kind != ast.KindContinueStatement {
		t.Errorf("expected continue inside do-while body, got %v", cont.Kind)
	}
}

func TestParseSwitchPreservesCaseOrder(t *testing.T) {
	src := `
int pick(int v) {
	switch (v) {
	case 1:
		return 10;
	case 2:
	default:
		return 20;
	}
}
`
	p, stmts := bodyOf(t, src)

	sw := p.Arena.Get(stmts[0])
	if sw.Kind != ast.KindSwitchStatement {
		t.Fatalf("expected switch statement, got %v", sw.Kind)
	}

	var kinds []ast.Kind
	for _, item := range sw.List {
		kinds = append(kinds, p.Arena.Get(item).Kind)
	}

	want := []ast.Kind{
		ast.KindCaseLabel, ast.KindReturnStatement,
		ast.KindCaseLabel, ast.KindDefaultLabel, ast.KindReturnStatement,
	}

	if len(kinds) != len(want) {
		t.Fatalf("expected %d switch items, got %d (%v)", len(want), len(kinds), kinds)
	}

	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("switch item %d: expected %v, got %v", i, want[i], kinds[i])
		}
	}
}

func TestParseTryCatch(t *testing.T) {
	src := `
struct E { int x; };
int main() {
	try {
		throw E{7};
	} catch (const E& e) {
		return 1;
	} catch (...) {
		return 2;
	}
}
`
	p, stmts := bodyOf(t, src)

	try := p.Arena.Get(stmts[0])
	if try.Kind != ast.KindTryStatement {
		t.Fatalf("expected try statement, got %v", try.Kind)
	}

	if len(try.List) != 2 {
		t.Fatalf("expected 2 catch clauses, got %d", len(try.List))
	}

	typed := p.Arena.Get(try.List[0])
	if typed.Bool {
		t.Error("expected the first clause to be a typed catch, not catch-all")
	}

	if typed.Name == 0 {
		t.Error("expected the typed clause to bind a name")
	}

	all := p.Arena.Get(try.List[1])
	if !all.Bool {
		t.Error("expected the second clause to be catch-all")
	}

	thr := p.Arena.Get(p.Arena.Get(try.A).List[0])
	if thr.Kind != ast.KindThrowStatement || thr.A == ast.NoHandle {
		t.Fatalf("expected a throw with an operand, got %v", thr.Kind)
	}

	if p.Arena.Get(thr.A).Kind != ast.KindConstructorCall {
		t.Errorf("expected E{7} to parse as a constructor call, got %v", p.Arena.Get(thr.A).Kind)
	}
}

func TestParseEnumRegistersEnumerators(t *testing.T) {
	src := `
enum Color { Red, Green = 5, Blue };
int main() { return Green; }
`
	p := newParser(t, src)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	en := p.Arena.Get(decls[0])
	if en.Kind != ast.KindEnumDeclaration {
		t.Fatalf("expected enum declaration, got %v", en.Kind)
	}

	info := p.Types.Get(en.StructIndex)
	if info.Enum == nil {
		t.Fatal("expected an enum registry payload")
	}

	vals := map[string]int64{}
	for _, e := range info.Enum.Enumerators {
		vals[p.strings.View(e.Name)] = e.Value
	}

	if vals["Red"] != 0 || vals["Green"] != 5 || vals["Blue"] != 6 {
		t.Errorf("unexpected enumerator values: %v", vals)
	}
}

func TestParseScopedEnumDoesNotLeakEnumerators(t *testing.T) {
	p := newParser(t, `enum class Mode : char { Fast, Slow };`)

	if _, err := p.TranslationUnit(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cands := p.Symbols.LookupAll(p.strings.Intern("Fast")); len(cands) != 0 {
		t.Fatal("expected scoped enumerators to stay out of the enclosing scope")
	}
}

func TestParseNamespace(t *testing.T) {
	src := `
namespace util {
	int helper() { return 3; }
}
`
	p := newParser(t, src)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ns := p.Arena.Get(decls[0])
	if ns.Kind != ast.KindNamespaceDeclaration {
		t.Fatalf("expected namespace declaration, got %v", ns.Kind)
	}

	if len(ns.List) != 1 {
		t.Fatalf("expected 1 nested declaration, got %d", len(ns.List))
	}

	if p.Arena.Get(ns.List[0]).Kind != ast.KindFunctionDeclaration {
		t.Errorf("expected a nested function, got %v", p.Arena.Get(ns.List[0]).Kind)
	}
}

func TestParseRangedFor(t *testing.T) {
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
	p, stmts := bodyOf(t, src)

	arr := p.Arena.Get(stmts[0])
	if arr.Kind != ast.KindVariableDeclaration || len(arr.Type.ArrayDims) != 1 || arr.Type.ArrayDims[0] != 3 {
		t.Fatalf("expected int arr[3], got %+v", arr.Type)
	}

	loop := p.Arena.Get(stmts[2])
	if loop.Kind != ast.KindRangedForStatement {
		t.Fatalf("expected ranged for, got %v", loop.Kind)
	}

	if loop.B == ast.NoHandle || loop.D == ast.NoHandle {
		t.Fatal("expected range expression and body")
	}
}

func TestParseStructuredBinding(t *testing.T) {
	src := `
struct Pair { int a; int b; };
int main() {
	Pair p = Pair{1, 2};
	auto [x, y] = p;
	return x + y;
}
`
	p, stmts := bodyOf(t, src)

	sb := p.Arena.Get(stmts[1])
	if sb.Kind != ast.KindStructuredBinding {
		t.Fatalf("expected structured binding, got %v", sb.Kind)
	}

	if len(sb.List) != 2 {
		t.Fatalf("expected 2 binding names, got %d", len(sb.List))
	}
}

func TestParseGotoAndLabel(t *testing.T) {
	src := `
int main() {
	goto done;
done:
	return 0;
}
`
	p, stmts := bodyOf(t, src)

	g := p.Arena.Get(stmts[0])
	if g.Kind != ast.KindGotoStatement {
		t.Fatalf("expected goto, got %v", g.Kind)
	}

	lbl := p.Arena.Get(stmts[1])
	if lbl.Kind != ast.KindLabelStatement || lbl.Name != g.Name {
		t.Fatalf("expected label matching the goto target, got %v", lbl.Kind)
	}
}
