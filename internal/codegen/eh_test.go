package codegen

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/lower"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/parser"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// compileSource parses, lowers, and compiles every function in src,
// returning the results keyed by source name.
func compileSource(t *testing.T, src string) map[string]*Result {
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

	l := lower.New(strs, tys, arena, syms)

	mod, err := l.LowerTranslationUnit(decls)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}

	results := map[string]*Result{}

	for _, f := range mod.Functions {
		r, err := Compile(strs, f, mangle.Itanium, TargetELF)
		if err != nil {
			t.Fatalf("Compile(%s): %v", strs.View(f.Name), err)
		}

		results[r.Name] = r
	}

	return results
}

func relocatedSymbols(r *Result) map[string]bool {
	syms := map[string]bool{}

	for _, rel := range r.Relocations {
		syms[rel.Symbol] = true
	}

	return syms
}

func TestCompileLoopFunction(t *testing.T) {
	src := `
int spin(int n) {
	int total = 0;
	for (int i = 0; i < n; i++) {
		total = total + i;
	}
	return total;
}
`
	r := compileSource(t, src)["spin"]

	if len(r.Code) == 0 || r.Code[0] != 0x55 {
		t.Fatal("expected a push-rbp prologue")
	}

	if r.Code[len(r.Code)-1] != 0xC3 {
		t.Fatal("expected the function to end in ret")
	}

	if r.FrameSize%16 != 0 {
		t.Fatalf("expected a 16-byte aligned frame, got %d", r.FrameSize)
	}
}

func TestCompileThrowReferencesRuntime(t *testing.T) {
	src := `
struct E { int x; };
int boom() {
	throw E{7};
}
`
	r := compileSource(t, src)["boom"]
	syms := relocatedSymbols(r)

	for _, want := range []string{"__cxa_allocate_exception", "__cxa_throw", "_ZTI1E"} {
		if !syms[want] {
			t.Errorf("expected a relocation against %s", want)
		}
	}
}

func TestCompileTryCatchRecordsRegion(t *testing.T) {
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
	r := compileSource(t, src)["main"]

	if len(r.TryRegions) != 1 {
		t.Fatalf("expected 1 try region, got %d", len(r.TryRegions))
	}

	region := r.TryRegions[0]

	if region.Length == 0 {
		t.Error("expected a non-empty try extent")
	}

	if len(region.Handlers) != 1 {
		t.Fatalf("expected 1 handler, got %d", len(region.Handlers))
	}

	h := region.Handlers[0]

	if h.IsCatchAll {
		t.Error("expected a typed handler, not catch-all")
	}

	if h.TypeSymbol != "_ZTI1E" {
		t.Errorf("handler type symbol = %q, want _ZTI1E", h.TypeSymbol)
	}

	if h.LandingPadPC < region.StartPC+region.Length {
		t.Error("expected the landing pad after the try extent")
	}

	syms := relocatedSymbols(r)
	for _, want := range []string{"__cxa_begin_catch", "__cxa_end_catch"} {
		if !syms[want] {
			t.Errorf("expected a relocation against %s", want)
		}
	}
}

func TestCompileMangledNameCarriesSignature(t *testing.T) {
	src := `
int add(int a, int b) { return a + b; }
int addl(long a, long b) { return 0; }
`
	results := compileSource(t, src)

	if got := results["add"].MangledName; got != "_Z3addii" {
		t.Errorf("add mangles to %q, want _Z3addii", got)
	}

	if got := results["addl"].MangledName; got != "_Z4addlll" {
		t.Errorf("addl mangles to %q, want _Z4addlll", got)
	}

	if results["add"].MangledName == results["addl"].MangledName {
		t.Error("distinct signatures must mangle to distinct names")
	}
}
