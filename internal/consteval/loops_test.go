package consteval

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/parser"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// evalSource parses src and evaluates the expression expr against its
// declarations, exercising the same parser-built AST shapes the driver
// hands the evaluator.
func evalSource(t *testing.T, src, expr string) (Result, error) {
	t.Helper()

	strs := intern.New()
	lines := position.NewLineMap()
	lines.RegisterFile("t.cpp")
	lines.Append(0, 1, 0)

	tys := types.NewRegistry()
	syms := symtab.NewTable()
	arena := ast.NewArena()

	p := parser.New(strs, lines, tys, syms, template.NewRegistry(), arena, src, "t.cpp")
	if _, err := p.TranslationUnit(); err != nil {
		t.Fatalf("parse declarations: %v", err)
	}

	ep := parser.New(strs, lines, tys, syms, template.NewRegistry(), arena, expr, "t.cpp")

	h, err := ep.ParseExpression()
	if err != nil {
		t.Fatalf("parse expression %q: %v", expr, err)
	}

	ctx := NewContext(strs, syms, tys, arena)

	return ctx.Evaluate(h)
}

func TestEvalIterativeLoopFunction(t *testing.T) {
	src := `
constexpr int sum_to(int n) {
	int total = 0;
	for (int i = 1; i <= n; i = i + 1) {
		total = total + i;
	}
	return total;
}
`
	v, err := evalSource(t, src, "sum_to(100)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 5050 {
		t.Fatalf("sum_to(100) = %d, want 5050", got)
	}
}

func TestEvalWhileWithBreakAndContinue(t *testing.T) {
	src := `
constexpr int count_odd_below(int n) {
	int i = 0;
	int count = 0;
	while (true) {
		i = i + 1;
		if (i >= n) break;
		if (i % 2 == 0) continue;
		count = count + 1;
	}
	return count;
}
`
	v, err := evalSource(t, src, "count_odd_below(10)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 5 {
		t.Fatalf("count_odd_below(10) = %d, want 5", got)
	}
}

func TestEvalDoWhileRunsBodyAtLeastOnce(t *testing.T) {
	src := `
constexpr int once(int n) {
	int ran = 0;
	do {
		ran = ran + 1;
	} while (false);
	return ran;
}
`
	v, err := evalSource(t, src, "once(0)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 1 {
		t.Fatalf("once(0) = %d, want 1", got)
	}
}

func TestEvalNonTerminatingLoopHitsStepBudget(t *testing.T) {
	src := `
constexpr int spin() {
	while (true) { }
	return 0;
}
`
	_, err := evalSource(t, src, "spin()")
	if err == nil {
		t.Fatal("expected a step-budget error for a non-terminating loop")
	}

	if !cerr.IsKind(err, cerr.KindConstexprHard) {
		t.Fatalf("expected a hard constexpr error, got %v", err)
	}
}

func TestEvalIncrementOperators(t *testing.T) {
	src := `
constexpr int twirl(int n) {
	int v = n;
	++v;
	v++;
	--v;
	return v;
}
`
	v, err := evalSource(t, src, "twirl(5)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 6 {
		t.Fatalf("twirl(5) = %d, want 6", got)
	}
}

func TestEvalBuiltins(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"__builtin_popcount(255)", 8},
		{"__builtin_popcountll(255)", 8},
		{"__builtin_clz(1)", 31},
		{"__builtin_ctz(8)", 3},
		{"__builtin_ffs(0)", 0},
		{"__builtin_ffs(12)", 3},
		{"__builtin_abs(0 - 4)", 4},
	}

	for _, tc := range cases {
		v, err := evalSource(t, "", tc.expr)
		if err != nil {
			t.Errorf("%s: %v", tc.expr, err)
			continue
		}

		if got := v.AsInt64(); got != tc.want {
			t.Errorf("%s = %d, want %d", tc.expr, got, tc.want)
		}
	}
}

func TestEvalBuiltinClzOfZeroIsAnError(t *testing.T) {
	if _, err := evalSource(t, "", "__builtin_clz(0)"); err == nil {
		t.Fatal("expected __builtin_clz(0) to be rejected")
	}
}

func TestEvalEnumerators(t *testing.T) {
	src := `enum Color { Red, Green = 5, Blue };`

	v, err := evalSource(t, src, "Blue")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 6 {
		t.Fatalf("Blue = %d, want 6", got)
	}
}

func TestEvalScopedEnumQualified(t *testing.T) {
	src := `enum class Mode { Fast = 2, Slow = 9 };`

	v, err := evalSource(t, src, "Mode::Slow")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if got := v.AsInt64(); got != 9 {
		t.Fatalf("Mode::Slow = %d, want 9", got)
	}
}

func TestEvalDeterminism(t *testing.T) {
	src := `
constexpr int mix(int n) {
	int acc = 1;
	for (int i = 0; i < n; i = i + 1) {
		acc = acc * 3 + i;
	}
	return acc;
}
`
	a, err := evalSource(t, src, "mix(9)")
	if err != nil {
		t.Fatalf("first evaluation: %v", err)
	}

	b, err := evalSource(t, src, "mix(9)")
	if err != nil {
		t.Fatalf("second evaluation: %v", err)
	}

	if a.AsInt64() != b.AsInt64() {
		t.Fatalf("expected identical results, got %d and %d", a.AsInt64(), b.AsInt64())
	}
}
