package parser

import (
	"testing"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

func newParser(t *testing.T, src string) *Parser {
	t.Helper()

	strs := intern.New()
	lines := position.NewLineMap()
	lines.RegisterFile("t.cpp")
	lines.Append(0, 1, 0)

	return New(strs, lines, types.NewRegistry(), symtab.NewTable(), template.NewRegistry(), ast.NewArena(), src, "t.cpp")
}

func TestParseMainFunction(t *testing.T) {
	p := newParser(t, "int main() { return 0; }")

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(decls) != 1 {
		t.Fatalf("expected 1 declaration, got %d", len(decls))
	}

	fn := p.Arena.Get(decls[0])
	if fn.Kind != ast.KindFunctionDeclaration {
		t.Fatalf("expected function declaration, got %v", fn.Kind)
	}

	if fn.Body == ast.NoHandle {
		t.Fatal("expected a function body")
	}

	body := p.Arena.Get(fn.Body)
	if len(body.List) != 1 {
		t.Fatalf("expected 1 statement in body, got %d", len(body.List))
	}

	ret := p.Arena.Get(body.List[0])
	if ret.Kind != ast.KindReturnStatement {
		t.Fatalf("expected return statement, got %v", ret.Kind)
	}
}

func TestParseConstexprFunctionAndStaticAssert(t *testing.T) {
	src := `
constexpr int fact(int n) {
	return n <= 1 ? 1 : n * fact(n - 1);
}
static_assert(fact(5) == 120, "factorial mismatch");
`
	p := newParser(t, src)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}

	fn := p.Arena.Get(decls[0])
	if fn.Kind != ast.KindFunctionDeclaration || !fn.IsConstexpr {
		t.Fatalf("expected constexpr function, got %+v", fn)
	}

	assertDecl := p.Arena.Get(decls[1])
	if assertDecl.Kind != ast.KindDeclaration {
		t.Fatalf("expected static_assert declaration node, got %v", assertDecl.Kind)
	}
}

func TestParseClassTemplateInstantiation(t *testing.T) {
	src := `
template <class T>
struct S {
	static constexpr int v = sizeof(T);
};
int main() {
	return S<int>::v + S<char>::v;
}
`
	p := newParser(t, src)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}

	templ := p.Arena.Get(decls[0])
	if templ.Kind != ast.KindTemplateClassDeclaration {
		t.Fatalf("expected template class declaration, got %v", templ.Kind)
	}

	main := p.Arena.Get(decls[1])
	body := p.Arena.Get(main.Body)

	ret := p.Arena.Get(body.List[0])
	if ret.Kind != ast.KindReturnStatement {
		t.Fatalf("expected return statement, got %v", ret.Kind)
	}

	sum := p.Arena.Get(ret.A)
	if sum.Kind != ast.KindBinaryOperator || sum.BinOp != ast.OpAdd {
		t.Fatalf("expected addition of two instantiations, got %v", sum.Kind)
	}

	lhs := p.Arena.Get(sum.A)
	rhs := p.Arena.Get(sum.B)

	if lhs.Kind != ast.KindQualifiedIdentifier || rhs.Kind != ast.KindQualifiedIdentifier {
		t.Fatalf("expected qualified identifiers for S<int>::v and S<char>::v")
	}

	if lhs.StructIndex == rhs.StructIndex {
		t.Fatal("expected S<int> and S<char> to instantiate distinct specializations")
	}

	intInfo := p.Types.Get(lhs.StructIndex)
	charInfo := p.Types.Get(rhs.StructIndex)

	if intInfo.Struct.StaticMembers[0].ConstexprValue != 4 {
		t.Errorf("expected S<int>::v == 4, got %d", intInfo.Struct.StaticMembers[0].ConstexprValue)
	}

	if charInfo.Struct.StaticMembers[0].ConstexprValue != 1 {
		t.Errorf("expected S<char>::v == 1, got %d", charInfo.Struct.StaticMembers[0].ConstexprValue)
	}
}

func TestParseStructWithStaticConstexprMember(t *testing.T) {
	p := newParser(t, `struct Plain { static constexpr int k = 2 + 3; };`)

	decls, err := p.TranslationUnit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := p.Arena.Get(decls[0])
	if st.Kind != ast.KindStructDeclaration {
		t.Fatalf("expected struct declaration, got %v", st.Kind)
	}

	info := p.Types.Get(st.StructIndex)
	if info.Struct.StaticMembers[0].ConstexprValue != 5 {
		t.Errorf("expected k == 5, got %d", info.Struct.StaticMembers[0].ConstexprValue)
	}
}
