package lexer

import (
	"testing"

	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()

	strs := intern.New()
	lm := position.NewLineMap()
	lm.RegisterFile("test.cpp")
	lm.Append(0, 1, 0)

	l := New(strs, lm, src, "test.cpp")

	var toks []Token

	for {
		tok := l.Next()
		toks = append(toks, tok)

		if tok.Kind == TokenEOF {
			break
		}
	}

	return toks
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	toks := lexAll(t, "int main return foo_bar")
	want := []TokenKind{TokenKeyword, TokenIdentifier, TokenKeyword, TokenIdentifier, TokenEOF}

	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}

	for i, w := range want {
		if toks[i].Kind != w {
			t.Errorf("token %d: got kind %v, want %v (%q)", i, toks[i].Kind, w, toks[i].Raw)
		}
	}
}

func TestNumericLiterals(t *testing.T) {
	toks := lexAll(t, "42 0x2A 3.14 10u 5ll")

	if toks[0].IntValue != 42 {
		t.Errorf("expected 42, got %d", toks[0].IntValue)
	}

	if toks[1].IntValue != 42 {
		t.Errorf("expected hex 0x2A == 42, got %d", toks[1].IntValue)
	}

	if toks[2].Kind != TokenFloatLiteral || toks[2].FloatValue != 3.14 {
		t.Errorf("expected float 3.14, got %v", toks[2])
	}

	if toks[3].NumClass != NumUnsigned {
		t.Errorf("expected unsigned suffix, got %v", toks[3].NumClass)
	}

	if toks[4].NumClass != NumLongLong {
		t.Errorf("expected long long suffix, got %v", toks[4].NumClass)
	}
}

func TestGreedyOperators(t *testing.T) {
	toks := lexAll(t, "a <=> b <<= c :: d")

	var ops []string

	for _, tok := range toks {
		if tok.Kind == TokenOperator {
			ops = append(ops, tok.Raw)
		}
	}

	want := []string{"<=>", "<<=", "::"}
	if len(ops) != len(want) {
		t.Fatalf("got ops %v, want %v", ops, want)
	}

	for i, w := range want {
		if ops[i] != w {
			t.Errorf("op %d: got %q want %q", i, ops[i], w)
		}
	}
}

func TestRawString(t *testing.T) {
	toks := lexAll(t, `R"delim(hello (world))delim"`)
	if toks[0].Kind != TokenStringLiteral {
		t.Fatalf("expected string literal, got %v", toks[0])
	}
}

func TestCursorSaveRestore(t *testing.T) {
	strs := intern.New()
	lm := position.NewLineMap()
	lm.RegisterFile("t.cpp")
	lm.Append(0, 1, 0)

	l := New(strs, lm, "foo bar", "t.cpp")
	save := l.Save()

	first := l.Next()
	if first.Raw != "foo" {
		t.Fatalf("expected foo, got %q", first.Raw)
	}

	l.Restore(save)

	again := l.Next()
	if again.Raw != "foo" {
		t.Fatalf("expected foo again after restore, got %q", again.Raw)
	}
}
