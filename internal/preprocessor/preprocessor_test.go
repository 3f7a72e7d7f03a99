package preprocessor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()

	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}

	return p
}

// assertGolden fails with a unified diff, rather than a raw string dump,
// when the preprocessor's output drifts from the expected golden text.
func assertGolden(t *testing.T, want, got string) {
	t.Helper()

	if want == got {
		return
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(got),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	}

	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		t.Fatalf("preprocessed output mismatch (diff error: %v)\nwant: %q\ngot:  %q", err, want, got)
	}

	t.Fatalf("preprocessed output mismatch:\n%s", text)
}

func TestObjectLikeMacroExpansion(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#define ANSWER 42\nint x = ANSWER;\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "int x = 42;") {
		t.Errorf("expected expansion, got %q", out)
	}
}

func TestFunctionLikeMacroExpansion(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#define DOUBLE(x) ((x)*2)\nint main(){ return DOUBLE(21); }\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "((21)*2)") {
		t.Errorf("expected function-like expansion, got %q", out)
	}
}

func TestSelfReferentialMacroFixedPoint(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#define A A\nint y = A;\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "int y = A;") {
		t.Errorf("expected A to remain literal, got %q", out)
	}
}

func TestStringizeAndPaste(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#define STR(x) #x\n#define CAT(a,b) a##b\nconst char* s = STR(hello);\nint CAT(foo,bar) = 1;\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, `"hello"`) {
		t.Errorf("expected stringize, got %q", out)
	}

	if !strings.Contains(out, "int foobar = 1;") {
		t.Errorf("expected paste, got %q", out)
	}
}

func TestConditionalCompilation(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#define FOO 1\n#if FOO\nint kept = 1;\n#else\nint dropped = 1;\n#endif\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "kept") || strings.Contains(out, "dropped") {
		t.Errorf("expected only the true branch kept, got %q", out)
	}
}

func TestIncludeAndLineMap(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "header.h", "#pragma once\nint fromHeader = 1;\n")
	main := writeTemp(t, dir, "main.cpp", "#include \"header.h\"\nint fromMain = 2;\n")

	p := New([]string{dir}, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "fromHeader") || !strings.Contains(out, "fromMain") {
		t.Errorf("expected both lines present, got %q", out)
	}

	lm := p.LineMap()
	if lm.Len() != 2 {
		t.Fatalf("expected 2 line map entries, got %d", lm.Len())
	}

	e0, _ := lm.Lookup(1)
	if lm.FilePath(e0.SourceFileIndex) != filepath.Join(dir, "header.h") {
		t.Errorf("expected first line to map to header.h, got %s", lm.FilePath(e0.SourceFileIndex))
	}
}

func TestIncludeDepthExceeded(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "a.h", "#include \"b.h\"\n")
	writeTemp(t, dir, "b.h", "#include \"a.h\"\n")
	main := writeTemp(t, dir, "main.cpp", "#include \"a.h\"\n")

	p := New([]string{dir}, IdentityGCCClang)

	_, err := p.Run(main)
	if err == nil || !strings.Contains(err.Error(), "include depth exceeded") {
		t.Fatalf("expected include depth exceeded, got %v", err)
	}
}

func TestGoldenNestedMacroExpansion(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp",
		"#define DOUBLE(x) ((x)*2)\n#define QUAD(x) DOUBLE(DOUBLE(x))\nint main(){ return QUAD(3); }\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := "int main(){ return ((((3)*2))*2); }\n"
	assertGolden(t, want, out)
}
