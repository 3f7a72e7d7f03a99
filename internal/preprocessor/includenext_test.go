package preprocessor

import (
	"strings"
	"testing"
)

// TestIncludeNextResumesAfterFindingDirectory builds two -I directories
// that both provide wrap.h; the first copy chains to the second via
// #include_next, which must resume the search after the directory that
// supplied the current file rather than finding itself again.
func TestIncludeNextResumesAfterFindingDirectory(t *testing.T) {
	dirA := t.TempDir()
	dirB := t.TempDir()

	writeTemp(t, dirA, "wrap.h", "int fromA = 1;\n#include_next <wrap.h>\n")
	writeTemp(t, dirB, "wrap.h", "int fromB = 2;\n")

	srcDir := t.TempDir()
	main := writeTemp(t, srcDir, "main.cpp", "#include <wrap.h>\n")

	p := New([]string{dirA, dirB}, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "fromA") || !strings.Contains(out, "fromB") {
		t.Fatalf("expected both wrappers in output, got %q", out)
	}
}

// An #include_next whose current file was found outside the -I list
// degenerates to a plain search of the whole list.
func TestIncludeNextFromCurrentDirectorySearchesWholeList(t *testing.T) {
	dirA := t.TempDir()
	writeTemp(t, dirA, "extra.h", "int extra = 3;\n")

	srcDir := t.TempDir()
	writeTemp(t, srcDir, "local.h", "#include_next <extra.h>\n")
	main := writeTemp(t, srcDir, "main.cpp", "#include \"local.h\"\n")

	p := New([]string{dirA}, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "extra") {
		t.Fatalf("expected extra.h to be found, got %q", out)
	}
}

func TestBareLineDirectiveIsTolerated(t *testing.T) {
	dir := t.TempDir()
	main := writeTemp(t, dir, "main.cpp", "#line\n#line 40\nint x = 1;\n")

	p := New(nil, IdentityGCCClang)

	out, err := p.Run(main)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !strings.Contains(out, "int x = 1;") {
		t.Fatalf("expected the following line to survive, got %q", out)
	}

	entry, ok := p.LineMap().Lookup(1)
	if !ok || entry.SourceLine != 40 {
		t.Fatalf("expected #line 40 to take effect, got %+v", entry)
	}
}
