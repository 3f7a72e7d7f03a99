package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// compileTo writes src to a temp file, runs the driver on it, and
// returns the exit code plus the built object bytes (nil if none was
// produced).
func compileTo(t *testing.T, src string, extraArgs ...string) (int, []byte) {
	t.Helper()

	dir := t.TempDir()
	input := filepath.Join(dir, "t.cpp")
	output := filepath.Join(dir, "t.o")

	if err := os.WriteFile(input, []byte(src), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	args := append(extraArgs, "-o", output, input)
	code := run(args)

	data, err := os.ReadFile(output)
	if err != nil {
		return code, nil
	}

	return code, data
}

func TestRunCompilesMinimalProgram(t *testing.T) {
	code, obj := compileTo(t, "int main() { return 0; }\n")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if len(obj) < 4 || !bytes.Equal(obj[0:4], []byte{0x7f, 'E', 'L', 'F'}) {
		t.Fatal("expected an ELF object file")
	}

	if !bytes.Contains(obj, []byte("main")) {
		t.Fatal("expected a main symbol in the object file")
	}
}

func TestRunMacroExpansionProgram(t *testing.T) {
	src := "#define DOUBLE(x) ((x)*2)\nint main() { return DOUBLE(21); }\n"

	code, obj := compileTo(t, src)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if obj == nil {
		t.Fatal("expected an object file")
	}
}

func TestRunStaticAssertSuccess(t *testing.T) {
	src := `
constexpr int fact(int n) { return n <= 1 ? 1 : n * fact(n - 1); }
static_assert(fact(5) == 120, "factorial");
int main() { return 0; }
`
	if code, _ := compileTo(t, src); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestRunStaticAssertFailureExitsOne(t *testing.T) {
	src := `
constexpr int fact(int n) { return n <= 1 ? 1 : n * fact(n - 1); }
static_assert(fact(5) == 121, "factorial mismatch");
int main() { return 0; }
`
	code, obj := compileTo(t, src)

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	if obj != nil {
		t.Fatal("a failed translation unit must not write an object file")
	}
}

func TestRunTemplateSpecialization(t *testing.T) {
	src := `
template <class T>
struct S {
	static constexpr int v = sizeof(T);
};
static_assert(S<int>::v == 4, "int size");
static_assert(S<char>::v == 1, "char size");
int main() { return 0; }
`
	if code, _ := compileTo(t, src); code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
}

func TestRunExceptionProgramEmitsEHTables(t *testing.T) {
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
	code, obj := compileTo(t, src)
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	for _, want := range []string{".gcc_except_table", ".eh_frame", ".note.GNU-stack", "_ZTI1E", "__cxa_throw", "__gxx_personality_v0"} {
		if !bytes.Contains(obj, []byte(want)) {
			t.Errorf("expected the object file to reference %q", want)
		}
	}
}

func TestRunUndefinedNameExitsOne(t *testing.T) {
	code, obj := compileTo(t, "int main() { return undefined_name; }\n")

	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}

	if obj != nil {
		t.Fatal("a failed translation unit must not write an object file")
	}
}

func TestRunIncludeCycleFailsWithinDepthCap(t *testing.T) {
	dir := t.TempDir()

	a := filepath.Join(dir, "a.h")
	b := filepath.Join(dir, "b.h")
	input := filepath.Join(dir, "t.cpp")

	if err := os.WriteFile(a, []byte("#include \"b.h\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(b, []byte("#include \"a.h\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(input, []byte("#include \"a.h\"\nint main() { return 0; }\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code := run([]string{"-o", filepath.Join(dir, "t.o"), input}); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRunGlobalVariableLandsInData(t *testing.T) {
	code, obj := compileTo(t, "int answer = 42;\nint main() { return answer; }\n")

	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}

	if !bytes.Contains(obj, []byte(".data")) {
		t.Error("expected a .data section for the initialized global")
	}

	if !bytes.Contains(obj, []byte("answer")) {
		t.Error("expected a symbol for the global")
	}
}
