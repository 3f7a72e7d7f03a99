package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/cppnc/cppnc/internal/logging"
	"github.com/cppnc/cppnc/internal/objectfile"
	"github.com/cppnc/cppnc/internal/preprocessor"
)

func TestParseLevelRecognizesEachName(t *testing.T) {
	cases := map[string]logging.Level{
		"error":   logging.LevelError,
		"warn":    logging.LevelWarn,
		"warning": logging.LevelWarn,
		"info":    logging.LevelInfo,
		"verbose": logging.LevelVerbose,
		"debug":   logging.LevelDebug,
	}

	for name, want := range cases {
		got, ok := parseLevel(name)
		if !ok || got != want {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, true", name, got, ok, want)
		}
	}

	if _, ok := parseLevel("nonsense"); ok {
		t.Error("expected parseLevel to reject an unknown level name")
	}
}

func TestEnsureSymbolStubAddsOnlyOnce(t *testing.T) {
	obj := &objectfile.Object{}

	ensureSymbolStub(obj, "helper")
	ensureSymbolStub(obj, "helper")

	if len(obj.Symbols) != 1 {
		t.Fatalf("expected a single stub symbol, got %d", len(obj.Symbols))
	}

	if obj.Symbols[0].Defined {
		t.Fatal("expected the stub symbol to be undefined")
	}
}

func TestWritePreprocessedEmitsLineMarkerOnDivergence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.cpp")

	if err := os.WriteFile(path, []byte("int main(){ return 0; }\n"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	pp := preprocessor.New(nil, preprocessor.IdentityMSVC)

	out, err := pp.Run(path)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var buf bytes.Buffer
	writePreprocessed(&buf, out, pp)

	if !bytes.Contains(buf.Bytes(), []byte(`# 1 "`)) {
		t.Fatalf("expected a line marker in output, got: %s", buf.String())
	}
}
