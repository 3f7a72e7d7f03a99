package main

import (
	"testing"

	"github.com/cppnc/cppnc/internal/objectfile"
)

func sampleObject() *objectfile.Object {
	obj := &objectfile.Object{
		Sections: []objectfile.Section{{Name: ".text", Data: []byte{0x55, 0xC3}, Executable: true}},
	}
	obj.AddSymbol(objectfile.Symbol{Name: "main", Section: ".text", Offset: 0, Binding: objectfile.External, Defined: true})

	return obj
}

func TestRunDumpRecognizesCOFF(t *testing.T) {
	data, err := objectfile.BuildCOFF(sampleObject())
	if err != nil {
		t.Fatalf("BuildCOFF: %v", err)
	}

	if err := dumpCOFF(data); err != nil {
		t.Fatalf("dumpCOFF: %v", err)
	}
}

func TestRunDumpRecognizesELF(t *testing.T) {
	data, err := objectfile.BuildELF(sampleObject())
	if err != nil {
		t.Fatalf("BuildELF: %v", err)
	}

	if err := dumpELF(data); err != nil {
		t.Fatalf("dumpELF: %v", err)
	}
}

func TestCStringFieldStopsAtNUL(t *testing.T) {
	if got := cstringField([]byte{'a', 'b', 0, 'c'}); got != "ab" {
		t.Fatalf("expected \"ab\", got %q", got)
	}
}
