package mangle

import (
	"strings"
	"testing"

	"github.com/cppnc/cppnc/internal/types"
)

func TestMangleItaniumFreeFunction(t *testing.T) {
	got := Mangle(Itanium, Function{
		Name:   "add",
		Params: []types.TypeSpecifierNode{{Base: types.Int}, {Base: types.Int}},
		Return: types.TypeSpecifierNode{Base: types.Int},
	})

	want := "_Z3addii"
	if got != want {
		t.Fatalf("mangleItanium: got %q want %q", got, want)
	}
}

func TestMangleItaniumNoArgs(t *testing.T) {
	got := Mangle(Itanium, Function{Name: "main", Return: types.TypeSpecifierNode{Base: types.Int}})

	if got != "_Z4mainv" {
		t.Fatalf("got %q", got)
	}
}

func TestMangleMSVCFreeFunction(t *testing.T) {
	got := Mangle(MSVC, Function{
		Name:   "add",
		Params: []types.TypeSpecifierNode{{Base: types.Int}, {Base: types.Int}},
		Return: types.TypeSpecifierNode{Base: types.Int},
	})

	if !strings.HasPrefix(got, "?add@@Y") {
		t.Fatalf("mangleMSVC: got %q", got)
	}

	if !strings.HasSuffix(got, "@Z") {
		t.Fatalf("mangleMSVC: expected @Z terminator, got %q", got)
	}
}

func TestMangleItaniumPointerParam(t *testing.T) {
	got := Mangle(Itanium, Function{
		Name:   "f",
		Params: []types.TypeSpecifierNode{{Base: types.Int, Pointers: []types.PointerLevel{{}}}},
		Return: types.TypeSpecifierNode{Base: types.Void},
	})

	if got != "_Z1fPi" {
		t.Fatalf("got %q want _Z1fPi", got)
	}
}
