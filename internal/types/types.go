// Package types implements the global type registry (spec.md §3.3):
// TypeIndex-indexed TypeInfo records for every scalar, struct, and enum
// type the parser registers, plus the TypeSpecifierNode surface syntax
// composition (pointer levels, reference kind, array dimensions, CV
// qualifiers) that declarations carry before they resolve to a TypeIndex.
package types

import "github.com/cppnc/cppnc/internal/intern"

// Kind enumerates the base type categories of spec.md §3.3.
type Kind int

const (
	Void Kind = iota
	Bool
	Char
	SignedChar
	UnsignedChar
	Short
	UnsignedShort
	Int
	UnsignedInt
	Long
	UnsignedLong
	LongLong
	UnsignedLongLong
	Float
	Double
	LongDouble
	Struct
	Enum
	Auto
	FunctionPointer
	UserDefined
)

// builtinSizes gives the byte size of every scalar Kind under the x86-64
// System V / Windows data model (LP64 / LLP64 agree on these).
var builtinSizes = map[Kind]int{
	Void: 0, Bool: 1, Char: 1, SignedChar: 1, UnsignedChar: 1,
	Short: 2, UnsignedShort: 2,
	Int: 4, UnsignedInt: 4,
	Long: 8, UnsignedLong: 8, LongLong: 8, UnsignedLongLong: 8,
	Float: 4, Double: 8, LongDouble: 16,
}

// builtinAlign mirrors builtinSizes for natural alignment; identical for
// every scalar on this target.
func builtinAlign(k Kind) int { return builtinSizes[k] }

// Qualifier is the explicit signed/unsigned spelling on an integer type,
// independent of whether the Kind itself already implies signedness.
type Qualifier int

const (
	QualNone Qualifier = iota
	QualSigned
	QualUnsigned
)

// RefKind distinguishes no-reference / lvalue-reference / rvalue-reference.
type RefKind int

const (
	RefNone RefKind = iota
	RefLValue
	RefRValue
)

// CV is a const/volatile qualifier pair, bit-packed as in MSVC mangling
// (A=none, B=const, C=volatile, D=const volatile) for direct reuse by the
// mangler.
type CV int

const (
	CVNone CV = iota
	CVConst
	CVVolatile
	CVConstVolatile
)

// PointerLevel is one `*` in a declarator, with its own CV qualifier
// (`char * const *`).
type PointerLevel struct {
	CV CV
}

// TypeSpecifierNode is the surface-syntax composition of a declared type,
// spec.md §3.3: base kind, qualifier, explicit bit width, pointer levels,
// reference kind, CV on the referent, array dimensions, and (once
// resolved) an index into the global registry.
type TypeSpecifierNode struct {
	Base      Kind
	Qualifier Qualifier
	SizeBits  int // explicit width override, 0 = use builtinSizes*8
	Pointers  []PointerLevel
	Ref       RefKind
	RefCV     CV
	ArrayDims []int // outer-to-inner; a dependent dimension is encoded as -1
	Index     Index // resolved registry entry for Struct/Enum/UserDefined
}

// IsPointer reports whether the declarator has at least one pointer level.
func (t TypeSpecifierNode) IsPointer() bool { return len(t.Pointers) > 0 }

// IsReference reports whether the declarator is a reference type.
func (t TypeSpecifierNode) IsReference() bool { return t.Ref != RefNone }

// IsArray reports whether the declarator has array dimensions.
func (t TypeSpecifierNode) IsArray() bool { return len(t.ArrayDims) > 0 }

// PointerWidth is the byte size of every pointer and reference on this
// target (x86-64, both COFF and ELF).
const PointerWidth = 8

// Index is a stable 32-bit identifier into the global type registry
// (spec's TypeIndex).
type Index uint32

// Invalid marks "no resolved type yet".
const Invalid Index = 0

// Member describes one non-static data member of a struct.
type Member struct {
	Name        intern.Handle
	Type        TypeSpecifierNode
	Offset      int
	Size        int
	Access      Access
	HasDefault  bool
	IsReference bool
}

// StaticMember describes a static data member, optionally constexpr.
type StaticMember struct {
	Name           intern.Handle
	Type           TypeSpecifierNode
	Access         Access
	IsConstexpr    bool
	ConstexprValue int64 // valid iff IsConstexpr
}

// Access is the C++ access-control level.
type Access int

const (
	AccessPublic Access = iota
	AccessProtected
	AccessPrivate
)

// MemberFunctionKind distinguishes constructor/destructor/conversion/etc.
type MemberFunctionKind int

const (
	MFRegular MemberFunctionKind = iota
	MFConstructor
	MFDestructor
	MFConversion
	MFOperator
)

// MemberFunction is a struct's declared member function signature, enough
// for overload lookup and vtable slot assignment; the body lives on the
// AST node referenced by ASTNode.
type MemberFunction struct {
	Name      intern.Handle
	Kind      MemberFunctionKind
	Params    []TypeSpecifierNode
	Return    TypeSpecifierNode
	IsVirtual bool
	VTableIdx int // valid iff IsVirtual
	Access    Access
	ASTNode   uint32 // ast.NodeHandle, kept as uint32 to avoid an import cycle
}

// BaseClass records one base in a (possibly multiple) inheritance list.
type BaseClass struct {
	Type      Index
	Offset    int
	IsVirtual bool
	Access    Access
}

// StructTypeInfo is the registry payload for a struct/class type,
// spec.md §3.3.
type StructTypeInfo struct {
	Members           []Member
	StaticMembers      []StaticMember
	MemberFunctions    []MemberFunction
	Bases              []BaseClass
	HasVTable          bool
	IsAbstract         bool
	NeedsDefaultCtor   bool
	DefaultCtorDeleted bool
	HasDefaultMemberInits bool
}

// Enumerator is one named value of an enum.
type Enumerator struct {
	Name  intern.Handle
	Value int64
}

// EnumTypeInfo is the registry payload for an enum/enum class type.
type EnumTypeInfo struct {
	Underlying Kind
	Scoped     bool
	Enumerators []Enumerator
}

// TypeInfo is one registry entry: a name, a kind, byte size/alignment, and
// an optional struct or enum payload.
type TypeInfo struct {
	Name      intern.Handle
	Kind      Kind
	Size      int
	Alignment int
	Struct    *StructTypeInfo // non-nil iff Kind == Struct
	Enum      *EnumTypeInfo   // non-nil iff Kind == Enum
}

// Registry is the process-wide, append-only type table keyed by Index.
type Registry struct {
	entries []TypeInfo // entries[0] is the reserved Invalid slot
	byName  map[intern.Handle]Index
}

// NewRegistry creates a registry holding only the reserved Invalid slot;
// built-in scalar kinds are not registered and are sized from their Kind
// by SizeOf/AlignOf.
func NewRegistry() *Registry {
	r := &Registry{entries: []TypeInfo{{}}, byName: map[intern.Handle]Index{}}
	return r
}

// Define registers a new TypeInfo and returns its Index. Redefinition
// under the same name is the caller's (parser's) responsibility to
// reject; Define itself always allocates a fresh slot.
func (r *Registry) Define(info TypeInfo) Index {
	idx := Index(len(r.entries))
	r.entries = append(r.entries, info)

	if info.Name != intern.Invalid {
		r.byName[info.Name] = idx
	}

	return idx
}

// Lookup resolves a previously Define'd type by name.
func (r *Registry) Lookup(name intern.Handle) (Index, bool) {
	idx, ok := r.byName[name]
	return idx, ok
}

// Get dereferences an Index to its TypeInfo. Panics on an out-of-range
// index, which is always an internal-compiler-error.
func (r *Registry) Get(idx Index) *TypeInfo {
	return &r.entries[idx]
}

// SizeOf computes sizeof(T) for a fully resolved TypeSpecifierNode,
// spec.md §8 invariant 5: arrays multiply element size by dimension
// product, pointers and references are PointerWidth, everything else
// comes from the base Kind or the registry entry it resolved to.
func (r *Registry) SizeOf(t TypeSpecifierNode) int {
	if t.IsReference() {
		return PointerWidth
	}

	if len(t.Pointers) > 0 {
		return PointerWidth
	}

	elemSize := r.scalarOrNamedSize(t)

	for _, dim := range t.ArrayDims {
		if dim < 0 {
			return -1 // template-dependent; caller must defer
		}

		elemSize *= dim
	}

	return elemSize
}

func (r *Registry) scalarOrNamedSize(t TypeSpecifierNode) int {
	if t.Base == Struct || t.Base == Enum || t.Base == UserDefined {
		if t.Index != Invalid {
			return r.Get(t.Index).Size
		}

		return 0
	}

	if t.SizeBits > 0 {
		return t.SizeBits / 8
	}

	return builtinSizes[t.Base]
}

// AlignOf computes alignof(T) analogously to SizeOf.
func (r *Registry) AlignOf(t TypeSpecifierNode) int {
	if t.IsReference() || len(t.Pointers) > 0 {
		return PointerWidth
	}

	if t.Base == Struct || t.Base == Enum || t.Base == UserDefined {
		if t.Index != Invalid {
			return r.Get(t.Index).Alignment
		}

		return 1
	}

	return builtinAlign(t.Base)
}

// LayoutStruct assigns member offsets in declaration order respecting
// each member's natural alignment and returns the laid-out members, the
// total size (rounded up to the struct's alignment) and that alignment.
// This is the struct-layout algorithm invoked once all of
// a class's members have been parsed.
func (r *Registry) LayoutStruct(members []Member, bases []BaseClass) (laidOut []Member, totalSize, alignment int) {
	cursor := 0
	align := 1

	for _, b := range bases {
		bi := r.Get(b.Type)
		if bi.Alignment > align {
			align = bi.Alignment
		}

		cursor = alignUp(cursor, bi.Alignment) + bi.Size
	}

	out := make([]Member, len(members))

	for i, m := range members {
		msz := r.SizeOf(m.Type)
		ma := r.AlignOf(m.Type)

		if ma > align {
			align = ma
		}

		cursor = alignUp(cursor, ma)
		m.Offset = cursor
		m.Size = msz
		cursor += msz
		out[i] = m
	}

	total := alignUp(cursor, align)

	return out, total, align
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}

	return (v + align - 1) &^ (align - 1)
}
