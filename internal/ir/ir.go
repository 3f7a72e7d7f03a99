// Package ir defines the three-address intermediate representation that
// internal/lower emits and internal/codegen consumes (spec.md §3.7): a
// flat sequence of typed instructions keyed to monotonically-numbered
// temporaries, with opcodes covering arithmetic, comparisons, control
// flow, scopes, arrays, members, constructors/destructors, virtual calls,
// heap allocation, exceptions, and globals.
package ir

import (
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/types"
)

// Opcode tags one IR instruction's operation.
type Opcode int

const (
	OpInvalid Opcode = iota

	// Arithmetic.
	OpAddI
	OpSubI
	OpMulI
	OpDivI
	OpModI
	OpAddU
	OpSubU
	OpMulU
	OpDivU
	OpModU
	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpNeg
	OpNegF
	OpBitNot
	OpLogNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShrArith
	OpShrLogical
	OpPreInc
	OpPreDec
	OpPostInc
	OpPostDec

	// Comparisons (signed/unsigned/float share one result shape: 0/1 into a temp).
	OpCmpEqI
	OpCmpNeI
	OpCmpLtI
	OpCmpLeI
	OpCmpGtI
	OpCmpGeI
	OpCmpLtU
	OpCmpLeU
	OpCmpGtU
	OpCmpGeU
	OpCmpEqF
	OpCmpNeF
	OpCmpLtF
	OpCmpLeF
	OpCmpGtF
	OpCmpGeF

	// Moves / casts.
	OpMove
	OpStaticCast
	OpReinterpretCast
	OpDynamicCast
	OpTypeid

	// Control flow.
	OpLabel
	OpBranch
	OpConditionalBranch
	OpLoopBegin
	OpLoopEnd
	OpBreak
	OpContinue

	// Scopes.
	OpScopeBegin
	OpScopeEnd

	// Variables / memory.
	OpVariableDecl
	OpGlobalVariableDecl
	OpLoadVar
	OpStoreVar
	OpComputeAddress
	OpAddrOf
	OpDeref
	OpFunctionAddress

	// Members.
	OpMemberLoad
	OpMemberStore
	OpMemberAddress

	// Arrays.
	OpArrayAccess
	OpArrayStore
	OpArrayElementAddress

	// Calls / functions.
	OpCall
	OpMemberFunctionCall
	OpVirtualCall
	OpConstructorCall
	OpDestructorCall
	OpReturn

	// Heap.
	OpHeapAlloc
	OpHeapAllocArray
	OpHeapFree
	OpHeapFreeArray
	OpPlacementNew

	// Exceptions.
	OpTryBegin
	OpTryEnd
	OpThrow
	OpRethrow
	OpCatchBegin
	OpCatchEnd

	// Structured bindings / lambdas.
	OpStructuredBindingBind
	OpLambdaCaptureInit
	OpInvokeLambda

	// Switch support.
	OpSwitchCaseCheck

	opcodeCount
)

var opcodeNames = [...]string{
	OpInvalid: "Invalid", OpAddI: "AddI", OpSubI: "SubI", OpMulI: "MulI", OpDivI: "DivI", OpModI: "ModI",
	OpAddU: "AddU", OpSubU: "SubU", OpMulU: "MulU", OpDivU: "DivU", OpModU: "ModU",
	OpAddF: "AddF", OpSubF: "SubF", OpMulF: "MulF", OpDivF: "DivF",
	OpNeg: "Neg", OpNegF: "NegF", OpBitNot: "BitNot", OpLogNot: "LogNot",
	OpBitAnd: "BitAnd", OpBitOr: "BitOr", OpBitXor: "BitXor", OpShl: "Shl", OpShrArith: "ShrArith", OpShrLogical: "ShrLogical",
	OpPreInc: "PreInc", OpPreDec: "PreDec", OpPostInc: "PostInc", OpPostDec: "PostDec",
	OpCmpEqI: "CmpEqI", OpCmpNeI: "CmpNeI", OpCmpLtI: "CmpLtI", OpCmpLeI: "CmpLeI", OpCmpGtI: "CmpGtI", OpCmpGeI: "CmpGeI",
	OpCmpLtU: "CmpLtU", OpCmpLeU: "CmpLeU", OpCmpGtU: "CmpGtU", OpCmpGeU: "CmpGeU",
	OpCmpEqF: "CmpEqF", OpCmpNeF: "CmpNeF", OpCmpLtF: "CmpLtF", OpCmpLeF: "CmpLeF", OpCmpGtF: "CmpGtF", OpCmpGeF: "CmpGeF",
	OpMove: "Move", OpStaticCast: "StaticCast", OpReinterpretCast: "ReinterpretCast", OpDynamicCast: "DynamicCast", OpTypeid: "Typeid",
	OpLabel: "Label", OpBranch: "Branch", OpConditionalBranch: "ConditionalBranch",
	OpLoopBegin: "LoopBegin", OpLoopEnd: "LoopEnd", OpBreak: "Break", OpContinue: "Continue",
	OpScopeBegin: "ScopeBegin", OpScopeEnd: "ScopeEnd",
	OpVariableDecl: "VariableDecl", OpGlobalVariableDecl: "GlobalVariableDecl",
	OpLoadVar: "LoadVar", OpStoreVar: "StoreVar", OpComputeAddress: "ComputeAddress",
	OpAddrOf: "AddrOf", OpDeref: "Deref", OpFunctionAddress: "FunctionAddress",
	OpMemberLoad: "MemberLoad", OpMemberStore: "MemberStore", OpMemberAddress: "MemberAddress",
	OpArrayAccess: "ArrayAccess", OpArrayStore: "ArrayStore", OpArrayElementAddress: "ArrayElementAddress",
	OpCall: "Call", OpMemberFunctionCall: "MemberFunctionCall", OpVirtualCall: "VirtualCall",
	OpConstructorCall: "ConstructorCall", OpDestructorCall: "DestructorCall", OpReturn: "Return",
	OpHeapAlloc: "HeapAlloc", OpHeapAllocArray: "HeapAllocArray", OpHeapFree: "HeapFree", OpHeapFreeArray: "HeapFreeArray", OpPlacementNew: "PlacementNew",
	OpTryBegin: "TryBegin", OpTryEnd: "TryEnd", OpThrow: "Throw", OpRethrow: "Rethrow", OpCatchBegin: "CatchBegin", OpCatchEnd: "CatchEnd",
	OpStructuredBindingBind: "StructuredBindingBind", OpLambdaCaptureInit: "LambdaCaptureInit", OpInvokeLambda: "InvokeLambda",
	OpSwitchCaseCheck: "SwitchCaseCheck",
}

// String renders an opcode's mnemonic, used by codegen diagnostics and
// debug dumps.
func (o Opcode) String() string {
	if int(o) >= 0 && int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}

	return "Opcode(?)"
}

// ValueKind tags which union member of IrValue is populated.
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueTemp
	ValueString
	ValueImmInt
	ValueImmFloat
)

// TempVar is a monotonic per-function temporary id (spec.md §3.7).
type TempVar uint32

// IrValue is the tagged union backing a TypedValue's payload: a
// temporary, an interned string, an unsigned immediate, or a floating
// immediate.
type IrValue struct {
	Kind  ValueKind
	Temp  TempVar
	Str   intern.Handle
	Int   uint64
	Float float64
}

// TypedValue pairs an IrValue with its static type, spec.md §3.7.
type TypedValue struct {
	Type         types.TypeSpecifierNode
	SizeBits     int
	Value        IrValue
	PointerDepth int
	CV           types.CV
	Ref          types.RefKind
	TypeIndex    types.Index
}

// LabelID names a branch target, unique within one function.
type LabelID uint32

// Instruction is one `{opcode, payload, source-token}` entry (spec.md
// §3.7). Only the fields relevant to Op are populated; this mirrors the
// flat tagged-struct shape internal/ast already uses for AST nodes.
type Instruction struct {
	Op   Opcode
	Span position.Span

	A, B   TypedValue
	Result TempVar

	Name intern.Handle

	Label  LabelID
	Label2 LabelID

	Offset int
	Imm    int64

	Args []TypedValue

	TypeIndex types.Index
}

// Function is one lowered function/definition: its signature plus a flat
// instruction sequence.
type Function struct {
	Name        intern.Handle
	MangledName string
	Params      []TypedValue
	Return      types.TypeSpecifierNode
	Instrs      []Instruction
	NumTemps    uint32
	NumLabels   uint32
	IsConstexpr bool
	IsConsteval bool
	IsStatic    bool
}

// GlobalVar is a file-scope or static-local variable with its
// constant-folded initial bytes (spec.md §4.5's `GlobalVariableDecl`).
type GlobalVar struct {
	Name      intern.Handle
	Type      types.TypeSpecifierNode
	InitBytes []byte
	IsStatic  bool
}

// Module collects every lowered function and global for one translation
// unit.
type Module struct {
	Functions []*Function
	Globals   []GlobalVar
}

// Builder accumulates one function's instructions, handing out fresh
// temporaries and labels as lowering requests them.
type Builder struct {
	fn *Function
}

// NewBuilder starts lowering a new function named name.
func NewBuilder(name intern.Handle, params []TypedValue, ret types.TypeSpecifierNode) *Builder {
	return &Builder{fn: &Function{Name: name, Params: params, Return: ret}}
}

// NewTemp allocates a fresh temporary id.
func (b *Builder) NewTemp() TempVar {
	t := TempVar(b.fn.NumTemps)
	b.fn.NumTemps++

	return t
}

// NewLabel allocates a fresh label id (not yet placed).
func (b *Builder) NewLabel() LabelID {
	l := LabelID(b.fn.NumLabels)
	b.fn.NumLabels++

	return l
}

// Emit appends one instruction and returns its index.
func (b *Builder) Emit(i Instruction) int {
	b.fn.Instrs = append(b.fn.Instrs, i)
	return len(b.fn.Instrs) - 1
}

// Finish returns the completed function.
func (b *Builder) Finish() *Function { return b.fn }

// TempValue wraps a temporary as an int-typed TypedValue of the given
// type, the common case when an instruction's result feeds the next.
func TempValue(t types.TypeSpecifierNode, sizeBits int, temp TempVar) TypedValue {
	return TypedValue{Type: t, SizeBits: sizeBits, Value: IrValue{Kind: ValueTemp, Temp: temp}}
}

// ImmInt wraps a signed/unsigned immediate as a TypedValue.
func ImmInt(t types.TypeSpecifierNode, sizeBits int, v uint64) TypedValue {
	return TypedValue{Type: t, SizeBits: sizeBits, Value: IrValue{Kind: ValueImmInt, Int: v}}
}

// ImmFloat wraps a floating immediate as a TypedValue.
func ImmFloat(t types.TypeSpecifierNode, sizeBits int, v float64) TypedValue {
	return TypedValue{Type: t, SizeBits: sizeBits, Value: IrValue{Kind: ValueImmFloat, Float: v}}
}
