// Package ast defines the compiler's abstract syntax tree (spec.md §3.4):
// a tagged sum of node kinds stored in an arena and referenced by value
// handles, so that speculative parsing can roll back the arena's length
// atomically on backtrack (spec.md §4.3, §9).
package ast

import (
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/types"
)

// Handle is a stable index into an Arena. The zero value, NoHandle, never
// refers to a real node.
type Handle uint32

// NoHandle marks "absent child".
const NoHandle Handle = 0

// Kind tags the ~80 node variants named in spec.md §3.4. Expression kinds
// and declaration/statement kinds share one tag space so a single Arena
// can hold the whole tree.
type Kind int

const (
	KindInvalid Kind = iota

	// Declarations.
	KindDeclaration
	KindFunctionDeclaration
	KindConstructorDeclaration
	KindStructDeclaration
	KindVariableDeclaration
	KindTemplateFunctionDeclaration
	KindTemplateVariableDeclaration
	KindTemplateClassDeclaration
	KindEnumDeclaration
	KindNamespaceDeclaration

	// Statements.
	KindBlock
	KindIfStatement
	KindForStatement
	KindWhileStatement
	KindDoWhileStatement
	KindRangedForStatement
	KindSwitchStatement
	KindCaseLabel
	KindDefaultLabel
	KindTryStatement
	KindCatchClause
	KindThrowStatement
	KindReturnStatement
	KindBreakStatement
	KindContinueStatement
	KindGotoStatement
	KindLabelStatement
	KindStructuredBinding
	KindExpressionStatement

	// Expressions.
	KindNumericLiteral
	KindBoolLiteral
	KindStringLiteral
	KindIdentifier
	KindBinaryOperator
	KindUnaryOperator
	KindTernaryOperator
	KindFunctionCall
	KindMemberAccess
	KindMemberFunctionCall
	KindArraySubscript
	KindConstructorCall
	KindStaticCast
	KindReinterpretCast
	KindSizeofExpr
	KindSizeofPack
	KindAlignofExpr
	KindTypeTraitExpr
	KindLambdaExpression
	KindFoldExpression
	KindPackExpansionExpr
	KindTemplateParameterReference
	KindQualifiedIdentifier
	KindInitializerList
)

// BinaryOp enumerates binary operator spellings.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpAssign
	OpComma
)

// UnaryOp enumerates unary/prefix operator spellings.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpNot
	OpBitNot
	OpPreInc
	OpPreDec
	OpPostInc
	OpPostDec
	OpAddrOf
	OpDeref
)

// Node is the tagged union itself. Only the fields relevant to Kind are
// populated; this mirrors the teacher's flat-struct approach in
// internal/ast rather than an interface-per-variant hierarchy, so pattern
// matching is a switch on Kind rather than a type switch plus dynamic
// dispatch (spec.md §9, "Deep inheritance in the AST").
type Node struct {
	Kind Kind
	Span position.Span

	// Shared identity fields.
	Name    intern.Handle
	Type    types.TypeSpecifierNode
	Int     int64
	UInt    uint64
	Float   float64
	IsFloat bool // a NumericLiteral's Float member is the live one
	Bool    bool
	Str     intern.Handle
	BinOp   BinaryOp
	UnOp    UnaryOp

	// Children: reused across variants by position, documented per Kind
	// at each construction site in the parser.
	A, B, C, D Handle
	List       []Handle

	// Late-bound fields, set after initial construction (spec.md §3.4
	// "Ownership": immutable except for late-binding fields).
	Body        Handle // function body, set once parsed
	StructIndex types.Index
	IsConstexpr bool
	IsConsteval bool
	IsStatic    bool
	IsVirtual   bool

	// Template-specific.
	TemplateParams []TemplateParam
	TemplateArgs   []TemplateArg
}

// TemplateParam describes one declared template parameter.
type TemplateParam struct {
	Name       intern.Handle
	IsType     bool // true: type parameter, false: non-type (value) parameter
	IsPack     bool
	NonTypeTy  types.TypeSpecifierNode // valid when !IsType
	DefaultArg *TemplateArg
}

// TemplateArg is either a resolved type or a constant value argument,
// spec.md §3.6.
type TemplateArg struct {
	IsType bool
	Type   types.TypeSpecifierNode
	IntVal int64
	BoolVal bool
}

// Arena owns every Node for the duration of one compilation. Children are
// referenced by Handle, not pointer, so a saved arena length is a valid
// rollback point for speculative parsing (spec.md §4.3).
type Arena struct {
	nodes []Node // nodes[0] is the reserved NoHandle slot
}

// NewArena creates an empty arena with the NoHandle slot reserved.
func NewArena() *Arena {
	return &Arena{nodes: []Node{{Kind: KindInvalid}}}
}

// Alloc appends n and returns its stable Handle.
func (a *Arena) Alloc(n Node) Handle {
	h := Handle(len(a.nodes))
	a.nodes = append(a.nodes, n)

	return h
}

// Get dereferences a Handle. Panics on an out-of-range handle (always an
// internal-compiler-error: the handle would have to come from outside
// this arena or from stale state after a rollback).
func (a *Arena) Get(h Handle) *Node {
	return &a.nodes[h]
}

// Len reports the current number of allocated nodes, used as a
// speculative-parse snapshot together with the lexer cursor.
func (a *Arena) Len() int { return len(a.nodes) }

// Rollback truncates the arena back to a previously observed Len(),
// discarding every node allocated since. This is the AST half of the
// parser's ScopedTokenPosition atomic revert (spec.md §4.3).
func (a *Arena) Rollback(mark int) {
	a.nodes = a.nodes[:mark]
}
