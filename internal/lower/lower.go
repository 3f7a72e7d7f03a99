// Package lower walks the parsed AST and emits internal/ir instructions,
// implementing the per-construct lowering table of spec.md §4.5: blocks
// push/pop a scope, variable declarations bind a fresh temporary,
// if/ternary lower to compare-and-branch, loops bracket their bodies in
// LoopBegin/LoopEnd with resolved break/continue targets, switch lowers
// to a linear comparison chain with preserved fall-through, try/catch
// brackets handler regions for the LSDA, and every exit path leaves the
// function's label/branch graph internally consistent (every branch
// target is placed exactly once before the function is finished).
package lower

import (
	"encoding/binary"
	"fmt"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/consteval"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// Lowerer holds the shared stores needed to turn one translation unit's
// AST into an ir.Module.
type Lowerer struct {
	Strings *intern.Interner
	Types   *types.Registry
	Arena   *ast.Arena
	Symbols *symtab.Table

	// NoExceptions rewrites `throw` into an abort call and suppresses
	// try/catch regions (spec.md §6.1, -fno-exceptions).
	NoExceptions bool

	b      *ir.Builder
	scopes []map[intern.Handle]local

	breakTargets    []ir.LabelID
	continueTargets []ir.LabelID

	namedLabels map[intern.Handle]ir.LabelID
	placed      map[intern.Handle]bool

	hiddenCounter int
}

type local struct {
	temp  ir.TempVar
	typ   types.TypeSpecifierNode
	isRef bool // slot holds a pointer to the object, not the object
}

// New creates a Lowerer sharing the given process-wide stores.
func New(strs *intern.Interner, tys *types.Registry, arena *ast.Arena, syms *symtab.Table) *Lowerer {
	return &Lowerer{Strings: strs, Types: tys, Arena: arena, Symbols: syms}
}

// LowerTranslationUnit lowers every function definition in decls into one
// ir.Module, descending into namespace bodies, and collects file-scope
// variable declarations as globals with constant-folded initial bytes
// (spec.md §4.5's GlobalVariableDecl row). Declarations with no body
// (prototypes) and pure type declarations contribute only to the type
// registry and the constant evaluator, not to emitted code.
func (l *Lowerer) LowerTranslationUnit(decls []ast.Handle) (*ir.Module, error) {
	mod := &ir.Module{}

	if err := l.lowerDecls(decls, mod); err != nil {
		return nil, err
	}

	return mod, nil
}

func (l *Lowerer) lowerDecls(decls []ast.Handle, mod *ir.Module) error {
	for _, h := range decls {
		n := l.Arena.Get(h)

		switch n.Kind {
		case ast.KindNamespaceDeclaration:
			if err := l.lowerDecls(n.List, mod); err != nil {
				return err
			}
		case ast.KindFunctionDeclaration:
			if n.Body == ast.NoHandle {
				continue
			}

			fn, err := l.LowerFunction(h)
			if err != nil {
				return err
			}

			mod.Functions = append(mod.Functions, fn)
		case ast.KindVariableDeclaration:
			g, err := l.lowerGlobal(n)
			if err != nil {
				return err
			}

			mod.Globals = append(mod.Globals, g)
		}
	}

	return nil
}

// lowerGlobal computes a file-scope variable's initial bytes with the
// constant evaluator and returns the GlobalVar record the code generator
// places into .data/.bss.
func (l *Lowerer) lowerGlobal(n *ast.Node) (ir.GlobalVar, error) {
	size := l.Types.SizeOf(n.Type)
	if size <= 0 {
		size = types.PointerWidth
	}

	g := ir.GlobalVar{Name: n.Name, Type: n.Type, IsStatic: n.IsStatic, InitBytes: make([]byte, size)}

	if n.Body == ast.NoHandle {
		return g, nil
	}

	ctx := consteval.NewContext(l.Strings, l.Symbols, l.Types, l.Arena)

	v, err := ctx.Evaluate(n.Body)
	if err != nil {
		return ir.GlobalVar{}, err
	}

	var raw [8]byte

	binary.LittleEndian.PutUint64(raw[:], uint64(v.AsInt64()))

	if size > len(raw) {
		copy(g.InitBytes, raw[:])
	} else {
		copy(g.InitBytes, raw[:size])
	}

	return g, nil
}

// LowerFunction lowers one function declaration (with a body) to an
// ir.Function. A function whose body uses a construct this lowering pass
// does not support fails with a KindCodegen error isolated to this one
// function (spec.md §7), leaving every other function in the module
// unaffected.
func (l *Lowerer) LowerFunction(h ast.Handle) (*ir.Function, error) {
	n := l.Arena.Get(h)

	var params []ir.TypedValue

	l.scopes = []map[intern.Handle]local{{}}
	l.breakTargets = nil
	l.continueTargets = nil
	l.namedLabels = map[intern.Handle]ir.LabelID{}
	l.placed = map[intern.Handle]bool{}
	l.b = ir.NewBuilder(n.Name, nil, n.Type)

	for _, ph := range n.List {
		p := l.Arena.Get(ph)
		t := l.b.NewTemp()

		size := l.Types.SizeOf(p.Type) * 8
		tv := ir.TempValue(p.Type, size, t)
		params = append(params, tv)
		l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: t, Name: p.Name, TypeIndex: p.Type.Index, Imm: int64(size / 8), Span: p.Span})
		l.scopes[len(l.scopes)-1][p.Name] = local{temp: t, typ: p.Type, isRef: p.Type.IsReference()}
	}

	l.b.Finish().Params = params

	if err := l.lowerStatement(n.Body); err != nil {
		return nil, cerr.New(cerr.KindCodegen, n.Span, "lowering %q: %v", l.Strings.View(n.Name), err)
	}

	for name, id := range l.namedLabels {
		if !l.placed[name] {
			return nil, cerr.New(cerr.KindCodegen, n.Span, "lowering %q: goto targets undeclared label %q (label id %d)",
				l.Strings.View(n.Name), l.Strings.View(name), id)
		}
	}

	fn := l.b.Finish()
	fn.IsConstexpr = n.IsConstexpr
	fn.IsConsteval = n.IsConsteval
	fn.IsStatic = n.IsStatic

	return fn, nil
}

func (l *Lowerer) pushScope() { l.scopes = append(l.scopes, map[intern.Handle]local{}) }
func (l *Lowerer) popScope()  { l.scopes = l.scopes[:len(l.scopes)-1] }

func (l *Lowerer) bindLocal(name intern.Handle, t ir.TempVar, ty types.TypeSpecifierNode) {
	l.scopes[len(l.scopes)-1][name] = local{temp: t, typ: ty}
}

func (l *Lowerer) bindRef(name intern.Handle, t ir.TempVar, ty types.TypeSpecifierNode) {
	l.scopes[len(l.scopes)-1][name] = local{temp: t, typ: ty, isRef: true}
}

func (l *Lowerer) lookupLocal(name intern.Handle) (local, bool) {
	for i := len(l.scopes) - 1; i >= 0; i-- {
		if v, ok := l.scopes[i][name]; ok {
			return v, true
		}
	}

	return local{}, false
}

// hiddenName synthesizes a unique local name for compiler-introduced
// variables (range pointers, materialized temporaries).
func (l *Lowerer) hiddenName(prefix string) intern.Handle {
	l.hiddenCounter++
	return l.Strings.Intern(fmt.Sprintf("__%s%d", prefix, l.hiddenCounter))
}

func (l *Lowerer) namedLabel(name intern.Handle) ir.LabelID {
	if id, ok := l.namedLabels[name]; ok {
		return id
	}

	id := l.b.NewLabel()
	l.namedLabels[name] = id

	return id
}

func (l *Lowerer) lowerStatement(h ast.Handle) error {
	n := l.Arena.Get(h)

	switch n.Kind {
	case ast.KindBlock:
		l.b.Emit(ir.Instruction{Op: ir.OpScopeBegin, Span: n.Span})
		l.pushScope()

		for _, s := range n.List {
			if err := l.lowerStatement(s); err != nil {
				l.popScope()
				return err
			}
		}

		l.popScope()
		l.b.Emit(ir.Instruction{Op: ir.OpScopeEnd, Span: n.Span})

		return nil
	case ast.KindExpressionStatement:
		if n.A == ast.NoHandle {
			return nil
		}

		_, err := l.lowerExpr(n.A)

		return err
	case ast.KindReturnStatement:
		var val ir.TypedValue

		if n.A != ast.NoHandle {
			v, err := l.lowerExpr(n.A)
			if err != nil {
				return err
			}

			val = v
		}

		l.b.Emit(ir.Instruction{Op: ir.OpReturn, A: val, Span: n.Span})

		return nil
	case ast.KindVariableDeclaration:
		return l.lowerVariableDecl(n)
	case ast.KindIfStatement:
		return l.lowerIf(n)
	case ast.KindWhileStatement:
		return l.lowerWhile(n)
	case ast.KindForStatement:
		return l.lowerFor(n)
	case ast.KindDoWhileStatement:
		return l.lowerDoWhile(n)
	case ast.KindRangedForStatement:
		return l.lowerRangedFor(n)
	case ast.KindSwitchStatement:
		return l.lowerSwitch(n)
	case ast.KindBreakStatement:
		if len(l.breakTargets) == 0 {
			return cerr.New(cerr.KindCodegen, n.Span, "break outside of a loop or switch")
		}

		l.b.Emit(ir.Instruction{Op: ir.OpBreak, Label: l.breakTargets[len(l.breakTargets)-1], Span: n.Span})

		return nil
	case ast.KindContinueStatement:
		if len(l.continueTargets) == 0 {
			return cerr.New(cerr.KindCodegen, n.Span, "continue outside of a loop")
		}

		l.b.Emit(ir.Instruction{Op: ir.OpContinue, Label: l.continueTargets[len(l.continueTargets)-1], Span: n.Span})

		return nil
	case ast.KindGotoStatement:
		l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: l.namedLabel(n.Name), Span: n.Span})
		return nil
	case ast.KindLabelStatement:
		l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: l.namedLabel(n.Name), Span: n.Span})
		l.placed[n.Name] = true

		return nil
	case ast.KindTryStatement:
		return l.lowerTry(n)
	case ast.KindThrowStatement:
		return l.lowerThrow(n)
	case ast.KindStructuredBinding:
		return l.lowerStructuredBinding(n)
	default:
		return cerr.New(cerr.KindCodegen, n.Span, "statement kind %v is not lowered yet", n.Kind)
	}
}

// lowerVariableDecl emits a local variable's slot plus its initializer:
// scalar stores for scalars, per-element ArrayStore for brace-initialized
// arrays, per-member MemberStore for brace-initialized aggregates
// (spec.md §4.5's variable-declaration row).
func (l *Lowerer) lowerVariableDecl(n *ast.Node) error {
	t := l.b.NewTemp()
	size := l.Types.SizeOf(n.Type)

	if size <= 0 {
		size = types.PointerWidth
	}

	l.b.Emit(ir.Instruction{
		Op: ir.OpVariableDecl, Result: t, Name: n.Name,
		TypeIndex: n.Type.Index, Imm: int64(size), Span: n.Span,
	})
	l.bindLocal(n.Name, t, n.Type)

	if n.Body == ast.NoHandle {
		return nil
	}

	init := l.Arena.Get(n.Body)

	switch {
	case init.Kind == ast.KindInitializerList && n.Type.IsArray():
		elemTy := n.Type
		elemTy.ArrayDims = nil
		elemSize := l.Types.SizeOf(elemTy)

		for i, e := range init.List {
			v, err := l.lowerExpr(e)
			if err != nil {
				return err
			}

			idx := ir.ImmInt(types.TypeSpecifierNode{Base: types.Int}, 32, uint64(i))
			l.b.Emit(ir.Instruction{Op: ir.OpArrayStore, Name: n.Name, A: idx, B: v, Imm: int64(elemSize), Span: n.Span})
		}

		return nil
	case init.Kind == ast.KindInitializerList || init.Kind == ast.KindConstructorCall:
		if n.Type.Index != types.Invalid && l.Types.Get(n.Type.Index).Struct != nil {
			return l.storeAggregate(n.Name, n.Type.Index, init.List, n)
		}

		// Scalar brace init: `int x{5};`.
		if len(init.List) == 1 {
			v, err := l.lowerExpr(init.List[0])
			if err != nil {
				return err
			}

			l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, Result: t, A: v, Name: n.Name, Span: n.Span})
		}

		return nil
	default:
		v, err := l.lowerExpr(n.Body)
		if err != nil {
			return err
		}

		l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, Result: t, A: v, Name: n.Name, Span: n.Span})

		return nil
	}
}

// storeAggregate stores one initializer expression per member, in
// declaration order, into the named aggregate variable.
func (l *Lowerer) storeAggregate(name intern.Handle, idx types.Index, inits []ast.Handle, n *ast.Node) error {
	info := l.Types.Get(idx).Struct

	if len(inits) > len(info.Members) {
		return cerr.New(cerr.KindCodegen, n.Span, "too many initializers for %q", l.Strings.View(l.Types.Get(idx).Name))
	}

	for i, e := range inits {
		v, err := l.lowerExpr(e)
		if err != nil {
			return err
		}

		m := info.Members[i]
		v.SizeBits = m.Size * 8 // store exactly the member's width
		l.b.Emit(ir.Instruction{
			Op: ir.OpMemberStore, Name: name, Offset: m.Offset, A: v, Span: n.Span,
		})
	}

	return nil
}

func (l *Lowerer) lowerIf(n *ast.Node) error {
	if n.D != ast.NoHandle {
		if err := l.lowerStatement(n.D); err != nil {
			return err
		}
	}

	// `if constexpr` evaluates the condition at compile time and lowers
	// exactly one branch (spec.md §4.5).
	if n.IsConstexpr {
		ctx := consteval.NewContext(l.Strings, l.Symbols, l.Types, l.Arena)

		v, err := ctx.Evaluate(n.A)
		if err != nil {
			return err
		}

		if v.Truthy() {
			return l.lowerStatement(n.B)
		}

		if n.C != ast.NoHandle {
			return l.lowerStatement(n.C)
		}

		return nil
	}

	cond, err := l.lowerExpr(n.A)
	if err != nil {
		return err
	}

	elseLabel := l.b.NewLabel()
	endLabel := l.b.NewLabel()

	l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: cond, Label: elseLabel, Span: n.Span})

	if err := l.lowerStatement(n.B); err != nil {
		return err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: endLabel, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: elseLabel, Span: n.Span})

	if n.C != ast.NoHandle {
		if err := l.lowerStatement(n.C); err != nil {
			return err
		}
	}

	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: endLabel, Span: n.Span})

	return nil
}

// lowerExpr lowers one expression to the TypedValue holding its result,
// emitting whatever instructions are needed to compute it.
func (l *Lowerer) lowerExpr(h ast.Handle) (ir.TypedValue, error) {
	n := l.Arena.Get(h)

	switch n.Kind {
	case ast.KindNumericLiteral:
		if n.IsFloat {
			return ir.ImmFloat(types.TypeSpecifierNode{Base: types.Double}, 64, n.Float), nil
		}

		return ir.ImmInt(types.TypeSpecifierNode{Base: types.Int}, 32, n.UInt), nil
	case ast.KindBoolLiteral:
		v := uint64(0)
		if n.Bool {
			v = 1
		}

		return ir.ImmInt(types.TypeSpecifierNode{Base: types.Bool}, 8, v), nil
	case ast.KindIdentifier:
		return l.lowerIdentifier(n)
	case ast.KindQualifiedIdentifier:
		return l.lowerQualifiedIdentifier(h, n)
	case ast.KindBinaryOperator:
		return l.lowerBinary(n)
	case ast.KindUnaryOperator:
		return l.lowerUnary(n)
	case ast.KindTernaryOperator:
		return l.lowerTernary(n)
	case ast.KindFunctionCall:
		return l.lowerCall(n)
	case ast.KindMemberAccess:
		return l.lowerMemberAccess(n)
	case ast.KindArraySubscript:
		return l.lowerArraySubscript(n)
	case ast.KindConstructorCall:
		return l.lowerConstructorCall(n)
	case ast.KindStaticCast, ast.KindReinterpretCast:
		return l.lowerCast(n)
	case ast.KindSizeofExpr:
		sz := l.Types.SizeOf(n.Type)
		if sz < 0 {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "sizeof of a dependent type reached codegen unresolved")
		}

		return ir.ImmInt(types.TypeSpecifierNode{Base: types.UnsignedLong}, 64, uint64(sz)), nil
	case ast.KindAlignofExpr:
		return ir.ImmInt(types.TypeSpecifierNode{Base: types.UnsignedLong}, 64, uint64(l.Types.AlignOf(n.Type))), nil
	default:
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "expression kind %v is not lowered yet", n.Kind)
	}
}

// lowerIdentifier loads a local (dereferencing reference bindings), an
// enumerator's value, or a constexpr global's folded value.
func (l *Lowerer) lowerIdentifier(n *ast.Node) (ir.TypedValue, error) {
	if loc, ok := l.lookupLocal(n.Name); ok {
		t := l.b.NewTemp()
		size := l.Types.SizeOf(loc.typ) * 8
		l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: t, Name: n.Name, Span: n.Span})

		if loc.isRef && !loc.typ.IsArray() && loc.typ.Index == types.Invalid {
			// Reference to a scalar: the slot holds a pointer, load through it.
			d := l.b.NewTemp()
			l.b.Emit(ir.Instruction{Op: ir.OpDeref, A: ir.TempValue(loc.typ, 64, t), Imm: int64(l.Types.SizeOf(loc.typ)), Result: d, Span: n.Span})

			return ir.TempValue(loc.typ, size, d), nil
		}

		return ir.TempValue(loc.typ, size, t), nil
	}

	for _, cand := range l.Symbols.LookupAll(n.Name) {
		switch cand.Kind {
		case symtab.DeclEnumerator:
			v := l.Arena.Get(ast.Handle(cand.ASTNode))
			return ir.ImmInt(types.TypeSpecifierNode{Base: types.Int}, 32, uint64(v.Int)), nil
		case symtab.DeclVariable:
			decl := l.Arena.Get(ast.Handle(cand.ASTNode))
			if decl.IsConstexpr && decl.Body != ast.NoHandle {
				ctx := consteval.NewContext(l.Strings, l.Symbols, l.Types, l.Arena)

				v, err := ctx.Evaluate(decl.Body)
				if err == nil {
					return ir.ImmInt(decl.Type, l.Types.SizeOf(decl.Type)*8, uint64(v.AsInt64())), nil
				}
			}

			// A non-constexpr global: load it through its symbol.
			t := l.b.NewTemp()
			l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: t, Name: n.Name, Imm: 1, Span: n.Span})

			return ir.TempValue(decl.Type, l.Types.SizeOf(decl.Type)*8, t), nil
		}
	}

	return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local, parameter, enumerator, or global", l.Strings.View(n.Name))
}

// lowerQualifiedIdentifier folds `S<T>::v` / `E::A` to its constant
// (both are compile-time values in this subset).
func (l *Lowerer) lowerQualifiedIdentifier(h ast.Handle, n *ast.Node) (ir.TypedValue, error) {
	ctx := consteval.NewContext(l.Strings, l.Symbols, l.Types, l.Arena)

	v, err := ctx.Evaluate(h)
	if err != nil {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "qualified name is not a compile-time constant: %v", err)
	}

	return ir.ImmInt(types.TypeSpecifierNode{Base: types.Int}, 32, uint64(v.AsInt64())), nil
}

var binOpcode = map[ast.BinaryOp]ir.Opcode{
	ast.OpAdd: ir.OpAddI, ast.OpSub: ir.OpSubI, ast.OpMul: ir.OpMulI, ast.OpDiv: ir.OpDivI, ast.OpMod: ir.OpModI,
	ast.OpEq: ir.OpCmpEqI, ast.OpNe: ir.OpCmpNeI, ast.OpLt: ir.OpCmpLtI, ast.OpLe: ir.OpCmpLeI, ast.OpGt: ir.OpCmpGtI, ast.OpGe: ir.OpCmpGeI,
	ast.OpBitAnd: ir.OpBitAnd, ast.OpBitOr: ir.OpBitOr, ast.OpBitXor: ir.OpBitXor, ast.OpShl: ir.OpShl, ast.OpShr: ir.OpShrArith,
}

var unsignedBinOpcode = map[ast.BinaryOp]ir.Opcode{
	ast.OpAdd: ir.OpAddU, ast.OpSub: ir.OpSubU, ast.OpMul: ir.OpMulU, ast.OpDiv: ir.OpDivU, ast.OpMod: ir.OpModU,
	ast.OpEq: ir.OpCmpEqI, ast.OpNe: ir.OpCmpNeI, ast.OpLt: ir.OpCmpLtU, ast.OpLe: ir.OpCmpLeU, ast.OpGt: ir.OpCmpGtU, ast.OpGe: ir.OpCmpGeU,
	ast.OpBitAnd: ir.OpBitAnd, ast.OpBitOr: ir.OpBitOr, ast.OpBitXor: ir.OpBitXor, ast.OpShl: ir.OpShl, ast.OpShr: ir.OpShrLogical,
}

var floatBinOpcode = map[ast.BinaryOp]ir.Opcode{
	ast.OpAdd: ir.OpAddF, ast.OpSub: ir.OpSubF, ast.OpMul: ir.OpMulF, ast.OpDiv: ir.OpDivF,
	ast.OpEq: ir.OpCmpEqF, ast.OpNe: ir.OpCmpNeF, ast.OpLt: ir.OpCmpLtF, ast.OpLe: ir.OpCmpLeF, ast.OpGt: ir.OpCmpGtF, ast.OpGe: ir.OpCmpGeF,
}

func isFloatBase(b types.Kind) bool {
	return b == types.Float || b == types.Double || b == types.LongDouble
}

func isUnsignedBase(b types.Kind) bool {
	switch b {
	case types.UnsignedChar, types.UnsignedShort, types.UnsignedInt, types.UnsignedLong, types.UnsignedLongLong:
		return true
	default:
		return false
	}
}

func (l *Lowerer) lowerBinary(n *ast.Node) (ir.TypedValue, error) {
	if n.BinOp == ast.OpAssign {
		return l.lowerAssign(n)
	}

	if n.BinOp == ast.OpComma {
		if _, err := l.lowerExpr(n.A); err != nil {
			return ir.TypedValue{}, err
		}

		return l.lowerExpr(n.B)
	}

	a, err := l.lowerExpr(n.A)
	if err != nil {
		return ir.TypedValue{}, err
	}

	if n.BinOp == ast.OpLogAnd || n.BinOp == ast.OpLogOr {
		return l.lowerLogical(n, a)
	}

	b, err := l.lowerExpr(n.B)
	if err != nil {
		return ir.TypedValue{}, err
	}

	floaty := isFloatBase(a.Type.Base) || isFloatBase(b.Type.Base)
	unsigned := isUnsignedBase(a.Type.Base) || isUnsignedBase(b.Type.Base)

	var op ir.Opcode

	var ok bool

	switch {
	case floaty:
		op, ok = floatBinOpcode[n.BinOp]
	case unsigned:
		op, ok = unsignedBinOpcode[n.BinOp]
	default:
		op, ok = binOpcode[n.BinOp]
	}

	if !ok {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "binary operator not lowered yet")
	}

	resTy := a.Type
	if isComparison(n.BinOp) {
		resTy = types.TypeSpecifierNode{Base: types.Bool}
	}

	t := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: op, A: a, B: b, Result: t, Span: n.Span})

	return ir.TempValue(resTy, l.Types.SizeOf(resTy)*8, t), nil
}

func isComparison(op ast.BinaryOp) bool {
	switch op {
	case ast.OpEq, ast.OpNe, ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return true
	default:
		return false
	}
}

// lowerLogical implements short-circuit && and || by branching around the
// right-hand side (spec.md §4.5).
func (l *Lowerer) lowerLogical(n *ast.Node, a ir.TypedValue) (ir.TypedValue, error) {
	result := l.b.NewTemp()
	boolTy := types.TypeSpecifierNode{Base: types.Bool}

	shortCircuit := l.b.NewLabel()
	end := l.b.NewLabel()

	if n.BinOp == ast.OpLogAnd {
		l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: a, Label: shortCircuit, Span: n.Span})
	} else {
		l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: a, Label: end, Imm: 1, Span: n.Span})
	}

	b, err := l.lowerExpr(n.B)
	if err != nil {
		return ir.TypedValue{}, err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpMove, Result: result, A: b, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: shortCircuit, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpMove, Result: result, A: a, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})

	return ir.TempValue(boolTy, 8, result), nil
}

// lowerAssign handles assignment to a simple variable, a member, an
// array element, or a dereferenced pointer.
func (l *Lowerer) lowerAssign(n *ast.Node) (ir.TypedValue, error) {
	target := l.Arena.Get(n.A)

	v, err := l.lowerExpr(n.B)
	if err != nil {
		return ir.TypedValue{}, err
	}

	switch target.Kind {
	case ast.KindIdentifier:
		loc, ok := l.lookupLocal(target.Name)
		if !ok {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local or parameter", l.Strings.View(target.Name))
		}

		l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: v, Name: target.Name, Span: n.Span})

		return ir.TempValue(loc.typ, l.Types.SizeOf(loc.typ)*8, loc.temp), nil
	case ast.KindMemberAccess:
		base, m, ptr, err := l.resolveMember(target)
		if err != nil {
			return ir.TypedValue{}, err
		}

		v.SizeBits = m.Size * 8
		instr := ir.Instruction{Op: ir.OpMemberStore, Name: base, Offset: m.Offset, A: v, Span: n.Span}
		if ptr {
			instr.Imm = 1
		}

		l.b.Emit(instr)

		return v, nil
	case ast.KindArraySubscript:
		arr := l.Arena.Get(target.A)
		if arr.Kind != ast.KindIdentifier {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "assignment through a computed array base is not lowered")
		}

		loc, ok := l.lookupLocal(arr.Name)
		if !ok {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local array", l.Strings.View(arr.Name))
		}

		idx, err := l.lowerExpr(target.B)
		if err != nil {
			return ir.TypedValue{}, err
		}

		elemTy := loc.typ
		elemTy.ArrayDims = nil
		l.b.Emit(ir.Instruction{Op: ir.OpArrayStore, Name: arr.Name, A: idx, B: v, Imm: int64(l.Types.SizeOf(elemTy)), Span: n.Span})

		return v, nil
	case ast.KindUnaryOperator:
		if target.UnOp == ast.OpDeref {
			ptr, err := l.lowerExpr(target.A)
			if err != nil {
				return ir.TypedValue{}, err
			}

			elemTy := ptr.Type
			if len(elemTy.Pointers) > 0 {
				elemTy.Pointers = elemTy.Pointers[:len(elemTy.Pointers)-1]
			}

			v.SizeBits = l.Types.SizeOf(elemTy) * 8
			l.b.Emit(ir.Instruction{Op: ir.OpMemberStore, A: v, B: ptr, Imm: 2, Offset: 0, Span: n.Span})

			return v, nil
		}
	}

	return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "assignment target is not lowered")
}

var unaryOpcode = map[ast.UnaryOp]ir.Opcode{
	ast.OpNeg: ir.OpNeg, ast.OpNot: ir.OpLogNot, ast.OpBitNot: ir.OpBitNot,
}

func (l *Lowerer) lowerUnary(n *ast.Node) (ir.TypedValue, error) {
	switch n.UnOp {
	case ast.OpPreInc, ast.OpPreDec, ast.OpPostInc, ast.OpPostDec:
		return l.lowerIncDec(n)
	case ast.OpAddrOf:
		target := l.Arena.Get(n.A)
		if target.Kind != ast.KindIdentifier {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "address-of a non-variable is not lowered")
		}

		loc, ok := l.lookupLocal(target.Name)
		if !ok {
			return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local or parameter", l.Strings.View(target.Name))
		}

		t := l.b.NewTemp()
		l.b.Emit(ir.Instruction{Op: ir.OpAddrOf, Name: target.Name, Result: t, Span: n.Span})

		ptrTy := loc.typ
		ptrTy.Pointers = append(append([]types.PointerLevel{}, ptrTy.Pointers...), types.PointerLevel{})

		return ir.TempValue(ptrTy, 64, t), nil
	case ast.OpDeref:
		ptr, err := l.lowerExpr(n.A)
		if err != nil {
			return ir.TypedValue{}, err
		}

		elemTy := ptr.Type
		if len(elemTy.Pointers) > 0 {
			elemTy.Pointers = elemTy.Pointers[:len(elemTy.Pointers)-1]
		}

		size := l.Types.SizeOf(elemTy)
		t := l.b.NewTemp()
		l.b.Emit(ir.Instruction{Op: ir.OpDeref, A: ptr, Imm: int64(size), Result: t, Span: n.Span})

		return ir.TempValue(elemTy, size*8, t), nil
	}

	a, err := l.lowerExpr(n.A)
	if err != nil {
		return ir.TypedValue{}, err
	}

	op, ok := unaryOpcode[n.UnOp]
	if !ok {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "unary operator not lowered yet")
	}

	if n.UnOp == ast.OpNeg && isFloatBase(a.Type.Base) {
		op = ir.OpNegF
	}

	t := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: op, A: a, Result: t, Span: n.Span})

	return ir.TempValue(a.Type, a.SizeBits, t), nil
}

// lowerIncDec rewrites ++/-- on a named variable as load, add/sub 1,
// store; the expression's value is the old value for postfix, the new
// one for prefix.
func (l *Lowerer) lowerIncDec(n *ast.Node) (ir.TypedValue, error) {
	target := l.Arena.Get(n.A)
	if target.Kind != ast.KindIdentifier {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "++/-- on a non-variable is not lowered")
	}

	loc, ok := l.lookupLocal(target.Name)
	if !ok {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local or parameter", l.Strings.View(target.Name))
	}

	old := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpLoadVar, Result: old, Name: target.Name, Span: n.Span})

	op := ir.OpAddI
	if n.UnOp == ast.OpPreDec || n.UnOp == ast.OpPostDec {
		op = ir.OpSubI
	}

	size := l.Types.SizeOf(loc.typ) * 8
	oldVal := ir.TempValue(loc.typ, size, old)
	one := ir.ImmInt(loc.typ, size, 1)

	updated := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: op, A: oldVal, B: one, Result: updated, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpStoreVar, A: ir.TempValue(loc.typ, size, updated), Name: target.Name, Span: n.Span})

	if n.UnOp == ast.OpPostInc || n.UnOp == ast.OpPostDec {
		return oldVal, nil
	}

	return ir.TempValue(loc.typ, size, updated), nil
}

func (l *Lowerer) lowerTernary(n *ast.Node) (ir.TypedValue, error) {
	cond, err := l.lowerExpr(n.A)
	if err != nil {
		return ir.TypedValue{}, err
	}

	elseLabel := l.b.NewLabel()
	end := l.b.NewLabel()
	result := l.b.NewTemp()

	l.b.Emit(ir.Instruction{Op: ir.OpConditionalBranch, A: cond, Label: elseLabel, Span: n.Span})

	thenVal, err := l.lowerExpr(n.B)
	if err != nil {
		return ir.TypedValue{}, err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpMove, Result: result, A: thenVal, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpBranch, Label: end, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: elseLabel, Span: n.Span})

	elseVal, err := l.lowerExpr(n.C)
	if err != nil {
		return ir.TypedValue{}, err
	}

	l.b.Emit(ir.Instruction{Op: ir.OpMove, Result: result, A: elseVal, Span: n.Span})
	l.b.Emit(ir.Instruction{Op: ir.OpLabel, Label: end, Span: n.Span})

	return ir.TempValue(thenVal.Type, thenVal.SizeBits, result), nil
}

func (l *Lowerer) lowerCall(n *ast.Node) (ir.TypedValue, error) {
	callee := l.Arena.Get(n.A)
	if callee.Kind != ast.KindIdentifier {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "only direct calls by name are lowered")
	}

	var retType types.TypeSpecifierNode

	var fnDecl *ast.Node

	for _, cand := range l.Symbols.LookupAll(callee.Name) {
		if cand.Kind == symtab.DeclFunction {
			fnDecl = l.Arena.Get(ast.Handle(cand.ASTNode))
			retType = fnDecl.Type

			break
		}
	}

	args := make([]ir.TypedValue, len(n.List))

	for i, a := range n.List {
		// When the parameter is a reference and the argument is a named
		// variable, pass its address (spec.md §4.5's call row).
		if fnDecl != nil && i < len(fnDecl.List) {
			param := l.Arena.Get(fnDecl.List[i])
			arg := l.Arena.Get(a)

			if param.Type.IsReference() && arg.Kind == ast.KindIdentifier {
				if _, ok := l.lookupLocal(arg.Name); ok {
					t := l.b.NewTemp()
					l.b.Emit(ir.Instruction{Op: ir.OpAddrOf, Name: arg.Name, Result: t, Span: n.Span})
					args[i] = ir.TempValue(param.Type, 64, t)

					continue
				}
			}
		}

		v, err := l.lowerExpr(a)
		if err != nil {
			return ir.TypedValue{}, err
		}

		args[i] = v
	}

	t := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpCall, Name: callee.Name, Args: args, Result: t, Span: n.Span})

	return ir.TempValue(retType, l.Types.SizeOf(retType)*8, t), nil
}

// resolveMember resolves `base.member` / `base->member` where base names
// a local whose type is a registered struct; reports whether the base
// slot holds a pointer (reference binding or -> access).
func (l *Lowerer) resolveMember(n *ast.Node) (base intern.Handle, m types.Member, viaPointer bool, err error) {
	baseNode := l.Arena.Get(n.A)
	if baseNode.Kind != ast.KindIdentifier {
		return 0, types.Member{}, false, cerr.New(cerr.KindCodegen, n.Span, "member access on a non-variable is not lowered")
	}

	loc, ok := l.lookupLocal(baseNode.Name)
	if !ok {
		return 0, types.Member{}, false, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local or parameter", l.Strings.View(baseNode.Name))
	}

	if loc.typ.Index == types.Invalid {
		return 0, types.Member{}, false, cerr.New(cerr.KindCodegen, n.Span, "%q has no class type", l.Strings.View(baseNode.Name))
	}

	info := l.Types.Get(loc.typ.Index)
	if info.Struct == nil {
		return 0, types.Member{}, false, cerr.New(cerr.KindCodegen, n.Span, "%q is not of class type", l.Strings.View(baseNode.Name))
	}

	for _, member := range info.Struct.Members {
		if member.Name == n.Name {
			viaPointer = loc.isRef || loc.typ.IsReference() || loc.typ.IsPointer() || n.Bool
			return baseNode.Name, member, viaPointer, nil
		}
	}

	return 0, types.Member{}, false, cerr.New(cerr.KindCodegen, n.Span, "no member %q in %q", l.Strings.View(n.Name), l.Strings.View(info.Name))
}

func (l *Lowerer) lowerMemberAccess(n *ast.Node) (ir.TypedValue, error) {
	base, m, ptr, err := l.resolveMember(n)
	if err != nil {
		return ir.TypedValue{}, err
	}

	t := l.b.NewTemp()
	instr := ir.Instruction{
		Op: ir.OpMemberLoad, Name: base, Offset: m.Offset, Result: t,
		A: ir.TypedValue{Type: m.Type, SizeBits: m.Size * 8}, Span: n.Span,
	}

	if ptr {
		instr.Imm = 1
	}

	l.b.Emit(instr)

	return ir.TempValue(m.Type, m.Size*8, t), nil
}

func (l *Lowerer) lowerArraySubscript(n *ast.Node) (ir.TypedValue, error) {
	arr := l.Arena.Get(n.A)
	if arr.Kind != ast.KindIdentifier {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "subscript on a computed base is not lowered")
	}

	loc, ok := l.lookupLocal(arr.Name)
	if !ok {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "%q is not a local array", l.Strings.View(arr.Name))
	}

	idx, err := l.lowerExpr(n.B)
	if err != nil {
		return ir.TypedValue{}, err
	}

	elemTy := loc.typ
	elemTy.ArrayDims = nil
	elemSize := l.Types.SizeOf(elemTy)

	t := l.b.NewTemp()
	l.b.Emit(ir.Instruction{Op: ir.OpArrayAccess, Name: arr.Name, A: idx, Imm: int64(elemSize), Result: t, Span: n.Span})

	return ir.TempValue(elemTy, elemSize*8, t), nil
}

// lowerConstructorCall materializes `T{args...}` into a hidden local of
// type T with per-member stores; the expression's value is the hidden
// variable's slot (spec.md §4.5's ConstructorCall row).
func (l *Lowerer) lowerConstructorCall(n *ast.Node) (ir.TypedValue, error) {
	if n.Type.Index == types.Invalid || l.Types.Get(n.Type.Index).Struct == nil {
		return ir.TypedValue{}, cerr.New(cerr.KindCodegen, n.Span, "constructor call on a non-class type is not lowered")
	}

	size := l.Types.SizeOf(n.Type)
	name := l.hiddenName("ctor")
	t := l.b.NewTemp()

	l.b.Emit(ir.Instruction{Op: ir.OpVariableDecl, Result: t, Name: name, TypeIndex: n.Type.Index, Imm: int64(size), Span: n.Span})
	l.bindLocal(name, t, n.Type)

	if err := l.storeAggregate(name, n.Type.Index, n.List, n); err != nil {
		return ir.TypedValue{}, err
	}

	return ir.TempValue(n.Type, size*8, t), nil
}

// lowerCast lowers static_cast/reinterpret_cast between scalar types; the
// value representation is shared, so only the static type changes, except
// int-to-smaller-int which masks through a Move.
func (l *Lowerer) lowerCast(n *ast.Node) (ir.TypedValue, error) {
	v, err := l.lowerExpr(n.A)
	if err != nil {
		return ir.TypedValue{}, err
	}

	op := ir.OpStaticCast
	if n.Kind == ast.KindReinterpretCast {
		op = ir.OpReinterpretCast
	}

	t := l.b.NewTemp()
	size := l.Types.SizeOf(n.Type)
	l.b.Emit(ir.Instruction{Op: op, A: v, Result: t, Imm: int64(size), TypeIndex: n.Type.Index, Span: n.Span})

	return ir.TempValue(n.Type, size*8, t), nil
}
