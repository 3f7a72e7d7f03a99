// Package consteval implements the general constant-expression evaluator
// of spec.md §4.4: it walks an AST subtree under a step and recursion
// budget, resolving literals, operators, identifiers bound to constexpr
// variables or static members, sizeof/alignof, casts, and constexpr
// function calls (executed statement-by-statement) to a concrete value.
//
// This is distinct from internal/parser's evalConstexprStaticInit, which
// only covers a class template's own static-member initializers; this
// package evaluates arbitrary constexpr function bodies and
// static_assert conditions, as spec.md §8's `fact(5) == 120` scenario
// requires.
package consteval

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// MaxSteps bounds total node visits over the lifetime of one
// EvaluationContext (the counter is not reset between Evaluate calls),
// guarding against non-terminating constexpr recursion (spec.md §4.4).
const MaxSteps = 1_000_000

// MaxDepth bounds constexpr function-call nesting.
const MaxDepth = 512

// Kind tags which union member of Result is populated.
type Kind int

const (
	KindInt Kind = iota
	KindUInt
	KindFloat
	KindBool
	KindArray
)

// Result is the outcome of a successful evaluation: one of int, uint,
// double, bool, or an array of ints (spec.md §4.4's EvalResult).
type Result struct {
	Kind  Kind
	Int   int64
	UInt  uint64
	Float float64
	Bool  bool
	Array []int64
}

// AsInt64 coerces any scalar Result to an int64 for use in further
// integer arithmetic (booleans become 0/1, floats truncate).
func (r Result) AsInt64() int64 {
	switch r.Kind {
	case KindUInt:
		return int64(r.UInt)
	case KindFloat:
		return int64(r.Float)
	case KindBool:
		if r.Bool {
			return 1
		}

		return 0
	default:
		return r.Int
	}
}

// Truthy reports whether r is non-zero/true, the rule every conditional
// evaluation (if, ternary, &&/||, static_assert) applies.
func (r Result) Truthy() bool {
	switch r.Kind {
	case KindFloat:
		return r.Float != 0
	case KindBool:
		return r.Bool
	case KindUInt:
		return r.UInt != 0
	default:
		return r.Int != 0
	}
}

func intResult(v int64) Result    { return Result{Kind: KindInt, Int: v} }
func boolResult(v bool) Result    { return Result{Kind: KindBool, Bool: v} }
func floatResult(v float64) Result { return Result{Kind: KindFloat, Float: v} }

// EvaluationContext bundles the shared stores a function-call or
// identifier-lookup evaluation needs, plus the step/depth guards
// (spec.md §4.4's EvaluationContext).
type EvaluationContext struct {
	Strings *intern.Interner
	Symbols *symtab.Table
	Types   *types.Registry
	Arena   *ast.Arena

	// StructType, when non-nil, is the enclosing struct/class context for
	// evaluating `this`-relative or static-member expressions; nil at
	// file scope.
	StructType *types.Index

	steps int
	depth int

	locals []map[intern.Handle]Result
}

// NewContext creates a fresh evaluation context sharing the given
// process-wide stores.
func NewContext(strs *intern.Interner, syms *symtab.Table, tys *types.Registry, arena *ast.Arena) *EvaluationContext {
	return &EvaluationContext{Strings: strs, Symbols: syms, Types: tys, Arena: arena}
}

func (c *EvaluationContext) pushLocals() {
	c.locals = append(c.locals, map[intern.Handle]Result{})
}

func (c *EvaluationContext) popLocals() {
	c.locals = c.locals[:len(c.locals)-1]
}

func (c *EvaluationContext) bind(name intern.Handle, v Result) {
	if len(c.locals) == 0 {
		c.pushLocals()
	}

	c.locals[len(c.locals)-1][name] = v
}

func (c *EvaluationContext) lookupLocal(name intern.Handle) (Result, bool) {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if v, ok := c.locals[i][name]; ok {
			return v, true
		}
	}

	return Result{}, false
}

func (c *EvaluationContext) step(span position.Span) error {
	c.steps++
	if c.steps > MaxSteps {
		return cerr.New(cerr.KindConstexprHard, span, "constant expression exceeded the evaluation step budget")
	}

	return nil
}

// Evaluate computes the constant value of the expression at h. Errors of
// kind KindConstexprTemplateDependent mean the expression still contains
// an unsubstituted template parameter and evaluation should be deferred
// until instantiation; every other error is a hard constexpr failure.
func (c *EvaluationContext) Evaluate(h ast.Handle) (Result, error) {
	if h == ast.NoHandle {
		return Result{}, cerr.New(cerr.KindConstexprHard, position.Span{}, "missing constant expression operand")
	}

	n := c.Arena.Get(h)

	if err := c.step(n.Span); err != nil {
		return Result{}, err
	}

	switch n.Kind {
	case ast.KindNumericLiteral:
		return c.evalNumericLiteral(n), nil
	case ast.KindBoolLiteral:
		return boolResult(n.Bool), nil
	case ast.KindIdentifier:
		return c.evalIdentifier(n)
	case ast.KindQualifiedIdentifier:
		return c.evalQualifiedIdentifier(n)
	case ast.KindBinaryOperator:
		return c.evalBinary(n)
	case ast.KindUnaryOperator:
		return c.evalUnary(n)
	case ast.KindTernaryOperator:
		cond, err := c.Evaluate(n.A)
		if err != nil {
			return Result{}, err
		}

		if cond.Truthy() {
			return c.Evaluate(n.B)
		}

		return c.Evaluate(n.C)
	case ast.KindSizeofExpr:
		return c.evalSizeof(n)
	case ast.KindAlignofExpr:
		return intResult(int64(c.Types.AlignOf(n.Type))), nil
	case ast.KindStaticCast, ast.KindReinterpretCast:
		return c.evalCast(n)
	case ast.KindFunctionCall:
		return c.evalCall(n)
	case ast.KindPackExpansionExpr, ast.KindFoldExpression, ast.KindTemplateParameterReference, ast.KindSizeofPack:
		return Result{}, cerr.New(cerr.KindConstexprTemplateDependent, n.Span, "template-dependent expression not yet substituted")
	default:
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "expression kind %v is not a constant expression", n.Kind)
	}
}

func (c *EvaluationContext) evalNumericLiteral(n *ast.Node) Result {
	if n.IsFloat {
		return floatResult(n.Float)
	}

	return Result{Kind: KindInt, Int: n.Int, UInt: n.UInt}
}

func (c *EvaluationContext) evalIdentifier(n *ast.Node) (Result, error) {
	if v, ok := c.lookupLocal(n.Name); ok {
		return v, nil
	}

	for _, cand := range c.Symbols.LookupAll(n.Name) {
		switch cand.Kind {
		case symtab.DeclEnumerator:
			return intResult(c.Arena.Get(ast.Handle(cand.ASTNode)).Int), nil
		case symtab.DeclVariable:
			decl := c.Arena.Get(ast.Handle(cand.ASTNode))
			if !decl.IsConstexpr || decl.Body == ast.NoHandle {
				continue
			}

			return c.Evaluate(decl.Body)
		}
	}

	return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q does not name a constant expression", c.Strings.View(n.Name))
}

// rebind overwrites the innermost existing binding of name, the mutation
// path for assignment and ++/-- inside a constexpr function body.
func (c *EvaluationContext) rebind(name intern.Handle, v Result) bool {
	for i := len(c.locals) - 1; i >= 0; i-- {
		if _, ok := c.locals[i][name]; ok {
			c.locals[i][name] = v
			return true
		}
	}

	return false
}

// evalQualifiedIdentifier resolves `S<Args>::member`, looking the member
// up as a constexpr static member of the instantiated struct the
// template-id expression node already carries (parser.parseTemplateIdExpression
// records StructIndex at parse time), and `E::A` for scoped-enum
// enumerators, resolved through the type registry by the base name.
func (c *EvaluationContext) evalQualifiedIdentifier(n *ast.Node) (Result, error) {
	if n.StructIndex == types.Invalid {
		if n.A != ast.NoHandle {
			base := c.Arena.Get(n.A)
			if base.Kind == ast.KindIdentifier {
				if idx, ok := c.Types.Lookup(base.Name); ok {
					info := c.Types.Get(idx)
					if info.Enum != nil {
						for _, e := range info.Enum.Enumerators {
							if e.Name == n.Name {
								return intResult(e.Value), nil
							}
						}
					}

					if info.Struct != nil {
						for _, sm := range info.Struct.StaticMembers {
							if sm.Name == n.Name && sm.IsConstexpr {
								return intResult(sm.ConstexprValue), nil
							}
						}
					}
				}
			}
		}

		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "qualified name does not resolve to a constant")
	}

	info := c.Types.Get(n.StructIndex)
	if info.Struct == nil {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "qualified name's base is not a class type")
	}

	for _, sm := range info.Struct.StaticMembers {
		if sm.Name == n.Name && sm.IsConstexpr {
			return intResult(sm.ConstexprValue), nil
		}
	}

	return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q is not a constexpr static member", c.Strings.View(n.Name))
}

func (c *EvaluationContext) evalSizeof(n *ast.Node) (Result, error) {
	if n.A != ast.NoHandle {
		// sizeof(expr): evaluated operand is discarded for its value; only
		// its static type matters, which this reduced evaluator does not
		// infer, so this form is always reported as a hard error.
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "sizeof(expr) requires static type inference not modeled here")
	}

	sz := c.Types.SizeOf(n.Type)
	if sz < 0 {
		return Result{}, cerr.New(cerr.KindConstexprTemplateDependent, n.Span, "sizeof of a dependent type")
	}

	return intResult(int64(sz)), nil
}

func (c *EvaluationContext) evalCast(n *ast.Node) (Result, error) {
	v, err := c.Evaluate(n.A)
	if err != nil {
		return Result{}, err
	}

	switch n.Type.Base {
	case types.Float, types.Double, types.LongDouble:
		if v.Kind == KindFloat {
			return v, nil
		}

		return floatResult(float64(v.AsInt64())), nil
	case types.Bool:
		return boolResult(v.Truthy()), nil
	default:
		return intResult(v.AsInt64()), nil
	}
}

func (c *EvaluationContext) evalUnary(n *ast.Node) (Result, error) {
	switch n.UnOp {
	case ast.OpPreInc, ast.OpPreDec, ast.OpPostInc, ast.OpPostDec:
		return c.evalIncDec(n)
	}

	v, err := c.Evaluate(n.A)
	if err != nil {
		return Result{}, err
	}

	if v.Kind == KindFloat {
		switch n.UnOp {
		case ast.OpNeg:
			return floatResult(-v.Float), nil
		case ast.OpNot:
			return boolResult(!v.Truthy()), nil
		}
	}

	i := v.AsInt64()

	switch n.UnOp {
	case ast.OpNeg:
		return intResult(-i), nil
	case ast.OpNot:
		return boolResult(i == 0), nil
	case ast.OpBitNot:
		return intResult(^i), nil
	default:
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "operator is not valid in a constant expression")
	}
}

// evalIncDec mutates a bound local for ++/--, returning the old value for
// the postfix forms and the new value for the prefix forms.
func (c *EvaluationContext) evalIncDec(n *ast.Node) (Result, error) {
	target := c.Arena.Get(n.A)
	if target.Kind != ast.KindIdentifier {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "++/-- target is not a constexpr-mutable variable")
	}

	old, ok := c.lookupLocal(target.Name)
	if !ok {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q is not bound in this constant evaluation", c.Strings.View(target.Name))
	}

	delta := int64(1)
	if n.UnOp == ast.OpPreDec || n.UnOp == ast.OpPostDec {
		delta = -1
	}

	updated := intResult(old.AsInt64() + delta)
	c.rebind(target.Name, updated)

	if n.UnOp == ast.OpPostInc || n.UnOp == ast.OpPostDec {
		return old, nil
	}

	return updated, nil
}

func (c *EvaluationContext) evalBinary(n *ast.Node) (Result, error) {
	if n.BinOp == ast.OpAssign {
		target := c.Arena.Get(n.A)
		if target.Kind != ast.KindIdentifier {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "assignment target is not a constexpr-mutable variable")
		}

		v, err := c.Evaluate(n.B)
		if err != nil {
			return Result{}, err
		}

		if !c.rebind(target.Name, v) {
			c.bind(target.Name, v)
		}

		return v, nil
	}

	a, err := c.Evaluate(n.A)
	if err != nil {
		return Result{}, err
	}

	// Short-circuit && / || before evaluating the right operand.
	if n.BinOp == ast.OpLogAnd && !a.Truthy() {
		return boolResult(false), nil
	}

	if n.BinOp == ast.OpLogOr && a.Truthy() {
		return boolResult(true), nil
	}

	b, err := c.Evaluate(n.B)
	if err != nil {
		return Result{}, err
	}

	if a.Kind == KindFloat || b.Kind == KindFloat {
		return evalFloatBinary(n.BinOp, floatOf(a), floatOf(b))
	}

	return evalIntBinary(n.BinOp, a.AsInt64(), b.AsInt64())
}

func floatOf(r Result) float64 {
	if r.Kind == KindFloat {
		return r.Float
	}

	return float64(r.AsInt64())
}

func evalFloatBinary(op ast.BinaryOp, a, b float64) (Result, error) {
	switch op {
	case ast.OpAdd:
		return floatResult(a + b), nil
	case ast.OpSub:
		return floatResult(a - b), nil
	case ast.OpMul:
		return floatResult(a * b), nil
	case ast.OpDiv:
		return floatResult(a / b), nil
	case ast.OpEq:
		return boolResult(a == b), nil
	case ast.OpNe:
		return boolResult(a != b), nil
	case ast.OpLt:
		return boolResult(a < b), nil
	case ast.OpLe:
		return boolResult(a <= b), nil
	case ast.OpGt:
		return boolResult(a > b), nil
	case ast.OpGe:
		return boolResult(a >= b), nil
	default:
		return Result{}, cerr.New(cerr.KindConstexprHard, position.Span{}, "operator not valid on floating operands")
	}
}

func evalIntBinary(op ast.BinaryOp, a, b int64) (Result, error) {
	switch op {
	case ast.OpAdd:
		return intResult(a + b), nil
	case ast.OpSub:
		return intResult(a - b), nil
	case ast.OpMul:
		return intResult(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, position.Span{}, "division by zero in a constant expression")
		}

		return intResult(a / b), nil
	case ast.OpMod:
		if b == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, position.Span{}, "modulo by zero in a constant expression")
		}

		return intResult(a % b), nil
	case ast.OpEq:
		return boolResult(a == b), nil
	case ast.OpNe:
		return boolResult(a != b), nil
	case ast.OpLt:
		return boolResult(a < b), nil
	case ast.OpLe:
		return boolResult(a <= b), nil
	case ast.OpGt:
		return boolResult(a > b), nil
	case ast.OpGe:
		return boolResult(a >= b), nil
	case ast.OpLogAnd:
		return boolResult(a != 0 && b != 0), nil
	case ast.OpLogOr:
		return boolResult(a != 0 || b != 0), nil
	case ast.OpBitAnd:
		return intResult(a & b), nil
	case ast.OpBitOr:
		return intResult(a | b), nil
	case ast.OpBitXor:
		return intResult(a ^ b), nil
	case ast.OpShl:
		return intResult(a << uint64(b)), nil
	case ast.OpShr:
		return intResult(a >> uint64(b)), nil
	default:
		return Result{}, cerr.New(cerr.KindConstexprHard, position.Span{}, "operator not valid in a constant expression")
	}
}

// evalCall evaluates a call to a constexpr/consteval function: looks the
// callee up by name, binds parameters positionally, and executes the
// body statement-by-statement until a return or the step/depth budget is
// exhausted (spec.md §4.4).
func (c *EvaluationContext) evalCall(n *ast.Node) (Result, error) {
	callee := c.Arena.Get(n.A)
	if callee.Kind != ast.KindIdentifier {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "indirect calls are not constant expressions")
	}

	if name := c.Strings.View(callee.Name); len(name) > 10 && name[:10] == "__builtin_" {
		return c.evalBuiltin(name, n)
	}

	var fnHandle ast.Handle

	for _, cand := range c.Symbols.LookupAll(callee.Name) {
		if cand.Kind == symtab.DeclFunction {
			fnHandle = ast.Handle(cand.ASTNode)
			break
		}
	}

	if fnHandle == ast.NoHandle {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q does not name a constexpr function", c.Strings.View(callee.Name))
	}

	fn := c.Arena.Get(fnHandle)
	if !fn.IsConstexpr && !fn.IsConsteval {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q is not declared constexpr", c.Strings.View(callee.Name))
	}

	if fn.Body == ast.NoHandle {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%q has no definition to constant-evaluate", c.Strings.View(callee.Name))
	}

	c.depth++
	defer func() { c.depth-- }()

	if c.depth > MaxDepth {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "constant expression exceeded the recursion depth budget")
	}

	if len(n.List) != len(fn.List) {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "argument count mismatch calling %q", c.Strings.View(callee.Name))
	}

	args := make([]Result, len(n.List))

	for i, a := range n.List {
		v, err := c.Evaluate(a)
		if err != nil {
			return Result{}, err
		}

		args[i] = v
	}

	c.pushLocals()
	defer c.popLocals()

	for i, param := range fn.List {
		c.bind(c.Arena.Get(param).Name, args[i])
	}

	ret, fl, err := c.evalStatement(fn.Body)
	if err != nil {
		return Result{}, err
	}

	if fl != flowReturn {
		return intResult(0), nil
	}

	return ret, nil
}

// flow describes how a statement completed: fell through normally,
// executed a return, or requested a break/continue of the enclosing
// loop.
type flow int

const (
	flowNormal flow = iota
	flowReturn
	flowBreak
	flowContinue
)

// evalStatement executes one statement; the returned flow tells the
// enclosing block/loop whether to keep going, unwind a return value, or
// break/continue.
func (c *EvaluationContext) evalStatement(h ast.Handle) (Result, flow, error) {
	n := c.Arena.Get(h)

	if err := c.step(n.Span); err != nil {
		return Result{}, flowNormal, err
	}

	switch n.Kind {
	case ast.KindBlock:
		c.pushLocals()
		defer c.popLocals()

		for _, s := range n.List {
			v, fl, err := c.evalStatement(s)
			if err != nil {
				return Result{}, flowNormal, err
			}

			if fl != flowNormal {
				return v, fl, nil
			}
		}

		return Result{}, flowNormal, nil
	case ast.KindReturnStatement:
		if n.A == ast.NoHandle {
			return Result{}, flowReturn, nil
		}

		v, err := c.Evaluate(n.A)
		if err != nil {
			return Result{}, flowNormal, err
		}

		return v, flowReturn, nil
	case ast.KindBreakStatement:
		return Result{}, flowBreak, nil
	case ast.KindContinueStatement:
		return Result{}, flowContinue, nil
	case ast.KindIfStatement:
		if n.D != ast.NoHandle {
			if _, fl, err := c.evalStatement(n.D); err != nil || fl != flowNormal {
				return Result{}, fl, err
			}
		}

		cond, err := c.Evaluate(n.A)
		if err != nil {
			return Result{}, flowNormal, err
		}

		if cond.Truthy() {
			return c.evalStatement(n.B)
		}

		if n.C != ast.NoHandle {
			return c.evalStatement(n.C)
		}

		return Result{}, flowNormal, nil
	case ast.KindWhileStatement:
		return c.evalLoop(ast.NoHandle, n.A, ast.NoHandle, n.B, n)
	case ast.KindForStatement:
		return c.evalLoop(n.A, n.B, n.C, n.D, n)
	case ast.KindDoWhileStatement:
		return c.evalDoWhile(n)
	case ast.KindExpressionStatement:
		if n.A != ast.NoHandle {
			if _, err := c.Evaluate(n.A); err != nil {
				return Result{}, flowNormal, err
			}
		}

		return Result{}, flowNormal, nil
	case ast.KindVariableDeclaration:
		var v Result

		if n.Body != ast.NoHandle {
			var err error

			v, err = c.Evaluate(n.Body)
			if err != nil {
				return Result{}, flowNormal, err
			}
		}

		c.bind(n.Name, v)

		return Result{}, flowNormal, nil
	default:
		return Result{}, flowNormal, cerr.New(cerr.KindConstexprHard, n.Span, "statement kind %v is not supported in a constant expression", n.Kind)
	}
}

// evalLoop runs the shared while/for shape: optional init statement,
// condition (absent means "true"), body, optional increment expression.
// Each iteration charges the step budget, so a non-terminating constexpr
// loop fails rather than hanging (spec.md §4.4).
func (c *EvaluationContext) evalLoop(init, cond, incr, body ast.Handle, n *ast.Node) (Result, flow, error) {
	c.pushLocals()
	defer c.popLocals()

	if init != ast.NoHandle {
		if _, fl, err := c.evalStatement(init); err != nil || fl != flowNormal {
			return Result{}, fl, err
		}
	}

	for {
		if err := c.step(n.Span); err != nil {
			return Result{}, flowNormal, err
		}

		if cond != ast.NoHandle {
			v, err := c.Evaluate(cond)
			if err != nil {
				return Result{}, flowNormal, err
			}

			if !v.Truthy() {
				return Result{}, flowNormal, nil
			}
		}

		v, fl, err := c.evalStatement(body)
		if err != nil {
			return Result{}, flowNormal, err
		}

		switch fl {
		case flowReturn:
			return v, flowReturn, nil
		case flowBreak:
			return Result{}, flowNormal, nil
		}

		if incr != ast.NoHandle {
			if _, err := c.Evaluate(incr); err != nil {
				return Result{}, flowNormal, err
			}
		}
	}
}

func (c *EvaluationContext) evalDoWhile(n *ast.Node) (Result, flow, error) {
	for {
		if err := c.step(n.Span); err != nil {
			return Result{}, flowNormal, err
		}

		v, fl, err := c.evalStatement(n.B)
		if err != nil {
			return Result{}, flowNormal, err
		}

		switch fl {
		case flowReturn:
			return v, flowReturn, nil
		case flowBreak:
			return Result{}, flowNormal, nil
		}

		cond, err := c.Evaluate(n.A)
		if err != nil {
			return Result{}, flowNormal, err
		}

		if !cond.Truthy() {
			return Result{}, flowNormal, nil
		}
	}
}

// CheckStaticAssert evaluates a `static_assert(cond, msg)` declaration
// node (ast.KindDeclaration with A=condition, Str=message) and returns a
// KindSemantic error if the condition evaluates false, matching spec.md
// §8's diagnostic scenario shape.
func (c *EvaluationContext) CheckStaticAssert(n *ast.Node, strs *intern.Interner) error {
	v, err := c.Evaluate(n.A)
	if err != nil {
		return err
	}

	if v.Truthy() {
		return nil
	}

	msg := "static assertion failed"
	if n.Str != intern.Invalid {
		msg = "static assertion failed: " + strs.View(n.Str)
	}

	return cerr.New(cerr.KindSemantic, n.Span, "%s", msg)
}
