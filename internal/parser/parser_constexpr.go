package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/types"
)

// evalConstexprStaticInit evaluates the narrow subset of constant
// expressions that can appear as a static constexpr data member's
// initializer inside a class template body: integer literals, sizeof on a
// (possibly dependent) type, and the arithmetic/comparison operators
// combining them. It substitutes any dependent type marker against
// argSpecs before computing a sizeof, so `static constexpr int v =
// sizeof(T);` resolves to the concrete instantiation's size (spec.md §8's
// class-template scenario).
//
// This is deliberately not the general constexpr function evaluator
// (that lives in its own consteval package, for function bodies and
// static_assert); it only has to cover what a template's own member
// initializers can reference.
func (p *Parser) evalConstexprStaticInit(h ast.Handle, argSpecs []types.TypeSpecifierNode) int64 {
	n := p.Arena.Get(h)

	switch n.Kind {
	case ast.KindNumericLiteral:
		return n.Int
	case ast.KindBoolLiteral:
		if n.Bool {
			return 1
		}

		return 0
	case ast.KindSizeofExpr:
		if n.A != ast.NoHandle {
			return 0 // sizeof(expr) is out of scope for this reduced evaluator
		}

		return int64(p.Types.SizeOf(substituteDependent(n.Type, argSpecs)))
	case ast.KindUnaryOperator:
		v := p.evalConstexprStaticInit(n.A, argSpecs)

		switch n.UnOp {
		case ast.OpNeg:
			return -v
		case ast.OpNot:
			if v == 0 {
				return 1
			}

			return 0
		case ast.OpBitNot:
			return ^v
		default:
			return v
		}
	case ast.KindBinaryOperator:
		a := p.evalConstexprStaticInit(n.A, argSpecs)
		b := p.evalConstexprStaticInit(n.B, argSpecs)

		return applyConstBinOp(n.BinOp, a, b)
	case ast.KindTernaryOperator:
		if p.evalConstexprStaticInit(n.A, argSpecs) != 0 {
			return p.evalConstexprStaticInit(n.B, argSpecs)
		}

		return p.evalConstexprStaticInit(n.C, argSpecs)
	default:
		return 0
	}
}

func applyConstBinOp(op ast.BinaryOp, a, b int64) int64 {
	switch op {
	case ast.OpAdd:
		return a + b
	case ast.OpSub:
		return a - b
	case ast.OpMul:
		return a * b
	case ast.OpDiv:
		if b == 0 {
			return 0
		}

		return a / b
	case ast.OpMod:
		if b == 0 {
			return 0
		}

		return a % b
	case ast.OpEq:
		return boolToInt64(a == b)
	case ast.OpNe:
		return boolToInt64(a != b)
	case ast.OpLt:
		return boolToInt64(a < b)
	case ast.OpLe:
		return boolToInt64(a <= b)
	case ast.OpGt:
		return boolToInt64(a > b)
	case ast.OpGe:
		return boolToInt64(a >= b)
	case ast.OpLogAnd:
		return boolToInt64(a != 0 && b != 0)
	case ast.OpLogOr:
		return boolToInt64(a != 0 || b != 0)
	case ast.OpBitAnd:
		return a & b
	case ast.OpBitOr:
		return a | b
	case ast.OpBitXor:
		return a ^ b
	case ast.OpShl:
		return a << uint64(b)
	case ast.OpShr:
		return a >> uint64(b)
	default:
		return 0
	}
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}

	return 0
}
