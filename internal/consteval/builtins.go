package consteval

import (
	"math/bits"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
)

// evalBuiltin evaluates the compiler builtins spec.md §4.4 lists:
// __builtin_clz[ll], __builtin_ctz[ll], __builtin_popcount[ll],
// __builtin_ffs[ll], __builtin_abs, and __builtin_constant_p. The 32-bit
// forms truncate their operand to 32 bits first, matching the GCC/Clang
// semantics the seed macros advertise.
func (c *EvaluationContext) evalBuiltin(name string, n *ast.Node) (Result, error) {
	// __builtin_constant_p never evaluates its operand's side effects; in
	// this evaluator every reachable operand is a constant expression, so
	// it answers by attempting the evaluation.
	if name == "__builtin_constant_p" {
		if len(n.List) != 1 {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%s expects one argument", name)
		}

		_, err := c.Evaluate(n.List[0])

		return boolResult(err == nil), nil
	}

	if len(n.List) != 1 {
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "%s expects one argument", name)
	}

	v, err := c.Evaluate(n.List[0])
	if err != nil {
		return Result{}, err
	}

	x := v.AsInt64()

	switch name {
	case "__builtin_abs":
		if x < 0 {
			return intResult(-x), nil
		}

		return intResult(x), nil
	case "__builtin_clz":
		if uint32(x) == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "__builtin_clz of zero is undefined")
		}

		return intResult(int64(bits.LeadingZeros32(uint32(x)))), nil
	case "__builtin_clzll":
		if uint64(x) == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "__builtin_clzll of zero is undefined")
		}

		return intResult(int64(bits.LeadingZeros64(uint64(x)))), nil
	case "__builtin_ctz":
		if uint32(x) == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "__builtin_ctz of zero is undefined")
		}

		return intResult(int64(bits.TrailingZeros32(uint32(x)))), nil
	case "__builtin_ctzll":
		if uint64(x) == 0 {
			return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "__builtin_ctzll of zero is undefined")
		}

		return intResult(int64(bits.TrailingZeros64(uint64(x)))), nil
	case "__builtin_popcount":
		return intResult(int64(bits.OnesCount32(uint32(x)))), nil
	case "__builtin_popcountll":
		return intResult(int64(bits.OnesCount64(uint64(x)))), nil
	case "__builtin_ffs":
		if uint32(x) == 0 {
			return intResult(0), nil
		}

		return intResult(int64(bits.TrailingZeros32(uint32(x)) + 1)), nil
	case "__builtin_ffsll":
		if uint64(x) == 0 {
			return intResult(0), nil
		}

		return intResult(int64(bits.TrailingZeros64(uint64(x)) + 1)), nil
	default:
		return Result{}, cerr.New(cerr.KindConstexprHard, n.Span, "builtin %s is not supported in a constant expression", name)
	}
}
