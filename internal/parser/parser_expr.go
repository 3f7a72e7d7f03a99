package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/types"
)

// binaryPrecedence gives each binary operator's precedence level; higher
// binds tighter. Matches standard C++ precedence (spec.md §4.1's
// conditional-expression table generalizes the same idea for #if).
var binaryPrecedence = map[string]int{
	"*": 10, "/": 10, "%": 10,
	"+": 9, "-": 9,
	"<<": 8, ">>": 8,
	"<": 7, "<=": 7, ">": 7, ">=": 7,
	"==": 6, "!=": 6,
	"&": 5, "^": 4, "|": 3,
	"&&": 2, "||": 1,
}

var binaryOpKind = map[string]ast.BinaryOp{
	"+": ast.OpAdd, "-": ast.OpSub, "*": ast.OpMul, "/": ast.OpDiv, "%": ast.OpMod,
	"==": ast.OpEq, "!=": ast.OpNe, "<": ast.OpLt, "<=": ast.OpLe, ">": ast.OpGt, ">=": ast.OpGe,
	"&&": ast.OpLogAnd, "||": ast.OpLogOr,
	"&": ast.OpBitAnd, "|": ast.OpBitOr, "^": ast.OpBitXor,
	"<<": ast.OpShl, ">>": ast.OpShr,
}

// ParseExpression parses a full expression, including the ternary and
// assignment level.
func (p *Parser) ParseExpression() (ast.Handle, error) {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() (ast.Handle, error) {
	lhs, err := p.parseTernary()
	if err != nil {
		return ast.NoHandle, err
	}

	if p.at("=") {
		start := p.peek().Span
		p.advance()

		rhs, err := p.parseAssignment()
		if err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindBinaryOperator, BinOp: ast.OpAssign, A: lhs, B: rhs, Span: start}), nil
	}

	return lhs, nil
}

func (p *Parser) parseTernary() (ast.Handle, error) {
	cond, err := p.parseBinary(1)
	if err != nil {
		return ast.NoHandle, err
	}

	if p.at("?") {
		start := p.peek().Span
		p.advance()

		then, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		if _, err := p.expect(":"); err != nil {
			return ast.NoHandle, err
		}

		els, err := p.parseAssignment()
		if err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindTernaryOperator, A: cond, B: then, C: els, Span: start}), nil
	}

	return cond, nil
}

func (p *Parser) parseBinary(minPrec int) (ast.Handle, error) {
	lhs, err := p.parseUnary()
	if err != nil {
		return ast.NoHandle, err
	}

	for {
		t := p.peek()
		if t.Kind != lexer.TokenOperator {
			break
		}

		prec, ok := binaryPrecedence[t.Raw]
		if !ok || prec < minPrec {
			break
		}

		op := t.Raw
		span := t.Span
		p.advance()

		rhs, err := p.parseBinary(prec + 1)
		if err != nil {
			return ast.NoHandle, err
		}

		lhs = p.Arena.Alloc(ast.Node{Kind: ast.KindBinaryOperator, BinOp: binaryOpKind[op], A: lhs, B: rhs, Span: span})
	}

	return lhs, nil
}

var unaryOpKind = map[string]ast.UnaryOp{
	"-": ast.OpNeg, "!": ast.OpNot, "~": ast.OpBitNot,
	"++": ast.OpPreInc, "--": ast.OpPreDec,
	"&": ast.OpAddrOf, "*": ast.OpDeref,
}

func (p *Parser) parseUnary() (ast.Handle, error) {
	t := p.peek()

	if t.Kind == lexer.TokenOperator {
		if op, ok := unaryOpKind[t.Raw]; ok {
			span := t.Span
			p.advance()

			operand, err := p.parseUnary()
			if err != nil {
				return ast.NoHandle, err
			}

			return p.Arena.Alloc(ast.Node{Kind: ast.KindUnaryOperator, UnOp: op, A: operand, Span: span}), nil
		}
	}

	if t.Kind == lexer.TokenKeyword {
		switch t.Raw {
		case "sizeof":
			return p.parseSizeof()
		case "alignof":
			return p.parseAlignof()
		case "static_cast", "reinterpret_cast":
			return p.parseNamedCast(t.Raw)
		}
	}

	return p.parsePostfix()
}

func (p *Parser) parseAlignof() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok {
		return ast.NoHandle, p.errorf("expected type in alignof")
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindAlignofExpr, Type: spec, Span: span}), nil
}

// parseNamedCast parses `static_cast<T>(expr)` / `reinterpret_cast<T>(expr)`.
func (p *Parser) parseNamedCast(which string) (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("<"); err != nil {
		return ast.NoHandle, err
	}

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok {
		return ast.NoHandle, p.errorf("expected type in %s", which)
	}

	if _, err := p.expect(">"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	inner, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	kind := ast.KindStaticCast
	if which == "reinterpret_cast" {
		kind = ast.KindReinterpretCast
	}

	return p.Arena.Alloc(ast.Node{Kind: kind, Type: spec, A: inner, Span: span}), nil
}

func (p *Parser) parseSizeof() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if p.at("...") {
		p.advance()

		if _, err := p.expect("("); err != nil {
			return ast.NoHandle, err
		}

		name := p.advance().Raw

		if _, err := p.expect(")"); err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindSizeofPack, Name: p.strings.Intern(name), Span: span}), nil
	}

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	if p.looksLikeTypeStart() {
		spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
		if !ok {
			return ast.NoHandle, p.errorf("expected type in sizeof")
		}

		if _, err := p.expect(")"); err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindSizeofExpr, Type: spec, Span: span}), nil
	}

	inner, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindSizeofExpr, A: inner, Span: span}), nil
}

func (p *Parser) parsePostfix() (ast.Handle, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return ast.NoHandle, err
	}

	for {
		switch {
		case p.at("("):
			span := p.peek().Span
			p.advance()

			var args []ast.Handle

			for !p.at(")") {
				a, err := p.parseAssignment()
				if err != nil {
					return ast.NoHandle, err
				}

				args = append(args, a)

				if p.at(",") {
					p.advance()
					continue
				}

				break
			}

			if _, err := p.expect(")"); err != nil {
				return ast.NoHandle, err
			}

			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindFunctionCall, A: expr, List: args, Span: span})
		case p.at("."):
			p.advance()

			member := p.advance().Raw
			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindMemberAccess, A: expr, Name: p.strings.Intern(member)})
		case p.at("->"):
			p.advance()

			member := p.advance().Raw
			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindMemberAccess, A: expr, Name: p.strings.Intern(member), Bool: true})
		case p.at("++"):
			span := p.peek().Span
			p.advance()

			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindUnaryOperator, UnOp: ast.OpPostInc, A: expr, Span: span})
		case p.at("--"):
			span := p.peek().Span
			p.advance()

			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindUnaryOperator, UnOp: ast.OpPostDec, A: expr, Span: span})
		case p.at("::"):
			p.advance()

			member := p.advance().Raw
			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindQualifiedIdentifier, A: expr, Name: p.strings.Intern(member)})
		case p.at("["):
			span := p.peek().Span
			p.advance()

			idx, err := p.ParseExpression()
			if err != nil {
				return ast.NoHandle, err
			}

			if _, err := p.expect("]"); err != nil {
				return ast.NoHandle, err
			}

			expr = p.Arena.Alloc(ast.Node{Kind: ast.KindArraySubscript, A: expr, B: idx, Span: span})
		default:
			return expr, nil
		}
	}
}

func (p *Parser) parsePrimary() (ast.Handle, error) {
	t := p.peek()

	switch {
	case t.Kind == lexer.TokenIntegerLiteral:
		p.advance()
		return p.Arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, UInt: t.IntValue, Int: int64(t.IntValue), Span: t.Span}), nil
	case t.Kind == lexer.TokenFloatLiteral:
		p.advance()
		return p.Arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, Float: t.FloatValue, IsFloat: true, Span: t.Span}), nil
	case t.Kind == lexer.TokenStringLiteral:
		p.advance()
		return p.Arena.Alloc(ast.Node{Kind: ast.KindStringLiteral, Str: t.Text, Span: t.Span}), nil
	case t.Kind == lexer.TokenKeyword && t.Raw == "true":
		p.advance()
		return p.Arena.Alloc(ast.Node{Kind: ast.KindBoolLiteral, Bool: true, Span: t.Span}), nil
	case t.Kind == lexer.TokenKeyword && t.Raw == "false":
		p.advance()
		return p.Arena.Alloc(ast.Node{Kind: ast.KindBoolLiteral, Bool: false, Span: t.Span}), nil
	case p.at("("):
		p.advance()

		inner, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		if _, err := p.expect(")"); err != nil {
			return ast.NoHandle, err
		}

		return inner, nil
	case t.Kind == lexer.TokenIdentifier:
		p.advance()

		name := t.Raw

		if p.at("<") && p.identifierIsTemplate(name) {
			return p.parseTemplateIdExpression(name)
		}

		if p.at("{") {
			if idx, ok := p.Types.Lookup(p.strings.Intern(name)); ok {
				return p.parseBraceConstructorCall(t, idx)
			}
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: p.strings.Intern(name), Span: t.Span}), nil
	default:
		return ast.NoHandle, p.errorf("unexpected token %q in expression", t.Raw)
	}
}

// parseBraceConstructorCall parses the remainder of `TypeName{args...}`,
// producing a KindConstructorCall whose List holds the per-member
// initializer expressions in declaration order (spec.md §4.5's
// ConstructorCall row; brace-init member matching is positional).
func (p *Parser) parseBraceConstructorCall(nameTok lexer.Token, idx types.Index) (ast.Handle, error) {
	list, err := p.parseInitializerList()
	if err != nil {
		return ast.NoHandle, err
	}

	info := p.Types.Get(idx)

	return p.Arena.Alloc(ast.Node{
		Kind: ast.KindConstructorCall,
		Name: p.strings.Intern(nameTok.Raw),
		Type: types.TypeSpecifierNode{Base: info.Kind, Index: idx},
		List: p.Arena.Get(list).List,
		Span: nameTok.Span,
	}), nil
}
