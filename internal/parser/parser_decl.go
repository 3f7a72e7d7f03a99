package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// parseStructBody parses `{ member-decl* }` and returns the member nodes,
// each a KindVariableDeclaration carrying IsStatic/IsConstexpr and an
// optional initializer Body. Shared by plain struct declarations and
// class-template bodies (spec.md §3.3's Member/StaticMember split is
// built from these at struct-definition or instantiation time).
func (p *Parser) parseStructBody() ([]ast.Handle, error) {
	if _, err := p.expect("{"); err != nil {
		return nil, err
	}

	var members []ast.Handle

	for !p.at("}") {
		m, err := p.parseMemberDeclaration()
		if err != nil {
			return nil, err
		}

		members = append(members, m)
	}

	if _, err := p.expect("}"); err != nil {
		return nil, err
	}

	return members, nil
}

func (p *Parser) parseMemberDeclaration() (ast.Handle, error) {
	span := p.peek().Span

	var isStatic, isConstexpr bool

	for {
		switch {
		case p.at("static"):
			p.advance()

			isStatic = true
		case p.at("constexpr"):
			p.advance()

			isConstexpr = true
		default:
			goto afterQualifiers
		}
	}

afterQualifiers:

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok {
		return ast.NoHandle, p.errorf("expected member type")
	}

	name := p.advance().Raw
	nameH := p.strings.Intern(name)

	node := ast.Node{
		Kind: ast.KindVariableDeclaration, Name: nameH, Type: spec,
		IsStatic: isStatic, IsConstexpr: isConstexpr, Span: span,
	}

	if p.at("=") {
		p.advance()

		init, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		node.Body = init
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(node), nil
}

// parseStructDeclaration parses a non-template `struct Name { ... };`,
// resolving its layout immediately since it has no dependent members.
func (p *Parser) parseStructDeclaration() (ast.Handle, error) {
	span := p.peek().Span
	p.advance() // 'struct'/'class'

	name := p.advance().Raw
	nameH := p.strings.Intern(name)

	body, err := p.parseStructBody()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	var members []types.Member

	var staticMembers []types.StaticMember

	for _, memberHandle := range body {
		m := p.Arena.Get(memberHandle)

		if m.IsStatic {
			val := int64(0)

			if m.IsConstexpr && m.Body != ast.NoHandle {
				val = p.evalConstexprStaticInit(m.Body, nil)
			}

			staticMembers = append(staticMembers, types.StaticMember{
				Name: m.Name, Type: m.Type, Access: types.AccessPublic,
				IsConstexpr: m.IsConstexpr, ConstexprValue: val,
			})

			continue
		}

		members = append(members, types.Member{Name: m.Name, Type: m.Type, Access: types.AccessPublic})
	}

	laidOut, total, align := p.Types.LayoutStruct(members, nil)

	idx := p.Types.Define(types.TypeInfo{
		Name: nameH, Kind: types.Struct, Size: total, Alignment: align,
		Struct: &types.StructTypeInfo{Members: laidOut, StaticMembers: staticMembers},
	})

	node := p.Arena.Alloc(ast.Node{Kind: ast.KindStructDeclaration, Name: nameH, List: body, StructIndex: idx, Span: span})
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(node), Kind: symtab.DeclType})

	return node, nil
}

// parseStaticAssert parses `static_assert ( expr [, "message"] ) ;`. The
// condition is kept unevaluated on the AST; the constant evaluator (or, in
// this reduced evaluator, the caller driving a translation unit) checks it
// and raises a StaticAssertionFailed diagnostic (spec.md §5, §8).
func (p *Parser) parseStaticAssert() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	var msg intern.Handle

	if p.at(",") {
		p.advance()

		t := p.peek()
		if t.Kind == lexer.TokenStringLiteral {
			p.advance()

			msg = t.Text
		}
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindDeclaration, A: cond, Str: msg, Span: span}), nil
}

// parseFunctionOrVariableDeclaration parses either a function declaration
// (optionally with a body) or a variable declaration, disambiguated by
// whether '(' follows the declared name.
func (p *Parser) parseFunctionOrVariableDeclaration() (ast.Handle, error) {
	span := p.peek().Span

	var isStatic, isConstexpr, isConsteval bool

	for {
		switch {
		case p.at("static"):
			p.advance()

			isStatic = true
		case p.at("constexpr"):
			p.advance()

			isConstexpr = true
		case p.at("consteval"):
			p.advance()

			isConsteval = true
		default:
			goto afterQualifiers
		}
	}

afterQualifiers:

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok {
		return ast.NoHandle, p.errorf("expected declaration")
	}

	name := p.advance().Raw
	nameH := p.strings.Intern(name)

	if p.at("(") {
		return p.parseFunctionDeclaration(span, nameH, spec, isStatic, isConstexpr, isConsteval)
	}

	node := ast.Node{Kind: ast.KindVariableDeclaration, Name: nameH, Type: spec, IsStatic: isStatic, IsConstexpr: isConstexpr, Span: span}

	if p.at("=") {
		p.advance()

		init, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		node.Body = init
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	h := p.Arena.Alloc(node)
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(h), Kind: symtab.DeclVariable})

	return h, nil
}

func (p *Parser) parseFunctionDeclaration(span position.Span, nameH intern.Handle, ret types.TypeSpecifierNode, isStatic, isConstexpr, isConsteval bool) (ast.Handle, error) {
	p.advance() // '('

	var params []ast.Handle

	for !p.at(")") {
		pspec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
		if !ok {
			return ast.NoHandle, p.errorf("expected parameter type")
		}

		pname := ""
		if p.peek().Kind == lexer.TokenIdentifier {
			pname = p.advance().Raw
		}

		params = append(params, p.Arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: p.strings.Intern(pname), Type: pspec}))

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	node := ast.Node{
		Kind: ast.KindFunctionDeclaration, Name: nameH, Type: ret, List: params,
		IsStatic: isStatic, IsConstexpr: isConstexpr, IsConsteval: isConsteval, Span: span,
	}

	h := p.Arena.Alloc(node)
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(h), Kind: symtab.DeclFunction})

	if p.at(";") {
		p.advance()
		return h, nil
	}

	p.Symbols.Push(symtab.ScopeFunction, nameH)

	body, err := p.parseBlock()
	if err != nil {
		p.Symbols.Pop()
		return ast.NoHandle, err
	}

	p.Symbols.Pop()

	p.Arena.Get(h).Body = body

	return h, nil
}
