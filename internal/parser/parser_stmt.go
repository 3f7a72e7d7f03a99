package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// parseBlock parses `{ stmt* }` into a KindBlock node, pushing/popping a
// Block scope around its contents (spec.md §3.5's scope stack).
func (p *Parser) parseBlock() (ast.Handle, error) {
	span := p.peek().Span

	if _, err := p.expect("{"); err != nil {
		return ast.NoHandle, err
	}

	p.Symbols.Push(symtab.ScopeBlock, 0)
	defer p.Symbols.Pop()

	var stmts []ast.Handle

	for !p.at("}") {
		s, err := p.parseStatement()
		if err != nil {
			return ast.NoHandle, err
		}

		stmts = append(stmts, s)
	}

	if _, err := p.expect("}"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindBlock, List: stmts, Span: span}), nil
}

func (p *Parser) parseStatement() (ast.Handle, error) {
	switch {
	case p.at("{"):
		return p.parseBlock()
	case p.at("return"):
		return p.parseReturnStatement()
	case p.at("if"):
		return p.parseIfStatement()
	case p.at("for"):
		return p.parseForStatement()
	case p.at("while"):
		return p.parseWhileStatement()
	case p.at("do"):
		return p.parseDoWhileStatement()
	case p.at("switch"):
		return p.parseSwitchStatement()
	case p.at("break"):
		span := p.peek().Span
		p.advance()

		if _, err := p.expect(";"); err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindBreakStatement, Span: span}), nil
	case p.at("continue"):
		span := p.peek().Span
		p.advance()

		if _, err := p.expect(";"); err != nil {
			return ast.NoHandle, err
		}

		return p.Arena.Alloc(ast.Node{Kind: ast.KindContinueStatement, Span: span}), nil
	case p.at("goto"):
		return p.parseGotoStatement()
	case p.at("try"):
		return p.parseTryStatement()
	case p.at("throw"):
		return p.parseThrowStatement()
	case p.at("static_assert"):
		return p.parseStaticAssert()
	case p.at(";"):
		span := p.peek().Span
		p.advance()

		return p.Arena.Alloc(ast.Node{Kind: ast.KindExpressionStatement, Span: span}), nil
	case p.atLabelStart():
		return p.parseLabelStatement()
	case p.atStructuredBindingStart():
		return p.parseStructuredBinding()
	case p.looksLikeTypeStart():
		return p.parseLocalVariableDeclaration()
	default:
		return p.parseExpressionStatement()
	}
}

// atLabelStart reports whether the next two tokens spell `identifier :`
// (but not `identifier ::`), the start of a goto label.
func (p *Parser) atLabelStart() bool {
	if p.peek().Kind != lexer.TokenIdentifier {
		return false
	}

	next := p.peekN(1)

	return next.Raw == ":"
}

// atStructuredBindingStart reports whether the statement begins
// `auto [&] [` — a structured-binding declaration.
func (p *Parser) atStructuredBindingStart() bool {
	if !p.at("auto") {
		return false
	}

	next := p.peekN(1)
	if next.Raw == "[" {
		return true
	}

	if next.Raw == "&" || next.Raw == "&&" {
		return p.peekN(2).Raw == "["
	}

	return false
}

func (p *Parser) parseLabelStatement() (ast.Handle, error) {
	t := p.advance()
	p.advance() // ':'

	return p.Arena.Alloc(ast.Node{Kind: ast.KindLabelStatement, Name: p.strings.Intern(t.Raw), Span: t.Span}), nil
}

func (p *Parser) parseGotoStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	t := p.peek()
	if t.Kind != lexer.TokenIdentifier {
		return ast.NoHandle, p.errorf("expected label name after goto")
	}

	p.advance()

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindGotoStatement, Name: p.strings.Intern(t.Raw), Span: span}), nil
}

func (p *Parser) parseReturnStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	var expr ast.Handle

	if !p.at(";") {
		var err error

		expr, err = p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindReturnStatement, A: expr, Span: span}), nil
}

func (p *Parser) parseIfStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	isConstexpr := false
	if p.at("constexpr") {
		p.advance()

		isConstexpr = true
	}

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	// Optional init-statement: `if (init; cond)` (spec.md §4.5). The init
	// is speculatively parsed as a declaration; rolled back when no ';'
	// separates it from a condition.
	var initStmt ast.Handle

	mark := p.Mark()

	if p.looksLikeTypeStart() {
		decl, err := p.parseLocalVariableDeclaration()
		if err == nil && !p.at(")") {
			initStmt = decl
		} else {
			mark.Reject()
		}
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	then, err := p.parseStatement()
	if err != nil {
		return ast.NoHandle, err
	}

	var els ast.Handle

	if p.at("else") {
		p.advance()

		els, err = p.parseStatement()
		if err != nil {
			return ast.NoHandle, err
		}
	}

	return p.Arena.Alloc(ast.Node{
		Kind: ast.KindIfStatement, A: cond, B: then, C: els, D: initStmt,
		IsConstexpr: isConstexpr, Span: span,
	}), nil
}

// parseForStatement parses both the classic three-clause for and the
// ranged for, disambiguated by speculatively looking for `type name :`
// after the opening parenthesis (spec.md §4.3's speculative parsing).
func (p *Parser) parseForStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	if h, ok, err := p.tryParseRangedFor(span); ok || err != nil {
		return h, err
	}

	p.Symbols.Push(symtab.ScopeBlock, 0)
	defer p.Symbols.Pop()

	var initStmt ast.Handle

	switch {
	case p.at(";"):
		p.advance()
	case p.looksLikeTypeStart():
		decl, err := p.parseLocalVariableDeclaration()
		if err != nil {
			return ast.NoHandle, err
		}

		initStmt = decl
	default:
		stmt, err := p.parseExpressionStatement()
		if err != nil {
			return ast.NoHandle, err
		}

		initStmt = stmt
	}

	var cond ast.Handle

	if !p.at(";") {
		c, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		cond = c
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	var incr ast.Handle

	if !p.at(")") {
		i, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		incr = i
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindForStatement, A: initStmt, B: cond, C: incr, D: body, Span: span}), nil
}

// tryParseRangedFor speculatively parses `type [&] name : expr ) stmt`
// after the already-consumed `for (`. Returns ok=false with the cursor
// restored when the header is not a ranged for.
func (p *Parser) tryParseRangedFor(span position.Span) (ast.Handle, bool, error) {
	mark := p.Mark()

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok || p.peek().Kind != lexer.TokenIdentifier {
		mark.Reject()
		return ast.NoHandle, false, nil
	}

	nameTok := p.advance()

	if !p.at(":") {
		mark.Reject()
		return ast.NoHandle, false, nil
	}

	p.advance()
	mark.Commit()

	rangeExpr, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, true, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, true, err
	}

	p.Symbols.Push(symtab.ScopeBlock, 0)
	defer p.Symbols.Pop()

	nameH := p.strings.Intern(nameTok.Raw)
	loopVar := p.Arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: nameH, Type: spec, Span: nameTok.Span})
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(loopVar), Kind: symtab.DeclVariable})

	body, err := p.parseStatement()
	if err != nil {
		return ast.NoHandle, true, err
	}

	return p.Arena.Alloc(ast.Node{
		Kind: ast.KindRangedForStatement, Name: nameH, Type: spec,
		A: loopVar, B: rangeExpr, D: body, Span: span,
	}), true, nil
}

func (p *Parser) parseWhileStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	body, err := p.parseStatement()
	if err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindWhileStatement, A: cond, B: body, Span: span}), nil
}

func (p *Parser) parseDoWhileStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	body, err := p.parseStatement()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("while"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindDoWhileStatement, A: cond, B: body, Span: span}), nil
}

// parseSwitchStatement parses `switch (expr) { ... }` where the body's
// List interleaves KindCaseLabel/KindDefaultLabel markers with ordinary
// statements, preserving C++ fall-through (spec.md §4.5: no implicit
// break).
func (p *Parser) parseSwitchStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	cond, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("{"); err != nil {
		return ast.NoHandle, err
	}

	p.Symbols.Push(symtab.ScopeBlock, 0)
	defer p.Symbols.Pop()

	var items []ast.Handle

	for !p.at("}") {
		switch {
		case p.at("case"):
			caseSpan := p.peek().Span
			p.advance()

			val, err := p.ParseExpression()
			if err != nil {
				return ast.NoHandle, err
			}

			if _, err := p.expect(":"); err != nil {
				return ast.NoHandle, err
			}

			items = append(items, p.Arena.Alloc(ast.Node{Kind: ast.KindCaseLabel, A: val, Span: caseSpan}))
		case p.at("default"):
			defSpan := p.peek().Span
			p.advance()

			if _, err := p.expect(":"); err != nil {
				return ast.NoHandle, err
			}

			items = append(items, p.Arena.Alloc(ast.Node{Kind: ast.KindDefaultLabel, Span: defSpan}))
		default:
			s, err := p.parseStatement()
			if err != nil {
				return ast.NoHandle, err
			}

			items = append(items, s)
		}
	}

	if _, err := p.expect("}"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindSwitchStatement, A: cond, List: items, Span: span}), nil
}

// parseTryStatement parses `try block catch-clause+`. Each catch clause
// is `catch (type [&] [name]) block` or the catch-all `catch (...)`.
func (p *Parser) parseTryStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	body, err := p.parseBlock()
	if err != nil {
		return ast.NoHandle, err
	}

	var catches []ast.Handle

	for p.at("catch") {
		c, err := p.parseCatchClause()
		if err != nil {
			return ast.NoHandle, err
		}

		catches = append(catches, c)
	}

	if len(catches) == 0 {
		return ast.NoHandle, p.errorf("try block has no catch clause")
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindTryStatement, A: body, List: catches, Span: span}), nil
}

func (p *Parser) parseCatchClause() (ast.Handle, error) {
	span := p.peek().Span
	p.advance() // 'catch'

	if _, err := p.expect("("); err != nil {
		return ast.NoHandle, err
	}

	node := ast.Node{Kind: ast.KindCatchClause, Span: span}

	if p.at("...") {
		p.advance()

		node.Bool = true // catch-all
	} else {
		spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
		if !ok {
			return ast.NoHandle, p.errorf("expected exception type in catch clause")
		}

		node.Type = spec

		if p.peek().Kind == lexer.TokenIdentifier {
			node.Name = p.strings.Intern(p.advance().Raw)
		}
	}

	if _, err := p.expect(")"); err != nil {
		return ast.NoHandle, err
	}

	p.Symbols.Push(symtab.ScopeBlock, 0)

	if node.Name != 0 {
		placeholder := p.Arena.Alloc(ast.Node{Kind: ast.KindVariableDeclaration, Name: node.Name, Type: node.Type, Span: span})
		p.Symbols.Insert(node.Name, symtab.Candidate{ASTNode: uint32(placeholder), Kind: symtab.DeclVariable})
	}

	body, err := p.parseBlock()
	p.Symbols.Pop()

	if err != nil {
		return ast.NoHandle, err
	}

	node.B = body

	return p.Arena.Alloc(node), nil
}

func (p *Parser) parseThrowStatement() (ast.Handle, error) {
	span := p.peek().Span
	p.advance()

	node := ast.Node{Kind: ast.KindThrowStatement, Span: span}

	if !p.at(";") {
		expr, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		node.A = expr
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(node), nil
}

// parseStructuredBinding parses `auto [&] [ a, b, ... ] = expr ;`
// (spec.md §4.5's structured-binding row). The binding identifiers are
// stored as child Identifier nodes; decomposition strategy selection
// happens during lowering once the initializer's type is known.
func (p *Parser) parseStructuredBinding() (ast.Handle, error) {
	span := p.peek().Span
	p.advance() // 'auto'

	ref := types.RefNone

	if p.at("&") {
		p.advance()

		ref = types.RefLValue
	} else if p.at("&&") {
		p.advance()

		ref = types.RefRValue
	}

	if _, err := p.expect("["); err != nil {
		return ast.NoHandle, err
	}

	var names []ast.Handle

	for !p.at("]") {
		t := p.peek()
		if t.Kind != lexer.TokenIdentifier {
			return ast.NoHandle, p.errorf("expected binding name, got %q", t.Raw)
		}

		p.advance()

		nameH := p.strings.Intern(t.Raw)
		id := p.Arena.Alloc(ast.Node{Kind: ast.KindIdentifier, Name: nameH, Span: t.Span})
		names = append(names, id)
		p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(id), Kind: symtab.DeclVariable})

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect("]"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("="); err != nil {
		return ast.NoHandle, err
	}

	init, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{
		Kind: ast.KindStructuredBinding, List: names, A: init,
		Type: types.TypeSpecifierNode{Base: types.Auto, Ref: ref}, Span: span,
	}), nil
}

func (p *Parser) parseExpressionStatement() (ast.Handle, error) {
	span := p.peek().Span

	expr, err := p.ParseExpression()
	if err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindExpressionStatement, A: expr, Span: span}), nil
}

// parseLocalVariableDeclaration parses
// `[constexpr|static] Type name [dims] [= expr | { init-list }] ;`
// inside a function body, registering the name in the current (block)
// scope. Array dimensions must be integer constant expressions; they are
// folded immediately with the parser's reduced evaluator.
func (p *Parser) parseLocalVariableDeclaration() (ast.Handle, error) {
	span := p.peek().Span

	var isConstexpr, isStatic bool

	for {
		switch {
		case p.at("constexpr"):
			p.advance()

			isConstexpr = true
		case p.at("static"):
			p.advance()

			isStatic = true
		default:
			goto afterQualifiers
		}
	}

afterQualifiers:

	spec, ok := p.parseTypeSpecifier(p.templateParamsInScope())
	if !ok {
		return ast.NoHandle, p.errorf("expected type in declaration")
	}

	name := p.advance().Raw
	nameH := p.strings.Intern(name)

	for p.at("[") {
		p.advance()

		dimExpr, err := p.ParseExpression()
		if err != nil {
			return ast.NoHandle, err
		}

		if _, err := p.expect("]"); err != nil {
			return ast.NoHandle, err
		}

		spec.ArrayDims = append(spec.ArrayDims, int(p.evalConstexprStaticInit(dimExpr, nil)))
	}

	node := ast.Node{Kind: ast.KindVariableDeclaration, Name: nameH, Type: spec, IsConstexpr: isConstexpr, IsStatic: isStatic, Span: span}

	switch {
	case p.at("="):
		p.advance()

		if p.at("{") {
			init, err := p.parseInitializerList()
			if err != nil {
				return ast.NoHandle, err
			}

			node.Body = init
		} else {
			init, err := p.ParseExpression()
			if err != nil {
				return ast.NoHandle, err
			}

			node.Body = init
		}
	case p.at("{"):
		init, err := p.parseInitializerList()
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

// parseInitializerList parses `{ expr, expr, ... }`.
func (p *Parser) parseInitializerList() (ast.Handle, error) {
	span := p.peek().Span

	if _, err := p.expect("{"); err != nil {
		return ast.NoHandle, err
	}

	var items []ast.Handle

	for !p.at("}") {
		e, err := p.parseAssignment()
		if err != nil {
			return ast.NoHandle, err
		}

		items = append(items, e)

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect("}"); err != nil {
		return ast.NoHandle, err
	}

	return p.Arena.Alloc(ast.Node{Kind: ast.KindInitializerList, List: items, Span: span}), nil
}
