package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/types"
)

// parseEnumDeclaration parses
// `enum [class|struct] Name [: underlying-type] { A [= expr], ... } ;`,
// registering the enum in the type registry and each enumerator in the
// symbol table (spec.md §3.3's EnumTypeInfo). Unscoped enumerators are
// visible in the enclosing scope; scoped ones only via `Name::A`, which
// the constant evaluator resolves through the registry entry.
func (p *Parser) parseEnumDeclaration() (ast.Handle, error) {
	span := p.peek().Span
	p.advance() // 'enum'

	scoped := false

	if p.at("class") || p.at("struct") {
		p.advance()

		scoped = true
	}

	nameTok := p.peek()
	if nameTok.Kind != lexer.TokenIdentifier {
		return ast.NoHandle, p.errorf("expected enum name, got %q", nameTok.Raw)
	}

	p.advance()

	nameH := p.strings.Intern(nameTok.Raw)

	underlying := types.Int

	if p.at(":") {
		p.advance()

		spec, ok := p.parseTypeSpecifier(nil)
		if !ok {
			return ast.NoHandle, p.errorf("expected underlying type after ':'")
		}

		underlying = spec.Base
	}

	if _, err := p.expect("{"); err != nil {
		return ast.NoHandle, err
	}

	var enumerators []types.Enumerator

	var enumeratorNodes []ast.Handle

	next := int64(0)

	for !p.at("}") {
		t := p.peek()
		if t.Kind != lexer.TokenIdentifier {
			return ast.NoHandle, p.errorf("expected enumerator name, got %q", t.Raw)
		}

		p.advance()

		if p.at("=") {
			p.advance()

			valExpr, err := p.parseAssignment()
			if err != nil {
				return ast.NoHandle, err
			}

			next = p.evalConstexprStaticInit(valExpr, nil)
		}

		enumH := p.strings.Intern(t.Raw)
		enumerators = append(enumerators, types.Enumerator{Name: enumH, Value: next})

		valueNode := p.Arena.Alloc(ast.Node{Kind: ast.KindNumericLiteral, Int: next, UInt: uint64(next), Span: t.Span})
		enumeratorNodes = append(enumeratorNodes, valueNode)

		if !scoped {
			p.Symbols.Insert(enumH, symtab.Candidate{ASTNode: uint32(valueNode), Kind: symtab.DeclEnumerator})
		}

		next++

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect("}"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect(";"); err != nil {
		return ast.NoHandle, err
	}

	underlyingSize := p.Types.SizeOf(types.TypeSpecifierNode{Base: underlying})

	idx := p.Types.Define(types.TypeInfo{
		Name: nameH, Kind: types.Enum,
		Size:      underlyingSize,
		Alignment: underlyingSize,
		Enum:      &types.EnumTypeInfo{Underlying: underlying, Scoped: scoped, Enumerators: enumerators},
	})

	node := p.Arena.Alloc(ast.Node{Kind: ast.KindEnumDeclaration, Name: nameH, List: enumeratorNodes, StructIndex: idx, Span: span})
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(node), Kind: symtab.DeclType})

	return node, nil
}

// parseNamespaceDeclaration parses `namespace [Name] { decl* }`, pushing
// a Namespace scope for the body (spec.md §3.5). An anonymous namespace
// gets internal linkage when mangled (`_GLOBAL__N_1`, spec.md §4.6); the
// parser just records an empty name.
func (p *Parser) parseNamespaceDeclaration() (ast.Handle, error) {
	span := p.peek().Span
	p.advance() // 'namespace'

	var nameH = p.strings.Intern("")

	if p.peek().Kind == lexer.TokenIdentifier {
		nameH = p.strings.Intern(p.advance().Raw)
	}

	if _, err := p.expect("{"); err != nil {
		return ast.NoHandle, err
	}

	p.Symbols.Push(symtab.ScopeNamespace, nameH)
	defer p.Symbols.Pop()

	var decls []ast.Handle

	for !p.at("}") {
		d, err := p.parseTopLevelDeclaration()
		if err != nil {
			return ast.NoHandle, err
		}

		if d != ast.NoHandle {
			decls = append(decls, d)
		}
	}

	if _, err := p.expect("}"); err != nil {
		return ast.NoHandle, err
	}

	node := p.Arena.Alloc(ast.Node{Kind: ast.KindNamespaceDeclaration, Name: nameH, List: decls, Span: span})
	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(node), Kind: symtab.DeclNamespace})

	return node, nil
}
