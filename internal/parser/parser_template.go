package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// templateParamsInScope returns the name->declared-parameter-index map
// active while parsing the body of a template declaration, or nil outside
// one.
func (p *Parser) templateParamsInScope() map[string]int {
	return p.curTemplateParams
}

// identifierIsTemplate reports whether name was declared as a class
// template in the symbol table (spec.md §4.3: template lookup goes
// through the symbol table, not ad hoc).
func (p *Parser) identifierIsTemplate(name string) bool {
	h := p.strings.Intern(name)

	for _, c := range p.Symbols.LookupAll(h) {
		if c.Kind == symtab.DeclTemplate {
			return true
		}
	}

	return false
}

// parseTemplateDeclaration parses `template < parameter-list > decl`,
// where decl is (in this compiler's supported subset) a class/struct
// template. The template's body is kept as ordinary AST with dependent
// type markers (types.TypeSpecifierNode{Base: UserDefined, SizeBits: -1})
// wherever a template type parameter was used, and the template itself is
// registered by name in the symbol table as DeclTemplate; no struct type
// or code is generated until a concrete Name<Args> use triggers
// instantiation (spec.md §4.3, lazy by default).
func (p *Parser) parseTemplateDeclaration() (ast.Handle, error) {
	if _, err := p.expect("template"); err != nil {
		return ast.NoHandle, err
	}

	if _, err := p.expect("<"); err != nil {
		return ast.NoHandle, err
	}

	var params []ast.TemplateParam

	paramIdx := map[string]int{}

	for !p.at(">") {
		if p.at("class") || p.at("typename") {
			p.advance()

			name := p.advance().Raw
			paramIdx[name] = len(params)
			params = append(params, ast.TemplateParam{Name: p.strings.Intern(name), IsType: true})
		} else {
			spec, ok := p.parseTypeSpecifier(nil)
			if !ok {
				return ast.NoHandle, p.errorf("expected template parameter")
			}

			name := p.advance().Raw
			paramIdx[name] = len(params)
			params = append(params, ast.TemplateParam{Name: p.strings.Intern(name), IsType: false, NonTypeTy: spec})
		}

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect(">"); err != nil {
		return ast.NoHandle, err
	}

	prevParams := p.curTemplateParams
	p.curTemplateParams = paramIdx

	defer func() { p.curTemplateParams = prevParams }()

	if p.at("struct") || p.at("class") {
		return p.parseTemplateClass(params)
	}

	return ast.NoHandle, p.errorf("unsupported template declaration (only class templates are implemented)")
}

func (p *Parser) parseTemplateClass(params []ast.TemplateParam) (ast.Handle, error) {
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

	node := p.Arena.Alloc(ast.Node{
		Kind:           ast.KindTemplateClassDeclaration,
		Name:           nameH,
		List:           body,
		TemplateParams: params,
	})

	p.Symbols.Insert(nameH, symtab.Candidate{ASTNode: uint32(node), Kind: symtab.DeclTemplate})
	p.templateDecls[name] = node

	return node, nil
}

// parseTemplateIdExpression parses the remainder of `Name<Arg>` (Name was
// already consumed) and, when followed by `::member`, the whole
// qualified-id, instantiating the template on first use.
func (p *Parser) parseTemplateIdExpression(name string) (ast.Handle, error) {
	if _, err := p.expect("<"); err != nil {
		return ast.NoHandle, err
	}

	var args []template.Arg

	var argSpecs []types.TypeSpecifierNode

	for !p.at(">") {
		spec, ok := p.parseTypeSpecifier(nil)
		if !ok {
			return ast.NoHandle, p.errorf("expected template argument")
		}

		argSpecs = append(argSpecs, spec)
		args = append(args, template.Arg{IsType: true, TypeCanon: canonicalTypeString(spec)})

		if p.at(",") {
			p.advance()
		}
	}

	if _, err := p.expect(">"); err != nil {
		return ast.NoHandle, err
	}

	structIdx, err := p.instantiateClassTemplate(name, args, argSpecs)
	if err != nil {
		return ast.NoHandle, err
	}

	node := p.Arena.Alloc(ast.Node{Kind: ast.KindQualifiedIdentifier, StructIndex: structIdx})

	if p.at("::") {
		p.advance()

		member := p.advance().Raw
		p.Arena.Get(node).Name = p.strings.Intern(member)
	}

	return node, nil
}

func canonicalTypeString(t types.TypeSpecifierNode) string {
	base := ""

	switch t.Base {
	case types.Int:
		base = "int"
	case types.Char:
		base = "char"
	case types.Bool:
		base = "bool"
	case types.Double:
		base = "double"
	case types.Float:
		base = "float"
	case types.Long:
		base = "long"
	default:
		base = "T"
	}

	for range t.Pointers {
		base += "P"
	}

	if t.Ref == types.RefLValue {
		base = "C" + base + "R"
	}

	return base
}

// instantiateClassTemplate materializes (or retrieves a cached)
// specialization of the class template named name with args, substituting
// the template's dependent type markers with the concrete argument types
// throughout its stored member list (spec.md §4.3).
func (p *Parser) instantiateClassTemplate(name string, args []template.Arg, argSpecs []types.TypeSpecifierNode) (types.Index, error) {
	nameH := p.strings.Intern(name)
	key := template.Key(nameH, p.strings, args)

	if spec, ok := p.Tmpl.Lookup(key); ok {
		return types.Index(spec.ASTNode), nil
	}

	templNode, ok := p.templateDecls[name]
	if !ok {
		return types.Invalid, cerr.New(cerr.KindSemantic, p.peek().Span, "%s is not a registered class template", name)
	}

	if err := p.Tmpl.EnterInstantiation(); err != nil {
		return types.Invalid, cerr.New(cerr.KindInternal, p.peek().Span, "%v", err)
	}

	defer p.Tmpl.ExitInstantiation()

	decl := p.Arena.Get(templNode)

	var members []types.Member

	var staticMembers []types.StaticMember

	for _, memberHandle := range decl.List {
		m := p.Arena.Get(memberHandle)

		subst := substituteDependent(m.Type, argSpecs)

		if m.IsStatic {
			val := int64(0)

			if m.IsConstexpr && m.Body != ast.NoHandle {
				val = p.evalConstexprStaticInit(m.Body, argSpecs)
			}

			staticMembers = append(staticMembers, types.StaticMember{
				Name: m.Name, Type: subst, Access: types.AccessPublic,
				IsConstexpr: m.IsConstexpr, ConstexprValue: val,
			})

			continue
		}

		members = append(members, types.Member{Name: m.Name, Type: subst, Access: types.AccessPublic})
	}

	laidOut, total, align := p.Types.LayoutStruct(members, nil)

	idx := p.Types.Define(types.TypeInfo{
		Name: p.strings.Intern(key), Kind: types.Struct, Size: total, Alignment: align,
		Struct: &types.StructTypeInfo{Members: laidOut, StaticMembers: staticMembers},
	})

	p.Tmpl.Store(key, template.Specialization{ASTNode: uint32(idx)})

	return idx, nil
}

// substituteDependent replaces a dependent type marker (Base==UserDefined,
// SizeBits==-1, Index encoding the template-parameter position) with the
// concrete argument type at that position; non-dependent specs pass
// through unchanged.
func substituteDependent(t types.TypeSpecifierNode, args []types.TypeSpecifierNode) types.TypeSpecifierNode {
	if t.Base == types.UserDefined && t.SizeBits == -1 && int(t.Index) < len(args) {
		return args[t.Index]
	}

	return t
}
