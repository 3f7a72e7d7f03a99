package parser

import (
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/types"
)

var builtinKeywordKind = map[string]types.Kind{
	"void": types.Void, "bool": types.Bool, "char": types.Char,
	"short": types.Short, "int": types.Int, "long": types.Long,
	"float": types.Float, "double": types.Double,
}

// parseTypeSpecifier parses a declaration's base type plus pointer levels
// and reference kind (array dimensions are parsed by the declarator, not
// here, since C arrays are postfix on the name). templateParams, when
// non-nil, maps the names of the in-scope template type parameters this
// identifier might refer to onto their declared positions.
func (p *Parser) parseTypeSpecifier(templateParams map[string]int) (types.TypeSpecifierNode, bool) {
	var spec types.TypeSpecifierNode

	switch {
	case p.at("unsigned"):
		p.advance()
		spec.Qualifier = types.QualUnsigned

		if kw := p.peek(); kw.Kind == lexer.TokenKeyword {
			if k, ok := builtinKeywordKind[kw.Raw]; ok {
				p.advance()
				spec.Base = unsignedVariant(k)

				break
			}
		}

		spec.Base = types.UnsignedInt
	case p.at("signed"):
		p.advance()
		spec.Qualifier = types.QualSigned

		if kw := p.peek(); kw.Kind == lexer.TokenKeyword {
			if k, ok := builtinKeywordKind[kw.Raw]; ok {
				p.advance()
				spec.Base = k

				break
			}
		}

		spec.Base = types.Int
	case p.at("const"):
		p.advance()
		return p.parseTypeSpecifier(templateParams)
	default:
		kw := p.peek()

		if kw.Kind == lexer.TokenKeyword {
			if k, ok := builtinKeywordKind[kw.Raw]; ok {
				p.advance()
				spec.Base = k

				if k == types.Long && p.at("long") {
					p.advance()
					spec.Base = types.LongLong
				}

				break
			}

			if kw.Raw == "auto" {
				p.advance()

				spec.Base = types.Auto

				break
			}
		}

		if kw.Kind == lexer.TokenIdentifier {
			name := kw.Raw
			p.advance()

			if idx, ok := templateParams[name]; ok {
				spec.Base = types.UserDefined
				spec.Index = types.Index(idx) // placeholder; substituted at instantiation
				spec.SizeBits = -1             // marks "dependent", resolved during instantiation

				break
			}

			h := p.strings.Intern(name)
			if idx, ok := p.Types.Lookup(h); ok {
				spec.Index = idx
				info := p.Types.Get(idx)
				spec.Base = info.Kind

				break
			}
			// Unknown identifier used as a type: treat as an opaque
			// user-defined type recorded for later resolution.
			spec.Base = types.UserDefined
		} else {
			return spec, false
		}
	}

	for p.at("*") {
		p.advance()

		cv := types.CVNone
		if p.at("const") {
			p.advance()

			cv = types.CVConst
		}

		spec.Pointers = append(spec.Pointers, types.PointerLevel{CV: cv})
	}

	if p.at("&") {
		p.advance()
		spec.Ref = types.RefLValue
	} else if p.at("&&") {
		p.advance()
		spec.Ref = types.RefRValue
	}

	return spec, true
}

func unsignedVariant(k types.Kind) types.Kind {
	switch k {
	case types.Char:
		return types.UnsignedChar
	case types.Short:
		return types.UnsignedShort
	case types.Int:
		return types.UnsignedInt
	case types.Long:
		return types.UnsignedLong
	case types.LongLong:
		return types.UnsignedLongLong
	default:
		return types.UnsignedInt
	}
}

// looksLikeTypeStart reports whether the current token could begin a type
// specifier, used to disambiguate declarations from expression statements.
func (p *Parser) looksLikeTypeStart() bool {
	t := p.peek()
	if t.Kind != lexer.TokenKeyword && t.Kind != lexer.TokenIdentifier {
		return false
	}

	switch t.Raw {
	case "void", "bool", "char", "short", "int", "long", "float", "double",
		"unsigned", "signed", "const", "auto", "struct", "class", "constexpr", "consteval", "static":
		return true
	}

	if t.Kind == lexer.TokenIdentifier {
		if _, ok := p.curTemplateParams[t.Raw]; ok {
			return true
		}

		_, ok := p.Types.Lookup(p.strings.Intern(t.Raw))

		return ok
	}

	return false
}
