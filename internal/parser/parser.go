// Package parser implements the recursive-descent C++ parser of
// spec.md §4.3: declarations, structs with static (constexpr) members,
// template classes with substitution-based instantiation, constexpr
// functions, expressions, and the small set of statements needed to drive
// them, all building a typed AST in an ast.Arena and registering symbols
// in a symtab.Table and types in a types.Registry.
//
// Speculative parsing is implemented via ScopedTokenPosition: callers
// save the lexer cursor and the arena length before trying an ambiguous
// production, and roll both back atomically on failure (spec.md §4.3,
// §9).
package parser

import (
	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/lexer"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// Parser holds everything needed to drive one translation unit's parse:
// the lexer, the shared process-wide stores, and the lookahead buffer
// that makes recursive descent with unbounded lookahead practical.
type Parser struct {
	lex     *lexer.Lexer
	strings *intern.Interner
	Types   *types.Registry
	Symbols *symtab.Table
	Tmpl    *template.Registry
	Arena   *ast.Arena

	NoAccessControl bool
	Eager           bool

	lookahead []lexer.Token
	filename  string

	// curTemplateParams is non-nil while parsing the body of a template
	// declaration, mapping each in-scope type parameter's name to its
	// declared position.
	curTemplateParams map[string]int

	// templateDecls holds every parsed class template, keyed by name, so
	// a later Name<Args> use can find its member list to instantiate.
	templateDecls map[string]ast.Handle
}

// New creates a Parser over source, ready to parse one translation unit.
func New(strs *intern.Interner, lines *position.LineMap, tr *types.Registry, st *symtab.Table, tmpl *template.Registry, arena *ast.Arena, source, filename string) *Parser {
	return &Parser{
		lex:           lexer.New(strs, lines, source, filename),
		strings:       strs,
		Types:         tr,
		Symbols:       st,
		Tmpl:          tmpl,
		Arena:         arena,
		filename:      filename,
		templateDecls: map[string]ast.Handle{},
	}
}

// ScopedTokenPosition is the atomic speculative-parse snapshot: the lexer
// cursor plus the AST arena length, rolled back together on Reject.
type ScopedTokenPosition struct {
	p        *Parser
	cursor   lexer.Cursor
	arenaLen int
	lookLen  int
}

// Mark captures the current position for a speculative attempt.
func (p *Parser) Mark() ScopedTokenPosition {
	return ScopedTokenPosition{p: p, cursor: p.lex.Save(), arenaLen: p.Arena.Len(), lookLen: len(p.lookahead)}
}

// Commit is a no-op kept for symmetry/readability at call sites that
// succeeded and want to state so explicitly.
func (s ScopedTokenPosition) Commit() {}

// Reject atomically rolls back both the lexer cursor and the AST arena.
func (s ScopedTokenPosition) Reject() {
	s.p.lex.Restore(s.cursor)
	s.p.Arena.Rollback(s.arenaLen)

	if s.lookLen <= len(s.p.lookahead) {
		s.p.lookahead = s.p.lookahead[:s.lookLen]
	}
}

func (p *Parser) peekN(n int) lexer.Token {
	for len(p.lookahead) <= n {
		p.lookahead = append(p.lookahead, p.lex.Next())
	}

	return p.lookahead[n]
}

func (p *Parser) peek() lexer.Token { return p.peekN(0) }

func (p *Parser) advance() lexer.Token {
	t := p.peek()

	if len(p.lookahead) > 0 {
		p.lookahead = p.lookahead[1:]
	}

	return t
}

func (p *Parser) at(raw string) bool {
	t := p.peek()
	return (t.Kind == lexer.TokenKeyword || t.Kind == lexer.TokenOperator || t.Kind == lexer.TokenPunctuator) && t.Raw == raw
}

func (p *Parser) expect(raw string) (lexer.Token, error) {
	if !p.at(raw) {
		return lexer.Token{}, p.errorf("expected %q, got %q", raw, p.peek().Raw)
	}

	return p.advance(), nil
}

func (p *Parser) errorf(format string, args ...any) error {
	return cerr.New(cerr.KindParse, p.peek().Span, format, args...)
}

// ParseResult is a non-terminal's outcome: either a node handle, or an
// error carrying the offending token (spec.md §4.3).
type ParseResult struct {
	Node ast.Handle
	Err  error
}

// TranslationUnit parses the whole token stream as a sequence of top-level
// declarations.
func (p *Parser) TranslationUnit() ([]ast.Handle, error) {
	var decls []ast.Handle

	for p.peek().Kind != lexer.TokenEOF {
		d, err := p.parseTopLevelDeclaration()
		if err != nil {
			return decls, err
		}

		if d != ast.NoHandle {
			decls = append(decls, d)
		}
	}

	return decls, nil
}

func (p *Parser) parseTopLevelDeclaration() (ast.Handle, error) {
	switch {
	case p.at("template"):
		return p.parseTemplateDeclaration()
	case p.at("enum"):
		return p.parseEnumDeclaration()
	case p.at("namespace"):
		return p.parseNamespaceDeclaration()
	case p.at("struct") || p.at("class"):
		return p.parseStructDeclaration()
	case p.at("static_assert"):
		return p.parseStaticAssert()
	default:
		return p.parseFunctionOrVariableDeclaration()
	}
}
