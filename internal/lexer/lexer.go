// Package lexer tokenizes the preprocessor's flattened, macro-expanded
// buffer into a lazy stream of typed tokens (spec.md §4.2, §3.2), with
// source positions resolved through the preprocessor's position.LineMap
// and save/restore cursor support for the parser's speculative parsing.
package lexer

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/position"
)

// TokenKind tags a token (spec.md §3.2).
type TokenKind int

const (
	TokenEOF TokenKind = iota
	TokenKeyword
	TokenIdentifier
	TokenIntegerLiteral
	TokenFloatLiteral
	TokenStringLiteral
	TokenCharLiteral
	TokenOperator
	TokenPunctuator
)

// NumericClass classifies a parsed numeric literal's type suffix.
type NumericClass int

const (
	NumInt NumericClass = iota
	NumUnsigned
	NumLong
	NumUnsignedLong
	NumLongLong
	NumUnsignedLongLong
	NumFloat
	NumDouble
	NumLongDouble
)

// Token is one lexical unit: its kind, interned text, source position,
// and (for numeric literals) a pre-parsed value and class.
type Token struct {
	Kind  TokenKind
	Text  intern.Handle
	Span  position.Span
	Raw   string // kept alongside Text for convenience in the parser/tests

	IntValue   uint64
	FloatValue float64
	NumClass   NumericClass
}

// keywords is the C++ reserved-word set this compiler recognizes
// (spec.md §1: "roughly C++17/C++20").
var keywords = map[string]bool{
	"alignas": true, "alignof": true, "and": true, "asm": true, "auto": true,
	"bool": true, "break": true, "case": true, "catch": true, "char": true,
	"char8_t": true, "char16_t": true, "char32_t": true, "class": true,
	"concept": true, "const": true, "consteval": true, "constexpr": true,
	"const_cast": true, "continue": true, "decltype": true, "default": true,
	"delete": true, "do": true, "double": true, "dynamic_cast": true,
	"else": true, "enum": true, "explicit": true, "export": true,
	"extern": true, "false": true, "float": true, "for": true, "friend": true,
	"goto": true, "if": true, "inline": true, "int": true, "long": true,
	"mutable": true, "namespace": true, "new": true, "noexcept": true,
	"nullptr": true, "operator": true, "private": true, "protected": true,
	"public": true, "register": true, "reinterpret_cast": true,
	"requires": true, "return": true, "short": true, "signed": true,
	"sizeof": true, "static": true, "static_assert": true,
	"static_cast": true, "struct": true, "switch": true, "template": true,
	"this": true, "thread_local": true, "throw": true, "true": true,
	"try": true, "typedef": true, "typeid": true, "typename": true,
	"union": true, "unsigned": true, "using": true, "virtual": true,
	"void": true, "volatile": true, "wchar_t": true, "while": true,
}

// Lexer is a cursor over the preprocessed buffer, pulling tokens lazily
// and supporting cursor Save/Restore for backtracking parsers.
type Lexer struct {
	strings *intern.Interner
	lines   *position.LineMap
	input   string
	filename string

	pos    int
	line   int
	col    int
}

// New creates a Lexer over input, whose positions resolve through lines
// (built by the preprocessor) to original source locations.
func New(strs *intern.Interner, lines *position.LineMap, input, filename string) *Lexer {
	return &Lexer{strings: strs, lines: lines, input: input, filename: filename, line: 1, col: 1}
}

// Cursor is an opaque save point for backtracking.
type Cursor struct {
	pos, line, col int
}

// Save captures the current cursor.
func (l *Lexer) Save() Cursor { return Cursor{l.pos, l.line, l.col} }

// Restore rewinds to a previously saved cursor.
func (l *Lexer) Restore(c Cursor) { l.pos, l.line, l.col = c.pos, c.line, c.col }

func (l *Lexer) peek() byte {
	if l.pos >= len(l.input) {
		return 0
	}

	return l.input[l.pos]
}

func (l *Lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.input) {
		return 0
	}

	return l.input[l.pos+off]
}

func (l *Lexer) advance() byte {
	c := l.peek()
	l.pos++

	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}

	return c
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= utf8.RuneSelf
}

func isIdentCont(c byte) bool { return isIdentStart(c) || isDigit(c) }

func (l *Lexer) skipWhitespace() {
	for {
		c := l.peek()
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.advance()
			continue
		}

		break
	}
}

func (l *Lexer) pos2position(offset, line, col int) position.Position {
	resolved := l.lines.Resolve(line, col, offset)
	if resolved.Filename == "" {
		resolved.Filename = l.filename
	}

	return resolved
}

// Next produces the next token from the stream, terminating with an
// infinite run of TokenEOF once the buffer is exhausted.
func (l *Lexer) Next() Token {
	l.skipWhitespace()

	startOffset, startLine, startCol := l.pos, l.line, l.col

	if l.pos >= len(l.input) {
		span := l.spanFrom(startOffset, startLine, startCol)
		return Token{Kind: TokenEOF, Span: span}
	}

	c := l.peek()

	switch {
	case c == 'R' && l.peekAt(1) == '"':
		return l.lexRawString(startOffset, startLine, startCol)
	case isIdentStart(c):
		return l.lexIdentifier(startOffset, startLine, startCol)
	case isDigit(c):
		return l.lexNumber(startOffset, startLine, startCol)
	case c == '"':
		return l.lexString(startOffset, startLine, startCol, false)
	case c == '\'':
		return l.lexChar(startOffset, startLine, startCol)
	default:
		return l.lexOperator(startOffset, startLine, startCol)
	}
}

func (l *Lexer) spanFrom(startOffset, startLine, startCol int) position.Span {
	start := l.pos2position(startOffset, startLine, startCol)
	end := l.pos2position(l.pos, l.line, l.col)

	return position.Span{Start: start, End: end}
}

func (l *Lexer) lexIdentifier(startOffset, startLine, startCol int) Token {
	for isIdentCont(l.peek()) {
		l.advance()
	}

	text := l.input[startOffset:l.pos]
	kind := TokenIdentifier

	if keywords[text] {
		kind = TokenKeyword
	}

	return Token{Kind: kind, Text: l.strings.Intern(text), Raw: text, Span: l.spanFrom(startOffset, startLine, startCol)}
}

func (l *Lexer) lexNumber(startOffset, startLine, startCol int) Token {
	isFloat := false

	if l.peek() == '0' && (l.peekAt(1) == 'x' || l.peekAt(1) == 'X') {
		l.advance()
		l.advance()

		for isHexDigit(l.peek()) {
			l.advance()
		}
	} else if l.peek() == '0' && (l.peekAt(1) == 'b' || l.peekAt(1) == 'B') {
		l.advance()
		l.advance()

		for l.peek() == '0' || l.peek() == '1' || l.peek() == '\'' {
			l.advance()
		}
	} else {
		for isDigit(l.peek()) || l.peek() == '\'' {
			l.advance()
		}

		if l.peek() == '.' {
			isFloat = true

			l.advance()

			for isDigit(l.peek()) {
				l.advance()
			}
		}

		if l.peek() == 'e' || l.peek() == 'E' {
			isFloat = true

			l.advance()

			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}

			for isDigit(l.peek()) {
				l.advance()
			}
		}
	}

	numEnd := l.pos
	class := classifySuffix(l, isFloat)

	text := l.input[startOffset:l.pos]
	tok := Token{Raw: text, Text: l.strings.Intern(text), Span: l.spanFrom(startOffset, startLine, startCol), NumClass: class}

	digits := strings.ReplaceAll(l.input[startOffset:numEnd], "'", "")

	if isFloat {
		tok.Kind = TokenFloatLiteral
		tok.FloatValue, _ = strconv.ParseFloat(digits, 64)
	} else {
		tok.Kind = TokenIntegerLiteral
		tok.IntValue = parseIntLiteral(digits)
	}

	return tok
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func classifySuffix(l *Lexer, isFloat bool) NumericClass {
	unsigned, long, longlong, isF, isD := false, false, false, false, false

	for {
		switch l.peek() {
		case 'u', 'U':
			unsigned = true
			l.advance()
		case 'l', 'L':
			if l.peekAt(1) == l.peek() {
				longlong = true
				l.advance()
				l.advance()
			} else {
				long = true
				l.advance()
			}
		case 'f', 'F':
			isF = true
			l.advance()
		default:
			goto done
		}
	}

done:
	if isFloat || isF || isD {
		if isF {
			return NumFloat
		}

		return NumDouble
	}

	switch {
	case unsigned && longlong:
		return NumUnsignedLongLong
	case longlong:
		return NumLongLong
	case unsigned && long:
		return NumUnsignedLong
	case long:
		return NumLong
	case unsigned:
		return NumUnsigned
	default:
		return NumInt
	}
}

func parseIntLiteral(s string) uint64 {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, _ := strconv.ParseUint(s[2:], 16, 64)
		return v
	}

	if strings.HasPrefix(s, "0b") || strings.HasPrefix(s, "0B") {
		v, _ := strconv.ParseUint(s[2:], 2, 64)
		return v
	}

	if len(s) > 1 && s[0] == '0' {
		v, _ := strconv.ParseUint(s[1:], 8, 64)
		return v
	}

	v, _ := strconv.ParseUint(s, 10, 64)

	return v
}

func (l *Lexer) lexString(startOffset, startLine, startCol int, _ bool) Token {
	l.advance() // opening quote

	for l.peek() != '"' && l.peek() != 0 {
		if l.peek() == '\\' {
			l.advance()
		}

		l.advance()
	}

	if l.peek() == '"' {
		l.advance()
	}

	text := l.input[startOffset:l.pos]

	return Token{Kind: TokenStringLiteral, Text: l.strings.Intern(text), Raw: text, Span: l.spanFrom(startOffset, startLine, startCol)}
}

// lexRawString handles R"delim(...)delim" raw string literals.
func (l *Lexer) lexRawString(startOffset, startLine, startCol int) Token {
	l.advance() // 'R'
	l.advance() // '"'

	delimStart := l.pos
	for l.peek() != '(' && l.peek() != 0 {
		l.advance()
	}

	delim := l.input[delimStart:l.pos]

	if l.peek() == '(' {
		l.advance()
	}

	terminator := ")" + delim + "\""

	for l.pos < len(l.input) && !strings.HasPrefix(l.input[l.pos:], terminator) {
		l.advance()
	}

	for i := 0; i < len(terminator) && l.pos < len(l.input); i++ {
		l.advance()
	}

	text := l.input[startOffset:l.pos]

	return Token{Kind: TokenStringLiteral, Text: l.strings.Intern(text), Raw: text, Span: l.spanFrom(startOffset, startLine, startCol)}
}

func (l *Lexer) lexChar(startOffset, startLine, startCol int) Token {
	l.advance() // opening quote

	for l.peek() != '\'' && l.peek() != 0 {
		if l.peek() == '\\' {
			l.advance()
		}

		l.advance()
	}

	if l.peek() == '\'' {
		l.advance()
	}

	text := l.input[startOffset:l.pos]

	return Token{Kind: TokenCharLiteral, Text: l.strings.Intern(text), Raw: text, Span: l.spanFrom(startOffset, startLine, startCol)}
}

// multiCharOperators is checked longest-first so greedy operators like
// "<=>" win over "<=" and "<" (spec.md §4.2).
var multiCharOperators = []string{
	"<=>", "->*", "...",
	"<<=", ">>=",
	"::", "->", "++", "--", "<<", ">>", "<=", ">=", "==", "!=",
	"&&", "||", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
}

func (l *Lexer) lexOperator(startOffset, startLine, startCol int) Token {
	remaining := l.input[l.pos:]

	for _, op := range multiCharOperators {
		if strings.HasPrefix(remaining, op) {
			for range op {
				l.advance()
			}

			return Token{Kind: TokenOperator, Raw: op, Text: l.strings.Intern(op), Span: l.spanFrom(startOffset, startLine, startCol)}
		}
	}

	c := l.advance()
	text := string(c)
	kind := TokenOperator

	switch c {
	case '(', ')', '{', '}', '[', ']', ';', ',':
		kind = TokenPunctuator
	}

	return Token{Kind: kind, Raw: text, Text: l.strings.Intern(text), Span: l.spanFrom(startOffset, startLine, startCol)}
}
