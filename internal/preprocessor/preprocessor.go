// Package preprocessor implements the translation-unit preprocessor of
// spec.md §4.1: directive handling (#include, #define, #if family,
// #pragma, #line, #error, #warning, #undef), macro expansion (object-like,
// function-like, variadic, #, ##, __COUNTER__, __FILE__, __LINE__,
// __TIMESTAMP__), and production of a single flat character buffer plus a
// position.LineMap.
package preprocessor

import (
	"os"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/position"
)

// MaxIncludeDepth is the hard include-stack cap of spec.md §4.1.
const MaxIncludeDepth = 200

// Identity selects the seed macro set (spec.md §4.1).
type Identity int

const (
	IdentityMSVC Identity = iota
	IdentityGCCClang
)

// Macro is one #define entry.
type Macro struct {
	Name           string
	IsFunctionLike bool
	Params         []string
	IsVariadic     bool // trailing ... parameter
	Body           string
}

// Preprocessor runs the directive/macro-expansion state machine over one
// translation unit and its transitive #includes, producing a flat,
// expanded buffer and the line map that relates every output line back to
// its source.
type Preprocessor struct {
	IncludeDirs []string
	Identity    Identity

	macros       map[string]*Macro
	onceFiles    map[string]bool
	includeStack []includeFrame
	lineMap      *position.LineMap
	out          strings.Builder
	outLine      int // 1-based count of lines appended to out so far
	counter      int // __COUNTER__ state

	expanding map[string]bool // recursive-expansion guard
}

type includeFrame struct {
	path       string
	dir        string
	parentLine int // preprocessed-output line of the #include directive
	dirIndex   int // index into IncludeDirs that found this file; -1 otherwise
}

// New creates a Preprocessor seeded with the builtin macros of spec.md
// §4.1.
func New(includeDirs []string, identity Identity) *Preprocessor {
	p := &Preprocessor{
		IncludeDirs: includeDirs,
		Identity:    identity,
		macros:      map[string]*Macro{},
		onceFiles:   map[string]bool{},
		lineMap:     position.NewLineMap(),
		expanding:   map[string]bool{},
	}
	p.seedBuiltinMacros()

	return p
}

func (p *Preprocessor) seedBuiltinMacros() {
	def := func(name, body string) { p.macros[name] = &Macro{Name: name, Body: body} }

	def("__cplusplus", "202002L")
	def("__STDC__", "1")
	def("__DATE__", `"`+time.Now().Format("Jan _2 2006")+`"`)
	def("__TIMESTAMP__", `"`+time.Now().Format("Mon Jan _2 15:04:05 2006")+`"`)

	switch p.Identity {
	case IdentityMSVC:
		def("_MSC_VER", "1939")
		def("_WIN32", "1")
		def("_M_X64", "100")
	case IdentityGCCClang:
		def("__GNUC__", "13")
		def("__x86_64__", "1")
		def("__linux__", "1")
	}
	// __FILE__, __LINE__, __COUNTER__ are handled as dynamic pseudo-macros
	// during expansion rather than stored bodies, since their value
	// depends on expansion site.
}

// LineMap returns the line map built during Run.
func (p *Preprocessor) LineMap() *position.LineMap { return p.lineMap }

// Output returns the flattened, expanded buffer built during Run.
func (p *Preprocessor) Output() string { return p.out.String() }

// Run preprocesses the top-level file at path and returns the flattened
// buffer; the LineMap and Output accessors retrieve the two halves of
// spec.md §4.1's stated contract.
func (p *Preprocessor) Run(path string) (string, error) {
	if err := p.readFile(path, 0, -1); err != nil {
		return "", err
	}

	return p.Output(), nil
}

// readFile recursively processes one file, pushed onto the include stack
// at includeLine (the preprocessed-output line number of the directive
// that pulled it in; 0 for the top-level file). dirIndex records which
// IncludeDirs entry resolved this file (-1 when it came from the current
// directory or is the top-level input) so a later #include_next inside it
// can resume the search from the following directory (spec.md §4.1). It
// detects #pragma once and refuses to re-enter a previously marked file,
// and enforces MaxIncludeDepth.
func (p *Preprocessor) readFile(path string, includeLine, dirIndex int) error {
	if len(p.includeStack) >= MaxIncludeDepth {
		return cerr.New(cerr.KindPreprocess, position.Span{}, "include depth exceeded")
	}

	if p.onceFiles[path] {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cerr.New(cerr.KindIO, position.Span{}, "cannot read include file %q: %v", path, err)
	}

	data, err := decodeSource(raw)
	if err != nil {
		return cerr.New(cerr.KindIO, position.Span{}, "cannot decode %q: %v", path, err)
	}

	fileIdx := p.lineMap.RegisterFile(path)
	dir := dirOf(path)

	p.includeStack = append(p.includeStack, includeFrame{path: path, dir: dir, parentLine: includeLine, dirIndex: dirIndex})
	defer func() { p.includeStack = p.includeStack[:len(p.includeStack)-1] }()

	return p.preprocessLines(data, fileIdx)
}

// decodeSource strips a UTF-8 byte-order mark, the one encoding wrinkle
// real C++ source files carry that the rest of the pipeline (which
// assumes plain UTF-8 bytes) must never see.
func decodeSource(raw []byte) (string, error) {
	dec := unicode.UTF8BOM.NewDecoder()

	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", err
	}

	return string(out), nil
}

func dirOf(path string) string {
	i := strings.LastIndexAny(path, "/\\")
	if i < 0 {
		return "."
	}

	return path[:i]
}

// condFrame is one level of the #if/#ifdef/#ifndef conditional stack,
// spec.md §4.1: two parallel flags, Skipping and AnyBranchTrue.
type condFrame struct {
	skipping      bool
	anyBranchTrue bool
	parentSkip    bool // whether the enclosing context was already skipping
}

// preprocessLines runs the line-driven state machine over one file's raw
// text: backslash-continuation joining, comment stripping, directive
// recognition, and macro expansion of ordinary lines.
func (p *Preprocessor) preprocessLines(text string, fileIdx int) error {
	joined, lineOfJoined := joinContinuations(text)
	stripped := stripComments(joined)

	var condStack []condFrame

	skipping := func() bool {
		if len(condStack) == 0 {
			return false
		}

		return condStack[len(condStack)-1].skipping
	}

	lines := strings.Split(stripped, "\n")
	// A trailing newline ends the last line rather than starting an empty one.
	if n := len(lines); n > 1 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	logicalLine := 1 // #line-adjustable source line counter for this file

	for i, raw := range lines {
		srcLine := lineOfJoined[i]
		trimmed := strings.TrimLeft(raw, " \t")

		if strings.HasPrefix(trimmed, "#") {
			directive := strings.TrimSpace(trimmed[1:])
			if err := p.handleDirective(directive, fileIdx, srcLine, &logicalLine, &condStack, skipping()); err != nil {
				return err
			}

			continue
		}

		if skipping() {
			continue
		}

		expanded := p.expandLine(raw)
		p.appendLineWithTracking(expanded, fileIdx, logicalLine)
		logicalLine++
	}

	if len(condStack) > 0 {
		return cerr.New(cerr.KindPreprocess, position.Span{}, "unmatched #if/#ifdef/#ifndef")
	}

	return nil
}

// appendLineWithTracking appends one output line and records its line map
// entry, per spec.md §4.1.
func (p *Preprocessor) appendLineWithTracking(line string, sourceFileIdx, sourceLine int) {
	parent := 0
	if len(p.includeStack) > 0 {
		parent = p.includeStack[len(p.includeStack)-1].parentLine
	}

	p.out.WriteString(line)
	p.out.WriteByte('\n')
	p.outLine++
	p.lineMap.Append(sourceFileIdx, sourceLine, parent)
}

// joinContinuations merges physical lines ending with a trailing
// backslash, returning the joined text and, for every resulting line, the
// original source line number that its first physical line started on.
func joinContinuations(text string) (string, []int) {
	raw := strings.Split(text, "\n")

	var outLines []string

	var outSrcLine []int

	i := 0

	for i < len(raw) {
		start := i
		line := raw[i]

		for strings.HasSuffix(line, "\\") && i+1 < len(raw) {
			line = line[:len(line)-1] + raw[i+1]
			i++
		}

		outLines = append(outLines, line)
		outSrcLine = append(outSrcLine, start+1)
		i++
	}

	return strings.Join(outLines, "\n"), outSrcLine
}

// stripComments removes /* ... */ (possibly cross-line) and // comments,
// replacing them with a single space to preserve token separation, and
// preserving newlines inside block comments so line numbering in the
// caller's per-line split stays aligned.
func stripComments(text string) string {
	var b strings.Builder

	n := len(text)
	i := 0

	for i < n {
		c := text[i]

		switch {
		case c == '/' && i+1 < n && text[i+1] == '/':
			for i < n && text[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < n && text[i+1] == '*':
			i += 2

			for i+1 < n && !(text[i] == '*' && text[i+1] == '/') {
				if text[i] == '\n' {
					b.WriteByte('\n')
				}

				i++
			}

			i += 2
			b.WriteByte(' ')
		case c == '"' || c == '\'':
			j := i + 1
			for j < n && text[j] != c {
				if text[j] == '\\' && j+1 < n {
					j++
				}

				j++
			}

			if j < n {
				j++
			}

			b.WriteString(text[i:j])
			i = j
		default:
			b.WriteByte(c)
			i++
		}
	}

	return b.String()
}

func identifierIsKeywordLike(name string) bool {
	return name == "defined" || name == "__has_builtin" || name == "__has_include"
}
