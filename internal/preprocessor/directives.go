package preprocessor

import (
	"strconv"
	"strings"

	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/includeresolve"
	"github.com/cppnc/cppnc/internal/position"
)

// handleDirective dispatches one recognized `#...` line. logicalLine is
// the current file's #line-adjustable source line counter, advanced here
// for every directive that consumes a physical line (all of them) so
// later non-directive lines keep correct numbering; condStack/currentSkip
// carry the conditional-compilation state across calls for this file.
func (p *Preprocessor) handleDirective(directive string, fileIdx, srcLine int, logicalLine *int, condStack *[]condFrame, parentSkipping bool) error {
	defer func() { *logicalLine++ }()

	name, rest := splitDirective(directive)

	switch name {
	case "include", "include_next":
		if parentSkipping {
			return nil
		}

		return p.handleInclude(rest, name == "include_next", fileIdx)

	case "define":
		if parentSkipping {
			return nil
		}

		return p.handleDefine(rest)

	case "undef":
		if parentSkipping {
			return nil
		}

		p.handleUndef(rest)

		return nil

	case "if":
		return p.pushCond(condStack, parentSkipping, func() (bool, error) { return p.evalConditionLine(rest) })

	case "ifdef":
		ident := strings.TrimSpace(rest)

		return p.pushCond(condStack, parentSkipping, func() (bool, error) { _, ok := p.macros[ident]; return ok, nil })

	case "ifndef":
		ident := strings.TrimSpace(rest)

		return p.pushCond(condStack, parentSkipping, func() (bool, error) { _, ok := p.macros[ident]; return !ok, nil })

	case "elif":
		return p.handleElif(condStack, rest)

	case "else":
		return p.handleElse(condStack)

	case "endif":
		if len(*condStack) == 0 {
			return cerr.New(cerr.KindPreprocess, position.Span{}, "unmatched #endif")
		}

		*condStack = (*condStack)[:len(*condStack)-1]

		return nil

	case "pragma":
		// "#pragma once" is interpreted; everything else (pack, etc.) is
		// emitted verbatim for the parser per spec.md §4.1.
		if strings.TrimSpace(rest) == "once" {
			if len(p.includeStack) > 0 {
				p.onceFiles[p.includeStack[len(p.includeStack)-1].path] = true
			}

			return nil
		}

		if !parentSkipping {
			p.appendLineWithTracking("#pragma "+strings.TrimSpace(rest), fileIdx, srcLine)
		}

		return nil

	case "line":
		if !parentSkipping {
			if fields := strings.Fields(rest); len(fields) > 0 {
				if n, err := strconv.Atoi(fields[0]); err == nil {
					*logicalLine = n - 1 // compensate for the deferred increment
				}
			}
		}

		return nil

	case "error":
		if parentSkipping {
			return nil
		}

		return cerr.New(cerr.KindPreprocess, position.Span{}, "#error %s", strings.TrimSpace(rest))

	case "warning":
		return nil

	default:
		if parentSkipping {
			return nil
		}
		// Unknown directives are tolerated (e.g. vendor-specific pragmas
		// already spelled as their own keyword); ignored rather than fatal.
		return nil
	}
}

func splitDirective(directive string) (name, rest string) {
	directive = strings.TrimSpace(directive)
	i := 0

	for i < len(directive) && !isSpace(directive[i]) {
		i++
	}

	return directive[:i], strings.TrimSpace(directive[i:])
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' }

// pushCond pushes one conditional-stack frame, invoking eval only if the
// enclosing context is not already skipping (spec.md §4.1: "A nested #if
// while skipping always pushes (skipping=true, any_branch_true=true) to
// guarantee its #else/#elif are inert").
func (p *Preprocessor) pushCond(condStack *[]condFrame, parentSkipping bool, eval func() (bool, error)) error {
	if parentSkipping {
		*condStack = append(*condStack, condFrame{skipping: true, anyBranchTrue: true, parentSkip: true})
		return nil
	}

	ok, err := eval()
	if err != nil {
		return err
	}

	*condStack = append(*condStack, condFrame{skipping: !ok, anyBranchTrue: ok, parentSkip: false})

	return nil
}

func (p *Preprocessor) handleElif(condStack *[]condFrame, rest string) error {
	if len(*condStack) == 0 {
		return cerr.New(cerr.KindPreprocess, position.Span{}, "unmatched #elif")
	}

	top := &(*condStack)[len(*condStack)-1]
	if top.parentSkip {
		return nil
	}

	if top.anyBranchTrue {
		top.skipping = true
		return nil
	}

	ok, err := p.evalConditionLine(rest)
	if err != nil {
		return err
	}

	top.skipping = !ok
	if ok {
		top.anyBranchTrue = true
	}

	return nil
}

func (p *Preprocessor) handleElse(condStack *[]condFrame) error {
	if len(*condStack) == 0 {
		return cerr.New(cerr.KindPreprocess, position.Span{}, "unmatched #else")
	}

	top := &(*condStack)[len(*condStack)-1]
	if top.parentSkip {
		return nil
	}

	top.skipping = top.anyBranchTrue
	top.anyBranchTrue = true

	return nil
}

// handleInclude resolves and recursively processes a #include /
// #include_next target.
func (p *Preprocessor) handleInclude(rest string, isNext bool, fileIdx int) error {
	quoted := strings.HasPrefix(rest, "\"")
	angled := strings.HasPrefix(rest, "<")

	var name string

	if quoted || angled {
		open, close := rest[0], byte('"')
		if open == '<' {
			close = '>'
		}

		end := strings.IndexByte(rest[1:], close)
		if end < 0 {
			return cerr.New(cerr.KindPreprocess, position.Span{}, "malformed #include directive")
		}

		name = rest[1 : 1+end]
	} else {
		// Macro-expanded include target, e.g. #include MACRO_HEADER.
		expanded := strings.TrimSpace(p.expandLine(rest))
		if len(expanded) < 2 {
			return cerr.New(cerr.KindPreprocess, position.Span{}, "malformed #include directive")
		}

		quoted = expanded[0] == '"'
		name = expanded[1 : len(expanded)-1]
	}

	currentDir := "."
	fromIdx := -1

	if len(p.includeStack) > 0 {
		frame := p.includeStack[len(p.includeStack)-1]
		currentDir = frame.dir
		fromIdx = frame.dirIndex
	}

	var path string

	var idx int

	var ok bool

	if isNext {
		// Resume from the directory after the one that found the current
		// file (spec.md §4.1); fromIdx is -1 for a current-directory hit,
		// which degenerates to an ordinary full search.
		path, idx, ok = includeresolve.ResolveIncludeNext(name, p.IncludeDirs, fromIdx)
	} else {
		path, idx, ok = includeresolve.ResolveInclude(name, currentDir, p.IncludeDirs, quoted)
	}

	if !ok {
		return cerr.New(cerr.KindIO, position.Span{}, "include file not found: %s", name)
	}

	return p.readFile(path, p.outLine, idx)
}

func (p *Preprocessor) handleDefine(rest string) error {
	rest = strings.TrimLeft(rest, " \t")
	i := 0

	for i < len(rest) && isIdentChar(rest[i], i == 0) {
		i++
	}

	if i == 0 {
		return cerr.New(cerr.KindPreprocess, position.Span{}, "malformed #define: missing macro name")
	}

	name := rest[:i]
	m := &Macro{Name: name}

	if i < len(rest) && rest[i] == '(' {
		m.IsFunctionLike = true

		close := strings.IndexByte(rest[i:], ')')
		if close < 0 {
			return cerr.New(cerr.KindPreprocess, position.Span{}, "malformed macro argument list")
		}

		paramList := rest[i+1 : i+close]

		for _, raw := range strings.Split(paramList, ",") {
			param := strings.TrimSpace(raw)
			if param == "" {
				continue
			}

			if param == "..." {
				m.IsVariadic = true
				m.Params = append(m.Params, "__VA_ARGS__")
			} else {
				m.Params = append(m.Params, param)
			}
		}

		m.Body = strings.TrimSpace(rest[i+close+1:])
	} else {
		m.Body = strings.TrimSpace(rest[i:])
	}

	p.macros[name] = m

	return nil
}

func (p *Preprocessor) handleUndef(rest string) {
	delete(p.macros, strings.TrimSpace(rest))
}

func isIdentChar(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}

	if !first && c >= '0' && c <= '9' {
		return true
	}

	return false
}
