// Package position provides unified source code position tracking for the
// compiler: point positions, spans, and the preprocessor line map used to
// translate a flattened, macro-expanded buffer back to original source
// locations for diagnostics.
package position

import (
	"fmt"
	"path/filepath"
)

// Position represents a single point in source code.
type Position struct {
	Filename string // Source file name.
	Line     int    // 1-based line number.
	Column   int    // 1-based column number.
	Offset   int    // 0-based byte offset in source.
}

// IsValid reports whether the position has sane coordinates.
func (p Position) IsValid() bool {
	return p.Line > 0 && p.Column > 0 && p.Offset >= 0
}

// String renders "file:line:col", or "line:col" when Filename is empty.
func (p Position) String() string {
	if p.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", filepath.Base(p.Filename), p.Line, p.Column)
	}

	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Before reports whether p comes strictly before other in the same file.
func (p Position) Before(other Position) bool {
	if p.Filename != other.Filename {
		return p.Filename < other.Filename
	}

	return p.Offset < other.Offset
}

// Span is a half-open range [Start, End) of source code.
type Span struct {
	Start Position
	End   Position
}

// IsValid reports whether the span's endpoints are well formed.
func (s Span) IsValid() bool {
	return s.Start.IsValid() && s.End.IsValid() &&
		s.Start.Filename == s.End.Filename &&
		s.Start.Offset <= s.End.Offset
}

// String renders the span compactly, collapsing same-line ranges.
func (s Span) String() string {
	filename := ""
	if s.Start.Filename != "" {
		filename = filepath.Base(s.Start.Filename) + ":"
	}

	if s.Start.Line == s.End.Line {
		return fmt.Sprintf("%s%d:%d-%d", filename, s.Start.Line, s.Start.Column, s.End.Column)
	}

	return fmt.Sprintf("%s%d:%d-%d:%d", filename, s.Start.Line, s.Start.Column, s.End.Line, s.End.Column)
}

// LineEntry is one row of the preprocessor's line map: spec.md §3.8.
// SourceFileIndex indexes into the session's registered source file list;
// ParentLine is the preprocessed-buffer line number of the #include
// directive that pulled this file in (0 for the top-level translation
// unit), forming a tree that diagnostics walk to print an include stack.
type LineEntry struct {
	SourceFileIndex int
	SourceLine      int
	ParentLine      int
}

// LineMap associates every 1-based line of the flattened, preprocessed
// buffer with its originating (file, line) and include-parent line.
type LineMap struct {
	entries []LineEntry // entries[0] corresponds to preprocessed line 1.
	files   []string    // source file index -> path.
}

// NewLineMap creates an empty line map.
func NewLineMap() *LineMap {
	return &LineMap{files: []string{}}
}

// RegisterFile interns a source file path and returns its stable index,
// reusing the index if the file was already registered (re-included
// without #pragma once is tracked separately by the preprocessor).
func (lm *LineMap) RegisterFile(path string) int {
	for i, f := range lm.files {
		if f == path {
			return i
		}
	}

	lm.files = append(lm.files, path)

	return len(lm.files) - 1
}

// FilePath returns the path registered under idx.
func (lm *LineMap) FilePath(idx int) string {
	if idx < 0 || idx >= len(lm.files) {
		return "<unknown>"
	}

	return lm.files[idx]
}

// Append records the line map entry for the next preprocessed-buffer line.
func (lm *LineMap) Append(sourceFileIndex, sourceLine, parentLine int) {
	lm.entries = append(lm.entries, LineEntry{sourceFileIndex, sourceLine, parentLine})
}

// Len reports how many preprocessed lines have entries.
func (lm *LineMap) Len() int { return len(lm.entries) }

// Lookup resolves a 1-based preprocessed-buffer line to its entry. Ok is
// false when line is out of range.
func (lm *LineMap) Lookup(line int) (LineEntry, bool) {
	if line < 1 || line > len(lm.entries) {
		return LineEntry{}, false
	}

	return lm.entries[line-1], true
}

// IncludeFrame is one level of a reconstructed #include stack, printed as
// "included from <file>:<line>" per spec.md §7.
type IncludeFrame struct {
	File string
	Line int
}

// IncludeStack walks ParentLine back to the root, returning frames ordered
// outermost-last (the immediate includer first), matching the diagnostic
// format spec.md §7 requires.
func (lm *LineMap) IncludeStack(line int) []IncludeFrame {
	var frames []IncludeFrame

	seen := map[int]bool{}

	cur, ok := lm.Lookup(line)
	if !ok {
		return nil
	}

	for cur.ParentLine != 0 && !seen[cur.ParentLine] {
		seen[cur.ParentLine] = true

		parent, ok := lm.Lookup(cur.ParentLine)
		if !ok {
			break
		}

		frames = append(frames, IncludeFrame{File: lm.FilePath(parent.SourceFileIndex), Line: parent.SourceLine})
		cur = parent
	}

	return frames
}

// Resolve turns a preprocessed-buffer line/column into a full Position
// carrying the original file and source line.
func (lm *LineMap) Resolve(line, column, offset int) Position {
	e, ok := lm.Lookup(line)
	if !ok {
		return Position{Line: line, Column: column, Offset: offset}
	}

	return Position{Filename: lm.FilePath(e.SourceFileIndex), Line: e.SourceLine, Column: column, Offset: offset}
}
