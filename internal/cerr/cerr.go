// Package cerr defines the compiler's error taxonomy (spec.md §7). Every
// phase of the pipeline reports failures through *CompilerError so the
// top-level driver can format a consistent diagnostic and decide whether
// the translation unit, a single function, or the whole process must stop.
package cerr

import (
	"fmt"

	"github.com/cppnc/cppnc/internal/position"
)

// Kind classifies where and how badly a failure bites, matching the table
// in spec.md §7.
type Kind string

const (
	KindIO                         Kind = "IO"
	KindPreprocess                 Kind = "Preprocess"
	KindParse                      Kind = "Parse"
	KindSemantic                   Kind = "Semantic"
	KindConstexprTemplateDependent Kind = "ConstexprTemplateDependent"
	KindConstexprHard              Kind = "ConstexprHard"
	KindCodegen                    Kind = "Codegen"
	KindInternal                   Kind = "Internal"
)

// Recoverable reports whether callers may treat this kind as non-fatal.
// Only ConstexprTemplateDependent is recovered in the ordinary sense
// (deferred re-evaluation after template substitution); Codegen errors are
// isolated per-function by the caller rather than being "recoverable" at
// this layer.
func (k Kind) Recoverable() bool { return k == KindConstexprTemplateDependent }

// CompilerError is the concrete error type threaded through every phase.
type CompilerError struct {
	Kind    Kind
	Message string
	Span    position.Span
	Include []position.IncludeFrame // reconstructed via LineMap.IncludeStack
}

// Error implements the error interface with the spec.md §7 diagnostic
// format: "<file>:<line>:<col>: error: <message>" plus include-stack lines.
func (e *CompilerError) Error() string {
	s := fmt.Sprintf("%s: error: %s", e.Span.Start.String(), e.Message)
	for _, f := range e.Include {
		s += fmt.Sprintf("\nincluded from %s:%d", f.File, f.Line)
	}

	return s
}

// New builds a CompilerError of the given kind at span.
func New(kind Kind, span position.Span, format string, args ...any) *CompilerError {
	return &CompilerError{Kind: kind, Message: fmt.Sprintf(format, args...), Span: span}
}

// WithIncludeStack attaches a reconstructed include chain (from
// LineMap.IncludeStack) to the error, returning the same error for
// chaining at the call site.
func (e *CompilerError) WithIncludeStack(frames []position.IncludeFrame) *CompilerError {
	e.Include = frames
	return e
}

// IsKind reports whether err is a *CompilerError of kind k.
func IsKind(err error, k Kind) bool {
	ce, ok := err.(*CompilerError)
	return ok && ce.Kind == k
}
