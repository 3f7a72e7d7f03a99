// Package diagnostics renders the driver's collected *cerr.CompilerError
// values into the stderr text format spec.md §7 specifies
// ("<file>:<line>:<col>: error: <message>" plus an include-stack) and,
// when --json-diagnostics is set, into a machine-readable JSON document
// for external tooling.
//
// The text path just leans on cerr.CompilerError.Error(); the JSON path is
// the one place this module reaches for tidwall/gjson and tidwall/sjson
// (spec's Domain Stack) instead of a hand-rolled marshaling struct, since
// the document's shape (an array that grows one diagnostic at a time, plus
// a running counts-by-severity object) is exactly the incremental
// set-a-path, read-a-path pattern those two libraries are built for.
package diagnostics

import (
	"fmt"
	"io"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/cppnc/cppnc/internal/cerr"
)

// Severity labels a diagnostic the way spec.md §7 distinguishes fatal
// errors from warnings ("Warnings follow the same format with `warning:`").
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one reported problem, flattened from a *cerr.CompilerError
// (or raised directly by the driver for warnings cerr has no Kind for).
type Diagnostic struct {
	Severity     Severity
	Kind         cerr.Kind
	File         string
	Line         int
	Column       int
	Message      string
	IncludedFrom []string
}

// FromError builds a Diagnostic from a *cerr.CompilerError, rendering its
// include stack into the "included from file:line" lines §7 describes.
func FromError(err *cerr.CompilerError, severity Severity) Diagnostic {
	d := Diagnostic{
		Severity: severity,
		Kind:     err.Kind,
		File:     err.Span.Start.Filename,
		Line:     err.Span.Start.Line,
		Column:   err.Span.Start.Column,
		Message:  err.Message,
	}

	for _, f := range err.Include {
		d.IncludedFrom = append(d.IncludedFrom, fmt.Sprintf("%s:%d", f.File, f.Line))
	}

	return d
}

// Text renders d in spec.md §7's user-visible format.
func (d Diagnostic) Text() string {
	s := fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
	for _, frame := range d.IncludedFrom {
		s += fmt.Sprintf("\nincluded from %s", frame)
	}

	return s
}

// Collector accumulates diagnostics across a translation unit's run and
// renders them as either stderr text or a single JSON document.
type Collector struct {
	diags []Diagnostic
}

// Add appends d.
func (c *Collector) Add(d Diagnostic) { c.diags = append(c.diags, d) }

// AddError is a convenience wrapper building a Diagnostic from a
// *cerr.CompilerError at SeverityError.
func (c *Collector) AddError(err *cerr.CompilerError) { c.Add(FromError(err, SeverityError)) }

// HasErrors reports whether any collected diagnostic is SeverityError,
// the condition spec.md §7 ties to the process exit code.
func (c *Collector) HasErrors() bool {
	for _, d := range c.diags {
		if d.Severity == SeverityError {
			return true
		}
	}

	return false
}

// Diagnostics returns the collected diagnostics in report order.
func (c *Collector) Diagnostics() []Diagnostic { return c.diags }

// WriteText writes every diagnostic to w in spec.md §7's text format, one
// per line (trailing include-stack lines included).
func (c *Collector) WriteText(w io.Writer) error {
	for _, d := range c.diags {
		if _, err := fmt.Fprintln(w, d.Text()); err != nil {
			return err
		}
	}

	return nil
}

// WriteJSON renders the collector's diagnostics as a single JSON document
// of the shape `{"diagnostics":[...], "errorCount":N, "warningCount":N}`,
// built incrementally with sjson.SetRaw/sjson.Set rather than a struct tag
// marshal, so a diagnostic with an empty IncludedFrom list doesn't need a
// struct-field omitempty dance.
func (c *Collector) WriteJSON(w io.Writer) error {
	doc := `{"diagnostics":[],"errorCount":0,"warningCount":0}`

	errorCount, warningCount := 0, 0

	for i, d := range c.diags {
		item := "{}"

		var err error

		item, err = sjson.Set(item, "severity", string(d.Severity))
		if err != nil {
			return err
		}

		item, err = sjson.Set(item, "kind", string(d.Kind))
		if err != nil {
			return err
		}

		item, err = sjson.Set(item, "file", d.File)
		if err != nil {
			return err
		}

		item, err = sjson.Set(item, "line", d.Line)
		if err != nil {
			return err
		}

		item, err = sjson.Set(item, "column", d.Column)
		if err != nil {
			return err
		}

		item, err = sjson.Set(item, "message", d.Message)
		if err != nil {
			return err
		}

		for _, frame := range d.IncludedFrom {
			item, err = sjson.Set(item, "includedFrom.-1", frame)
			if err != nil {
				return err
			}
		}

		path := fmt.Sprintf("diagnostics.%d", i)

		doc, err = sjson.SetRaw(doc, path, item)
		if err != nil {
			return err
		}

		if d.Severity == SeverityError {
			errorCount++
		} else {
			warningCount++
		}
	}

	doc, err := sjson.Set(doc, "errorCount", errorCount)
	if err != nil {
		return err
	}

	doc, err = sjson.Set(doc, "warningCount", warningCount)
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, doc+"\n")

	return err
}

// Severities extracts every top-level "severity" field from a rendered
// JSON document, used by callers (and tests) that need to sanity-check a
// WriteJSON document without re-parsing it into Diagnostic values.
func Severities(jsonDoc string) []string {
	var out []string

	for _, item := range gjson.Get(jsonDoc, "diagnostics").Array() {
		out = append(out, item.Get("severity").String())
	}

	return out
}
