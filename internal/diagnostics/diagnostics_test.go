package diagnostics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/position"
)

func sampleError() *cerr.CompilerError {
	return cerr.New(cerr.KindSemantic, position.Span{
		Start: position.Position{Filename: "main.cpp", Line: 1, Column: 15},
		End:   position.Position{Filename: "main.cpp", Line: 1, Column: 28},
	}, "undefined variable %q in constant expression", "undefined_name")
}

func TestTextMatchesSpecFormat(t *testing.T) {
	d := FromError(sampleError(), SeverityError)

	text := d.Text()
	if !strings.HasPrefix(text, "main.cpp:1:15: error:") {
		t.Fatalf("unexpected diagnostic text: %q", text)
	}
}

func TestCollectorHasErrorsOnlyAfterError(t *testing.T) {
	var c Collector

	if c.HasErrors() {
		t.Fatal("expected no errors in an empty collector")
	}

	c.Add(Diagnostic{Severity: SeverityWarning, File: "a.cpp", Message: "unused thing"})
	if c.HasErrors() {
		t.Fatal("a warning alone must not count as an error")
	}

	c.AddError(sampleError())
	if !c.HasErrors() {
		t.Fatal("expected HasErrors true after AddError")
	}
}

func TestWriteJSONRoundTripsThroughGJSON(t *testing.T) {
	var c Collector

	c.AddError(sampleError())
	c.Add(Diagnostic{Severity: SeverityWarning, File: "a.cpp", Line: 2, Column: 1, Message: "shadowed declaration"})

	var buf bytes.Buffer
	if err := c.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	doc := buf.String()

	if got := gjson.Get(doc, "errorCount").Int(); got != 1 {
		t.Fatalf("expected errorCount 1, got %d", got)
	}

	if got := gjson.Get(doc, "warningCount").Int(); got != 1 {
		t.Fatalf("expected warningCount 1, got %d", got)
	}

	severities := Severities(doc)
	if len(severities) != 2 || severities[0] != "error" || severities[1] != "warning" {
		t.Fatalf("unexpected severities: %v", severities)
	}

	if got := gjson.Get(doc, "diagnostics.0.file").String(); got != "main.cpp" {
		t.Fatalf("expected first diagnostic file main.cpp, got %q", got)
	}
}
