package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/cerr"
	"github.com/cppnc/cppnc/internal/codegen"
	"github.com/cppnc/cppnc/internal/codeview"
	"github.com/cppnc/cppnc/internal/consteval"
	"github.com/cppnc/cppnc/internal/diagnostics"
	"github.com/cppnc/cppnc/internal/dwarfcfi"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/logging"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/objectfile"
	"github.com/cppnc/cppnc/internal/parser"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/preprocessor"
	"github.com/cppnc/cppnc/internal/session"
)

// applyConfig merges a loaded YAML Config into sess, letting individual
// CLI flags (applied afterward by configureSession) override it.
func applyConfig(sess *session.Session, cfg session.Config) {
	sess.IncludeDirs = append(sess.IncludeDirs, cfg.IncludeDirs...)
	sess.NoExceptions = cfg.NoExceptions
	sess.NoAccessControl = cfg.NoAccessControl
	sess.EagerInstantiate = cfg.EagerInstantiate

	switch strings.ToLower(cfg.Mangling) {
	case "msvc":
		sess.Mangling = session.ManglingMSVC
	case "itanium":
		sess.Mangling = session.ManglingItanium
	}

	switch strings.ToLower(cfg.Identity) {
	case "gcc", "clang":
		sess.Identity = session.IdentityGCCClang
	case "msvc":
		sess.Identity = session.IdentityMSVC
	}

	if cfg.RequiresMinVersion != "" {
		if ok, err := session.CheckRequires(cfg.RequiresMinVersion); err == nil && !ok {
			fmt.Fprintf(os.Stderr, "cppnc: warning: compiler version does not satisfy requires %q\n", cfg.RequiresMinVersion)
		}
	}
}

// configureSession applies the flag-derived overrides to sess, and
// defaults the object format to the host's native format when nothing
// else selects one explicitly.
func configureSession(sess *session.Session, manglingFlag string, gccCompat, clangCompat, noExceptions, noAccessControl, eager bool) {
	switch strings.ToLower(manglingFlag) {
	case "msvc":
		sess.Mangling = session.ManglingMSVC
	case "itanium":
		sess.Mangling = session.ManglingItanium
	}

	if gccCompat {
		sess.Identity = session.IdentityGCCClang
	}

	if clangCompat {
		sess.Identity = session.IdentityGCCClang
	}

	if noExceptions {
		sess.NoExceptions = true
	}

	if noAccessControl {
		sess.NoAccessControl = true
	}

	if eager {
		sess.EagerInstantiate = true
	}

	if hostIsWindows() {
		sess.Format = session.ObjectCOFF
	} else {
		sess.Format = session.ObjectELF
	}
}

func configureLogging(sess *session.Session, verbose, debug bool, logLevel string) {
	level := logging.LevelWarn

	switch {
	case debug:
		level = logging.LevelDebug
	case verbose:
		level = logging.LevelVerbose
	}

	if logLevel != "" {
		// "--log-level category:level" or a bare "level"; this driver
		// doesn't track per-category loggers (spec.md §9's stores are
		// process-wide, not per-subsystem), so only the level portion is
		// honored, matching what a single shared Logger can express.
		parts := strings.Split(logLevel, ":")
		if lvl, ok := parseLevel(parts[len(parts)-1]); ok {
			level = lvl
		}
	}

	sess.Log = logging.New(os.Stderr, level)
}

func parseLevel(name string) (logging.Level, bool) {
	switch strings.ToLower(name) {
	case "error":
		return logging.LevelError, true
	case "warn", "warning":
		return logging.LevelWarn, true
	case "info":
		return logging.LevelInfo, true
	case "verbose":
		return logging.LevelVerbose, true
	case "debug":
		return logging.LevelDebug, true
	default:
		return 0, false
	}
}

func newParser(sess *session.Session, pp *preprocessor.Preprocessor, arena *ast.Arena, source, filename string) *parser.Parser {
	return parser.New(sess.Strings, pp.LineMap(), sess.Types, sess.Symbols, sess.Templates, arena, source, filename)
}

// checkStaticAsserts evaluates every top-level static_assert declaration
// (spec.md §8's "constexpr int fact..." scenario), returning the first
// failure as a *cerr.CompilerError.
func checkStaticAsserts(sess *session.Session, arena *ast.Arena, decls []ast.Handle) error {
	ctx := &consteval.EvaluationContext{
		Strings: sess.Strings,
		Symbols: sess.Symbols,
		Types:   sess.Types,
		Arena:   arena,
	}

	for _, h := range decls {
		n := arena.Get(h)
		if n.Kind != ast.KindDeclaration {
			continue
		}

		if err := ctx.CheckStaticAssert(n, sess.Strings); err != nil {
			return err
		}
	}

	return nil
}

// compileModule runs codegen over every lowered function, appending its
// code into a shared .text section and recording symbols/relocations,
// then emits the globals into .data/.bss and the target's exception and
// debug sections (.gcc_except_table/.eh_frame/.note.GNU-stack on ELF,
// .debug$S/.drectve on COFF).
// Per spec.md §7 codegen errors are isolated per function: a failure adds
// a diagnostic and skips that function rather than aborting the whole
// translation unit.
func compileModule(sess *session.Session, mod *ir.Module, obj *objectfile.Object, scheme mangle.Scheme, target codegen.Target, input string, diags *diagnostics.Collector) error {
	text := obj.Section(".text")
	if text == nil {
		obj.Sections = append(obj.Sections, objectfile.Section{Name: ".text", Executable: true})
		text = obj.Section(".text")
	}

	var frameFuncs []dwarfcfi.FrameFunc

	var lsdaSection objectfile.Section

	var cvFuncs []codeview.Function

	var cvSignatures [][]uint32

	var cvReturns []uint32

	lsdaSection.Name = ".gcc_except_table"

	for _, f := range mod.Functions {
		result, err := codegen.Compile(sess.Strings, f, scheme, target)
		if err != nil {
			if ce, ok := err.(*cerr.CompilerError); ok {
				diags.AddError(ce)
				continue
			}

			return err
		}

		cursor := uint32(len(text.Data))

		text.Data = append(text.Data, result.Code...)

		for _, reloc := range result.Relocations {
			reloc.Offset += int(cursor)
			text.Relocations = append(text.Relocations, reloc)
			ensureSymbolStub(obj, reloc.Symbol)
		}

		binding := objectfile.External
		if f.IsStatic {
			binding = objectfile.Local
		}

		obj.AddSymbol(objectfile.Symbol{
			Name:    result.MangledName,
			Section: ".text",
			Offset:  cursor,
			Binding: binding,
			Defined: true,
		})

		result.CV.Offset = cursor
		cvFuncs = append(cvFuncs, result.CV)
		cvSignatures = append(cvSignatures, result.CVSignature)
		cvReturns = append(cvReturns, result.CVReturn)

		ff := dwarfcfi.FrameFunc{Symbol: result.MangledName, Length: uint64(len(result.Code))}

		if len(result.TryRegions) > 0 && target == codegen.TargetELF {
			ff.LSDASymbol = appendLSDA(obj, &lsdaSection, result, len(frameFuncs))
			ensureSymbolStub(obj, result.PersonalitySymbol)
		}

		frameFuncs = append(frameFuncs, ff)
	}

	emitGlobals(sess, mod, obj)

	if target == codegen.TargetELF {
		if len(lsdaSection.Data) > 0 {
			obj.Sections = append(obj.Sections, lsdaSection)
		}

		emitEHFrame(obj, frameFuncs)
		obj.Sections = append(obj.Sections, objectfile.Section{Name: ".note.GNU-stack"})
	} else {
		obj.Sections = append(obj.Sections, objectfile.Section{
			Name: ".drectve",
			Data: []byte(` /DEFAULTLIB:"LIBCMT" `),
		})

		cvb := codeview.NewBuilder()
		debugT, typeIndices := cvb.BuildDebugT(cvSignatures, cvReturns)

		for i := range cvFuncs {
			cvFuncs[i].TypeIndex = typeIndices[i]
		}

		obj.Sections = append(obj.Sections, objectfile.Section{
			Name: ".debug$S",
			Data: codeview.BuildDebugS(input, strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))+".obj", cvFuncs),
		})
		obj.Sections = append(obj.Sections, objectfile.Section{Name: ".debug$T", Data: debugT})
	}

	return nil
}

// appendLSDA encodes one function's LSDA into the shared
// .gcc_except_table section, defining a local symbol for the FDE to
// reference and relocating the trailing type table against the _ZTI*
// type_info symbols (spec.md §4.8: entries are 4-byte PC-relative
// pointers, emitted in reverse so filter 1 is the last entry).
func appendLSDA(obj *objectfile.Object, sec *objectfile.Section, result *codegen.Result, ordinal int) string {
	lsda := dwarfcfi.Build(result.TryRegions, uint64(len(result.Code)))

	base := len(sec.Data)
	sec.Data = append(sec.Data, lsda.Bytes...)

	for i := len(lsda.TypeSymbols) - 1; i >= 0; i-- {
		sec.Relocations = append(sec.Relocations, objectfile.Relocation{
			Offset: len(sec.Data),
			Symbol: lsda.TypeSymbols[i],
			Type:   objectfile.RelPC32,
			Addend: -4,
		})
		sec.Data = append(sec.Data, 0, 0, 0, 0)
		ensureSymbolStub(obj, lsda.TypeSymbols[i])
	}

	name := fmt.Sprintf("GCC_except_table%d", ordinal)
	obj.AddSymbol(objectfile.Symbol{
		Name:    name,
		Section: sec.Name,
		Offset:  uint32(base),
		Binding: objectfile.Local,
		Defined: true,
	})

	return name
}

// emitEHFrame builds the CIE/FDE chain for every compiled function and
// attaches it as .eh_frame with its symbol relocations (spec.md §6.2).
func emitEHFrame(obj *objectfile.Object, funcs []dwarfcfi.FrameFunc) {
	if len(funcs) == 0 {
		return
	}

	frame := dwarfcfi.BuildEHFrame(dwarfcfi.PersonalityELF, funcs)

	sec := objectfile.Section{Name: ".eh_frame", Data: frame.Bytes}

	for _, r := range frame.Relocations {
		sec.Relocations = append(sec.Relocations, objectfile.Relocation{
			Offset: r.Offset,
			Symbol: r.Symbol,
			Type:   objectfile.RelPC32,
			Addend: r.Addend,
		})
		ensureSymbolStub(obj, r.Symbol)
	}

	obj.Sections = append(obj.Sections, sec)
}

// emitGlobals places each lowered global into .data (non-zero
// initializer) or .bss (zero-initialized) with a symbol of the right
// linkage (spec.md §4.6 item 6).
func emitGlobals(sess *session.Session, mod *ir.Module, obj *objectfile.Object) {
	for _, g := range mod.Globals {
		secName := ".bss"

		for _, b := range g.InitBytes {
			if b != 0 {
				secName = ".data"
				break
			}
		}

		sec := obj.Section(secName)
		if sec == nil {
			obj.Sections = append(obj.Sections, objectfile.Section{Name: secName, Writable: true})
			sec = obj.Section(secName)
		}

		offset := uint32(len(sec.Data))
		sec.Data = append(sec.Data, g.InitBytes...)

		binding := objectfile.External
		if g.IsStatic {
			binding = objectfile.Local
		}

		obj.AddSymbol(objectfile.Symbol{
			Name:    mangle.GlobalVariable(sess.Strings.View(g.Name)),
			Section: secName,
			Offset:  offset,
			Binding: binding,
			Defined: true,
		})
	}
}

// ensureSymbolStub registers an undefined external symbol for a call
// target not yet compiled, so the object's symbol table carries an entry
// for the linker to resolve even if the callee turns out to live in
// another translation unit. A later AddSymbol for the same name (once
// that function is actually compiled) replaces this stub, per
// Object.AddSymbol's own doc comment.
func ensureSymbolStub(obj *objectfile.Object, name string) {
	for _, s := range obj.Symbols {
		if s.Name == name {
			return
		}
	}

	obj.Symbols = append(obj.Symbols, objectfile.Symbol{Name: name, Binding: objectfile.External})
}

// reportFatal records a single fatal error (parse/preprocess/lower
// failure that aborts the whole translation unit, spec.md §7's
// "fatal for TU" rows) and flushes the collector.
func reportFatal(diags *diagnostics.Collector, err error, sess *session.Session, asJSON bool) {
	if ce, ok := err.(*cerr.CompilerError); ok {
		diags.AddError(ce)
	} else {
		diags.AddError(cerr.New(cerr.KindInternal, position.Span{}, "%v", err))
	}

	sess.Log.Errorf("%v", err)
	flushDiagnostics(diags, asJSON)
}

func flushDiagnostics(diags *diagnostics.Collector, asJSON bool) {
	if asJSON {
		_ = diags.WriteJSON(os.Stderr)
		return
	}

	_ = diags.WriteText(os.Stderr)
}

// writePreprocessed writes buf to w with spec.md §6.3's
// `# <line> "<file>"` markers inserted wherever the line map shows the
// (file, line) pair diverging from what would follow sequentially.
func writePreprocessed(w io.Writer, buf string, pp *preprocessor.Preprocessor) {
	lines := strings.Split(buf, "\n")
	lm := pp.LineMap()

	expectedFile := ""
	expectedLine := 0

	for i, line := range lines {
		if i == len(lines)-1 && line == "" {
			break
		}

		entry, ok := lm.Lookup(i + 1)
		if ok {
			file := lm.FilePath(entry.SourceFileIndex)
			if file != expectedFile || entry.SourceLine != expectedLine {
				fmt.Fprintf(w, "# %d %q\n", entry.SourceLine, file)
			}

			expectedFile = file
			expectedLine = entry.SourceLine + 1
		}

		fmt.Fprintln(w, line)
	}
}

func printStats(sess *session.Session, mod *ir.Module, perf bool) {
	for _, t := range sess.Timings() {
		fmt.Printf("phase %-12s %s\n", t.Name, t.Duration)
	}

	fmt.Printf("functions compiled: %d\n", len(mod.Functions))

	if perf {
		fmt.Printf("instantiation queue drained: %d pending\n", len(sess.InstantiationQueue))
	}
}

func hostIsWindows() bool {
	return strings.EqualFold(runtime.GOOS, "windows")
}
