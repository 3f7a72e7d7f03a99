// Command cppnc is the ahead-of-time C++-subset compiler driver of
// spec.md §6.1: a single executable that preprocesses, lexes, parses,
// constant-evaluates static_asserts, lowers to IR, generates x86-64 code,
// and writes a COFF or ELF object file, following the flag-based, single
// log.Logger-per-run shape of the teacher's cmd/orizon-compiler/main.go
// rather than adopting a CLI framework for this thin wiring layer (cobra
// is reserved for cmd/cppnc-tool, a genuinely multi-subcommand surface).
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/cppnc/cppnc/internal/ast"
	"github.com/cppnc/cppnc/internal/codegen"
	"github.com/cppnc/cppnc/internal/crashlog"
	"github.com/cppnc/cppnc/internal/diagnostics"
	"github.com/cppnc/cppnc/internal/includeresolve"
	"github.com/cppnc/cppnc/internal/ir"
	"github.com/cppnc/cppnc/internal/lower"
	"github.com/cppnc/cppnc/internal/mangle"
	"github.com/cppnc/cppnc/internal/objectfile"
	"github.com/cppnc/cppnc/internal/preprocessor"
	"github.com/cppnc/cppnc/internal/session"
)

// stringList implements flag.Value for repeatable "-I dir" flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			report := crashlog.Capture(unix.SIGABRT)
			report.Signal = fmt.Sprintf("internal panic: %v", r)

			path, werr := crashlog.Write(".", report)
			if werr == nil {
				fmt.Fprintf(os.Stderr, "cppnc: internal error, crash log written to %s\n", path)
			} else {
				fmt.Fprintf(os.Stderr, "cppnc: internal error: %v\n", r)
			}

			os.Exit(1)
		}
	}()

	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("cppnc", flag.ContinueOnError)

	var includeDirs stringList

	fs.Var(&includeDirs, "I", "add include directory (repeatable)")

	out := fs.String("o", "", "output object file path")
	preprocessOnly := fs.Bool("E", false, "preprocess only, write to stdout")
	verbose := fs.Bool("v", false, "verbose diagnostics")
	fs.BoolVar(verbose, "verbose", false, "verbose diagnostics")
	debugLog := fs.Bool("d", false, "internal debug logging")
	fs.BoolVar(debugLog, "debug", false, "internal debug logging")
	showTime := fs.Bool("time", false, "emit phase timings and template statistics")
	fs.BoolVar(showTime, "stats", false, "emit phase timings and template statistics")
	perfStats := fs.Bool("perf-stats", false, "as --time/--stats, plus allocator statistics")
	noExceptions := fs.Bool("fno-exceptions", false, "disable exception emission")
	noAccessControl := fs.Bool("fno-access-control", false, "ignore private/protected")
	manglingFlag := fs.String("fmangling", "", "override mangling style: msvc|itanium")
	gccCompat := fs.Bool("fgcc-compat", false, "seed GCC-style compiler-identity macros")
	clangCompat := fs.Bool("fclang-compat", false, "seed Clang-style compiler-identity macros")
	eagerInstantiate := fs.Bool("eager-template-instantiation", false, "disable lazy template instantiation")
	logLevel := fs.String("log-level", "", "configure category or global log level")
	configPath := fs.String("config", "", "load include dirs/mangling/identity from a YAML config file")
	jsonDiagnostics := fs.Bool("json-diagnostics", false, "emit diagnostics as a single JSON document to stderr")

	fs.Usage = func() { printUsage(fs) }

	if err := fs.Parse(argv); err != nil {
		return 1
	}

	args := fs.Args()
	if len(args) == 0 {
		fs.Usage()
		return 1
	}

	input := args[0]

	sess := session.New()

	if *configPath != "" {
		cfg, err := session.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cppnc: %v\n", err)
			return 1
		}

		applyConfig(sess, cfg)
	}

	expanded, err := includeresolve.ExpandDirs(append(append([]string{}, sess.IncludeDirs...), includeDirs...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "cppnc: expanding -I patterns: %v\n", err)
		return 1
	}

	sess.IncludeDirs = expanded

	configureSession(sess, *manglingFlag, *gccCompat, *clangCompat, *noExceptions, *noAccessControl, *eagerInstantiate)
	configureLogging(sess, *verbose, *debugLog, *logLevel)

	var diags diagnostics.Collector

	identity := preprocessor.IdentityMSVC
	if sess.Identity == session.IdentityGCCClang {
		identity = preprocessor.IdentityGCCClang
	}

	pp := preprocessor.New(sess.IncludeDirs, identity)

	var preprocessed string

	if err := sess.Time("preprocess", func() error {
		var perr error
		preprocessed, perr = pp.Run(input)

		return perr
	}); err != nil {
		reportFatal(&diags, err, sess, *jsonDiagnostics)
		return 1
	}

	if *preprocessOnly {
		writePreprocessed(os.Stdout, preprocessed, pp)
		return 0
	}

	arena := ast.NewArena()

	prs := newParser(sess, pp, arena, preprocessed, input)
	prs.NoAccessControl = sess.NoAccessControl
	prs.Eager = sess.EagerInstantiate

	var decls []ast.Handle

	stopWatchdog := sess.StartWatchdog("parse")

	err = sess.Time("parse", func() error {
		var perr error
		decls, perr = prs.TranslationUnit()

		return perr
	})

	stopWatchdog()

	if err != nil {
		reportFatal(&diags, err, sess, *jsonDiagnostics)
		return 1
	}

	if err := checkStaticAsserts(sess, arena, decls); err != nil {
		reportFatal(&diags, err, sess, *jsonDiagnostics)
		return 1
	}

	lowerer := lower.New(sess.Strings, sess.Types, arena, sess.Symbols)
	lowerer.NoExceptions = sess.NoExceptions

	var mod *ir.Module

	if err := sess.Time("lower", func() error {
		m, lerr := lowerer.LowerTranslationUnit(decls)
		if lerr != nil {
			return lerr
		}

		mod = m

		return nil
	}); err != nil {
		reportFatal(&diags, err, sess, *jsonDiagnostics)
		return 1
	}

	obj := &objectfile.Object{}

	target := codegen.TargetELF
	if sess.Format == session.ObjectCOFF {
		target = codegen.TargetCOFF
	}

	scheme := mangle.Itanium
	if sess.Mangling == session.ManglingMSVC || (sess.Mangling == session.ManglingDefault && sess.Format == session.ObjectCOFF) {
		scheme = mangle.MSVC
	}

	if err := sess.Time("codegen", func() error {
		return compileModule(sess, mod, obj, scheme, target, input, &diags)
	}); err != nil {
		reportFatal(&diags, err, sess, *jsonDiagnostics)
		return 1
	}

	if diags.HasErrors() {
		flushDiagnostics(&diags, *jsonDiagnostics)
		return 1
	}

	outputPath := *out
	if outputPath == "" {
		ext := ".obj"
		if sess.Format == session.ObjectELF {
			ext = ".o"
		}

		base := filepath.Base(input)
		outputPath = strings.TrimSuffix(base, filepath.Ext(base)) + ext
	}

	var built []byte

	if sess.Format == session.ObjectCOFF {
		built, err = objectfile.BuildCOFF(obj)
	} else {
		built, err = objectfile.BuildELF(obj)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "cppnc: %v\n", err)
		return 1
	}

	if err := os.WriteFile(outputPath, built, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "cppnc: writing %s: %v\n", outputPath, err)
		return 1
	}

	if *showTime || *perfStats {
		printStats(sess, mod, *perfStats)
	}

	return 0
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintln(os.Stderr, "usage: cppnc [flags] input.cpp")
	fs.PrintDefaults()
}
