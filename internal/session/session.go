// Package session implements the CompilerSession handle that threads the
// process-wide stores (string interner, type registry, symbol table,
// template registry, line map) through every pipeline phase, per the
// design note in spec.md §9 ("pass them as a CompilerSession handle
// threaded through every phase rather than ambient statics").
package session

import (
	"fmt"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/goccy/go-yaml"

	"github.com/cppnc/cppnc/internal/intern"
	"github.com/cppnc/cppnc/internal/logging"
	"github.com/cppnc/cppnc/internal/position"
	"github.com/cppnc/cppnc/internal/symtab"
	"github.com/cppnc/cppnc/internal/template"
	"github.com/cppnc/cppnc/internal/types"
)

// ManglingStyle selects the name-mangling algorithm (spec.md §4.6).
type ManglingStyle int

const (
	ManglingDefault ManglingStyle = iota
	ManglingMSVC
	ManglingItanium
)

// CompilerIdentity selects the seed macro set the preprocessor installs
// (spec.md §4.1: "compiler-identity macros, selectable: MSVC-compatible or
// GCC/Clang-compatible via configuration").
type CompilerIdentity int

const (
	IdentityMSVC CompilerIdentity = iota
	IdentityGCCClang
)

// ObjectFormat selects the output container (spec.md §6.2).
type ObjectFormat int

const (
	ObjectCOFF ObjectFormat = iota
	ObjectELF
)

// Config is the session's external configuration, loadable from a YAML
// file via --config (spec's Domain Stack: goccy/go-yaml) and overridden by
// individual CLI flags.
type Config struct {
	IncludeDirs       []string `yaml:"include_dirs"`
	Mangling          string   `yaml:"mangling"`
	Identity          string   `yaml:"identity"`
	NoExceptions      bool     `yaml:"no_exceptions"`
	NoAccessControl   bool     `yaml:"no_access_control"`
	EagerInstantiate  bool     `yaml:"eager_template_instantiation"`
	RequiresMinVersion string  `yaml:"requires_min_version"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// Version is the compiler's own semantic version, checked against any
// #pragma cppnc_requires "x.y.z" an input requests (spec's Domain Stack
// entry wiring Masterminds/semver, following the teacher's own use of it
// in its package manager).
var Version = semver.MustParse("1.0.0")

// CheckRequires reports whether the running compiler satisfies a
// #pragma-requested minimum version constraint such as ">=1.0.0".
func CheckRequires(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}

	return c.Check(Version), nil
}

// PhaseTiming records one phase's wall-clock duration for --time/--stats
// (spec.md §6.1), grounded on original_source/src/ProfilingTimer.h.
type PhaseTiming struct {
	Name     string
	Duration time.Duration
}

// Session owns every process-wide store for one compiler invocation and is
// threaded by value (a pointer) through preprocessor, lexer, parser,
// evaluator, lowering, and codegen.
type Session struct {
	Strings   *intern.Interner
	Types     *types.Registry
	Symbols   *symtab.Table
	Templates *template.Registry
	Lines     *position.LineMap
	Log       *logging.Logger

	Mangling         ManglingStyle
	Identity         CompilerIdentity
	Format           ObjectFormat
	NoExceptions     bool
	NoAccessControl  bool
	EagerInstantiate bool

	IncludeDirs []string

	// InstantiationQueue holds pending member materializations for lazy
	// template instantiation (spec.md §4.3); drained between phases.
	InstantiationQueue []template.PendingMember

	timings []PhaseTiming
}

// New initializes a fresh Session with empty process-wide stores.
func New() *Session {
	return &Session{
		Strings:   intern.New(),
		Types:     types.NewRegistry(),
		Symbols:   symtab.NewTable(),
		Templates: template.NewRegistry(),
		Lines:     position.NewLineMap(),
		Log:       logging.Default(),
	}
}

// Time records a phase's duration, used by the driver around each
// pipeline stage (preprocess, lex, parse, lower, codegen).
func (s *Session) Time(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	s.timings = append(s.timings, PhaseTiming{Name: name, Duration: time.Since(start)})

	return err
}

// Timings returns the recorded per-phase durations in execution order.
func (s *Session) Timings() []PhaseTiming { return s.timings }

// DrainInstantiationQueue materializes any pending lazy template members,
// per spec.md §4.3 ("an InstantiationQueue holds pending member
// materialisations and drains between compilation phases").
func (s *Session) DrainInstantiationQueue(materialize func(template.PendingMember) error) error {
	for len(s.InstantiationQueue) > 0 {
		next := s.InstantiationQueue[0]
		s.InstantiationQueue = s.InstantiationQueue[1:]

		if err := materialize(next); err != nil {
			return err
		}
	}

	return nil
}
