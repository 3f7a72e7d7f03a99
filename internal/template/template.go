// Package template implements the template registry of spec.md §3.6: a
// cache keyed by (template-name, canonicalized argument tuple) that maps
// to a materialized specialization's AST handle, plus the bookkeeping for
// lazy (default) vs. eager instantiation and the instantiation-depth cap.
package template

import (
	"fmt"
	"strings"

	"github.com/cppnc/cppnc/internal/intern"
)

// Arg is one template-argument-list entry: either a type (with
// qualification, pointer depth, reference kind already baked into its
// canonical string) or a value (int/bool with a base type), per
// spec.md §3.6.
type Arg struct {
	IsType      bool
	TypeCanon   string // e.g. "int", "intP", "CintR", "int[10]"
	ValueInt    int64
	ValueIsBool bool
	ValueBool   bool
}

// Canonical renders one argument's mangled-name-ready spelling.
func (a Arg) Canonical() string {
	if a.IsType {
		return a.TypeCanon
	}

	if a.ValueIsBool {
		if a.ValueBool {
			return "true"
		}

		return "false"
	}

	return fmt.Sprintf("%d", a.ValueInt)
}

// Key canonicalizes a template name plus argument list into the string
// used both as the registry's map key and as the mangled-name argument
// substring.
func Key(name intern.Handle, strings_ *intern.Interner, args []Arg) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Canonical()
	}

	return strings_.View(name) + "<" + strings.Join(parts, ",") + ">"
}

// Specialization is the registry's cached result: the materialized AST
// handle for the instantiated function, variable, or class template, kept
// as uint32 to avoid an ast<->template import cycle.
type Specialization struct {
	ASTNode uint32
}

// PendingMember is one queued member materialization for lazy template
// instantiation (spec.md §4.3): "only instantiate members actually
// referenced; an InstantiationQueue holds pending member
// materialisations and drains between compilation phases."
type PendingMember struct {
	ClassKey   string
	MemberName intern.Handle
}

// MaxActiveInstantiations bounds simultaneously-active template
// instantiations to guard against runaway recursive templates
// (spec.md §4.3 suggests 1024).
const MaxActiveInstantiations = 1024

// Registry caches instantiated specializations and tracks the active
// instantiation stack depth.
type Registry struct {
	cache  map[string]Specialization
	active int
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{cache: map[string]Specialization{}}
}

// Lookup returns a cached specialization for key, if present.
func (r *Registry) Lookup(key string) (Specialization, bool) {
	s, ok := r.cache[key]
	return s, ok
}

// Store registers a newly materialized specialization under key.
func (r *Registry) Store(key string, spec Specialization) {
	r.cache[key] = spec
}

// EnterInstantiation increments the active-instantiation depth, returning
// an error once MaxActiveInstantiations is exceeded (an abstract
// unrecoverable error per spec.md §5). Callers must call
// ExitInstantiation on every return path.
func (r *Registry) EnterInstantiation() error {
	r.active++
	if r.active > MaxActiveInstantiations {
		return fmt.Errorf("template instantiation depth exceeded (%d active)", MaxActiveInstantiations)
	}

	return nil
}

// ExitInstantiation decrements the active-instantiation depth.
func (r *Registry) ExitInstantiation() {
	if r.active > 0 {
		r.active--
	}
}
