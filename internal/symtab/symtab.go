// Package symtab implements the scoped symbol table of spec.md §3.5: a
// scope stack (Global -> Namespace -> Class -> Function -> Block) where
// each scope maps a name to a list of overload candidates, with outward
// name lookup and a process-wide global table that per-translation-unit
// scopes nest inside.
package symtab

import "github.com/cppnc/cppnc/internal/intern"

// ScopeKind tags a scope's position in the Global/Namespace/Class/
// Function/Block hierarchy.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeNamespace
	ScopeClass
	ScopeFunction
	ScopeBlock
)

// Candidate is one overload candidate: an opaque AST node handle. Kept as
// uint32 (not ast.Handle) to avoid a symtab<->ast import cycle, since the
// AST package never needs to know about scopes.
type Candidate struct {
	ASTNode uint32
	Kind    DeclKind
}

// DeclKind distinguishes the declaration kinds that can collide under one
// name, needed to report RedefinedSymbolWithDifferentValue (spec.md §4.3).
type DeclKind int

const (
	DeclVariable DeclKind = iota
	DeclFunction
	DeclType
	DeclNamespace
	DeclTemplate
	DeclEnumerator
)

// Scope is one level of the scope stack.
type Scope struct {
	Kind    ScopeKind
	Parent  *Scope
	Names   map[intern.Handle][]Candidate
	NameOf  intern.Handle // the class/namespace/function's own name, 0 for Block
}

func newScope(kind ScopeKind, parent *Scope, name intern.Handle) *Scope {
	return &Scope{Kind: kind, Parent: parent, Names: map[intern.Handle][]Candidate{}, NameOf: name}
}

// Table is the process-wide symbol table: a persistent Global scope plus
// the currently active scope stack for the translation unit being parsed.
type Table struct {
	Global  *Scope
	current *Scope
}

// NewTable creates a table with just the Global scope active.
func NewTable() *Table {
	g := newScope(ScopeGlobal, nil, intern.Invalid)
	return &Table{Global: g, current: g}
}

// Current returns the innermost active scope.
func (t *Table) Current() *Scope { return t.current }

// Push enters a new nested scope of kind, returning it. Callers must Pop
// on every exit path, including error returns (spec.md §9, "RAII for
// scopes").
func (t *Table) Push(kind ScopeKind, name intern.Handle) *Scope {
	s := newScope(kind, t.current, name)
	t.current = s

	return s
}

// Pop exits the innermost scope, restoring its parent as current.
func (t *Table) Pop() {
	if t.current.Parent != nil {
		t.current = t.current.Parent
	}
}

// Insert adds a declaration candidate to the current scope under name.
// Conflicts with an incompatible existing kind are the caller's
// responsibility to detect via Lookup before inserting — Insert
// unconditionally appends.
func (t *Table) Insert(name intern.Handle, c Candidate) {
	t.current.Names[name] = append(t.current.Names[name], c)
}

// LookupAll walks outward from the current scope and returns every
// overload candidate found for name in the innermost scope that declares
// it at all (C++ doesn't merge overload sets across scope boundaries for
// ordinary lookup, matching spec.md §4.3: "the parser never resolves
// overloads by itself beyond arity- and trivial-conversion filtering").
func (t *Table) LookupAll(name intern.Handle) []Candidate {
	for s := t.current; s != nil; s = s.Parent {
		if cs, ok := s.Names[name]; ok {
			return cs
		}
	}

	return nil
}

// LookupInScope looks up name only in scope (no outward walk), used for
// member lookup against a specific class scope under access control
// (spec.md §4.3).
func LookupInScope(s *Scope, name intern.Handle) []Candidate {
	return s.Names[name]
}

// EnclosingClass returns the nearest enclosing Class scope, or nil, used
// to resolve access control for a member reference.
func (t *Table) EnclosingClass() *Scope {
	for s := t.current; s != nil; s = s.Parent {
		if s.Kind == ScopeClass {
			return s
		}
	}

	return nil
}
