// Package intern implements the process-wide string interner shared by the
// preprocessor, lexer, parser, type registry, and code generator.
package intern

import "sync"

// Handle is an opaque, stable identifier into the interner's arena.
// Equality on Handle is equivalent to equality of the underlying text.
type Handle uint32

// Invalid is the zero value; no interned string ever receives it.
const Invalid Handle = 0

// Interner is a process-wide, append-only string table. Strings are never
// removed: handles remain valid for the life of the program.
type Interner struct {
	mu      sync.RWMutex
	lookup  map[string]Handle
	strings []string // index 0 is unused (Invalid)
}

// New creates an empty interner with the invalid-handle slot reserved.
func New() *Interner {
	return &Interner{
		lookup:  make(map[string]Handle, 1024),
		strings: []string{""},
	}
}

// Intern returns the stable handle for text, allocating a new slot on
// first use.
func (in *Interner) Intern(text string) Handle {
	in.mu.RLock()
	if h, ok := in.lookup[text]; ok {
		in.mu.RUnlock()
		return h
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()

	if h, ok := in.lookup[text]; ok {
		return h
	}

	h := Handle(len(in.strings))
	in.strings = append(in.strings, text)
	in.lookup[text] = h

	return h
}

// View returns the borrowed text backing handle h, or "" for an
// out-of-range handle.
func (in *Interner) View(h Handle) string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	if int(h) >= len(in.strings) {
		return ""
	}

	return in.strings[h]
}

// Len reports how many distinct strings have been interned (excluding the
// reserved invalid slot).
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()

	return len(in.strings) - 1
}

// Builder accumulates text before committing it to a stable handle. It
// mirrors the teacher's chunked StringBuilder: callers append pieces and
// Commit once at the end, instead of interning every intermediate
// concatenation.
type Builder struct {
	buf []byte
}

// WriteString appends text to the builder.
func (b *Builder) WriteString(s string) { b.buf = append(b.buf, s...) }

// WriteByte appends a single byte to the builder.
func (b *Builder) WriteByte(c byte) { b.buf = append(b.buf, c) }

// Len reports the number of bytes accumulated so far.
func (b *Builder) Len() int { return len(b.buf) }

// Commit interns the accumulated text and returns its stable handle,
// resetting the builder for reuse.
func (b *Builder) Commit(in *Interner) Handle {
	h := in.Intern(string(b.buf))
	b.buf = b.buf[:0]

	return h
}

// String returns the accumulated (uncommitted) text.
func (b *Builder) String() string { return string(b.buf) }
