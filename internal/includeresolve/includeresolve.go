// Package includeresolve expands -I include-directory arguments (which may
// contain glob patterns such as "vendor/**/include") into concrete
// directories, and resolves #include targets against them. Filesystem
// discovery of include directories is an external collaborator per
// spec.md §1 ("Out of scope"); this package is the thin, testable sliver
// of that collaborator the core preprocessor calls into, kept separate so
// the preprocessor itself never touches the filesystem glob machinery
// directly.
package includeresolve

import (
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandDirs expands each pattern in patterns into zero or more concrete
// directories, preserving the caller's ordering (spec.md §4.1: include
// directories are searched "in order"). Patterns without glob
// metacharacters pass through unchanged even if the directory does not
// yet exist, matching -I's traditional "it's fine if it's missing"
// leniency.
func ExpandDirs(patterns []string) ([]string, error) {
	var out []string

	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) || !hasMeta(pat) {
			out = append(out, pat)
			continue
		}

		base, rest := splitGlobBase(pat)

		matches, err := doublestar.Glob(os.DirFS(base), rest)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			full := filepath.Join(base, m)
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				out = append(out, full)
			}
		}
	}

	return out, nil
}

func hasMeta(pat string) bool {
	for _, r := range pat {
		switch r {
		case '*', '?', '[', '{':
			return true
		}
	}

	return false
}

// splitGlobBase finds the longest literal directory prefix of pat so the
// glob can run against an os.DirFS rooted there (doublestar.Glob needs a
// filesystem root; absolute patterns can't address one directly).
func splitGlobBase(pat string) (base, rest string) {
	base = "."
	if filepath.IsAbs(pat) {
		base = string(filepath.Separator)
		pat = pat[len(base):]
	}

	segs := filepathSplit(pat)

	i := 0
	for ; i < len(segs); i++ {
		if hasMeta(segs[i]) {
			break
		}

		base = filepath.Join(base, segs[i])
	}

	rest = filepath.ToSlash(filepath.Join(segs[i:]...))
	if rest == "" {
		rest = "."
	}

	return base, rest
}

func filepathSplit(p string) []string {
	var segs []string

	for _, s := range filepathSlashSplit(p) {
		if s != "" {
			segs = append(segs, s)
		}
	}

	return segs
}

func filepathSlashSplit(p string) []string {
	p = filepath.ToSlash(p)

	var out []string

	start := 0

	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}

	out = append(out, p[start:])

	return out
}

// ResolveInclude finds "name" by first checking currentDir (for
// double-quoted includes), then each directory in dirs in order. It
// returns the resolved path and the index into dirs where it was found
// (-1 if found via currentDir), needed by #include_next to resume search
// from the following directory.
func ResolveInclude(name, currentDir string, dirs []string, quoted bool) (path string, dirIndex int, ok bool) {
	if quoted && currentDir != "" {
		p := filepath.Join(currentDir, name)
		if fileExists(p) {
			return p, -1, true
		}
	}

	for i, d := range dirs {
		p := filepath.Join(d, name)
		if fileExists(p) {
			return p, i, true
		}
	}

	return "", -1, false
}

// ResolveIncludeNext resumes the search from the directory after
// fromIndex, implementing #include_next (spec.md §4.1).
func ResolveIncludeNext(name string, dirs []string, fromIndex int) (path string, dirIndex int, ok bool) {
	for i := fromIndex + 1; i < len(dirs); i++ {
		p := filepath.Join(dirs[i], name)
		if fileExists(p) {
			return p, i, true
		}
	}

	return "", -1, false
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
