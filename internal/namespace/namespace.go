// Package namespace decides which paths inside an installation root the
// bundle is allowed to delete. The installation root is shared with
// unrelated user files, so every destructive operation filters its
// candidates through a PatternSet; a path that does not match is never
// deleted, under any flag combination.
package namespace

import (
	"path"
	"strings"

	"github.com/agentpack-dev/agentpack/internal/branding"
)

// PatternSet is an ordered list of prefix rules over forward-slash
// relative paths. A rule ending in "/" owns the whole subtree below it;
// any other rule matches one exact path. Pattern sets are built
// explicitly and passed in, never read from package-level state, so
// tests can supply isolated sets.
type PatternSet struct {
	prefixes []string
	exact    []string
}

// New builds a PatternSet from raw pattern strings. Patterns use forward
// slashes regardless of platform.
func New(patterns []string) PatternSet {
	var ps PatternSet
	for _, p := range patterns {
		p = strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if p == "" {
			continue
		}
		ps.prefixes = append(ps.prefixes, p+"/")
		ps.exact = append(ps.exact, p)
	}
	return ps
}

// Default returns the bundle's ownership rules: the agent, command, and
// template sub-namespaces plus the fully owned metadata directory.
func Default() PatternSet {
	return New([]string{
		"agents/ap",
		"commands/ap",
		"templates/ap",
		branding.OwnedDir(),
	})
}

// Normalize converts a path to the canonical relative form used for
// matching: forward slashes, no leading "./" or "/", root prefix
// stripped when the input is absolute under root.
func Normalize(root, p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	root = strings.ReplaceAll(root, "\\", "/")
	if root != "" {
		root = strings.TrimSuffix(root, "/") + "/"
		if strings.HasPrefix(p, root) {
			p = strings.TrimPrefix(p, root)
		}
	}
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return path.Clean(p)
}

// Allowed reports whether rel is unambiguously bundle-owned and therefore
// eligible for deletion. rel must already be normalized (see Normalize).
// Paths containing ".." never match.
func (ps PatternSet) Allowed(rel string) bool {
	if rel == "" || rel == "." {
		return false
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == ".." {
			return false
		}
	}
	for _, e := range ps.exact {
		if rel == e {
			return true
		}
	}
	for _, pre := range ps.prefixes {
		if strings.HasPrefix(rel, pre) {
			return true
		}
	}
	return false
}

// ScanRoots returns the relative directories a fallback scan may walk
// when no manifest is available. This is exactly the pattern prefixes;
// a fallback scan never enumerates anything wider.
func (ps PatternSet) ScanRoots() []string {
	roots := make([]string, len(ps.exact))
	copy(roots, ps.exact)
	return roots
}

// Patterns returns the canonical pattern strings, for display.
func (ps PatternSet) Patterns() []string {
	return ps.ScanRoots()
}
