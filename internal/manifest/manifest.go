// Package manifest persists the record of every file an install wrote.
// The manifest is the uninstaller's primary source of truth; it is
// rewritten wholesale on each successful install and never patched
// incrementally.
package manifest

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/agentpack-dev/agentpack/internal/namespace"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// Entry describes one file written by an install.
type Entry struct {
	// Path is the absolute on-disk location.
	Path string `json:"path"`
	// RelativePath is relative to the installation root, forward-slash
	// normalized, never containing ".." segments.
	RelativePath string `json:"relativePath"`
	// Size is the file size in bytes at write time.
	Size int64 `json:"size"`
	// Hash is "sha256:<hex>" over the content actually written to disk.
	Hash string `json:"hash"`
}

// CorruptError reports a manifest file that exists but cannot be parsed.
// Callers must treat this as untrustworthy bookkeeping and fall back to
// namespace-scan mode rather than acting on partial data.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("manifest %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Manifest is an ordered set of entries, unique by relative path.
type Manifest struct {
	root    string
	entries []Entry
	index   map[string]int // relativePath -> position in entries
}

// New returns an empty manifest for the given installation root.
func New(root string) *Manifest {
	return &Manifest{root: root, index: make(map[string]int)}
}

// Root returns the installation root this manifest describes.
func (m *Manifest) Root() string { return m.root }

// AddFile appends an entry, replacing any prior entry for the same
// relative path (last write wins). relPath may use either separator.
func (m *Manifest) AddFile(absPath, relPath string, size int64, hash string) Entry {
	rel := namespace.Normalize("", relPath)
	e := Entry{
		Path:         absPath,
		RelativePath: rel,
		Size:         size,
		Hash:         hash,
	}
	if i, ok := m.index[rel]; ok {
		m.entries[i] = e
	} else {
		m.index[rel] = len(m.entries)
		m.entries = append(m.entries, e)
	}
	return e
}

// Entries returns the entries in insertion order.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.entries) }

// Lookup returns the entry for a relative or absolute path, if present.
func (m *Manifest) Lookup(p string) (Entry, bool) {
	rel := namespace.Normalize(m.root, p)
	if i, ok := m.index[rel]; ok {
		return m.entries[i], true
	}
	return Entry{}, false
}

// IsInAllowedNamespace reports whether a path (absolute or relative) is
// covered by the pattern set.
func (m *Manifest) IsInAllowedNamespace(p string, ps namespace.PatternSet) bool {
	return ps.Allowed(namespace.Normalize(m.root, p))
}

// FilesInNamespaces returns the entries whose relative paths the pattern
// set owns. Entries outside the set are never returned, so they can never
// become deletion candidates.
func (m *Manifest) FilesInNamespaces(ps namespace.PatternSet) []Entry {
	var out []Entry
	for _, e := range m.entries {
		if ps.Allowed(e.RelativePath) {
			out = append(out, e)
		}
	}
	return out
}

// Save serializes all entries as a 2-space-indented JSON array at the
// fixed manifest location inside the root, creating parent directories as
// needed. The write is atomic (temp file + rename in the same directory)
// so a crash never leaves a half-written manifest behind.
func (m *Manifest) Save() (string, error) {
	path := pathscope.ManifestPath(m.root)
	if err := os.MkdirAll(filepath.Dir(path), pathscope.DirPermNormal); err != nil {
		return "", fmt.Errorf("creating manifest directory: %w", err)
	}

	entries := m.entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	if err := writeFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	return path, nil
}

// Load reads the manifest at the fixed location inside root. A missing
// file returns (nil, nil): the caller is in fallback mode, not in error.
// A file that exists but is not valid JSON returns *CorruptError, because
// deleting based on partial data risks removing files the bundle does not
// own.
func Load(root string) (*Manifest, error) {
	path := pathscope.ManifestPath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}

	m := New(root)
	for _, e := range entries {
		m.AddFile(e.Path, e.RelativePath, e.Size, e.Hash)
	}
	return m, nil
}

// HashFile computes the manifest hash string for a file's current
// on-disk content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return HashBytesDone(h.Sum(nil)), nil
}

// HashBytes computes the manifest hash string for in-memory content.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return HashBytesDone(sum[:])
}

// HashBytesDone formats a raw SHA-256 digest as "sha256:<hex>".
func HashBytesDone(sum []byte) string {
	return "sha256:" + fmt.Sprintf("%x", sum)
}

// writeFileAtomic writes data via a temp file in the same directory plus
// rename, so readers only ever observe the old or the new content.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	success = true
	return nil
}
