// Package backup copies files into a retention-bounded store before the
// installer or uninstaller destroys them. Backups are best-effort: a
// failed backup is reported as a warning and never blocks the calling
// destructive operation, since refusing to proceed would make the tool
// unusable on read-only backup stores.
package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// timestampFormat is sortable lexicographically and filesystem-safe.
const timestampFormat = "20060102T150405.000Z"

// DefaultRetention is the number of backups kept per store.
const DefaultRetention = 10

// Manager writes and prunes backups for one installation root.
type Manager struct {
	dir       string
	retention int
	now       func() time.Time
}

// Result describes the outcome of a single backup attempt.
type Result struct {
	Success    bool
	BackupPath string
	Err        error
}

// CleanupResult summarizes a retention pass.
type CleanupResult struct {
	Cleaned int
	Kept    int
	Errors  []string
}

// NewManager returns a Manager storing backups under the root's reserved
// backup directory. retention <= 0 selects DefaultRetention.
func NewManager(root string, retention int) *Manager {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Manager{
		dir:       pathscope.BackupsPath(root),
		retention: retention,
		now:       time.Now,
	}
}

// Dir returns the backup store directory.
func (m *Manager) Dir() string { return m.dir }

// BackupFile copies sourcePath into the store under a timestamp-prefixed
// name derived from relPath. A missing source is success with no backup
// created: there is nothing to protect.
func (m *Manager) BackupFile(sourcePath, relPath string) Result {
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Success: true}
		}
		return Result{Err: fmt.Errorf("reading %s: %w", sourcePath, err)}
	}

	if err := os.MkdirAll(m.dir, pathscope.DirPermNormal); err != nil {
		return Result{Err: fmt.Errorf("creating backup directory: %w", err)}
	}

	name := m.now().UTC().Format(timestampFormat) + "_" + flatten(relPath)
	backupPath := filepath.Join(m.dir, name)
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return Result{Err: fmt.Errorf("writing backup %s: %w", backupPath, err)}
	}

	return Result{Success: true, BackupPath: backupPath}
}

// CleanupOldBackups removes backups beyond the retention count, newest
// first by embedded timestamp. Files without a recognizable timestamp
// prefix are left alone; guessing at unknown files defeats the point of
// a backup store.
func (m *Manager) CleanupOldBackups() CleanupResult {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return CleanupResult{}
		}
		return CleanupResult{Errors: []string{fmt.Sprintf("reading backup directory: %v", err)}}
	}

	var stamped []string
	kept := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if hasTimestampPrefix(e.Name()) {
			stamped = append(stamped, e.Name())
		} else {
			kept++
		}
	}

	// Newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(stamped)))

	var res CleanupResult
	for i, name := range stamped {
		if i < m.retention {
			kept++
			continue
		}
		if err := os.Remove(filepath.Join(m.dir, name)); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("removing %s: %v", name, err))
			kept++
			continue
		}
		res.Cleaned++
	}
	res.Kept = kept
	return res
}

// flatten turns a relative path into a single path component.
func flatten(relPath string) string {
	rel := strings.ReplaceAll(relPath, "\\", "/")
	rel = strings.Trim(rel, "/")
	return strings.ReplaceAll(rel, "/", "__")
}

// hasTimestampPrefix reports whether name starts with
// "<timestamp>_" in the store's format.
func hasTimestampPrefix(name string) bool {
	i := strings.Index(name, "_")
	if i < 0 {
		return false
	}
	_, err := time.Parse(timestampFormat, name[:i])
	return err == nil
}
