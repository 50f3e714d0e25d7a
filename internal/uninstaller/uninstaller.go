// Package uninstaller removes bundle-owned files from a shared
// installation root. Every deletion candidate passes through the
// namespace PatternSet; a path the patterns do not own is never handed
// to a delete call, under any flag combination. When no trustworthy
// manifest exists the uninstaller falls back to scanning exactly the
// directories the patterns describe, which is strictly narrower than the
// manifest path.
package uninstaller

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentpack-dev/agentpack/internal/backup"
	"github.com/agentpack-dev/agentpack/internal/manifest"
	"github.com/agentpack-dev/agentpack/internal/namespace"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// Options controls a single uninstall run.
type Options struct {
	// DryRun computes the full classification without mutating anything.
	DryRun bool
	// NoBackup skips the pre-delete backup of each file.
	NoBackup bool
	// Retention bounds the backup store after the run.
	Retention int
}

// Result itemizes everything the run did (or, on a dry run, would do).
type Result struct {
	// Removed lists relative paths that were deleted.
	Removed []string
	// SkippedMissing lists candidates already absent on disk; already
	// gone is already uninstalled, not an error.
	SkippedMissing []string
	// PreservedDirs lists touched directories left in place because they
	// still contain something the bundle does not own.
	PreservedDirs []string
	// PrunedDirs lists directories removed because deletions emptied them.
	PrunedDirs []string
	// Divergent lists removed files whose on-disk content no longer
	// matched the manifest hash. Advisory only; namespace ownership is
	// sufficient license to remove.
	Divergent []string
	// Warnings collects non-fatal problems (failed backups, failed
	// deletes). Per-file failures never abort the batch.
	Warnings []string
	// FallbackMode is set when no usable manifest drove the run.
	FallbackMode bool
}

// candidate pairs a relative path with its expected hash, when known.
type candidate struct {
	rel  string
	hash string
}

// Uninstall removes the bundle from root. m may be nil (missing or
// corrupt manifest), which selects fallback mode.
func Uninstall(root string, m *manifest.Manifest, ps namespace.PatternSet, opts Options) (*Result, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving installation root: %w", err)
	}

	res := &Result{}
	var cands []candidate

	if m != nil {
		// Entries outside every pattern are never candidates; there is
		// no flag that bypasses namespace protection.
		for _, e := range m.FilesInNamespaces(ps) {
			cands = append(cands, candidate{rel: e.RelativePath, hash: e.Hash})
		}
	} else {
		res.FallbackMode = true
		scanned, err := fallbackScan(root, ps)
		if err != nil {
			return nil, err
		}
		cands = scanned
	}

	bm := backup.NewManager(root, opts.Retention)
	backupDirRel := namespace.Normalize(root, bm.Dir())
	lockRel := namespace.Normalize(root, pathscope.LockPath(root))
	touched := make(map[string]bool)

	for _, c := range cands {
		// The guard below is the core safety invariant. Candidates are
		// already namespace-filtered; this keeps the property local to
		// the one place that deletes.
		if !ps.Allowed(c.rel) {
			continue
		}
		// Never delete the backup store we are writing into.
		if c.rel == backupDirRel || strings.HasPrefix(c.rel, backupDirRel+"/") {
			continue
		}
		// The caller holds the advisory lock for the duration of this
		// run; a fallback scan must not enumerate it out from under them.
		if c.rel == lockRel {
			continue
		}

		abs := filepath.Join(root, filepath.FromSlash(c.rel))

		info, statErr := os.Lstat(abs)
		if os.IsNotExist(statErr) {
			res.SkippedMissing = append(res.SkippedMissing, c.rel)
			continue
		}
		if statErr != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", c.rel, statErr))
			continue
		}
		if info.IsDir() {
			continue
		}

		if c.hash != "" {
			if onDisk, hashErr := manifest.HashFile(abs); hashErr == nil && onDisk != c.hash {
				res.Divergent = append(res.Divergent, c.rel)
			}
		}

		if opts.DryRun {
			res.Removed = append(res.Removed, c.rel)
			touched[filepath.Dir(abs)] = true
			continue
		}

		if !opts.NoBackup {
			if br := bm.BackupFile(abs, c.rel); br.Err != nil {
				// Backup failure downgrades to a warning; blocking the
				// uninstall on a read-only backup store is worse than
				// best-effort recovery.
				res.Warnings = append(res.Warnings, fmt.Sprintf("backup of %s failed: %v", c.rel, br.Err))
			}
		}

		if err := os.Remove(abs); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("removing %s: %v", c.rel, err))
			continue
		}
		res.Removed = append(res.Removed, c.rel)
		touched[filepath.Dir(abs)] = true
	}

	// A real run materializes the backup store while deleting; the
	// dry-run prune prediction has to count that directory as present
	// or preview and execution disagree about what stays.
	futureDirs := make(map[string]bool)
	if opts.DryRun && !opts.NoBackup && len(res.Removed) > 0 {
		futureDirs[backupDirRel] = true
	}

	// The manifest file itself is spent once the files it tracks are
	// gone. It lives inside the owned namespace, so the same guard
	// applies.
	if m != nil {
		mRel := namespace.Normalize(root, pathscope.ManifestPath(root))
		if ps.Allowed(mRel) {
			mAbs := pathscope.ManifestPath(root)
			if _, statErr := os.Stat(mAbs); statErr == nil {
				if opts.DryRun {
					res.Removed = append(res.Removed, mRel)
					touched[filepath.Dir(mAbs)] = true
				} else if err := os.Remove(mAbs); err != nil {
					res.Warnings = append(res.Warnings, fmt.Sprintf("removing %s: %v", mRel, err))
				} else {
					res.Removed = append(res.Removed, mRel)
					touched[filepath.Dir(mAbs)] = true
				}
			}
		}
	}

	pruneDirs(root, touched, opts.DryRun, futureDirs, res)

	if !opts.DryRun && !opts.NoBackup {
		if cr := bm.CleanupOldBackups(); len(cr.Errors) > 0 {
			res.Warnings = append(res.Warnings, cr.Errors...)
		}
	}

	sort.Strings(res.Removed)
	sort.Strings(res.SkippedMissing)
	sort.Strings(res.PreservedDirs)
	sort.Strings(res.PrunedDirs)
	sort.Strings(res.Divergent)
	return res, nil
}

// fallbackScan enumerates files under exactly the pattern roots. It
// never walks the installation root itself, so its scope is strictly
// narrower than a manifest-driven run.
func fallbackScan(root string, ps namespace.PatternSet) ([]candidate, error) {
	var cands []candidate
	for _, scanRel := range ps.ScanRoots() {
		base := filepath.Join(root, filepath.FromSlash(scanRel))
		info, err := os.Stat(base)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", scanRel, err)
		}
		if !info.IsDir() {
			cands = append(cands, candidate{rel: scanRel})
			continue
		}
		err = filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			cands = append(cands, candidate{rel: filepath.ToSlash(rel)})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", scanRel, err)
		}
	}
	return cands, nil
}

// pruneDirs removes directories emptied by the run, walking upward from
// each touched directory and stopping at the first non-empty one. It
// never ascends past the installation root and never removes a directory
// containing anything.
func pruneDirs(root string, touched map[string]bool, dryRun bool, futureDirs map[string]bool, res *Result) {
	// Deepest first so children empty out before their parents are
	// considered.
	dirs := make([]string, 0, len(touched))
	for d := range touched {
		dirs = append(dirs, d)
	}
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	seen := make(map[string]bool)
	for _, dir := range dirs {
		for dir != root && strings.HasPrefix(dir, root) {
			if seen[dir] {
				break
			}
			seen[dir] = true
			rel := namespace.Normalize(root, dir)

			entries, err := os.ReadDir(dir)
			if err != nil {
				break
			}
			if dryRun {
				// Predict emptiness from what the dry run would remove.
				if wouldBeEmpty(root, dir, entries, futureDirs, res) {
					res.PrunedDirs = append(res.PrunedDirs, rel)
					dir = filepath.Dir(dir)
					continue
				}
				res.PreservedDirs = appendUnique(res.PreservedDirs, rel)
				break
			}
			if len(entries) > 0 {
				res.PreservedDirs = appendUnique(res.PreservedDirs, rel)
				break
			}
			if err := os.Remove(dir); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("pruning %s: %v", rel, err))
				break
			}
			res.PrunedDirs = append(res.PrunedDirs, rel)
			dir = filepath.Dir(dir)
		}
	}
}

// wouldBeEmpty reports whether dir would hold nothing once the dry run's
// removals and prunes were applied. futureDirs lists directories the real
// run would create mid-flight; a dir that would contain one stays.
func wouldBeEmpty(root, dir string, entries []os.DirEntry, futureDirs map[string]bool, res *Result) bool {
	dirRel := namespace.Normalize(root, dir)
	for f := range futureDirs {
		if f == dirRel || strings.HasPrefix(f, dirRel+"/") {
			return false
		}
	}
	removed := make(map[string]bool, len(res.Removed))
	for _, r := range res.Removed {
		removed[r] = true
	}
	pruned := make(map[string]bool, len(res.PrunedDirs))
	for _, p := range res.PrunedDirs {
		pruned[p] = true
	}
	for _, e := range entries {
		rel := namespace.Normalize(root, filepath.Join(dir, e.Name()))
		if e.IsDir() {
			if !pruned[rel] {
				return false
			}
			continue
		}
		if !removed[rel] {
			return false
		}
	}
	return true
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
