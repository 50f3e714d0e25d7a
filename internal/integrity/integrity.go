// Package integrity verifies an installation against its manifest and
// version marker, producing a HealthReport. Checks are batched: every
// problem in a category is collected rather than failing on the first,
// so the caller sees the complete picture.
package integrity

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/agentpack-dev/agentpack/internal/branding"
	"github.com/agentpack-dev/agentpack/internal/manifest"
	"github.com/agentpack-dev/agentpack/internal/namespace"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

// sampleLimit caps how many tracked files the integrity category rehashes
// in one pass. Small bundles are checked exhaustively.
const sampleLimit = 200

// Check is one verified item.
type Check struct {
	Name   string
	Passed bool
	Detail string
}

// Category groups checks; Passed is the AND of its checks.
type Category struct {
	Passed bool
	Checks []Check
}

// HealthReport is the ephemeral result of one verification pass. It is
// computed fresh on every invocation and never persisted.
type HealthReport struct {
	Passed     bool
	Files      Category
	Version    *Category // nil when no expected version was supplied
	Integrity  Category
	DriftFiles []string // tracked files whose content drifted or vanished
}

// Options controls a verification pass.
type Options struct {
	// ExpectedVersion enables the version category when non-empty.
	ExpectedVersion string
}

// Checker verifies one installation root.
type Checker struct {
	Root     string
	Patterns namespace.PatternSet
}

// New returns a Checker for root using the given ownership patterns.
func New(root string, ps namespace.PatternSet) *Checker {
	return &Checker{Root: root, Patterns: ps}
}

// CheckAll runs every applicable category and aggregates the result.
// Overall Passed is the AND of the categories actually run.
func (c *Checker) CheckAll(opts Options) *HealthReport {
	r := &HealthReport{}

	r.Files = c.checkFiles()
	if opts.ExpectedVersion != "" {
		v := c.checkVersion(opts.ExpectedVersion)
		r.Version = &v
	}
	r.Integrity = c.checkIntegrity(r)

	r.Passed = r.Files.Passed && r.Integrity.Passed
	if r.Version != nil {
		r.Passed = r.Passed && r.Version.Passed
	}
	return r
}

// checkFiles verifies the presence of the owned top-level locations.
func (c *Checker) checkFiles() Category {
	cat := Category{Passed: true}

	add := func(name string, passed bool, detail string) {
		cat.Checks = append(cat.Checks, Check{Name: name, Passed: passed, Detail: detail})
		if !passed {
			cat.Passed = false
		}
	}

	ownedDir := pathscope.OwnedDir(c.Root)
	if info, err := os.Stat(ownedDir); err != nil {
		add(branding.OwnedDir(), false, "missing")
	} else if !info.IsDir() {
		add(branding.OwnedDir(), false, "not a directory")
	} else {
		add(branding.OwnedDir(), true, "")
	}

	if _, err := os.Stat(pathscope.ManifestPath(c.Root)); err != nil {
		add("manifest", false, "missing")
	} else {
		add("manifest", true, "")
	}

	// Only require the namespace roots this installation actually
	// populated; a bundle without templates should not fail for lacking
	// a templates directory.
	populated := c.populatedRoots()
	for _, rel := range c.Patterns.ScanRoots() {
		if rel == branding.OwnedDir() || !populated[rel] {
			continue
		}
		path := filepath.Join(c.Root, filepath.FromSlash(rel))
		if info, err := os.Stat(path); err != nil {
			add(rel, false, "missing")
		} else if !info.IsDir() {
			add(rel, false, "not a directory")
		} else {
			add(rel, true, "")
		}
	}

	return cat
}

// populatedRoots returns the pattern roots that hold at least one
// manifest entry. An unreadable manifest yields none; the integrity
// category reports that problem separately.
func (c *Checker) populatedRoots() map[string]bool {
	out := make(map[string]bool)
	m, err := manifest.Load(c.Root)
	if err != nil || m == nil {
		return out
	}
	for _, root := range c.Patterns.ScanRoots() {
		for _, e := range m.Entries() {
			if e.RelativePath == root || strings.HasPrefix(e.RelativePath, root+"/") {
				out[root] = true
				break
			}
		}
	}
	return out
}

// checkVersion compares the persisted marker with the expected version.
// Both being parseable semver uses tolerant comparison ("v" prefix
// stripped); otherwise exact string equality. A missing or mismatched
// marker is a failed check, not an error.
func (c *Checker) checkVersion(expected string) Category {
	cat := Category{Passed: true}

	data, err := os.ReadFile(pathscope.VersionPath(c.Root))
	if err != nil {
		cat.Passed = false
		cat.Checks = append(cat.Checks, Check{Name: "version", Passed: false, Detail: "version marker missing"})
		return cat
	}
	installed := strings.TrimSpace(string(data))

	if versionsEqual(installed, expected) {
		cat.Checks = append(cat.Checks, Check{Name: "version", Passed: true, Detail: installed})
		return cat
	}
	cat.Passed = false
	cat.Checks = append(cat.Checks, Check{
		Name:   "version",
		Passed: false,
		Detail: fmt.Sprintf("installed %s, expected %s", installed, expected),
	})
	return cat
}

// checkIntegrity rehashes tracked files against the manifest. A missing
// or unreadable manifest fails the category but is still a check result,
// not a thrown error.
func (c *Checker) checkIntegrity(r *HealthReport) Category {
	cat := Category{Passed: true}

	m, err := manifest.Load(c.Root)
	if err != nil {
		cat.Passed = false
		cat.Checks = append(cat.Checks, Check{Name: "manifest", Passed: false, Detail: fmt.Sprintf("unreadable: %v", err)})
		return cat
	}
	if m == nil {
		cat.Passed = false
		cat.Checks = append(cat.Checks, Check{Name: "manifest", Passed: false, Detail: "missing"})
		return cat
	}

	entries := m.Entries()
	checked := 0
	for _, e := range entries {
		if checked >= sampleLimit {
			break
		}
		checked++

		path := filepath.Join(c.Root, filepath.FromSlash(e.RelativePath))
		info, err := os.Stat(path)
		if err != nil {
			cat.Passed = false
			cat.Checks = append(cat.Checks, Check{Name: e.RelativePath, Passed: false, Detail: "missing"})
			r.DriftFiles = append(r.DriftFiles, e.RelativePath)
			continue
		}
		if info.Size() == 0 && e.Size > 0 {
			cat.Passed = false
			cat.Checks = append(cat.Checks, Check{Name: e.RelativePath, Passed: false, Detail: "empty"})
			r.DriftFiles = append(r.DriftFiles, e.RelativePath)
			continue
		}
		onDisk, err := manifest.HashFile(path)
		if err != nil {
			cat.Passed = false
			cat.Checks = append(cat.Checks, Check{Name: e.RelativePath, Passed: false, Detail: fmt.Sprintf("unreadable: %v", err)})
			r.DriftFiles = append(r.DriftFiles, e.RelativePath)
			continue
		}
		if onDisk != e.Hash {
			cat.Passed = false
			cat.Checks = append(cat.Checks, Check{Name: e.RelativePath, Passed: false, Detail: "content drift"})
			r.DriftFiles = append(r.DriftFiles, e.RelativePath)
			continue
		}
		cat.Checks = append(cat.Checks, Check{Name: e.RelativePath, Passed: true})
	}

	return cat
}

// versionsEqual compares two version strings, tolerating a "v" prefix
// when both parse as semver.
func versionsEqual(a, b string) bool {
	av, aerr := semver.NewVersion(strings.TrimPrefix(a, "v"))
	bv, berr := semver.NewVersion(strings.TrimPrefix(b, "v"))
	if aerr == nil && berr == nil {
		return av.Equal(bv)
	}
	return a == b
}

// IsNewer reports whether candidate is a strictly newer semver than
// current. Used by the update orchestrator.
func IsNewer(current, candidate string) (bool, error) {
	cv, err := semver.NewVersion(strings.TrimPrefix(current, "v"))
	if err != nil {
		return false, fmt.Errorf("parsing current version %q: %w", current, err)
	}
	nv, err := semver.NewVersion(strings.TrimPrefix(candidate, "v"))
	if err != nil {
		return false, fmt.Errorf("parsing candidate version %q: %w", candidate, err)
	}
	return nv.GreaterThan(cv), nil
}
