// Package installer writes a bundle source tree into an installation
// root. All files are staged into a temporary sibling directory first;
// the target only ever changes through a single atomic rename, so a
// reader of the target path observes either the previous complete state
// or the new complete state, never a partial tree.
package installer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentpack-dev/agentpack/internal/branding"
	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/manifest"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
	"github.com/agentpack-dev/agentpack/internal/platform"
)

// Installer copies and rewrites bundle files. The rewrite token is
// explicit configuration so tests can supply their own.
type Installer struct {
	// Token is the literal marker replaced with the target root.
	Token string
}

// New returns an Installer using the product's rewrite token.
func New() *Installer {
	return &Installer{Token: branding.RewriteToken()}
}

// Options controls a single install run.
type Options struct {
	// Version is written to the installation's version marker.
	Version string
	// DryRun previews the install without touching the filesystem.
	DryRun bool
}

// PlannedFile describes one file an install would write.
type PlannedFile struct {
	RelativePath string
	Size         int64
	TokenHits    int
}

// Result reports a completed (or previewed) install.
type Result struct {
	FilesCopied  int
	Manifest     *manifest.Manifest
	ManifestPath string
	Planned      []PlannedFile // populated on dry runs
}

// stagedFile carries a staged file's bookkeeping until the swap commits.
type stagedFile struct {
	rel  string
	size int64
	hash string
}

// Install walks sourceRoot, stages a rewritten copy next to targetRoot,
// and atomically swaps it into place. Nothing under targetRoot is
// modified until every file has staged successfully. Per-file staging
// failures are collected and reported together; any failure aborts the
// whole install with the target untouched.
func (in *Installer) Install(ctx context.Context, sourceRoot, targetRoot string, opts Options) (*Result, error) {
	info, err := os.Stat(sourceRoot)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ESourceMissing,
			fmt.Sprintf("bundle source %s does not exist; nothing was installed", sourceRoot), err)
	}
	if !info.IsDir() {
		return nil, errdefs.Newf(errdefs.ESourceMissing,
			"bundle source %s is not a directory; nothing was installed", sourceRoot)
	}

	targetRoot, err = filepath.Abs(targetRoot)
	if err != nil {
		return nil, errdefs.Wrap(errdefs.ETargetInvalid, "resolving target root", err)
	}
	if opts.DryRun {
		return in.plan(sourceRoot, targetRoot)
	}

	parent := filepath.Dir(targetRoot)
	if err := os.MkdirAll(parent, pathscope.DirPermNormal); err != nil {
		return nil, classifyTargetErr(parent, err)
	}

	// Stage into a sibling of the target so the final move is a rename
	// on the same filesystem.
	stagingDir, err := os.MkdirTemp(parent, "."+branding.CLIName()+"-stage-*")
	if err != nil {
		return nil, classifyTargetErr(parent, err)
	}
	// The staging directory is the only thing cleanup may remove. The
	// guard is disarmed after the swap commits.
	swapped := false
	defer func() {
		if !swapped {
			os.RemoveAll(stagingDir)
		}
	}()

	staged, err := in.stage(ctx, sourceRoot, targetRoot, stagingDir)
	if err != nil {
		return nil, err
	}

	// Version marker is part of the staged tree so it flips atomically
	// with the rest of the install.
	if opts.Version != "" {
		verRel := branding.OwnedDir() + "/" + pathscope.VersionFile
		verData := []byte(opts.Version + "\n")
		verPath := filepath.Join(stagingDir, filepath.FromSlash(verRel))
		if err := os.MkdirAll(filepath.Dir(verPath), pathscope.DirPermNormal); err != nil {
			return nil, errdefs.Wrap(errdefs.EStageFailed, "staging version marker", err)
		}
		if err := os.WriteFile(verPath, verData, 0644); err != nil {
			return nil, errdefs.Wrap(errdefs.EStageFailed, "staging version marker", err)
		}
		staged = append(staged, stagedFile{rel: verRel, size: int64(len(verData)), hash: manifest.HashBytes(verData)})
	}

	if err := ctx.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.EInterrupted,
			fmt.Sprintf("install interrupted before the swap; %s was not touched", targetRoot), err)
	}

	// Re-install: carry forward everything in the current target that the
	// new bundle does not write, so the swap never discards files the
	// bundle does not own.
	if _, err := os.Stat(targetRoot); err == nil {
		if err := carryForward(targetRoot, stagingDir, staged); err != nil {
			return nil, errdefs.Wrap(errdefs.EStageFailed, "preserving existing files", err)
		}
	}

	// MkdirTemp creates the staging directory 0700; the target should
	// carry normal directory permissions once visible.
	platform.Chmod(stagingDir, pathscope.DirPermNormal)

	if err := swap(stagingDir, targetRoot); err != nil {
		return nil, err
	}
	swapped = true

	// Manifest paths were captured relative to the staging directory;
	// persist them in their final target-relative form.
	m := manifest.New(targetRoot)
	for _, sf := range staged {
		m.AddFile(filepath.Join(targetRoot, filepath.FromSlash(sf.rel)), sf.rel, sf.size, sf.hash)
	}
	mPath, err := m.Save()
	if err != nil {
		return nil, errdefs.Wrap(errdefs.EPersistFailed,
			"install succeeded but the manifest could not be written; run repair", err)
	}

	return &Result{FilesCopied: len(staged), Manifest: m, ManifestPath: mPath}, nil
}

// stage writes every source file into stagingDir, rewriting text assets.
// Per-file errors are collected so the caller sees the complete picture.
func (in *Installer) stage(ctx context.Context, sourceRoot, targetRoot, stagingDir string) ([]stagedFile, error) {
	var staged []stagedFile
	var failures []string

	walkErr := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if excludedNames[name] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			// Symlinks and special files are not part of a bundle.
			return nil
		}

		rel, relErr := filepath.Rel(sourceRoot, path)
		if relErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, relErr))
			return nil
		}
		rel = filepath.ToSlash(rel)

		sf, stageErr := in.stageFile(path, rel, targetRoot, stagingDir)
		if stageErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rel, stageErr))
			return nil
		}
		staged = append(staged, sf)
		return nil
	})
	if walkErr != nil {
		if ctx.Err() != nil {
			return nil, errdefs.Wrap(errdefs.EInterrupted,
				fmt.Sprintf("install interrupted during staging; %s was not touched", targetRoot), walkErr)
		}
		return nil, errdefs.Wrap(errdefs.EStageFailed, "walking bundle source", walkErr)
	}
	if len(failures) > 0 {
		return nil, errdefs.Newf(errdefs.EStageFailed,
			"staging failed for %d file(s); %s was not touched:\n  %s",
			len(failures), targetRoot, strings.Join(failures, "\n  "))
	}
	return staged, nil
}

// stageFile writes one source file into the staging directory and returns
// its manifest bookkeeping. The hash covers the final, already-rewritten
// bytes so the manifest reflects what ends up on disk.
func (in *Installer) stageFile(srcPath, rel, targetRoot, stagingDir string) (stagedFile, error) {
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return stagedFile{}, err
	}

	if isTextAsset(rel) {
		data, _ = rewriteContent(data, in.Token, targetRoot)
	}

	srcInfo, err := os.Stat(srcPath)
	if err != nil {
		return stagedFile{}, err
	}

	dst := filepath.Join(stagingDir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), pathscope.DirPermNormal); err != nil {
		return stagedFile{}, err
	}
	if err := os.WriteFile(dst, data, srcInfo.Mode().Perm()); err != nil {
		return stagedFile{}, err
	}

	return stagedFile{rel: rel, size: int64(len(data)), hash: manifest.HashBytes(data)}, nil
}

// plan produces the dry-run classification without writing anything.
func (in *Installer) plan(sourceRoot, targetRoot string) (*Result, error) {
	var planned []PlannedFile
	var failures []string

	err := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if excludedNames[d.Name()] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, relErr := filepath.Rel(sourceRoot, path)
		if relErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", path, relErr))
			return nil
		}
		rel = filepath.ToSlash(rel)

		pf := PlannedFile{RelativePath: rel}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", rel, readErr))
			return nil
		}
		if isTextAsset(rel) {
			rewritten, hits := rewriteContent(data, in.Token, targetRoot)
			pf.TokenHits = hits
			data = rewritten
		}
		pf.Size = int64(len(data))
		planned = append(planned, pf)
		return nil
	})
	if err != nil {
		return nil, errdefs.Wrap(errdefs.EStageFailed, "walking bundle source", err)
	}
	if len(failures) > 0 {
		return nil, errdefs.Newf(errdefs.EStageFailed,
			"%d file(s) unreadable; nothing would be installed:\n  %s",
			len(failures), strings.Join(failures, "\n  "))
	}
	return &Result{FilesCopied: len(planned), Planned: planned}, nil
}

// carryForward copies files present under targetRoot but absent from the
// staged set into the staging directory. The live target is only read.
func carryForward(targetRoot, stagingDir string, staged []stagedFile) error {
	stagedSet := make(map[string]bool, len(staged))
	for _, sf := range staged {
		stagedSet[sf.rel] = true
	}

	return filepath.WalkDir(targetRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(targetRoot, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if stagedSet[rel] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		dst := filepath.Join(stagingDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dst), pathscope.DirPermNormal); err != nil {
			return err
		}
		return os.WriteFile(dst, data, info.Mode().Perm())
	})
}

// swap makes the staged tree visible at targetRoot via rename. For a
// fresh install this is a single rename. For a re-install the previous
// tree is renamed aside first and restored if the swap itself fails.
func swap(stagingDir, targetRoot string) error {
	if _, err := os.Stat(targetRoot); os.IsNotExist(err) {
		if err := os.Rename(stagingDir, targetRoot); err != nil {
			return errdefs.Wrap(errdefs.ESwapFailed,
				fmt.Sprintf("moving staged tree into place; %s was not created", targetRoot), err)
		}
		return nil
	}

	oldDir := targetRoot + ".old-" + filepath.Base(stagingDir)
	if err := os.Rename(targetRoot, oldDir); err != nil {
		return errdefs.Wrap(errdefs.ESwapFailed,
			fmt.Sprintf("setting aside previous installation; %s is unchanged", targetRoot), err)
	}
	if err := os.Rename(stagingDir, targetRoot); err != nil {
		// Restore the previous tree.
		if restoreErr := os.Rename(oldDir, targetRoot); restoreErr != nil {
			return errdefs.Wrap(errdefs.ESwapFailed,
				fmt.Sprintf("swap failed and restore failed; previous installation is at %s", oldDir), err)
		}
		return errdefs.Wrap(errdefs.ESwapFailed,
			fmt.Sprintf("moving staged tree into place; previous installation at %s was restored", targetRoot), err)
	}
	os.RemoveAll(oldDir)
	return nil
}

// classifyTargetErr distinguishes permission problems from generic I/O so
// the CLI can suggest a different scope.
func classifyTargetErr(parent string, err error) error {
	if os.IsPermission(err) {
		return errdefs.Wrap(errdefs.EPermission,
			fmt.Sprintf("no permission to write %s; try --scope project or --target", parent), err)
	}
	return errdefs.Wrap(errdefs.ETargetInvalid,
		fmt.Sprintf("cannot prepare target parent %s; nothing was installed", parent), err)
}
