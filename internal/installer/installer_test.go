package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentpack-dev/agentpack/internal/errdefs"
	"github.com/agentpack-dev/agentpack/internal/manifest"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

const testToken = "@agentpack/"

func newTestInstaller() *Installer {
	return &Installer{Token: testToken}
}

// writeSource lays out the three-file bundle used across these tests:
// two markdown files containing the token and one plain text file.
func writeSource(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	writeFile(t, src, "agents/x.md", "See @agentpack/commands/y.md and @agentpack/notes.txt\n")
	writeFile(t, src, "commands/y.md", "Refer to @agentpack/agents/x.md\n")
	writeFile(t, src, "notes.txt", "plain notes, no token\n")
	return src
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestInstallRewritesTokensAndWritesManifest(t *testing.T) {
	src := writeSource(t)
	target := filepath.Join(t.TempDir(), "root")

	res, err := newTestInstaller().Install(context.Background(), src, target, Options{Version: "1.2.0"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}

	// 3 bundle files + version marker.
	if res.FilesCopied != 4 {
		t.Errorf("FilesCopied = %d, want 4", res.FilesCopied)
	}
	if res.Manifest.Len() != 4 {
		t.Errorf("manifest entries = %d, want 4", res.Manifest.Len())
	}

	x := readFile(t, filepath.Join(target, "agents", "x.md"))
	if strings.Contains(x, testToken) {
		t.Error("token remains in agents/x.md after install")
	}
	if got := strings.Count(x, target+"/"); got != 2 {
		t.Errorf("agents/x.md contains %d target-path occurrences, want 2", got)
	}

	y := readFile(t, filepath.Join(target, "commands", "y.md"))
	if got := strings.Count(y, target+"/"); got != 1 {
		t.Errorf("commands/y.md contains %d target-path occurrences, want 1", got)
	}

	// notes.txt carried no token: byte-identical to the source.
	if readFile(t, filepath.Join(target, "notes.txt")) != "plain notes, no token\n" {
		t.Error("notes.txt was modified")
	}

	// Manifest hashes match on-disk content.
	m, err := manifest.Load(target)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, e := range m.Entries() {
		onDisk, err := manifest.HashFile(filepath.Join(target, filepath.FromSlash(e.RelativePath)))
		if err != nil {
			t.Fatalf("hashing %s: %v", e.RelativePath, err)
		}
		if onDisk != e.Hash {
			t.Errorf("%s: manifest hash %s != on-disk %s", e.RelativePath, e.Hash, onDisk)
		}
	}

	if readFile(t, pathscope.VersionPath(target)) != "1.2.0\n" {
		t.Error("version marker not written")
	}
}

func TestInstallIdempotent(t *testing.T) {
	src := writeSource(t)
	target := filepath.Join(t.TempDir(), "root")
	in := newTestInstaller()

	if _, err := in.Install(context.Background(), src, target, Options{Version: "1.0.0"}); err != nil {
		t.Fatalf("first install: %v", err)
	}
	first := snapshot(t, target)

	res, err := in.Install(context.Background(), src, target, Options{Version: "1.0.0"})
	if err != nil {
		t.Fatalf("second install: %v", err)
	}
	second := snapshot(t, target)

	if len(first) != len(second) {
		t.Fatalf("file sets differ: %d vs %d", len(first), len(second))
	}
	for rel, h := range first {
		if second[rel] != h {
			t.Errorf("%s changed between identical installs", rel)
		}
	}

	// No token survives, no double-rewritten paths appear.
	x := readFile(t, filepath.Join(target, "agents", "x.md"))
	if strings.Contains(x, testToken) {
		t.Error("token present after re-install")
	}
	if strings.Contains(x, target+"/"+strings.TrimSuffix(target, "/")) {
		t.Error("double-rewritten path found")
	}
	_ = res
}

func TestReinstallPreservesUnrelatedFiles(t *testing.T) {
	src := writeSource(t)
	target := filepath.Join(t.TempDir(), "root")
	in := newTestInstaller()

	if _, err := in.Install(context.Background(), src, target, Options{Version: "1.0.0"}); err != nil {
		t.Fatalf("install: %v", err)
	}

	// A user drops an unrelated file into the shared root.
	writeFile(t, target, "agents/my-custom/notes.md", "mine\n")

	if _, err := in.Install(context.Background(), src, target, Options{Version: "1.1.0"}); err != nil {
		t.Fatalf("re-install: %v", err)
	}

	if readFile(t, filepath.Join(target, "agents", "my-custom", "notes.md")) != "mine\n" {
		t.Error("unrelated user file lost during re-install")
	}
	if readFile(t, pathscope.VersionPath(target)) != "1.1.0\n" {
		t.Error("version marker not updated")
	}
}

func TestInstallDollarSignInTargetPath(t *testing.T) {
	src := t.TempDir()
	writeFile(t, src, "agents/x.md", "path: @agentpack/agents/x.md\n")

	// "$1" in the target path must come through literally.
	target := filepath.Join(t.TempDir(), "v$1root")
	if _, err := newTestInstaller().Install(context.Background(), src, target, Options{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	x := readFile(t, filepath.Join(target, "agents", "x.md"))
	want := "path: " + target + "/agents/x.md\n"
	if x != want {
		t.Errorf("rewrite mangled special characters:\n got %q\nwant %q", x, want)
	}
}

func TestInstallMissingSourceTouchesNothing(t *testing.T) {
	parent := t.TempDir()
	target := filepath.Join(parent, "root")

	_, err := newTestInstaller().Install(context.Background(), filepath.Join(parent, "no-such-src"), target, Options{})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
	if errdefs.GetCode(err) != errdefs.ESourceMissing {
		t.Errorf("code = %q, want E_SOURCE_MISSING", errdefs.GetCode(err))
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target was created despite precondition failure")
	}
}

func TestInstallUnreadableFileAbortsBeforeSwap(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are ignored when running as root")
	}

	src := writeSource(t)
	locked := filepath.Join(src, "agents", "locked.md")
	if err := os.WriteFile(locked, []byte("@agentpack/x\n"), 0000); err != nil {
		t.Fatal(err)
	}

	parent := t.TempDir()
	target := filepath.Join(parent, "root")
	_, err := newTestInstaller().Install(context.Background(), src, target, Options{})
	if err == nil {
		t.Fatal("expected staging failure")
	}
	if errdefs.GetCode(err) != errdefs.EStageFailed {
		t.Errorf("code = %q, want E_STAGE_FAILED", errdefs.GetCode(err))
	}

	// Target untouched, staging directory cleaned up.
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target exists after aborted install")
	}
	entries, readErr := os.ReadDir(parent)
	if readErr != nil {
		t.Fatal(readErr)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "stage") {
			t.Errorf("staging directory leaked: %s", e.Name())
		}
	}
}

func TestInstallCancelledBeforeSwap(t *testing.T) {
	src := writeSource(t)
	parent := t.TempDir()
	target := filepath.Join(parent, "root")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestInstaller().Install(ctx, src, target, Options{})
	if err == nil {
		t.Fatal("expected interruption error")
	}
	if errdefs.GetCode(err) != errdefs.EInterrupted {
		t.Errorf("code = %q, want E_INTERRUPTED", errdefs.GetCode(err))
	}
	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("target exists after cancelled install")
	}
}

func TestDryRunTouchesNothing(t *testing.T) {
	src := writeSource(t)
	parent := t.TempDir()
	target := filepath.Join(parent, "root")

	res, err := newTestInstaller().Install(context.Background(), src, target, Options{DryRun: true, Version: "1.0.0"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}

	if _, statErr := os.Stat(target); !os.IsNotExist(statErr) {
		t.Error("dry run created the target")
	}
	entries, readErr := os.ReadDir(parent)
	if readErr != nil {
		t.Fatal(readErr)
	}
	if len(entries) != 0 {
		t.Errorf("dry run left debris in target parent: %v", entries)
	}

	if res.FilesCopied != 3 {
		t.Errorf("planned files = %d, want 3", res.FilesCopied)
	}
	hits := make(map[string]int)
	for _, pf := range res.Planned {
		hits[pf.RelativePath] = pf.TokenHits
	}
	if hits["agents/x.md"] != 2 || hits["commands/y.md"] != 1 || hits["notes.txt"] != 0 {
		t.Errorf("token classification wrong: %v", hits)
	}
}

func TestInstallExcludesJunk(t *testing.T) {
	src := writeSource(t)
	writeFile(t, src, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, src, "node_modules/dep/index.js", "x\n")
	writeFile(t, src, ".DS_Store", "\n")

	target := filepath.Join(t.TempDir(), "root")
	res, err := newTestInstaller().Install(context.Background(), src, target, Options{})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if res.FilesCopied != 3 {
		t.Errorf("FilesCopied = %d, want 3 (junk excluded)", res.FilesCopied)
	}
	if _, statErr := os.Stat(filepath.Join(target, ".git")); !os.IsNotExist(statErr) {
		t.Error(".git was installed")
	}
}

// snapshot hashes every regular file under root, keyed by relative path.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		h, err := manifest.HashFile(path)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = h
		return nil
	})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return out
}
