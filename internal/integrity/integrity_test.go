package integrity

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentpack-dev/agentpack/internal/installer"
	"github.com/agentpack-dev/agentpack/internal/namespace"
	"github.com/agentpack-dev/agentpack/internal/pathscope"
)

func patterns() namespace.PatternSet {
	return namespace.New([]string{"agents/ap", "commands/ap", ".agentpack"})
}

func installFixture(t *testing.T) string {
	t.Helper()
	src := t.TempDir()
	for rel, content := range map[string]string{
		"agents/ap/reviewer.md": "see @agentpack/commands/ap/build.md\n",
		"commands/ap/build.md":  "# build\n",
	} {
		path := filepath.Join(src, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	root := filepath.Join(t.TempDir(), "root")
	in := &installer.Installer{Token: "@agentpack/"}
	if _, err := in.Install(context.Background(), src, root, installer.Options{Version: "1.2.0"}); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestCheckAllHealthyInstall(t *testing.T) {
	root := installFixture(t)

	r := New(root, patterns()).CheckAll(Options{ExpectedVersion: "1.2.0"})
	if !r.Passed {
		t.Fatalf("healthy install reported unhealthy: %+v", r)
	}
	if !r.Files.Passed || !r.Integrity.Passed {
		t.Error("category failures on healthy install")
	}
	if r.Version == nil || !r.Version.Passed {
		t.Error("version category should pass")
	}
	if len(r.DriftFiles) != 0 {
		t.Errorf("unexpected drift: %v", r.DriftFiles)
	}
}

func TestCheckAllVersionTolerantSemver(t *testing.T) {
	root := installFixture(t)

	// "v" prefix differences are not a mismatch.
	r := New(root, patterns()).CheckAll(Options{ExpectedVersion: "v1.2.0"})
	if r.Version == nil || !r.Version.Passed {
		t.Errorf("v-prefixed expected version should match: %+v", r.Version)
	}

	r = New(root, patterns()).CheckAll(Options{ExpectedVersion: "2.0.0"})
	if r.Version.Passed {
		t.Error("version mismatch not detected")
	}
	if r.Passed {
		t.Error("overall report should fail on version mismatch")
	}
}

func TestCheckAllVersionSkippedWhenNotRequested(t *testing.T) {
	root := installFixture(t)

	r := New(root, patterns()).CheckAll(Options{})
	if r.Version != nil {
		t.Error("version category should not run without an expected version")
	}
	if !r.Passed {
		t.Error("overall pass should ignore the skipped category")
	}
}

func TestCheckAllDetectsDriftAndMissing(t *testing.T) {
	root := installFixture(t)

	// Modify one tracked file, delete another.
	if err := os.WriteFile(filepath.Join(root, "agents", "ap", "reviewer.md"), []byte("edited\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "commands", "ap", "build.md")); err != nil {
		t.Fatal(err)
	}

	r := New(root, patterns()).CheckAll(Options{})
	if r.Passed {
		t.Fatal("drift and missing files not detected")
	}
	drift := map[string]bool{}
	for _, f := range r.DriftFiles {
		drift[f] = true
	}
	if !drift["agents/ap/reviewer.md"] {
		t.Error("content drift missed")
	}
	if !drift["commands/ap/build.md"] {
		t.Error("missing file missed")
	}

	// Batch semantics: both problems reported, not just the first.
	if len(r.DriftFiles) < 2 {
		t.Errorf("expected both problems collected, got %v", r.DriftFiles)
	}
}

func TestCheckAllMissingManifestFailsIntegrity(t *testing.T) {
	root := installFixture(t)
	if err := os.Remove(pathscope.ManifestPath(root)); err != nil {
		t.Fatal(err)
	}

	r := New(root, patterns()).CheckAll(Options{})
	if r.Integrity.Passed {
		t.Error("integrity should fail without a manifest")
	}
	if r.Passed {
		t.Error("overall report should fail")
	}
}

func TestCheckAllUninstalledRoot(t *testing.T) {
	r := New(t.TempDir(), patterns()).CheckAll(Options{ExpectedVersion: "1.0.0"})
	if r.Passed {
		t.Error("empty root should be unhealthy")
	}
	if r.Files.Passed {
		t.Error("files category should fail on empty root")
	}
	if r.Version.Passed {
		t.Error("version category should fail without a marker")
	}
}

func TestIsNewer(t *testing.T) {
	tests := []struct {
		current, candidate string
		want               bool
		wantErr            bool
	}{
		{"1.0.0", "1.1.0", true, false},
		{"1.1.0", "1.1.0", false, false},
		{"2.0.0", "1.9.9", false, false},
		{"v1.0.0", "v1.0.1", true, false},
		{"not-a-version", "1.0.0", false, true},
	}
	for _, tt := range tests {
		got, err := IsNewer(tt.current, tt.candidate)
		if (err != nil) != tt.wantErr {
			t.Errorf("IsNewer(%q, %q) error = %v", tt.current, tt.candidate, err)
			continue
		}
		if got != tt.want {
			t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.current, tt.candidate, got, tt.want)
		}
	}
}
