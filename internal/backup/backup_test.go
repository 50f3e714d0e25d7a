package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackupFileCopiesContent(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "agents", "ap", "reviewer.md")
	if err := os.MkdirAll(filepath.Dir(src), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(src, []byte("# reviewer\n"), 0644); err != nil {
		t.Fatal(err)
	}

	m := NewManager(root, 0)
	res := m.BackupFile(src, "agents/ap/reviewer.md")
	if !res.Success || res.Err != nil {
		t.Fatalf("BackupFile failed: %+v", res)
	}
	if res.BackupPath == "" {
		t.Fatal("expected a backup path")
	}

	data, err := os.ReadFile(res.BackupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(data) != "# reviewer\n" {
		t.Errorf("backup content = %q", data)
	}
	if !strings.HasSuffix(res.BackupPath, "_agents__ap__reviewer.md") {
		t.Errorf("backup name should embed flattened relative path: %s", res.BackupPath)
	}
}

func TestBackupMissingSourceIsSuccess(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 0)

	res := m.BackupFile(filepath.Join(root, "gone.md"), "gone.md")
	if !res.Success {
		t.Errorf("missing source should be success: %+v", res)
	}
	if res.BackupPath != "" {
		t.Errorf("no backup should be created for a missing source: %q", res.BackupPath)
	}
}

func TestCleanupOldBackupsRetention(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 3)

	// Five backups of the same file at advancing timestamps.
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	src := filepath.Join(root, "x.md")
	for i := 0; i < 5; i++ {
		if err := os.WriteFile(src, []byte("v"), 0644); err != nil {
			t.Fatal(err)
		}
		if res := m.BackupFile(src, "x.md"); !res.Success {
			t.Fatalf("backup %d: %+v", i, res)
		}
		clock = clock.Add(time.Minute)
	}

	res := m.CleanupOldBackups()
	if res.Cleaned != 2 {
		t.Errorf("Cleaned = %d, want 2", res.Cleaned)
	}
	if res.Kept != 3 {
		t.Errorf("Kept = %d, want 3", res.Kept)
	}

	// The survivors are the newest three.
	entries, err := os.ReadDir(m.Dir())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "20260301T1000") {
			t.Errorf("oldest backups should have been pruned, found %s", e.Name())
		}
	}
}

func TestCleanupIgnoresUnrecognizedFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root, 1)
	if err := os.MkdirAll(m.Dir(), 0755); err != nil {
		t.Fatal(err)
	}

	// A file without a timestamp prefix must never be deleted.
	stray := filepath.Join(m.Dir(), "README.txt")
	if err := os.WriteFile(stray, []byte("not a backup"), 0644); err != nil {
		t.Fatal(err)
	}

	res := m.CleanupOldBackups()
	if res.Cleaned != 0 {
		t.Errorf("Cleaned = %d, want 0", res.Cleaned)
	}
	if _, err := os.Stat(stray); err != nil {
		t.Error("unrecognized file was removed from backup store")
	}
}

func TestCleanupMissingStoreIsQuiet(t *testing.T) {
	m := NewManager(t.TempDir(), 5)
	res := m.CleanupOldBackups()
	if res.Cleaned != 0 || len(res.Errors) != 0 {
		t.Errorf("cleanup of absent store should be a no-op: %+v", res)
	}
}
