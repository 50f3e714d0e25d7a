package pathscope

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentpack-dev/agentpack/internal/branding"
)

// Scope identifies a logical installation target.
type Scope string

const (
	// ScopeGlobal installs into the user-wide assistant config directory.
	ScopeGlobal Scope = "global"
	// ScopeProject installs into the current project's config directory.
	ScopeProject Scope = "project"
)

// Directory and file name constants inside an installation root.
// The installation root itself is shared; only OwnedDir (".agentpack")
// and the configured asset sub-namespaces belong to the bundle.
const (
	// TargetDirName is the shared config directory the bundle installs
	// into (under $HOME for global scope, under the project for project
	// scope). The bundle does not own this directory.
	TargetDirName = ".claude"

	ManifestFile = "manifest.json"
	VersionFile  = "VERSION"
	BackupsDir   = "backups"
	LockFile     = ".lock"
)

// Permission constants.
const (
	DirPermNormal os.FileMode = 0755
)

// ParseScope converts a user-supplied scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeGlobal, ScopeProject:
		return Scope(s), nil
	default:
		return "", fmt.Errorf("unknown scope %q: expected %q or %q", s, ScopeGlobal, ScopeProject)
	}
}

// Resolve returns the installation root for a scope. An explicit target
// directory wins over everything; otherwise the AGENTPACK_TARGET
// environment variable is honored, then the scope's conventional location.
func Resolve(scope Scope, explicitTarget string) (string, error) {
	if explicitTarget != "" {
		abs, err := filepath.Abs(explicitTarget)
		if err != nil {
			return "", fmt.Errorf("resolving target directory: %w", err)
		}
		return abs, nil
	}

	if v := os.Getenv(branding.EnvVar("TARGET")); v != "" {
		return v, nil
	}

	switch scope {
	case ScopeGlobal:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, TargetDirName), nil
	case ScopeProject:
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolving working directory: %w", err)
		}
		return filepath.Join(cwd, TargetDirName), nil
	default:
		return "", fmt.Errorf("unknown scope %q", scope)
	}
}

// OwnedDir returns the bundle-owned metadata directory inside root.
func OwnedDir(root string) string {
	return filepath.Join(root, branding.OwnedDir())
}

// ManifestPath returns the fixed manifest location inside root.
func ManifestPath(root string) string {
	return filepath.Join(OwnedDir(root), ManifestFile)
}

// VersionPath returns the version marker location inside root.
func VersionPath(root string) string {
	return filepath.Join(OwnedDir(root), VersionFile)
}

// BackupsPath returns the backup store location inside root.
func BackupsPath(root string) string {
	return filepath.Join(OwnedDir(root), BackupsDir)
}

// LockPath returns the advisory lock file location inside root.
func LockPath(root string) string {
	return filepath.Join(OwnedDir(root), LockFile)
}

// IsInstalled reports whether root holds an existing installation,
// detected by the presence of the manifest or the version marker.
func IsInstalled(root string) bool {
	if _, err := os.Stat(ManifestPath(root)); err == nil {
		return true
	}
	if _, err := os.Stat(VersionPath(root)); err == nil {
		return true
	}
	return false
}
