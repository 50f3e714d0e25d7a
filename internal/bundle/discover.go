package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentpack-dev/agentpack/internal/branding"
	"github.com/agentpack-dev/agentpack/internal/config"
)

// DiscoverSource locates the bundle source directory.
//
// Resolution order:
//  1. AGENTPACK_BUNDLE environment variable (development use)
//  2. bundle/ next to the executable's parent (bundled releases)
//  3. bundle.source from the user config file
func DiscoverSource() (string, error) {
	if v := os.Getenv(branding.EnvVar("BUNDLE")); v != "" {
		if info, err := os.Stat(v); err == nil && info.IsDir() {
			return v, nil
		}
		return "", fmt.Errorf("%s points to %s, which is not a directory", branding.EnvVar("BUNDLE"), v)
	}

	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), "..", "bundle")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Clean(candidate), nil
		}
	}

	if v := config.Get("bundle.source"); v != "" {
		if info, err := os.Stat(v); err == nil && info.IsDir() {
			return v, nil
		}
		return "", fmt.Errorf("configured bundle.source %s is not a directory", v)
	}

	return "", fmt.Errorf("no bundle source found; set %s or `%s config set bundle.source <dir>`",
		branding.EnvVar("BUNDLE"), branding.CLIName())
}
