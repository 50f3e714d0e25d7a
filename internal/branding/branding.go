// Package branding provides compile-time identity values for the CLI.
//
// Forkers edit branding.yaml in this package, then rebuild. Go's
// //go:embed bakes the values into the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName      string `yaml:"cli_name"`
	DisplayName  string `yaml:"display_name"`
	Description  string `yaml:"description"`
	HomeDir      string `yaml:"home_dir"`
	EnvPrefix    string `yaml:"env_prefix"`
	GoModule     string `yaml:"go_module"`
	GitHubRepo   string `yaml:"github_repo"`
	OwnedDir     string `yaml:"owned_dir"`
	RewriteToken string `yaml:"rewrite_token"`
}

func load() {
	once.Do(func() {
		// Set hard defaults in case the embedded file is missing/empty.
		defaults = brand{
			CLIName:      "agentpack",
			DisplayName:  "AgentPack",
			Description:  "Safe installer for AI agent asset bundles",
			HomeDir:      ".agentpack",
			EnvPrefix:    "AGENTPACK",
			GoModule:     "github.com/agentpack-dev/agentpack",
			GitHubRepo:   "agentpack-dev/agentpack",
			OwnedDir:     ".agentpack",
			RewriteToken: "@agentpack/",
		}
		// Overlay with embedded YAML values.
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "agentpack").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name (e.g., "AgentPack").
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME (e.g., ".agentpack").
// This is the CLI's own config directory, not an installation root.
func HomeDir() string { load(); return defaults.HomeDir }

// EnvPrefix returns the environment variable prefix (e.g., "AGENTPACK").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GoModule returns the Go module path. Used by scripts, not consumed at runtime.
func GoModule() string { load(); return defaults.GoModule }

// GitHubRepo returns the "owner/repo" string.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// OwnedDir returns the name of the single fully bundle-owned directory
// created inside every installation root (e.g., ".agentpack"). The
// manifest, version marker, backup store, and lock file live under it.
func OwnedDir() string { load(); return defaults.OwnedDir }

// RewriteToken returns the literal marker replaced with the installation
// root path during install (e.g., "@agentpack/").
func RewriteToken() string { load(); return defaults.RewriteToken }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("TARGET") → "AGENTPACK_TARGET".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
