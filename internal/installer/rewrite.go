package installer

import (
	"path/filepath"
	"strings"
)

// textExtensions are the file types scanned for the rewrite token.
// Everything else is copied byte-for-byte.
var textExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".yaml":     true,
	".yml":      true,
	".json":     true,
	".toml":     true,
}

// excludedNames are files/directories skipped during staging.
var excludedNames = map[string]bool{
	"node_modules": true,
	".git":         true,
	".DS_Store":    true,
}

// isTextAsset reports whether the file is subject to token rewriting.
func isTextAsset(name string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(name))]
}

// rewriteContent replaces every occurrence of token with the installation
// root plus a path separator. strings.ReplaceAll is a literal replacement:
// characters like "$" in the root path carry no special meaning, which a
// template-style substitution would mangle.
func rewriteContent(content []byte, token, targetRoot string) ([]byte, int) {
	s := string(content)
	n := strings.Count(s, token)
	if n == 0 {
		return content, 0
	}
	replacement := strings.TrimSuffix(targetRoot, string(filepath.Separator)) + "/"
	return []byte(strings.ReplaceAll(s, token, replacement)), n
}
