// Package bundle loads and validates a bundle source tree: the
// bundle.yaml descriptor plus agent and command markdown files with YAML
// frontmatter. Frontmatter is parsed in exactly one place and validated
// against an embedded JSON schema.
package bundle
