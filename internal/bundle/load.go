package bundle

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"
)

// MetaFile is the bundle descriptor at the source root.
const MetaFile = "bundle.yaml"

// LoadMeta reads and parses the bundle.yaml descriptor.
func LoadMeta(sourceRoot string) (Meta, error) {
	data, err := os.ReadFile(filepath.Join(sourceRoot, MetaFile))
	if err != nil {
		return Meta{}, fmt.Errorf("reading %s: %w", MetaFile, err)
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Meta{}, fmt.Errorf("parsing %s: %w", MetaFile, err)
	}
	if m.Name == "" {
		return Meta{}, fmt.Errorf("%s missing required field: name", MetaFile)
	}
	if m.Version == "" {
		return Meta{}, fmt.Errorf("%s missing required field: version", MetaFile)
	}
	return m, nil
}

// Load reads a bundle source tree: the descriptor plus every markdown
// asset with parsed frontmatter. Per-file problems are collected and
// returned alongside the bundle so the caller sees all of them at once.
func Load(sourceRoot string) (*Bundle, []string, error) {
	meta, err := LoadMeta(sourceRoot)
	if err != nil {
		return nil, nil, err
	}

	b := &Bundle{Root: sourceRoot, Meta: meta}
	var issues []string

	walkErr := filepath.WalkDir(sourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(sourceRoot, path)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", path, err))
			return nil
		}
		rel = filepath.ToSlash(rel)
		kind := kindOf(rel)
		if kind == KindOther {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", rel, err))
			return nil
		}

		fm, body, err := ParseFrontMatter(string(data))
		if err != nil {
			issues = append(issues, fmt.Sprintf("%s: %v", rel, err))
			return nil
		}

		if header, _, ok := splitFrontMatter(string(data)); ok {
			res, verr := ValidateFrontMatter([]byte(header))
			if verr != nil {
				issues = append(issues, fmt.Sprintf("%s: %v", rel, verr))
			} else if !res.Valid {
				for _, is := range res.Issues {
					issues = append(issues, fmt.Sprintf("%s: %s: %s", rel, is.Path, is.Message))
				}
			}
		}

		b.Assets = append(b.Assets, Asset{RelativePath: rel, Kind: kind, Front: fm, Body: body})
		return nil
	})
	if walkErr != nil {
		return nil, issues, fmt.Errorf("walking bundle source: %w", walkErr)
	}
	return b, issues, nil
}

// kindOf classifies an asset by its top-level directory.
func kindOf(rel string) AssetKind {
	switch {
	case strings.HasPrefix(rel, "agents/"):
		return KindAgent
	case strings.HasPrefix(rel, "commands/"):
		return KindCommand
	case strings.HasPrefix(rel, "templates/"):
		return KindTemplate
	default:
		return KindOther
	}
}
