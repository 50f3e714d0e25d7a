package bundle

// Meta is the bundle.yaml descriptor at the root of a bundle source tree.
type Meta struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Description string `yaml:"description,omitempty"`
	Author      string `yaml:"author,omitempty"`
}

// FrontMatter is the YAML header every agent and command markdown file
// carries. Name and Description are required; the rest is optional.
type FrontMatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Model        string   `yaml:"model,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
	ArgumentHint string   `yaml:"argument-hint,omitempty"`
}

// Asset is one parsed markdown asset inside a bundle.
type Asset struct {
	// RelativePath is relative to the bundle source root, forward-slash.
	RelativePath string
	Kind         AssetKind
	Front        FrontMatter
	// Body is the markdown content after the frontmatter block.
	Body string
}

// AssetKind discriminates agent files from command files by their
// top-level directory.
type AssetKind string

const (
	KindAgent    AssetKind = "agent"
	KindCommand  AssetKind = "command"
	KindTemplate AssetKind = "template"
	KindOther    AssetKind = "other"
)

// Bundle is a fully loaded source tree.
type Bundle struct {
	Root   string
	Meta   Meta
	Assets []Asset
}
