package bundle

import (
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

const frontMatterDelim = "---"

// splitFrontMatter separates a markdown document into its YAML header and
// body. Documents without a leading "---" line have no frontmatter.
func splitFrontMatter(content string) (header, body string, found bool) {
	if !strings.HasPrefix(content, frontMatterDelim+"\n") && content != frontMatterDelim {
		return "", content, false
	}
	rest := strings.TrimPrefix(content, frontMatterDelim+"\n")
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end < 0 {
		return "", content, false
	}
	header = rest[:end]
	body = rest[end+len("\n"+frontMatterDelim):]
	body = strings.TrimPrefix(body, "\n")
	return header, body, true
}

// ParseFrontMatter parses a markdown document's YAML header into the
// typed record. All frontmatter consumers go through this one function;
// required-versus-optional is enforced here, not at call sites.
func ParseFrontMatter(content string) (FrontMatter, string, error) {
	header, body, found := splitFrontMatter(content)
	if !found {
		return FrontMatter{}, content, fmt.Errorf("missing frontmatter block")
	}

	var fm FrontMatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return FrontMatter{}, content, fmt.Errorf("parsing frontmatter: %w", err)
	}
	if fm.Name == "" {
		return fm, body, fmt.Errorf("frontmatter missing required field: name")
	}
	if fm.Description == "" {
		return fm, body, fmt.Errorf("frontmatter missing required field: description")
	}
	return fm, body, nil
}
