package bundle

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.yaml.in/yaml/v3"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schema/frontmatter.schema.json
var schemaBytes []byte

var (
	compiledSchema *jsonschema.Schema
	compileOnce    sync.Once
	compileErr     error
	printer        = message.NewPrinter(language.English)
)

// ValidationResult contains the outcome of a schema validation.
type ValidationResult struct {
	Valid  bool
	Issues []ValidationIssue
}

// ValidationIssue represents a single validation error from the schema.
type ValidationIssue struct {
	Path    string // Instance location (e.g., "/name", "/tools/0")
	Message string // Human-readable error message
}

// getSchema compiles the embedded JSON schema once and returns it.
func getSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
		if err != nil {
			compileErr = fmt.Errorf("unmarshaling schema JSON: %w", err)
			return
		}

		c := jsonschema.NewCompiler()
		if err := c.AddResource("frontmatter.schema.json", doc); err != nil {
			compileErr = fmt.Errorf("adding schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("frontmatter.schema.json")
		if compileErr != nil {
			compileErr = fmt.Errorf("compiling schema: %w", compileErr)
		}
	})
	return compiledSchema, compileErr
}

// ValidateFrontMatter validates a raw YAML frontmatter header against the
// embedded schema. The error return is for schema compilation failures;
// validation problems come back in the ValidationResult.
func ValidateFrontMatter(header []byte) (*ValidationResult, error) {
	schema, err := getSchema()
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	var raw interface{}
	if err := yaml.Unmarshal(header, &raw); err != nil {
		return &ValidationResult{
			Valid:  false,
			Issues: []ValidationIssue{{Path: "/", Message: fmt.Sprintf("invalid YAML: %v", err)}},
		}, nil
	}

	// Round-trip through JSON so the validator sees json.Number-style
	// values rather than YAML-typed ones.
	raw = normalizeYAML(raw)
	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("preparing JSON for validation: %w", err)
	}

	if err := schema.Validate(inst); err != nil {
		res := &ValidationResult{Valid: false}
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			collectIssues(ve, res)
		} else {
			res.Issues = append(res.Issues, ValidationIssue{Path: "/", Message: err.Error()})
		}
		return res, nil
	}
	return &ValidationResult{Valid: true}, nil
}

// collectIssues flattens the validator's error tree into leaf issues.
func collectIssues(ve *jsonschema.ValidationError, res *ValidationResult) {
	if len(ve.Causes) == 0 {
		msg := ve.Error()
		if ve.ErrorKind != nil {
			msg = ve.ErrorKind.LocalizedString(printer)
		}
		res.Issues = append(res.Issues, ValidationIssue{
			Path:    "/" + joinPath(ve.InstanceLocation),
			Message: msg,
		})
		return
	}
	for _, cause := range ve.Causes {
		collectIssues(cause, res)
	}
}

func joinPath(segments []string) string {
	out := ""
	for i, s := range segments {
		if i > 0 {
			out += "/"
		}
		out += s
	}
	return out
}

// normalizeYAML converts map[interface{}]interface{} trees produced by
// YAML decoding into map[string]interface{} so they marshal as JSON.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(val)
		}
		return out
	case map[string]interface{}:
		for k, val := range t {
			t[k] = normalizeYAML(val)
		}
		return t
	case []interface{}:
		for i, val := range t {
			t[i] = normalizeYAML(val)
		}
		return t
	default:
		return v
	}
}
