package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/petal-labs/behaveflow/graph"
	"github.com/petal-labs/behaveflow/registry"
)

// ErrNotGraph is returned for files that parse but hold no node list.
var ErrNotGraph = errors.New("file is not a behavior graph: missing \"nodes\"")

// Load reads a graph file and decodes it into a Document.
func Load(path string) (*graph.Document, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return Parse(data, DetectFormat(path))
}

// Parse decodes graph bytes in the given format.
func Parse(data []byte, format Format) (*graph.Document, error) {
	jsonData := data
	if format == FormatYAML {
		var err error
		if jsonData, err = yamlToJSON(data); err != nil {
			return nil, err
		}
	}

	var raw map[string]any
	if err := json.Unmarshal(jsonData, &raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if !hasKey(raw, "nodes") {
		return nil, ErrNotGraph
	}
	return graph.ReadJSON(bytes.NewReader(jsonData))
}

// LoadGraph loads a graph file and builds it through reg. Error-severity
// diagnostics are returned as a *DiagnosticError; warnings are returned
// alongside a successfully built graph.
func LoadGraph(path string, reg *registry.Registry, deps registry.Dependencies) (*graph.Graph, []graph.Diagnostic, error) {
	doc, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	g, diags := graph.Build(doc, reg, deps)
	if graph.HasErrors(diags) {
		return nil, diags, &DiagnosticError{Diagnostics: diags}
	}
	if g.Name() == "" {
		g.SetName(path)
	}
	return g, diags, nil
}

// Save writes doc to path in the format implied by its extension.
func Save(path string, doc *graph.Document) error {
	var buf bytes.Buffer
	if err := graph.WriteJSON(&buf, doc); err != nil {
		return err
	}
	data := buf.Bytes()
	if DetectFormat(path) == FormatYAML {
		var err error
		if data, err = jsonToYAML(data); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing file %s: %w", path, err)
	}
	return nil
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []graph.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := graph.Errors(e.Diagnostics)
	if len(errs) == 0 {
		return "validation failed"
	}
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
