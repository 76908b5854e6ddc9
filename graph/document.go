package graph

import (
	"encoding/json"
	"fmt"
	"io"
)

// Document is the serialized form of a behavior graph.
type Document struct {
	Name    string     `json:"name,omitempty"`
	Version string     `json:"version,omitempty"`
	Nodes   []NodeJSON `json:"nodes"`
}

// NodeJSON is one node of a Document.
type NodeJSON struct {
	ID            string                   `json:"id"`
	Type          string                   `json:"type"`
	Label         string                   `json:"label,omitempty"`
	Metadata      map[string]any           `json:"metadata,omitempty"`
	Configuration map[string]any           `json:"configuration,omitempty"`
	Parameters    map[string]ParameterJSON `json:"parameters,omitempty"`
	Flows         map[string]LinkJSON      `json:"flows,omitempty"`
}

// ParameterJSON sets an input socket to a literal value or links it to an
// upstream output.
type ParameterJSON struct {
	Value any       `json:"value,omitempty"`
	Link  *LinkJSON `json:"link,omitempty"`
}

// LinkJSON names the socket at the other end of a link.
type LinkJSON struct {
	NodeID string `json:"nodeId"`
	Socket string `json:"socket"`
}

// ReadJSON decodes a Document.
func ReadJSON(r io.Reader) (*Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode graph: %w", err)
	}
	return &doc, nil
}

// WriteJSON encodes doc as indented JSON.
func WriteJSON(w io.Writer, doc *Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	return nil
}
