// Package persist serializes the memory graph to a flat JSON document and
// back. The on-disk format is a UTF-8, pretty-printed document with two named
// arrays:
//
//	{
//	  "nodes":       [ { "id", "content", "tags" }, ... ],
//	  "connections": [ { "from_id", "to_id", "type" }, ... ]
//	}
//
// There is no versioning field; schema changes are not backward-compatible.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/taprootHQ/taproot/internal/graph"
)

// MalformedDocumentError reports a buffer that could not be parsed or that
// fails the structural checks of the document schema.
type MalformedDocumentError struct {
	Reason string
	Err    error
}

func (e *MalformedDocumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed graph document: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed graph document: %s", e.Reason)
}

func (e *MalformedDocumentError) Unwrap() error { return e.Err }

// document is the explicit schema of the persisted file. Pointer fields let
// Unmarshal distinguish an absent required field (rejected) from a present
// empty one; missing top-level arrays are tolerated and default to empty.
type document struct {
	Nodes       []nodeRecord       `json:"nodes"`
	Connections []connectionRecord `json:"connections"`
}

type nodeRecord struct {
	ID      *string  `json:"id"`
	Content *string  `json:"content"`
	Tags    []string `json:"tags"`
}

type connectionRecord struct {
	FromID *string `json:"from_id"`
	ToID   *string `json:"to_id"`
	Type   *string `json:"type"`
}

// Marshal serializes the store into the persisted document form. The output
// round-trips: Unmarshal(Marshal(s)) reconstructs the same node and
// connection sets in the same order.
func Marshal(s *graph.Store) ([]byte, error) {
	doc := document{
		Nodes:       make([]nodeRecord, 0, s.Size()),
		Connections: make([]connectionRecord, 0, len(s.ListConnections())),
	}
	for _, n := range s.Nodes() {
		tags := n.Tags
		if tags == nil {
			tags = []string{}
		}
		doc.Nodes = append(doc.Nodes, nodeRecord{ID: &n.ID, Content: &n.Content, Tags: tags})
	}
	for _, c := range s.ListConnections() {
		doc.Connections = append(doc.Connections, connectionRecord{FromID: &c.FromID, ToID: &c.ToID, Type: &c.Type})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Unmarshal parses a persisted document into a fresh store. Missing top-level
// arrays default to empty; a record missing a required field is rejected with
// MalformedDocumentError. Referential integrity of loaded connections is NOT
// re-validated against loaded nodes — a corrupted file can restore a graph
// with dangling connections.
func Unmarshal(data []byte) (*graph.Store, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedDocumentError{Reason: "not a valid JSON document", Err: err}
	}

	nodes := make([]graph.Node, 0, len(doc.Nodes))
	for i, rec := range doc.Nodes {
		if rec.ID == nil {
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf("nodes[%d] missing required field \"id\"", i)}
		}
		if rec.Content == nil {
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf("nodes[%d] missing required field \"content\"", i)}
		}
		tags := rec.Tags
		if tags == nil {
			tags = []string{}
		}
		nodes = append(nodes, graph.Node{ID: *rec.ID, Content: *rec.Content, Tags: tags})
	}

	connections := make([]graph.Connection, 0, len(doc.Connections))
	for i, rec := range doc.Connections {
		if rec.FromID == nil || rec.ToID == nil || rec.Type == nil {
			return nil, &MalformedDocumentError{Reason: fmt.Sprintf("connections[%d] missing required field", i)}
		}
		connections = append(connections, graph.Connection{FromID: *rec.FromID, ToID: *rec.ToID, Type: *rec.Type})
	}

	return graph.Restore(nodes, connections), nil
}

// Load reads the graph document at path. A missing file is the expected
// first-run condition and yields a fresh empty store, never an error. Read
// failures and malformed documents propagate to the caller, who decides
// whether to fall back to an empty store.
func Load(path string) (*graph.Store, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return graph.NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	store, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// Save writes the store to path, creating or overwriting it. The write goes
// to a temp file in the same directory followed by a rename, so a failed save
// leaves the previous file intact rather than truncated.
func Save(s *graph.Store, path string) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("serialize graph: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("write graph file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace graph file: %w", err)
	}
	return nil
}

// DefaultPath resolves the graph file location: $TAPROOT_DATA_DIR/memory.json,
// defaulting the data dir to ~/.taproot. The directory is created if absent.
func DefaultPath() (string, error) {
	dataDir := os.Getenv("TAPROOT_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".taproot")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data dir: %w", err)
	}
	return filepath.Join(dataDir, "memory.json"), nil
}
