package acceptance

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cucumber/godog"

	"github.com/taprootHQ/taproot/internal/graph"
	"github.com/taprootHQ/taproot/internal/persist"
)

// TestContext holds state between steps
type TestContext struct {
	store       *graph.Store
	graphPath   string
	lastErr     error
	lastResults []graph.RecallResult
	lastCount   int
}

func splitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ",") {
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Graph setup and mutation steps

func (tc *TestContext) emptyGraph() error {
	dir, err := os.MkdirTemp("", "taproot-acceptance-*")
	if err != nil {
		return err
	}
	tc.store = graph.NewStore()
	tc.graphPath = filepath.Join(dir, "memory.json")
	tc.lastErr = nil
	tc.lastResults = nil
	tc.lastCount = 0
	return nil
}

func (tc *TestContext) remember(content, tags, id string) error {
	return tc.store.AddNode(id, content, splitTags(tags))
}

func (tc *TestContext) tryRemember(content, tags, id string) error {
	tc.lastErr = tc.store.AddNode(id, content, splitTags(tags))
	return nil
}

func (tc *TestContext) connect(fromID, toID, connType string) error {
	return tc.store.AddConnection(fromID, toID, connType)
}

func (tc *TestContext) tryConnect(fromID, toID, connType string) error {
	tc.lastErr = tc.store.AddConnection(fromID, toID, connType)
	return nil
}

func (tc *TestContext) forgetByPattern(pattern string) error {
	tc.lastCount = tc.store.ForgetByPatternOrTags(pattern, nil)
	return nil
}

func (tc *TestContext) forgetByTags(tags string) error {
	tc.lastCount = tc.store.ForgetByPatternOrTags("", splitTags(tags))
	return nil
}

func (tc *TestContext) disconnect(fromID, toID string) error {
	tc.lastCount = tc.store.Disconnect(fromID, toID, "")
	return nil
}

func (tc *TestContext) disconnectTyped(fromID, toID, connType string) error {
	tc.lastCount = tc.store.Disconnect(fromID, toID, connType)
	return nil
}

// Recall steps

func (tc *TestContext) recall(tags string) error {
	tc.lastResults = tc.store.Recall(splitTags(tags))
	return nil
}

func (tc *TestContext) checkRecallCount(count int) error {
	if len(tc.lastResults) != count {
		return fmt.Errorf("expected %d recall results, got %d", count, len(tc.lastResults))
	}
	return nil
}

func (tc *TestContext) checkRecallResult(position int, id, kind string) error {
	if position < 1 || position > len(tc.lastResults) {
		return fmt.Errorf("no result at position %d (have %d)", position, len(tc.lastResults))
	}
	r := tc.lastResults[position-1]
	if r.Node.ID != id {
		return fmt.Errorf("result %d: expected node %q, got %q", position, id, r.Node.ID)
	}
	if string(r.Kind) != kind {
		return fmt.Errorf("result %d: expected match kind %q, got %q", position, kind, r.Kind)
	}
	return nil
}

func (tc *TestContext) checkRecallEvidence(position int, connType, matchedID string) error {
	if position < 1 || position > len(tc.lastResults) {
		return fmt.Errorf("no result at position %d (have %d)", position, len(tc.lastResults))
	}
	r := tc.lastResults[position-1]
	for _, ev := range r.Evidence {
		if ev.ConnType == connType && ev.MatchedID == matchedID {
			return nil
		}
	}
	return fmt.Errorf("result %d: no evidence (%s -> %s) in %+v", position, connType, matchedID, r.Evidence)
}

// Inspection steps

func (tc *TestContext) checkGraphShape(nodes, connections int) error {
	if tc.store.Size() != nodes {
		return fmt.Errorf("expected %d nodes, got %d", nodes, tc.store.Size())
	}
	if got := len(tc.store.ListConnections()); got != connections {
		return fmt.Errorf("expected %d connections, got %d", connections, got)
	}
	return nil
}

func (tc *TestContext) checkTags(expected string) error {
	got := tc.store.ListTags()
	want := splitTags(expected)
	if len(got) != len(want) {
		return fmt.Errorf("expected tags %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("expected tags %v, got %v", want, got)
		}
	}
	return nil
}

func (tc *TestContext) checkForgotten(count int) error {
	if tc.lastCount != count {
		return fmt.Errorf("expected %d forgotten, got %d", count, tc.lastCount)
	}
	return nil
}

func (tc *TestContext) checkDisconnected(count int) error {
	if tc.lastCount != count {
		return fmt.Errorf("expected %d removed, got %d", count, tc.lastCount)
	}
	return nil
}

func (tc *TestContext) checkDuplicateIDError() error {
	var dup *graph.DuplicateIDError
	if !errors.As(tc.lastErr, &dup) {
		return fmt.Errorf("expected duplicate id error, got %v", tc.lastErr)
	}
	return nil
}

func (tc *TestContext) checkDanglingReferenceError() error {
	var dangling *graph.DanglingReferenceError
	if !errors.As(tc.lastErr, &dangling) {
		return fmt.Errorf("expected dangling reference error, got %v", tc.lastErr)
	}
	return nil
}

// Persistence steps

func (tc *TestContext) saveGraph() error {
	return persist.Save(tc.store, tc.graphPath)
}

func (tc *TestContext) reloadGraph() error {
	store, err := persist.Load(tc.graphPath)
	if err != nil {
		return err
	}
	tc.store = store
	return nil
}

func (tc *TestContext) noGraphFile() error {
	if err := os.Remove(tc.graphPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (tc *TestContext) graphFileContains(content string) error {
	return os.WriteFile(tc.graphPath, []byte(content), 0600)
}

func (tc *TestContext) graphFileContainsDoc(doc *godog.DocString) error {
	return os.WriteFile(tc.graphPath, []byte(doc.Content), 0600)
}

func (tc *TestContext) checkMalformedLoad() error {
	_, err := persist.Load(tc.graphPath)
	var malformed *persist.MalformedDocumentError
	if !errors.As(err, &malformed) {
		return fmt.Errorf("expected malformed document error, got %v", err)
	}
	return nil
}

func (tc *TestContext) checkEmptyLoad() error {
	store, err := persist.Load(tc.graphPath)
	if err != nil {
		return err
	}
	if store.Size() != 0 || len(store.ListConnections()) != 0 {
		return fmt.Errorf("expected empty graph, got %d nodes, %d connections",
			store.Size(), len(store.ListConnections()))
	}
	return nil
}
