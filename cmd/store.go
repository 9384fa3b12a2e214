package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/taprootHQ/taproot/internal/graph"
	"github.com/taprootHQ/taproot/internal/persist"
)

// openStore loads the memory graph from the default path. A malformed file
// degrades to an empty store with a warning rather than failing the command;
// a missing file is the normal first-run state.
func openStore() (*graph.Store, string, error) {
	path, err := persist.DefaultPath()
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve graph path: %w", err)
	}
	store, err := persist.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Could not load graph (%v), starting empty\n", err)
		store = graph.NewStore()
	}
	return store, path, nil
}

// saveStore flushes the graph back to disk after a mutating command.
func saveStore(store *graph.Store, path string) error {
	if err := persist.Save(store, path); err != nil {
		return fmt.Errorf("failed to save graph: %w", err)
	}
	return nil
}

// splitTags parses a comma-separated tag flag, trimming blanks.
func splitTags(tagsStr string) []string {
	var tags []string
	for _, t := range strings.Split(tagsStr, ",") {
		if s := strings.TrimSpace(t); s != "" {
			tags = append(tags, s)
		}
	}
	return tags
}
