package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/taprootHQ/taproot/internal/persist"
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Merge another graph document into memory",
	Long: `Merge nodes and connections from another Taproot graph document.

Nodes whose ids already exist are skipped. Connections referencing a node
that exists in neither graph are skipped, as are exact duplicates.

Examples:
  taproot import ~/backups/memory.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runImport(args[0]) },
}

var exportCmd = &cobra.Command{
	Use:   "export [format] [output]",
	Short: "Export the memory graph",
	Long: `Export the memory graph to a file.

Supported formats:
  json      - the native graph document (default)
  markdown  - human-readable listing

If no output path is given, a default filename is generated.

Examples:
  taproot export
  taproot export json graph.json
  taproot export markdown graph.md`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, output := "json", ""
		if len(args) >= 1 {
			format = args[0]
		}
		if len(args) >= 2 {
			output = args[1]
		}
		return runExport(format, output)
	},
}

func runImport(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read import file: %w", err)
	}
	incoming, err := persist.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}

	store, storePath, err := openStore()
	if err != nil {
		return err
	}

	nodesAdded, nodesSkipped := 0, 0
	for _, n := range incoming.Nodes() {
		if err := store.AddNode(n.ID, n.Content, n.Tags); err != nil {
			nodesSkipped++
			continue
		}
		nodesAdded++
	}

	have := make(map[string]struct{})
	for _, c := range store.ListConnections() {
		have[c.FromID+"\x00"+c.ToID+"\x00"+c.Type] = struct{}{}
	}
	connsAdded, connsSkipped := 0, 0
	for _, c := range incoming.ListConnections() {
		key := c.FromID + "\x00" + c.ToID + "\x00" + c.Type
		if _, dup := have[key]; dup {
			connsSkipped++
			continue
		}
		if err := store.AddConnection(c.FromID, c.ToID, c.Type); err != nil {
			connsSkipped++
			continue
		}
		have[key] = struct{}{}
		connsAdded++
	}

	if err := saveStore(store, storePath); err != nil {
		return err
	}

	fmt.Printf("\n✅ Import Complete!\n")
	fmt.Printf("   Nodes added: %d (skipped %d)\n", nodesAdded, nodesSkipped)
	fmt.Printf("   Connections added: %d (skipped %d)\n", connsAdded, connsSkipped)
	return nil
}

// runExport exports the graph to a file
func runExport(format, output string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	if store.Size() == 0 {
		fmt.Println("No memories to export.")
		return nil
	}

	var data []byte

	switch format {
	case "json":
		data, err = persist.Marshal(store)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if output == "" {
			output = fmt.Sprintf("taproot-export-%s.json", time.Now().Format("2006-01-02"))
		}

	case "markdown":
		var sb strings.Builder
		sb.WriteString("# Taproot Memory Graph\n\n")
		sb.WriteString(fmt.Sprintf("Exported %s\n\n## Nodes\n\n", time.Now().Format(time.RFC3339)))
		for _, n := range store.Nodes() {
			sb.WriteString(fmt.Sprintf("- **%s**: %s", n.ID, n.Content))
			if len(n.Tags) > 0 {
				sb.WriteString(fmt.Sprintf(" _( %s )_", strings.Join(n.Tags, ", ")))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n## Connections\n\n")
		for _, c := range store.ListConnections() {
			sb.WriteString(fmt.Sprintf("- %s → %s (%s)\n", c.FromID, c.ToID, c.Type))
		}
		data = []byte(sb.String())
		if output == "" {
			output = fmt.Sprintf("taproot-export-%s.md", time.Now().Format("2006-01-02"))
		}

	default:
		return fmt.Errorf("unknown format: %s (supported: json, markdown)", format)
	}

	if err := os.WriteFile(output, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	fmt.Printf("✅ Exported %d node(s) and %d connection(s) to %s\n",
		store.Size(), len(store.ListConnections()), output)
	return nil
}
