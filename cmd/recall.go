package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/taprootHQ/taproot/internal/graph"
)

var recallCmd = &cobra.Command{
	Use:   "recall <tag> [tag...]",
	Short: "Recall memory nodes by tags",
	Long: `Recall memory nodes whose tags match, plus nodes one connection hop
away from a match. Related nodes are shown with the connection that
pulled them in.

Examples:
  taproot recall food
  taproot recall food geo`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error { return runRecall(args) },
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List all tags in use",
	RunE:  func(cmd *cobra.Command, args []string) error { return runTags() },
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all memory nodes",
	RunE:  func(cmd *cobra.Command, args []string) error { return runList() },
}

var connectionsCmd = &cobra.Command{
	Use:   "connections",
	Short: "List all connections",
	RunE:  func(cmd *cobra.Command, args []string) error { return runConnections() },
}

func runRecall(tags []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}

	results := store.Recall(tags)
	if len(results) == 0 {
		fmt.Println("No matching memories.")
		return nil
	}

	for _, r := range results {
		switch r.Kind {
		case graph.MatchDirect:
			fmt.Printf("● [%s] %s", r.Node.ID, r.Node.Content)
		case graph.MatchRelated:
			via := make([]string, len(r.Evidence))
			for i, ev := range r.Evidence {
				via[i] = fmt.Sprintf("%s %s", ev.ConnType, ev.MatchedID)
			}
			fmt.Printf("○ [%s] %s (via %s)", r.Node.ID, r.Node.Content, strings.Join(via, ", "))
		}
		if len(r.Node.Tags) > 0 {
			fmt.Printf("  #%s", strings.Join(r.Node.Tags, " #"))
		}
		fmt.Println()
	}
	return nil
}

func runTags() error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	tags := store.ListTags()
	if len(tags) == 0 {
		fmt.Println("No tags yet.")
		return nil
	}
	for _, t := range tags {
		fmt.Println(t)
	}
	return nil
}

func runList() error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	nodes := store.Nodes()
	if len(nodes) == 0 {
		fmt.Println("No memories yet.")
		return nil
	}
	for _, n := range nodes {
		fmt.Printf("[%s] %s", n.ID, n.Content)
		if len(n.Tags) > 0 {
			fmt.Printf("  #%s", strings.Join(n.Tags, " #"))
		}
		fmt.Println()
	}
	return nil
}

func runConnections() error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	conns := store.ListConnections()
	if len(conns) == 0 {
		fmt.Println("No connections yet.")
		return nil
	}
	for _, c := range conns {
		fmt.Printf("%s -> %s (%s)\n", c.FromID, c.ToID, c.Type)
	}
	return nil
}
