package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rememberCmd = &cobra.Command{
	Use:   "remember <content>",
	Short: "Store a memory node",
	Long: `Store a memory node with optional tags.

Examples:
  taproot remember "likes pizza" --tags "food"
  taproot remember "lives in Rome" --tags "geo,home" --id rome`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tagsStr, _ := cmd.Flags().GetString("tags")
		id, _ := cmd.Flags().GetString("id")
		return runRemember(args[0], tagsStr, id)
	},
}

var connectCmd = &cobra.Command{
	Use:   "connect <from_id> <to_id> <type>",
	Short: "Connect two memory nodes",
	Long: `Create a directed, typed connection between two existing nodes.

Both nodes must already exist; connecting to a missing node fails and
leaves the graph unchanged.

Examples:
  taproot connect 0 1 lives_near`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConnect(args[0], args[1], args[2])
	},
}

func init() {
	rememberCmd.Flags().String("tags", "", "Comma-separated tags")
	rememberCmd.Flags().String("id", "", "Explicit node id (must be unique)")
}

func runRemember(content, tagsStr, id string) error {
	store, path, err := openStore()
	if err != nil {
		return err
	}
	if id == "" {
		id = store.NextID()
	}
	if err := store.AddNode(id, content, splitTags(tagsStr)); err != nil {
		return fmt.Errorf("remember failed: %w", err)
	}
	if err := saveStore(store, path); err != nil {
		return err
	}
	fmt.Printf("✅ Remembered as node %s.\n", id)
	return nil
}

func runConnect(fromID, toID, connType string) error {
	store, path, err := openStore()
	if err != nil {
		return err
	}
	if err := store.AddConnection(fromID, toID, connType); err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	if err := saveStore(store, path); err != nil {
		return err
	}
	fmt.Printf("✅ Connected %s -> %s (%s).\n", fromID, toID, connType)
	return nil
}
