package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Forget memory nodes by content pattern or tags",
	Long: `Forget every node whose content contains the pattern (case-insensitive)
or whose tags intersect the given tags. Connections touching a forgotten
node are removed with it.

At least one of --pattern or --tags is required.

Examples:
  taproot forget --pattern pizza
  taproot forget --tags "food,geo"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, _ := cmd.Flags().GetString("pattern")
		tagsStr, _ := cmd.Flags().GetString("tags")
		return runForget(pattern, tagsStr)
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect <from_id> <to_id>",
	Short: "Remove connections between two nodes",
	Long: `Remove every connection from the first node to the second, optionally
restricted to one type. Direction matters: the reverse pair is untouched.

Examples:
  taproot disconnect 0 1
  taproot disconnect 0 1 --type lives_near`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		connType, _ := cmd.Flags().GetString("type")
		return runDisconnect(args[0], args[1], connType)
	},
}

func init() {
	forgetCmd.Flags().String("pattern", "", "Case-insensitive content substring")
	forgetCmd.Flags().String("tags", "", "Comma-separated tags")
	disconnectCmd.Flags().String("type", "", "Only remove connections of this type")
}

func runForget(pattern, tagsStr string) error {
	tags := splitTags(tagsStr)
	if pattern == "" && len(tags) == 0 {
		return fmt.Errorf("at least one of --pattern or --tags is required")
	}

	store, path, err := openStore()
	if err != nil {
		return err
	}
	removed := store.ForgetByPatternOrTags(pattern, tags)
	if removed == 0 {
		fmt.Println("Nothing matched; graph unchanged.")
		return nil
	}
	if err := saveStore(store, path); err != nil {
		return err
	}
	fmt.Printf("✅ Forgot %d node(s).\n", removed)
	return nil
}

func runDisconnect(fromID, toID, connType string) error {
	store, path, err := openStore()
	if err != nil {
		return err
	}
	removed := store.Disconnect(fromID, toID, connType)
	if removed == 0 {
		fmt.Println("No matching connections; graph unchanged.")
		return nil
	}
	if err := saveStore(store, path); err != nil {
		return err
	}
	fmt.Printf("✅ Removed %d connection(s).\n", removed)
	return nil
}
