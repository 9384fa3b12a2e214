package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/taprootHQ/taproot/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Start MCP server (default)",
	Long: `Start the MCP server using stdio transport.

The server communicates via JSON-RPC over stdin/stdout and is designed
to be connected to by an MCP client such as Claude Code, Cursor, etc.

Examples:
  taproot serve
  taproot mcp`,
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taproot %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show memory graph statistics",
	Long: `Show current graph statistics including node and connection counts,
tags in use, and the graph file location.

Examples:
  taproot status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func runServe() error {
	fmt.Fprintln(os.Stderr, "🌱 Taproot - Graph Memory Layer")
	fmt.Fprintln(os.Stderr, "Starting MCP server (stdio transport)...")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "This server communicates via JSON-RPC over stdin/stdout.")
	fmt.Fprintln(os.Stderr, "It is not an interactive CLI — connect an MCP client (Claude Code, Cursor, etc.).")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop. Run 'taproot help' for available commands.")
	fmt.Fprintln(os.Stderr, "")

	mcp.Version = Version

	server, err := mcp.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Start()
}

func runStatus() error {
	server, err := mcp.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	stats := server.GetGraphStats()
	fmt.Printf("Taproot Graph Status:\n")
	fmt.Printf("  Nodes: %d\n", stats.Nodes)
	fmt.Printf("  Connections: %d\n", stats.Connections)
	fmt.Printf("  Tags: %d\n", stats.Tags)
	fmt.Printf("  File Size: %s\n", stats.FileSize)
	fmt.Printf("  Path: %s\n", stats.Path)
	return nil
}
