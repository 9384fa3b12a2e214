package cmd

import (
	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "taproot",
	Short: "Taproot - graph-shaped long-term memory",
	Long:  "Local-first graph memory for AI tools via Model Context Protocol.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the taproot command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// serve, version, status (defined in serve.go)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)

	// remember, connect (defined in remember.go)
	rootCmd.AddCommand(rememberCmd)
	rootCmd.AddCommand(connectCmd)

	// recall, tags, list, connections (defined in recall.go)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(connectionsCmd)

	// forget, disconnect (defined in forget.go)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(disconnectCmd)

	// import, export (defined in import_export.go)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	// doctor (defined in doctor.go)
	rootCmd.AddCommand(doctorCmd)
}
