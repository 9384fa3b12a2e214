package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/taprootHQ/taproot/internal/graph"
	"github.com/taprootHQ/taproot/internal/persist"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common graph issues",
	Long: `Diagnose common setup and graph-file issues and optionally fix them.

Checks the data directory, the graph file's structure, and referential
integrity: connections whose endpoints no longer exist (possible after a
corrupted or hand-edited file, since loading does not re-validate).

Examples:
  taproot doctor        # check for issues
  taproot doctor --fix  # check and prune dangling connections`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

// runDoctor diagnoses data dir, graph file, and graph integrity issues
func runDoctor(fix bool) error {
	fmt.Println("🔍 Taproot Doctor - Diagnosing Setup")
	if fix {
		fmt.Println("🛠️  Auto-fix enabled")
	}
	fmt.Println()

	issues := 0
	fixed := 0

	// 1. Data directory resolvable and writable
	fmt.Print("✓ Checking data directory... ")
	path, err := persist.DefaultPath()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		return fmt.Errorf("doctor found %d issue(s)", issues+1)
	}
	probe := filepath.Join(filepath.Dir(path), ".doctor-probe")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: data directory is not writable: %v\n", err)
		issues++
	} else {
		os.Remove(probe)
		fmt.Printf("✅ OK (%s)\n", filepath.Dir(path))
	}

	// 2. Graph file parses
	fmt.Print("✓ Checking graph file... ")
	store, err := persist.Load(path)
	var malformed *persist.MalformedDocumentError
	switch {
	case errors.As(err, &malformed):
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		fmt.Println("  Fix: restore from an export or remove the file to start fresh")
		issues++
		return reportDoctor(issues, fixed)
	case err != nil:
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
		return reportDoctor(issues, fixed)
	case store.Size() == 0 && len(store.ListConnections()) == 0:
		fmt.Println("✅ OK (empty graph)")
	default:
		fmt.Printf("✅ OK (%d nodes, %d connections)\n", store.Size(), len(store.ListConnections()))
	}

	// 3. Referential integrity of loaded connections
	fmt.Print("✓ Checking connection integrity... ")
	dangling := 0
	for _, c := range store.ListConnections() {
		if !store.Contains(c.FromID) || !store.Contains(c.ToID) {
			dangling++
		}
	}
	if dangling == 0 {
		fmt.Println("✅ OK")
	} else if fix {
		// Stage the dangling set before mutating: Disconnect rebuilds the
		// slice being ranged otherwise.
		var doomed []graph.Connection
		for _, c := range store.ListConnections() {
			if !store.Contains(c.FromID) || !store.Contains(c.ToID) {
				doomed = append(doomed, c)
			}
		}
		pruned := 0
		for _, c := range doomed {
			pruned += store.Disconnect(c.FromID, c.ToID, c.Type)
		}
		if err := persist.Save(store, path); err != nil {
			fmt.Printf("❌ FAILED: %v\n", err)
			issues++
		} else {
			fmt.Printf("✅ FIXED (pruned %d dangling connection(s))\n", pruned)
			fixed++
		}
	} else {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %d connection(s) reference missing nodes\n", dangling)
		fmt.Println("  Fix: run 'taproot doctor --fix' to prune them")
		issues++
	}

	return reportDoctor(issues, fixed)
}

func reportDoctor(issues, fixed int) error {
	fmt.Println()
	if issues == 0 {
		fmt.Println("✅ All checks passed.")
		return nil
	}
	if fixed > 0 {
		fmt.Printf("🛠️  Fixed %d issue(s).\n", fixed)
	}
	return fmt.Errorf("doctor found %d issue(s)", issues)
}
