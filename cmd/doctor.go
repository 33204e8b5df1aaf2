package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/git"
	"github.com/CanopyHQ/heartwood/internal/profile"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup issues",
	Long: `Diagnose common setup issues and optionally fix them.

Examples:
  heartwood doctor        # check for issues
  heartwood doctor --fix  # check and auto-fix issues`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

// runDoctor diagnoses common setup issues
func runDoctor(fix bool) error {
	fmt.Println("🔍 Heartwood Doctor - Diagnosing Setup")
	if fix {
		fmt.Println("🛠️  Auto-fix enabled")
	}
	fmt.Println()

	issues := 0
	warnings := 0
	fixed := 0

	// 1. Check if binary is in PATH
	fmt.Print("✓ Checking if heartwood is in PATH... ")
	path, err := exec.LookPath("heartwood")
	if err != nil {
		fmt.Println("⚠️  WARNING")
		fmt.Println("  heartwood binary not found in PATH")
		fmt.Println("  Fix: Add heartwood to your PATH or use the full path")
		warnings++
	} else {
		fmt.Printf("✅ OK (%s)\n", path)
	}

	// 2. Check configuration
	fmt.Print("✓ Checking configuration... ")
	cfg, err := config.LoadDefault()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		fmt.Println("  Fix: Run 'heartwood setup config' or repair the file by hand")
		issues++
		cfg = config.Default()
	} else if cfgFile := os.Getenv("HEARTWOOD_CONFIG"); cfgFile != "" {
		fmt.Printf("✅ OK (%s)\n", cfgFile)
	} else if _, err := os.Stat(config.DefaultFile); err == nil {
		fmt.Printf("✅ OK (%s)\n", config.DefaultFile)
	} else {
		fmt.Println("✅ OK (built-in defaults)")
	}

	// 3. Check data directory
	fmt.Print("✓ Checking data directory... ")
	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
	} else if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if fix {
			fmt.Print("🛠️  Creating... ")
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				fmt.Printf("❌ FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("✅ FIXED")
				fixed++
			}
		} else {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  Data directory does not exist: %s\n", dataDir)
			fmt.Println("  It will be created on first run")
			warnings++
		}
	} else {
		fmt.Printf("✅ OK (%s)\n", dataDir)
	}

	// 4. Check the run archive
	fmt.Print("✓ Checking run archive... ")
	dbPath := filepath.Join(dataDir, "runs.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("⚠️  WARNING")
		fmt.Printf("  Archive not found: %s\n", dbPath)
		fmt.Println("  It will be created on first analyze")
		warnings++
	} else if st, err := store.Open(dataDir); err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: Cannot open archive: %v\n", err)
		issues++
	} else {
		count, cerr := st.Count(context.Background())
		vec := st.VectorSearchAvailable()
		st.Close()
		if cerr != nil {
			fmt.Println("❌ FAILED")
			fmt.Printf("  Issue: Cannot query archive: %v\n", cerr)
			issues++
		} else if vec {
			fmt.Printf("✅ OK (%d run(s), vector index active)\n", count)
		} else {
			fmt.Printf("✅ OK (%d run(s), brute-force search fallback)\n", count)
		}
	}

	// 5. Check built-in profiles
	fmt.Print("✓ Checking tuning profiles... ")
	badProfiles := 0
	for _, name := range profile.Builtin() {
		if _, err := profile.Load(dataDir, name); err != nil {
			if badProfiles == 0 {
				fmt.Println("❌ FAILED")
			}
			fmt.Printf("  Issue: profile %s: %v\n", name, err)
			badProfiles++
		}
	}
	if badProfiles > 0 {
		issues++
	} else if entries, err := profile.List(dataDir); err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: %v\n", err)
		issues++
	} else {
		fmt.Printf("✅ OK (%d profile(s))\n", len(entries))
	}

	// 6. Check sessions directory
	fmt.Print("✓ Checking sessions directory... ")
	sessionsDir := cfg.Sessions.Resolve()
	if sessionsDir == "" {
		fmt.Println("⚠️  WARNING")
		fmt.Println("  No sessions directory configured")
		fmt.Println("  Set sessions.dir to use 'heartwood watch' without arguments")
		warnings++
	} else if _, err := os.Stat(sessionsDir); os.IsNotExist(err) {
		if fix {
			fmt.Print("🛠️  Creating... ")
			if err := os.MkdirAll(sessionsDir, 0755); err != nil {
				fmt.Printf("❌ FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("✅ FIXED")
				fixed++
			}
		} else {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  Sessions directory does not exist: %s\n", sessionsDir)
			warnings++
		}
	} else {
		fmt.Printf("✅ OK (%s)\n", sessionsDir)
	}

	// 7. Check git for artifact snapshots
	fmt.Print("✓ Checking git... ")
	if git.Available() {
		fmt.Println("✅ OK")
	} else {
		fmt.Println("⚠️  WARNING")
		fmt.Println("  git not found; --commit snapshots are disabled")
		warnings++
	}

	// 8. Check MCP configuration for Claude Code
	fmt.Print("✓ Checking Claude Code MCP configuration... ")
	if _, err := exec.LookPath("claude"); err != nil {
		fmt.Println("⚠️  SKIPPED (claude not in PATH)")
	} else {
		listCmd := exec.Command("claude", "mcp", "list")
		listOutput, listErr := listCmd.CombinedOutput()
		if listErr != nil {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  Could not check MCP list: %v\n", listErr)
			warnings++
		} else if strings.Contains(string(listOutput), "heartwood") {
			fmt.Println("✅ OK")
		} else {
			if fix {
				fmt.Print("🛠️  Setting up... ")
				if err := runSetupClaudeCode(); err != nil {
					fmt.Printf("❌ FAILED: %v\n", err)
					issues++
				} else {
					fmt.Println("✅ FIXED")
					fixed++
				}
			} else {
				fmt.Println("⚠️  WARNING")
				fmt.Println("  Heartwood not registered with Claude Code")
				fmt.Println("  Run 'heartwood setup claude-code' to configure")
				warnings++
			}
		}
	}

	// 9. Check MCP configuration for Cursor
	fmt.Print("✓ Checking Cursor MCP configuration... ")
	home, _ := os.UserHomeDir()
	cursorConfig := filepath.Join(home, ".cursor", "mcp.json")
	if _, err := os.Stat(cursorConfig); os.IsNotExist(err) {
		if fix {
			fmt.Print("🛠️  Setting up... ")
			if err := runSetupCursor(); err != nil {
				fmt.Printf("❌ FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("✅ FIXED")
				fixed++
			}
		} else {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  MCP config not found: %s\n", cursorConfig)
			fmt.Println("  Run 'heartwood setup cursor' to configure")
			warnings++
		}
	} else {
		fmt.Println("✅ OK")
	}

	// 10. Check for common environment issues
	fmt.Print("✓ Checking environment... ")
	if runtime.GOOS == "darwin" && runtime.GOARCH != "arm64" {
		fmt.Println("⚠️  WARNING (Running under Rosetta)")
		warnings++
	} else {
		fmt.Printf("✅ OK (%s/%s)\n", runtime.GOOS, runtime.GOARCH)
	}

	// Summary
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	if issues == 0 && warnings == 0 {
		fmt.Println("✅ All checks passed! Heartwood is ready to use.")
	} else {
		if fixed > 0 {
			fmt.Printf("🛠️  Auto-fixed %d issue(s)\n", fixed)
		}
		if issues > 0 {
			fmt.Printf("❌ Found %d critical issue(s)\n", issues)
		}
		if warnings > 0 {
			fmt.Printf("⚠️  Found %d warning(s)\n", warnings)
		}
		fmt.Println()
		fmt.Println("Run the suggested fixes above to resolve issues.")
	}
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if issues > 0 {
		return fmt.Errorf("found %d critical issue(s)", issues)
	}
	return nil
}
