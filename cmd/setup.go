package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write config and register the MCP server",
	Long: `Set up Heartwood: write a default config file and register the MCP
server with installed clients.

Without arguments, auto-detects installed clients and configures them.
Specify a client to configure only that one.

Examples:
  heartwood setup              # auto-detect and configure all clients
  heartwood setup config       # write a default heartwood.yaml
  heartwood setup cursor       # configure Cursor only
  heartwood setup windsurf     # configure Windsurf only
  heartwood setup claude-code  # configure Claude Code only`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup()
	},
}

func init() {
	setupCmd.AddCommand(&cobra.Command{
		Use:   "config",
		Short: "Write a default heartwood.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupConfig()
		},
	})

	setupCmd.AddCommand(&cobra.Command{
		Use:   "cursor",
		Short: "Configure Heartwood for Cursor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupCursor()
		},
	})

	setupCmd.AddCommand(&cobra.Command{
		Use:   "windsurf",
		Short: "Configure Heartwood for Windsurf",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupWindsurf()
		},
	})

	setupCmd.AddCommand(&cobra.Command{
		Use:   "claude-code",
		Short: "Configure Heartwood for Claude Code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetupClaudeCode()
		},
	})
}

// runSetup auto-detects and configures MCP clients
func runSetup() error {
	fmt.Println("🔍 Auto-detecting clients for Heartwood setup...")
	fmt.Println()

	home, _ := os.UserHomeDir()
	detected := 0

	// Check for Cursor
	cursorDir := filepath.Join(home, ".cursor")
	if _, err := os.Stat(cursorDir); err == nil {
		fmt.Println("👉 Detected Cursor")
		if err := runSetupCursor(); err != nil {
			fmt.Printf("   ❌ Cursor setup failed: %v\n", err)
		} else {
			detected++
		}
	}

	// Check for Windsurf
	windsurfDir := filepath.Join(home, ".windsurf")
	if _, err := os.Stat(windsurfDir); err == nil {
		fmt.Println("👉 Detected Windsurf")
		if err := runSetupWindsurf(); err != nil {
			fmt.Printf("   ❌ Windsurf setup failed: %v\n", err)
		} else {
			detected++
		}
	}

	// Check for Claude Code
	if _, err := exec.LookPath("claude"); err == nil {
		fmt.Println("👉 Detected Claude Code")
		if err := runSetupClaudeCode(); err != nil {
			fmt.Printf("   ❌ Claude Code setup failed: %v\n", err)
		} else {
			detected++
		}
	}

	if detected == 0 {
		fmt.Println("⚠️  No clients automatically detected.")
		fmt.Println("   You can still manually setup using:")
		fmt.Println("   heartwood setup cursor")
		fmt.Println("   heartwood setup windsurf")
		fmt.Println("   heartwood setup claude-code")
	} else {
		fmt.Printf("\n✅ Successfully configured %d client(s)!\n", detected)
	}

	return nil
}

const configTemplate = `# Heartwood configuration. Every key is optional; built-in defaults
# apply when a key (or this whole file) is absent.

data:
  # Run archive and user profiles. Empty means ~/.heartwood.
  # HEARTWOOD_DATA_DIR overrides this.
  dir: ""

sessions:
  # Directory watched and imported for session logs.
  # HEARTWOOD_SESSIONS_DIR overrides this.
  dir: ./sessions

analyze:
  # Tuning profile: a built-in name, a user profile, or a YAML file path.
  profile: default
  # Log format: auto, jsonl, discord.
  format: auto
  # Actors YAML file. Empty infers actors from line authors.
  actors_file: ""
  # Archive candidate traces with every run (larger archive, full audits).
  save_traces: false

watch:
  # Settle window before a changed log is re-analyzed.
  debounce_ms: 500
  # Commit written reports when the sessions directory is a git repository.
  commit: false
`

// runSetupConfig writes a commented default config file
func runSetupConfig() error {
	path := config.DefaultFile
	if env := os.Getenv("HEARTWOOD_CONFIG"); env != "" {
		path = env
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, remove it first to regenerate", path)
	}

	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("✅ Wrote %s\n", path)
	fmt.Println()
	fmt.Println("Edit it to point sessions.dir at your session logs, then run:")
	fmt.Println("  heartwood analyze <log>")
	return nil
}

// runSetupCursor auto-configures Cursor MCP settings
func runSetupCursor() error {
	fmt.Println("🔧 Setting up Heartwood for Cursor...")
	fmt.Println()

	// 1. Find heartwood binary path
	binPath, err := exec.LookPath("heartwood")
	if err != nil {
		return fmt.Errorf("heartwood binary not found in PATH. Please install via Homebrew or add to PATH")
	}
	fmt.Printf("✓ Found heartwood at: %s\n", binPath)

	// 2. Locate Cursor config directory
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	cursorDir := filepath.Join(home, ".cursor")
	configPath := filepath.Join(cursorDir, "mcp.json")

	// 3. Create .cursor directory if it doesn't exist
	if _, err := os.Stat(cursorDir); os.IsNotExist(err) {
		fmt.Printf("✓ Creating Cursor config directory: %s\n", cursorDir)
		if err := os.MkdirAll(cursorDir, 0755); err != nil {
			return fmt.Errorf("failed to create .cursor directory: %w", err)
		}
	}

	// 4. Add or update the heartwood server
	if err := updateMCPConfig(configPath, "mcpServers", binPath); err != nil {
		return err
	}

	fmt.Printf("✓ Updated mcp.json: %s\n", configPath)
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("✅ Heartwood is now configured for Cursor!")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Restart Cursor")
	fmt.Println("  2. Ask the assistant to analyze a session log")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  heartwood status   - View archive statistics")
	fmt.Println("  heartwood help     - See all commands")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}

// runSetupWindsurf auto-configures Windsurf MCP settings
func runSetupWindsurf() error {
	fmt.Println("🔧 Setting up Heartwood for Windsurf...")
	fmt.Println()

	binPath, err := exec.LookPath("heartwood")
	if err != nil {
		return fmt.Errorf("heartwood binary not found in PATH. Please install via Homebrew or add to PATH")
	}
	fmt.Printf("✓ Found heartwood at: %s\n", binPath)

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}

	windsurfDir := filepath.Join(home, ".windsurf")
	configPath := filepath.Join(windsurfDir, "mcp_config.json")

	if _, err := os.Stat(windsurfDir); os.IsNotExist(err) {
		fmt.Printf("✓ Creating Windsurf config directory: %s\n", windsurfDir)
		if err := os.MkdirAll(windsurfDir, 0755); err != nil {
			return fmt.Errorf("failed to create .windsurf directory: %w", err)
		}
	}

	if err := updateMCPConfig(configPath, "mcpServers", binPath); err != nil {
		return err
	}

	fmt.Printf("✓ Updated mcp_config.json: %s\n", configPath)
	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("✅ Heartwood is now configured for Windsurf!")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Restart Windsurf")
	fmt.Println("  2. Ask the assistant to analyze a session log")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}

// updateMCPConfig reads a client's MCP config JSON (or starts a fresh one)
// and registers the heartwood server under the given key.
func updateMCPConfig(configPath, serversKey, binPath string) error {
	var cfg map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse existing %s: %w", filepath.Base(configPath), err)
		}
		fmt.Printf("✓ Found existing %s\n", filepath.Base(configPath))
	} else {
		cfg = make(map[string]interface{})
		fmt.Printf("✓ Creating new %s\n", filepath.Base(configPath))
	}

	if cfg[serversKey] == nil {
		cfg[serversKey] = make(map[string]interface{})
	}
	servers, ok := cfg[serversKey].(map[string]interface{})
	if !ok {
		return fmt.Errorf("unexpected %s shape in %s", serversKey, configPath)
	}
	servers["heartwood"] = map[string]interface{}{
		"command": binPath,
		"args":    []string{"serve"},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(configPath), err)
	}
	return nil
}

// runSetupClaudeCode registers Heartwood as an MCP server in Claude Code
func runSetupClaudeCode() error {
	fmt.Println("🔧 Setting up Heartwood for Claude Code...")
	fmt.Println()

	// 1. Find claude binary
	claudePath, err := exec.LookPath("claude")
	if err != nil {
		return fmt.Errorf("claude binary not found in PATH. Install Claude Code first")
	}
	fmt.Printf("✓ Found claude at: %s\n", claudePath)

	// 2. Find heartwood binary path
	binPath, err := exec.LookPath("heartwood")
	if err != nil {
		return fmt.Errorf("heartwood binary not found in PATH. Please install via Homebrew or add to PATH")
	}
	fmt.Printf("✓ Found heartwood at: %s\n", binPath)

	// 3. Check if heartwood is already registered
	fmt.Print("✓ Checking existing MCP registrations... ")
	listCmd := exec.Command(claudePath, "mcp", "list")
	listOutput, err := listCmd.CombinedOutput()
	if err != nil {
		fmt.Println("⚠️  Could not list MCP servers (continuing)")
	} else if strings.Contains(string(listOutput), "heartwood") {
		fmt.Println("already registered")
		fmt.Println()
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		fmt.Println("✅ Heartwood is already configured for Claude Code!")
		fmt.Println()
		fmt.Println("To re-register, first remove:")
		fmt.Println("  claude mcp remove heartwood")
		fmt.Println("Then run:")
		fmt.Println("  heartwood setup claude-code")
		fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
		return nil
	} else {
		fmt.Println("not yet registered")
	}

	// 4. Determine HEARTWOOD_DATA_DIR
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}
	dataDir := filepath.Join(home, ".heartwood")

	// 5. Register the heartwood MCP server with Claude Code
	fmt.Print("✓ Registering heartwood MCP server... ")
	addCmd := exec.Command(claudePath, "mcp", "add",
		"-e", "HEARTWOOD_DATA_DIR="+dataDir,
		"--scope", "user",
		"heartwood",
		"--",
		binPath, "serve",
	)
	addOutput, err := addCmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to register MCP server: %w\nOutput: %s", err, string(addOutput))
	}
	fmt.Println("done")

	// 6. Verify registration
	fmt.Print("✓ Verifying registration... ")
	verifyCmd := exec.Command(claudePath, "mcp", "list")
	verifyOutput, err := verifyCmd.CombinedOutput()
	if err != nil {
		fmt.Println("⚠️  Could not verify (may still be registered)")
	} else if strings.Contains(string(verifyOutput), "heartwood") {
		fmt.Println("confirmed")
	} else {
		return fmt.Errorf("heartwood not found in MCP list after registration")
	}

	fmt.Println()
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("✅ Heartwood is now configured for Claude Code!")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Start a new Claude Code session")
	fmt.Println("  2. MCP server will auto-start on first tool use")
	fmt.Println("  3. Use 'analyze_session' to analyze a session log")
	fmt.Println("  4. Use 'audit_run' to see what was left unresolved")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  heartwood status   - View archive statistics")
	fmt.Println("  heartwood help     - See all commands")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	return nil
}
