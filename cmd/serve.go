package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/mcpserver"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Start the MCP server",
	Long: `Start the MCP server using stdio transport.

The server communicates via JSON-RPC over stdin/stdout and is designed
to be connected to by an MCP client such as Claude Code, Cursor, etc.
It exposes analyze_session, list_runs, get_run, audit_run, and
search_lines over the local run archive.

Examples:
  heartwood serve
  heartwood mcp`,
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("heartwood %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func runServe() error {
	fmt.Fprintln(os.Stderr, "🌳 Heartwood MCP - causal hierarchy extraction")
	fmt.Fprintln(os.Stderr, "Starting MCP server (stdio transport)...")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "This server communicates via JSON-RPC over stdin/stdout.")
	fmt.Fprintln(os.Stderr, "It is not an interactive CLI — connect an MCP client (Claude Code, Cursor, etc.).")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop. Run 'heartwood help' for available commands.")
	fmt.Fprintln(os.Stderr, "")

	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		return err
	}
	st, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer st.Close()

	// Stdout is the transport, logs go to stderr.
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	return mcpserver.New(st, dataDir, Version, log).Serve()
}
