package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage archived runs",
	Long: `List, inspect, and delete archived analysis runs.

A run reference is an exact run id, a unique id prefix, or a session
name (which resolves to that session's most recent run).

Examples:
  heartwood runs list
  heartwood runs list --session crypt-run-07
  heartwood runs show ab12cd34
  heartwood runs delete ab12cd34
  heartwood runs prune --keep 5`,
	RunE: func(cmd *cobra.Command, args []string) error { return cmd.Help() },
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		session, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")
		return runRunsList(session, limit)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show one archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunsShow(args[0])
	},
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <run>",
	Short: "Delete an archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRunsDelete(args[0])
	},
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old runs, keeping the newest per session",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetInt("keep")
		return runRunsPrune(keep)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show archive statistics",
	Long: `Show archive statistics: where runs live, how many there are, and
how much disk they take.

Examples:
  heartwood status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func init() {
	runsListCmd.Flags().String("session", "", "Only list runs for this session")
	runsListCmd.Flags().Int("limit", 20, "Maximum runs to list (0 for all)")
	runsPruneCmd.Flags().Int("keep", 3, "Runs to keep per session")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsDeleteCmd)
	runsCmd.AddCommand(runsPruneCmd)
}

// openStore opens the run archive at the configured data directory.
func openStore() (*store.Store, error) {
	cfg, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run archive: %w", err)
	}
	return st, nil
}

// resolveRun resolves a run reference or fails with a hint.
func resolveRun(ctx context.Context, st *store.Store, ref string) (*store.Run, error) {
	run, err := st.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no run matches %q (try 'heartwood runs list')", ref)
	}
	return run, nil
}

func runRunsList(session string, limit int) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListRuns(context.Background(), session, limit)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No runs archived yet. Run 'heartwood analyze <log>' first.")
		return nil
	}

	fmt.Printf("%-18s %-20s %6s %7s %11s  %s\n", "ID", "SESSION", "NODES", "ROUNDS", "UNABSORBED", "CREATED")
	for _, info := range infos {
		fmt.Printf("%-18s %-20s %6d %7d %11d  %s\n",
			info.ID, info.Session, info.Nodes, info.Rounds, info.Unabsorbed,
			info.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\n%d run(s)\n", len(infos))
	return nil
}

func runRunsShow(ref string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := resolveRun(context.Background(), st, ref)
	if err != nil {
		return err
	}

	info := run.Info
	fmt.Printf("Run %s\n", info.ID)
	fmt.Printf("  Session: %s\n", info.Session)
	fmt.Printf("  Profile: %s\n", info.Profile)
	fmt.Printf("  Kernel: %s\n", info.KernelVersion)
	fmt.Printf("  Params Hash: %s\n", info.ParamsHash)
	fmt.Printf("  Lines: %d\n", info.Lines)
	fmt.Printf("  Nodes: %d (%d unclaimed)\n", info.Nodes, info.Nodes-claimedCount(run.Nodes))
	fmt.Printf("  Context Edges: %d\n", info.Edges)
	fmt.Printf("  Unabsorbed: %d\n", info.Unabsorbed)
	fmt.Printf("  Traces: %d\n", len(run.Traces))
	fmt.Printf("  Created: %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(run.Metrics) > 0 {
		fmt.Println("\n  Rounds:")
		for i, m := range run.Metrics {
			fmt.Printf("    %d: %d nodes, %d pairs, %d absorptions\n", i+1, m.Nodes, m.Pairs, m.Absorptions)
		}
	}
	return nil
}

func runRunsDelete(ref string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	run, err := resolveRun(ctx, st, ref)
	if err != nil {
		return err
	}
	if err := st.DeleteRun(ctx, run.Info.ID); err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	fmt.Printf("✅ Deleted run %s (%s)\n", run.Info.ID, run.Info.Session)
	return nil
}

func runRunsPrune(keep int) error {
	if keep < 1 {
		return fmt.Errorf("--keep must be at least 1")
	}
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	deleted, err := st.Prune(context.Background(), keep)
	if err != nil {
		return fmt.Errorf("failed to prune runs: %w", err)
	}
	if len(deleted) == 0 {
		fmt.Printf("✅ Nothing to prune (keeping up to %d run(s) per session)\n", keep)
		return nil
	}
	for _, id := range deleted {
		fmt.Printf("  deleted %s\n", id)
	}
	fmt.Printf("✅ Pruned %d run(s)\n", len(deleted))
	return nil
}

func runStatus() error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		return err
	}

	fmt.Printf("Heartwood Archive Status:\n")
	fmt.Printf("  Data Directory: %s\n", dataDir)

	if _, err := os.Stat(dataDir); err != nil {
		fmt.Printf("  Archived Runs: 0 (archive not created yet)\n")
		fmt.Printf("  Sessions Directory: %s\n", cfg.Sessions.Resolve())
		fmt.Printf("  Default Profile: %s\n", cfg.Analyze.Profile)
		return nil
	}

	st, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer st.Close()

	count, err := st.Count(context.Background())
	if err != nil {
		return err
	}
	size, err := st.Size()
	if err != nil {
		return err
	}

	fmt.Printf("  Archived Runs: %d\n", count)
	fmt.Printf("  Archive Size: %s\n", size)
	fmt.Printf("  Sessions Directory: %s\n", cfg.Sessions.Resolve())
	fmt.Printf("  Default Profile: %s\n", cfg.Analyze.Profile)
	return nil
}
