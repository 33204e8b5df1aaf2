package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/git"
	"github.com/CanopyHQ/heartwood/internal/importer"
	"github.com/CanopyHQ/heartwood/internal/profile"
	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/CanopyHQ/heartwood/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a sessions directory and re-analyze on change",
	Long: `Watch a directory for session log changes and re-analyze each log
after it settles. Runs are archived like 'heartwood analyze --save'.

Without an argument the configured sessions directory is watched. Logs
are debounced so a burst of writes produces one analysis. Logs with the
--commit flag (or watch.commit in config) also get their report written
next to the log and committed when the directory is a git repository.

Examples:
  heartwood watch
  heartwood watch ./sessions --debounce 2000
  heartwood watch ./sessions --commit`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := ""
		if len(args) > 0 {
			dir = args[0]
		}
		debounceMS, _ := cmd.Flags().GetInt("debounce")
		profileName, _ := cmd.Flags().GetString("profile")
		commit, _ := cmd.Flags().GetBool("commit")
		return runWatch(dir, debounceMS, profileName, commit)
	},
}

func init() {
	watchCmd.Flags().Int("debounce", 0, "Settle window in milliseconds (default from config)")
	watchCmd.Flags().String("profile", "", "Tuning profile (default from config)")
	watchCmd.Flags().Bool("commit", false, "Commit reports when the directory is a git repository")
}

func runWatch(dir string, debounceMS int, profileName string, commit bool) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Sessions.Resolve()
	}
	if dir == "" {
		return fmt.Errorf("no directory to watch: pass one or configure sessions.dir")
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", dir)
	}

	debounce := cfg.Watch.Debounce()
	if debounceMS > 0 {
		debounce = time.Duration(debounceMS) * time.Millisecond
	}
	commit = commit || cfg.Watch.Commit
	if profileName == "" {
		profileName = cfg.Analyze.Profile
	}

	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		return err
	}
	prof, err := profile.Load(dataDir, profileName)
	if err != nil {
		return err
	}
	st, err := store.Open(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open run archive: %w", err)
	}
	defer st.Close()

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	opts := analyzeOptions{
		actorsFile: cfg.Analyze.ActorsFile,
		narrators:  "DM",
		traces:     cfg.Analyze.SaveTraces,
		save:       true,
	}

	handler := func(ctx context.Context, path string) error {
		imp, err := importer.Detect(path)
		if err != nil {
			return err
		}
		tr, _, err := imp.ImportFromFile(path)
		if err != nil {
			return err
		}
		run, err := analyzeTranscript(ctx, *tr, prof, opts, st)
		if err != nil {
			return err
		}
		log.Info("watch: archived run",
			slog.String("run", run.Info.ID),
			slog.String("session", run.Info.Session),
			slog.Int("nodes", run.Info.Nodes),
			slog.Int("unabsorbed", run.Info.Unabsorbed))

		if commit {
			if err := commitWatchReport(path, run); err != nil {
				// A missing repo only disables snapshots, the watch goes on.
				log.Warn("watch: commit skipped", slog.String("error", err.Error()))
			}
		}
		return nil
	}

	w := watch.New(dir, debounce, log, handler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Run(ctx)
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			log.Info("watch: shutting down", slog.String("signal", sig.String()))
			cancel()
			return nil
		case <-ctx.Done():
			return nil
		}
	})
	return g.Wait()
}

// commitWatchReport writes the run report next to the analyzed log and
// commits it.
func commitWatchReport(logPath string, run *store.Run) error {
	if !git.Available() {
		return fmt.Errorf("git is not installed")
	}
	repo, err := git.DetectRepository(filepath.Dir(logPath))
	if err != nil {
		return err
	}
	reportPath := filepath.Join(filepath.Dir(logPath), run.Info.Session+".report.md")
	if err := os.WriteFile(reportPath, []byte(render.Report(run)), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	msg := git.SnapshotMessage(run.Info.Session, run.Info.ParamsHash, run.Info.Nodes, run.Info.Unabsorbed)
	return repo.CommitArtifacts([]string{reportPath}, msg)
}
