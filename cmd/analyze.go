package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/git"
	"github.com/CanopyHQ/heartwood/internal/importer"
	"github.com/CanopyHQ/heartwood/internal/mask"
	"github.com/CanopyHQ/heartwood/internal/profile"
	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/CanopyHQ/heartwood/internal/transcript"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <path>",
	Short: "Analyze a session log into a causal hierarchy",
	Long: `Analyze a session log: import, mask out-of-character chatter, classify
cause candidates, run the extraction rounds, and render a report.

The path can be a single log file or a directory of logs. Runs are
archived under a deterministic id derived from the session name and the
parameter hash, so re-analyzing an unchanged session with unchanged
parameters replaces the same run.

Examples:
  heartwood analyze sessions/crypt-run-07.jsonl
  heartwood analyze sessions/ --format jsonl --profile sparse-pbp
  heartwood analyze export.json --actors actors.yaml --traces
  heartwood analyze sessions/crypt-run-07.jsonl --out report.md --commit`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts analyzeOptions
		opts.format, _ = cmd.Flags().GetString("format")
		opts.profile, _ = cmd.Flags().GetString("profile")
		opts.actorsFile, _ = cmd.Flags().GetString("actors")
		opts.maskFile, _ = cmd.Flags().GetString("mask")
		opts.narrators, _ = cmd.Flags().GetString("narrators")
		opts.traces, _ = cmd.Flags().GetBool("traces")
		opts.save, _ = cmd.Flags().GetBool("save")
		opts.out, _ = cmd.Flags().GetString("out")
		opts.commit, _ = cmd.Flags().GetBool("commit")
		return runAnalyze(args[0], opts)
	},
}

func init() {
	analyzeCmd.Flags().String("format", "", "Log format: auto, jsonl, discord (default from config)")
	analyzeCmd.Flags().String("profile", "", "Tuning profile name or file (default from config)")
	analyzeCmd.Flags().String("actors", "", "Actors YAML file (default: infer actors from authors)")
	analyzeCmd.Flags().String("mask", "", "Sidecar mask JSON file (default: built-in heuristics)")
	analyzeCmd.Flags().String("narrators", "DM", "Comma-separated narrator names when inferring actors")
	analyzeCmd.Flags().Bool("traces", false, "Archive candidate traces for auditing")
	analyzeCmd.Flags().Bool("save", true, "Archive the run")
	analyzeCmd.Flags().String("out", "", "Write the report to a file (or directory, for directory input)")
	analyzeCmd.Flags().Bool("commit", false, "Commit written artifacts when the log is inside a git repository")
}

type analyzeOptions struct {
	format     string
	profile    string
	actorsFile string
	maskFile   string
	narrators  string
	traces     bool
	save       bool
	out        string
	commit     bool
}

func runAnalyze(path string, opts analyzeOptions) error {
	cfg, err := config.LoadDefault()
	if err != nil {
		return err
	}
	if opts.format == "" {
		opts.format = cfg.Analyze.Format
	}
	if opts.profile == "" {
		opts.profile = cfg.Analyze.Profile
	}
	if opts.actorsFile == "" {
		opts.actorsFile = cfg.Analyze.ActorsFile
	}
	opts.traces = opts.traces || cfg.Analyze.SaveTraces

	dataDir, err := cfg.Data.Resolve()
	if err != nil {
		return err
	}
	prof, err := profile.Load(dataDir, opts.profile)
	if err != nil {
		return err
	}

	transcripts, result, err := importPath(path, opts.format)
	if err != nil {
		return err
	}
	if len(transcripts) == 0 {
		return fmt.Errorf("nothing to analyze: no importable logs at %s", path)
	}

	fmt.Printf("Imported %d line(s) from %d file(s) in %s\n\n",
		result.LinesImported, result.FilesProcessed, result.Duration.Round(time.Millisecond))
	for _, e := range result.Errors {
		fmt.Printf("⚠️  %s\n", e)
	}

	var st *store.Store
	if opts.save {
		st, err = store.Open(dataDir)
		if err != nil {
			return fmt.Errorf("failed to open run archive: %w", err)
		}
		defer st.Close()
	}

	ctx := context.Background()
	var artifacts []string
	var infos []store.RunInfo

	for _, tr := range transcripts {
		run, err := analyzeTranscript(ctx, tr, prof, opts, st)
		if err != nil {
			return fmt.Errorf("analysis of %s failed: %w", tr.Session, err)
		}
		infos = append(infos, run.Info)

		report := render.Report(run)
		outPath, err := reportDestination(path, opts, tr.Session, len(transcripts) > 1)
		if err != nil {
			return err
		}
		if outPath == "" {
			if len(transcripts) == 1 {
				fmt.Println(report)
			}
		} else {
			if err := os.WriteFile(outPath, []byte(report), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			artifacts = append(artifacts, outPath)
		}

		unclaimed := run.Info.Nodes - claimedCount(run.Nodes)
		fmt.Printf("✅ %s: %d nodes (%d unclaimed), %d unabsorbed, %d round(s)  [run %s]\n",
			tr.Session, run.Info.Nodes, unclaimed, run.Info.Unabsorbed, run.Info.Rounds, run.Info.ID)
	}

	if opts.commit && len(artifacts) > 0 {
		if err := commitArtifacts(path, artifacts, infos); err != nil {
			return err
		}
	}
	return nil
}

// analyzeTranscript runs the full pipeline for one transcript and returns
// the run in archive shape, saved when a store is given.
func analyzeTranscript(ctx context.Context, tr transcript.Transcript, prof *profile.Profile, opts analyzeOptions, st *store.Store) (*store.Run, error) {
	lines := tr.Lines

	var reg *transcript.Registry
	var err error
	if opts.actorsFile != "" {
		reg, err = transcript.LoadRegistryFile(opts.actorsFile)
	} else {
		reg, err = transcript.InferRegistry(lines, splitList(opts.narrators))
	}
	if err != nil {
		return nil, err
	}

	var m transcript.Mask
	if opts.maskFile != "" {
		m, err = mask.LoadFile(opts.maskFile, len(lines))
		if err != nil {
			return nil, err
		}
	} else {
		m = mask.Build(lines)
	}
	classes := mask.Classify(lines, reg)

	var runOpts []causal.Option
	if opts.traces {
		runOpts = append(runOpts, causal.WithTraces())
	}
	res, err := causal.Run(causal.Input{
		Lines:   lines,
		Mask:    m,
		Actors:  reg,
		Classes: classes,
	}, prof.Params, runOpts...)
	if err != nil {
		return nil, err
	}

	if st != nil {
		if _, err := st.Save(ctx, tr.Session, prof.Name, res, lines, m); err != nil {
			return nil, fmt.Errorf("failed to archive run: %w", err)
		}
	}
	return assembleRun(tr.Session, prof, res, lines, m), nil
}

// assembleRun shapes an engine result like an archived run so the renderers
// work on saved and unsaved output alike.
func assembleRun(session string, prof *profile.Profile, res *causal.Result, lines []transcript.Line, m transcript.Mask) *store.Run {
	eligible := make([]bool, len(lines))
	for i := range lines {
		eligible[i] = m.IsEligible(i)
	}
	metrics := make([]causal.Metrics, 0, len(res.Rounds))
	for _, r := range res.Rounds {
		metrics = append(metrics, r.Metrics)
	}
	return &store.Run{
		Info: store.RunInfo{
			ID:            store.RunID(session, res.Provenance.ParamsHash),
			Session:       session,
			KernelVersion: res.Provenance.KernelVersion,
			ParamsHash:    res.Provenance.ParamsHash,
			Profile:       prof.Name,
			Rounds:        len(res.Rounds),
			Nodes:         len(res.Nodes),
			Edges:         len(res.Edges),
			Unabsorbed:    len(res.Unabsorbed),
			Lines:         len(lines),
		},
		Params:     prof.Params,
		Nodes:      res.Nodes,
		Edges:      res.Edges,
		Unabsorbed: res.Unabsorbed,
		Metrics:    metrics,
		Lines:      lines,
		Eligible:   eligible,
		Traces:     res.Traces,
	}
}

// importPath imports a log file or every importable log in a directory.
func importPath(path, format string) ([]transcript.Transcript, *importer.ImportResult, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot access path: %w", err)
	}

	if !info.IsDir() {
		imp, err := pickImporter(path, format)
		if err != nil {
			return nil, nil, err
		}
		tr, result, err := imp.ImportFromFile(path)
		if err != nil {
			return nil, nil, err
		}
		return []transcript.Transcript{*tr}, result, nil
	}

	// Directory: an explicit format scans with that importer; auto runs
	// both, since each claims its own extension.
	var imps []importer.Importer
	if format == "" || format == config.FormatAuto {
		imps = []importer.Importer{
			importer.NewJSONLImporter(),
			importer.NewDiscordImporter(),
		}
	} else {
		imp, err := importer.ForFormat(format)
		if err != nil {
			return nil, nil, err
		}
		imps = []importer.Importer{imp}
	}

	var all []transcript.Transcript
	merged := &importer.ImportResult{}
	for _, imp := range imps {
		trs, result, err := imp.ImportFromDirectory(path)
		if err != nil {
			return nil, nil, err
		}
		all = append(all, trs...)
		merged.FilesProcessed += result.FilesProcessed
		merged.LinesImported += result.LinesImported
		merged.Errors = append(merged.Errors, result.Errors...)
		merged.Duration += result.Duration
	}
	return all, merged, nil
}

func pickImporter(path, format string) (importer.Importer, error) {
	if format == "" || format == config.FormatAuto {
		return importer.Detect(path)
	}
	return importer.ForFormat(format)
}

// reportDestination resolves where one session's report goes. Empty means
// stdout. Directory input with --out writes per-session files.
func reportDestination(inputPath string, opts analyzeOptions, session string, multi bool) (string, error) {
	out := opts.out
	if out == "" {
		if !opts.commit {
			return "", nil
		}
		// A commit needs an artifact on disk; default next to the input.
		dir := inputPath
		if info, err := os.Stat(inputPath); err == nil && !info.IsDir() {
			dir = filepath.Dir(inputPath)
		}
		return filepath.Join(dir, session+".report.md"), nil
	}
	if !multi {
		return out, nil
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	return filepath.Join(out, session+".md"), nil
}

func commitArtifacts(inputPath string, artifacts []string, infos []store.RunInfo) error {
	if !git.Available() {
		return fmt.Errorf("--commit requested but git is not installed")
	}
	repo, err := git.DetectRepository(filepath.Dir(artifacts[0]))
	if err != nil {
		return fmt.Errorf("--commit requested but %s is not in a git repository", inputPath)
	}

	msg := git.SnapshotMessage(infos[0].Session, infos[0].ParamsHash, infos[0].Nodes, infos[0].Unabsorbed)
	if len(infos) > 1 {
		sessions := make([]string, 0, len(infos))
		for _, info := range infos {
			sessions = append(sessions, info.Session)
		}
		msg = fmt.Sprintf("heartwood: %d session(s) (%s)", len(infos), strings.Join(sessions, ", "))
	}
	if err := repo.CommitArtifacts(artifacts, msg); err != nil {
		return err
	}
	fmt.Printf("✅ Committed %d artifact(s) to %s\n", len(artifacts), repo.Root)
	return nil
}

func claimedCount(nodes []causal.Node) int {
	n := 0
	for i := range nodes {
		if nodes[i].Claimed {
			n++
		}
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
