// Package mcpserver exposes the analysis pipeline and the run archive over
// the Model Context Protocol so MCP clients (Claude Code, Cursor, etc.) can
// analyze session logs and query archived runs.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/config"
	"github.com/CanopyHQ/heartwood/internal/importer"
	"github.com/CanopyHQ/heartwood/internal/mask"
	"github.com/CanopyHQ/heartwood/internal/profile"
	"github.com/CanopyHQ/heartwood/internal/render"
	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/CanopyHQ/heartwood/internal/transcript"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server wraps an MCP server over a run archive. All tools are
// deterministic: the same archive and arguments produce the same result.
type Server struct {
	mcp     *server.MCPServer
	store   *store.Store
	dataDir string
	log     *slog.Logger
}

// New creates the MCP server and registers its tools.
func New(st *store.Store, dataDir, version string, log *slog.Logger) *Server {
	s := &Server{
		store:   st,
		dataDir: dataDir,
		log:     log,
	}
	s.mcp = server.NewMCPServer(
		"heartwood",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s.registerTools()
	return s
}

// Serve runs the server on stdio until the client disconnects.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server, mainly for tests.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("analyze_session",
		mcp.WithDescription("Analyze a session log file into a causal hierarchy and archive the run. Returns the run id and summary counts."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the session log (.jsonl or Discord .json export)")),
		mcp.WithString("profile", mcp.Description("Tuning profile name (default: default)")),
		mcp.WithString("format", mcp.Description("Log format: auto, jsonl, discord (default: auto)")),
		mcp.WithString("narrators", mcp.Description("Comma-separated narrator names (default: DM)")),
		mcp.WithBoolean("traces", mcp.Description("Archive candidate traces for auditing")),
	), s.handleAnalyzeSession)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List archived runs, newest first."),
		mcp.WithString("session", mcp.Description("Only runs for this session")),
		mcp.WithNumber("limit", mcp.Description("Maximum runs to return (default: 20)")),
	), s.handleListRuns)

	s.mcp.AddTool(mcp.NewTool("get_run",
		mcp.WithDescription("Get one archived run as JSON: nodes, context edges, unabsorbed pool, per-round metrics, and the analyzed lines."),
		mcp.WithString("run", mcp.Required(), mcp.Description("Run id, unique id prefix, or session name")),
	), s.handleGetRun)

	s.mcp.AddTool(mcp.NewTool("audit_run",
		mcp.WithDescription("Explain what a run left unresolved: unclaimed causes and unabsorbed residuals, with candidate traces when archived. Pass a node id for a single node's decisions."),
		mcp.WithString("run", mcp.Required(), mcp.Description("Run id, unique id prefix, or session name")),
		mcp.WithString("node", mcp.Description("Node or singleton id to audit")),
	), s.handleAuditRun)

	s.mcp.AddTool(mcp.NewTool("search_lines",
		mcp.WithDescription("Search archived session lines by semantic similarity."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default: 10)")),
	), s.handleSearchLines)
}

func (s *Server) handleAnalyzeSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	profileName := req.GetString("profile", "default")
	format := req.GetString("format", config.FormatAuto)
	narrators := req.GetString("narrators", "DM")
	traces := req.GetBool("traces", false)

	info, err := s.analyze(ctx, path, profileName, format, narrators, traces)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyzed %s: run %s\n", info.Session, info.ID)
	fmt.Fprintf(&b, "lines: %d, rounds: %d, nodes: %d, context edges: %d, unabsorbed: %d\n",
		info.Lines, info.Rounds, info.Nodes, info.Edges, info.Unabsorbed)
	fmt.Fprintf(&b, "profile: %s, params hash: %s", info.Profile, info.ParamsHash)
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session", "")
	limit := req.GetInt("limit", 20)

	infos, err := s.store.ListRuns(ctx, session, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(infos) == 0 {
		return mcp.NewToolResultText("No runs archived yet."), nil
	}

	var b strings.Builder
	for _, info := range infos {
		fmt.Fprintf(&b, "- %s  %s  %d nodes, %d unabsorbed, %d round(s)  %s\n",
			info.ID, info.Session, info.Nodes, info.Unabsorbed, info.Rounds,
			info.CreatedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) handleGetRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.resolveRun(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode run: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleAuditRun(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run, err := s.resolveRun(ctx, ref)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if node := req.GetString("node", ""); node != "" {
		out, err := render.NodeAudit(run, node)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
	return mcp.NewToolResultText(render.Audit(run)), nil
}

func (s *Server) handleSearchLines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	limit := req.GetInt("limit", 10)

	hits, err := s.store.SearchLines(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) == 0 {
		return mcp.NewToolResultText("No matching lines."), nil
	}

	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [%.3f] %s line %d (run %s)\n", i+1, hit.Score, hit.Session, hit.LineIndex, hit.RunID)
		fmt.Fprintf(&b, "   %s: %s\n", hit.Author, hit.Content)
	}
	return mcp.NewToolResultText(b.String()), nil
}

// analyze runs the full pipeline for one log file and archives the result.
func (s *Server) analyze(ctx context.Context, path, profileName, format, narrators string, traces bool) (*store.RunInfo, error) {
	var imp importer.Importer
	var err error
	if format == "" || format == config.FormatAuto {
		imp, err = importer.Detect(path)
	} else {
		imp, err = importer.ForFormat(format)
	}
	if err != nil {
		return nil, err
	}
	tr, _, err := imp.ImportFromFile(path)
	if err != nil {
		return nil, err
	}

	prof, err := profile.Load(s.dataDir, profileName)
	if err != nil {
		return nil, err
	}
	reg, err := transcript.InferRegistry(tr.Lines, splitNarrators(narrators))
	if err != nil {
		return nil, err
	}
	m := mask.Build(tr.Lines)
	classes := mask.Classify(tr.Lines, reg)

	var opts []causal.Option
	if traces {
		opts = append(opts, causal.WithTraces())
	}
	res, err := causal.Run(causal.Input{
		Lines:   tr.Lines,
		Mask:    m,
		Actors:  reg,
		Classes: classes,
	}, prof.Params, opts...)
	if err != nil {
		return nil, err
	}

	info, err := s.store.Save(ctx, tr.Session, prof.Name, res, tr.Lines, m)
	if err != nil {
		return nil, fmt.Errorf("failed to archive run: %w", err)
	}
	s.log.Info("mcp: archived run",
		slog.String("run", info.ID),
		slog.String("session", info.Session),
		slog.Int("nodes", info.Nodes))
	return info, nil
}

func (s *Server) resolveRun(ctx context.Context, ref string) (*store.Run, error) {
	run, err := s.store.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("no run matches %q", ref)
	}
	return run, nil
}

func splitNarrators(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
