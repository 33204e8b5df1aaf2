package mcpserver

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CanopyHQ/heartwood/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	dataDir := t.TempDir()
	st, err := store.Open(dataDir)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(st, dataDir, "test", log)
}

// writeSessionLog drops a small session that links into one composite.
func writeSessionLog(t *testing.T, dir, name string) string {
	t.Helper()
	lines := []string{
		`{"author": "Aria", "content": "I douse the lantern"}`,
		`{"author": "DM", "content": "Darkness swallows the cellar"}`,
		`{"author": "Brand", "content": "I bar the oak door"}`,
		`{"author": "DM", "content": "Muffled pounding rattles the hinges"}`,
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644); err != nil {
		t.Fatalf("write session log: %v", err)
	}
	return path
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var r *mcp.CallToolResult
	var err error
	switch name {
	case "analyze_session":
		r, err = s.handleAnalyzeSession(context.Background(), req)
	case "list_runs":
		r, err = s.handleListRuns(context.Background(), req)
	case "get_run":
		r, err = s.handleGetRun(context.Background(), req)
	case "audit_run":
		r, err = s.handleAuditRun(context.Background(), req)
	case "search_lines":
		r, err = s.handleSearchLines(context.Background(), req)
	default:
		t.Fatalf("unknown tool %s", name)
	}
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	return r
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("result has no content")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want TextContent", r.Content[0])
	}
	return tc.Text
}

func TestAnalyzeSession(t *testing.T) {
	s := testServer(t)
	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")

	r := callTool(t, s, "analyze_session", map[string]any{"path": path})
	if r.IsError {
		t.Fatalf("analyze_session failed: %s", resultText(t, r))
	}
	text := resultText(t, r)
	if !strings.Contains(text, "Analyzed cellar-siege: run ") {
		t.Errorf("missing run id line:\n%s", text)
	}
	if !strings.Contains(text, "lines: 4") {
		t.Errorf("missing summary counts:\n%s", text)
	}
}

func TestAnalyzeSession_MissingPath(t *testing.T) {
	s := testServer(t)
	r := callTool(t, s, "analyze_session", map[string]any{})
	if !r.IsError {
		t.Error("expected an error result without a path")
	}
}

func TestAnalyzeSession_BadFormat(t *testing.T) {
	s := testServer(t)
	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	r := callTool(t, s, "analyze_session", map[string]any{"path": path, "format": "csv"})
	if !r.IsError {
		t.Error("expected an error result for an unknown format")
	}
}

func TestListRuns(t *testing.T) {
	s := testServer(t)

	r := callTool(t, s, "list_runs", map[string]any{})
	if got := resultText(t, r); got != "No runs archived yet." {
		t.Errorf("empty archive message = %q", got)
	}

	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	callTool(t, s, "analyze_session", map[string]any{"path": path})

	r = callTool(t, s, "list_runs", map[string]any{"limit": 5})
	text := resultText(t, r)
	if !strings.Contains(text, "cellar-siege") {
		t.Errorf("run listing missing session:\n%s", text)
	}
}

func TestGetRun(t *testing.T) {
	s := testServer(t)
	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	callTool(t, s, "analyze_session", map[string]any{"path": path})

	r := callTool(t, s, "get_run", map[string]any{"run": "cellar-siege"})
	if r.IsError {
		t.Fatalf("get_run failed: %s", resultText(t, r))
	}
	text := resultText(t, r)
	if !strings.Contains(text, `"session": "cellar-siege"`) {
		t.Errorf("expected run JSON:\n%s", text)
	}
	if !strings.Contains(text, `"nodes"`) {
		t.Errorf("run JSON missing nodes:\n%s", text)
	}
}

func TestGetRun_Unknown(t *testing.T) {
	s := testServer(t)
	r := callTool(t, s, "get_run", map[string]any{"run": "no-such-run"})
	if !r.IsError {
		t.Error("expected an error result for an unknown run")
	}
}

func TestAuditRun(t *testing.T) {
	s := testServer(t)
	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	callTool(t, s, "analyze_session", map[string]any{"path": path, "traces": true})

	r := callTool(t, s, "audit_run", map[string]any{"run": "cellar-siege"})
	if r.IsError {
		t.Fatalf("audit_run failed: %s", resultText(t, r))
	}
	if !strings.Contains(resultText(t, r), "# heartwood audit") {
		t.Errorf("unexpected audit output:\n%s", resultText(t, r))
	}
}

func TestAuditRun_Node(t *testing.T) {
	s := testServer(t)
	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	callTool(t, s, "analyze_session", map[string]any{"path": path, "traces": true})

	run, err := s.store.Resolve(context.Background(), "cellar-siege")
	if err != nil || run == nil {
		t.Fatalf("resolve archived run: %v", err)
	}
	if len(run.Nodes) == 0 {
		t.Fatal("archived run has no nodes")
	}
	nodeID := run.Nodes[0].ID

	r := callTool(t, s, "audit_run", map[string]any{"run": "cellar-siege", "node": nodeID})
	if r.IsError {
		t.Fatalf("audit_run node failed: %s", resultText(t, r))
	}
	if !strings.Contains(resultText(t, r), "node "+nodeID) {
		t.Errorf("expected node audit header:\n%s", resultText(t, r))
	}
}

func TestSearchLines(t *testing.T) {
	s := testServer(t)

	r := callTool(t, s, "search_lines", map[string]any{"query": "door"})
	if got := resultText(t, r); got != "No matching lines." {
		t.Errorf("empty archive message = %q", got)
	}

	path := writeSessionLog(t, t.TempDir(), "cellar-siege.jsonl")
	callTool(t, s, "analyze_session", map[string]any{"path": path})

	r = callTool(t, s, "search_lines", map[string]any{"query": "door", "limit": 3})
	text := resultText(t, r)
	if !strings.Contains(text, "I bar the oak door") {
		t.Errorf("expected the door line first:\n%s", text)
	}
}
