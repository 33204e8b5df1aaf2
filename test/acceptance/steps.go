package acceptance

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var testServerCmd *exec.Cmd
var testServerStdin io.WriteCloser
var testServerReader *bufio.Reader
var nextRequestID int

// TestContext holds state between steps
type TestContext struct {
	ctx          context.Context
	sessionLog   string
	lastResponse map[string]interface{}
	// CLI run state
	lastCLIStdout   string
	lastCLIStderr   string
	lastCLIExitCode int
}

// sessionLogLines is the fixture transcript: two player actions, each
// answered by a narrator effect, which links into a single composite.
var sessionLogLines = []string{
	`{"author": "Aria", "content": "I douse the lantern"}`,
	`{"author": "DM", "content": "Darkness swallows the cellar"}`,
	`{"author": "Brand", "content": "I bar the oak door"}`,
	`{"author": "DM", "content": "Muffled pounding rattles the hinges"}`,
}

// ensureCLIBinary ensures the heartwood binary exists (builds if needed).
func ensureCLIBinary() (string, error) {
	binaryPath := os.Getenv("HEARTWOOD_TEST_BINARY")
	if binaryPath != "" {
		if _, err := os.Stat(binaryPath); err == nil {
			return binaryPath, nil
		}
	}
	// Check CWD (e.g. heartwood/test/acceptance) and the repo root
	for _, p := range []string{"./heartwood", "../../heartwood", "/tmp/heartwood-test"} {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs, nil
		}
	}
	cmd := exec.Command("go", "build", "-o", "/tmp/heartwood-test", ".")
	cmd.Dir = filepath.Join("..", "..")
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("failed to build test binary: %w", err)
	}
	return "/tmp/heartwood-test", nil
}

func (tc *TestContext) heartwoodInstalled() error {
	_, err := ensureCLIBinary()
	if err != nil {
		return err
	}
	if os.Getenv("HEARTWOOD_DATA_DIR") == "" {
		tmpDir, err := os.MkdirTemp("", "heartwood-test-*")
		if err != nil {
			return err
		}
		os.Setenv("HEARTWOOD_DATA_DIR", tmpDir)
	}
	return nil
}

// freshDataDir points the archive at an empty directory. The MCP server
// captures the data dir at startup, so a running one is stopped first.
func (tc *TestContext) freshDataDir() error {
	stopTestServer()
	tmpDir, err := os.MkdirTemp("", "heartwood-test-*")
	if err != nil {
		return err
	}
	return os.Setenv("HEARTWOOD_DATA_DIR", tmpDir)
}

func (tc *TestContext) sessionLogNamed(name string) error {
	dir, err := os.MkdirTemp("", "heartwood-sessions-*")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, name)
	content := strings.Join(sessionLogLines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return err
	}
	tc.sessionLog = path
	return nil
}

func (tc *TestContext) analyzeSessionLog() error {
	if tc.sessionLog == "" {
		return fmt.Errorf("no session log prepared")
	}
	return tc.runHeartwood("analyze", tc.sessionLog)
}

func (tc *TestContext) analyzeSessionLogWithProfile(profile string) error {
	if tc.sessionLog == "" {
		return fmt.Errorf("no session log prepared")
	}
	return tc.runHeartwood("analyze", "--profile", profile, tc.sessionLog)
}

func (tc *TestContext) sessionLogAnalyzed() error {
	if err := tc.analyzeSessionLog(); err != nil {
		return err
	}
	if tc.lastCLIExitCode != 0 {
		return fmt.Errorf("analyze failed with exit code %d; stderr: %s", tc.lastCLIExitCode, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) runHeartwood(args ...string) error {
	binaryPath, err := ensureCLIBinary()
	if err != nil {
		return err
	}
	if os.Getenv("HEARTWOOD_DATA_DIR") == "" {
		tmpDir, _ := os.MkdirTemp("", "heartwood-test-*")
		os.Setenv("HEARTWOOD_DATA_DIR", tmpDir)
	}
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	tc.lastCLIStdout = stdout.String()
	tc.lastCLIStderr = stderr.String()
	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.lastCLIExitCode = exitErr.ExitCode()
	} else if err != nil {
		tc.lastCLIExitCode = -1
		return err
	} else {
		tc.lastCLIExitCode = 0
	}
	return nil
}

// runCLICommand runs a CLI command (e.g. "heartwood status") and stores stdout, stderr, exit code.
func (tc *TestContext) runCLICommand(cmdLine string) error {
	parts := strings.Fields(cmdLine)
	if len(parts) == 0 {
		return fmt.Errorf("empty command")
	}
	if parts[0] == "heartwood" {
		return tc.runHeartwood(parts[1:]...)
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	tc.lastCLIStdout = stdout.String()
	tc.lastCLIStderr = stderr.String()
	if exitErr, ok := err.(*exec.ExitError); ok {
		tc.lastCLIExitCode = exitErr.ExitCode()
	} else if err != nil {
		tc.lastCLIExitCode = -1
		return err
	} else {
		tc.lastCLIExitCode = 0
	}
	return nil
}

func (tc *TestContext) checkCommandSucceeded() error {
	if tc.lastCLIExitCode != 0 {
		return fmt.Errorf("expected exit code 0, got %d; stderr: %s", tc.lastCLIExitCode, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) checkCommandFailed() error {
	if tc.lastCLIExitCode == 0 {
		return fmt.Errorf("expected command to fail but it succeeded; stdout: %s", tc.lastCLIStdout)
	}
	return nil
}

func (tc *TestContext) outputShouldShow(text string) error {
	combined := tc.lastCLIStdout + tc.lastCLIStderr
	if !strings.Contains(combined, text) {
		return fmt.Errorf("output did not show %q; stdout: %s stderr: %s", text, tc.lastCLIStdout, tc.lastCLIStderr)
	}
	return nil
}

func (tc *TestContext) outputShouldContain(text string) error {
	return tc.outputShouldShow(text)
}

func (tc *TestContext) errorShouldContain(text string) error {
	errOut := tc.lastCLIStderr
	if errOut == "" {
		errOut = tc.lastCLIStdout
	}
	if !strings.Contains(strings.ToLower(errOut), strings.ToLower(text)) {
		return fmt.Errorf("error output did not contain %q; stderr: %s", text, tc.lastCLIStderr)
	}
	return nil
}

// --- MCP server plumbing ---

// startTestServer starts the heartwood binary in serve mode with pipes attached.
func startTestServer() error {
	if testServerCmd != nil {
		return nil // Already running
	}

	binaryPath, err := ensureCLIBinary()
	if err != nil {
		return err
	}
	if os.Getenv("HEARTWOOD_DATA_DIR") == "" {
		tmpDir, err := os.MkdirTemp("", "heartwood-test-*")
		if err != nil {
			return err
		}
		os.Setenv("HEARTWOOD_DATA_DIR", tmpDir)
	}

	cmd := exec.Command(binaryPath, "serve")
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	testServerCmd = cmd
	testServerStdin = stdin
	testServerReader = bufio.NewReader(stdout)

	return nil
}

func stopTestServer() {
	if testServerCmd == nil {
		return
	}
	_ = testServerCmd.Process.Kill()
	_, _ = testServerCmd.Process.Wait()
	testServerCmd = nil
	testServerStdin = nil
	testServerReader = nil
}

func readServerResponse() (map[string]interface{}, error) {
	if testServerReader == nil {
		return nil, fmt.Errorf("server stdout not initialized")
	}

	line, err := testServerReader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}

	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("empty response")
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return resp, nil
}

func sendServerRequest(method string, params map[string]interface{}) (map[string]interface{}, error) {
	nextRequestID++
	req := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      nextRequestID,
		"method":  method,
		"params":  params,
	}

	reqJSON, _ := json.Marshal(req)
	reqJSON = append(reqJSON, '\n')

	if _, err := testServerStdin.Write(reqJSON); err != nil {
		return nil, err
	}

	return readServerResponse()
}

// initializeServer performs the MCP handshake and returns the initialize result.
func initializeServer() (map[string]interface{}, error) {
	resp, err := sendServerRequest("initialize", map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]interface{}{},
		"clientInfo": map[string]interface{}{
			"name":    "godog",
			"version": "0.0.0",
		},
	})
	if err != nil {
		return nil, err
	}

	result, ok := resp["result"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid initialize response: %v", resp)
	}

	notif := map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	}
	notifJSON, _ := json.Marshal(notif)
	notifJSON = append(notifJSON, '\n')
	if _, err := testServerStdin.Write(notifJSON); err != nil {
		return nil, err
	}

	return result, nil
}

// ensureServer starts the server and completes the handshake if needed.
func ensureServer() error {
	if testServerCmd != nil {
		return nil
	}
	if err := startTestServer(); err != nil {
		return err
	}
	_, err := initializeServer()
	return err
}

func (tc *TestContext) mcpServerRunning() error {
	return ensureServer()
}

// sendMCPInitialize restarts the server so the scenario owns the handshake.
func (tc *TestContext) sendMCPInitialize() error {
	stopTestServer()
	if err := startTestServer(); err != nil {
		return err
	}

	result, err := initializeServer()
	if err != nil {
		return err
	}

	tc.lastResponse = result
	return nil
}

func (tc *TestContext) checkValidInitResponse() error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if _, ok := tc.lastResponse["protocolVersion"]; !ok {
		return fmt.Errorf("protocolVersion missing")
	}
	return nil
}

func (tc *TestContext) checkProtocolVersion(version string) error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if v, ok := tc.lastResponse["protocolVersion"].(string); !ok || v != version {
		return fmt.Errorf("expected protocol version %s, got %v", version, tc.lastResponse["protocolVersion"])
	}
	return nil
}

func (tc *TestContext) checkServerName(name string) error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	info, ok := tc.lastResponse["serverInfo"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("serverInfo missing")
	}
	if n, ok := info["name"].(string); !ok || n != name {
		return fmt.Errorf("expected server name %s, got %v", name, info["name"])
	}
	return nil
}

func (tc *TestContext) requestToolsList() error {
	if err := ensureServer(); err != nil {
		return err
	}

	resp, err := sendServerRequest("tools/list", map[string]interface{}{})
	if err != nil {
		return err
	}

	if result, ok := resp["result"].(map[string]interface{}); ok {
		tc.lastResponse = result
	} else {
		return fmt.Errorf("invalid response format")
	}

	return nil
}

func (tc *TestContext) checkListContains(item string) error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}

	tools, ok := tc.lastResponse["tools"].([]interface{})
	if !ok {
		return fmt.Errorf("tools list missing")
	}
	for _, tool := range tools {
		toolMap := tool.(map[string]interface{})
		if name, ok := toolMap["name"].(string); ok && name == item {
			return nil
		}
	}

	return fmt.Errorf("item %s not found in list", item)
}

func (tc *TestContext) callTool(tool string, args map[string]interface{}) error {
	if err := ensureServer(); err != nil {
		return err
	}

	resp, err := sendServerRequest("tools/call", map[string]interface{}{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return err
	}

	// A protocol-level error arrives in the error field instead of result
	if errField, ok := resp["error"].(map[string]interface{}); ok {
		tc.lastResponse = map[string]interface{}{
			"isError": true,
			"error":   errField,
		}
		return nil
	}

	if result, ok := resp["result"].(map[string]interface{}); ok {
		tc.lastResponse = result
	} else {
		return fmt.Errorf("invalid response format")
	}

	return nil
}

func (tc *TestContext) callMCPTool(tool string) error {
	return tc.callTool(tool, map[string]interface{}{})
}

func (tc *TestContext) callMCPToolOnSessionLog(tool string) error {
	if tc.sessionLog == "" {
		return fmt.Errorf("no session log prepared")
	}
	return tc.callTool(tool, map[string]interface{}{"path": tc.sessionLog})
}

func (tc *TestContext) callMCPToolWithRun(tool, run string) error {
	return tc.callTool(tool, map[string]interface{}{"run": run})
}

func (tc *TestContext) callMCPToolWithQuery(tool, query string) error {
	return tc.callTool(tool, map[string]interface{}{"query": query})
}

func (tc *TestContext) checkSuccessResponse() error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if isError, ok := tc.lastResponse["isError"].(bool); ok && isError {
		return fmt.Errorf("response indicates error: %v", tc.lastResponse)
	}
	return nil
}

func (tc *TestContext) toolReportedError() error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}
	if isError, ok := tc.lastResponse["isError"].(bool); ok && isError {
		return nil
	}
	return fmt.Errorf("expected a tool error, got %v", tc.lastResponse)
}

func (tc *TestContext) checkResultsContain(content string) error {
	if tc.lastResponse == nil {
		return fmt.Errorf("no response received")
	}

	contentField, ok := tc.lastResponse["content"].([]interface{})
	if !ok {
		return fmt.Errorf("content field missing or wrong type")
	}

	for _, item := range contentField {
		itemMap := item.(map[string]interface{})
		if text, ok := itemMap["text"].(string); ok {
			if strings.Contains(text, content) {
				return nil
			}
		}
	}

	return fmt.Errorf("content %s not found in results", content)
}
