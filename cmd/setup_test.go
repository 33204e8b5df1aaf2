package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CanopyHQ/heartwood/internal/config"
)

func TestRunSetupConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartwood.yaml")
	orig := os.Getenv("HEARTWOOD_CONFIG")
	os.Setenv("HEARTWOOD_CONFIG", path)
	defer os.Setenv("HEARTWOOD_CONFIG", orig)

	out, err := captureStdout(func() {
		if e := runSetupConfig(); e != nil {
			t.Fatalf("runSetupConfig: %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "✅ Wrote ") {
		t.Errorf("expected write confirmation: %q", out)
	}

	// The template must load as a valid config matching the defaults.
	cfg := config.Default()
	if err := config.Load(path, cfg); err != nil {
		t.Fatalf("template does not load: %v", err)
	}
	if cfg.Analyze.Profile != "default" || cfg.Analyze.Format != config.FormatAuto {
		t.Errorf("template analyze defaults = %+v", cfg.Analyze)
	}
	if cfg.Watch.DebounceMS != 500 {
		t.Errorf("template debounce = %d", cfg.Watch.DebounceMS)
	}

	// Refuses to clobber an existing file.
	if err := runSetupConfig(); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected an already-exists error, got %v", err)
	}
}

func TestUpdateMCPConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mcp.json")
	existing := map[string]interface{}{
		"mcpServers": map[string]interface{}{
			"other": map[string]interface{}{"command": "/usr/bin/other"},
		},
	}
	data, _ := json.Marshal(existing)
	if err := os.WriteFile(configPath, data, 0600); err != nil {
		t.Fatal(err)
	}

	_, err := captureStdout(func() {
		if e := updateMCPConfig(configPath, "mcpServers", "/usr/local/bin/heartwood"); e != nil {
			t.Fatalf("updateMCPConfig: %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatal(err)
	}
	var cfg map[string]interface{}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("updated config is not JSON: %v", err)
	}
	servers := cfg["mcpServers"].(map[string]interface{})
	if _, ok := servers["other"]; !ok {
		t.Error("existing servers must survive the update")
	}
	hw, ok := servers["heartwood"].(map[string]interface{})
	if !ok {
		t.Fatal("heartwood server not registered")
	}
	if hw["command"] != "/usr/local/bin/heartwood" {
		t.Errorf("command = %v", hw["command"])
	}
}

func TestUpdateMCPConfig_FreshFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "mcp.json")

	_, err := captureStdout(func() {
		if e := updateMCPConfig(configPath, "mcpServers", "/usr/local/bin/heartwood"); e != nil {
			t.Fatalf("updateMCPConfig: %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if !strings.Contains(string(raw), `"heartwood"`) {
		t.Errorf("fresh config content: %s", raw)
	}
}
