package watch

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector records handled paths and signals each one on a channel.
type collector struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 16)}
}

func (c *collector) handle(_ context.Context, path string) error {
	c.mu.Lock()
	c.paths = append(c.paths, path)
	c.mu.Unlock()
	c.ch <- path
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.paths)
}

func startWatcher(t *testing.T, dir string, debounce time.Duration, c *collector) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(dir, debounce, testLogger(), c.handle).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Run: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	return cancel
}

func TestWatcher_DebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	startWatcher(t, dir, 150*time.Millisecond, c)

	log := filepath.Join(dir, "session.jsonl")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(log, []byte(`{"author":"DM","content":"line"}`+"\n"), 0644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(30 * time.Millisecond)
	}

	select {
	case got := <-c.ch:
		if got != log {
			t.Errorf("handled %q, want %q", got, log)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never called")
	}

	// The burst should have collapsed into a single analysis.
	time.Sleep(400 * time.Millisecond)
	if n := c.count(); n != 1 {
		t.Errorf("expected 1 analysis for the burst, got %d", n)
	}
}

func TestWatcher_IgnoresOtherExtensions(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	startWatcher(t, dir, 50*time.Millisecond, c)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a log"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-c.ch:
		t.Errorf("handler called for %q", got)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_PicksUpNewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	c := newCollector()
	startWatcher(t, dir, 50*time.Millisecond, c)

	sub := filepath.Join(dir, "campaign-two")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	// Let the watcher pick up the new directory before writing into it.
	time.Sleep(200 * time.Millisecond)

	log := filepath.Join(sub, "session.json")
	if err := os.WriteFile(log, []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-c.ch:
		if got != log {
			t.Errorf("handled %q, want %q", got, log)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handler never called for file in new subdirectory")
	}
}

func TestIsSessionLog(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"session.jsonl", true},
		{"export.JSON", true},
		{"notes.txt", false},
		{"session.jsonl.bak", false},
	}
	for _, tt := range tests {
		if got := isSessionLog(tt.path); got != tt.want {
			t.Errorf("isSessionLog(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
