package importer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestJSONLImporter_ImportFromFile(t *testing.T) {
	log := strings.Join([]string{
		`{"author":"Aria","content":"I pick the lock on the vault","ts":"2026-03-14T19:05:00Z"}`,
		``,
		`{"author":"DM","content":"The tumblers click open"}`,
		`{not json`,
		`{"index":7,"author":"Bob","content":"nice"}`,
	}, "\n")
	path := writeFile(t, t.TempDir(), "crypt-run-07.jsonl", log)

	tr, result, err := NewJSONLImporter().ImportFromFile(path)
	if err != nil {
		t.Fatalf("ImportFromFile: %v", err)
	}

	if tr.Session != "crypt-run-07" {
		t.Errorf("session = %q", tr.Session)
	}
	if result.LinesImported != 3 || result.FilesProcessed != 1 {
		t.Errorf("result = %+v", result)
	}
	// One malformed line, one out-of-order index.
	if len(result.Errors) != 2 {
		t.Errorf("errors = %v", result.Errors)
	}
	if err := transcript.ValidateLines(tr.Lines); err != nil {
		t.Errorf("imported lines must validate: %v", err)
	}

	want := time.Date(2026, 3, 14, 19, 5, 0, 0, time.UTC)
	if tr.Lines[0].Author != "Aria" || !tr.Lines[0].Timestamp.Equal(want) {
		t.Errorf("line 0 = %+v", tr.Lines[0])
	}
	if tr.Lines[2].Index != 2 || tr.Lines[2].Author != "Bob" {
		t.Errorf("line 2 = %+v", tr.Lines[2])
	}
}

func TestJSONLImporter_ImportFromFile_missing(t *testing.T) {
	_, _, err := NewJSONLImporter().ImportFromFile("/nonexistent/session.jsonl")
	if err == nil {
		t.Fatal("expected error for nonexistent file")
	}
}

func TestJSONLImporter_ImportFromDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsonl", `{"author":"Aria","content":"I douse the lantern"}`)
	writeFile(t, dir, "b.jsonl", strings.Join([]string{
		`{"author":"Brand","content":"I bar the oak door"}`,
		`{"author":"DM","content":"Muffled pounding rattles the hinges"}`,
	}, "\n"))
	writeFile(t, dir, "notes.txt", "not a session log")

	transcripts, result, err := NewJSONLImporter().ImportFromDirectory(dir)
	if err != nil {
		t.Fatalf("ImportFromDirectory: %v", err)
	}
	if len(transcripts) != 2 {
		t.Fatalf("transcripts = %d, want 2", len(transcripts))
	}
	if result.FilesProcessed != 2 || result.LinesImported != 3 {
		t.Errorf("result = %+v", result)
	}
	// Walk order is lexical, so sessions come back sorted.
	if transcripts[0].Session != "a" || transcripts[1].Session != "b" {
		t.Errorf("sessions = %q, %q", transcripts[0].Session, transcripts[1].Session)
	}
}
