package importer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// jsonlRecord is one speech act as written by session loggers. The index
// field is advisory: line order in the file is authoritative.
type jsonlRecord struct {
	Index   *int      `json:"index,omitempty"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	TS      time.Time `json:"ts,omitempty"`
}

// JSONLImporter reads newline-delimited session logs, one JSON speech act
// per line.
type JSONLImporter struct{}

// NewJSONLImporter creates a new JSONL importer
func NewJSONLImporter() *JSONLImporter {
	return &JSONLImporter{}
}

// ImportFromFile parses one log file into a transcript. Blank lines are
// skipped; malformed lines are reported in the result and skipped, they
// never abort the file.
func (i *JSONLImporter) ImportFromFile(path string) (*transcript.Transcript, *ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Increase buffer size for long lines
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024) // 10MB max

	tr := &transcript.Transcript{Session: sessionName(path)}
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec jsonlRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d: %v", filepath.Base(path), lineNo, err))
			continue
		}

		idx := len(tr.Lines)
		if rec.Index != nil && *rec.Index != idx {
			result.Errors = append(result.Errors, fmt.Sprintf("%s:%d: index %d out of order, using %d", filepath.Base(path), lineNo, *rec.Index, idx))
		}
		tr.Lines = append(tr.Lines, transcript.Line{
			Index:     idx,
			Author:    rec.Author,
			Content:   rec.Content,
			Timestamp: rec.TS,
		})
		result.LinesImported++
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scanner error: %w", err)
	}

	result.FilesProcessed = 1
	result.Duration = time.Since(start)
	return tr, result, nil
}

// ImportFromDirectory imports every .jsonl file under dir, one transcript
// per file. Per-file failures are reported in the result and skipped.
func (i *JSONLImporter) ImportFromDirectory(dir string) ([]transcript.Transcript, *ImportResult, error) {
	return importDirectory(dir, ".jsonl", i)
}

// importDirectory walks dir and imports every file with the given
// extension through imp, combining the per-file results.
func importDirectory(dir, ext string, imp Importer) ([]transcript.Transcript, *ImportResult, error) {
	start := time.Now()
	combined := &ImportResult{}
	var transcripts []transcript.Transcript

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(strings.ToLower(path), ext) {
			return nil
		}

		tr, result, err := imp.ImportFromFile(path)
		if err != nil {
			combined.Errors = append(combined.Errors, fmt.Sprintf("%s: %v", path, err))
			return nil // continue with other files
		}
		transcripts = append(transcripts, *tr)
		combined.FilesProcessed += result.FilesProcessed
		combined.LinesImported += result.LinesImported
		combined.Errors = append(combined.Errors, result.Errors...)
		return nil
	})

	combined.Duration = time.Since(start)
	return transcripts, combined, err
}
