// Package importer parses session logs from various sources into transcripts
package importer

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// ErrUnknownFormat is returned for a format name no importer claims.
var ErrUnknownFormat = errors.New("importer: unknown format")

// ImportResult tracks import statistics
type ImportResult struct {
	FilesProcessed int
	LinesImported  int
	Errors         []string
	Duration       time.Duration
}

// Importer is the common surface of session-log importers.
type Importer interface {
	ImportFromFile(path string) (*transcript.Transcript, *ImportResult, error)
	ImportFromDirectory(dir string) ([]transcript.Transcript, *ImportResult, error)
}

// Formats lists the supported format names in display order.
func Formats() []string { return []string{"jsonl", "discord"} }

// ForFormat returns the importer registered under name.
func ForFormat(name string) (Importer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "jsonl":
		return NewJSONLImporter(), nil
	case "discord":
		return NewDiscordImporter(), nil
	default:
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
	}
}

// Detect picks an importer from the file extension: .jsonl is the native
// log format, .json is assumed to be a Discord channel export.
func Detect(path string) (Importer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return NewJSONLImporter(), nil
	case ".json":
		return NewDiscordImporter(), nil
	default:
		return nil, fmt.Errorf("%w: cannot detect from %q (supported: %s)", ErrUnknownFormat, filepath.Base(path), strings.Join(Formats(), ", "))
	}
}

// sessionName derives the session name from a log file path.
func sessionName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
