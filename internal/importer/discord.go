package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// DiscordExport represents a DiscordChatExporter channel export
type DiscordExport struct {
	Guild    DiscordGuild     `json:"guild"`
	Channel  DiscordChannel   `json:"channel"`
	Messages []DiscordMessage `json:"messages"`
}

// DiscordGuild identifies the exported server
type DiscordGuild struct {
	Name string `json:"name"`
}

// DiscordChannel identifies the exported channel
type DiscordChannel struct {
	Name string `json:"name"`
}

// DiscordMessage represents a message in export format
type DiscordMessage struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"` // "Default", "Reply", system types
	Timestamp time.Time     `json:"timestamp"`
	Content   string        `json:"content"`
	Author    DiscordAuthor `json:"author"`
}

// DiscordAuthor represents the message author
type DiscordAuthor struct {
	Name     string `json:"name"`
	Nickname string `json:"nickname,omitempty"`
}

// DiscordImporter imports DiscordChatExporter JSON channel exports
type DiscordImporter struct{}

// NewDiscordImporter creates a new Discord importer
func NewDiscordImporter() *DiscordImporter {
	return &DiscordImporter{}
}

// ImportFromFile parses one channel export into a transcript. Only Default
// and Reply messages with content survive; system messages (joins, pins,
// boosts) are dropped here rather than left for the mask.
func (i *DiscordImporter) ImportFromFile(path string) (*transcript.Transcript, *ImportResult, error) {
	start := time.Now()
	result := &ImportResult{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}

	var export DiscordExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	tr := &transcript.Transcript{Session: discordSession(export, path)}
	for _, msg := range export.Messages {
		if msg.Type != "" && msg.Type != "Default" && msg.Type != "Reply" {
			continue
		}
		if msg.Content == "" {
			continue
		}

		author := msg.Author.Nickname
		if author == "" {
			author = msg.Author.Name
		}
		tr.Lines = append(tr.Lines, transcript.Line{
			Index:     len(tr.Lines),
			Author:    author,
			Content:   msg.Content,
			Timestamp: msg.Timestamp,
		})
		result.LinesImported++
	}

	result.FilesProcessed = 1
	result.Duration = time.Since(start)
	return tr, result, nil
}

// ImportFromDirectory imports every .json export under dir, one transcript
// per file. Per-file failures are reported in the result and skipped.
func (i *DiscordImporter) ImportFromDirectory(dir string) ([]transcript.Transcript, *ImportResult, error) {
	return importDirectory(dir, ".json", i)
}

// discordSession names the session after the channel; the file name is the
// fallback for exports missing channel metadata.
func discordSession(export DiscordExport, path string) string {
	switch {
	case export.Guild.Name != "" && export.Channel.Name != "":
		return export.Guild.Name + "/" + export.Channel.Name
	case export.Channel.Name != "":
		return export.Channel.Name
	default:
		return sessionName(path)
	}
}
