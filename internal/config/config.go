package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Input formats accepted by analyze and watch.
const (
	FormatAuto    = "auto"
	FormatJSONL   = "jsonl"
	FormatDiscord = "discord"
)

// DefaultFile is the config file heartwood looks for in the working directory.
const DefaultFile = "heartwood.yaml"

// Config represents the application configuration.
type Config struct {
	Data     DataConfig     `yaml:"data"`
	Sessions SessionsConfig `yaml:"sessions"`
	Analyze  AnalyzeConfig  `yaml:"analyze"`
	Watch    WatchConfig    `yaml:"watch"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.Sessions.Validate(); err != nil {
		return err
	}
	if err := c.Analyze.Validate(); err != nil {
		return err
	}
	return c.Watch.Validate()
}

// DataConfig holds the location of the run archive and user profiles.
type DataConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	// An empty dir is fine: Resolve falls back to the home directory.
	return nil
}

// Resolve returns the data directory. Priority: HEARTWOOD_DATA_DIR, the
// configured dir, ~/.heartwood.
func (c *DataConfig) Resolve() (string, error) {
	if dir := os.Getenv("HEARTWOOD_DATA_DIR"); dir != "" {
		return dir, nil
	}
	if c.Dir != "" {
		return c.Dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".heartwood"), nil
}

// SessionsConfig holds the directory watched and imported for session logs.
type SessionsConfig struct {
	Dir string `yaml:"dir"`
}

// Validate validates the sessions configuration.
func (c *SessionsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	)
}

// Resolve returns the sessions directory. HEARTWOOD_SESSIONS_DIR wins over
// the configured dir.
func (c *SessionsConfig) Resolve() string {
	if dir := os.Getenv("HEARTWOOD_SESSIONS_DIR"); dir != "" {
		return dir
	}
	return c.Dir
}

// AnalyzeConfig holds defaults for the analyze and watch commands.
type AnalyzeConfig struct {
	Profile    string `yaml:"profile"`
	Format     string `yaml:"format"`
	ActorsFile string `yaml:"actors_file"`
	SaveTraces bool   `yaml:"save_traces"`
}

// Validate validates the analyze configuration.
func (c *AnalyzeConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Profile, validation.Required),
		validation.Field(&c.Format, validation.Required,
			validation.In(FormatAuto, FormatJSONL, FormatDiscord)),
	)
}

// WatchConfig holds settings for the filesystem watcher.
type WatchConfig struct {
	DebounceMS int  `yaml:"debounce_ms"`
	Commit     bool `yaml:"commit"`
}

// Debounce returns the settle window applied before a changed session file
// is re-analyzed.
func (c *WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// Validate validates the watch configuration.
func (c *WatchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DebounceMS, validation.Required, validation.Min(50), validation.Max(60000)),
	)
}

// Default returns a new Config with sensible default values.
func Default() *Config {
	return &Config{
		Sessions: SessionsConfig{
			Dir: "./sessions",
		},
		Analyze: AnalyzeConfig{
			Profile: "default",
			Format:  FormatAuto,
		},
		Watch: WatchConfig{
			DebounceMS: 500,
		},
	}
}

// LoadDefault loads heartwood.yaml from the working directory on top of the
// built-in defaults. HEARTWOOD_CONFIG overrides the location; a missing
// default file is not an error, a missing explicit one is.
func LoadDefault() (*Config, error) {
	cfg := Default()
	path := os.Getenv("HEARTWOOD_CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			if verr := cfg.Validate(); verr != nil {
				return nil, verr
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := Load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
