// Package profile resolves named tuning profiles into engine parameters.
//
// Builtin profiles ship embedded in the binary; user profiles live under
// <data dir>/profiles and shadow builtins of the same name. A profile fully
// determines the run parameters, so two profiles with identical content
// produce the same provenance hash regardless of their names.
package profile

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/CanopyHQ/heartwood/internal/causal"
	"github.com/CanopyHQ/heartwood/internal/config"
)

//go:embed profiles/*.yaml
var builtinFS embed.FS

// ErrUnknownProfile is returned when a profile name resolves to nothing.
var ErrUnknownProfile = errors.New("unknown profile")

// Profile sources reported by List.
const (
	SourceBuiltin = "builtin"
	SourceUser    = "user"
)

// Profile is a named, documented parameter set.
type Profile struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Params      causal.Params `yaml:"params"`
}

// Validate checks the embedded parameters. Name and Description are
// documentation and may be empty in user files.
func (p *Profile) Validate() error {
	return p.Params.Validate()
}

// Entry describes an available profile without fully resolving it.
type Entry struct {
	Name        string
	Description string
	Source      string
}

// UserDir returns the directory scanned for user profiles.
func UserDir(dataDir string) string {
	return filepath.Join(dataDir, "profiles")
}

// Builtin returns the names of the embedded profiles, sorted.
func Builtin() []string {
	entries, _ := fs.ReadDir(builtinFS, "profiles")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Load resolves a profile by name. Names containing a path separator or a
// YAML extension are loaded as files directly; bare names check the user
// dir first, then the builtins.
func Load(dataDir, name string) (*Profile, error) {
	if strings.ContainsRune(name, os.PathSeparator) ||
		strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return loadFile(name)
	}
	if dataDir != "" {
		path := filepath.Join(UserDir(dataDir), name+".yaml")
		if _, err := os.Stat(path); err == nil {
			return loadFile(path)
		}
	}
	data, err := builtinFS.ReadFile("profiles/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("%w: %q (builtin profiles: %s)",
			ErrUnknownProfile, name, strings.Join(Builtin(), ", "))
	}
	return parseBuiltin(name, data)
}

// List merges builtin and user profiles, user entries shadowing builtins of
// the same name, sorted by name.
func List(dataDir string) ([]Entry, error) {
	byName := make(map[string]Entry)
	for _, name := range Builtin() {
		data, err := builtinFS.ReadFile("profiles/" + name + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to read builtin profile %s: %w", name, err)
		}
		p, err := parseBuiltin(name, data)
		if err != nil {
			return nil, err
		}
		byName[name] = Entry{Name: name, Description: p.Description, Source: SourceBuiltin}
	}

	if dataDir != "" {
		dir := UserDir(dataDir)
		entries, err := os.ReadDir(dir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read profile dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
				continue
			}
			p, err := loadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				return nil, err
			}
			name := strings.TrimSuffix(e.Name(), ".yaml")
			byName[name] = Entry{Name: name, Description: p.Description, Source: SourceUser}
		}
	}

	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Entry, 0, len(names))
	for _, n := range names {
		out = append(out, byName[n])
	}
	return out, nil
}

func loadFile(path string) (*Profile, error) {
	var p Profile
	if err := config.Load(path, &p); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return &p, nil
}

func parseBuiltin(name string, data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse builtin profile %s: %w", name, err)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("builtin profile %s: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}
