package transcript

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Actor is a registered speaker: a stable id, the canonical display name,
// and any aliases the logs may use for the same speaker.
type Actor struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"canonical_name" yaml:"name"`
	Aliases []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// Registry resolves author strings to actor ids and distinguishes narrator
// lines. It is valid by construction: build one through NewRegistry or
// LoadRegistryFile, never by hand, so the engine can trust it.
type Registry struct {
	actors    []Actor
	narrators []string
	byName    map[string]string
	narrator  map[string]bool
}

// NewRegistry builds a registry from actors and the narrator/DM name set.
// Duplicate ids, duplicate names, and aliases that point at two different
// actors are rejected; matching is case-insensitive on trimmed names.
func NewRegistry(actors []Actor, narrators []string) (*Registry, error) {
	r := &Registry{
		actors:    actors,
		narrators: narrators,
		byName:    make(map[string]string),
		narrator:  make(map[string]bool),
	}
	seen := make(map[string]bool)
	for _, a := range actors {
		if a.ID == "" {
			return nil, fmt.Errorf("%w: actor %q has empty id", ErrActorConflict, a.Name)
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("%w: duplicate actor id %q", ErrActorConflict, a.ID)
		}
		seen[a.ID] = true

		names := append([]string{a.Name}, a.Aliases...)
		for _, name := range names {
			key := normalizeName(name)
			if key == "" {
				continue
			}
			if prev, ok := r.byName[key]; ok && prev != a.ID {
				return nil, fmt.Errorf("%w: name %q maps to both %q and %q", ErrActorConflict, name, prev, a.ID)
			}
			r.byName[key] = a.ID
		}
	}
	for _, n := range narrators {
		key := normalizeName(n)
		if key == "" {
			continue
		}
		r.narrator[key] = true
	}
	return r, nil
}

// Actors returns the registered actor list in registration order.
func (r *Registry) Actors() []Actor { return r.actors }

// Narrators returns the narrator name set as supplied.
func (r *Registry) Narrators() []string { return r.narrators }

// Resolve maps an author string to an actor id.
func (r *Registry) Resolve(author string) (string, bool) {
	id, ok := r.byName[normalizeName(author)]
	return id, ok
}

// IsNarrator reports whether the author belongs to the narrator name set.
// Narrator status wins over actor registration for the same name.
func (r *Registry) IsNarrator(author string) bool {
	return r.narrator[normalizeName(author)]
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// registryFile is the on-disk YAML shape for LoadRegistryFile.
type registryFile struct {
	Narrators []string `yaml:"narrators"`
	Actors    []Actor  `yaml:"actors"`
}

// LoadRegistryFile reads an actors YAML file:
//
//	narrators: [DM]
//	actors:
//	  - id: aria
//	    name: Aria
//	    aliases: [Ari]
func LoadRegistryFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actors file: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse actors file: %w", err)
	}
	if len(f.Narrators) == 0 {
		return nil, fmt.Errorf("%w: actors file %s names no narrators", ErrActorConflict, path)
	}
	return NewRegistry(f.Actors, f.Narrators)
}

// InferRegistry builds a registry for logs without an actors file: every
// distinct non-narrator author becomes an actor, keyed by its normalized
// name, in first-appearance order.
func InferRegistry(lines []Line, narrators []string) (*Registry, error) {
	narrator := make(map[string]bool, len(narrators))
	for _, n := range narrators {
		narrator[normalizeName(n)] = true
	}

	var actors []Actor
	seen := make(map[string]bool)
	for _, ln := range lines {
		key := normalizeName(ln.Author)
		if key == "" || narrator[key] || seen[key] {
			continue
		}
		seen[key] = true
		actors = append(actors, Actor{ID: key, Name: strings.TrimSpace(ln.Author)})
	}
	return NewRegistry(actors, narrators)
}
