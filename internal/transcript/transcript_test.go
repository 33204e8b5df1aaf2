package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidateLines(t *testing.T) {
	tests := []struct {
		name    string
		lines   []Line
		wantErr bool
	}{
		{"empty", nil, false},
		{"contiguous", []Line{{Index: 0}, {Index: 1}, {Index: 2}}, false},
		{"gap", []Line{{Index: 0}, {Index: 2}}, true},
		{"offset start", []Line{{Index: 1}, {Index: 2}}, true},
		{"duplicate", []Line{{Index: 0}, {Index: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLines(tt.lines)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLines() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrLineOrder) {
				t.Errorf("error should wrap ErrLineOrder, got %v", err)
			}
		})
	}
}

func TestMaskValidate(t *testing.T) {
	tests := []struct {
		name    string
		mask    Mask
		n       int
		wantErr bool
	}{
		{"matching length", AllEligible(3), 3, false},
		{"short column", Mask{Eligible: []bool{true}}, 3, true},
		{"long column", AllEligible(5), 3, true},
		{"valid range", Mask{Eligible: []bool{true, false, true}, Exclusions: []Exclusion{{Start: 1, End: 1, Reason: "ooc"}}}, 3, false},
		{"range out of bounds", Mask{Eligible: []bool{true, true, true}, Exclusions: []Exclusion{{Start: 1, End: 5, Reason: "ooc"}}}, 3, true},
		{"inverted range", Mask{Eligible: []bool{true, true, true}, Exclusions: []Exclusion{{Start: 2, End: 1, Reason: "ooc"}}}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mask.Validate(tt.n)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrMaskShape) {
				t.Errorf("error should wrap ErrMaskShape, got %v", err)
			}
		})
	}
}

func TestMaskExclude(t *testing.T) {
	m := AllEligible(10)
	m.Exclude(2, 4, "dice rolls")

	for i := 0; i < 10; i++ {
		want := i < 2 || i > 4
		if m.IsEligible(i) != want {
			t.Errorf("IsEligible(%d) = %v, want %v", i, m.IsEligible(i), want)
		}
	}
	if len(m.Exclusions) != 1 || m.Exclusions[0].Reason != "dice rolls" {
		t.Errorf("exclusion not recorded: %+v", m.Exclusions)
	}

	// Ranges are clipped so the mask still validates.
	m.Exclude(8, 20, "trailing noise")
	if err := m.Validate(10); err != nil {
		t.Errorf("clipped mask should validate, got %v", err)
	}
	if m.Exclusions[1].End != 9 {
		t.Errorf("range should be clipped to 9, got %d", m.Exclusions[1].End)
	}

	// A range entirely outside the mask is dropped.
	m.Exclude(30, 40, "nowhere")
	if len(m.Exclusions) != 2 {
		t.Errorf("out-of-range exclusion should be dropped, have %d", len(m.Exclusions))
	}

	if m.IsEligible(-1) || m.IsEligible(10) {
		t.Error("out-of-range lines must be ineligible")
	}
	if m.EligibleCount() != 5 {
		t.Errorf("EligibleCount() = %d, want 5", m.EligibleCount())
	}
}

func TestCauseClasses(t *testing.T) {
	c := CauseClasses{0: CauseStrong, 3: CauseWeak}

	if err := c.Validate(4); err != nil {
		t.Fatalf("valid classes rejected: %v", err)
	}
	if err := (CauseClasses{5: CauseStrong}).Validate(4); !errors.Is(err, ErrClassShape) {
		t.Errorf("out-of-range class should wrap ErrClassShape, got %v", err)
	}
	if err := (CauseClasses{1: "loud"}).Validate(4); !errors.Is(err, ErrClassShape) {
		t.Errorf("unknown class should wrap ErrClassShape, got %v", err)
	}

	if got := c.ClassOf(0); got != CauseStrong {
		t.Errorf("ClassOf(0) = %v, want strong", got)
	}
	if got := c.ClassOf(2); got != CauseWeak {
		t.Errorf("ClassOf(2) = %v, want weak default", got)
	}
}

func TestNewRegistry(t *testing.T) {
	actors := []Actor{
		{ID: "aria", Name: "Aria", Aliases: []string{"Ari"}},
		{ID: "brand", Name: "Brand"},
	}

	r, err := NewRegistry(actors, []string{"DM"})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}

	if id, ok := r.Resolve("aria"); !ok || id != "aria" {
		t.Errorf("Resolve(aria) = %q, %v", id, ok)
	}
	if id, ok := r.Resolve("  ARI "); !ok || id != "aria" {
		t.Errorf("alias resolution should be case-insensitive and trimmed, got %q, %v", id, ok)
	}
	if _, ok := r.Resolve("stranger"); ok {
		t.Error("unknown author should not resolve")
	}
	if !r.IsNarrator("dm") {
		t.Error("narrator matching should be case-insensitive")
	}
	if r.IsNarrator("Aria") {
		t.Error("actor should not be narrator")
	}
}

func TestNewRegistryConflicts(t *testing.T) {
	tests := []struct {
		name   string
		actors []Actor
	}{
		{"duplicate id", []Actor{{ID: "a", Name: "Aria"}, {ID: "a", Name: "Anya"}}},
		{"empty id", []Actor{{ID: "", Name: "Aria"}}},
		{"alias collision", []Actor{{ID: "a", Name: "Aria"}, {ID: "b", Name: "Brand", Aliases: []string{"Aria"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.actors, []string{"DM"})
			if !errors.Is(err, ErrActorConflict) {
				t.Errorf("want ErrActorConflict, got %v", err)
			}
		})
	}
}

func TestLoadRegistryFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actors.yaml")
	content := `narrators: [DM, "Game Master"]
actors:
  - id: aria
    name: Aria
    aliases: [Ari]
  - id: brand
    name: Brand
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRegistryFile(path)
	if err != nil {
		t.Fatalf("LoadRegistryFile failed: %v", err)
	}
	if !r.IsNarrator("game master") {
		t.Error("second narrator name not registered")
	}
	if id, ok := r.Resolve("Ari"); !ok || id != "aria" {
		t.Errorf("alias from file should resolve, got %q, %v", id, ok)
	}
	if len(r.Actors()) != 2 {
		t.Errorf("Actors() = %d entries, want 2", len(r.Actors()))
	}

	// Missing narrator list is a hard error, not a silent default.
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("actors: []\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRegistryFile(bad); err == nil {
		t.Error("actors file without narrators should fail")
	}
}

func TestInferRegistry(t *testing.T) {
	lines := []Line{
		{Index: 0, Author: "Aria", Content: "I douse the lantern"},
		{Index: 1, Author: "DM", Content: "The corridor goes black"},
		{Index: 2, Author: "aria ", Content: "I wave the others on"},
		{Index: 3, Author: "Brand", Content: "I follow"},
		{Index: 4, Author: "", Content: "system line"},
	}

	r, err := InferRegistry(lines, []string{"DM"})
	if err != nil {
		t.Fatalf("InferRegistry failed: %v", err)
	}

	actors := r.Actors()
	if len(actors) != 2 {
		t.Fatalf("Actors() = %d entries, want 2", len(actors))
	}
	if actors[0].ID != "aria" || actors[1].ID != "brand" {
		t.Errorf("actors not in first-appearance order: %+v", actors)
	}
	if id, ok := r.Resolve("ARIA"); !ok || id != "aria" {
		t.Errorf("case variant should resolve to same actor, got %q, %v", id, ok)
	}
	if !r.IsNarrator("dm") {
		t.Error("narrator name not registered")
	}
	if _, ok := r.Resolve("DM"); ok {
		t.Error("narrator should not be registered as an actor")
	}
}
