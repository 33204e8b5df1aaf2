// Package mask provides the reference eligibility-mask and cause-class
// provider. Used by the CLI to screen transcripts before analysis; the
// engine itself only ever consumes the boolean output.
package mask

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// oocPatterns match lines that are table talk rather than play; the name
// becomes the recorded exclusion reason.
var oocPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`^\s*\(\(.*\)\)\s*$`), "ooc-aside"},
	{regexp.MustCompile(`(?i)^\s*[(\[]\s*ooc\b`), "ooc-aside"},
	{regexp.MustCompile(`^\s*\[.*\]\s*$`), "ooc-aside"},
	{regexp.MustCompile(`(?i)^\s*[!/]r(oll)?\b`), "dice-command"},
	{regexp.MustCompile(`(?i)^\s*\d*d\d+\s*([+-]\s*\d+)?\s*$`), "dice-command"},
	{regexp.MustCompile(`(?i)\brolls?\s+\d*d\d+\b`), "dice-roll"},
	{regexp.MustCompile(`(?i)^\s*(https?://\S+\s*)+$`), "link-only"},
	{regexp.MustCompile(`(?i)\b(joined|left)\s+the\s+(game|server|channel)\b`), "presence"},
}

// weakPatterns veto a strong classification: questions and hedged intents
// stay weak causes no matter what verbs they contain.
var weakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\?\s*$`),
	regexp.MustCompile(`(?i)^\s*(can|could|should|would|may|might|shall|do|does|did|is|are|was|were|what|where|when|who|why|how)\b`),
	regexp.MustCompile(`(?i)^\s*i\s+(think|guess|suppose|wonder|hope|want\s+to|wanna|would|could|might|may|try\s+to|attempt\s+to)\b`),
}

// strongPatterns match committed first-person or imperative action
// statements, the cause class that clears the lower linking bar.
var strongPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*i\s+\w+\s+(the|a|an|my|his|her|their|its|our)\b`),
	regexp.MustCompile(`(?i)^\s*i\s+(attack|strike|charge|leap|jump|climb|sprint|run|dodge|duck|hide|fire|shoot)\b`),
	regexp.MustCompile(`(?i)^\s*(go|run|take|grab|hold|stop|wait|attack|fire|push|pull|follow)\s+`),
}

// Build screens a transcript with the out-of-character heuristics and
// returns a mask with one reasoned exclusion range per contiguous flagged
// stretch. Content-based only: authorship plays no part here, the engine
// already routes lines by author.
func Build(lines []transcript.Line) transcript.Mask {
	m := transcript.AllEligible(len(lines))

	start, reason := -1, ""
	flush := func(end int) {
		if start >= 0 {
			m.Exclude(start, end, reason)
			start, reason = -1, ""
		}
	}
	for i, ln := range lines {
		name := flag(ln.Content)
		if name == "" {
			flush(i - 1)
			continue
		}
		if start >= 0 && name != reason {
			flush(i - 1)
		}
		if start < 0 {
			start, reason = i, name
		}
	}
	flush(len(lines) - 1)
	return m
}

// flag returns the matching exclusion reason, or "" for an eligible line.
func flag(content string) string {
	for _, p := range oocPatterns {
		if p.re.MatchString(content) {
			return p.name
		}
	}
	return ""
}

// Classify assigns cause classes to registered actor lines. Only strong
// classifications are recorded: an absent entry already means weak, so the
// map stays sparse and serializes small.
func Classify(lines []transcript.Line, reg *transcript.Registry) transcript.CauseClasses {
	classes := make(transcript.CauseClasses)
	for _, ln := range lines {
		if reg.IsNarrator(ln.Author) {
			continue
		}
		if _, ok := reg.Resolve(ln.Author); !ok {
			continue
		}
		if isStrong(ln.Content) {
			classes[ln.Index] = transcript.CauseStrong
		}
	}
	return classes
}

func isStrong(content string) bool {
	for _, re := range weakPatterns {
		if re.MatchString(content) {
			return false
		}
	}
	for _, re := range strongPatterns {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

// LoadFile reads a sidecar mask JSON file ({eligible, exclusions}) and
// validates it against a transcript of n lines before returning it.
func LoadFile(path string, n int) (transcript.Mask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return transcript.Mask{}, fmt.Errorf("failed to read mask file: %w", err)
	}
	var m transcript.Mask
	if err := json.Unmarshal(data, &m); err != nil {
		return transcript.Mask{}, fmt.Errorf("failed to parse mask file: %w", err)
	}
	if err := m.Validate(n); err != nil {
		return transcript.Mask{}, err
	}
	return m, nil
}
