// Package transcript defines the immutable session inputs consumed by the
// causal engine: ordered speech-act lines, the externally supplied
// eligibility mask, and the actor registry with its narrator name set.
//
// Nothing in this package interprets content. Shape validation lives here so
// that every consumer (engine, importers, CLI) rejects malformed input the
// same way, through the package sentinel errors.
package transcript

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for structural input problems. Callers match with
// errors.Is; the wrapped message carries the offending detail.
var (
	// ErrLineOrder is returned when line indices are not contiguous from zero.
	ErrLineOrder = errors.New("transcript: line indices must be contiguous from zero")

	// ErrMaskShape is returned when a mask does not match the transcript shape.
	ErrMaskShape = errors.New("transcript: mask does not match transcript shape")

	// ErrActorConflict is returned for duplicate actor ids or ambiguous aliases.
	ErrActorConflict = errors.New("transcript: conflicting actor registry entry")

	// ErrClassShape is returned when a cause-class annotation references a
	// line outside the transcript.
	ErrClassShape = errors.New("transcript: cause class references unknown line")
)

// Line is one speech-act record. Index is stable and 0-based; the engine
// measures all distances in index space, never wall-clock time.
type Line struct {
	Index     int       `json:"line_index"`
	Author    string    `json:"author_name"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript is a named, ordered sequence of lines as produced by an
// importer. The engine itself consumes the bare line slice.
type Transcript struct {
	Session string `json:"session"`
	Lines   []Line `json:"lines"`
}

// ValidateLines checks that indices are contiguous from zero in slice order.
func ValidateLines(lines []Line) error {
	for i, ln := range lines {
		if ln.Index != i {
			return fmt.Errorf("%w: position %d has index %d", ErrLineOrder, i, ln.Index)
		}
	}
	return nil
}

// CauseClass is the externally supplied strength classification of a cause
// line. Lines without an annotation are treated as weak.
type CauseClass string

const (
	CauseWeak   CauseClass = "weak"
	CauseStrong CauseClass = "strong"
)

// CauseClasses maps line index to cause class. Absent entries default to weak.
type CauseClasses map[int]CauseClass

// Validate checks that every annotated index refers to a transcript line.
func (c CauseClasses) Validate(n int) error {
	for idx, class := range c {
		if idx < 0 || idx >= n {
			return fmt.Errorf("%w: index %d (transcript has %d lines)", ErrClassShape, idx, n)
		}
		if class != CauseWeak && class != CauseStrong {
			return fmt.Errorf("%w: index %d has class %q", ErrClassShape, idx, class)
		}
	}
	return nil
}

// ClassOf returns the class for a line, defaulting to weak.
func (c CauseClasses) ClassOf(idx int) CauseClass {
	if class, ok := c[idx]; ok {
		return class
	}
	return CauseWeak
}
