package transcript

import "fmt"

// Exclusion is a reasoned range of lines withheld from the engine. Ranges
// are inclusive on both ends and refer to line indices.
type Exclusion struct {
	Start  int    `json:"start_index"`
	End    int    `json:"end_index"`
	Reason string `json:"reason"`
}

// Mask is the eligibility filter supplied by an external provider. The
// engine only ever reads the boolean column; exclusion ranges exist for
// audit output and are never re-derived here.
type Mask struct {
	Eligible   []bool      `json:"eligible"`
	Exclusions []Exclusion `json:"exclusions,omitempty"`
}

// AllEligible returns a mask admitting every one of n lines.
func AllEligible(n int) Mask {
	m := Mask{Eligible: make([]bool, n)}
	for i := range m.Eligible {
		m.Eligible[i] = true
	}
	return m
}

// Validate checks the mask against a transcript of n lines: the boolean
// column must cover every line exactly, and every exclusion range must be
// ordered and in bounds.
func (m Mask) Validate(n int) error {
	if len(m.Eligible) != n {
		return fmt.Errorf("%w: mask covers %d lines, transcript has %d", ErrMaskShape, len(m.Eligible), n)
	}
	for _, ex := range m.Exclusions {
		if ex.Start < 0 || ex.End >= n || ex.Start > ex.End {
			return fmt.Errorf("%w: exclusion range [%d,%d] invalid for %d lines", ErrMaskShape, ex.Start, ex.End, n)
		}
	}
	return nil
}

// IsEligible reports whether line i may participate in linking. Out-of-range
// indices are ineligible rather than a panic so scanning loops stay simple.
func (m Mask) IsEligible(i int) bool {
	if i < 0 || i >= len(m.Eligible) {
		return false
	}
	return m.Eligible[i]
}

// Exclude marks the inclusive range [start,end] ineligible and records the
// reason. The recorded range is clipped to the mask bounds so a built mask
// always passes Validate. No-op when the range misses the mask entirely.
func (m *Mask) Exclude(start, end int, reason string) {
	lo, hi := start, end
	if lo < 0 {
		lo = 0
	}
	if hi > len(m.Eligible)-1 {
		hi = len(m.Eligible) - 1
	}
	if lo > hi {
		return
	}
	for i := lo; i <= hi; i++ {
		m.Eligible[i] = false
	}
	m.Exclusions = append(m.Exclusions, Exclusion{Start: lo, End: hi, Reason: reason})
}

// EligibleCount returns how many lines the mask admits.
func (m Mask) EligibleCount() int {
	n := 0
	for _, ok := range m.Eligible {
		if ok {
			n++
		}
	}
	return n
}
