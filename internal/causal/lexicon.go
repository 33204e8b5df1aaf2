package causal

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/CanopyHQ/heartwood/internal/transcript"
)

// Lexicon carries tokenizer state calibrated once per transcript: the
// common-word filter always, and per-token IDF weights when enabled. A
// lexicon is immutable after construction and safe to share across scoring
// calls within a run.
type Lexicon struct {
	stop   map[string]bool
	idf    map[string]float64
	useIDF bool
}

// BuildLexicon calibrates a lexicon for the given transcript. IDF uses
// document frequency over all lines (masked ones included) so that mask
// edits never shift the scores of lines that stay eligible.
func BuildLexicon(lines []transcript.Line, useIDF bool) *Lexicon {
	lx := &Lexicon{stop: buildStopwords(), useIDF: useIDF}
	if !useIDF {
		return lx
	}

	df := make(map[string]int)
	for _, ln := range lines {
		for _, tok := range lx.Tokenize(ln.Content) {
			df[tok]++ // Tokenize dedupes, so this counts documents
		}
	}
	lx.idf = make(map[string]float64, len(df))
	n := float64(len(lines))
	for tok, d := range df {
		lx.idf[tok] = math.Log(1.0 + n/float64(1+d))
	}
	return lx
}

// Tokenize lowercases, maps punctuation to spaces, drops one-character
// tokens and common words, and returns a sorted, deduplicated token set.
func (lx *Lexicon) Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	set := make(map[string]bool)
	for _, f := range strings.Fields(b.String()) {
		if len(f) <= 1 || lx.stop[f] {
			continue
		}
		set[f] = true
	}

	out := make([]string, 0, len(set))
	for tok := range set {
		out = append(out, tok)
	}
	sort.Strings(out)
	return out
}

// Score returns the weighted overlap/union ratio of two token sets, bounded
// [0,1]. With IDF disabled every token weighs 1.0 and this reduces to plain
// set overlap. Empty sides score zero.
func (lx *Lexicon) Score(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	inB := make(map[string]bool, len(b))
	for _, tok := range b {
		inB[tok] = true
	}

	var overlap, union float64
	inA := make(map[string]bool, len(a))
	for _, tok := range a {
		inA[tok] = true
		w := lx.weight(tok)
		union += w
		if inB[tok] {
			overlap += w
		}
	}
	for _, tok := range b {
		if !inA[tok] {
			union += lx.weight(tok)
		}
	}
	if union == 0 {
		return 0
	}
	s := overlap / union
	if s > 1 {
		s = 1
	}
	return s
}

// weight returns a token's IDF weight, 1.0 when IDF is disabled. Tokens
// never seen at calibration (possible only for text outside the transcript)
// weigh 1.0.
func (lx *Lexicon) weight(tok string) float64 {
	if !lx.useIDF {
		return 1.0
	}
	if w, ok := lx.idf[tok]; ok {
		return w
	}
	return 1.0
}

// mergeTokens unions two sorted token sets into a new sorted set.
func mergeTokens(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// buildStopwords returns the common-word filter: glue words plus the chat
// filler that dominates live-session logs and would otherwise swamp overlap
// scores.
func buildStopwords() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "of", "to", "in", "on", "at",
		"is", "are", "was", "were", "be", "been", "being", "am",
		"i", "you", "he", "she", "it", "we", "they",
		"my", "your", "his", "her", "its", "our", "their",
		"me", "him", "them", "us",
		"this", "that", "these", "those",
		"with", "for", "from", "as", "by", "about", "into", "over", "under",
		"do", "does", "did", "done", "have", "has", "had",
		"will", "would", "can", "could", "should", "shall", "may", "might",
		"not", "no", "yes", "if", "then", "than", "there", "here",
		"what", "when", "where", "who", "whom", "how", "why", "which",
		"all", "any", "some", "just", "very", "really", "quite",
		"get", "got", "gets", "go", "goes", "going", "gonna", "wanna",
		"ok", "okay", "oh", "ah", "um", "uh", "hmm", "hey", "yeah", "nah",
		"like", "well", "now", "so", "too", "also", "out", "up", "down", "back",
	}
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
