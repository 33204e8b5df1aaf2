package store

import (
	"math"
	"strings"
)

// LineEmbedder turns a transcript line into a fixed-size feature vector for
// similarity search. It is fully deterministic: the same content always
// produces the same vector, so archived runs stay replayable byte for byte.
type LineEmbedder struct {
	dimensions int
	ngramSizes []int
	stopwords  map[string]bool
}

// NewLineEmbedder returns the embedder used for the line search index.
func NewLineEmbedder() *LineEmbedder {
	return &LineEmbedder{
		dimensions: 256,
		ngramSizes: []int{1, 2}, // Unigrams and bigrams
		stopwords:  buildStopwords(),
	}
}

// buildStopwords returns common English stopwords
func buildStopwords() map[string]bool {
	words := []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "from", "as", "is", "was", "are", "were", "been",
		"be", "have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "must", "shall", "can", "it", "its", "this",
		"that", "these", "those", "i", "you", "he", "she", "we", "they", "what",
		"which", "who", "where", "when", "why", "how", "all", "each", "some",
		"no", "nor", "not", "only", "so", "than", "too", "very", "just", "now",
	}
	m := make(map[string]bool)
	for _, w := range words {
		m[w] = true
	}
	return m
}

// Semantic categories for boosting related table-talk terms
var semanticCategories = map[string][]string{
	"combat":   {"attack", "strike", "hit", "swing", "stab", "shoot", "fire", "parry", "block", "dodge", "wound", "damage", "slay", "kill", "fight", "charge", "ambush"},
	"movement": {"run", "walk", "climb", "jump", "leap", "sneak", "crawl", "ride", "swim", "flee", "follow", "enter", "leave", "approach", "retreat", "cross"},
	"speech":   {"say", "says", "ask", "asks", "tell", "tells", "shout", "shouts", "whisper", "whispers", "reply", "replies", "call", "calls", "answer"},
	"magic":    {"cast", "spell", "ritual", "scroll", "potion", "enchant", "curse", "ward", "summon", "banish", "arcane", "divine", "mana"},
	"object":   {"door", "chest", "key", "rope", "torch", "lantern", "sword", "shield", "bow", "map", "lever", "trap", "lock", "coin", "gem"},
	"outcome":  {"opens", "closes", "breaks", "falls", "collapses", "shatters", "succeeds", "fails", "misses", "lands", "dies", "escapes", "triggers"},
}

// Dimensions returns the embedding dimension size.
func (e *LineEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed generates the feature vector for one line of content.
func (e *LineEmbedder) Embed(text string) []float32 {
	embedding := make([]float32, e.dimensions)

	text = strings.ToLower(text)
	words := tokenize(text)

	if len(words) == 0 {
		return embedding
	}

	// 1. N-gram features (60% of dimensions)
	ngramDims := int(float64(e.dimensions) * 0.6)
	e.addNgramFeatures(embedding[:ngramDims], words)

	// 2. Character-level features (20% of dimensions)
	charStart := ngramDims
	charDims := int(float64(e.dimensions) * 0.2)
	e.addCharFeatures(embedding[charStart:charStart+charDims], text)

	// 3. Semantic category features (10% of dimensions)
	semStart := charStart + charDims
	semDims := int(float64(e.dimensions) * 0.1)
	e.addSemanticFeatures(embedding[semStart:semStart+semDims], words)

	// 4. Structural features (10% of dimensions)
	structStart := semStart + semDims
	e.addStructuralFeatures(embedding[structStart:], text, words)

	normalize(embedding)

	return embedding
}

// EmbedBatch generates embeddings for multiple lines.
func (e *LineEmbedder) EmbedBatch(texts []string) [][]float32 {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = e.Embed(text)
	}
	return embeddings
}

// tokenize splits text into words, handling punctuation
func tokenize(text string) []string {
	for _, p := range []string{".", ",", "!", "?", ";", ":", "'", "\"", "(", ")", "[", "]", "{", "}", "\n", "\t"} {
		text = strings.ReplaceAll(text, p, " ")
	}

	words := strings.Fields(text)
	result := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.TrimSpace(word)
		if len(word) > 1 { // Skip single characters
			result = append(result, word)
		}
	}

	return result
}

// addNgramFeatures adds n-gram based features via feature hashing
func (e *LineEmbedder) addNgramFeatures(embedding []float32, words []string) {
	dims := len(embedding)

	for _, n := range e.ngramSizes {
		weight := 1.0 / float32(n) // Smaller n-grams get more weight

		for i := 0; i <= len(words)-n; i++ {
			ngram := strings.Join(words[i:i+n], " ")

			// Skip bare stopword unigrams
			allStop := true
			for j := i; j < i+n; j++ {
				if !e.stopwords[words[j]] {
					allStop = false
					break
				}
			}
			if allStop && n == 1 {
				continue
			}

			// Hash to two positions for diversity
			h1 := hashString(ngram)
			h2 := hashString(ngram + "_2")

			idx1 := h1 % dims
			idx2 := h2 % dims

			// Words at the start of a line carry the declaration
			posWeight := float32(1.0)
			if i < 3 {
				posWeight = 1.5
			}

			tfWeight := float32(1.0 + math.Log(float64(1+countOccurrences(words, ngram, n))))

			embedding[idx1] += weight * posWeight * tfWeight
			embedding[idx2] -= weight * posWeight * tfWeight * 0.5
		}
	}
}

// countOccurrences counts how many times an n-gram appears
func countOccurrences(words []string, ngram string, n int) int {
	count := 0
	for i := 0; i <= len(words)-n; i++ {
		if strings.Join(words[i:i+n], " ") == ngram {
			count++
		}
	}
	return count
}

// addCharFeatures adds character-level features (handles typos, variations)
func (e *LineEmbedder) addCharFeatures(embedding []float32, text string) {
	dims := len(embedding)

	// Character trigrams
	for i := 0; i < len(text)-2; i++ {
		trigram := text[i : i+3]
		h := hashString("char_" + trigram)
		idx := h % dims
		embedding[idx] += 0.1
	}

	// Character distribution (vowels, consonants, digits, special)
	vowels := 0
	consonants := 0
	digits := 0
	special := 0

	for _, c := range text {
		switch {
		case strings.ContainsRune("aeiou", c):
			vowels++
		case c >= 'a' && c <= 'z':
			consonants++
		case c >= '0' && c <= '9':
			digits++
		case c != ' ':
			special++
		}
	}

	total := float32(len(text))
	if total > 0 && dims >= 4 {
		embedding[0] = float32(vowels) / total
		embedding[1] = float32(consonants) / total
		embedding[2] = float32(digits) / total
		embedding[3] = float32(special) / total
	}
}

// addSemanticFeatures adds category-based semantic features
func (e *LineEmbedder) addSemanticFeatures(embedding []float32, words []string) {
	dims := len(embedding)
	if dims == 0 {
		return
	}

	categoryScores := make(map[string]float32)

	for _, word := range words {
		for category, keywords := range semanticCategories {
			for _, kw := range keywords {
				if word == kw || strings.Contains(word, kw) {
					categoryScores[category] += 1.0
				}
			}
		}
	}

	categories := []string{"combat", "movement", "speech", "magic", "object", "outcome"}
	for i, cat := range categories {
		if i < dims {
			embedding[i] = categoryScores[cat] / float32(len(words)+1)
		}
	}
}

// addStructuralFeatures adds line structure features
func (e *LineEmbedder) addStructuralFeatures(embedding []float32, text string, words []string) {
	dims := len(embedding)
	if dims < 8 {
		return
	}

	// Length features
	embedding[0] = float32(math.Log(float64(len(text) + 1)))
	embedding[1] = float32(math.Log(float64(len(words) + 1)))

	// Average word length
	totalLen := 0
	for _, w := range words {
		totalLen += len(w)
	}
	if len(words) > 0 {
		embedding[2] = float32(totalLen) / float32(len(words))
	}

	// Sentence count (approximate)
	sentences := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")
	embedding[3] = float32(math.Log(float64(sentences + 1)))

	// Question indicator
	if strings.Contains(text, "?") {
		embedding[4] = 1.0
	}

	// Quoted speech indicator
	if strings.Contains(text, "\"") || strings.Contains(text, "'") {
		embedding[5] = 1.0
	}

	// First-person declaration indicator
	if strings.HasPrefix(text, "i ") {
		embedding[6] = 1.0
	}

	// Exclamation density (emphasis)
	if len(text) > 0 {
		embedding[7] = float32(strings.Count(text, "!")) / float32(len(text))
	}
}

// normalize normalizes a vector to unit length
func normalize(v []float32) {
	var norm float32
	for _, x := range v {
		norm += x * x
	}
	if norm > 0 {
		norm = float32(math.Sqrt(float64(norm)))
		for i := range v {
			v[i] /= norm
		}
	}
}

func hashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
