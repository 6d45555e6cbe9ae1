package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// localTag identifies the hashing scheme. Bump on any change to the
// feature extraction so existing vectors are re-embedded.
const localTag = "local-hash-v1"

// Feature weights for vector generation
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// commonStopWords are high-frequency English words that carry no signal.
var commonStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "of": true, "to": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "this": true,
	"that": true, "it": true, "its": true, "as": true, "by": true,
	"from": true, "not": true, "have": true, "has": true, "had": true,
}

// tokenRegex matches alphanumeric sequences.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9]+`)

// LocalEmbedder generates embeddings by feature hashing: tokens (weight
// 0.7) and character trigrams (weight 0.3) are FNV-64 hashed to a
// dimension, with a hash-derived sign to spread collisions. Deterministic,
// no network, no model download; reduced semantic quality.
type LocalEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

// NewLocalEmbedder creates a local hash embedder.
func NewLocalEmbedder() *LocalEmbedder {
	return &LocalEmbedder{}
}

// Embed generates the embedding for a single text.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	trimmed := NormalizeText(text)
	if trimmed == "" {
		return make([]float32, LocalDimensions), nil
	}

	return normalizeVector(e.generateVector(trimmed)), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int { return LocalDimensions }

// Tag returns the provider tag.
func (e *LocalEmbedder) Tag() string { return localTag }

// Available reports readiness; the local embedder is always ready until
// closed.
func (e *LocalEmbedder) Available(ctx context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *LocalEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// generateVector accumulates signed hashed features.
func (e *LocalEmbedder) generateVector(text string) []float32 {
	vector := make([]float32, LocalDimensions)

	for _, token := range filterStopWords(tokenize(text)) {
		idx, sign := hashFeature(token)
		vector[idx] += sign * tokenWeight
	}

	normalized := normalizeForNgrams(text)
	for _, ngram := range extractNgrams(normalized, ngramSize) {
		idx, sign := hashFeature(ngram)
		vector[idx] += sign * ngramWeight
	}

	return vector
}

// hashFeature maps a feature to a dimension and a sign. The low bits pick
// the index, the top bit the sign.
func hashFeature(s string) (int, float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	sum := h.Sum64()

	idx := int(sum % uint64(LocalDimensions))
	sign := float32(1)
	if sum>>63 == 1 {
		sign = -1
	}
	return idx, sign
}

// tokenize splits text into lowercase tokens, splitting camelCase and
// snake_case identifiers so technical notes match well.
func tokenize(text string) []string {
	var tokens []string
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range splitIdentifier(word) {
			lower := strings.ToLower(t)
			if lower != "" {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// splitIdentifier splits snake_case, then camelCase within each part.
func splitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

// splitCamelCase splits camelCase identifiers, keeping acronyms together.
func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func filterStopWords(tokens []string) []string {
	var filtered []string
	for _, t := range tokens {
		if !commonStopWords[t] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// normalizeForNgrams keeps only letters and digits, lowercased.
func normalizeForNgrams(text string) string {
	var result strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// extractNgrams extracts n-character sliding windows.
func extractNgrams(text string, n int) []string {
	if len(text) < n {
		return []string{}
	}
	ngrams := make([]string, 0, len(text)-n+1)
	for i := 0; i <= len(text)-n; i++ {
		ngrams = append(ngrams, text[i:i+n])
	}
	return ngrams
}
