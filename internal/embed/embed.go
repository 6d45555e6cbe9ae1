// Package embed turns memory content into vectors. Two providers exist:
// a deterministic local hash embedder that needs no network, and a remote
// OpenAI-compatible client with bounded concurrency and retry.
package embed

import (
	"context"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	// LocalDimensions is the vector dimension of the local hash embedder.
	LocalDimensions = 384

	// MaxEmbedChars caps the text fed to a provider. Longer content is
	// truncated; the stored payload is never touched.
	MaxEmbedChars = 8000
)

// Provider generates vector embeddings for text. Implementations must be
// safe for concurrent use.
type Provider interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// Tag identifies the provider+model; stored per memory so a provider
	// change can trigger lazy re-embedding.
	Tag() string

	// Available checks if the provider is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// NormalizeText canonicalizes text before embedding: NFC normalization,
// whitespace collapse, and truncation to MaxEmbedChars runes.
func NormalizeText(text string) string {
	text = norm.NFC.String(text)
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) > MaxEmbedChars {
		text = string(runes[:MaxEmbedChars])
	}
	return text
}

// normalizeVector scales a vector to unit length. Zero vectors stay zero.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	inv := float32(1.0 / magnitude)
	for i := range v {
		v[i] *= inv
	}
	return v
}
