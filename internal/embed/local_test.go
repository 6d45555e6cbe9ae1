package embed

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestLocalEmbedder_Deterministic(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	v1, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "the quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1, LocalDimensions)
}

func TestLocalEmbedder_UnitLength(t *testing.T) {
	e := NewLocalEmbedder()

	v, err := e.Embed(context.Background(), "vectors should be normalized to unit length")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, dot(v, v), 1e-5)
}

func TestLocalEmbedder_EmptyInputIsZeroVector(t *testing.T) {
	e := NewLocalEmbedder()

	v, err := e.Embed(context.Background(), "   \n\t  ")
	require.NoError(t, err)

	require.Len(t, v, LocalDimensions)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestLocalEmbedder_SimilarTextsScoreHigher(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	a, err := e.Embed(ctx, "golang concurrency patterns with channels")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "concurrency in golang using channels")
	require.NoError(t, err)
	c, err := e.Embed(ctx, "baking sourdough bread at home")
	require.NoError(t, err)

	assert.Greater(t, dot(a, b), dot(a, c))
}

func TestLocalEmbedder_IdentifierSplitting(t *testing.T) {
	// camelCase and snake_case collapse to the same word features
	e := NewLocalEmbedder()
	ctx := context.Background()

	camel, err := e.Embed(ctx, "parseJSON")
	require.NoError(t, err)
	spaced, err := e.Embed(ctx, "parse json")
	require.NoError(t, err)

	assert.Equal(t, camel, spaced)
}

func TestLocalEmbedder_Batch(t *testing.T) {
	e := NewLocalEmbedder()
	ctx := context.Background()

	vecs, err := e.EmbedBatch(ctx, []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := e.Embed(ctx, "first")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])

	empty, err := e.EmbedBatch(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocalEmbedder_Closed(t *testing.T) {
	e := NewLocalEmbedder()
	require.True(t, e.Available(context.Background()))

	require.NoError(t, e.Close())

	assert.False(t, e.Available(context.Background()))
	_, err := e.Embed(context.Background(), "text")
	assert.Error(t, err)
}

func TestLocalEmbedder_TagAndDimensions(t *testing.T) {
	e := NewLocalEmbedder()
	assert.Equal(t, "local-hash-v1", e.Tag())
	assert.Equal(t, 384, e.Dimensions())
}

func TestNormalizeText(t *testing.T) {
	// Whitespace runs collapse
	assert.Equal(t, "a b c", NormalizeText("  a\n\tb   c  "))

	// NFC composition: e + combining acute == precomposed é
	composed := NormalizeText("café")
	decomposed := NormalizeText("café")
	assert.Equal(t, composed, decomposed)

	// Long input truncates to the embed budget
	long := make([]byte, 3*MaxEmbedChars)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, NormalizeText(string(long)), MaxEmbedChars)
}

func TestNormalizeVector_ZeroStaysZero(t *testing.T) {
	v := normalizeVector(make([]float32, 4))
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestHashFeature_SignedAndBounded(t *testing.T) {
	seenPositive, seenNegative := false, false
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta",
		"eta", "theta", "iota", "kappa"}
	for _, w := range words {
		idx, sign := hashFeature(w)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, LocalDimensions)
		if sign > 0 {
			seenPositive = true
		} else {
			seenNegative = true
		}
		assert.InDelta(t, 1.0, math.Abs(float64(sign)), 1e-9)
	}
	assert.True(t, seenPositive)
	assert.True(t, seenNegative)
}
