package rag

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedderIsDeterministic(t *testing.T) {
	e := NewHashEmbedder(64)

	a, err := e.Embed("Paris is the capital of France")
	require.NoError(t, err)
	b, err := e.Embed("Paris is the capital of France")
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestHashEmbedderDimension(t *testing.T) {
	e := NewHashEmbedder(64)
	vec, err := e.Embed("hello")
	require.NoError(t, err)

	assert.Len(t, vec, 64)
	assert.Equal(t, 64, e.Dimension())
}

func TestHashEmbedderDefaultDimension(t *testing.T) {
	assert.Equal(t, DefaultEmbeddingDim, NewHashEmbedder(0).Dimension())
}

func TestHashEmbedderOutputIsNormalized(t *testing.T) {
	e := NewHashEmbedder(128)
	vec, err := e.Embed("the quick brown fox jumps over the lazy dog")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestHashEmbedderEmptyTextIsZeroVector(t *testing.T) {
	e := NewHashEmbedder(16)
	vec, err := e.Embed("")
	require.NoError(t, err)

	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestHashEmbedderCaseAndPunctuationInsensitive(t *testing.T) {
	e := NewHashEmbedder(64)

	a, _ := e.Embed("Paris, France!")
	b, _ := e.Embed("paris france")

	assert.Equal(t, a, b)
}

func TestHashEmbedderSimilarTextScoresHigher(t *testing.T) {
	e := NewHashEmbedder(256)

	query, _ := e.Embed("capital of France")
	related, _ := e.Embed("Paris is the capital of France")
	unrelated, _ := e.Embed("ohm's law relates voltage and current")

	assert.Greater(t, cosineSimilarity(query, related), cosineSimilarity(query, unrelated))
}
