package rag

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder maps text to a fixed-dimension vector. Implementations must be
// deterministic: identical input always yields an identical vector.
type Embedder interface {
	Embed(text string) ([]float64, error)
	Dimension() int
}

// DefaultEmbeddingDim is the dimension of the built-in embedder.
const DefaultEmbeddingDim = 256

// HashEmbedder is a deterministic bag-of-words embedder. Each token hashes
// into one of Dimension() buckets via FNV-1a, counts accumulate, and the
// result is L2-normalized. It captures lexical overlap, not semantics, and
// needs no model weights.
type HashEmbedder struct {
	dim int
}

var _ Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a HashEmbedder. Non-positive dim falls back to
// DefaultEmbeddingDim.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}
	return &HashEmbedder{dim: dim}
}

// Dimension returns the vector dimension.
func (e *HashEmbedder) Dimension() int { return e.dim }

// Embed produces the normalized token-count vector for text. Text with no
// tokens yields the zero vector.
func (e *HashEmbedder) Embed(text string) ([]float64, error) {
	vec := make([]float64, e.dim)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// tokenize lowercases and splits on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
