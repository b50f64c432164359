package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// ContextChunk is one retrieved chunk handed to the generator, ranked
// best-first by the retrieval stage.
type ContextChunk struct {
	Text   string
	Source string
	Score  float64
}

// Generator produces the user-facing answer from the query and its retrieved
// context. Implementations must honor ctx cancellation and deadlines.
type Generator interface {
	Generate(ctx context.Context, query string, contexts []ContextChunk) (string, error)
}

// NoContextAnswer is returned when nothing relevant has been ingested yet.
const NoContextAnswer = "I don't have any relevant documents to draw on yet. Upload a document and ask again."

// ExtractiveGenerator answers by quoting the context sentences that overlap
// the query most. It runs without model weights, which keeps the pipeline
// self-contained and the output grounded in the ingested text.
type ExtractiveGenerator struct {
	// MaxSentences bounds how many context sentences the answer quotes.
	MaxSentences int
}

var _ Generator = (*ExtractiveGenerator)(nil)

// NewExtractiveGenerator creates a generator quoting at most maxSentences
// sentences. Non-positive maxSentences defaults to 3.
func NewExtractiveGenerator(maxSentences int) *ExtractiveGenerator {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	return &ExtractiveGenerator{MaxSentences: maxSentences}
}

// Generate selects the context sentences sharing the most terms with the
// query and renders them as the answer. Without usable context it returns
// NoContextAnswer.
func (g *ExtractiveGenerator) Generate(ctx context.Context, query string, contexts []ContextChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(contexts) == 0 {
		return NoContextAnswer, nil
	}

	queryTerms := make(map[string]struct{})
	for _, t := range tokenize(query) {
		queryTerms[t] = struct{}{}
	}

	type scored struct {
		text    string
		overlap int
		rank    int
		pos     int
	}
	var candidates []scored
	for rank, chunk := range contexts {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		for pos, sentence := range splitSentences(chunk.Text) {
			overlap := 0
			for _, t := range tokenize(sentence) {
				if _, ok := queryTerms[t]; ok {
					overlap++
				}
			}
			candidates = append(candidates, scored{
				text:    strings.TrimSpace(sentence),
				overlap: overlap,
				rank:    rank,
				pos:     pos,
			})
		}
	}
	if len(candidates) == 0 {
		return NoContextAnswer, nil
	}

	// Best overlap first; ties fall back to retrieval rank, then to the
	// sentence's position in its chunk.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		if candidates[i].rank != candidates[j].rank {
			return candidates[i].rank < candidates[j].rank
		}
		return candidates[i].pos < candidates[j].pos
	})

	var picked []string
	for _, c := range candidates {
		if len(picked) == g.MaxSentences {
			break
		}
		if c.text == "" {
			continue
		}
		picked = append(picked, c.text)
	}
	if len(picked) == 0 {
		return NoContextAnswer, nil
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("Based on the uploaded documents: %s", strings.Join(picked, " ")), nil
}

// splitSentences breaks text on sentence-ending punctuation and newlines.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
