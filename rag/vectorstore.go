package rag

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ragmesh/ragmesh/observability"
)

// Record is one embedded chunk held by the store.
type Record struct {
	ID       string
	Text     string
	Vector   []float64
	Metadata map[string]any

	seq uint64
}

// SearchResult pairs a record with its similarity to the query vector.
type SearchResult struct {
	Record *Record
	Score  float64
}

// VectorStore is an in-memory similarity index. Records are scanned
// exhaustively on search and kept in insertion order, which also decides
// ties between equal scores. The store is bounded: once MaxRecords is
// exceeded, the oldest records are evicted first.
type VectorStore struct {
	mu         sync.RWMutex
	records    []*Record
	maxRecords int
	nextSeq    uint64
}

// NewVectorStore creates a store holding at most maxRecords records.
// Non-positive maxRecords means unbounded.
func NewVectorStore(maxRecords int) *VectorStore {
	return &VectorStore{maxRecords: maxRecords}
}

// Add inserts an embedded chunk and returns its assigned ID.
func (s *VectorStore) Add(text string, vector []float64, metadata map[string]any) string {
	rec := &Record{
		ID:       uuid.New().String(),
		Text:     text,
		Vector:   append([]float64(nil), vector...),
		Metadata: metadata,
	}

	s.mu.Lock()
	rec.seq = s.nextSeq
	s.nextSeq++
	s.records = append(s.records, rec)

	evicted := 0
	if s.maxRecords > 0 && len(s.records) > s.maxRecords {
		evicted = len(s.records) - s.maxRecords
		s.records = append([]*Record(nil), s.records[evicted:]...)
	}
	size := len(s.records)
	s.mu.Unlock()

	for i := 0; i < evicted; i++ {
		observability.RecordVectorEviction()
	}
	observability.SetVectorRecords(size)

	return rec.ID
}

// Search returns the min(k, Len()) records most similar to the query vector,
// best first. Equal scores resolve in insertion order. An empty store yields
// an empty result set.
func (s *VectorStore) Search(vector []float64, k int) []SearchResult {
	if k <= 0 {
		return nil
	}

	s.mu.RLock()
	results := make([]SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		results = append(results, SearchResult{
			Record: rec,
			Score:  cosineSimilarity(vector, rec.Vector),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Record.seq < results[j].Record.seq
	})

	if k < len(results) {
		results = results[:k]
	}
	return results
}

// Clear removes every record.
func (s *VectorStore) Clear() {
	s.mu.Lock()
	s.records = nil
	s.mu.Unlock()
	observability.SetVectorRecords(0)
}

// Len returns the number of stored records.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// The epsilon keeps zero vectors from dividing by zero.
func cosineSimilarity(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + 1e-10)
}
