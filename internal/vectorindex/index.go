package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"StudyChat/internal/document"
)

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dimension() int
}

// Index is an in-memory brute-force cosine-similarity index over passages.
// Each index is exclusively owned by one session.
type Index struct {
	mu       sync.RWMutex
	embedder Embedder
	passages []document.Passage
	vectors  [][]float64
}

func New(embedder Embedder) *Index {
	return &Index{embedder: embedder}
}

// Build embeds every passage and replaces the index contents.
func (ix *Index) Build(ctx context.Context, passages []document.Passage) error {
	vectors := make([][]float64, len(passages))
	for i := range passages {
		vec, err := ix.embedder.Embed(ctx, passages[i].Text)
		if err != nil {
			return fmt.Errorf("failed to embed passage %d: %w", i, err)
		}
		vectors[i] = vec
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.passages = append([]document.Passage(nil), passages...)
	ix.vectors = vectors
	return nil
}

// Search returns the topK passages most similar to the query text, ordered by
// descending cosine similarity.
func (ix *Index) Search(ctx context.Context, query string, topK int) ([]document.Passage, error) {
	if topK <= 0 {
		topK = 4
	}

	queryVec, err := ix.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(ix.vectors))
	for i := range ix.vectors {
		scores[i] = scored{i, Cosine(ix.vectors[i], queryVec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	if topK > len(scores) {
		topK = len(scores)
	}
	results := make([]document.Passage, 0, topK)
	for i := 0; i < topK; i++ {
		results = append(results, ix.passages[scores[i].idx])
	}
	return results, nil
}

// Len reports the number of indexed passages.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.passages)
}

// Cosine computes dot(a,b) / (|a||b|). A zero-magnitude vector scores 0
// rather than NaN.
func Cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
