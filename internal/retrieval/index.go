// Package retrieval builds an in-memory semantic index over the NOC reference
// corpus and answers nearest-neighbour queries against it.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// QueryEmbedder embeds search queries into the corpus vector space.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Index is immutable once built and safe for concurrent Search calls.
type Index struct {
	chunks   []string
	vectors  [][]float32
	norms    []float64
	embedder QueryEmbedder
}

// NewIndex assembles an index from chunks and their embeddings.
func NewIndex(chunks []string, vectors [][]float32, embedder QueryEmbedder) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if len(chunks) > 0 && embedder == nil {
		return nil, errors.New("query embedder is required")
	}

	norms := make([]float64, len(vectors))
	for i, v := range vectors {
		norms[i] = norm(v)
	}

	return &Index{
		chunks:   append([]string(nil), chunks...),
		vectors:  vectors,
		norms:    norms,
		embedder: embedder,
	}, nil
}

// Len returns the number of indexed chunks.
func (i *Index) Len() int {
	if i == nil {
		return 0
	}
	return len(i.chunks)
}

type hit struct {
	pos   int
	score float64
}

// Search returns up to k chunks ordered by descending cosine similarity to
// query. An empty query, an empty corpus or k <= 0 yield no results.
func (i *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	query = strings.TrimSpace(query)
	if i.Len() == 0 || query == "" || k <= 0 {
		return []string{}, nil
	}

	q, err := i.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	qn := norm(q)

	hits := make([]hit, 0, len(i.vectors))
	for pos, v := range i.vectors {
		if len(v) != len(q) {
			continue
		}
		hits = append(hits, hit{pos: pos, score: cosine(q, v, qn, i.norms[pos])})
	}

	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	k = min(k, len(hits))
	out := make([]string, 0, k)
	for _, h := range hits[:k] {
		out = append(out, i.chunks[h.pos])
	}
	return out, nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, an, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}
