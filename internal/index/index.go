package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrNotIndexed is returned by Query before the first successful Rebuild.
var ErrNotIndexed = errors.New("index has not been built yet")

// DocumentEmbedder computes one vector per document.
type DocumentEmbedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Document is a caller-supplied unit of indexable content.
type Document struct {
	Identifier string `json:"identifier"`
	Content    string `json:"content"`
}

// Record is a document plus its embedding, fixed once indexed.
type Record struct {
	Identifier string
	Content    string
	Embedding  []float32
}

// Match is a scored query result.
type Match struct {
	Identifier string  `json:"identifier"`
	Content    string  `json:"content"`
	Score      float64 `json:"score"`
}

// snapshot is one immutable index generation. Readers always observe a
// complete generation; Rebuild swaps the pointer atomically.
type snapshot struct {
	records []Record
}

// Index is an in-memory cosine-similarity index over document embeddings.
type Index struct {
	embedder DocumentEmbedder
	topK     int
	current  atomic.Pointer[snapshot]
}

// New builds an empty index. topK is the default result count for Query.
func New(embedder DocumentEmbedder, topK int) *Index {
	if topK <= 0 {
		topK = 3
	}
	return &Index{embedder: embedder, topK: topK}
}

// Rebuild embeds every document concurrently and replaces the entire index
// contents with the new record set. Results are collected positionally so
// record order matches input order. Returns the new record count.
func (ix *Index) Rebuild(ctx context.Context, docs []Document) (int, error) {
	records := make([]Record, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	for i, doc := range docs {
		g.Go(func() error {
			vec, err := ix.embedder.EmbedDocument(gctx, doc.Content)
			if err != nil {
				return fmt.Errorf("embed document %q: %w", doc.Identifier, err)
			}
			records[i] = Record{Identifier: doc.Identifier, Content: doc.Content, Embedding: vec}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	ix.current.Store(&snapshot{records: records})
	return len(records), nil
}

// Query embeds the text and returns up to topK records ranked by descending
// cosine similarity. Equal scores keep insertion order. topK <= 0 uses the
// index default.
func (ix *Index) Query(ctx context.Context, text string, topK int) ([]Match, error) {
	snap := ix.current.Load()
	if snap == nil {
		return nil, ErrNotIndexed
	}
	if topK <= 0 {
		topK = ix.topK
	}

	queryVec, err := ix.embedder.EmbedDocument(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches := make([]Match, 0, len(snap.records))
	for _, rec := range snap.records {
		matches = append(matches, Match{
			Identifier: rec.Identifier,
			Content:    rec.Content,
			Score:      CosineSimilarity(queryVec, rec.Embedding),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Size returns the record count of the current generation, 0 when unbuilt.
func (ix *Index) Size() int {
	snap := ix.current.Load()
	if snap == nil {
		return 0
	}
	return len(snap.records)
}

// CosineSimilarity computes dot(a,b) / (||a||*||b||), defined as 0 when
// either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
