package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tensor-ninja/agent-fix/internal/chunk"
)

// Service aggregates chunk embeddings into one vector per document.
type Service struct {
	embedder Embedder
	splitter *chunk.Splitter
}

// NewService wires an embedder to a splitter.
func NewService(embedder Embedder, splitter *chunk.Splitter) *Service {
	return &Service{embedder: embedder, splitter: splitter}
}

// EmbedDocument embeds a document of any length. Oversized documents are
// split, embedded concurrently, and averaged element-wise; a short trailing
// chunk contributes equally to the mean.
func (s *Service) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	segments := s.splitter.Split(text)
	if len(segments) == 1 {
		return s.embedder.Embed(ctx, segments[0])
	}

	vectors := make([][]float32, len(segments))
	g, gctx := errgroup.WithContext(ctx)
	for i, seg := range segments {
		g.Go(func() error {
			vec, err := s.embedder.Embed(gctx, seg)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Average(vectors)
}

// Average computes the element-wise arithmetic mean of equal-length vectors.
func Average(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no vectors to average")
	}

	dim := len(vectors[0])
	sum := make([]float64, dim)
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vec), dim)
		}
		for j, v := range vec {
			sum[j] += float64(v)
		}
	}

	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / float64(len(vectors)))
	}
	return out, nil
}
