package embedding

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tensor-ninja/agent-fix/internal/chunk"
)

type wordCodec struct{}

func (wordCodec) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i := range fields {
		tokens[i] = i
	}
	return tokens
}

func (wordCodec) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i := range tokens {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

type fakeEmbedder struct {
	mu     sync.Mutex
	vector []float32
	texts  []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	return out, nil
}

func TestEmbedDocumentSingleChunkPassthrough(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{0.5, 0.25}}
	svc := NewService(emb, chunk.NewSplitter(wordCodec{}, 100))

	vec, err := svc.EmbedDocument(context.Background(), "short doc")
	require.NoError(t, err)
	require.Equal(t, []float32{0.5, 0.25}, vec)
	require.Len(t, emb.texts, 1)
}

func TestEmbedDocumentAveragesChunks(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 3}}
	svc := NewService(emb, chunk.NewSplitter(wordCodec{}, 2))

	vec, err := svc.EmbedDocument(context.Background(), "one two three four five")
	require.NoError(t, err)
	require.Equal(t, []float32{1, 3}, vec, "identical chunk vectors average to themselves")
	require.Len(t, emb.texts, 3)
}

func TestAverageIdenticalVectorsUnchanged(t *testing.T) {
	v := []float32{0.1, -2, 7}
	out, err := Average([][]float32{v, v, v, v})
	require.NoError(t, err)
	require.InDeltaSlice(t, v, out, 1e-6)
	require.Len(t, out, len(v))
}

func TestAverageElementWiseMean(t *testing.T) {
	out, err := Average([][]float32{
		{1, 2, 3},
		{3, 4, 5},
	})
	require.NoError(t, err)
	require.InDeltaSlice(t, []float32{2, 3, 4}, out, 1e-6)
}

func TestAverageRejectsMismatchedDimensions(t *testing.T) {
	_, err := Average([][]float32{
		{1, 2},
		{1, 2, 3},
	})
	require.Error(t, err)
}

func TestAverageRejectsEmptyInput(t *testing.T) {
	_, err := Average(nil)
	require.Error(t, err)
}
