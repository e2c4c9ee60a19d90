package embedding

import (
	"context"
	"hash/fnv"
	"sync/atomic"
)

// MockEmbedder is a test double producing deterministic vectors derived from
// a hash of the input text. It allows the ingestion loop to run without an
// embedding service.
type MockEmbedder struct {
	// Dimensions is the vector width; defaults to 8 when zero.
	Dimensions int

	// EmbedTextsFunc overrides the default behavior when set.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	calls atomic.Int64
}

var _ Embedder = (*MockEmbedder)(nil)

// EmbedTexts generates deterministic embeddings for the texts in order.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls.Add(1)
	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	dims := m.Dimensions
	if dims <= 0 {
		dims = 8
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		h := fnv.New32a()
		h.Write([]byte(text))
		seed := h.Sum32()
		vector := make([]float32, dims)
		for d := range vector {
			seed = seed*1664525 + 1013904223
			vector[d] = float32(seed%1000) / 1000.0
		}
		out[i] = vector
	}
	return out, nil
}

// CallCount reports how many times EmbedTexts was invoked.
func (m *MockEmbedder) CallCount() int64 {
	return m.calls.Load()
}
