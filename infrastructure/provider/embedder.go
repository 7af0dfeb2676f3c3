package provider

import "context"

// TextEmbedder adapts an Embedder to the plain text-to-vector interface the
// pipeline stages consume.
type TextEmbedder struct {
	inner Embedder
}

// NewTextEmbedder wraps inner.
func NewTextEmbedder(inner Embedder) *TextEmbedder {
	return &TextEmbedder{inner: inner}
}

// Embed returns one vector per text.
func (e *TextEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := e.inner.Embed(ctx, NewEmbeddingRequest(texts))
	if err != nil {
		return nil, err
	}
	return resp.Embeddings(), nil
}
