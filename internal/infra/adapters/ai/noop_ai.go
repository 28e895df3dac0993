package ai

import (
	"context"
	"fmt"

	"catalog-enrichment/internal/domain/ports/adapter"
)

// Noop providers for dev mode and wiring tests: deterministic output,
// no network.

var (
	_ adapter.Embedder        = (*NoopEmbedder)(nil)
	_ adapter.Captioner       = (*NoopCaptioner)(nil)
	_ adapter.ImageVectorizer = (*NoopVectorizer)(nil)
)

type NoopEmbedder struct {
	Dims int
}

func (n *NoopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	dims := n.Dims
	if dims <= 0 {
		dims = 8
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, dims)
		for j := range vec {
			vec[j] = float32((len(t)+i+j)%17) / 17.0
		}
		out[i] = vec
	}
	return out, nil
}

func (n *NoopEmbedder) Model() string { return "noop-embedder" }
func (n *NoopEmbedder) Dimensions() int {
	if n.Dims <= 0 {
		return 8
	}
	return n.Dims
}

type NoopCaptioner struct{}

func (n *NoopCaptioner) Caption(ctx context.Context, img adapter.ImageRef) (string, error) {
	return fmt.Sprintf("noop caption for %s", img.URL), nil
}

func (n *NoopCaptioner) Model() string { return "noop-captioner" }

type NoopVectorizer struct {
	Dims int
}

func (n *NoopVectorizer) Vectorize(ctx context.Context, img adapter.ImageRef) ([]float32, error) {
	dims := n.Dims
	if dims <= 0 {
		dims = 8
	}
	vec := make([]float32, dims)
	for j := range vec {
		vec[j] = float32((len(img.URL)+j)%13) / 13.0
	}
	return vec, nil
}

func (n *NoopVectorizer) Model() string { return "noop-vectorizer" }
func (n *NoopVectorizer) Dimensions() int {
	if n.Dims <= 0 {
		return 8
	}
	return n.Dims
}
