package ai

import (
	"context"

	"catalog-enrichment/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.Embedder        = (*limitedEmbedder)(nil)
	_ adapter.Captioner       = (*limitedCaptioner)(nil)
	_ adapter.ImageVectorizer = (*limitedVectorizer)(nil)
)

// The limiter wrappers bound in-flight calls per provider with a semaphore.
// The worker pool fans items out aggressively; this is where provider rate
// limits are respected instead.

type limitedEmbedder struct {
	inner adapter.Embedder
	sem   chan struct{}
}

func NewLimitedEmbedder(inner adapter.Embedder, maxConcurrent int) adapter.Embedder {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedEmbedder{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

func (l *limitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Embed(ctx, texts)
}

func (l *limitedEmbedder) Model() string   { return l.inner.Model() }
func (l *limitedEmbedder) Dimensions() int { return l.inner.Dimensions() }

type limitedCaptioner struct {
	inner adapter.Captioner
	sem   chan struct{}
}

func NewLimitedCaptioner(inner adapter.Captioner, maxConcurrent int) adapter.Captioner {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedCaptioner{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

func (l *limitedCaptioner) Caption(ctx context.Context, img adapter.ImageRef) (string, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Caption(ctx, img)
}

func (l *limitedCaptioner) Model() string { return l.inner.Model() }

type limitedVectorizer struct {
	inner adapter.ImageVectorizer
	sem   chan struct{}
}

func NewLimitedVectorizer(inner adapter.ImageVectorizer, maxConcurrent int) adapter.ImageVectorizer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedVectorizer{inner: inner, sem: make(chan struct{}, maxConcurrent)}
}

func (l *limitedVectorizer) Vectorize(ctx context.Context, img adapter.ImageRef) ([]float32, error) {
	l.sem <- struct{}{}
	defer func() { <-l.sem }()
	return l.inner.Vectorize(ctx, img)
}

func (l *limitedVectorizer) Model() string   { return l.inner.Model() }
func (l *limitedVectorizer) Dimensions() int { return l.inner.Dimensions() }
