package ai

import (
	"context"
	"fmt"

	"catalog-enrichment/internal/config"
	"catalog-enrichment/internal/domain/ports/adapter"
)

// BuildProviders assembles the provider trio from config. Dev mode swaps in
// the noop implementations so the pipeline runs without keys or network.
func BuildProviders(ctx context.Context, cfg *config.Config) (adapter.Embedder, adapter.Captioner, adapter.ImageVectorizer, error) {
	if cfg.Runtime.Dev {
		return &NoopEmbedder{Dims: cfg.AI.EmbeddingDims},
			&NoopCaptioner{},
			&NoopVectorizer{Dims: cfg.AI.VectorizerDims},
			nil
	}

	if cfg.AI.OpenAIKey == "" {
		return nil, nil, nil, fmt.Errorf("ai.openai_key is required outside dev mode")
	}
	embedder, err := NewOpenAIEmbedder(cfg.AI.OpenAIKey, cfg.AI.EmbeddingModel, cfg.AI.EmbeddingDims, cfg.AI.EmbeddingMaxTokens)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("openai embedder: %w", err)
	}

	if cfg.AI.GeminiKey == "" {
		return nil, nil, nil, fmt.Errorf("ai.gemini_key is required outside dev mode")
	}
	captioner, err := NewGeminiCaptioner(ctx, cfg.AI.GeminiKey, cfg.AI.GeminiURL, cfg.AI.CaptionModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gemini captioner: %w", err)
	}

	if cfg.AI.VectorizerURL == "" {
		return nil, nil, nil, fmt.Errorf("ai.vectorizer_url is required outside dev mode")
	}
	vectorizer, err := NewCLIPVectorizer(cfg.AI.VectorizerURL, cfg.AI.VectorizerKey, cfg.AI.VectorizerModel, cfg.AI.VectorizerDims)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("clip vectorizer: %w", err)
	}

	n := cfg.AI.ConcurrentLimit
	return NewLimitedEmbedder(embedder, n),
		NewLimitedCaptioner(captioner, n),
		NewLimitedVectorizer(vectorizer, n),
		nil
}
