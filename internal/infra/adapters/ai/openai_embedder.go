package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"catalog-enrichment/internal/domain/ports/adapter"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder produces text embeddings via the OpenAI embeddings API.
// Inputs are token-truncated client-side so an oversized product document
// fails here predictably instead of bouncing off the API limit.
type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dims      int
	maxTokens int
	enc       *tiktoken.Tiktoken
}

func NewOpenAIEmbedder(apiKey, model string, dims, maxTokens int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dims <= 0 {
		dims = 1536
	}
	if maxTokens <= 0 {
		maxTokens = 8000
	}
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return &OpenAIEmbedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		dims:      dims,
		maxTokens: maxTokens,
		enc:       enc,
	}, nil
}

func (e *OpenAIEmbedder) Model() string   { return e.model }
func (e *OpenAIEmbedder) Dimensions() int { return e.dims }

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = e.truncate(t)
	}

	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(e.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
		Dimensions: openai.Int(int64(e.dims)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("rate_limited: openai embeddings: %w", err)
		}
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) != len(input) {
		return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(input))
	}

	// Index-align; the API documents order but ties each datum to an index.
	out := make([][]float32, len(input))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) {
			return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

func (e *OpenAIEmbedder) truncate(text string) string {
	tokens := e.enc.Encode(text, nil, nil)
	if len(tokens) <= e.maxTokens {
		return text
	}
	return e.enc.Decode(tokens[:e.maxTokens])
}
