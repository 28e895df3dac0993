package ai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"

	"catalog-enrichment/internal/domain/ports/adapter"

	"github.com/go-resty/resty/v2"
)

var _ adapter.ImageVectorizer = (*CLIPVectorizer)(nil)

// CLIPVectorizer calls an HTTP image-embedding endpoint (a CLIP-family model
// behind a small inference server) and returns its vector.
type CLIPVectorizer struct {
	client *resty.Client
	url    string
	model  string
	dims   int
}

func NewCLIPVectorizer(baseURL, apiKey, model string, dims int) (*CLIPVectorizer, error) {
	if baseURL == "" {
		return nil, errors.New("vectorizer url empty")
	}
	if model == "" {
		model = "clip-vit-b-32"
	}
	if dims <= 0 {
		dims = 512
	}
	client := resty.New()
	if apiKey != "" {
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	client.SetHeader("Content-Type", "application/json")
	return &CLIPVectorizer{client: client, url: baseURL, model: model, dims: dims}, nil
}

func (v *CLIPVectorizer) Model() string   { return v.model }
func (v *CLIPVectorizer) Dimensions() int { return v.dims }

type clipRequest struct {
	Model    string `json:"model"`
	ImageURL string `json:"image_url,omitempty"`
	ImageB64 string `json:"image_b64,omitempty"`
}

type clipResponse struct {
	Vector []float32 `json:"vector"`
	Model  string    `json:"model"`
	Detail string    `json:"detail,omitempty"`
}

func (v *CLIPVectorizer) Vectorize(ctx context.Context, img adapter.ImageRef) ([]float32, error) {
	req := clipRequest{Model: v.model}
	switch {
	case len(img.Bytes) > 0:
		req.ImageB64 = base64.StdEncoding.EncodeToString(img.Bytes)
	case img.URL != "":
		req.ImageURL = img.URL
	default:
		return nil, errors.New("vectorizer: image ref has neither url nor bytes")
	}

	var resp clipResponse
	httpResp, err := v.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		// inference servers do not always send a Content-Type header
		ForceContentType("application/json").
		Post(v.url)
	if err != nil {
		return nil, fmt.Errorf("failed to call vectorizer: %w", err)
	}

	if httpResp.StatusCode() == http.StatusTooManyRequests {
		// Terminal for this attempt; the prefix lets operators spot
		// rate limiting in last_error before a bulk requeue.
		return nil, fmt.Errorf("rate_limited: vectorizer status %d", httpResp.StatusCode())
	}
	if httpResp.StatusCode() != http.StatusOK {
		if resp.Detail != "" {
			return nil, fmt.Errorf("vectorizer error: %s", resp.Detail)
		}
		return nil, fmt.Errorf("vectorizer error: status %d", httpResp.StatusCode())
	}
	if len(resp.Vector) == 0 {
		return nil, errors.New("vectorizer returned no vector")
	}
	if len(resp.Vector) != v.dims {
		return nil, fmt.Errorf("vectorizer returned %d dims, expected %d", len(resp.Vector), v.dims)
	}
	return resp.Vector, nil
}
