package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"catalog-enrichment/internal/domain/ports/adapter"
)

var _ adapter.Captioner = (*GeminiCaptioner)(nil)

const defaultCaptionPrompt = "Describe this product photo in one or two factual sentences. " +
	"Name the product type, color, material and any visible brand markings. " +
	"Do not speculate about anything not visible in the image."

// GeminiCaptioner describes product images with a Gemini vision model.
// Images arrive either as a URL (passed straight to the API) or as bytes the
// caller downloaded, depending on the job's caption_image_input policy.
type GeminiCaptioner struct {
	client *genai.Client
	model  string
	prompt string
}

func NewGeminiCaptioner(ctx context.Context, apiKey, baseURL, model string) (*GeminiCaptioner, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiCaptioner{client: c, model: model, prompt: defaultCaptionPrompt}, nil
}

func (g *GeminiCaptioner) Model() string { return g.model }

func (g *GeminiCaptioner) Caption(ctx context.Context, img adapter.ImageRef) (string, error) {
	var imagePart *genai.Part
	switch {
	case len(img.Bytes) > 0:
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		imagePart = genai.NewPartFromBytes(img.Bytes, mime)
	case img.URL != "":
		imagePart = genai.NewPartFromURI(img.URL, img.MIME)
	default:
		return "", errors.New("gemini: image ref has neither url nor bytes")
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{imagePart, genai.NewPartFromText(g.prompt)}, genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return "", fmt.Errorf("rate_limited: gemini caption: %w", err)
		}
		return "", err
	}
	caption := strings.TrimSpace(resp.Text())
	if caption == "" {
		return "", errors.New("gemini: empty caption")
	}
	return caption, nil
}
