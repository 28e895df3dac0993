package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"catalog-enrichment/internal/domain/ports/adapter"

	"github.com/go-resty/resty/v2"
)

var _ adapter.ImageFetcher = (*RestyImageFetcher)(nil)

// maxImageBytes caps downloads; anything larger is a bad source image, not
// something to ship to a caption model.
const maxImageBytes = 10 << 20

// RestyImageFetcher downloads image bytes for jobs whose caption policy is
// "download" (providers that cannot fetch URLs themselves).
type RestyImageFetcher struct {
	client *resty.Client
}

func NewRestyImageFetcher(timeout time.Duration) *RestyImageFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &RestyImageFetcher{client: client}
}

func (f *RestyImageFetcher) Fetch(ctx context.Context, url string) (adapter.ImageRef, error) {
	if url == "" {
		return adapter.ImageRef{}, errors.New("fetch image: empty url")
	}
	resp, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return adapter.ImageRef{}, fmt.Errorf("fetch image: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return adapter.ImageRef{}, fmt.Errorf("fetch image: status %d", resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return adapter.ImageRef{}, errors.New("fetch image: empty body")
	}
	if len(body) > maxImageBytes {
		return adapter.ImageRef{}, fmt.Errorf("fetch image: %d bytes exceeds limit", len(body))
	}

	mime := resp.Header().Get("Content-Type")
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, "image/") {
		mime = http.DetectContentType(body)
	}
	return adapter.ImageRef{URL: url, Bytes: body, MIME: mime}, nil
}
