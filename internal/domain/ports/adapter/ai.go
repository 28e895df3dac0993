package adapter

import "context"

// ImageRef is how an image reaches a provider: by URL, or as downloaded
// bytes when the job's caption_image_input policy is "download".
type ImageRef struct {
	URL   string
	Bytes []byte
	MIME  string
}

// Embedder turns text into a dense vector.
type Embedder interface {
	// Embed returns one vector per input, index-aligned.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	Dimensions() int
}

// Captioner describes an image in prose.
type Captioner interface {
	Caption(ctx context.Context, img ImageRef) (string, error)
	Model() string
}

// ImageVectorizer produces a CLIP-style vector for an image.
type ImageVectorizer interface {
	Vectorize(ctx context.Context, img ImageRef) ([]float32, error)
	Model() string
	Dimensions() int
}

// ImageFetcher downloads image bytes for providers that cannot take URLs.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (ImageRef, error)
}
