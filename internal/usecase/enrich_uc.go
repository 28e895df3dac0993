package usecase

import (
	"context"
	"fmt"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/adapter"
	"catalog-enrichment/internal/domain/ports/repository"
	"catalog-enrichment/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// EnrichUseCase runs the per-item pipeline: parse payload, then per the
// job's toggles produce a text embedding, image captions and image vectors,
// committing each output as an enrichment record plus a vector-store point.
//
// Records upsert on (product_id, source, image_index) and reuse the prior
// point id, so re-running an item replaces its output instead of
// duplicating it: processing is effectively idempotent even though a retry
// may call the providers twice.
type EnrichUseCase struct {
	records    repository.EnrichmentRecordRepository
	vectors    repository.VectorStore
	embedder   adapter.Embedder
	captioner  adapter.Captioner
	vectorizer adapter.ImageVectorizer
	fetcher    adapter.ImageFetcher

	textCollection  string
	imageCollection string

	log *zerolog.Logger
}

func NewEnrichUseCase(
	records repository.EnrichmentRecordRepository,
	vectors repository.VectorStore,
	embedder adapter.Embedder,
	captioner adapter.Captioner,
	vectorizer adapter.ImageVectorizer,
	fetcher adapter.ImageFetcher,
	textCollection, imageCollection string,
	logger *zerolog.Logger,
) *EnrichUseCase {
	l := logger.With().Str("component", "enrich_uc").Logger()
	return &EnrichUseCase{
		records:         records,
		vectors:         vectors,
		embedder:        embedder,
		captioner:       captioner,
		vectorizer:      vectorizer,
		fetcher:         fetcher,
		textCollection:  textCollection,
		imageCollection: imageCollection,
		log:             &l,
	}
}

// ProcessItem enriches one claimed item. Returns skipped=true when the
// job's skip policy found existing output for the product (the per-item
// fallback for batches where the bulk dedup check did not run). Any
// provider or store error fails the whole item; partial output stays
// behind and is overwritten on the next attempt.
func (uc *EnrichUseCase) ProcessItem(ctx context.Context, job *model.ImportJob, item *model.ImportItem) (skipped bool, err error) {
	record, err := model.ParseProductRecord(item.Payload)
	if err != nil {
		return false, fmt.Errorf("parse payload: %w", err)
	}

	productID := item.ProductID
	if productID == "" {
		productID = record.ProductID
	}
	if productID == "" {
		return false, fmt.Errorf("%w: item has no product id", domain.ErrInvalidArgument)
	}
	cityCode := item.CityCode
	if cityCode == "" {
		cityCode = record.CityCode
	}

	if job.ExistingBehavior == model.ExistingSkip {
		existing, err := uc.records.ExistingForSources(ctx, nil, []string{productID}, job.EnabledSources())
		if err != nil {
			return false, fmt.Errorf("dedup check: %w", err)
		}
		if len(existing) > 0 {
			return true, nil
		}
	}

	if job.DoTextEmbedding {
		if err := uc.embedText(ctx, job, productID, cityCode, record.DocumentText()); err != nil {
			return false, err
		}
	}

	// Downloaded bytes are shared between the caption and vector stages
	// so download-mode jobs fetch each image once.
	fetched := make(map[int]adapter.ImageRef)

	if job.DoImageCaptions {
		for i, url := range record.ImageURLs {
			img, err := uc.imageRef(ctx, job, url, i, fetched)
			if err != nil {
				return false, err
			}
			if err := uc.captionImage(ctx, job, productID, cityCode, img, i); err != nil {
				return false, err
			}
		}
	}

	if job.DoImageVectors {
		for i, url := range record.ImageURLs {
			img, ok := fetched[i]
			if !ok {
				img = adapter.ImageRef{URL: url}
			}
			if err := uc.vectorizeImage(ctx, job, productID, cityCode, img, i); err != nil {
				return false, err
			}
		}
	}

	return false, nil
}

func (uc *EnrichUseCase) imageRef(ctx context.Context, job *model.ImportJob, url string, idx int, fetched map[int]adapter.ImageRef) (adapter.ImageRef, error) {
	if job.CaptionImageInput != model.CaptionInputDownload {
		return adapter.ImageRef{URL: url}, nil
	}
	if img, ok := fetched[idx]; ok {
		return img, nil
	}
	img, err := uc.fetcher.Fetch(ctx, url)
	if err != nil {
		return adapter.ImageRef{}, fmt.Errorf("download image %d: %w", idx, err)
	}
	fetched[idx] = img
	return img, nil
}

func (uc *EnrichUseCase) embedText(ctx context.Context, job *model.ImportJob, productID, cityCode, text string) error {
	if text == "" {
		return fmt.Errorf("%w: empty document text", domain.ErrEmptyPayload)
	}

	start := time.Now()
	vecs, err := uc.embedder.Embed(ctx, []string{text})
	metrics.ObserveProviderCall("embedding", uc.embedder.Model(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return fmt.Errorf("embed text: %w", err)
	}

	rec := model.NewEnrichmentRecord(productID, model.SourceProductJSON, 0, cityCode, text, uc.embedder.Model(), job.ID)
	if err := uc.records.Save(ctx, nil, rec); err != nil {
		return fmt.Errorf("save text record: %w", err)
	}
	return uc.vectors.Upsert(ctx, uc.textCollection, rec.VectorID, vecs[0], &repository.VectorPayload{
		ProductID: productID,
		Source:    string(model.SourceProductJSON),
		CityCode:  cityCode,
		Content:   text,
	})
}

func (uc *EnrichUseCase) captionImage(ctx context.Context, job *model.ImportJob, productID, cityCode string, img adapter.ImageRef, idx int) error {
	start := time.Now()
	caption, err := uc.captioner.Caption(ctx, img)
	metrics.ObserveProviderCall("caption", uc.captioner.Model(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return fmt.Errorf("caption image %d: %w", idx, err)
	}

	rec := model.NewEnrichmentRecord(productID, model.SourceImageCaption, idx, cityCode, caption, uc.captioner.Model(), job.ID)
	if err := uc.records.Save(ctx, nil, rec); err != nil {
		return fmt.Errorf("save caption record: %w", err)
	}

	// Captions join the text collection when embedding is on, so image
	// content is findable by text search too.
	if !job.DoTextEmbedding {
		return nil
	}
	start = time.Now()
	vecs, err := uc.embedder.Embed(ctx, []string{caption})
	metrics.ObserveProviderCall("embedding", uc.embedder.Model(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return fmt.Errorf("embed caption %d: %w", idx, err)
	}
	return uc.vectors.Upsert(ctx, uc.textCollection, rec.VectorID, vecs[0], &repository.VectorPayload{
		ProductID: productID,
		Source:    string(model.SourceImageCaption),
		CityCode:  cityCode,
		Content:   caption,
	})
}

func (uc *EnrichUseCase) vectorizeImage(ctx context.Context, job *model.ImportJob, productID, cityCode string, img adapter.ImageRef, idx int) error {
	start := time.Now()
	vec, err := uc.vectorizer.Vectorize(ctx, img)
	metrics.ObserveProviderCall("image_vector", uc.vectorizer.Model(), int(time.Since(start)/time.Millisecond), err == nil)
	if err != nil {
		return fmt.Errorf("vectorize image %d: %w", idx, err)
	}

	rec := model.NewEnrichmentRecord(productID, model.SourceImageCLIP, idx, cityCode, img.URL, uc.vectorizer.Model(), job.ID)
	if err := uc.records.Save(ctx, nil, rec); err != nil {
		return fmt.Errorf("save image vector record: %w", err)
	}
	return uc.vectors.Upsert(ctx, uc.imageCollection, rec.VectorID, vec, &repository.VectorPayload{
		ProductID: productID,
		Source:    string(model.SourceImageCLIP),
		CityCode:  cityCode,
		Content:   img.URL,
	})
}
