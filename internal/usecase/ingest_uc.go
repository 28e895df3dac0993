package usecase

import (
	"context"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/rs/zerolog"
)

// RowInput is one submitted row, already tokenized upstream. A row may
// arrive pre-failed when the tokenizer could not produce a payload; it is
// still recorded so total/invalid counts reflect the whole submission.
type RowInput struct {
	RowIndex  int    `json:"row_index"`
	CityCode  string `json:"city_code"`
	ProductID string `json:"product_id"`
	Payload   string `json:"payload"`
	Failed    bool   `json:"failed"`
	Error     string `json:"error"`
}

// IngestUseCase creates jobs and feeds rows into them.
type IngestUseCase struct {
	jobs  repository.ImportJobRepository
	items repository.ImportItemRepository
	log   *zerolog.Logger
}

func NewIngestUseCase(jobs repository.ImportJobRepository, items repository.ImportItemRepository, logger *zerolog.Logger) *IngestUseCase {
	l := logger.With().Str("component", "ingest_uc").Logger()
	return &IngestUseCase{jobs: jobs, items: items, log: &l}
}

func (uc *IngestUseCase) CreateJob(ctx context.Context, behavior model.ExistingBehavior, embed, captions, vectors bool, captionInput model.CaptionImageInput) (*model.ImportJob, error) {
	switch behavior {
	case "", model.ExistingSkip, model.ExistingDeleteThenInsert:
	default:
		return nil, domain.ErrInvalidArgument
	}
	switch captionInput {
	case "", model.CaptionInputURL, model.CaptionInputDownload:
	default:
		return nil, domain.ErrInvalidArgument
	}

	job := model.NewImportJob(behavior, embed, captions, vectors, captionInput)
	if err := uc.jobs.Save(ctx, nil, job); err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", job.ID).
		Str("existing_behavior", string(job.ExistingBehavior)).
		Bool("text_embedding", job.DoTextEmbedding).
		Bool("image_captions", job.DoImageCaptions).
		Bool("image_vectors", job.DoImageVectors).
		Msg("job created")
	return job, nil
}

// AppendRows converts a submission into items and appends them. The append
// is at-least-once: re-issuing the same rows after a mid-append failure
// surfaces domain.ErrAlreadyExists rather than inserting duplicates.
func (uc *IngestUseCase) AppendRows(ctx context.Context, jobID string, rows []RowInput) (*model.ImportJob, error) {
	if len(rows) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if _, err := uc.jobs.FindByID(ctx, nil, jobID); err != nil {
		return nil, err
	}

	items := make([]*model.ImportItem, 0, len(rows))
	for _, r := range rows {
		it := model.NewImportItem(jobID, r.RowIndex, r.CityCode, r.ProductID, r.Payload)
		if r.Failed {
			it.Status = model.ImportItemStatusFailed
			it.LastError = r.Error
			if it.LastError == "" {
				it.LastError = "invalid_row"
			}
		}
		if err := it.Validate(); err != nil {
			return nil, err
		}
		items = append(items, it)
	}

	if err := uc.items.Append(ctx, jobID, items); err != nil {
		return nil, err
	}
	if _, err := uc.jobs.RefreshStatus(ctx, nil, jobID); err != nil {
		return nil, err
	}

	job, err := uc.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, err
	}
	uc.log.Info().Str("job_id", jobID).Int("rows", len(rows)).
		Int("total", job.TotalCount).Int("invalid", job.InvalidCount).
		Msg("rows appended")
	return job, nil
}
