package usecase

import (
	"context"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"
	"catalog-enrichment/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// QueueUseCase drives the item state machine: claims, outcome reports,
// operator recovery and downstream cleanup. Everything that moves a job
// counter goes through here or through the repositories it owns.
type QueueUseCase struct {
	jobs    repository.ImportJobRepository
	items   repository.ImportItemRepository
	records repository.EnrichmentRecordRepository
	vectors repository.VectorStore
	tm      repository.TransactionManager

	textCollection  string
	imageCollection string

	log *zerolog.Logger
}

func NewQueueUseCase(
	jobs repository.ImportJobRepository,
	items repository.ImportItemRepository,
	records repository.EnrichmentRecordRepository,
	vectors repository.VectorStore,
	tm repository.TransactionManager,
	textCollection, imageCollection string,
	logger *zerolog.Logger,
) *QueueUseCase {
	l := logger.With().Str("component", "queue_uc").Logger()
	return &QueueUseCase{
		jobs:            jobs,
		items:           items,
		records:         records,
		vectors:         vectors,
		tm:              tm,
		textCollection:  textCollection,
		imageCollection: imageCollection,
		log:             &l,
	}
}

func (uc *QueueUseCase) Job(ctx context.Context, jobID string) (*model.ImportJob, error) {
	return uc.jobs.FindByID(ctx, nil, jobID)
}

// Claim leases up to limit eligible items of the job to the caller.
func (uc *QueueUseCase) Claim(ctx context.Context, jobID string, limit int) ([]*model.ImportItem, error) {
	claimed, err := uc.items.Claim(ctx, jobID, limit)
	if err != nil {
		return nil, err
	}
	metrics.ObserveClaimBatch(len(claimed))
	if len(claimed) > 0 {
		uc.log.Debug().Str("job_id", jobID).Int("claimed", len(claimed)).Msg("items claimed")
	}
	return claimed, nil
}

func (uc *QueueUseCase) MarkSuccess(ctx context.Context, itemID, jobID string) error {
	if err := uc.items.MarkSuccess(ctx, itemID, jobID); err != nil {
		return err
	}
	metrics.IncItemResolved("success")
	return nil
}

func (uc *QueueUseCase) MarkFailure(ctx context.Context, itemID, jobID, reason string) error {
	if err := uc.items.MarkFailure(ctx, itemID, jobID, reason); err != nil {
		return err
	}
	metrics.IncItemResolved("failed")
	uc.log.Warn().Str("job_id", jobID).Str("item_id", itemID).Str("reason", reason).Msg("item failed")
	return nil
}

func (uc *QueueUseCase) MarkSkipped(ctx context.Context, itemID, jobID, reason string) error {
	if err := uc.items.MarkSkipped(ctx, itemID, jobID, reason); err != nil {
		return err
	}
	metrics.IncItemResolved("skipped")
	return nil
}

// MarkSkippedBulk skips a claimed batch's already-enriched items in one
// statement. Ids already terminal are silently left alone.
func (uc *QueueUseCase) MarkSkippedBulk(ctx context.Context, jobID string, itemIDs []string, reason string) (int, error) {
	moved, err := uc.items.MarkSkippedBulk(ctx, nil, jobID, itemIDs, reason)
	if err != nil {
		return 0, err
	}
	metrics.AddItemsResolved("skipped", moved)
	return moved, nil
}

// UpdateJobStatus recomputes the derived job status from live item counts.
func (uc *QueueUseCase) UpdateJobStatus(ctx context.Context, jobID string) (model.ImportJobStatus, error) {
	return uc.jobs.RefreshStatus(ctx, nil, jobID)
}

// RequeueStale recovers items whose lease expired without an outcome.
func (uc *QueueUseCase) RequeueStale(ctx context.Context, jobID string, staleAfter time.Duration) (int, error) {
	moved, err := uc.items.RequeueStale(ctx, jobID, staleAfter)
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		metrics.AddStaleRequeued(moved)
		uc.log.Warn().Str("job_id", jobID).Int("requeued", moved).Msg("stale leases reclaimed")
	}
	return moved, nil
}

// RequeueItems is the operator path back from failed/skipped to pending.
// retryDelay > 0 delays re-eligibility via next_retry_at.
func (uc *QueueUseCase) RequeueItems(ctx context.Context, jobID string, statuses []model.ImportItemStatus, retryDelay time.Duration) (int, error) {
	if len(statuses) == 0 {
		return 0, domain.ErrInvalidArgument
	}
	total := 0
	for _, s := range statuses {
		moved, err := uc.items.RequeueItems(ctx, jobID, []model.ImportItemStatus{s}, retryDelay)
		if err != nil {
			return total, err
		}
		metrics.AddRequeued(string(s), moved)
		total += moved
	}
	if _, err := uc.jobs.RefreshStatus(ctx, nil, jobID); err != nil {
		return total, err
	}
	uc.log.Info().Str("job_id", jobID).Int("requeued", total).Msg("items requeued")
	return total, nil
}

// Stats returns the job row plus a live queue snapshot.
func (uc *QueueUseCase) Stats(ctx context.Context, jobID string) (*model.ImportJob, *model.QueueStats, error) {
	job, err := uc.jobs.FindByID(ctx, nil, jobID)
	if err != nil {
		return nil, nil, err
	}
	stats, err := uc.items.QueueStats(ctx, nil, jobID)
	if err != nil {
		return nil, nil, err
	}
	metrics.SetQueueDepth(stats.PendingReady, stats.PendingDelayed, stats.Processing)
	return job, stats, nil
}

// ExistingProducts is the dedup gate: the subset of productIDs that already
// have output from any of the sources.
func (uc *QueueUseCase) ExistingProducts(ctx context.Context, productIDs []string, sources []model.EnrichmentSource) ([]string, error) {
	return uc.records.ExistingForSources(ctx, nil, productIDs, sources)
}

// UnfinishedJobs lists jobs that still hold pending or processing items.
func (uc *QueueUseCase) UnfinishedJobs(ctx context.Context, limit int) ([]string, error) {
	return uc.jobs.ListUnfinished(ctx, nil, limit)
}

// DeleteDownstream wipes prior enrichment output for every product the job
// references: record rows in one transaction, then their points in the
// vector store. Run before processing under delete_then_insert.
func (uc *QueueUseCase) DeleteDownstream(ctx context.Context, jobID string) (int, error) {
	productIDs, err := uc.items.DistinctProductIDs(ctx, nil, jobID)
	if err != nil {
		return 0, err
	}
	if len(productIDs) == 0 {
		return 0, nil
	}

	// Resolve point ids per collection before the rows disappear.
	recs, err := uc.records.ListByProducts(ctx, nil, productIDs)
	if err != nil {
		return 0, err
	}
	var textIDs, imageIDs []string
	for _, rec := range recs {
		if rec.VectorID == "" {
			continue
		}
		if rec.Source == model.SourceImageCLIP {
			imageIDs = append(imageIDs, rec.VectorID)
		} else {
			textIDs = append(textIDs, rec.VectorID)
		}
	}

	var deleted int
	err = uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		vids, err := uc.records.DeleteByProducts(ctx, tx, productIDs)
		if err != nil {
			return err
		}
		deleted = len(vids)
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Vector deletes are outside the transaction; a crash here leaves
	// orphaned points that the next upsert under the same record key
	// overwrites anyway.
	if err := uc.vectors.DeletePoints(ctx, uc.textCollection, textIDs); err != nil {
		return deleted, err
	}
	if err := uc.vectors.DeletePoints(ctx, uc.imageCollection, imageIDs); err != nil {
		return deleted, err
	}

	uc.log.Info().Str("job_id", jobID).Int("records", deleted).
		Int("text_points", len(textIDs)).Int("image_points", len(imageIDs)).
		Msg("downstream output deleted")
	return deleted, nil
}

// DeleteJob removes the job and its items; enrichment output goes too only
// when downstream is set, since records normally outlive their job.
func (uc *QueueUseCase) DeleteJob(ctx context.Context, jobID string, downstream bool) error {
	if downstream {
		if _, err := uc.DeleteDownstream(ctx, jobID); err != nil {
			return err
		}
	}
	return uc.jobs.Delete(ctx, nil, jobID)
}
