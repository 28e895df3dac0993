package worker

import (
	"context"
	"time"

	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/infra/logging"
	"catalog-enrichment/internal/usecase"

	"github.com/rs/zerolog"
)

// ItemProcessor polls unfinished jobs, claims batches of their items and
// runs each through the enrichment pipeline. Multiple processor instances
// can point at the same database; the claim query keeps them from stepping
// on each other.
type ItemProcessor struct {
	queue  *usecase.QueueUseCase
	enrich *usecase.EnrichUseCase

	claimBatch   int
	pollInterval time.Duration
	log          *zerolog.Logger
}

func NewItemProcessor(queue *usecase.QueueUseCase, enrich *usecase.EnrichUseCase, claimBatch int, pollInterval time.Duration, logger *zerolog.Logger) *ItemProcessor {
	if claimBatch <= 0 {
		claimBatch = 20
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	l := logger.With().Str("component", "item_processor").Logger()
	return &ItemProcessor{
		queue:        queue,
		enrich:       enrich,
		claimBatch:   claimBatch,
		pollInterval: pollInterval,
		log:          &l,
	}
}

// Start runs the poll loop until ctx is cancelled. Each tick walks the
// unfinished jobs and submits one batch per job to the pool.
// This should be run in a goroutine.
func (p *ItemProcessor) Start(ctx context.Context, pool *Pool) {
	p.log.Info().Int("claim_batch", p.claimBatch).Dur("poll_interval", p.pollInterval).Msg("item processor started")
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("item processor stopping")
			return
		case <-ticker.C:
			jobIDs, err := p.queue.UnfinishedJobs(ctx, 50)
			if err != nil {
				p.log.Error().Err(err).Msg("list unfinished jobs")
				continue
			}
			for _, jobID := range jobIDs {
				id := jobID
				_ = pool.Submit(func(ctx context.Context) error {
					_, err := p.RunBatch(ctx, id, p.claimBatch)
					return err
				})
			}
		}
	}
}

// RunBatch claims up to limit items of the job and resolves every one of
// them: bulk-skip for products the dedup gate already knows, then the
// per-item pipeline for the rest. Returns the number of items claimed.
func (p *ItemProcessor) RunBatch(ctx context.Context, jobID string, limit int) (int, error) {
	if limit <= 0 {
		limit = p.claimBatch
	}
	ctx = logging.WithJobID(ctx, jobID)
	log := logging.With(ctx, p.log)

	job, err := p.queue.Job(ctx, jobID)
	if err != nil {
		return 0, err
	}
	claimed, err := p.queue.Claim(ctx, jobID, limit)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		// counts may still be settling after a requeue
		if _, err := p.queue.UpdateJobStatus(ctx, jobID); err != nil {
			return 0, err
		}
		return 0, nil
	}

	remaining := claimed
	if job.ExistingBehavior == model.ExistingSkip {
		remaining, err = p.bulkSkip(ctx, job, claimed)
		if err != nil {
			log.Error().Err(err).Msg("bulk dedup failed, falling back to per-item checks")
			remaining = claimed
		}
	}

	for _, item := range remaining {
		p.processOne(ctx, job, item)
	}

	if _, err := p.queue.UpdateJobStatus(ctx, jobID); err != nil {
		return len(claimed), err
	}
	return len(claimed), nil
}

// bulkSkip resolves the batch's already-enriched products in one statement
// and returns the items that still need the pipeline.
func (p *ItemProcessor) bulkSkip(ctx context.Context, job *model.ImportJob, claimed []*model.ImportItem) ([]*model.ImportItem, error) {
	var productIDs []string
	seen := make(map[string]bool)
	for _, it := range claimed {
		if it.ProductID == "" || seen[it.ProductID] {
			continue
		}
		seen[it.ProductID] = true
		productIDs = append(productIDs, it.ProductID)
	}
	if len(productIDs) == 0 {
		return claimed, nil
	}

	existing, err := p.queue.ExistingProducts(ctx, productIDs, job.EnabledSources())
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return claimed, nil
	}
	skip := make(map[string]bool, len(existing))
	for _, pid := range existing {
		skip[pid] = true
	}

	var skipIDs []string
	remaining := claimed[:0]
	for _, it := range claimed {
		if skip[it.ProductID] {
			skipIDs = append(skipIDs, it.ID)
		} else {
			remaining = append(remaining, it)
		}
	}
	if _, err := p.queue.MarkSkippedBulk(ctx, job.ID, skipIDs, "already_enriched"); err != nil {
		return nil, err
	}
	return remaining, nil
}

func (p *ItemProcessor) processOne(ctx context.Context, job *model.ImportJob, item *model.ImportItem) {
	ctx = logging.WithItemID(ctx, item.ID)
	log := logging.With(ctx, p.log)
	start := time.Now()

	skipped, err := p.enrich.ProcessItem(ctx, job, item)
	switch {
	case err != nil:
		log.Warn().Err(err).Int("attempt", item.AttemptCount).Msg("item failed")
		if mErr := p.queue.MarkFailure(ctx, item.ID, job.ID, err.Error()); mErr != nil {
			log.Error().Err(mErr).Msg("mark failure")
		}
	case skipped:
		if mErr := p.queue.MarkSkipped(ctx, item.ID, job.ID, "already_enriched"); mErr != nil {
			log.Error().Err(mErr).Msg("mark skipped")
		}
	default:
		log.Debug().Dur("duration", time.Since(start)).Msg("item enriched")
		if mErr := p.queue.MarkSuccess(ctx, item.ID, job.ID); mErr != nil {
			log.Error().Err(mErr).Msg("mark success")
		}
	}
}
