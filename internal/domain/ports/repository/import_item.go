package repository

import (
	"context"
	"time"

	"catalog-enrichment/internal/domain/model"
)

type ImportItemRepository interface {
	// Append inserts a batch of pre-validated items with fixed-size multi-row
	// statements and bumps the owning job's total/invalid counters in the same
	// transaction per chunk. Safe to retry; duplicates surface as
	// domain.ErrAlreadyExists on the conflicting chunk.
	Append(ctx context.Context, jobID string, items []*model.ImportItem) error

	// Claim atomically moves up to limit ready pending items of the job to
	// processing and returns them. Ready means next_retry_at is unset or due.
	// Rows locked by a concurrent claimer are skipped, never double-claimed.
	// Claiming stamps claimed_at and increments attempt_count.
	Claim(ctx context.Context, jobID string, limit int) ([]*model.ImportItem, error)

	// MarkSuccess / MarkFailure / MarkSkipped transition one processing item
	// to its terminal status and move the job counter by +1 inside one
	// transaction. MarkFailure records the error; it is terminal for the
	// attempt (no retry scheduling).
	MarkSuccess(ctx context.Context, itemID, jobID string) error
	MarkFailure(ctx context.Context, itemID, jobID string, reason string) error
	MarkSkipped(ctx context.Context, itemID, jobID string, reason string) error

	// RequeueStale returns processing items whose lease expired (claimed_at
	// older than staleAfter) to pending, clears claimed_at, and tags
	// last_error. attempt_count is left as-is. Returns rows moved.
	RequeueStale(ctx context.Context, jobID string, staleAfter time.Duration) (int, error)

	// RequeueItems moves failed and/or skipped items back to pending, clears
	// last_error, and hands the matching counts back to the job counters.
	// retryDelay > 0 schedules next_retry_at = now+retryDelay, otherwise
	// next_retry_at is cleared. Returns rows moved.
	RequeueItems(ctx context.Context, jobID string, statuses []model.ImportItemStatus, retryDelay time.Duration) (int, error)

	// MarkSkippedBulk skips the given pending/processing items in one
	// statement; terminal items in the list are ignored. The job skipped
	// counter moves by the number of rows actually transitioned.
	MarkSkippedBulk(ctx context.Context, tx Tx, jobID string, itemIDs []string, reason string) (int, error)

	// QueueStats reports live per-status counts for the job, splitting pending
	// into ready and delayed, plus the earliest next_retry_at of the delayed.
	QueueStats(ctx context.Context, tx Tx, jobID string) (*model.QueueStats, error)

	// DistinctProductIDs lists the non-empty product ids of the job's items.
	DistinctProductIDs(ctx context.Context, tx Tx, jobID string) ([]string, error)

	FindByID(ctx context.Context, tx Tx, id string) (*model.ImportItem, error)
	ListByJob(ctx context.Context, tx Tx, jobID string, status model.ImportItemStatus, offset, limit int) ([]*model.ImportItem, error)
}
