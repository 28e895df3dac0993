package repository

import (
	"context"

	"catalog-enrichment/internal/domain/model"
)

type ImportJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.ImportJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ImportJob, error)

	// AddCounts applies relative deltas to the job counters. Deltas may be
	// negative (operator requeue hands counts back). Must run inside the same
	// transaction as the item transition that caused them.
	AddCounts(ctx context.Context, tx Tx, jobID string, delta model.JobCountDelta) error

	// RefreshStatus recomputes the derived job status from live item counts:
	// completed when nothing is pending or processing, processing when any
	// item is processing or has been claimed at least once, pending otherwise.
	RefreshStatus(ctx context.Context, tx Tx, jobID string) (model.ImportJobStatus, error)

	// ListUnfinished returns ids of jobs that still have pending or
	// processing items, oldest first. The background worker and the
	// reconciler both walk these.
	ListUnfinished(ctx context.Context, tx Tx, limit int) ([]string, error)

	Delete(ctx context.Context, tx Tx, id string) error
}
