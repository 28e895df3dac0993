package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

var _ repository.ImportJobRepository = (*importJobRepo)(nil)

type importJobRepo struct {
	pool *pgxpool.Pool
}

func NewImportJobRepo(pool *pgxpool.Pool) *importJobRepo {
	return &importJobRepo{pool: pool}
}

func (r *importJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.ImportJob) error {
	job.UpdatedAt = time.Now()

	const q = `
INSERT INTO import_jobs (id, total_count, invalid_count, success_count, failed_count, skipped_count,
                         existing_behavior, do_text_embedding, do_image_captions, do_image_vectors,
                         caption_image_input, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  existing_behavior   = EXCLUDED.existing_behavior,
  do_text_embedding   = EXCLUDED.do_text_embedding,
  do_image_captions   = EXCLUDED.do_image_captions,
  do_image_vectors    = EXCLUDED.do_image_vectors,
  caption_image_input = EXCLUDED.caption_image_input,
  status              = EXCLUDED.status,
  updated_at          = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		job.ID, job.TotalCount, job.InvalidCount, job.SuccessCount, job.FailedCount, job.SkippedCount,
		string(job.ExistingBehavior), job.DoTextEmbedding, job.DoImageCaptions, job.DoImageVectors,
		string(job.CaptionImageInput), string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save import job: %w", err)
	}
	return nil
}

func (r *importJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ImportJob, error) {
	const q = `
SELECT id, total_count, invalid_count, success_count, failed_count, skipped_count,
       existing_behavior, do_text_embedding, do_image_captions, do_image_vectors,
       caption_image_input, status, created_at, updated_at
  FROM import_jobs
 WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var j model.ImportJob
	var behavior, captionInput, status string
	err = row.Scan(&j.ID, &j.TotalCount, &j.InvalidCount, &j.SuccessCount, &j.FailedCount, &j.SkippedCount,
		&behavior, &j.DoTextEmbedding, &j.DoImageCaptions, &j.DoImageVectors,
		&captionInput, &status, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	j.ExistingBehavior = model.ExistingBehavior(behavior)
	j.CaptionImageInput = model.CaptionImageInput(captionInput)
	j.Status = model.ImportJobStatus(status)
	return &j, nil
}

// AddCounts moves counters by relative deltas so concurrent outcome reporters
// never lose updates to each other.
func (r *importJobRepo) AddCounts(ctx context.Context, tx repository.Tx, jobID string, delta model.JobCountDelta) error {
	const q = `
UPDATE import_jobs
   SET total_count   = total_count   + $2,
       invalid_count = invalid_count + $3,
       success_count = success_count + $4,
       failed_count  = failed_count  + $5,
       skipped_count = skipped_count + $6,
       updated_at    = now()
 WHERE id = $1;`

	ct, err := execSQL(ctx, r.pool, tx, q, jobID, delta.Total, delta.Invalid, delta.Success, delta.Failed, delta.Skipped)
	if err != nil {
		return fmt.Errorf("add job counts: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *importJobRepo) RefreshStatus(ctx context.Context, tx repository.Tx, jobID string) (model.ImportJobStatus, error) {
	const countQ = `
SELECT COUNT(*) FILTER (WHERE status = 'pending'),
       COUNT(*) FILTER (WHERE status = 'processing'),
       COUNT(*) FILTER (WHERE status IN ('success', 'failed', 'skipped'))
  FROM import_items
 WHERE job_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, countQ, jobID)
	if err != nil {
		return "", err
	}
	var pending, processing, done int
	if err := row.Scan(&pending, &processing, &done); err != nil {
		return "", domain.ErrReadDatabaseRow
	}

	status := model.ImportJobStatusPending
	switch {
	case pending == 0 && processing == 0 && done > 0:
		status = model.ImportJobStatusCompleted
	case processing > 0 || done > 0:
		status = model.ImportJobStatusProcessing
	}

	const updQ = `UPDATE import_jobs SET status = $2, updated_at = now() WHERE id = $1;`
	ct, err := execSQL(ctx, r.pool, tx, updQ, jobID, string(status))
	if err != nil {
		return "", fmt.Errorf("refresh job status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return "", domain.ErrNotFound
	}
	return status, nil
}

func (r *importJobRepo) ListUnfinished(ctx context.Context, tx repository.Tx, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `
SELECT DISTINCT j.id, j.created_at
  FROM import_jobs j
  JOIN import_items i ON i.job_id = j.id AND i.status IN ('pending', 'processing')
 ORDER BY j.created_at
 LIMIT $1;`

	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		var createdAt time.Time
		if err := rows.Scan(&id, &createdAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *importJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	// Items go with the job via ON DELETE CASCADE.
	const q = `DELETE FROM import_jobs WHERE id = $1;`
	ct, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return fmt.Errorf("delete import job: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
