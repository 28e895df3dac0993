package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// appendChunkSize bounds the row count of a single multi-row INSERT so a
// large append never turns into one unbounded statement.
const appendChunkSize = 200

var _ repository.ImportItemRepository = (*importItemRepo)(nil)

type importItemRepo struct {
	pool *pgxpool.Pool
	tm   repository.TransactionManager
}

func NewImportItemRepo(pool *pgxpool.Pool, tm repository.TransactionManager) *importItemRepo {
	return &importItemRepo{pool: pool, tm: tm}
}

const itemColumns = `id, job_id, row_index, city_code, product_id, payload,
       status, attempt_count, next_retry_at, last_error, claimed_at,
       created_at, updated_at`

func scanItem(row pgx.Row) (*model.ImportItem, error) {
	var it model.ImportItem
	var status string
	err := row.Scan(&it.ID, &it.JobID, &it.RowIndex, &it.CityCode, &it.ProductID, &it.Payload,
		&status, &it.AttemptCount, &it.NextRetryAt, &it.LastError, &it.ClaimedAt,
		&it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	it.Status = model.ImportItemStatus(status)
	return &it, nil
}

// Append validates every row up front, then inserts in fixed-size chunks.
// Each chunk commits in its own transaction together with the owning job's
// counter bump, so a failure mid-append leaves whole chunks
// visible and the counters consistent with them. Re-issuing the call after a
// failure surfaces the already-inserted chunk as domain.ErrAlreadyExists.
func (r *importItemRepo) Append(ctx context.Context, jobID string, items []*model.ImportItem) error {
	for _, it := range items {
		if it.JobID != jobID {
			return domain.ErrInvalidArgument
		}
		if err := it.Validate(); err != nil {
			return err
		}
	}

	for start := 0; start < len(items); start += appendChunkSize {
		end := start + appendChunkSize
		if end > len(items) {
			end = len(items)
		}
		chunk := items[start:end]

		err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			if err := r.insertChunk(ctx, tx, chunk); err != nil {
				return err
			}
			invalid := 0
			for _, it := range chunk {
				if it.Status == model.ImportItemStatusFailed {
					invalid++
				}
			}
			// Pre-failed rows count into failed_count as well: they sit in the
			// same failed state a worker failure would leave, so an operator
			// requeue of failed items can hand their count back without going
			// negative. invalid_count stays the historical record of bad input.
			const q = `
UPDATE import_jobs
   SET total_count   = total_count + $2,
       invalid_count = invalid_count + $3,
       failed_count  = failed_count  + $3,
       updated_at    = now()
 WHERE id = $1;`
			ct, err := execSQL(ctx, r.pool, tx, q, jobID, len(chunk), invalid)
			if err != nil {
				return fmt.Errorf("bump job counts: %w", err)
			}
			if ct.RowsAffected() == 0 {
				return domain.ErrNotFound
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *importItemRepo) insertChunk(ctx context.Context, tx repository.Tx, chunk []*model.ImportItem) error {
	var sb strings.Builder
	sb.WriteString(`
INSERT INTO import_items (id, job_id, row_index, city_code, product_id, payload,
                          status, attempt_count, next_retry_at, last_error, claimed_at,
                          created_at, updated_at)
VALUES `)
	args := make([]interface{}, 0, len(chunk)*13)
	for i, it := range chunk {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 13
		sb.WriteString("(")
		for c := 1; c <= 13; c++ {
			if c > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+c)
		}
		sb.WriteString(")")
		args = append(args,
			it.ID, it.JobID, it.RowIndex, it.CityCode, it.ProductID, it.Payload,
			string(it.Status), it.AttemptCount, it.NextRetryAt, it.LastError, it.ClaimedAt,
			it.CreatedAt, it.UpdatedAt)
	}
	sb.WriteString(";")

	if _, err := execSQL(ctx, r.pool, tx, sb.String(), args...); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert item chunk: %w", err)
	}
	return nil
}

// Claim leases up to limit eligible items in one transaction: the SELECT
// locks candidate rows and skips any row a concurrent claimer already holds,
// so two callers can never walk away with the same item.
func (r *importItemRepo) Claim(ctx context.Context, jobID string, limit int) ([]*model.ImportItem, error) {
	if limit <= 0 {
		return nil, domain.ErrInvalidArgument
	}

	var claimed []*model.ImportItem
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const lockQ = `
SELECT id
  FROM import_items
 WHERE job_id = $1
   AND status = 'pending'
   AND (next_retry_at IS NULL OR next_retry_at <= now())
 ORDER BY id
 LIMIT $2
FOR UPDATE SKIP LOCKED;`

		rows, err := queryRows(ctx, r.pool, tx, lockQ, jobID, limit)
		if err != nil {
			return fmt.Errorf("lock claim candidates: %w", err)
		}
		ids := make([]string, 0, limit)
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return domain.ErrReadDatabaseRow
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		const claimQ = `
UPDATE import_items
   SET status = 'processing',
       claimed_at = now(),
       attempt_count = attempt_count + 1,
       updated_at = now()
 WHERE id = ANY($1)
RETURNING ` + itemColumns + `;`

		claimedRows, err := queryRows(ctx, r.pool, tx, claimQ, ids)
		if err != nil {
			return fmt.Errorf("mark claimed: %w", err)
		}
		defer claimedRows.Close()
		for claimedRows.Next() {
			it, err := scanItem(claimedRows)
			if err != nil {
				return err
			}
			claimed = append(claimed, it)
		}
		return claimedRows.Err()
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *importItemRepo) MarkSuccess(ctx context.Context, itemID, jobID string) error {
	return r.finishItem(ctx, itemID, jobID, model.ImportItemStatusSuccess, "", model.JobCountDelta{Success: 1})
}

func (r *importItemRepo) MarkFailure(ctx context.Context, itemID, jobID string, reason string) error {
	return r.finishItem(ctx, itemID, jobID, model.ImportItemStatusFailed, reason, model.JobCountDelta{Failed: 1})
}

func (r *importItemRepo) MarkSkipped(ctx context.Context, itemID, jobID string, reason string) error {
	return r.finishItem(ctx, itemID, jobID, model.ImportItemStatusSkipped, reason, model.JobCountDelta{Skipped: 1})
}

// finishItem resolves one processing item and moves the matching job counter
// in the same transaction. The status guard makes a duplicate report a
// no-op error instead of a double count.
func (r *importItemRepo) finishItem(ctx context.Context, itemID, jobID string, to model.ImportItemStatus, reason string, delta model.JobCountDelta) error {
	return r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		const q = `
UPDATE import_items
   SET status = $3,
       last_error = $4,
       claimed_at = NULL,
       updated_at = now()
 WHERE id = $1 AND job_id = $2 AND status = 'processing';`

		ct, err := execSQL(ctx, r.pool, tx, q, itemID, jobID, string(to), reason)
		if err != nil {
			return fmt.Errorf("finish item: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrNotFound
		}

		const countQ = `
UPDATE import_jobs
   SET success_count = success_count + $2,
       failed_count  = failed_count  + $3,
       skipped_count = skipped_count + $4,
       updated_at    = now()
 WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, countQ, jobID, delta.Success, delta.Failed, delta.Skipped); err != nil {
			return fmt.Errorf("bump job counts: %w", err)
		}
		return nil
	})
}

// RequeueStale recovers leases that expired without an outcome report. Only
// rows whose claimed_at predates the threshold match, so it cannot race a
// fresh claim, and running it twice is harmless.
func (r *importItemRepo) RequeueStale(ctx context.Context, jobID string, staleAfter time.Duration) (int, error) {
	if staleAfter <= 0 {
		return 0, domain.ErrInvalidArgument
	}
	const q = `
UPDATE import_items
   SET status = 'pending',
       claimed_at = NULL,
       last_error = CASE WHEN last_error = '' THEN 'stale_processing'
                         ELSE last_error || '; stale_processing' END,
       updated_at = now()
 WHERE job_id = $1
   AND status = 'processing'
   AND claimed_at < now() - make_interval(secs => $2);`

	ct, err := execSQL(ctx, r.pool, nil, q, jobID, staleAfter.Seconds())
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return int(ct.RowsAffected()), nil
}

// RequeueItems hands failed/skipped items back to the queue and returns the
// counts they held to the job counters. One UPDATE per requested status keeps
// the per-counter bookkeeping exact without dynamic SQL.
func (r *importItemRepo) RequeueItems(ctx context.Context, jobID string, statuses []model.ImportItemStatus, retryDelay time.Duration) (int, error) {
	if len(statuses) == 0 {
		return 0, domain.ErrInvalidArgument
	}
	for _, s := range statuses {
		if s != model.ImportItemStatusFailed && s != model.ImportItemStatusSkipped {
			return 0, domain.ErrInvalidArgument
		}
	}

	var nextRetry *time.Time
	if retryDelay > 0 {
		t := time.Now().Add(retryDelay)
		nextRetry = &t
	}

	total := 0
	err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var delta model.JobCountDelta
		for _, s := range statuses {
			const q = `
UPDATE import_items
   SET status = 'pending',
       last_error = '',
       next_retry_at = $3,
       updated_at = now()
 WHERE job_id = $1 AND status = $2;`

			ct, err := execSQL(ctx, r.pool, tx, q, jobID, string(s), nextRetry)
			if err != nil {
				return fmt.Errorf("requeue %s items: %w", s, err)
			}
			n := int(ct.RowsAffected())
			total += n
			switch s {
			case model.ImportItemStatusFailed:
				delta.Failed -= n
			case model.ImportItemStatusSkipped:
				delta.Skipped -= n
			}
		}
		if total == 0 {
			return nil
		}
		const countQ = `
UPDATE import_jobs
   SET failed_count  = failed_count  + $2,
       skipped_count = skipped_count + $3,
       updated_at    = now()
 WHERE id = $1;`
		if _, err := execSQL(ctx, r.pool, tx, countQ, jobID, delta.Failed, delta.Skipped); err != nil {
			return fmt.Errorf("hand back job counts: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// MarkSkippedBulk skips a specific id set. Terminal ids in the list simply
// do not match the status guard, so a repeated call moves nothing twice.
func (r *importItemRepo) MarkSkippedBulk(ctx context.Context, tx repository.Tx, jobID string, itemIDs []string, reason string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	if tx == nil {
		var moved int
		err := r.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, inner repository.Tx) error {
			var err error
			moved, err = r.MarkSkippedBulk(ctx, inner, jobID, itemIDs, reason)
			return err
		})
		return moved, err
	}

	const q = `
UPDATE import_items
   SET status = 'skipped',
       claimed_at = NULL,
       last_error = $3,
       updated_at = now()
 WHERE job_id = $1
   AND id = ANY($2)
   AND status IN ('pending', 'processing');`

	ct, err := execSQL(ctx, r.pool, tx, q, jobID, itemIDs, reason)
	if err != nil {
		return 0, fmt.Errorf("bulk skip items: %w", err)
	}
	moved := int(ct.RowsAffected())
	if moved == 0 {
		return 0, nil
	}

	const countQ = `
UPDATE import_jobs
   SET skipped_count = skipped_count + $2,
       updated_at    = now()
 WHERE id = $1;`
	if _, err := execSQL(ctx, r.pool, tx, countQ, jobID, moved); err != nil {
		return 0, fmt.Errorf("bump skipped count: %w", err)
	}
	return moved, nil
}

func (r *importItemRepo) QueueStats(ctx context.Context, tx repository.Tx, jobID string) (*model.QueueStats, error) {
	const q = `
SELECT COUNT(*) FILTER (WHERE status = 'pending' AND (next_retry_at IS NULL OR next_retry_at <= now())),
       COUNT(*) FILTER (WHERE status = 'pending' AND next_retry_at > now()),
       COUNT(*) FILTER (WHERE status = 'processing'),
       COUNT(*) FILTER (WHERE status = 'success'),
       COUNT(*) FILTER (WHERE status = 'failed'),
       COUNT(*) FILTER (WHERE status = 'skipped'),
       MIN(next_retry_at) FILTER (WHERE status = 'pending' AND next_retry_at > now())
  FROM import_items
 WHERE job_id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, err
	}
	var s model.QueueStats
	err = row.Scan(&s.PendingReady, &s.PendingDelayed, &s.Processing,
		&s.Success, &s.Failed, &s.Skipped, &s.NextRetryAt)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return &s, nil
}

func (r *importItemRepo) DistinctProductIDs(ctx context.Context, tx repository.Tx, jobID string) ([]string, error) {
	const q = `
SELECT DISTINCT product_id
  FROM import_items
 WHERE job_id = $1 AND product_id <> '';`

	rows, err := queryRows(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return nil, fmt.Errorf("list product ids: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *importItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ImportItem, error) {
	const q = `SELECT ` + itemColumns + ` FROM import_items WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanItem(row)
}

func (r *importItemRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string, status model.ImportItemStatus, offset, limit int) ([]*model.ImportItem, error) {
	if limit <= 0 {
		limit = 50
	}

	const allQ = `
SELECT ` + itemColumns + `
  FROM import_items
 WHERE job_id = $1
 ORDER BY id
OFFSET $2 LIMIT $3;`
	const byStatusQ = `
SELECT ` + itemColumns + `
  FROM import_items
 WHERE job_id = $1 AND status = $4
 ORDER BY id
OFFSET $2 LIMIT $3;`

	var (
		rows pgx.Rows
		err  error
	)
	if status == "" {
		rows, err = queryRows(ctx, r.pool, tx, allQ, jobID, offset, limit)
	} else {
		rows, err = queryRows(ctx, r.pool, tx, byStatusQ, jobID, offset, limit, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()
	var out []*model.ImportItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
