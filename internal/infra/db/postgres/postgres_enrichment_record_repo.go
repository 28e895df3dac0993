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

// cleanupChunkSize bounds id lists in downstream-cleanup statements the same
// way appendChunkSize bounds the ingester's inserts.
const cleanupChunkSize = 500

var _ repository.EnrichmentRecordRepository = (*enrichmentRecordRepo)(nil)

type enrichmentRecordRepo struct {
	pool *pgxpool.Pool
}

func NewEnrichmentRecordRepo(pool *pgxpool.Pool) *enrichmentRecordRepo {
	return &enrichmentRecordRepo{pool: pool}
}

// Save upserts on (product_id, source, image_index). On conflict the existing
// row keeps its id and vector_id, which are written back into rec so the
// caller replaces the vector-store point instead of orphaning it.
func (r *enrichmentRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error {
	rec.UpdatedAt = time.Now()

	const q = `
INSERT INTO enrichment_records (id, product_id, source, image_index, city_code, content,
                                vector_id, model, job_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (product_id, source, image_index) DO UPDATE SET
  city_code  = EXCLUDED.city_code,
  content    = EXCLUDED.content,
  model      = EXCLUDED.model,
  job_id     = EXCLUDED.job_id,
  updated_at = EXCLUDED.updated_at
RETURNING id, vector_id;`

	row, err := pickRow(ctx, r.pool, tx, q,
		rec.ID, rec.ProductID, string(rec.Source), rec.ImageIndex, rec.CityCode, rec.Content,
		rec.VectorID, rec.Model, rec.JobID, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&rec.ID, &rec.VectorID); err != nil {
		return fmt.Errorf("save enrichment record: %w", err)
	}
	return nil
}

func (r *enrichmentRecordRepo) ExistingForSources(ctx context.Context, tx repository.Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error) {
	if len(productIDs) == 0 || len(sources) == 0 {
		return nil, nil
	}
	srcs := make([]string, len(sources))
	for i, s := range sources {
		srcs[i] = string(s)
	}

	var out []string
	for start := 0; start < len(productIDs); start += cleanupChunkSize {
		end := start + cleanupChunkSize
		if end > len(productIDs) {
			end = len(productIDs)
		}

		const q = `
SELECT DISTINCT product_id
  FROM enrichment_records
 WHERE product_id = ANY($1) AND source = ANY($2);`

		rows, err := queryRows(ctx, r.pool, tx, q, productIDs[start:end], srcs)
		if err != nil {
			return nil, fmt.Errorf("query existing products: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, domain.ErrReadDatabaseRow
			}
			out = append(out, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *enrichmentRecordRepo) ListByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]*model.EnrichmentRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	var out []*model.EnrichmentRecord
	for start := 0; start < len(productIDs); start += cleanupChunkSize {
		end := start + cleanupChunkSize
		if end > len(productIDs) {
			end = len(productIDs)
		}

		const q = `
SELECT id, product_id, source, image_index, city_code, content,
       vector_id, model, job_id, created_at, updated_at
  FROM enrichment_records
 WHERE product_id = ANY($1)
 ORDER BY product_id, source, image_index;`

		rows, err := queryRows(ctx, r.pool, tx, q, productIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("list enrichment records: %w", err)
		}
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out = append(out, rec)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *enrichmentRecordRepo) DeleteByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]string, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	var vectorIDs []string
	for start := 0; start < len(productIDs); start += cleanupChunkSize {
		end := start + cleanupChunkSize
		if end > len(productIDs) {
			end = len(productIDs)
		}

		const q = `
DELETE FROM enrichment_records
 WHERE product_id = ANY($1)
RETURNING vector_id;`

		rows, err := queryRows(ctx, r.pool, tx, q, productIDs[start:end])
		if err != nil {
			return nil, fmt.Errorf("delete enrichment records: %w", err)
		}
		for rows.Next() {
			var vid string
			if err := rows.Scan(&vid); err != nil {
				rows.Close()
				return nil, domain.ErrReadDatabaseRow
			}
			if vid != "" {
				vectorIDs = append(vectorIDs, vid)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return vectorIDs, nil
}

func scanRecord(row pgx.Row) (*model.EnrichmentRecord, error) {
	var rec model.EnrichmentRecord
	var source string
	err := row.Scan(&rec.ID, &rec.ProductID, &source, &rec.ImageIndex, &rec.CityCode, &rec.Content,
		&rec.VectorID, &rec.Model, &rec.JobID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	rec.Source = model.EnrichmentSource(source)
	return &rec, nil
}
