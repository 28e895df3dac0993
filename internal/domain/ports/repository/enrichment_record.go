package repository

import (
	"context"

	"catalog-enrichment/internal/domain/model"
)

type EnrichmentRecordRepository interface {
	// Save upserts on (product_id, source, image_index) so re-processing a
	// product replaces its prior output instead of duplicating it.
	Save(ctx context.Context, tx Tx, rec *model.EnrichmentRecord) error

	// ExistingForSources returns the subset of productIDs that already have at
	// least one record from any of the given sources. The dedup gate calls
	// this; empty input returns empty output without touching the database.
	ExistingForSources(ctx context.Context, tx Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error)

	// ListByProducts returns all records for the given product ids.
	ListByProducts(ctx context.Context, tx Tx, productIDs []string) ([]*model.EnrichmentRecord, error)

	// DeleteByProducts removes all records for the given product ids and
	// returns their vector ids so the caller can clean the vector store.
	DeleteByProducts(ctx context.Context, tx Tx, productIDs []string) ([]string, error)
}
