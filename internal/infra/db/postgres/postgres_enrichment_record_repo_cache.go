package postgres

import (
	"context"
	"fmt"
	"time"

	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"
	"catalog-enrichment/internal/infra/metrics"
	red "catalog-enrichment/internal/infra/redis"
)

var _ repository.EnrichmentRecordRepository = (*recordRepoCacheDecorator)(nil)

// recordRepoCacheDecorator fronts the dedup gate with redis. Only positive
// existence is cached, keyed per (product, source); a miss just falls
// through to Postgres, so an expired key can only cause a redundant check,
// never a wrong skip.
type recordRepoCacheDecorator struct {
	inner repository.EnrichmentRecordRepository
	cache red.RedisClient
	ttl   time.Duration
}

func NewRecordRepoCacheDecorator(inner repository.EnrichmentRecordRepository, cache red.RedisClient, ttl time.Duration) repository.EnrichmentRecordRepository {
	if ttl <= 0 {
		ttl = 1 * time.Hour
	}
	return &recordRepoCacheDecorator{inner: inner, cache: cache, ttl: ttl}
}

func dedupKey(productID string, source model.EnrichmentSource) string {
	return fmt.Sprintf("enriched:%s:%s", source, productID)
}

func (d *recordRepoCacheDecorator) Save(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error {
	if err := d.inner.Save(ctx, tx, rec); err != nil {
		return err
	}
	// Mark existence after the row is in. Best-effort: a failed Set only
	// costs the next dedup check a database round trip.
	_ = d.cache.Set(ctx, dedupKey(rec.ProductID, rec.Source), "1", d.ttl)
	return nil
}

func (d *recordRepoCacheDecorator) ExistingForSources(ctx context.Context, tx repository.Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error) {
	if len(productIDs) == 0 || len(sources) == 0 {
		return nil, nil
	}

	var existing []string
	var misses []string
	for _, pid := range productIDs {
		hit := false
		for _, src := range sources {
			if _, err := d.cache.Get(ctx, dedupKey(pid, src)); err == nil {
				hit = true
				break
			}
		}
		if hit {
			metrics.IncCacheRequest("dedup", "hit")
			existing = append(existing, pid)
		} else {
			metrics.IncCacheRequest("dedup", "miss")
			misses = append(misses, pid)
		}
	}

	if len(misses) > 0 {
		found, err := d.inner.ExistingForSources(ctx, tx, misses, sources)
		if err != nil {
			return nil, err
		}
		existing = append(existing, found...)
	}
	return existing, nil
}

func (d *recordRepoCacheDecorator) ListByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]*model.EnrichmentRecord, error) {
	return d.inner.ListByProducts(ctx, tx, productIDs)
}

func (d *recordRepoCacheDecorator) DeleteByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]string, error) {
	vectorIDs, err := d.inner.DeleteByProducts(ctx, tx, productIDs)
	if err != nil {
		return nil, err
	}
	// Invalidate every source key; a stale positive here would wrongly skip
	// re-enrichment after a delete_then_insert wipe.
	keys := make([]string, 0, len(productIDs)*3)
	for _, pid := range productIDs {
		for _, src := range []model.EnrichmentSource{model.SourceProductJSON, model.SourceImageCaption, model.SourceImageCLIP} {
			keys = append(keys, dedupKey(pid, src))
		}
	}
	if len(keys) > 0 {
		_ = d.cache.Del(ctx, keys...)
	}
	return vectorIDs, nil
}
