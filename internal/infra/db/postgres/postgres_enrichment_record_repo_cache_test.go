//go:build !integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/go-redis/redis/v8"
)

func TestRecordRepoCacheDecorator(t *testing.T) {
	ctx := context.Background()
	sources := []model.EnrichmentSource{model.SourceProductJSON}

	t.Run("ExistingForSources should only query the DB for cache misses", func(t *testing.T) {
		// Arrange: p1 is cached, p2 is not.
		mockRedis := &mockRedisClient{
			GetFunc: func(ctx context.Context, key string) (string, error) {
				if key == dedupKey("p1", model.SourceProductJSON) {
					return "1", nil
				}
				return "", redis.Nil
			},
		}
		var queried []string
		mockInner := &mockInnerRecordRepo{
			ExistingForSourcesFunc: func(ctx context.Context, tx repository.Tx, productIDs []string, srcs []model.EnrichmentSource) ([]string, error) {
				queried = productIDs
				return []string{"p2"}, nil
			},
		}
		decorator := NewRecordRepoCacheDecorator(mockInner, mockRedis, time.Hour)

		// Act
		existing, err := decorator.ExistingForSources(ctx, nil, []string{"p1", "p2", "p3"}, sources)

		// Assert
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(queried) != 2 || queried[0] != "p2" || queried[1] != "p3" {
			t.Errorf("expected only the misses to hit the DB, got %v", queried)
		}
		if len(existing) != 2 {
			t.Errorf("expected p1 (cache) and p2 (db), got %v", existing)
		}
	})

	t.Run("Save should warm the dedup key after the row is in", func(t *testing.T) {
		var cacheSets sync.Map
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				cacheSets.Store(key, value)
				return nil
			},
		}
		mockInner := &mockInnerRecordRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error {
				return nil
			},
		}
		decorator := NewRecordRepoCacheDecorator(mockInner, mockRedis, time.Hour)

		rec := model.NewEnrichmentRecord("p1", model.SourceImageCaption, 0, "nyc", "a caption", "m", "job-1")
		if err := decorator.Save(ctx, nil, rec); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if _, ok := cacheSets.Load(dedupKey("p1", model.SourceImageCaption)); !ok {
			t.Error("expected the dedup key to be warmed after save")
		}
	})

	t.Run("Save should surface DB errors without touching the cache", func(t *testing.T) {
		setCalled := false
		mockRedis := &mockRedisClient{
			SetFunc: func(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
				setCalled = true
				return nil
			},
		}
		mockInner := &mockInnerRecordRepo{
			SaveFunc: func(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error {
				return context.DeadlineExceeded
			},
		}
		decorator := NewRecordRepoCacheDecorator(mockInner, mockRedis, time.Hour)

		rec := model.NewEnrichmentRecord("p1", model.SourceProductJSON, 0, "nyc", "doc", "m", "job-1")
		if err := decorator.Save(ctx, nil, rec); err == nil {
			t.Fatal("expected the inner error to surface")
		}
		if setCalled {
			t.Error("a failed save must not warm the cache")
		}
	})

	t.Run("DeleteByProducts should invalidate every source key", func(t *testing.T) {
		var deletedKeys sync.Map
		mockRedis := &mockRedisClient{
			DelFunc: func(ctx context.Context, keys ...string) error {
				for _, k := range keys {
					deletedKeys.Store(k, true)
				}
				return nil
			},
		}
		mockInner := &mockInnerRecordRepo{
			DeleteByProductsFunc: func(ctx context.Context, tx repository.Tx, productIDs []string) ([]string, error) {
				return []string{"vec-1"}, nil
			},
		}
		decorator := NewRecordRepoCacheDecorator(mockInner, mockRedis, time.Hour)

		vectorIDs, err := decorator.DeleteByProducts(ctx, nil, []string{"p1"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(vectorIDs) != 1 || vectorIDs[0] != "vec-1" {
			t.Errorf("expected the inner vector ids back, got %v", vectorIDs)
		}

		for _, src := range []model.EnrichmentSource{model.SourceProductJSON, model.SourceImageCaption, model.SourceImageCLIP} {
			if _, ok := deletedKeys.Load(dedupKey("p1", src)); !ok {
				t.Errorf("expected key for source %s to be invalidated", src)
			}
		}
	})
}
