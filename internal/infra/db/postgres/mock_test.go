//go:build !integration

package postgres

import (
	"context"
	"time"

	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/repository"
	red "catalog-enrichment/internal/infra/redis"
)

// --- Mocks for Cache Decorator Tests ---

// mockInnerRecordRepo mocks the database repository the record decorator wraps.
type mockInnerRecordRepo struct {
	SaveFunc               func(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error
	ExistingForSourcesFunc func(ctx context.Context, tx repository.Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error)
	ListByProductsFunc     func(ctx context.Context, tx repository.Tx, productIDs []string) ([]*model.EnrichmentRecord, error)
	DeleteByProductsFunc   func(ctx context.Context, tx repository.Tx, productIDs []string) ([]string, error)
}

var _ repository.EnrichmentRecordRepository = (*mockInnerRecordRepo)(nil)

func (m *mockInnerRecordRepo) Save(ctx context.Context, tx repository.Tx, rec *model.EnrichmentRecord) error {
	return m.SaveFunc(ctx, tx, rec)
}
func (m *mockInnerRecordRepo) ExistingForSources(ctx context.Context, tx repository.Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error) {
	return m.ExistingForSourcesFunc(ctx, tx, productIDs, sources)
}
func (m *mockInnerRecordRepo) ListByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]*model.EnrichmentRecord, error) {
	return m.ListByProductsFunc(ctx, tx, productIDs)
}
func (m *mockInnerRecordRepo) DeleteByProducts(ctx context.Context, tx repository.Tx, productIDs []string) ([]string, error) {
	return m.DeleteByProductsFunc(ctx, tx, productIDs)
}

// mockRedisClient mocks our Redis client wrapper.
type mockRedisClient struct {
	GetFunc    func(ctx context.Context, key string) (string, error)
	SetFunc    func(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DelFunc    func(ctx context.Context, keys ...string) error
	PingFunc   func(ctx context.Context) error
	IncrFunc   func(ctx context.Context, key string) (int64, error)
	ExpireFunc func(ctx context.Context, key string, expiration time.Duration) error
	CloseFunc  func() error
}

var _ red.RedisClient = &mockRedisClient{}

func (m *mockRedisClient) Get(ctx context.Context, key string) (string, error) {
	return m.GetFunc(ctx, key)
}
func (m *mockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return m.SetFunc(ctx, key, value, expiration)
}
func (m *mockRedisClient) Del(ctx context.Context, keys ...string) error {
	return m.DelFunc(ctx, keys...)
}
func (m *mockRedisClient) Ping(ctx context.Context) error { return m.PingFunc(ctx) }
func (m *mockRedisClient) Incr(ctx context.Context, key string) (int64, error) {
	return m.IncrFunc(ctx, key)
}
func (m *mockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return m.ExpireFunc(ctx, key, expiration)
}
func (m *mockRedisClient) Close() error { return m.CloseFunc() }
