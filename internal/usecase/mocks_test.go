//go:build !integration

// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/domain/ports/adapter"
	"catalog-enrichment/internal/domain/ports/repository"

	"github.com/jackc/pgx/v4"
)

// The queue mocks share state: item transitions move job counters and
// RefreshStatus reads live item statuses, same as the Postgres pair does
// inside one transaction. newMemQueue wires them together.

type memJobRepo struct {
	mu      sync.RWMutex
	jobs    map[string]*model.ImportJob
	items   *memItemRepo
	saveErr error
}

type memItemRepo struct {
	mu        sync.Mutex
	store     map[string]*model.ImportItem
	jobs      *memJobRepo
	appendErr error
	claimErr  error
}

func newMemQueue() (*memJobRepo, *memItemRepo) {
	jobs := &memJobRepo{jobs: make(map[string]*model.ImportJob)}
	items := &memItemRepo{store: make(map[string]*model.ImportItem), jobs: jobs}
	jobs.items = items
	return jobs, items
}

func (m *memJobRepo) Save(ctx context.Context, _ repository.Tx, job *model.ImportJob) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.ImportJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) AddCounts(ctx context.Context, _ repository.Tx, jobID string, delta model.JobCountDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.TotalCount += delta.Total
	j.InvalidCount += delta.Invalid
	j.SuccessCount += delta.Success
	j.FailedCount += delta.Failed
	j.SkippedCount += delta.Skipped
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobRepo) RefreshStatus(ctx context.Context, _ repository.Tx, jobID string) (model.ImportJobStatus, error) {
	m.items.mu.Lock()
	var pending, processing, done int
	for _, it := range m.items.store {
		if it.JobID != jobID {
			continue
		}
		switch it.Status {
		case model.ImportItemStatusPending:
			pending++
		case model.ImportItemStatusProcessing:
			processing++
		default:
			done++
		}
	}
	m.items.mu.Unlock()

	status := model.ImportJobStatusPending
	switch {
	case pending == 0 && processing == 0 && done > 0:
		status = model.ImportJobStatusCompleted
	case processing > 0 || done > 0:
		status = model.ImportJobStatusProcessing
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return "", domain.ErrNotFound
	}
	j.Status = status
	return status, nil
}

func (m *memJobRepo) ListUnfinished(ctx context.Context, _ repository.Tx, limit int) ([]string, error) {
	m.items.mu.Lock()
	defer m.items.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, it := range m.items.store {
		if it.Status != model.ImportItemStatusPending && it.Status != model.ImportItemStatusProcessing {
			continue
		}
		if !seen[it.JobID] {
			seen[it.JobID] = true
			out = append(out, it.JobID)
		}
	}
	sort.Strings(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) Delete(ctx context.Context, _ repository.Tx, id string) error {
	m.mu.Lock()
	if _, ok := m.jobs[id]; !ok {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	delete(m.jobs, id)
	m.mu.Unlock()

	m.items.mu.Lock()
	defer m.items.mu.Unlock()
	for itemID, it := range m.items.store {
		if it.JobID == id {
			delete(m.items.store, itemID)
		}
	}
	return nil
}

func (m *memItemRepo) Append(ctx context.Context, jobID string, items []*model.ImportItem) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	for _, it := range items {
		if it.JobID != jobID {
			return domain.ErrInvalidArgument
		}
		if err := it.Validate(); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range items {
		for _, existing := range m.store {
			if existing.JobID == jobID && existing.RowIndex == it.RowIndex {
				return domain.ErrAlreadyExists
			}
		}
	}
	invalid := 0
	for _, it := range items {
		cp := *it
		m.store[it.ID] = &cp
		if it.Status == model.ImportItemStatusFailed {
			invalid++
		}
	}
	return m.jobs.AddCounts(ctx, nil, jobID, model.JobCountDelta{Total: len(items), Invalid: invalid, Failed: invalid})
}

func (m *memItemRepo) Claim(ctx context.Context, jobID string, limit int) ([]*model.ImportItem, error) {
	if m.claimErr != nil {
		return nil, m.claimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var ready []*model.ImportItem
	for _, it := range m.store {
		if it.JobID != jobID || it.Status != model.ImportItemStatusPending {
			continue
		}
		if it.NextRetryAt != nil && it.NextRetryAt.After(now) {
			continue
		}
		ready = append(ready, it)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].ID < ready[j].ID })
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}
	out := make([]*model.ImportItem, 0, len(ready))
	for _, it := range ready {
		it.Status = model.ImportItemStatusProcessing
		t := now
		it.ClaimedAt = &t
		it.AttemptCount++
		it.UpdatedAt = now
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memItemRepo) finish(ctx context.Context, itemID, jobID string, status model.ImportItemStatus, reason string, delta model.JobCountDelta) error {
	m.mu.Lock()
	it, ok := m.store[itemID]
	if !ok || it.JobID != jobID || it.Status != model.ImportItemStatusProcessing {
		m.mu.Unlock()
		return domain.ErrNotFound
	}
	it.Status = status
	it.LastError = reason
	it.UpdatedAt = time.Now()
	m.mu.Unlock()
	return m.jobs.AddCounts(ctx, nil, jobID, delta)
}

func (m *memItemRepo) MarkSuccess(ctx context.Context, itemID, jobID string) error {
	return m.finish(ctx, itemID, jobID, model.ImportItemStatusSuccess, "", model.JobCountDelta{Success: 1})
}

func (m *memItemRepo) MarkFailure(ctx context.Context, itemID, jobID, reason string) error {
	return m.finish(ctx, itemID, jobID, model.ImportItemStatusFailed, reason, model.JobCountDelta{Failed: 1})
}

func (m *memItemRepo) MarkSkipped(ctx context.Context, itemID, jobID, reason string) error {
	return m.finish(ctx, itemID, jobID, model.ImportItemStatusSkipped, reason, model.JobCountDelta{Skipped: 1})
}

func (m *memItemRepo) RequeueStale(ctx context.Context, jobID string, staleAfter time.Duration) (int, error) {
	m.mu.Lock()
	cut := time.Now().Add(-staleAfter)
	moved := 0
	for _, it := range m.store {
		if it.JobID != jobID || it.Status != model.ImportItemStatusProcessing {
			continue
		}
		if it.ClaimedAt == nil || it.ClaimedAt.After(cut) {
			continue
		}
		it.Status = model.ImportItemStatusPending
		it.ClaimedAt = nil
		it.LastError = "stale_processing"
		it.UpdatedAt = time.Now()
		moved++
	}
	m.mu.Unlock()
	return moved, nil
}

func (m *memItemRepo) RequeueItems(ctx context.Context, jobID string, statuses []model.ImportItemStatus, retryDelay time.Duration) (int, error) {
	want := make(map[model.ImportItemStatus]bool)
	for _, s := range statuses {
		if s != model.ImportItemStatusFailed && s != model.ImportItemStatusSkipped {
			return 0, domain.ErrInvalidArgument
		}
		want[s] = true
	}
	m.mu.Lock()
	var delta model.JobCountDelta
	moved := 0
	var retryAt *time.Time
	if retryDelay > 0 {
		t := time.Now().Add(retryDelay)
		retryAt = &t
	}
	for _, it := range m.store {
		if it.JobID != jobID || !want[it.Status] {
			continue
		}
		if it.Status == model.ImportItemStatusFailed {
			delta.Failed--
		} else {
			delta.Skipped--
		}
		it.Status = model.ImportItemStatusPending
		it.LastError = ""
		it.NextRetryAt = retryAt
		it.UpdatedAt = time.Now()
		moved++
	}
	m.mu.Unlock()
	if moved == 0 {
		return 0, nil
	}
	return moved, m.jobs.AddCounts(ctx, nil, jobID, delta)
}

func (m *memItemRepo) MarkSkippedBulk(ctx context.Context, _ repository.Tx, jobID string, itemIDs []string, reason string) (int, error) {
	m.mu.Lock()
	moved := 0
	for _, id := range itemIDs {
		it, ok := m.store[id]
		if !ok || it.JobID != jobID {
			continue
		}
		if it.Status != model.ImportItemStatusPending && it.Status != model.ImportItemStatusProcessing {
			continue
		}
		it.Status = model.ImportItemStatusSkipped
		it.LastError = reason
		it.UpdatedAt = time.Now()
		moved++
	}
	m.mu.Unlock()
	if moved == 0 {
		return 0, nil
	}
	return moved, m.jobs.AddCounts(ctx, nil, jobID, model.JobCountDelta{Skipped: moved})
}

func (m *memItemRepo) QueueStats(ctx context.Context, _ repository.Tx, jobID string) (*model.QueueStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	stats := &model.QueueStats{}
	for _, it := range m.store {
		if it.JobID != jobID {
			continue
		}
		switch it.Status {
		case model.ImportItemStatusPending:
			if it.NextRetryAt != nil && it.NextRetryAt.After(now) {
				stats.PendingDelayed++
				if stats.NextRetryAt == nil || it.NextRetryAt.Before(*stats.NextRetryAt) {
					t := *it.NextRetryAt
					stats.NextRetryAt = &t
				}
			} else {
				stats.PendingReady++
			}
		case model.ImportItemStatusProcessing:
			stats.Processing++
		case model.ImportItemStatusSuccess:
			stats.Success++
		case model.ImportItemStatusFailed:
			stats.Failed++
		case model.ImportItemStatusSkipped:
			stats.Skipped++
		}
	}
	return stats, nil
}

func (m *memItemRepo) DistinctProductIDs(ctx context.Context, _ repository.Tx, jobID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, it := range m.store {
		if it.JobID != jobID || it.ProductID == "" {
			continue
		}
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			out = append(out, it.ProductID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memItemRepo) FindByID(ctx context.Context, _ repository.Tx, id string) (*model.ImportItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memItemRepo) ListByJob(ctx context.Context, _ repository.Tx, jobID string, status model.ImportItemStatus, offset, limit int) ([]*model.ImportItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ImportItem
	for _, it := range m.store {
		if it.JobID != jobID {
			continue
		}
		if status != "" && it.Status != status {
			continue
		}
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// memRecordRepo keys records the same way the table does.
type memRecordRepo struct {
	mu      sync.Mutex
	store   map[string]*model.EnrichmentRecord // key: productID|source|imageIndex
	saveErr error
}

func newMemRecordRepo() *memRecordRepo {
	return &memRecordRepo{store: make(map[string]*model.EnrichmentRecord)}
}

func recordKey(productID string, source model.EnrichmentSource, imageIndex int) string {
	return fmt.Sprintf("%s|%s|%d", productID, source, imageIndex)
}

func (m *memRecordRepo) Save(ctx context.Context, _ repository.Tx, rec *model.EnrichmentRecord) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := recordKey(rec.ProductID, rec.Source, rec.ImageIndex)
	if prev, ok := m.store[key]; ok {
		rec.ID = prev.ID
		rec.VectorID = prev.VectorID
	}
	cp := *rec
	m.store[key] = &cp
	return nil
}

func (m *memRecordRepo) ExistingForSources(ctx context.Context, _ repository.Tx, productIDs []string, sources []model.EnrichmentSource) ([]string, error) {
	if len(productIDs) == 0 || len(sources) == 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	wantSrc := make(map[model.EnrichmentSource]bool)
	for _, s := range sources {
		wantSrc[s] = true
	}
	found := make(map[string]bool)
	for _, rec := range m.store {
		if wantSrc[rec.Source] {
			found[rec.ProductID] = true
		}
	}
	var out []string
	for _, pid := range productIDs {
		if found[pid] {
			out = append(out, pid)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memRecordRepo) ListByProducts(ctx context.Context, _ repository.Tx, productIDs []string) ([]*model.EnrichmentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool)
	for _, pid := range productIDs {
		want[pid] = true
	}
	var out []*model.EnrichmentRecord
	for _, rec := range m.store {
		if want[rec.ProductID] {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memRecordRepo) DeleteByProducts(ctx context.Context, _ repository.Tx, productIDs []string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[string]bool)
	for _, pid := range productIDs {
		want[pid] = true
	}
	var vids []string
	for key, rec := range m.store {
		if want[rec.ProductID] {
			if rec.VectorID != "" {
				vids = append(vids, rec.VectorID)
			}
			delete(m.store, key)
		}
	}
	return vids, nil
}

// memVectorStore records upserts and deletes per collection.
type memVectorStore struct {
	mu        sync.Mutex
	points    map[string]map[string]*repository.VectorPayload // collection -> pointID -> payload
	dims      map[string]map[string]int                       // collection -> pointID -> vector length
	deleted   map[string][]string
	upsertErr error
}

func newMemVectorStore() *memVectorStore {
	return &memVectorStore{
		points:  make(map[string]map[string]*repository.VectorPayload),
		dims:    make(map[string]map[string]int),
		deleted: make(map[string][]string),
	}
}

func (m *memVectorStore) EnsureCollections(ctx context.Context) error { return nil }

func (m *memVectorStore) Upsert(ctx context.Context, collection, pointID string, vector []float32, payload *repository.VectorPayload) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points[collection] == nil {
		m.points[collection] = make(map[string]*repository.VectorPayload)
		m.dims[collection] = make(map[string]int)
	}
	cp := *payload
	m.points[collection][pointID] = &cp
	m.dims[collection][pointID] = len(vector)
	return nil
}

func (m *memVectorStore) DeletePoints(ctx context.Context, collection string, pointIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range pointIDs {
		delete(m.points[collection], id)
	}
	m.deleted[collection] = append(m.deleted[collection], pointIDs...)
	return nil
}

func (m *memVectorStore) Close() error { return nil }

func (m *memVectorStore) count(collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.points[collection])
}

// memTxManager runs the function directly; the mem repos ignore tx handles.
type memTxManager struct{}

func (memTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, nil)
}

// Provider stubs.

type stubEmbedder struct {
	mu    sync.Mutex
	dims  int
	err   error
	calls []string
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, texts...)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, s.dims)
		out[i][0] = float32(len(texts[i]))
	}
	return out, nil
}

func (s *stubEmbedder) Model() string   { return "stub-embed" }
func (s *stubEmbedder) Dimensions() int { return s.dims }

type stubCaptioner struct {
	mu      sync.Mutex
	caption string
	err     error
	calls   []adapter.ImageRef
}

func (s *stubCaptioner) Caption(ctx context.Context, img adapter.ImageRef) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, img)
	s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.caption, nil
}

func (s *stubCaptioner) Model() string { return "stub-caption" }

type stubVectorizer struct {
	mu    sync.Mutex
	dims  int
	err   error
	calls []adapter.ImageRef
}

func (s *stubVectorizer) Vectorize(ctx context.Context, img adapter.ImageRef) ([]float32, error) {
	s.mu.Lock()
	s.calls = append(s.calls, img)
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return make([]float32, s.dims), nil
}

func (s *stubVectorizer) Model() string   { return "stub-clip" }
func (s *stubVectorizer) Dimensions() int { return s.dims }

type stubFetcher struct {
	mu      sync.Mutex
	data    []byte
	err     error
	fetched []string
}

func (s *stubFetcher) Fetch(ctx context.Context, url string) (adapter.ImageRef, error) {
	s.mu.Lock()
	s.fetched = append(s.fetched, url)
	s.mu.Unlock()
	if s.err != nil {
		return adapter.ImageRef{}, s.err
	}
	return adapter.ImageRef{URL: url, Bytes: s.data, MIME: "image/jpeg"}, nil
}
