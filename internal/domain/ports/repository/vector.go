package repository

import "context"

// VectorPayload is the metadata stored alongside a point.
type VectorPayload struct {
	ProductID string
	Source    string
	CityCode  string
	Content   string
}

// VectorStore is the port for the similarity index. Point ids are the
// VectorID of the owning enrichment record (UUID strings).
type VectorStore interface {
	EnsureCollections(ctx context.Context) error
	Upsert(ctx context.Context, collection, pointID string, vector []float32, payload *VectorPayload) error
	DeletePoints(ctx context.Context, collection string, pointIDs []string) error
	Close() error
}
