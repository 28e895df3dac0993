package model

import (
	"time"

	"github.com/google/uuid"
)

// EnrichmentSource names the pipeline stage that produced a record.
type EnrichmentSource string

const (
	SourceProductJSON  EnrichmentSource = "product_json"
	SourceImageCaption EnrichmentSource = "image_caption"
	SourceImageCLIP    EnrichmentSource = "image_clip"
)

// EnrichmentRecord is one committed enrichment output for a product.
// Text lives in Postgres; the vector (if any) lives in the vector store
// under VectorID, which doubles as the point id there.
//
// Records are keyed (product_id, source, image_index) so re-running a
// product overwrites instead of duplicating. ImageIndex is 0 for non-image
// sources.
type EnrichmentRecord struct {
	ID         string
	ProductID  string
	Source     EnrichmentSource
	ImageIndex int
	CityCode   string
	Content    string
	VectorID   string
	Model      string
	JobID      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewEnrichmentRecord(productID string, source EnrichmentSource, imageIndex int, cityCode, content, modelName, jobID string) *EnrichmentRecord {
	now := time.Now()
	return &EnrichmentRecord{
		ID:         uuid.NewString(),
		ProductID:  productID,
		Source:     source,
		ImageIndex: imageIndex,
		CityCode:   cityCode,
		Content:    content,
		VectorID:   uuid.NewString(),
		Model:      modelName,
		JobID:      jobID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
