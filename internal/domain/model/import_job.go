package model

import (
	"time"

	"github.com/google/uuid"
)

type ImportJobStatus string

const (
	ImportJobStatusPending    ImportJobStatus = "pending"
	ImportJobStatusProcessing ImportJobStatus = "processing"
	ImportJobStatusCompleted  ImportJobStatus = "completed"
)

// ExistingBehavior controls what happens to a product that already has
// enrichment output from an earlier job.
type ExistingBehavior string

const (
	// ExistingSkip marks the item skipped instead of re-enriching.
	ExistingSkip ExistingBehavior = "skip"
	// ExistingDeleteThenInsert wipes prior output for the job's products
	// before processing starts, then enriches from scratch.
	ExistingDeleteThenInsert ExistingBehavior = "delete_then_insert"
)

// CaptionImageInput selects how image bytes reach the caption model.
type CaptionImageInput string

const (
	CaptionInputURL      CaptionImageInput = "url"
	CaptionInputDownload CaptionImageInput = "download"
)

// ImportJob is one batch import of product records. Counters are only ever
// moved by relative deltas inside the same transaction as the item
// transition that caused them, so they stay consistent under concurrent
// workers.
type ImportJob struct {
	ID string

	TotalCount   int
	InvalidCount int
	SuccessCount int
	FailedCount  int
	SkippedCount int

	ExistingBehavior  ExistingBehavior
	DoTextEmbedding   bool
	DoImageCaptions   bool
	DoImageVectors    bool
	CaptionImageInput CaptionImageInput

	Status    ImportJobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewImportJob(behavior ExistingBehavior, embed, captions, vectors bool, captionInput CaptionImageInput) *ImportJob {
	now := time.Now()
	if behavior == "" {
		behavior = ExistingSkip
	}
	if captionInput == "" {
		captionInput = CaptionInputURL
	}
	return &ImportJob{
		ID:                uuid.NewString(),
		ExistingBehavior:  behavior,
		DoTextEmbedding:   embed,
		DoImageCaptions:   captions,
		DoImageVectors:    vectors,
		CaptionImageInput: captionInput,
		Status:            ImportJobStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// EnabledSources lists the enrichment sources this job's toggles produce.
// The dedup gate matches against exactly these.
func (j *ImportJob) EnabledSources() []EnrichmentSource {
	var out []EnrichmentSource
	if j.DoTextEmbedding {
		out = append(out, SourceProductJSON)
	}
	if j.DoImageCaptions {
		out = append(out, SourceImageCaption)
	}
	if j.DoImageVectors {
		out = append(out, SourceImageCLIP)
	}
	return out
}

// Terminal reports whether every queued item reached a terminal status.
func (j *ImportJob) Terminal() bool {
	return j.SuccessCount+j.FailedCount+j.SkippedCount >= j.TotalCount && j.TotalCount > 0
}

// JobCountDelta carries relative counter adjustments. Fields may be negative;
// the store applies them with `counter = counter + delta`, never by writing
// absolute values.
type JobCountDelta struct {
	Total   int
	Invalid int
	Success int
	Failed  int
	Skipped int
}
