package model

import (
	"crypto/rand"
	"strings"
	"time"

	"catalog-enrichment/internal/domain"

	"github.com/oklog/ulid/v2"
)

type ImportItemStatus string

const (
	ImportItemStatusPending    ImportItemStatus = "pending"
	ImportItemStatusProcessing ImportItemStatus = "processing"
	ImportItemStatusSuccess    ImportItemStatus = "success"
	ImportItemStatusFailed     ImportItemStatus = "failed"
	ImportItemStatusSkipped    ImportItemStatus = "skipped"
)

// TerminalItemStatus reports whether a status can no longer transition
// without an operator requeue.
func TerminalItemStatus(s ImportItemStatus) bool {
	switch s {
	case ImportItemStatusSuccess, ImportItemStatusFailed, ImportItemStatusSkipped:
		return true
	}
	return false
}

// ImportItem is one product row inside an ImportJob. IDs are ULIDs so that
// lexical order matches insertion order; the claim query leans on that.
type ImportItem struct {
	ID    string
	JobID string

	RowIndex  int
	CityCode  string
	ProductID string
	Payload   string

	Status       ImportItemStatus
	AttemptCount int
	NextRetryAt  *time.Time
	LastError    string
	ClaimedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewImportItem(jobID string, rowIndex int, cityCode, productID, payload string) *ImportItem {
	now := time.Now()
	return &ImportItem{
		ID:        ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		JobID:     jobID,
		RowIndex:  rowIndex,
		CityCode:  cityCode,
		ProductID: productID,
		Payload:   payload,
		Status:    ImportItemStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate is the pre-queue check the ingester runs on every row.
// A row may arrive pre-failed (status already failed with a reason from the
// upstream tokenizer); those skip the payload check and count as invalid.
func (i *ImportItem) Validate() error {
	if i.RowIndex <= 0 {
		return domain.ErrInvalidArgument
	}
	if i.Status == ImportItemStatusFailed {
		return nil
	}
	if strings.TrimSpace(i.Payload) == "" {
		return domain.ErrEmptyPayload
	}
	return nil
}

// QueueStats is the per-job snapshot the stats reporter returns.
type QueueStats struct {
	PendingReady   int
	PendingDelayed int
	Processing     int
	Success        int
	Failed         int
	Skipped        int
	NextRetryAt    *time.Time
}
