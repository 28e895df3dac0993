package api

import (
	"encoding/json"
	"net/http"
	"time"

	"catalog-enrichment/internal/domain"
	"catalog-enrichment/internal/domain/model"
	"catalog-enrichment/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type jobResponse struct {
	ID                string `json:"id"`
	Status            string `json:"status"`
	ExistingBehavior  string `json:"existing_behavior"`
	DoTextEmbedding   bool   `json:"do_text_embedding"`
	DoImageCaptions   bool   `json:"do_image_captions"`
	DoImageVectors    bool   `json:"do_image_vectors"`
	CaptionImageInput string `json:"caption_image_input"`
	TotalCount        int    `json:"total_count"`
	InvalidCount      int    `json:"invalid_count"`
	SuccessCount      int    `json:"success_count"`
	FailedCount       int    `json:"failed_count"`
	SkippedCount      int    `json:"skipped_count"`
	CreatedAt         string `json:"created_at"`
}

func toJobResponse(j *model.ImportJob) jobResponse {
	return jobResponse{
		ID:                j.ID,
		Status:            string(j.Status),
		ExistingBehavior:  string(j.ExistingBehavior),
		DoTextEmbedding:   j.DoTextEmbedding,
		DoImageCaptions:   j.DoImageCaptions,
		DoImageVectors:    j.DoImageVectors,
		CaptionImageInput: string(j.CaptionImageInput),
		TotalCount:        j.TotalCount,
		InvalidCount:      j.InvalidCount,
		SuccessCount:      j.SuccessCount,
		FailedCount:       j.FailedCount,
		SkippedCount:      j.SkippedCount,
		CreatedAt:         j.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type statsResponse struct {
	PendingReady   int    `json:"pending_ready_count"`
	PendingDelayed int    `json:"pending_delayed_count"`
	Processing     int    `json:"processing_count"`
	Success        int    `json:"success_count"`
	Failed         int    `json:"failed_count"`
	Skipped        int    `json:"skipped_count"`
	NextRetryAt    string `json:"next_retry_at,omitempty"`
}

func toStatsResponse(s *model.QueueStats) statsResponse {
	out := statsResponse{
		PendingReady:   s.PendingReady,
		PendingDelayed: s.PendingDelayed,
		Processing:     s.Processing,
		Success:        s.Success,
		Failed:         s.Failed,
		Skipped:        s.Skipped,
	}
	if s.NextRetryAt != nil {
		out.NextRetryAt = s.NextRetryAt.UTC().Format(time.RFC3339)
	}
	return out
}

type createJobRequest struct {
	ExistingBehavior  string `json:"existing_behavior"`
	DoTextEmbedding   bool   `json:"do_text_embedding"`
	DoImageCaptions   bool   `json:"do_image_captions"`
	DoImageVectors    bool   `json:"do_image_vectors"`
	CaptionImageInput string `json:"caption_image_input"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	job, err := s.ingest.CreateJob(r.Context(),
		model.ExistingBehavior(req.ExistingBehavior),
		req.DoTextEmbedding, req.DoImageCaptions, req.DoImageVectors,
		model.CaptionImageInput(req.CaptionImageInput))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

type appendItemsRequest struct {
	Rows []usecase.RowInput `json:"rows"`
}

func (s *Server) handleAppendItems(w http.ResponseWriter, r *http.Request) {
	var req appendItemsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	job, err := s.ingest.AppendRows(r.Context(), chi.URLParam(r, "jobID"), req.Rows)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, stats, err := s.queue.Stats(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Job   jobResponse   `json:"job"`
		Queue statsResponse `json:"queue"`
	}{toJobResponse(job), toStatsResponse(stats)})
}

type processRequest struct {
	Limit int `json:"limit"`
}

// handleProcess claims one bounded batch and runs the pipeline inside the
// request, so serverless-style invokers can drive the queue without a
// resident worker. A fresh delete_then_insert job gets its downstream wipe
// here, before the first claim.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var req processRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req) // empty body means default limit
	}

	job, err := s.queue.Job(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	// Counters move transactionally while the derived status lags, so they
	// are the authoritative "nothing left" signal. 409 tells a serverless
	// invoker to stop re-driving a finished job.
	if job.Terminal() {
		writeErr(w, domain.ErrJobNotPending)
		return
	}
	if job.ExistingBehavior == model.ExistingDeleteThenInsert && job.Status == model.ImportJobStatusPending {
		if _, err := s.queue.DeleteDownstream(r.Context(), jobID); err != nil {
			writeErr(w, err)
			return
		}
	}

	processed, err := s.processor.RunBatch(r.Context(), jobID, req.Limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	job, stats, err := s.queue.Stats(r.Context(), jobID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Processed int           `json:"processed"`
		Job       jobResponse   `json:"job"`
		Queue     statsResponse `json:"queue"`
	}{processed, toJobResponse(job), toStatsResponse(stats)})
}

type requeueRequest struct {
	Statuses          []string `json:"statuses"`
	RetryDelaySeconds int      `json:"retry_delay_seconds"`
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var req requeueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	statuses := make([]model.ImportItemStatus, 0, len(req.Statuses))
	for _, s := range req.Statuses {
		statuses = append(statuses, model.ImportItemStatus(s))
	}
	moved, err := s.queue.RequeueItems(r.Context(), chi.URLParam(r, "jobID"), statuses,
		time.Duration(req.RetryDelaySeconds)*time.Second)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"requeued": moved})
}

type bulkSkipRequest struct {
	ItemIDs []string `json:"item_ids"`
	Reason  string   `json:"reason"`
}

func (s *Server) handleBulkSkip(w http.ResponseWriter, r *http.Request) {
	var req bulkSkipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.ItemIDs) == 0 {
		http.Error(w, "item_ids required", http.StatusUnprocessableEntity)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "operator_skip"
	}
	moved, err := s.queue.MarkSkippedBulk(r.Context(), chi.URLParam(r, "jobID"), req.ItemIDs, reason)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"skipped": moved})
}

type reclaimRequest struct {
	StaleSeconds int `json:"stale_seconds"`
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	var req reclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.StaleSeconds <= 0 {
		http.Error(w, "stale_seconds must be positive", http.StatusUnprocessableEntity)
		return
	}
	jobID := chi.URLParam(r, "jobID")
	moved, err := s.queue.RequeueStale(r.Context(), jobID, time.Duration(req.StaleSeconds)*time.Second)
	if err != nil {
		writeErr(w, err)
		return
	}
	if moved > 0 {
		if _, err := s.queue.UpdateJobStatus(r.Context(), jobID); err != nil {
			writeErr(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"reclaimed": moved})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	downstream := r.URL.Query().Get("downstream") == "true"
	if err := s.queue.DeleteJob(r.Context(), chi.URLParam(r, "jobID"), downstream); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
