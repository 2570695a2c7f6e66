package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Moxx-Company/validator-pro/internal/progress"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

type progressDTO struct {
	JobID          string               `json:"job_id"`
	Kind           validation.Kind      `json:"kind"`
	Status         validation.JobStatus `json:"status"`
	Total          int                  `json:"total_items"`
	Processed      int                  `json:"processed_items"`
	Valid          int                  `json:"valid_items"`
	Invalid        int                  `json:"invalid_items"`
	Percent        float64              `json:"percent"`
	Bar            string               `json:"bar"`
	ItemsPerSecond float64              `json:"items_per_second"`
	ETASeconds     *float64             `json:"eta_seconds,omitempty"`
	ETA            string               `json:"eta"`
	ElapsedSeconds float64              `json:"elapsed_seconds"`
	Error          string               `json:"error,omitempty"`
	Live           bool                 `json:"live"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// getProgress handles GET /v1/jobs/{job_id}/progress. Live tracker state is
// preferred; once the tracker has forgotten a job the persisted counters are
// reported instead, without throughput or ETA.
func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	if snap, ok := s.svc.Progress(jobID); ok {
		writeJSON(w, http.StatusOK, toProgressDTO(snap, true))
		return
	}
	job, err := s.svc.Job(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, toProgressDTO(snapshotFromJob(job), false))
}

// stats handles GET /v1/stats.
func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Stats())
}

func snapshotFromJob(job validation.Job) progress.Snapshot {
	snap := progress.Snapshot{
		JobID:       job.ID,
		Kind:        job.Kind,
		Status:      job.Status,
		Total:       job.Total,
		Processed:   job.Counters.Processed,
		Valid:       job.Counters.Valid,
		Invalid:     job.Counters.Invalid,
		ErrorText:   job.ErrorText,
		UpdatedAt:   job.CreatedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.StartedAt != nil {
		snap.StartedAt = *job.StartedAt
		end := time.Now()
		if job.CompletedAt != nil {
			end = *job.CompletedAt
			snap.UpdatedAt = *job.CompletedAt
		}
		snap.Elapsed = end.Sub(*job.StartedAt)
	}
	return snap
}

func toProgressDTO(snap progress.Snapshot, live bool) progressDTO {
	dto := progressDTO{
		JobID:          snap.JobID,
		Kind:           snap.Kind,
		Status:         snap.Status,
		Total:          snap.Total,
		Processed:      snap.Processed,
		Valid:          snap.Valid,
		Invalid:        snap.Invalid,
		Percent:        snap.Percent(),
		Bar:            snap.Bar(progress.DefaultBarWidth),
		ItemsPerSecond: snap.Throughput,
		ETA:            snap.ETAString(),
		ElapsedSeconds: snap.Elapsed.Seconds(),
		Error:          snap.ErrorText,
		Live:           live,
		UpdatedAt:      snap.UpdatedAt,
	}
	if snap.ETAKnown {
		eta := snap.ETA.Seconds()
		dto.ETASeconds = &eta
	}
	return dto
}
