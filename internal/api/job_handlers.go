package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Moxx-Company/validator-pro/internal/dispatcher"
	"github.com/Moxx-Company/validator-pro/internal/validation"
)

const (
	defaultResultsLimit = 1000
	maxResultsLimit     = 10000
)

type submitJobRequest struct {
	Kind  string   `json:"kind"`
	Items []string `json:"items"`
}

type submitJobResponse struct {
	JobID             string          `json:"job_id"`
	Kind              validation.Kind `json:"kind"`
	Total             int             `json:"total_items"`
	DuplicatesRemoved int             `json:"duplicates_removed"`
}

// submitJob handles POST /v1/jobs. It answers 202 with the job ID, 400 for
// malformed input, 413 for oversized lists, 429 when the client is over its
// submission rate, and 503 when the admission queue is full.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, "submission rate limit exceeded")
		return
	}

	var req submitJobRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	kind, err := validation.ParseKind(req.Kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, removed := validation.Dedupe(kind, req.Items)
	if len(items) == 0 {
		writeError(w, http.StatusBadRequest, "items required")
		return
	}
	if len(items) > s.opts.MaxItems {
		writeError(w, http.StatusRequestEntityTooLarge, "too many items (max "+strconv.Itoa(s.opts.MaxItems)+")")
		return
	}

	jobID, err := s.svc.Admit(r.Context(), kind, items)
	if err != nil {
		if errors.Is(err, dispatcher.ErrQueueFull) {
			writeError(w, http.StatusServiceUnavailable, "validation queue is full, retry later")
			return
		}
		s.logger.Error("admit job failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to submit job")
		return
	}
	writeJSON(w, http.StatusAccepted, submitJobResponse{
		JobID:             jobID,
		Kind:              kind,
		Total:             len(items),
		DuplicatesRemoved: removed,
	})
}

// getJob handles GET /v1/jobs/{job_id}.
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.svc.Job(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

type resultsResponse struct {
	Job      validation.Job       `json:"job"`
	Summary  *validation.Summary  `json:"summary,omitempty"`
	Verdicts []validation.Verdict `json:"verdicts"`
	Total    int                  `json:"total_verdicts"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
}

// getResults handles GET /v1/jobs/{job_id}/results?limit=&offset=. The
// summary is included once the job is terminal.
func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultResultsLimit, maxResultsLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobID := chi.URLParam(r, "job_id")
	job, err := s.svc.Job(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load job")
		return
	}
	verdicts, err := s.svc.Results(r.Context(), jobID)
	if err != nil {
		s.writeStoreError(w, r, err, "failed to load results")
		return
	}
	resp := resultsResponse{Job: job, Total: len(verdicts), Limit: limit, Offset: offset}
	if job.Status.Terminal() {
		summary := validation.Summarize(verdicts)
		resp.Summary = &summary
	}
	resp.Verdicts = page(verdicts, limit, offset)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	if errors.Is(err, validation.ErrJobNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.logger.Error(msg, zap.String("request_id", RequestID(r.Context())), zap.Error(err))
	writeError(w, http.StatusInternalServerError, msg)
}

func page[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	end := offset + limit
	if end > len(in) {
		end = len(in)
	}
	return in[offset:end]
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}
