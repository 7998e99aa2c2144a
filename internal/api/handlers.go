package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/bobarin/storyreel/internal/models"
	"github.com/bobarin/storyreel/internal/store"
)

const (
	maxRequestBytes     = 256 << 20 // inline base64 images and audio
	defaultListLimit    = 20
	maxListLimit        = 100
	defaultPollInterval = 500 * time.Millisecond
)

// JobService is the scheduler as seen by the HTTP layer.
type JobService interface {
	Submit(ctx context.Context, spec models.RenderSpec) (models.RenderJob, error)
	Status(ctx context.Context, id string) (models.RenderJob, error)
	List(ctx context.Context, limit int) ([]models.RenderJob, int)
}

type Handler struct {
	jobs         JobService
	heartbeat    time.Duration
	pollInterval time.Duration
	logger       zerolog.Logger
}

func NewHandler(jobs JobService, heartbeat time.Duration, logger zerolog.Logger) *Handler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &Handler{
		jobs:         jobs,
		heartbeat:    heartbeat,
		pollInterval: defaultPollInterval,
		logger:       logger.With().Str("component", "api").Logger(),
	}
}

// SubmitJob handles POST /v1/jobs
func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.submit(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusAccepted, models.SubmitJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) (models.RenderJob, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)

	var spec models.RenderSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return models.RenderJob{}, false
	}

	job, err := h.jobs.Submit(r.Context(), spec)
	if err != nil {
		h.respondServiceError(w, err, "Failed to submit job")
		return models.RenderJob{}, false
	}
	return job, true
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.jobs.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondServiceError(w, err, "Failed to get job")
		return
	}
	respondJSON(w, http.StatusOK, models.NewJobStatusResponse(job))
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - limit: max results (default 20, max 100)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	jobs, total := h.jobs.List(r.Context(), limit)
	resp := models.ListJobsResponse{
		Jobs:  make([]models.JobStatusResponse, len(jobs)),
		Total: total,
	}
	for i, job := range jobs {
		view := models.NewJobStatusResponse(job)
		if view.Result != nil {
			view.Result.VideoBase64 = ""
		}
		resp.Jobs[i] = view
	}
	respondJSON(w, http.StatusOK, resp)
}

// JobEvents handles GET /v1/jobs/{id}/events
func (h *Handler) JobEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.jobs.Status(r.Context(), id); err != nil {
		h.respondServiceError(w, err, "Failed to get job")
		return
	}
	h.stream(w, r, id)
}

// RenderStream handles POST /v1/render/stream: submit, then stream status
// on the same connection until the job finishes.
func (h *Handler) RenderStream(w http.ResponseWriter, r *http.Request) {
	job, ok := h.submit(w, r)
	if !ok {
		return
	}
	h.stream(w, r, job.ID)
}

// stream writes server-sent events while the job runs: "progress" on every
// change, a heartbeat comment when idle, and a final "done".
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	poll := time.NewTicker(h.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	var last models.JobStatusResponse
	first := true
	for {
		job, err := h.jobs.Status(r.Context(), id)
		if err != nil {
			if r.Context().Err() == nil {
				writeEvent(w, "error", map[string]string{"error": err.Error()})
				flusher.Flush()
			}
			return
		}

		view := models.NewJobStatusResponse(job)
		if job.Status.IsTerminal() {
			writeEvent(w, "done", view)
			flusher.Flush()
			return
		}
		if first || changed(last, view) {
			writeEvent(w, "progress", view)
			flusher.Flush()
			heartbeat.Reset(h.heartbeat)
			last, first = view, false
		}

		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case <-poll.C:
		}
	}
}

func changed(a, b models.JobStatusResponse) bool {
	return a.Status != b.Status || a.Progress != b.Progress || a.Message != b.Message
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		payload = []byte(`{"error":"failed to encode event"}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}

// respondServiceError maps typed errors to status codes.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	var inputErr *models.InputError
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(w, http.StatusNotFound, "Job not found")
	case errors.As(err, &inputErr):
		respondError(w, http.StatusBadRequest, inputErr.Error())
	default:
		h.logger.Error().Err(err).Msg(fallback)
		respondError(w, http.StatusInternalServerError, fallback)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
