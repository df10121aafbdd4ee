package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/posefactory/renderq/internal/common"
	"github.com/posefactory/renderq/internal/dispatcher"
	"github.com/posefactory/renderq/internal/models"
)

// JobHandler exposes the dispatcher operations over HTTP. Stateless:
// everything it knows comes from local records or the store.
type JobHandler struct {
	service *dispatcher.Service
	logger  arbor.ILogger
}

// NewJobHandler creates a job handler backed by the dispatcher service.
func NewJobHandler(service *dispatcher.Service, logger arbor.ILogger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// JobResponse is the wire shape of one job in API responses.
type JobResponse struct {
	JobID     string           `json:"job_id"`
	JobType   models.JobType   `json:"job_type"`
	CreatedAt string           `json:"created_at"`
	Status    models.JobStatus `json:"status"`
}

// SubmitHandler handles POST /jobs.
func (h *JobHandler) SubmitHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req dispatcher.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", "validation")
		return
	}

	manifest, err := h.service.Submit(r.Context(), req)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Job submission rejected")
		WriteServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, JobResponse{
		JobID:     manifest.JobID,
		JobType:   manifest.JobType,
		CreatedAt: manifest.CreatedAt,
		Status:    models.StatusPending,
	})
}

// ListHandler handles GET /jobs: local records with their probed store
// status, newest first.
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	manifests, err := h.service.List(r.Context())
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	jobs := make([]JobResponse, 0, len(manifests))
	for _, m := range manifests {
		status, err := h.service.Status(r.Context(), m.JobID)
		if err != nil {
			status = models.StatusUnknown
		}
		jobs = append(jobs, JobResponse{
			JobID:     m.JobID,
			JobType:   m.JobType,
			CreatedAt: m.CreatedAt,
			Status:    status,
		})
	}
	WriteJSON(w, http.StatusOK, jobs)
}

// StatusHandler handles GET /jobs/{id}.
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if !common.IsValidSlug(id) {
		WriteError(w, http.StatusBadRequest, "invalid job id", "validation")
		return
	}

	status, err := h.service.Status(r.Context(), id)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"job_id": id,
		"status": status,
	})
}

// downloadRequest is the optional body of POST /jobs/{id}/download.
type downloadRequest struct {
	DestDir string `json:"dest_dir,omitempty"`
	Force   bool   `json:"force,omitempty"`
}

// DownloadHandler handles POST /jobs/{id}/download: mirrors the job's
// results into a directory on the dispatcher host.
func (h *JobHandler) DownloadHandler(w http.ResponseWriter, r *http.Request, id string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if !common.IsValidSlug(id) {
		WriteError(w, http.StatusBadRequest, "invalid job id", "validation")
		return
	}

	req := downloadRequest{DestDir: "."}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "validation")
			return
		}
		if req.DestDir == "" {
			req.DestDir = "."
		}
	}

	target, err := h.service.Download(r.Context(), id, req.DestDir, req.Force)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"job_id": id,
		"path":   target,
	})
}
