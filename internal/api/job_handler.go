package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/scan2target/scan2target/internal/domain"
	"github.com/scan2target/scan2target/internal/service"
	"github.com/scan2target/scan2target/internal/store"
)

// ScanSubmission is the request body for starting a scan.
type ScanSubmission struct {
	DeviceID       string `json:"device_id" validate:"required"`
	TargetID       string `json:"target_id" validate:"required"`
	ProfileID      string `json:"profile_id,omitempty"`
	FilenamePrefix string `json:"filename_prefix,omitempty"`
}

// PrintSubmission is the request body for starting a print.
type PrintSubmission struct {
	DeviceID string `json:"device_id" validate:"required"`
	FilePath string `json:"file_path" validate:"required"`
	Copies   int    `json:"copies,omitempty"`
	Duplex   bool   `json:"duplex,omitempty"`
}

// JobResponse is the job representation returned by the API.
type JobResponse struct {
	ID            string    `json:"id"`
	Kind          string    `json:"job_type"`
	DeviceID      string    `json:"device_id"`
	TargetID      string    `json:"target_id,omitempty"`
	Status        string    `json:"status"`
	FilePath      string    `json:"file_path,omitempty"`
	ThumbnailPath string    `json:"thumbnail_path,omitempty"`
	Message       string    `json:"message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// JobHandler handles job-related HTTP requests.
type JobHandler struct {
	scans     *service.ScanService
	jobs      *service.JobService
	validator *validator.Validate
	logger    *slog.Logger
}

// NewJobHandler creates a JobHandler.
func NewJobHandler(scans *service.ScanService, jobs *service.JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{
		scans:     scans,
		jobs:      jobs,
		validator: validator.New(),
		logger:    logger.With("component", "api"),
	}
}

// StartScan handles POST /api/scan.
func (h *JobHandler) StartScan(w http.ResponseWriter, r *http.Request) {
	var req ScanSubmission
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	job, err := h.scans.StartScan(r.Context(), service.ScanRequest{
		DeviceID:       req.DeviceID,
		TargetID:       req.TargetID,
		ProfileID:      req.ProfileID,
		FilenamePrefix: req.FilenamePrefix,
	})
	if err != nil {
		h.logger.Error("failed to start scan", "error", err, "device", req.DeviceID)
		RespondWithError(w, http.StatusInternalServerError, "failed to start scan")
		return
	}
	RespondWithJSON(w, http.StatusAccepted, jobToResponse(job))
}

// StartPrint handles POST /api/print.
func (h *JobHandler) StartPrint(w http.ResponseWriter, r *http.Request) {
	var req PrintSubmission
	if err := DecodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid request format")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		RespondWithError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	job, err := h.scans.StartPrint(r.Context(), service.PrintRequest{
		DeviceID: req.DeviceID,
		FilePath: req.FilePath,
		Copies:   req.Copies,
		Duplex:   req.Duplex,
	})
	if err != nil {
		h.logger.Error("failed to start print", "error", err, "device", req.DeviceID)
		RespondWithError(w, http.StatusInternalServerError, "failed to start print")
		return
	}
	RespondWithJSON(w, http.StatusAccepted, jobToResponse(job))
}

// ListJobs handles GET /api/jobs.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.JobFilter{}
	if kind := r.URL.Query().Get("type"); kind != "" {
		filter.Kind = domain.JobKind(kind)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			RespondWithError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	jobs, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	responses := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		responses = append(responses, jobToResponse(job))
	}
	RespondWithJSON(w, http.StatusOK, responses)
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		if store.IsNotFoundError(err) {
			RespondWithError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to load job", "error", err, "job_id", id)
		RespondWithError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	RespondWithJSON(w, http.StatusOK, jobToResponse(job))
}

// CancelJob handles POST /api/jobs/{id}/cancel.
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	err := h.scans.Cancel(r.Context(), id)
	switch {
	case err == nil:
		RespondWithJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
	case store.IsNotFoundError(err):
		RespondWithError(w, http.StatusNotFound, "job not found")
	default:
		// Terminal jobs and other invalid transitions.
		RespondWithError(w, http.StatusConflict, err.Error())
	}
}

// DeleteJob handles DELETE /api/jobs/{id}.
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := h.jobID(w, r)
	if !ok {
		return
	}
	if err := h.jobs.DeleteJob(r.Context(), id); err != nil {
		if store.IsNotFoundError(err) {
			RespondWithError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("failed to delete job", "error", err, "job_id", id)
		RespondWithError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid job id")
		return uuid.Nil, false
	}
	return id, true
}

func jobToResponse(job *domain.Job) JobResponse {
	return JobResponse{
		ID:            job.ID.String(),
		Kind:          string(job.Kind),
		DeviceID:      job.DeviceID,
		TargetID:      job.TargetID,
		Status:        string(job.Status),
		FilePath:      job.FilePath,
		ThumbnailPath: job.ThumbnailPath,
		Message:       job.Message,
		CreatedAt:     job.CreatedAt,
		UpdatedAt:     job.UpdatedAt,
	}
}
