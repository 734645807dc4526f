package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"masterpost/internal/domain"
	"masterpost/internal/pipeline"
	"masterpost/internal/processing"
	"masterpost/pkg/zip"
)

// maxUploadBytes bounds one multipart upload request.
const maxUploadBytes = 200 << 20

type jobResponse struct {
	JobID      string           `json:"job_id"`
	Status     domain.JobStatus `json:"status"`
	Pipeline   string           `json:"pipeline"`
	Tier       domain.Tier      `json:"tier"`
	TotalFiles int              `json:"total_files"`
	Processed  int              `json:"processed"`
	Failed     int              `json:"failed"`
	Error      string           `json:"error_message,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		JobID:      job.ID,
		Status:     job.Status,
		Pipeline:   job.Pipeline,
		Tier:       job.Tier,
		TotalFiles: job.TotalFiles,
		Processed:  job.Processed,
		Failed:     job.Failed,
		Error:      job.ErrorMessage,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	}
}

// JobUpload accepts a multipart batch of images, persists them under the new
// job's upload directory and records the job in the uploaded state. Form
// fields: pipeline (required), tier, settings (JSON).
func (a *App) JobUpload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "at least one file is required")
		return
	}
	for _, fh := range files {
		if !pipeline.SupportedInput(fh.Filename) {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unsupported file type: %s", fh.Filename))
			return
		}
	}

	pipelineName := r.FormValue("pipeline")
	tier := domain.Tier(r.FormValue("tier"))
	if tier == "" {
		tier = domain.TierBasic
	}

	var settings processing.Settings
	if raw := r.FormValue("settings"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &settings); err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "invalid settings payload")
			return
		}
	}

	job, err := a.Manager.Create(r.Context(), userID, pipelineName, tier, len(files), settings)
	if err != nil {
		a.domainError(w, err)
		return
	}

	// A job that loses part of its batch mid-save must not stay uploaded, or
	// it would run against fewer inputs than its total claims.
	abort := func(err error) {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("upload persistence failed")
		if rmErr := a.Store.RemoveJob(job.ID); rmErr != nil {
			a.Logger.Error().Err(rmErr).Str("job_id", job.ID).Msg("upload cleanup failed")
		}
		if stErr := a.Jobs.UpdateStatus(r.Context(), job.ID, domain.JobStatusFailed, "failed to store uploaded files"); stErr != nil {
			a.Logger.Error().Err(stErr).Str("job_id", job.ID).Msg("failed to mark job failed")
		}
		a.error(w, http.StatusInternalServerError, "internal_error", "failed to store uploaded files")
	}

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			abort(err)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			abort(err)
			return
		}
		if _, err := a.Store.SaveUpload(job.ID, fh.Filename, data); err != nil {
			abort(err)
			return
		}
	}

	a.json(w, http.StatusCreated, toJobResponse(job))
}

// JobProcess kicks off processing for an uploaded job. The run happens in the
// background; callers poll the progress endpoint.
func (a *App) JobProcess(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	if job.Status != domain.JobStatusUploaded {
		a.error(w, http.StatusConflict, "invalid_state", fmt.Sprintf("job is %s", job.Status))
		return
	}

	// The request context dies with the response; the run gets its own.
	go func() {
		if err := a.Manager.Start(context.Background(), job.ID); err != nil {
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("background start failed")
		}
	}()

	a.json(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(domain.JobStatusProcessing),
	})
}

// JobStatus returns the full job record.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobProgress returns the compact polling view.
func (a *App) JobProgress(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, domain.ProgressOf(job))
}

// JobCancel requests cancellation. An in-flight batch finishes first; the
// status flips at the next batch boundary.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	if err := a.Manager.Cancel(r.Context(), job.ID); err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"job_id": job.ID,
		"status": string(domain.JobStatusCancelled),
	})
}

// JobDownloadFile streams one processed output image.
func (a *App) JobDownloadFile(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	filename := filepath.Base(chi.URLParam(r, "filename"))
	outputs, err := a.Store.ListOutputs(job.ID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no processed files")
		return
	}
	for _, path := range outputs {
		if filepath.Base(path) == filename {
			w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
			http.ServeFile(w, r, path)
			return
		}
	}
	a.error(w, http.StatusNotFound, "not_found", "file not found")
}

// JobDownloadZip bundles every processed output of the job into one archive.
func (a *App) JobDownloadZip(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	outputs, err := a.Store.ListOutputs(job.ID)
	if err != nil || len(outputs) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no processed files")
		return
	}
	var assets []zip.Asset
	for _, path := range outputs {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		assets = append(assets, zip.Asset{Filename: filepath.Base(path), Data: data})
	}
	archive := zip.ArchiveAssets(assets)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=job-%s.zip", job.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// JobOutputs lists the processed files of a job.
func (a *App) JobOutputs(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	job, ok := a.loadJobForUser(w, r, userID)
	if !ok {
		return
	}
	outputs, err := a.Store.ListOutputs(job.ID)
	if err != nil {
		outputs = nil
	}
	names := make([]string, 0, len(outputs))
	for _, path := range outputs {
		names = append(names, filepath.Base(path))
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": job.ID, "files": names})
}

// loadJobForUser fetches the URL's job and enforces ownership. On failure it
// writes the response and returns ok=false.
func (a *App) loadJobForUser(w http.ResponseWriter, r *http.Request, userID string) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id required")
		return nil, false
	}
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil {
		a.domainError(w, err)
		return nil, false
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	return job, true
}
