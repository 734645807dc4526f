package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"masterpost/internal/domain"
	"masterpost/internal/processing"
	"masterpost/internal/storage"
)

type stubJobRepo struct {
	jobs map[string]*domain.Job
}

func (r *stubJobRepo) Create(_ context.Context, job *domain.Job) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *stubJobRepo) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *job
	return &cp, nil
}

func (r *stubJobRepo) UpdateStatus(_ context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = status
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	return nil
}

func (r *stubJobRepo) UpdateProgress(_ context.Context, jobID string, processed, failed int) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	job.Processed = processed
	job.Failed = failed
	return nil
}

func (r *stubJobRepo) MarkProcessing(_ context.Context, jobID string) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status != domain.JobStatusUploaded {
		return domain.ErrInvalidState
	}
	job.Status = domain.JobStatusProcessing
	return nil
}

func (r *stubJobRepo) ClaimUploaded(_ context.Context) (*domain.Job, error) {
	return nil, domain.ErrNotFound
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "processed"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return &App{
		Jobs:   &stubJobRepo{jobs: map[string]*domain.Job{}},
		Store:  store,
		Logger: zerolog.Nop(),
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t)
	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest("GET", "/v1/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestPipelinesLists(t *testing.T) {
	app := newTestApp(t)
	rr := httptest.NewRecorder()
	app.Pipelines(rr, httptest.NewRequest("GET", "/v1/pipelines", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload struct {
		Items []pipelineDTO `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 3 {
		t.Fatalf("items = %d, want 3", len(payload.Items))
	}
	want := []string{"amazon", "ebay", "instagram"}
	for i, name := range want {
		if payload.Items[i].Name != name {
			t.Fatalf("item %d = %q, want %q", i, payload.Items[i].Name, name)
		}
	}
	if payload.Items[0].Width != 1000 || payload.Items[0].Shadow != "drop" {
		t.Fatalf("amazon profile = %+v", payload.Items[0])
	}
}

func TestMissingUserHeaderIsUnauthorized(t *testing.T) {
	app := newTestApp(t)

	endpoints := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"upload", app.JobUpload},
		{"status", app.JobStatus},
		{"cancel", app.JobCancel},
		{"balance", app.CreditBalance},
	}
	for _, ep := range endpoints {
		t.Run(ep.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			ep.handler(rr, httptest.NewRequest("POST", "/v1/anything", nil))
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rr.Code)
			}
		})
	}
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestJobStatusOwnership(t *testing.T) {
	app := newTestApp(t)
	repo := app.Jobs.(*stubJobRepo)
	repo.jobs["job-1"] = &domain.Job{
		ID:         "job-1",
		UserID:     "owner",
		Status:     domain.JobStatusCompleted,
		Pipeline:   "amazon",
		Tier:       domain.TierBasic,
		TotalFiles: 2,
		Processed:  2,
		CreatedAt:  time.Now(),
	}

	// Owner sees the job.
	req := withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-1", nil), "job_id", "job-1")
	req.Header.Set("X-User-ID", "owner")
	rr := httptest.NewRecorder()
	app.JobStatus(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("owner status = %d", rr.Code)
	}
	var payload jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.JobID != "job-1" || payload.Status != domain.JobStatusCompleted {
		t.Fatalf("payload = %+v", payload)
	}

	// A different caller gets a 404, never a 403 that confirms existence.
	req = withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-1", nil), "job_id", "job-1")
	req.Header.Set("X-User-ID", "stranger")
	rr = httptest.NewRecorder()
	app.JobStatus(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("stranger status = %d, want 404", rr.Code)
	}
}

func TestJobUploadRejectsEmptyAndUnsupported(t *testing.T) {
	app := newTestApp(t)

	// No files at all.
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	_ = mw.WriteField("pipeline", "amazon")
	_ = mw.Close()
	req := httptest.NewRequest("POST", "/v1/jobs", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	app.JobUpload(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("no files: status = %d, want 400", rr.Code)
	}

	// Unsupported extension.
	body = &bytes.Buffer{}
	mw = multipart.NewWriter(body)
	part, _ := mw.CreateFormFile("files", "document.pdf")
	_, _ = part.Write([]byte("%PDF"))
	_ = mw.WriteField("pipeline", "amazon")
	_ = mw.Close()
	req = httptest.NewRequest("POST", "/v1/jobs", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	rr = httptest.NewRecorder()
	app.JobUpload(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unsupported type: status = %d, want 400", rr.Code)
	}
}

// attachManager wires a lifecycle manager so upload handlers can create jobs.
func attachManager(app *App) {
	app.Manager = processing.NewManager(processing.ManagerOptions{
		Jobs:   app.Jobs,
		Store:  app.Store,
		Logger: zerolog.Nop(),
	})
}

func uploadRequest(t *testing.T, filenames ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range filenames {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte("image-bytes"))
	}
	_ = mw.WriteField("pipeline", "amazon")
	_ = mw.Close()
	req := httptest.NewRequest("POST", "/v1/jobs", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "u1")
	return req
}

func TestJobUploadKeepsDuplicateFilenames(t *testing.T) {
	app := newTestApp(t)
	attachManager(app)

	rr := httptest.NewRecorder()
	app.JobUpload(rr, uploadRequest(t, "a.png", "a.png"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rr.Code)
	}
	var payload jobResponse
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.TotalFiles != 2 {
		t.Fatalf("total files = %d, want 2", payload.TotalFiles)
	}

	inputs, err := app.Store.ListInputs(payload.JobID, nil)
	if err != nil {
		t.Fatalf("list inputs: %v", err)
	}
	if len(inputs) != payload.TotalFiles {
		t.Fatalf("inputs on disk = %d, want %d", len(inputs), payload.TotalFiles)
	}
}

func TestJobUploadSaveFailureMarksJobFailed(t *testing.T) {
	app := newTestApp(t)
	attachManager(app)

	// Replace the upload root with a regular file so every save fails.
	dir := t.TempDir()
	uploadRoot := filepath.Join(dir, "uploads")
	store, err := storage.NewFileStore(uploadRoot, filepath.Join(dir, "processed"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := os.RemoveAll(uploadRoot); err != nil {
		t.Fatalf("remove root: %v", err)
	}
	if err := os.WriteFile(uploadRoot, []byte("x"), 0o644); err != nil {
		t.Fatalf("block root: %v", err)
	}
	app.Store = store
	attachManager(app)

	rr := httptest.NewRecorder()
	app.JobUpload(rr, uploadRequest(t, "a.png"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}

	repo := app.Jobs.(*stubJobRepo)
	if len(repo.jobs) != 1 {
		t.Fatalf("jobs recorded = %d, want 1", len(repo.jobs))
	}
	for _, job := range repo.jobs {
		if job.Status != domain.JobStatusFailed {
			t.Fatalf("orphaned job status = %s, want failed", job.Status)
		}
	}
}

func TestJobDownloadZip(t *testing.T) {
	app := newTestApp(t)
	repo := app.Jobs.(*stubJobRepo)
	repo.jobs["job-2"] = &domain.Job{ID: "job-2", UserID: "u1", Status: domain.JobStatusCompleted}

	outDir, err := app.Store.OutputDir("job-2")
	if err != nil {
		t.Fatalf("output dir: %v", err)
	}
	for _, name := range []string{"img_001.jpg", "img_002.jpg"} {
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write output: %v", err)
		}
	}

	req := withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-2/download", nil), "job_id", "job-2")
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	app.JobDownloadZip(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	zr, err := zip.NewReader(bytes.NewReader(rr.Body.Bytes()), int64(rr.Body.Len()))
	if err != nil {
		t.Fatalf("open zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("zip entries = %d, want 2", len(zr.File))
	}
}

func TestJobProgressView(t *testing.T) {
	app := newTestApp(t)
	repo := app.Jobs.(*stubJobRepo)
	repo.jobs["job-3"] = &domain.Job{
		ID:         "job-3",
		UserID:     "u1",
		Status:     domain.JobStatusProcessing,
		TotalFiles: 10,
		Processed:  4,
		Failed:     1,
	}

	req := withURLParam(httptest.NewRequest("GET", "/v1/jobs/job-3/progress", nil), "job_id", "job-3")
	req.Header.Set("X-User-ID", "u1")
	rr := httptest.NewRecorder()
	app.JobProgress(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var p domain.Progress
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Current != 5 || p.Total != 10 || p.Percentage != 50 || p.Status != domain.JobStatusProcessing {
		t.Fatalf("progress = %+v", p)
	}
}
