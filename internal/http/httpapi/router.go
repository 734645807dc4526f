package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"masterpost/internal/http/handlers"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/pipelines", app.Pipelines)
	r.Get("/v1/credits/balance", app.CreditBalance)

	r.Route("/v1/jobs", func(r chi.Router) {
		r.Post("/", app.JobUpload)
		r.Route("/{job_id}", func(r chi.Router) {
			r.Get("/", app.JobStatus)
			r.Post("/process", app.JobProcess)
			r.Get("/progress", app.JobProgress)
			r.Post("/cancel", app.JobCancel)
			r.Get("/files", app.JobOutputs)
			r.Get("/files/{filename}", app.JobDownloadFile)
			r.Get("/download", app.JobDownloadZip)
		})
	})

	r.Route("/v1/editor/sessions", func(r chi.Router) {
		r.Post("/", app.EditorOpen)
		r.Route("/{session_id}", func(r chi.Router) {
			r.Get("/", app.EditorInfo)
			r.Post("/brush", app.EditorBrush)
			r.Post("/undo", app.EditorUndo)
			r.Post("/redo", app.EditorRedo)
			r.Post("/reset", app.EditorReset)
			r.Post("/save", app.EditorSave)
			r.Get("/preview", app.EditorPreview)
			r.Delete("/", app.EditorClose)
		})
	})

	return r
}
