package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"masterpost/internal/editor"
)

type editorOpenRequest struct {
	JobID    string `json:"job_id"`
	Filename string `json:"filename"`
}

type editorBrushRequest struct {
	Action    editor.BrushAction `json:"action"`
	Stroke    []editor.Point     `json:"stroke"`
	BrushSize int                `json:"brush_size"`
}

type editorResponse struct {
	editor.Info
	PreviewURL string `json:"preview_url"`
}

func (a *App) editorResponse(info editor.Info) editorResponse {
	return editorResponse{
		Info:       info,
		PreviewURL: "/v1/editor/sessions/" + info.SessionID + "/preview",
	}
}

// EditorOpen starts a manual-edit session on one processed output image.
func (a *App) EditorOpen(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req editorOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.JobID == "" || req.Filename == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job_id and filename required")
		return
	}
	job, err := a.Jobs.GetByID(r.Context(), req.JobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	if job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}

	outputs, err := a.Store.ListOutputs(job.ID)
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "no processed files")
		return
	}
	var target string
	for _, path := range outputs {
		if filepath.Base(path) == filepath.Base(req.Filename) {
			target = path
			break
		}
	}
	if target == "" {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	info, _, err := a.Editor.Open(job.ID, target)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusCreated, a.editorResponse(info))
}

// EditorBrush applies an erase or restore stroke to the session.
func (a *App) EditorBrush(w http.ResponseWriter, r *http.Request) {
	var req editorBrushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	info, _, err := a.Editor.Brush(chi.URLParam(r, "session_id"), req.Action, req.Stroke, req.BrushSize)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.editorResponse(info))
}

// EditorUndo steps the session back one edit.
func (a *App) EditorUndo(w http.ResponseWriter, r *http.Request) {
	info, _, err := a.Editor.Undo(chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.editorResponse(info))
}

// EditorRedo steps the session forward one edit.
func (a *App) EditorRedo(w http.ResponseWriter, r *http.Request) {
	info, _, err := a.Editor.Redo(chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.editorResponse(info))
}

// EditorReset restores the original image in the session.
func (a *App) EditorReset(w http.ResponseWriter, r *http.Request) {
	info, _, err := a.Editor.Reset(chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.editorResponse(info))
}

// EditorSave writes the edited buffer next to the job's other outputs.
func (a *App) EditorSave(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	info, err := a.Editor.Get(sessionID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	outDir, err := a.Store.OutputDir(info.JobID)
	if err != nil {
		a.domainError(w, err)
		return
	}
	path, err := a.Editor.Save(sessionID, outDir)
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]string{
		"session_id": sessionID,
		"filename":   filepath.Base(path),
	})
}

// EditorPreview serves the session's current downscaled preview.
func (a *App) EditorPreview(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	if _, err := a.Editor.Get(sessionID); err != nil {
		a.domainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/webp")
	http.ServeFile(w, r, a.Editor.PreviewPath(sessionID))
}

// EditorInfo returns the session's current state.
func (a *App) EditorInfo(w http.ResponseWriter, r *http.Request) {
	info, err := a.Editor.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		a.domainError(w, err)
		return
	}
	a.json(w, http.StatusOK, a.editorResponse(info))
}

// EditorClose discards the session and its preview.
func (a *App) EditorClose(w http.ResponseWriter, r *http.Request) {
	if err := a.Editor.Close(chi.URLParam(r, "session_id")); err != nil {
		a.domainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
