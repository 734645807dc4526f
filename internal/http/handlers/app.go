package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"masterpost/internal/credits"
	"masterpost/internal/domain"
	"masterpost/internal/editor"
	"masterpost/internal/processing"
	"masterpost/internal/storage"
)

// App carries the wired services behind the HTTP surface.
type App struct {
	Jobs    domain.JobRepository
	Manager *processing.Manager
	Credits *credits.Service
	Store   *storage.FileStore
	Editor  *editor.Manager
	Logger  zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}

// domainError maps sentinel domain errors onto HTTP responses; anything
// unrecognized becomes a 500.
func (a *App) domainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrValidation):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		a.error(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds):
		a.error(w, http.StatusPaymentRequired, "insufficient_funds", err.Error())
	default:
		a.Logger.Error().Err(err).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// currentUserID reads the caller identity from the X-User-ID header. There is
// no authentication layer in front of this surface yet.
func (a *App) currentUserID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User-ID"))
}
