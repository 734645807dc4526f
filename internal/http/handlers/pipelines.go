package handlers

import (
	"net/http"

	"masterpost/internal/pipeline"
)

type pipelineDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Shadow      string `json:"default_shadow"`
}

// Pipelines lists the registered marketplace profiles.
func (a *App) Pipelines(w http.ResponseWriter, r *http.Request) {
	profiles := pipeline.Profiles()
	items := make([]pipelineDTO, 0, len(profiles))
	for _, p := range profiles {
		items = append(items, pipelineDTO{
			Name:        p.Name,
			Description: p.Description,
			Width:       p.Width,
			Height:      p.Height,
			Shadow:      string(p.Shadow.Kind),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}
