package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Version is reported by GET /api/v1/.
const Version = "0.1.0"

// MountRoutes registers the health endpoint and the task API.
func MountRoutes(r chi.Router, h *Handlers) {
	once := h.Idempotent
	if once == nil {
		once = func(next http.Handler) http.Handler { return next }
	}

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"version": Version})
		})

		r.Get("/team", h.GetTeam)
		r.Get("/tools", h.ListTools)

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.With(once).Post("/", h.StartTask)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTask)
				r.Get("/result", h.WaitTask)
				r.Get("/events", h.ListEvents)
				r.Get("/stream", h.StreamTask)
				r.Post("/step", h.StepTask)
				r.With(once).Post("/interrupt", h.InterruptTask)
				r.Post("/pause", h.PauseTask)
				r.Post("/resume", h.ResumeTask)
				r.Post("/cancel", h.CancelTask)
			})
		})
	})
}
