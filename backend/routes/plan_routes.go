package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/ravigill3969/examly/backend/handlers"
)

func PlanRoutes(r chi.Router, h *handlers.PlanHandler) {
	r.Post("/plan", h.Save)
	r.Get("/plan/history", h.History)
	r.Delete("/plan/history", h.ClearHistory)
	r.Get("/plan/current", h.Current)
	r.Post("/plan/current", h.SetCurrent)
	r.Get("/plan/{id}", h.Get)
}
