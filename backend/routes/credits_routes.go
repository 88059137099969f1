package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/ravigill3969/examly/backend/handlers"
)

func CreditsRoutes(r chi.Router, h *handlers.CreditsHandler) {
	r.Get("/me", h.Me)
	r.Get("/entitlement", h.Entitlement)
	r.Post("/generation/consume", h.Consume)
	r.Post("/free/activate", h.ActivateFree)
}
