package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/ravigill3969/examly/backend/handlers"
)

func StripeWebhookRoutes(r chi.Router, s *handlers.Stripe) {
	r.Post("/stripe/webhook", s.HandleWebhook)
}

func StripeRoutes(r chi.Router, s *handlers.Stripe) {
	r.Post("/billing/checkout", s.CreateCheckoutSession)
	r.Post("/billing/auto-recharge", s.SetAutoRecharge)
}
