package models

import "time"

const (
	PaymentKindCheckoutSession = "checkout_session"
	PaymentKindAutoRecharge    = "auto_recharge_payment_intent"
)

// PaymentEvent is one row of the append-only payment ledger. EventID is the
// external id (checkout session or payment intent) that makes crediting idempotent.
type PaymentEvent struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	UserID    string    `json:"user_id"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
}

// CheckoutCompletion is the part of a checkout.session.completed event the
// credits service acts on.
type CheckoutCompletion struct {
	EventID         string
	SessionID       string
	UserID          string
	PaymentStatus   string
	PaymentIntentID string
	CustomerID      string
}
