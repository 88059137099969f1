// Package billing wraps the Stripe calls the credits service needs behind a
// small interface so the service can be exercised without the network.
package billing

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v82"
)

// Gateway is the subset of the payment provider used by the credits service.
type Gateway interface {
	CreateCustomer(ctx context.Context, userID, email string) (string, error)
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error)
	ChargeOffSession(ctx context.Context, req ChargeRequest) (*Charge, error)
	PaymentMethodForIntent(ctx context.Context, paymentIntentID string) (string, error)
}

type CheckoutRequest struct {
	UserID     string
	CustomerID string
	PriceID    string
	Plan       string
	SuccessURL string
	CancelURL  string
}

type ChargeRequest struct {
	UserID          string
	CustomerID      string
	PaymentMethodID string
	Amount          int64
	Currency        string
	Description     string
	Product         string
	IdempotencyKey  string
}

type Charge struct {
	ID     string
	Status string
}

const ChargeStatusSucceeded = string(stripe.PaymentIntentStatusSucceeded)

// DeclineReason extracts a short machine-readable reason from a provider
// error, e.g. "authentication_required" or "card_declined".
func DeclineReason(err error) string {
	if err == nil {
		return ""
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.DeclineCode != "" {
			return string(stripeErr.DeclineCode)
		}
		if stripeErr.Code != "" {
			return string(stripeErr.Code)
		}
		if stripeErr.Type != "" {
			return string(stripeErr.Type)
		}
	}
	return "provider_error"
}
