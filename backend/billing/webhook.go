package billing

import (
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

var ErrSignatureInvalid = errors.New("invalid Stripe signature")

// VerifyWebhook checks the Stripe-Signature header against secret and decodes
// the event. Events pinned to another API version are still accepted.
func VerifyWebhook(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	if sigHeader == "" {
		return stripe.Event{}, fmt.Errorf("%w: missing header", ErrSignatureInvalid)
	}

	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return event, nil
}
