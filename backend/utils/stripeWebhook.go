package utils

import (
	"encoding/json"
	"fmt"

	"github.com/ravigill3969/examly/backend/models"
	"github.com/stripe/stripe-go/v82"
)

// CheckoutCompletionFromEvent decodes the checkout session carried by a
// checkout.session.completed event.
func CheckoutCompletionFromEvent(event stripe.Event) (models.CheckoutCompletion, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return models.CheckoutCompletion{}, fmt.Errorf("decode checkout.session: %w", err)
	}

	c := models.CheckoutCompletion{
		EventID:       event.ID,
		SessionID:     session.ID,
		UserID:        session.Metadata["user_id"],
		PaymentStatus: string(session.PaymentStatus),
	}
	if session.PaymentIntent != nil {
		c.PaymentIntentID = session.PaymentIntent.ID
	}
	if session.Customer != nil {
		c.CustomerID = session.Customer.ID
	}
	return c, nil
}
