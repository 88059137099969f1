package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/rs/zerolog/log"
)

const (
	checkoutPlan         = "pro_30"
	paymentStatusPaid    = "paid"
	checkoutSuccessPath  = "/billing/success?session_id={CHECKOUT_SESSION_ID}"
	checkoutCanceledPath = "/billing?canceled=1"
)

// CreateCheckout returns a hosted checkout URL for one credit bundle. The
// Stripe customer is created on first use and remembered on the profile.
func (s *Service) CreateCheckout(ctx context.Context, userID, email, siteURL string) (string, error) {
	if s.gateway == nil {
		return "", errors.New("payments are not configured")
	}
	if s.opts.PriceID == "" {
		return "", invalidInput("no price configured for the pro bundle")
	}
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		return "", invalidInput("site url is required")
	}

	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID := p.StripeCustomerID
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, userID, email)
		if err != nil {
			return "", err
		}
		if err := s.store.SetStripeCustomer(ctx, userID, customerID); err != nil {
			return "", err
		}
	}

	return s.gateway.CreateCheckoutSession(ctx, billing.CheckoutRequest{
		UserID:     userID,
		CustomerID: customerID,
		PriceID:    s.opts.PriceID,
		Plan:       checkoutPlan,
		SuccessURL: siteURL + checkoutSuccessPath,
		CancelURL:  siteURL + checkoutCanceledPath,
	})
}

type CheckoutOutcome struct {
	Ignored   bool
	Duplicate bool
	Profile   *models.Profile
}

// CompleteCheckout credits one bundle for a paid checkout session. The
// session id is the ledger key, so redelivered events credit nothing.
func (s *Service) CompleteCheckout(ctx context.Context, c models.CheckoutCompletion) (*CheckoutOutcome, error) {
	if c.PaymentStatus != paymentStatusPaid {
		return &CheckoutOutcome{Ignored: true}, nil
	}
	if c.UserID == "" {
		return nil, invalidInput("checkout session has no user_id metadata")
	}

	key := c.SessionID
	if key == "" {
		key = c.EventID
	}
	if key == "" {
		return nil, invalidInput("checkout session has no id")
	}

	if _, err := s.store.GetOrCreate(ctx, c.UserID); err != nil {
		return nil, err
	}

	applied, p, err := s.store.CreditOnce(ctx, models.PaymentEvent{
		EventID: key,
		Kind:    models.PaymentKindCheckoutSession,
		UserID:  c.UserID,
		Credits: s.opts.CreditsPerPurchase,
	})
	if err != nil {
		return nil, err
	}
	if !applied {
		log.Info().Str("user_id", c.UserID).Str("session_id", key).Msg("checkout session already credited")
		return &CheckoutOutcome{Duplicate: true}, nil
	}

	log.Info().Str("user_id", c.UserID).Str("session_id", key).Int("credits", p.Credits).Msg("checkout session credited")
	s.capturePaymentMethod(ctx, c)
	return &CheckoutOutcome{Profile: p}, nil
}

// capturePaymentMethod stores the card used at checkout and turns on
// auto-recharge. Errors are logged only; the credit already happened.
func (s *Service) capturePaymentMethod(ctx context.Context, c models.CheckoutCompletion) {
	if c.PaymentIntentID == "" || s.gateway == nil {
		return
	}

	pmID, err := s.gateway.PaymentMethodForIntent(ctx, c.PaymentIntentID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", c.UserID).Str("payment_intent", c.PaymentIntentID).Msg("could not read payment method for checkout")
		return
	}
	if pmID == "" {
		return
	}

	if c.CustomerID != "" {
		if err := s.store.SetStripeCustomer(ctx, c.UserID, c.CustomerID); err != nil {
			log.Warn().Err(err).Str("user_id", c.UserID).Msg("could not save stripe customer from checkout")
			return
		}
	}
	if err := s.store.SavePaymentMethod(ctx, c.UserID, pmID); err != nil {
		log.Warn().Err(err).Str("user_id", c.UserID).Msg("could not save payment method from checkout")
	}
}
