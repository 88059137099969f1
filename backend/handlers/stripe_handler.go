package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/credits"
	"github.com/ravigill3969/examly/backend/metrics"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/ravigill3969/examly/backend/utils"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

const maxWebhookBody = int64(65536)

type Stripe struct {
	Service       *credits.Service
	WebhookSecret string
	SiteURL       string
}

func (s *Stripe) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	url, err := s.Service.CreateCheckout(r.Context(), user.ID, user.Email, s.siteURL(r))
	if err != nil {
		respondServiceError(w, r, err, "Unable to create checkout session")
		return
	}

	utils.RespondSuccess(w, http.StatusOK, map[string]string{"url": url})
}

func (s *Stripe) SetAutoRecharge(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var form models.AutoRechargeForm
	if !decodeJSON(w, r, &form) {
		return
	}
	if form.Enabled == nil {
		utils.RespondValidationError(w, "", []string{"enabled"})
		return
	}

	p, err := s.Service.SetAutoRecharge(r.Context(), user.ID, *form.Enabled)
	if err != nil {
		respondServiceError(w, r, err, "Failed to update auto-recharge")
		return
	}
	utils.RespondSuccess(w, http.StatusOK, map[string]bool{"autoRecharge": p.AutoRecharge})
}

// HandleWebhook credits a bundle for each paid checkout session. Stripe
// retries anything that is not 2xx, so only bad input gets a 4xx.
func (s *Stripe) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	eventType := "unknown"
	status := http.StatusOK
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(eventType, strconv.Itoa(status)).Inc()
		metrics.WebhookDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}()

	logger := zerolog.Ctx(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		status = http.StatusServiceUnavailable
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		logger.Warn().Err(err).Msg("error reading webhook body")
		utils.RespondError(w, status, "Unable to read request body")
		return
	}

	event, err := billing.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"), s.WebhookSecret)
	if err != nil {
		status = http.StatusBadRequest
		logger.Warn().Err(err).Msg("webhook signature verification failed")
		utils.RespondError(w, status, "Invalid webhook signature")
		return
	}
	eventType = string(event.Type)

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		logger.Debug().Str("event_id", event.ID).Str("event_type", eventType).Msg("ignoring webhook event")
		utils.RespondSuccess(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	completion, err := utils.CheckoutCompletionFromEvent(event)
	if err != nil {
		status = http.StatusBadRequest
		logger.Warn().Err(err).Str("event_id", event.ID).Msg("malformed checkout session")
		utils.RespondError(w, status, "Malformed checkout session")
		return
	}

	outcome, err := s.Service.CompleteCheckout(r.Context(), completion)
	if err != nil {
		if errors.Is(err, credits.ErrInvalidInput) {
			status = http.StatusBadRequest
		} else {
			status = http.StatusInternalServerError
		}
		logger.Error().Err(err).Str("event_id", event.ID).Str("user_id", completion.UserID).Msg("checkout completion failed")
		respondServiceError(w, r, err, "Failed to process checkout session")
		return
	}

	body := map[string]bool{"received": true}
	if outcome.Duplicate {
		body["duplicate"] = true
	}
	if outcome.Ignored {
		body["ignored"] = true
	}
	utils.RespondSuccess(w, http.StatusOK, body)
}

// siteURL prefers the configured public URL and falls back to the
// forwarded host of the incoming request.
func (s *Stripe) siteURL(r *http.Request) string {
	if s.SiteURL != "" {
		return s.SiteURL
	}

	host := r.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = r.Host
	}
	if host == "" {
		return ""
	}

	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
		if r.TLS != nil {
			proto = "https"
		}
	}
	return strings.SplitN(proto, ",", 2)[0] + "://" + host
}
