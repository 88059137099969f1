package credits

import (
	"context"
	"fmt"

	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/metrics"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/rs/zerolog/log"
)

const rechargeProduct = "examly_pro_30_credits_autorecharge"

// RechargeResult describes one off-session top-up attempt. Attempted is false
// when the profile is not set up for auto-recharge.
type RechargeResult struct {
	Attempted bool   `json:"attempted"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// AutoRecharge charges the saved card for one bundle and credits it through
// the payment ledger. Failures are reported in the result, never returned.
func (s *Service) AutoRecharge(ctx context.Context, p *models.Profile) RechargeResult {
	if p == nil || !p.AutoRecharge || p.StripeCustomerID == "" || p.StripePaymentMethodID == "" {
		return RechargeResult{}
	}
	if s.gateway == nil {
		return RechargeResult{}
	}

	charge, err := s.gateway.ChargeOffSession(ctx, billing.ChargeRequest{
		UserID:          p.UserID,
		CustomerID:      p.StripeCustomerID,
		PaymentMethodID: p.StripePaymentMethodID,
		Amount:          s.opts.RechargeAmount,
		Currency:        s.opts.Currency,
		Description:     fmt.Sprintf("Examly Pro top-up (%d generations)", s.opts.CreditsPerPurchase),
		Product:         rechargeProduct,
		IdempotencyKey:  s.rechargeKey(p.UserID),
	})
	if err != nil {
		reason := billing.DeclineReason(err)
		metrics.RechargeTotal.WithLabelValues("declined").Inc()
		log.Warn().Err(err).Str("user_id", p.UserID).Str("reason", reason).Msg("auto-recharge charge failed")
		return RechargeResult{Attempted: true, Reason: reason}
	}

	if charge.Status != billing.ChargeStatusSucceeded {
		metrics.RechargeTotal.WithLabelValues("not_succeeded").Inc()
		log.Warn().Str("user_id", p.UserID).Str("payment_intent", charge.ID).Str("status", charge.Status).Msg("auto-recharge payment intent did not succeed")
		return RechargeResult{Attempted: true, Reason: "status_" + charge.Status}
	}

	applied, _, err := s.store.CreditOnce(ctx, models.PaymentEvent{
		EventID: charge.ID,
		Kind:    models.PaymentKindAutoRecharge,
		UserID:  p.UserID,
		Credits: s.opts.CreditsPerPurchase,
	})
	if err != nil {
		metrics.RechargeTotal.WithLabelValues("ledger_error").Inc()
		log.Error().Err(err).Str("user_id", p.UserID).Str("payment_intent", charge.ID).Msg("auto-recharge charged but credit failed")
		return RechargeResult{Attempted: true, Reason: "ledger_error"}
	}

	if applied {
		metrics.RechargeTotal.WithLabelValues("succeeded").Inc()
		log.Info().Str("user_id", p.UserID).Str("payment_intent", charge.ID).Int("credits", s.opts.CreditsPerPurchase).Msg("auto-recharge credited")
	} else {
		metrics.RechargeTotal.WithLabelValues("replayed").Inc()
	}
	return RechargeResult{Attempted: true, Succeeded: true}
}

// rechargeKey buckets the idempotency key by minute so a retried consume
// cannot charge twice while a later top-up still can.
func (s *Service) rechargeKey(userID string) string {
	return fmt.Sprintf("examly_autorecharge_%s_%d", userID, s.now().Unix()/60)
}
