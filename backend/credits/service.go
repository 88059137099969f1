package credits

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ravigill3969/examly/backend/billing"
	"github.com/ravigill3969/examly/backend/metrics"
	"github.com/ravigill3969/examly/backend/models"
	"github.com/rs/zerolog/log"
)

const (
	ModePro  = "pro"
	ModeFree = "free"
)

type Options struct {
	CreditsPerPurchase int
	RechargeAmount     int64
	Currency           string
	PriceID            string
	Policy             Policy
	MaxAttempts        int
}

func DefaultOptions() Options {
	return Options{
		CreditsPerPurchase: 30,
		RechargeAmount:     3500,
		Currency:           "huf",
		Policy:             DefaultPolicy,
		MaxAttempts:        3,
	}
}

// Service implements the credits and entitlement operations on top of a
// Store and a payment Gateway.
type Service struct {
	store    Store
	gateway  billing.Gateway
	opts     Options
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, gateway billing.Gateway, opts Options) *Service {
	def := DefaultOptions()
	if opts.CreditsPerPurchase <= 0 {
		opts.CreditsPerPurchase = def.CreditsPerPurchase
	}
	if opts.RechargeAmount <= 0 {
		opts.RechargeAmount = def.RechargeAmount
	}
	if opts.Currency == "" {
		opts.Currency = def.Currency
	}
	if opts.Policy.FreeMax <= 0 {
		opts.Policy.FreeMax = def.Policy.FreeMax
	}
	if opts.Policy.FreeWindow <= 0 {
		opts.Policy.FreeWindow = def.Policy.FreeWindow
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}

	return &Service{
		store:    store,
		gateway:  gateway,
		opts:     opts,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for entitlement checks.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) Profile(ctx context.Context, userID string) (*models.Profile, error) {
	return s.store.GetOrCreate(ctx, userID)
}

func (s *Service) Snapshot(p *models.Profile) Entitlement {
	return s.opts.Policy.Snapshot(p, s.now())
}

type ConsumeResult struct {
	Mode     string          `json:"mode"`
	Profile  *models.Profile `json:"profile"`
	Recharge *RechargeResult `json:"autoRecharge,omitempty"`
}

// Consume spends one generation unit for userID, paid credits first and free
// quota second. When nothing is left it tries one auto-recharge. Lost
// compare-and-set races are retried up to MaxAttempts before ErrConflict.
func (s *Service) Consume(ctx context.Context, userID string) (*ConsumeResult, error) {
	var recharge *RechargeResult
	conflicts := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p, err := s.store.GetOrCreate(ctx, userID)
		if err != nil {
			metrics.ConsumeTotal.WithLabelValues("error").Inc()
			return nil, err
		}

		now := s.now()
		ent := s.opts.Policy.Snapshot(p, now)
		if !ent.OK {
			if recharge == nil {
				r := s.AutoRecharge(ctx, p)
				recharge = &r
				if r.Succeeded {
					continue
				}
			}
			metrics.ConsumeTotal.WithLabelValues("no_credits").Inc()
			return nil, &NoCreditsError{Recharge: *recharge}
		}

		var (
			mode string
			won  bool
		)
		if ent.Credits > 0 {
			mode = ModePro
			won, err = s.store.CompareAndSetCredits(ctx, userID, p.Credits, p.Credits-1)
		} else {
			mode = ModeFree
			won, err = s.store.CompareAndSetFreeUsed(ctx, userID, p.FreeUsed, p.FreeUsed+1, now)
		}
		if err != nil {
			metrics.ConsumeTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("consume generation: %w", err)
		}

		if won {
			if mode == ModePro {
				p.Credits--
			} else {
				p.FreeUsed++
			}
			metrics.ConsumeTotal.WithLabelValues(mode).Inc()
			return &ConsumeResult{Mode: mode, Profile: p, Recharge: recharge}, nil
		}

		conflicts++
		if conflicts >= s.opts.MaxAttempts {
			metrics.ConsumeTotal.WithLabelValues("conflict").Inc()
			log.Warn().Str("user_id", userID).Int("attempts", conflicts).Msg("generation consume gave up after repeated conflicts")
			return nil, ErrConflict
		}
	}
}

type activationInput struct {
	FullName string `validate:"required,min=2"`
	Phone    string `validate:"required,min=6"`
}

// Activate opens the one-time free window for userID. Calling it again while
// the window is open returns the same profile.
func (s *Service) Activate(ctx context.Context, userID, fullName, phone string) (*models.Profile, error) {
	in := activationInput{FullName: strings.TrimSpace(fullName), Phone: strings.TrimSpace(phone)}
	if err := s.validate.Struct(in); err != nil {
		metrics.FreeActivationsTotal.WithLabelValues("invalid").Inc()
		return nil, invalidInput(describeValidation(err))
	}

	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if freeActive(p, now) {
		metrics.FreeActivationsTotal.WithLabelValues("already_active").Inc()
		return p, nil
	}
	if p.FreeWindowStart != nil {
		metrics.FreeActivationsTotal.WithLabelValues("already_used").Inc()
		return nil, ErrFreeAlreadyUsed
	}

	started, err := s.store.StartFreeWindow(ctx, userID, in.FullName, in.Phone, now, now.Add(s.opts.Policy.FreeWindow))
	if err != nil {
		return nil, err
	}

	p, err = s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if started {
		metrics.FreeActivationsTotal.WithLabelValues("activated").Inc()
		log.Info().Str("user_id", userID).Time("free_expires_at", *p.FreeExpiresAt).Msg("free window activated")
		return p, nil
	}

	if freeActive(p, now) {
		metrics.FreeActivationsTotal.WithLabelValues("already_active").Inc()
		return p, nil
	}
	metrics.FreeActivationsTotal.WithLabelValues("already_used").Inc()
	return nil, ErrFreeAlreadyUsed
}

// SetAutoRecharge toggles off-session top-ups. Enabling needs a saved card.
func (s *Service) SetAutoRecharge(ctx context.Context, userID string, enabled bool) (*models.Profile, error) {
	p, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enabled && (p.StripePaymentMethodID == "" || p.StripeCustomerID == "") {
		return nil, invalidInput("no saved payment method, buy a bundle first")
	}
	if p.AutoRecharge == enabled {
		return p, nil
	}

	if err := s.store.SetAutoRecharge(ctx, userID, enabled); err != nil {
		return nil, err
	}
	p.AutoRecharge = enabled
	return p, nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}

	switch fe := verrs[0]; fe.Field() {
	case "FullName":
		return "full name must be at least 2 characters"
	case "Phone":
		return "phone number must be at least 6 characters"
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
