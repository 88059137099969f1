package credits

import (
	"errors"
	"fmt"
)

var (
	ErrNoCredits       = errors.New("no credits left")
	ErrFreeAlreadyUsed = errors.New("free plan already used")
	ErrConflict        = errors.New("concurrent update, please try again")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
)

// NoCreditsError carries the outcome of the auto-recharge attempt made before
// giving up. It matches ErrNoCredits with errors.Is.
type NoCreditsError struct {
	Recharge RechargeResult
}

func (e *NoCreditsError) Error() string {
	if e.Recharge.Attempted && e.Recharge.Reason != "" {
		return fmt.Sprintf("%s (auto-recharge failed: %s)", ErrNoCredits, e.Recharge.Reason)
	}
	return ErrNoCredits.Error()
}

func (e *NoCreditsError) Unwrap() error { return ErrNoCredits }

// IsInfrastructure reports whether err came from the store or the payment
// provider rather than from a business rule.
func IsInfrastructure(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range []error{ErrNoCredits, ErrFreeAlreadyUsed, ErrConflict, ErrInvalidInput, ErrNotFound} {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}
