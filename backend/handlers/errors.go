package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ravigill3969/examly/backend/credits"
	middleware "github.com/ravigill3969/examly/backend/middlewares"
	"github.com/ravigill3969/examly/backend/plans"
	"github.com/ravigill3969/examly/backend/utils"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
)

const maxJSONBody = 1 << 20

// respondServiceError maps errors from the credits and plans packages onto
// the response envelope. Anything unrecognised is a 500.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var (
		noCredits *credits.NoCreditsError
		stripeErr *stripe.Error
	)

	switch {
	case errors.As(err, &noCredits):
		utils.RespondErrorCode(w, http.StatusPaymentRequired, utils.ErrCodeNoCredits, err.Error(),
			map[string]any{"autoRecharge": noCredits.Recharge})
	case errors.Is(err, credits.ErrNoCredits):
		utils.RespondErrorCode(w, http.StatusPaymentRequired, utils.ErrCodeNoCredits, err.Error())
	case errors.Is(err, credits.ErrFreeAlreadyUsed):
		utils.RespondErrorCode(w, http.StatusForbidden, utils.ErrCodeFreeAlreadyUsed, err.Error())
	case errors.Is(err, credits.ErrConflict):
		utils.RespondErrorCode(w, http.StatusConflict, utils.ErrCodeConflictRetry, err.Error())
	case errors.Is(err, credits.ErrInvalidInput), errors.Is(err, plans.ErrInvalidInput):
		utils.RespondValidationError(w, err.Error(), nil)
	case errors.Is(err, credits.ErrNotFound), errors.Is(err, plans.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &stripeErr):
		zerolog.Ctx(r.Context()).Error().Err(err).Str("stripe_code", string(stripeErr.Code)).Msg(message)
		utils.RespondError(w, http.StatusBadGateway, message)
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg(message)
		utils.RespondError(w, http.StatusInternalServerError, message)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (middleware.AuthUser, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok || user.ID == "" {
		utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: User ID not provided")
		return middleware.AuthUser{}, false
	}
	return user, true
}

// decodeJSON reads a bounded JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	utils.RespondError(w, http.StatusBadRequest, "Invalid JSON body")
	return false
}
