package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeRateLimit          = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"

	ErrCodeNoCredits       = "NO_CREDITS"
	ErrCodeFreeAlreadyUsed = "FREE_ALREADY_USED"
	ErrCodeConflictRetry   = "CONFLICT_RETRY"
)

type APIResponse struct {
	Status      string            `json:"status"`
	Message     string            `json:"message,omitempty"`
	Data        any               `json:"data,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	Code        string            `json:"code,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, statusCode int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now().UTC()
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Int("status", statusCode).Msg("failed to encode response")
	}
}

func normalizeData(data []any) any {
	switch len(data) {
	case 0:
		return nil
	case 1:
		return data[0]
	default:
		return data
	}
}

func codeFromStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusServiceUnavailable:
		return ErrCodeServiceUnavailable
	case statusCode >= 500:
		return ErrCodeInternalError
	case statusCode == http.StatusUnauthorized:
		return ErrCodeUnauthorized
	case statusCode == http.StatusPaymentRequired:
		return ErrCodeNoCredits
	case statusCode == http.StatusForbidden:
		return ErrCodeForbidden
	case statusCode == http.StatusNotFound:
		return ErrCodeNotFound
	case statusCode == http.StatusConflict:
		return ErrCodeConflict
	case statusCode == http.StatusTooManyRequests:
		return ErrCodeRateLimit
	case statusCode >= 400:
		return ErrCodeBadRequest
	default:
		return "OK"
	}
}

func RespondSuccess(w http.ResponseWriter, statusCode int, data ...any) {
	payload := APIResponse{
		Status:  "success",
		Message: http.StatusText(statusCode),
		Data:    normalizeData(data),
		Code:    codeFromStatus(statusCode),
	}
	writeJSON(w, statusCode, payload)
}

func RespondError(w http.ResponseWriter, statusCode int, message string) {
	payload := APIResponse{
		Status:  "error",
		Message: message,
		Code:    codeFromStatus(statusCode),
	}
	writeJSON(w, statusCode, payload)
}

// RespondErrorCode is RespondError with an explicit code and optional data,
// for business errors the client branches on.
func RespondErrorCode(w http.ResponseWriter, statusCode int, code, message string, data ...any) {
	payload := APIResponse{
		Status:  "error",
		Message: message,
		Data:    normalizeData(data),
		Code:    code,
	}
	writeJSON(w, statusCode, payload)
}

func RespondInternal(w http.ResponseWriter, err error, message string) {
	log.Error().Err(err).Msg(message)
	payload := APIResponse{
		Status:  "error",
		Message: message,
		Code:    ErrCodeInternalError,
	}
	writeJSON(w, http.StatusInternalServerError, payload)
}

// RespondValidationError helps respond with multiple validation errors at once.
func RespondValidationError(w http.ResponseWriter, message string, fields []string) {
	if message == "" {
		message = "Validation failed"
	}
	if len(fields) > 0 {
		message = fmt.Sprintf("%s: %s", message, strings.Join(fields, ", "))
	}
	payload := APIResponse{
		Status:  "error",
		Message: message,
		Code:    ErrCodeValidation,
	}
	writeJSON(w, http.StatusBadRequest, payload)
}

// RespondFieldErrors returns validation errors with field-specific messages.
func RespondFieldErrors(w http.ResponseWriter, fieldErrors map[string]string) {
	payload := APIResponse{
		Status:      "error",
		Message:     "Validation failed",
		FieldErrors: fieldErrors,
		Code:        ErrCodeValidation,
	}
	writeJSON(w, http.StatusBadRequest, payload)
}
