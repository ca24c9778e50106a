package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/email"
	"github.com/ridewatch/onboarding/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error to an HTTP response. Validation and state
// errors carry user-facing messages and pass through verbatim; anything
// unexpected collapses to a generic 500 so internals never leak.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()

	if status == http.StatusInternalServerError {
		if log != nil {
			log.Error("request failed", slog.String("error", err.Error()))
		}
		switch {
		case errors.Is(err, email.ErrNotConfigured):
			msg = "Email service not configured"
		case errors.Is(err, email.ErrUnavailable), errors.Is(err, email.ErrSendFailed):
			msg = "Failed to send email"
		default:
			msg = "internal server error"
		}
	}

	writeJSON(w, status, errorResponse{Error: msg})
}

func statusFor(err error) int {
	switch {
	case domain.IsValidation(err), errors.Is(err, domain.ErrCodeMismatch):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrEmailNotVerified),
		errors.Is(err, service.ErrAccountDisabled),
		errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInviteNotFound),
		errors.Is(err, domain.ErrCodeNotFound),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInviteConsumed),
		errors.Is(err, domain.ErrCodeConsumed),
		errors.Is(err, domain.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInviteExpired),
		errors.Is(err, domain.ErrCodeExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
