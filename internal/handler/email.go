package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ridewatch/onboarding/internal/email"
	"github.com/ridewatch/onboarding/internal/observability/metrics"
)

// EmailHandler serves the outbound email endpoints. These mirror the
// frontend's mail calls directly, so field names follow its payloads.
type EmailHandler struct {
	emails *email.Service
	logger *slog.Logger
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(emails *email.Service, logger *slog.Logger) *EmailHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &EmailHandler{
		emails: emails,
		logger: logger,
	}
}

func (h *EmailHandler) finish(w http.ResponseWriter, kind string, err error) {
	if err != nil {
		metrics.IncEmailsSent(kind, "failure")
		writeError(w, h.logger, err)
		return
	}
	metrics.IncEmailsSent(kind, "success")
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// SendVerification handles POST /api/send-verification-email
func (h *EmailHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email             string `json:"email"`
		DisplayName       string `json:"displayName"`
		VerificationToken string `json:"verificationToken"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.emails.SendVerificationCode(r.Context(), req.Email, req.DisplayName, req.VerificationToken)
	h.finish(w, "verification", err)
}

// SendDriverInvitation handles POST /api/send-driver-invitation. expiresAt
// is optional; when absent the message uses the default expiry copy.
func (h *EmailHandler) SendDriverInvitation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email          string     `json:"email"`
		SchoolName     string     `json:"schoolName"`
		InviterName    string     `json:"inviterName"`
		InvitationLink string     `json:"invitationLink"`
		ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	var expiresAt time.Time
	if req.ExpiresAt != nil {
		expiresAt = *req.ExpiresAt
	}

	err := h.emails.SendDriverInvitation(r.Context(), req.Email, req.SchoolName, req.InviterName, req.InvitationLink, expiresAt)
	h.finish(w, "invitation", err)
}

// SendContact handles POST /api/send-contact-email
func (h *EmailHandler) SendContact(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Email   string `json:"email"`
		Phone   string `json:"phone"`
		Subject string `json:"subject"`
		Message string `json:"message"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	err := h.emails.SendContactMessage(r.Context(), req.Name, req.Email, req.Phone, req.Subject, req.Message)
	h.finish(w, "contact", err)
}
