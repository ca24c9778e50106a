package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/security/middleware"
	"github.com/ridewatch/onboarding/internal/service"
)

type invitationResponse struct {
	Token      string     `json:"token"`
	Email      string     `json:"email"`
	Role       string     `json:"role"`
	SchoolID   string     `json:"school_id"`
	Status     string     `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	AcceptedAt *time.Time `json:"acceptedAt,omitempty"`
}

func toInvitationResponse(inv *domain.Invitation) invitationResponse {
	resp := invitationResponse{
		Token:     inv.Token,
		Email:     inv.Email,
		Role:      inv.Role,
		SchoolID:  inv.SchoolID,
		Status:    inv.Status,
		CreatedAt: inv.CreatedAt,
		ExpiresAt: inv.ExpiresAt,
	}
	if !inv.AcceptedAt.IsZero() {
		t := inv.AcceptedAt
		resp.AcceptedAt = &t
	}
	return resp
}

// InviteHandler serves the invitation lifecycle endpoints
type InviteHandler struct {
	invitations *service.InvitationService
	logger      *slog.Logger
}

// NewInviteHandler creates a new invite handler
func NewInviteHandler(invitations *service.InvitationService, logger *slog.Logger) *InviteHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &InviteHandler{
		invitations: invitations,
		logger:      logger,
	}
}

// Create handles POST /api/invites. Requires a signed-in school admin.
func (h *InviteHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	var req struct {
		Email    string `json:"email"`
		SchoolID string `json:"school_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	inv, acceptURL, err := h.invitations.CreateInvitation(r.Context(), claims.UserID, req.Email, req.SchoolID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invitation":     toInvitationResponse(inv),
		"invitationLink": acceptURL,
	})
}

// List handles GET /api/invites, returning the caller's invitations
func (h *InviteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	invs, err := h.invitations.ListInvitations(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]invitationResponse, 0, len(invs))
	for _, inv := range invs {
		out = append(out, toInvitationResponse(inv))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invitations": out})
}

// Get handles GET /api/invites/{token}, the lookup behind the acceptance
// page. Dead links answer with the state error explaining why: 404 unknown,
// 409 consumed, 410 expired.
func (h *InviteHandler) Get(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")

	inv, err := h.invitations.GetInvitation(r.Context(), tok)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toInvitationResponse(inv))
}

// Accept handles POST /api/invites/{token}/accept, creating the driver
// account and signing the new driver in.
func (h *InviteHandler) Accept(w http.ResponseWriter, r *http.Request) {
	tok := r.PathValue("token")

	var req struct {
		FullName  string `json:"fullName"`
		Password  string `json:"password"`
		Phone     string `json:"phone"`
		LicenseNo string `json:"license_no"`
		PlateNo   string `json:"plate_no"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.invitations.AcceptInvitation(r.Context(), tok, service.DriverForm{
		FullName:  req.FullName,
		Password:  req.Password,
		Phone:     req.Phone,
		LicenseNo: req.LicenseNo,
		PlateNo:   req.PlateNo,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}
