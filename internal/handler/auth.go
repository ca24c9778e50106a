package handler

import (
	"log/slog"
	"net/http"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/service"
)

// userResponse is the API shape of an account. The password hash never
// leaves the server.
type userResponse struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	DisplayName     string   `json:"displayName"`
	Role            string   `json:"role"`
	CompanyID       string   `json:"company_id,omitempty"`
	CurrentSchoolID string   `json:"current_school_id,omitempty"`
	SchoolIDs       []string `json:"school_ids,omitempty"`
	Phone           string   `json:"phone,omitempty"`
	LicenseNo       string   `json:"license_no,omitempty"`
	PlateNo         string   `json:"plate_no,omitempty"`
	Status          string   `json:"status"`
	EmailVerified   bool     `json:"emailVerified"`
}

func toUserResponse(u *domain.User) userResponse {
	return userResponse{
		ID:              u.ID,
		Email:           u.Email,
		DisplayName:     u.DisplayName,
		Role:            u.Role,
		CompanyID:       u.CompanyID,
		CurrentSchoolID: u.CurrentSchoolID,
		SchoolIDs:       u.SchoolIDs,
		Phone:           u.Phone,
		LicenseNo:       u.LicenseNo,
		PlateNo:         u.PlateNo,
		Status:          u.Status,
		EmailVerified:   u.EmailVerified,
	}
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// AuthHandler serves the self-registration and sign-in endpoints
type AuthHandler struct {
	registration *service.RegistrationService
	logger       *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(registration *service.RegistrationService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		registration: registration,
		logger:       logger,
	}
}

// Register handles POST /api/auth/register. Success means a code was
// emailed; no account exists until the code is verified.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		Password    string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.registration.SubmitRegistration(r.Context(), req.Email, req.DisplayName, req.Password); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"message": "Verification code sent. Check your email.",
	})
}

// Verify handles POST /api/auth/verify, redeeming the emailed code and
// creating the account.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"verificationCode"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.registration.ConfirmRegistration(r.Context(), req.Email, req.Code)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.registration.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		Token: result.Token,
		User:  toUserResponse(result.User),
	})
}
