package handler

import (
	"log/slog"
	"net/http"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/security/middleware"
	"github.com/ridewatch/onboarding/internal/service"
)

type schoolResponse struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Address     string `json:"address,omitempty"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

func toSchoolResponse(s *domain.School) schoolResponse {
	return schoolResponse{
		ID:          s.ID,
		CompanyID:   s.CompanyID,
		Name:        s.Name,
		Address:     s.Address,
		Description: s.Description,
		Status:      s.Status,
	}
}

// SchoolHandler serves company, school and roster management endpoints
type SchoolHandler struct {
	provisioning *service.ProvisioningService
	logger       *slog.Logger
}

// NewSchoolHandler creates a new school handler
func NewSchoolHandler(provisioning *service.ProvisioningService, logger *slog.Logger) *SchoolHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SchoolHandler{
		provisioning: provisioning,
		logger:       logger,
	}
}

func requireClaims(w http.ResponseWriter, r *http.Request) (userID string, ok bool) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return "", false
	}
	return claims.UserID, true
}

// GetCompany handles GET /api/company, provisioning one on first call
func (h *SchoolHandler) GetCompany(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	company, err := h.provisioning.EnsureCompany(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             company.ID,
		"name":           company.Name,
		"address":        company.Address,
		"description":    company.Description,
		"contact_person": company.ContactPerson,
		"contact_phone":  company.ContactPhone,
		"owner_uid":      company.OwnerUID,
		"status":         company.Status,
	})
}

// UpdateCompany handles PUT /api/company
func (h *SchoolHandler) UpdateCompany(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Name          string `json:"name"`
		Address       string `json:"address"`
		Description   string `json:"description"`
		ContactPerson string `json:"contact_person"`
		ContactPhone  string `json:"contact_phone"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	company, err := h.provisioning.UpdateCompany(r.Context(), userID,
		req.Name, req.Address, req.Description, req.ContactPerson, req.ContactPhone)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"id": company.ID, "name": company.Name})
}

// List handles GET /api/schools
func (h *SchoolHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	schools, err := h.provisioning.ListSchools(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]schoolResponse, 0, len(schools))
	for _, s := range schools {
		out = append(out, toSchoolResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"schools": out})
}

// Create handles POST /api/schools
func (h *SchoolHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Address     string `json:"address"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	school, err := h.provisioning.CreateSchool(r.Context(), userID, req.Name, req.Address, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSchoolResponse(school))
}

// Update handles PUT /api/schools/{id}
func (h *SchoolHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string `json:"name"`
		Address     string `json:"address"`
		Description string `json:"description"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	school, err := h.provisioning.UpdateSchool(r.Context(), userID, r.PathValue("id"),
		req.Name, req.Address, req.Description)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toSchoolResponse(school))
}

// Delete handles DELETE /api/schools/{id}
func (h *SchoolHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.provisioning.DeleteSchool(r.Context(), userID, r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ListDrivers handles GET /api/schools/{id}/drivers
func (h *SchoolHandler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	drivers, err := h.provisioning.ListDrivers(r.Context(), userID, r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]userResponse, 0, len(drivers))
	for _, d := range drivers {
		out = append(out, toUserResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"drivers": out})
}

// AssignDriver handles POST /api/schools/{id}/drivers
func (h *SchoolHandler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		DriverID string `json:"driver_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.provisioning.AssignDriver(r.Context(), userID, r.PathValue("id"), req.DriverID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// RemoveDriver handles DELETE /api/schools/{id}/drivers/{driverId}
func (h *SchoolHandler) RemoveDriver(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.provisioning.RemoveDriver(r.Context(), userID, r.PathValue("id"), r.PathValue("driverId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// SetDriverStatus handles PUT /api/schools/{id}/drivers/{driverId}/status
func (h *SchoolHandler) SetDriverStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.provisioning.SetDriverStatus(r.Context(), userID, r.PathValue("id"), r.PathValue("driverId"), req.Status); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// BanDriver handles POST /api/schools/{id}/drivers/{driverId}/ban
func (h *SchoolHandler) BanDriver(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.provisioning.BanDriver(r.Context(), userID, r.PathValue("id"), r.PathValue("driverId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// UnbanDriver handles DELETE /api/schools/{id}/drivers/{driverId}/ban
func (h *SchoolHandler) UnbanDriver(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	if err := h.provisioning.UnbanDriver(r.Context(), userID, r.PathValue("id"), r.PathValue("driverId")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// SetCurrentSchool handles PUT /api/me/current-school, used by drivers who
// work multiple schools.
func (h *SchoolHandler) SetCurrentSchool(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req struct {
		SchoolID string `json:"school_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.provisioning.SetCurrentSchool(r.Context(), userID, req.SchoolID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
