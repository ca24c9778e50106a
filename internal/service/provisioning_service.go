package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/pkg/cache"
)

// ProvisioningService creates and maintains the company and school entities
// behind an owner account. Company creation is lazy and idempotent: the
// first operation that needs a company materializes it, and an account that
// lost its company link is re-attached to the company it owns instead of
// getting a duplicate.
type ProvisioningService struct {
	users     domain.UserRepository
	companies domain.CompanyRepository
	schools   domain.SchoolRepository
	nameCache *cache.Cache
	logger    *slog.Logger
}

// NewProvisioningService creates a provisioning service
func NewProvisioningService(
	users domain.UserRepository,
	companies domain.CompanyRepository,
	schools domain.SchoolRepository,
	logger *slog.Logger,
) *ProvisioningService {
	if logger == nil {
		logger = slog.Default()
	}

	return &ProvisioningService{
		users:     users,
		companies: companies,
		schools:   schools,
		nameCache: cache.New(),
		logger:    logger,
	}
}

// EnsureCompany returns the company owned by the user, creating one when
// none exists. Safe to call repeatedly: at most one company per owner.
func (s *ProvisioningService) EnsureCompany(ctx context.Context, userID string) (*domain.Company, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.CompanyID != "" {
		company, err := s.companies.GetByID(ctx, user.CompanyID)
		if err == nil {
			return company, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// The link is stale; fall through to owner lookup.
	}

	// Orphan recovery: an owner whose account lost its company link is
	// re-attached to the oldest company they own.
	company, err := s.companies.GetByOwner(ctx, userID)
	if err == nil {
		if setErr := s.users.SetCompany(ctx, userID, company.ID); setErr != nil {
			return nil, setErr
		}
		s.logger.Info("re-attached owner to existing company",
			slog.String("user_id", userID),
			slog.String("company_id", company.ID),
		)
		return company, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	name := "My Bus Company"
	if user.DisplayName != "" {
		name = fmt.Sprintf("%s's Bus Company", user.DisplayName)
	}

	company = &domain.Company{
		ID:       uuid.NewString(),
		Name:     name,
		OwnerUID: userID,
		Status:   domain.StatusActive,
	}
	if err := s.companies.Create(ctx, company); err != nil {
		return nil, err
	}
	if err := s.users.SetCompany(ctx, userID, company.ID); err != nil {
		return nil, err
	}

	s.logger.Info("company provisioned",
		slog.String("user_id", userID),
		slog.String("company_id", company.ID),
	)
	return company, nil
}

// UpdateCompany changes company profile fields. The owner link never changes.
func (s *ProvisioningService) UpdateCompany(ctx context.Context, userID string, name, address, description, contactPerson, contactPhone string) (*domain.Company, error) {
	if name == "" {
		return nil, domain.Invalid("A company name is required.")
	}
	if contactPhone != "" && !domain.ValidPhone(contactPhone) {
		return nil, domain.Invalid("The contact phone number looks invalid.")
	}

	company, err := s.EnsureCompany(ctx, userID)
	if err != nil {
		return nil, err
	}

	company.Name = name
	company.Address = address
	company.Description = description
	company.ContactPerson = contactPerson
	company.ContactPhone = contactPhone
	if err := s.companies.Update(ctx, company); err != nil {
		return nil, err
	}
	return company, nil
}

// CreateSchool adds a school under the caller's company
func (s *ProvisioningService) CreateSchool(ctx context.Context, userID, name, address, description string) (*domain.School, error) {
	if name == "" {
		return nil, domain.Invalid("A school name is required.")
	}

	company, err := s.EnsureCompany(ctx, userID)
	if err != nil {
		return nil, err
	}

	school := &domain.School{
		ID:          uuid.NewString(),
		CompanyID:   company.ID,
		Name:        name,
		Address:     address,
		Description: description,
		Status:      domain.StatusActive,
	}
	if err := s.schools.Create(ctx, school); err != nil {
		return nil, err
	}

	s.logger.Info("school created",
		slog.String("company_id", company.ID),
		slog.String("school_id", school.ID),
	)
	return school, nil
}

// ListSchools returns the schools under the caller's company
func (s *ProvisioningService) ListSchools(ctx context.Context, userID string) ([]*domain.School, error) {
	company, err := s.EnsureCompany(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.schools.ListByCompany(ctx, company.ID)
}

// UpdateSchool changes school profile fields after an ownership check
func (s *ProvisioningService) UpdateSchool(ctx context.Context, userID, schoolID, name, address, description string) (*domain.School, error) {
	if name == "" {
		return nil, domain.Invalid("A school name is required.")
	}

	school, err := s.ownedSchool(ctx, userID, schoolID)
	if err != nil {
		return nil, err
	}

	school.Name = name
	school.Address = address
	school.Description = description
	if err := s.schools.Update(ctx, school); err != nil {
		return nil, err
	}
	s.nameCache.Delete(schoolID)
	return school, nil
}

// DeleteSchool removes a school after an ownership check
func (s *ProvisioningService) DeleteSchool(ctx context.Context, userID, schoolID string) error {
	if _, err := s.ownedSchool(ctx, userID, schoolID); err != nil {
		return err
	}
	if err := s.schools.Delete(ctx, schoolID); err != nil {
		return err
	}
	s.nameCache.Delete(schoolID)
	return nil
}

// SchoolName resolves a school's display name through a short-lived cache.
// Invitation emails and roster payloads hit this on every request.
func (s *ProvisioningService) SchoolName(ctx context.Context, schoolID string) (string, error) {
	if name, ok := s.nameCache.Get(schoolID); ok {
		return name.(string), nil
	}

	school, err := s.schools.GetByID(ctx, schoolID)
	if err != nil {
		return "", err
	}
	s.nameCache.Set(schoolID, school.Name, 5*time.Minute)
	return school.Name, nil
}

// AssignDriver adds an existing driver to a school. The first assignment
// also becomes the driver's current school.
func (s *ProvisioningService) AssignDriver(ctx context.Context, adminID, schoolID, driverID string) error {
	school, err := s.ownedSchool(ctx, adminID, schoolID)
	if err != nil {
		return err
	}

	driver, err := s.users.GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if driver.Role != domain.RoleDriver {
		return domain.Invalid("Only driver accounts can be assigned to a school.")
	}
	for _, banned := range school.BannedUIDs {
		if banned == driverID {
			return domain.Invalid("This driver is banned from the school.")
		}
	}

	if err := s.users.AddSchool(ctx, driverID, schoolID); err != nil {
		return err
	}
	if driver.CurrentSchoolID == "" {
		if err := s.users.SetCurrentSchool(ctx, driverID, schoolID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveDriver detaches a driver from a school
func (s *ProvisioningService) RemoveDriver(ctx context.Context, adminID, schoolID, driverID string) error {
	if _, err := s.ownedSchool(ctx, adminID, schoolID); err != nil {
		return err
	}
	return s.users.RemoveSchool(ctx, driverID, schoolID)
}

// SetCurrentSchool switches which school a driver is actively working.
// Drivers can only switch to schools they are members of.
func (s *ProvisioningService) SetCurrentSchool(ctx context.Context, driverID, schoolID string) error {
	driver, err := s.users.GetByID(ctx, driverID)
	if err != nil {
		return err
	}
	if !driver.HasSchool(schoolID) {
		return ErrForbidden
	}
	return s.users.SetCurrentSchool(ctx, driverID, schoolID)
}

// SetDriverStatus toggles a driver active or inactive
func (s *ProvisioningService) SetDriverStatus(ctx context.Context, adminID, schoolID, driverID, status string) error {
	if status != domain.StatusActive && status != domain.StatusInactive {
		return domain.Invalid("Status must be active or inactive.")
	}
	if _, err := s.ownedSchool(ctx, adminID, schoolID); err != nil {
		return err
	}
	return s.users.SetStatus(ctx, driverID, status)
}

// BanDriver bans a driver from a school and removes their membership, so a
// later invitation or assignment cannot silently restore access.
func (s *ProvisioningService) BanDriver(ctx context.Context, adminID, schoolID, driverID string) error {
	school, err := s.ownedSchool(ctx, adminID, schoolID)
	if err != nil {
		return err
	}

	for _, banned := range school.BannedUIDs {
		if banned == driverID {
			return nil
		}
	}
	school.BannedUIDs = append(school.BannedUIDs, driverID)
	if err := s.schools.Update(ctx, school); err != nil {
		return err
	}
	return s.users.RemoveSchool(ctx, driverID, schoolID)
}

// UnbanDriver lifts a ban. Membership is not restored automatically.
func (s *ProvisioningService) UnbanDriver(ctx context.Context, adminID, schoolID, driverID string) error {
	school, err := s.ownedSchool(ctx, adminID, schoolID)
	if err != nil {
		return err
	}

	kept := school.BannedUIDs[:0]
	for _, banned := range school.BannedUIDs {
		if banned != driverID {
			kept = append(kept, banned)
		}
	}
	school.BannedUIDs = kept
	return s.schools.Update(ctx, school)
}

// ListDrivers returns the drivers attached to a school after an ownership check
func (s *ProvisioningService) ListDrivers(ctx context.Context, userID, schoolID string) ([]*domain.User, error) {
	if _, err := s.ownedSchool(ctx, userID, schoolID); err != nil {
		return nil, err
	}
	return s.users.ListBySchool(ctx, schoolID, domain.RoleDriver)
}

// ownedSchool loads a school and verifies the caller's company owns it
func (s *ProvisioningService) ownedSchool(ctx context.Context, userID, schoolID string) (*domain.School, error) {
	school, err := s.schools.GetByID(ctx, schoolID)
	if err != nil {
		return nil, err
	}

	company, err := s.EnsureCompany(ctx, userID)
	if err != nil {
		return nil, err
	}
	if school.CompanyID != company.ID {
		return nil, ErrForbidden
	}
	return school, nil
}
