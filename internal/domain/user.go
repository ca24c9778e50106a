package domain

import (
	"context"
	"time"
)

// Account roles. RoleSchoolAdmin is a legacy role still present in older
// user records; new company owners are created as RoleBusCompany.
const (
	RoleSchoolAdmin = "school_admin"
	RoleBusCompany  = "bus_company"
	RoleDriver      = "driver"
)

// Account and entity statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// User represents an account. Company owners carry a CompanyID once
// provisioning completes; drivers carry school memberships plus the profile
// fields captured when they accepted their invitation.
type User struct {
	ID              string // UUID
	Email           string // unique, stored lowercase
	DisplayName     string
	Role            string // school_admin | bus_company | driver
	PasswordHash    string // bcrypt hashed password (not returned in API)
	CompanyID       string // empty until company provisioning completes
	CurrentSchoolID string
	SchoolIDs       []string
	Phone           string
	LicenseNo       string
	PlateNo         string
	Status          string
	EmailVerified   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasSchool reports whether the user is a member of the given school.
func (u *User) HasSchool(schoolID string) bool {
	for _, id := range u.SchoolIDs {
		if id == schoolID {
			return true
		}
	}
	return false
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	SetCompany(ctx context.Context, userID, companyID string) error
	SetCurrentSchool(ctx context.Context, userID, schoolID string) error
	AddSchool(ctx context.Context, userID, schoolID string) error
	RemoveSchool(ctx context.Context, userID, schoolID string) error
	SetStatus(ctx context.Context, userID, status string) error
	ListBySchool(ctx context.Context, schoolID, role string) ([]*User, error)
}

// Company is the organizational tenant owning one or more schools.
// OwnerUID is set once at creation and never changes.
type Company struct {
	ID            string // UUID
	Name          string
	Address       string
	Description   string
	ContactPerson string
	ContactPhone  string
	OwnerUID      string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CompanyRepository defines data access for companies
type CompanyRepository interface {
	Create(ctx context.Context, company *Company) error
	GetByID(ctx context.Context, id string) (*Company, error)
	GetByOwner(ctx context.Context, ownerUID string) (*Company, error)
	Update(ctx context.Context, company *Company) error
}

// School is an operating unit under a company. Deleting a school does not
// cascade to users or invitations; that remains the caller's responsibility.
type School struct {
	ID          string // UUID
	CompanyID   string
	Name        string
	Address     string
	Description string
	Status      string
	BannedUIDs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SchoolRepository defines data access for schools
type SchoolRepository interface {
	Create(ctx context.Context, school *School) error
	GetByID(ctx context.Context, id string) (*School, error)
	ListByCompany(ctx context.Context, companyID string) ([]*School, error)
	Update(ctx context.Context, school *School) error
	Delete(ctx context.Context, id string) error
}
