package service

import (
	"context"
	"sync"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
)

// In-memory doubles for the persistence interfaces. The stores mirror the
// Redis implementations' conditional-update semantics closely enough to
// exercise the single-use paths.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User // by ID
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*domain.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) SetCompany(_ context.Context, userID, companyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.CompanyID = companyID
	return nil
}

func (r *fakeUserRepo) SetCurrentSchool(_ context.Context, userID, schoolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.CurrentSchoolID = schoolID
	return nil
}

func (r *fakeUserRepo) AddSchool(_ context.Context, userID, schoolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	if !u.HasSchool(schoolID) {
		u.SchoolIDs = append(u.SchoolIDs, schoolID)
	}
	return nil
}

func (r *fakeUserRepo) RemoveSchool(_ context.Context, userID, schoolID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	kept := u.SchoolIDs[:0]
	for _, id := range u.SchoolIDs {
		if id != schoolID {
			kept = append(kept, id)
		}
	}
	u.SchoolIDs = kept
	if u.CurrentSchoolID == schoolID {
		u.CurrentSchoolID = ""
	}
	return nil
}

func (r *fakeUserRepo) SetStatus(_ context.Context, userID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Status = status
	return nil
}

func (r *fakeUserRepo) ListBySchool(_ context.Context, schoolID, role string) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, u := range r.users {
		if u.Role == role && u.HasSchool(schoolID) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeCompanyRepo struct {
	mu        sync.Mutex
	companies map[string]*domain.Company
}

func newFakeCompanyRepo() *fakeCompanyRepo {
	return &fakeCompanyRepo{companies: map[string]*domain.Company{}}
}

func (r *fakeCompanyRepo) Create(_ context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	company.CreatedAt = time.Now()
	cp := *company
	r.companies[company.ID] = &cp
	return nil
}

func (r *fakeCompanyRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCompanyRepo) GetByOwner(_ context.Context, ownerUID string) (*domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var oldest *domain.Company
	for _, c := range r.companies {
		if c.OwnerUID != ownerUID {
			continue
		}
		if oldest == nil || c.CreatedAt.Before(oldest.CreatedAt) {
			oldest = c
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *oldest
	return &cp, nil
}

func (r *fakeCompanyRepo) Update(_ context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[company.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *company
	r.companies[company.ID] = &cp
	return nil
}

type fakeSchoolRepo struct {
	mu      sync.Mutex
	schools map[string]*domain.School
}

func newFakeSchoolRepo() *fakeSchoolRepo {
	return &fakeSchoolRepo{schools: map[string]*domain.School{}}
}

func (r *fakeSchoolRepo) Create(_ context.Context, school *domain.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *school
	r.schools[school.ID] = &cp
	return nil
}

func (r *fakeSchoolRepo) GetByID(_ context.Context, id string) (*domain.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSchoolRepo) ListByCompany(_ context.Context, companyID string) ([]*domain.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.School
	for _, s := range r.schools {
		if s.CompanyID == companyID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeSchoolRepo) Update(_ context.Context, school *domain.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schools[school.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *school
	r.schools[school.ID] = &cp
	return nil
}

func (r *fakeSchoolRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schools[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.schools, id)
	return nil
}

// fakeMailer records outbound mail and satisfies both mailer interfaces
type fakeMailer struct {
	mu          sync.Mutex
	codes       []sentCode
	invitations []sentInvitation
	err         error
}

type sentCode struct {
	to   string
	name string
	code string
}

type sentInvitation struct {
	to     string
	school string
	link   string
}

func (m *fakeMailer) SendVerificationCode(_ context.Context, toEmail, displayName, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.codes = append(m.codes, sentCode{to: toEmail, name: displayName, code: code})
	return nil
}

func (m *fakeMailer) SendDriverInvitation(_ context.Context, toEmail, schoolName, _ string, invitationLink string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.invitations = append(m.invitations, sentInvitation{to: toEmail, school: schoolName, link: invitationLink})
	return nil
}

func (m *fakeMailer) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1].code
}
