// Package testutil provides in-memory implementations of the persistence
// interfaces for tests that exercise the HTTP stack without PostgreSQL.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
)

// MemoryUserRepo is an in-memory domain.UserRepository
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: map[string]*domain.User{}}
}

func (r *MemoryUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domain.ErrEmailTaken
		}
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
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

func (r *MemoryUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domain.ErrUserNotFound
	}
	user.UpdatedAt = time.Now()
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *MemoryUserRepo) SetCompany(_ context.Context, userID, companyID string) error {
	return r.mutate(userID, func(u *domain.User) { u.CompanyID = companyID })
}

func (r *MemoryUserRepo) SetCurrentSchool(_ context.Context, userID, schoolID string) error {
	return r.mutate(userID, func(u *domain.User) { u.CurrentSchoolID = schoolID })
}

func (r *MemoryUserRepo) AddSchool(_ context.Context, userID, schoolID string) error {
	return r.mutate(userID, func(u *domain.User) {
		if !u.HasSchool(schoolID) {
			u.SchoolIDs = append(u.SchoolIDs, schoolID)
		}
	})
}

func (r *MemoryUserRepo) RemoveSchool(_ context.Context, userID, schoolID string) error {
	return r.mutate(userID, func(u *domain.User) {
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
	})
}

func (r *MemoryUserRepo) SetStatus(_ context.Context, userID, status string) error {
	return r.mutate(userID, func(u *domain.User) { u.Status = status })
}

func (r *MemoryUserRepo) ListBySchool(_ context.Context, schoolID, role string) ([]*domain.User, error) {
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

func (r *MemoryUserRepo) mutate(userID string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	fn(u)
	u.UpdatedAt = time.Now()
	return nil
}

// MemoryCompanyRepo is an in-memory domain.CompanyRepository
type MemoryCompanyRepo struct {
	mu        sync.Mutex
	companies map[string]*domain.Company
}

func NewMemoryCompanyRepo() *MemoryCompanyRepo {
	return &MemoryCompanyRepo{companies: map[string]*domain.Company{}}
}

func (r *MemoryCompanyRepo) Create(_ context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	company.CreatedAt = time.Now()
	company.UpdatedAt = company.CreatedAt
	cp := *company
	r.companies[company.ID] = &cp
	return nil
}

func (r *MemoryCompanyRepo) GetByID(_ context.Context, id string) (*domain.Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryCompanyRepo) GetByOwner(_ context.Context, ownerUID string) (*domain.Company, error) {
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

func (r *MemoryCompanyRepo) Update(_ context.Context, company *domain.Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.companies[company.ID]; !ok {
		return domain.ErrNotFound
	}
	company.UpdatedAt = time.Now()
	cp := *company
	r.companies[company.ID] = &cp
	return nil
}

// MemorySchoolRepo is an in-memory domain.SchoolRepository
type MemorySchoolRepo struct {
	mu      sync.Mutex
	schools map[string]*domain.School
}

func NewMemorySchoolRepo() *MemorySchoolRepo {
	return &MemorySchoolRepo{schools: map[string]*domain.School{}}
}

func (r *MemorySchoolRepo) Create(_ context.Context, school *domain.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	school.CreatedAt = time.Now()
	school.UpdatedAt = school.CreatedAt
	cp := *school
	r.schools[school.ID] = &cp
	return nil
}

func (r *MemorySchoolRepo) GetByID(_ context.Context, id string) (*domain.School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.schools[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MemorySchoolRepo) ListByCompany(_ context.Context, companyID string) ([]*domain.School, error) {
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

func (r *MemorySchoolRepo) Update(_ context.Context, school *domain.School) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schools[school.ID]; !ok {
		return domain.ErrNotFound
	}
	school.UpdatedAt = time.Now()
	cp := *school
	r.schools[school.ID] = &cp
	return nil
}

func (r *MemorySchoolRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schools[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.schools, id)
	return nil
}
