package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ridewatch/onboarding/internal/domain"
)

// PostgresCompanyRepository implements domain.CompanyRepository using PostgreSQL
type PostgresCompanyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresCompanyRepository creates a new company repository
func NewPostgresCompanyRepository(db *sql.DB, logger *slog.Logger) *PostgresCompanyRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresCompanyRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new company. owner_uid is written here and never updated.
func (r *PostgresCompanyRepository) Create(ctx context.Context, company *domain.Company) error {
	if company.Status == "" {
		company.Status = domain.StatusActive
	}

	query := `
		INSERT INTO companies (id, name, address, description, contact_person, contact_phone, owner_uid, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		company.ID,
		company.Name,
		company.Address,
		company.Description,
		company.ContactPerson,
		company.ContactPhone,
		company.OwnerUID,
		company.Status,
	).Scan(&company.CreatedAt, &company.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create company",
			slog.String("owner_uid", company.OwnerUID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create company: %w", err)
	}

	return nil
}

// GetByID retrieves a company by ID
func (r *PostgresCompanyRepository) GetByID(ctx context.Context, id string) (*domain.Company, error) {
	query := companySelect + ` WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByOwner retrieves the company owned by the given user, if any. Used by
// re-provisioning to converge instead of creating a second orphaned company.
func (r *PostgresCompanyRepository) GetByOwner(ctx context.Context, ownerUID string) (*domain.Company, error) {
	query := companySelect + ` WHERE owner_uid = $1 ORDER BY created_at ASC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, ownerUID))
}

// Update updates mutable company fields (never owner_uid)
func (r *PostgresCompanyRepository) Update(ctx context.Context, company *domain.Company) error {
	query := `
		UPDATE companies
		SET name = $1, address = $2, description = $3, contact_person = $4,
			contact_phone = $5, status = $6, updated_at = now()
		WHERE id = $7
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		company.Name,
		company.Address,
		company.Description,
		company.ContactPerson,
		company.ContactPhone,
		company.Status,
		company.ID,
	).Scan(&company.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update company: %w", err)
	}

	return nil
}

const companySelect = `
	SELECT id, name, address, description, contact_person, contact_phone,
		owner_uid, status, created_at, updated_at
	FROM companies`

func (r *PostgresCompanyRepository) scanOne(row rowScanner) (*domain.Company, error) {
	company := &domain.Company{}
	err := row.Scan(
		&company.ID,
		&company.Name,
		&company.Address,
		&company.Description,
		&company.ContactPerson,
		&company.ContactPhone,
		&company.OwnerUID,
		&company.Status,
		&company.CreatedAt,
		&company.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return company, nil
}
