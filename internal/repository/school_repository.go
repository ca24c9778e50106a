package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
	"github.com/ridewatch/onboarding/internal/domain"
)

// PostgresSchoolRepository implements domain.SchoolRepository using PostgreSQL
type PostgresSchoolRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresSchoolRepository creates a new school repository
func NewPostgresSchoolRepository(db *sql.DB, logger *slog.Logger) *PostgresSchoolRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSchoolRepository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new school under a company
func (r *PostgresSchoolRepository) Create(ctx context.Context, school *domain.School) error {
	if school.Status == "" {
		school.Status = domain.StatusActive
	}
	if school.BannedUIDs == nil {
		school.BannedUIDs = []string{}
	}

	query := `
		INSERT INTO schools (id, company_id, name, address, description, status, banned_uids)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		school.ID,
		school.CompanyID,
		school.Name,
		school.Address,
		school.Description,
		school.Status,
		pq.Array(school.BannedUIDs),
	).Scan(&school.CreatedAt, &school.UpdatedAt)

	if err != nil {
		r.logger.Error("failed to create school",
			slog.String("company_id", school.CompanyID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create school: %w", err)
	}

	return nil
}

// GetByID retrieves a school by ID
func (r *PostgresSchoolRepository) GetByID(ctx context.Context, id string) (*domain.School, error) {
	query := schoolSelect + ` WHERE id = $1`
	school, err := scanSchool(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get school: %w", err)
	}
	return school, nil
}

// ListByCompany lists all schools owned by a company
func (r *PostgresSchoolRepository) ListByCompany(ctx context.Context, companyID string) ([]*domain.School, error) {
	query := schoolSelect + ` WHERE company_id = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, companyID)
	if err != nil {
		r.logger.Error("failed to list schools",
			slog.String("company_id", companyID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list schools: %w", err)
	}
	defer rows.Close()

	var schools []*domain.School
	for rows.Next() {
		school, err := scanSchool(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan school: %w", err)
		}
		schools = append(schools, school)
	}

	return schools, rows.Err()
}

// Update updates school fields including the banned-user list
func (r *PostgresSchoolRepository) Update(ctx context.Context, school *domain.School) error {
	query := `
		UPDATE schools
		SET name = $1, address = $2, description = $3, status = $4,
			banned_uids = $5, updated_at = now()
		WHERE id = $6
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		school.Name,
		school.Address,
		school.Description,
		school.Status,
		pq.Array(school.BannedUIDs),
		school.ID,
	).Scan(&school.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("failed to update school: %w", err)
	}

	return nil
}

// Delete removes a school. No cascade: memberships and invitations pointing
// at the school are left to the caller.
func (r *PostgresSchoolRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schools WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete school: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

const schoolSelect = `
	SELECT id, company_id, name, address, description, status, banned_uids,
		created_at, updated_at
	FROM schools`

func scanSchool(row rowScanner) (*domain.School, error) {
	school := &domain.School{}
	var banned pq.StringArray

	err := row.Scan(
		&school.ID,
		&school.CompanyID,
		&school.Name,
		&school.Address,
		&school.Description,
		&school.Status,
		&banned,
		&school.CreatedAt,
		&school.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	school.BannedUIDs = []string(banned)
	return school, nil
}
