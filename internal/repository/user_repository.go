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

const userColumns = `id, email, display_name, role, password_hash, company_id,
		current_school_id, school_ids, phone, license_no, plate_no, status,
		email_verified, created_at, updated_at`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new user. A duplicate email surfaces as
// domain.ErrEmailTaken via the unique constraint, which is what makes
// credential creation safe against concurrent signups for the same address.
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Status == "" {
		user.Status = domain.StatusActive
	}

	query := `
		INSERT INTO users (id, email, display_name, role, password_hash, company_id,
			current_school_id, school_ids, phone, license_no, plate_no, status, email_verified)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		user.DisplayName,
		user.Role,
		user.PasswordHash,
		user.CompanyID,
		user.CurrentSchoolID,
		pq.Array(user.SchoolIDs),
		user.Phone,
		user.LicenseNo,
		user.PlateNo,
		user.Status,
		user.EmailVerified,
	).Scan(&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return domain.ErrEmailTaken
		}
		r.logger.Error("failed to create user",
			slog.String("email", user.Email),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by (normalized) email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// Update updates mutable profile fields of an existing user
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET display_name = $1, password_hash = $2, phone = $3, license_no = $4,
			plate_no = $5, status = $6, email_verified = $7, updated_at = now()
		WHERE id = $8
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.DisplayName,
		user.PasswordHash,
		user.Phone,
		user.LicenseNo,
		user.PlateNo,
		user.Status,
		user.EmailVerified,
		user.ID,
	).Scan(&user.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrUserNotFound
		}
		return fmt.Errorf("failed to update user: %w", err)
	}

	return nil
}

// SetCompany links a company to the user and promotes the role to bus_company
func (r *PostgresUserRepository) SetCompany(ctx context.Context, userID, companyID string) error {
	query := `
		UPDATE users
		SET company_id = $1, role = $2, updated_at = now()
		WHERE id = $3
	`
	return r.exec(ctx, query, "set company", companyID, domain.RoleBusCompany, userID)
}

// SetCurrentSchool merges the current school selection onto the user
func (r *PostgresUserRepository) SetCurrentSchool(ctx context.Context, userID, schoolID string) error {
	query := `
		UPDATE users
		SET current_school_id = NULLIF($1, ''), updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "set current school", schoolID, userID)
}

// AddSchool appends a school membership if not already present
func (r *PostgresUserRepository) AddSchool(ctx context.Context, userID, schoolID string) error {
	query := `
		UPDATE users
		SET school_ids = array_append(school_ids, $1), updated_at = now()
		WHERE id = $2 AND NOT ($1 = ANY(school_ids))
	`
	result, err := r.db.ExecContext(ctx, query, schoolID, userID)
	if err != nil {
		return fmt.Errorf("failed to add school membership: %w", err)
	}
	// Zero rows means the user is missing or already a member; membership
	// add is idempotent so only the former is an error.
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := r.GetByID(ctx, userID); err != nil {
			return err
		}
	}
	return nil
}

// RemoveSchool detaches the user from a school. The current school selection
// is cleared when it points at the removed school.
func (r *PostgresUserRepository) RemoveSchool(ctx context.Context, userID, schoolID string) error {
	query := `
		UPDATE users
		SET school_ids = array_remove(school_ids, $1),
			current_school_id = NULLIF(current_school_id, $1),
			updated_at = now()
		WHERE id = $2
	`
	return r.exec(ctx, query, "remove school", schoolID, userID)
}

// SetStatus toggles a user between active and inactive
func (r *PostgresUserRepository) SetStatus(ctx context.Context, userID, status string) error {
	query := `UPDATE users SET status = $1, updated_at = now() WHERE id = $2`
	return r.exec(ctx, query, "set status", status, userID)
}

// ListBySchool lists users of the given role belonging to a school
func (r *PostgresUserRepository) ListBySchool(ctx context.Context, schoolID, role string) ([]*domain.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE $1 = ANY(school_ids) AND role = $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, schoolID, role)
	if err != nil {
		r.logger.Error("failed to list users by school",
			slog.String("school_id", schoolID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (r *PostgresUserRepository) exec(ctx context.Context, query, op string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *PostgresUserRepository) scanOne(row rowScanner) (*domain.User, error) {
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var companyID, currentSchoolID sql.NullString
	var schoolIDs pq.StringArray

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.Role,
		&user.PasswordHash,
		&companyID,
		&currentSchoolID,
		&schoolIDs,
		&user.Phone,
		&user.LicenseNo,
		&user.PlateNo,
		&user.Status,
		&user.EmailVerified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	user.CompanyID = companyID.String
	user.CurrentSchoolID = currentSchoolID.String
	user.SchoolIDs = []string(schoolIDs)
	return user, nil
}
