package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/observability/metrics"
	"github.com/ridewatch/onboarding/internal/security/auth"
	"github.com/ridewatch/onboarding/internal/token"
)

// Sign-in failures deliberately collapse to one message so callers cannot
// probe which emails have accounts.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrForbidden          = errors.New("you do not have access to this resource")
)

// CodeMailer delivers verification codes to registrants
type CodeMailer interface {
	SendVerificationCode(ctx context.Context, toEmail, displayName, code string) error
}

// AuthResult is a successful authentication outcome
type AuthResult struct {
	Token string
	User  *domain.User
}

// RegistrationService runs the self-registration flow: submit, verify,
// sign in. No account or credential exists until the emailed code is
// redeemed; the pending record in the verification store is the only
// evidence of the signup until then.
type RegistrationService struct {
	users      domain.UserRepository
	codes      domain.VerificationStore
	mailer     CodeMailer
	tokens     *auth.TokenManager
	codeTTL    time.Duration
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistrationService creates a registration service
func NewRegistrationService(
	users domain.UserRepository,
	codes domain.VerificationStore,
	mailer CodeMailer,
	tokens *auth.TokenManager,
	codeTTL, sessionTTL time.Duration,
	logger *slog.Logger,
) *RegistrationService {
	if logger == nil {
		logger = slog.Default()
	}

	return &RegistrationService{
		users:      users,
		codes:      codes,
		mailer:     mailer,
		tokens:     tokens,
		codeTTL:    codeTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (s *RegistrationService) SetClock(now func() time.Time) {
	s.now = now
}

// SubmitRegistration validates the signup, stages it in the verification
// store and emails a code. Re-submitting for the same email replaces the
// previous pending record with a fresh code.
func (s *RegistrationService) SubmitRegistration(ctx context.Context, emailAddr, displayName, password string) error {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if !domain.ValidEmail(emailAddr) {
		return domain.Invalid("A valid email address is required.")
	}
	if displayName == "" {
		return domain.Invalid("A display name is required.")
	}
	if err := domain.CheckPassword(password); err != nil {
		return err
	}

	if _, err := s.users.GetByEmail(ctx, emailAddr); err == nil {
		return domain.ErrEmailTaken
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("failed to check existing account: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	code, err := token.NewVerificationCode()
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rec := &domain.VerificationCode{
		Email:        emailAddr,
		DisplayName:  displayName,
		PasswordHash: string(hash),
		Code:         code,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.codeTTL),
	}
	if err := s.codes.Put(ctx, rec); err != nil {
		return err
	}
	metrics.IncVerificationCodesIssued()

	if err := s.mailer.SendVerificationCode(ctx, emailAddr, displayName, code); err != nil {
		s.logger.Error("failed to send verification code",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to send verification email: %w", err)
	}

	s.logger.Info("registration submitted", slog.Time("expires_at", rec.ExpiresAt))
	return nil
}

// ConfirmRegistration redeems a verification code and creates the account.
// The code is single use: a replay fails even when the first confirmation
// could not complete account creation.
func (s *RegistrationService) ConfirmRegistration(ctx context.Context, emailAddr, code string) (*AuthResult, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if !domain.ValidEmail(emailAddr) || code == "" {
		return nil, domain.Invalid("Email and verification code are required.")
	}

	rec, err := s.codes.Redeem(ctx, emailAddr, code, s.now().UTC())
	if err != nil {
		metrics.IncVerificationCodesRedeemed(redeemResult(err))
		return nil, err
	}
	metrics.IncVerificationCodesRedeemed("success")

	user := &domain.User{
		ID:            uuid.NewString(),
		Email:         rec.Email,
		DisplayName:   rec.DisplayName,
		Role:          domain.RoleBusCompany,
		PasswordHash:  rec.PasswordHash,
		Status:        domain.StatusActive,
		EmailVerified: true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("account created",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)
	return s.issueSession(user)
}

// SignIn authenticates an existing account
func (s *RegistrationService) SignIn(ctx context.Context, emailAddr, password string) (*AuthResult, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return nil, domain.Invalid("Email and password are required.")
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if user.Status != domain.StatusActive {
		return nil, ErrAccountDisabled
	}

	return s.issueSession(user)
}

func (s *RegistrationService) issueSession(user *domain.User) (*AuthResult, error) {
	tok, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role, user.CompanyID, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &AuthResult{Token: tok, User: user}, nil
}

func redeemResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrCodeNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCodeMismatch):
		return "mismatch"
	case errors.Is(err, domain.ErrCodeExpired):
		return "expired"
	case errors.Is(err, domain.ErrCodeConsumed):
		return "consumed"
	default:
		return "error"
	}
}
