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

// InviteMailer delivers invitation links to prospective drivers
type InviteMailer interface {
	SendDriverInvitation(ctx context.Context, toEmail, schoolName, inviterName, invitationLink string, expiresAt time.Time) error
}

// DriverForm is the profile a driver submits when accepting an invitation
type DriverForm struct {
	FullName  string
	Password  string
	Phone     string
	LicenseNo string
	PlateNo   string
}

// InvitationService runs the driver invitation flow: a school admin mints a
// single-use token, the invitee follows the emailed link and accepts with
// their profile, which creates the driver account and attaches it to the
// school in one pass.
type InvitationService struct {
	invites    domain.InvitationStore
	users      domain.UserRepository
	prov       *ProvisioningService
	mailer     InviteMailer
	tokens     *auth.TokenManager
	appBaseURL string
	inviteTTL  time.Duration
	sessionTTL time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewInvitationService creates an invitation service
func NewInvitationService(
	invites domain.InvitationStore,
	users domain.UserRepository,
	prov *ProvisioningService,
	mailer InviteMailer,
	tokens *auth.TokenManager,
	appBaseURL string,
	inviteTTL, sessionTTL time.Duration,
	logger *slog.Logger,
) *InvitationService {
	if logger == nil {
		logger = slog.Default()
	}

	return &InvitationService{
		invites:    invites,
		users:      users,
		prov:       prov,
		mailer:     mailer,
		tokens:     tokens,
		appBaseURL: appBaseURL,
		inviteTTL:  inviteTTL,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (s *InvitationService) SetClock(now func() time.Time) {
	s.now = now
}

// AcceptURL builds the link the invitee follows
func (s *InvitationService) AcceptURL(tok string) string {
	return s.appBaseURL + "/accept-invite?token=" + tok
}

// CreateInvitation mints and stores a pending invitation and emails the
// link. Email delivery is best effort: the invitation exists and the link
// can be shared manually even when the provider is down.
func (s *InvitationService) CreateInvitation(ctx context.Context, inviterID, emailAddr, schoolID string) (*domain.Invitation, string, error) {
	emailAddr = domain.NormalizeEmail(emailAddr)
	if !domain.ValidEmail(emailAddr) {
		return nil, "", domain.Invalid("A valid email address is required.")
	}
	if schoolID == "" {
		return nil, "", domain.Invalid("A school is required.")
	}

	school, err := s.prov.ownedSchool(ctx, inviterID, schoolID)
	if err != nil {
		return nil, "", err
	}

	existing, err := s.users.GetByEmail(ctx, emailAddr)
	if err == nil {
		if existing.Role == domain.RoleDriver && existing.HasSchool(schoolID) {
			return nil, "", domain.Invalid("This driver is already a member of the school.")
		}
		return nil, "", domain.Invalid("This email already has a RideWatch account. Assign the driver to your school instead.")
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, "", fmt.Errorf("failed to check existing account: %w", err)
	}

	tok, err := token.NewInviteToken()
	if err != nil {
		return nil, "", err
	}

	now := s.now().UTC()
	inv := &domain.Invitation{
		Token:     tok,
		Email:     emailAddr,
		Role:      domain.RoleDriver,
		SchoolID:  schoolID,
		Status:    domain.InviteStatusPending,
		InvitedBy: inviterID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.inviteTTL),
	}
	if err := s.invites.Create(ctx, inv); err != nil {
		return nil, "", err
	}
	metrics.IncInvitationsCreated()

	acceptURL := s.AcceptURL(tok)

	inviter, err := s.users.GetByID(ctx, inviterID)
	inviterName := "Your school administrator"
	if err == nil && inviter.DisplayName != "" {
		inviterName = inviter.DisplayName
	}

	if err := s.mailer.SendDriverInvitation(ctx, emailAddr, school.Name, inviterName, acceptURL, inv.ExpiresAt); err != nil {
		s.logger.Warn("failed to send invitation email, link must be shared manually",
			slog.String("school_id", schoolID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Info("invitation created",
		slog.String("school_id", schoolID),
		slog.String("invited_by", inviterID),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return inv, acceptURL, nil
}

// GetInvitation looks up an invitation for the acceptance page. Expired and
// consumed invitations surface their state error so the page can explain
// which kind of dead link this is.
func (s *InvitationService) GetInvitation(ctx context.Context, tok string) (*domain.Invitation, error) {
	inv, err := s.invites.Get(ctx, tok)
	if err != nil {
		return nil, err
	}
	if err := inv.Redeemable(s.now().UTC()); err != nil {
		return inv, err
	}
	return inv, nil
}

// AcceptInvitation redeems a pending invitation: validates the submitted
// profile, creates the driver account on the invited email, consumes the
// token, attaches the driver to the school and signs them in. Validation
// runs before any write so a bad form never burns the token.
func (s *InvitationService) AcceptInvitation(ctx context.Context, tok string, form DriverForm) (*AuthResult, error) {
	now := s.now().UTC()

	inv, err := s.invites.Get(ctx, tok)
	if err != nil {
		metrics.IncInvitationsRedeemed("not_found")
		return nil, err
	}
	if err := inv.Redeemable(now); err != nil {
		metrics.IncInvitationsRedeemed(acceptResult(err))
		return nil, err
	}

	if form.FullName == "" {
		return nil, domain.Invalid("Your full name is required.")
	}
	if err := domain.CheckPassword(form.Password); err != nil {
		return nil, err
	}
	if form.Phone != "" && !domain.ValidPhone(form.Phone) {
		return nil, domain.Invalid("The phone number looks invalid.")
	}
	if form.LicenseNo == "" {
		return nil, domain.Invalid("License number is required.")
	}
	if form.PlateNo == "" {
		return nil, domain.Invalid("Plate number is required.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	// The account is keyed by the invited email, so of two racing
	// acceptances only one create succeeds; the loser stops here.
	user := &domain.User{
		ID:              uuid.NewString(),
		Email:           inv.Email,
		DisplayName:     form.FullName,
		Role:            domain.RoleDriver,
		PasswordHash:    string(hash),
		CurrentSchoolID: inv.SchoolID,
		SchoolIDs:       []string{inv.SchoolID},
		Phone:           form.Phone,
		LicenseNo:       form.LicenseNo,
		PlateNo:         form.PlateNo,
		Status:          domain.StatusActive,
		EmailVerified:   true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			metrics.IncInvitationsRedeemed("consumed")
			return nil, domain.ErrInviteConsumed
		}
		return nil, err
	}

	// Redemption is cleanup at this point: the account exists, so a store
	// hiccup must not strand the new driver without a session.
	if _, err := s.invites.Redeem(ctx, tok, user.ID, now); err != nil {
		metrics.IncInvitationsRedeemed(acceptResult(err))
		s.logger.Warn("failed to mark invitation redeemed",
			slog.String("school_id", inv.SchoolID),
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else {
		metrics.IncInvitationsRedeemed("success")
	}

	s.logger.Info("invitation accepted",
		slog.String("school_id", inv.SchoolID),
		slog.String("user_id", user.ID),
	)

	tokStr, err := s.tokens.GenerateToken(user.ID, user.Email, user.Role, "", s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session: %w", err)
	}
	return &AuthResult{Token: tokStr, User: user}, nil
}

// ListInvitations returns the invitations created by one admin, newest first
func (s *InvitationService) ListInvitations(ctx context.Context, inviterID string) ([]*domain.Invitation, error) {
	all, err := s.invites.All(ctx)
	if err != nil {
		return nil, err
	}

	var out []*domain.Invitation
	for _, inv := range all {
		if inv.InvitedBy == inviterID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func acceptResult(err error) string {
	switch {
	case errors.Is(err, domain.ErrInviteNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInviteExpired):
		return "expired"
	case errors.Is(err, domain.ErrInviteConsumed):
		return "consumed"
	default:
		return "error"
	}
}
