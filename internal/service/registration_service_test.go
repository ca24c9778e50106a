package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/infrastructure/redis"
	"github.com/ridewatch/onboarding/internal/repository"
	"github.com/ridewatch/onboarding/internal/security/auth"
)

type regFixture struct {
	svc    *RegistrationService
	users  *fakeUserRepo
	codes  domain.VerificationStore
	mailer *fakeMailer
}

func newRegFixture(t *testing.T) *regFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	users := newFakeUserRepo()
	codes := repository.NewRedisVerificationStore(redis.NewClientFromAddr(mr.Addr()), nil)
	mailer := &fakeMailer{}
	tokens := auth.NewTokenManager("test-secret", "ridewatch")

	svc := NewRegistrationService(users, codes, mailer, tokens, 15*time.Minute, time.Hour, nil)
	return &regFixture{svc: svc, users: users, codes: codes, mailer: mailer}
}

func TestRegistrationHappyPath(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	if err := f.svc.SubmitRegistration(ctx, "Owner@Example.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	// No account exists yet, only the staged record.
	if _, err := f.users.GetByEmail(ctx, "owner@example.com"); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected no account before confirmation, got %v", err)
	}

	code := f.mailer.lastCode()
	if len(code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", code)
	}

	result, err := f.svc.ConfirmRegistration(ctx, "owner@example.com", code)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a session token")
	}
	if result.User.Role != domain.RoleBusCompany {
		t.Fatalf("expected bus_company role, got %q", result.User.Role)
	}
	if !result.User.EmailVerified {
		t.Fatal("expected the account to be marked verified")
	}

	// The emailed password must work for sign-in.
	if _, err := f.svc.SignIn(ctx, "owner@example.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in after confirmation failed: %v", err)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		email    string
		display  string
		password string
	}{
		{"bad email", "not-an-email", "Ana", "hunter2hunter2"},
		{"empty display name", "a@b.com", "", "hunter2hunter2"},
		{"short password", "a@b.com", "Ana", "short"},
		{"leading space password", "a@b.com", "Ana", " hunter2hunter2"},
		{"trailing space password", "a@b.com", "Ana", "hunter2hunter2 "},
	}

	for _, tc := range cases {
		err := f.svc.SubmitRegistration(ctx, tc.email, tc.display, tc.password)
		if !domain.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", tc.name, err)
		}
	}

	if len(f.mailer.codes) != 0 {
		t.Fatalf("invalid submissions must not send mail, sent %d", len(f.mailer.codes))
	}
}

func TestSubmitPasswordEdgeWhitespaceMessage(t *testing.T) {
	f := newRegFixture(t)

	err := f.svc.SubmitRegistration(context.Background(), "a@b.com", "Ana", " hunter2hunter2")
	if err == nil || err.Error() != "Password cannot start or end with spaces. Please retype it." {
		t.Fatalf("expected corrective whitespace message, got %v", err)
	}
}

func TestSubmitRejectsExistingAccount(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	f.users.Create(ctx, &domain.User{ID: "u1", Email: "a@b.com", Role: domain.RoleBusCompany})

	err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2")
	if !errors.Is(err, domain.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestConfirmSingleUse(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	if err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	code := f.mailer.lastCode()

	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", code); err != nil {
		t.Fatalf("first confirm failed: %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", code); !errors.Is(err, domain.ErrCodeConsumed) {
		t.Fatalf("expected ErrCodeConsumed on replay, got %v", err)
	}
}

func TestConfirmWrongCode(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	if err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	wrong := "000000"
	if wrong == f.mailer.lastCode() {
		wrong = "000001"
	}
	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", wrong); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	// The real code still works after a failed guess.
	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", f.mailer.lastCode()); err != nil {
		t.Fatalf("confirm with correct code failed: %v", err)
	}
}

func TestConfirmExpiredCode(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	if err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	f.svc.SetClock(func() time.Time { return time.Now().Add(16 * time.Minute) })

	_, err := f.svc.ConfirmRegistration(ctx, "a@b.com", f.mailer.lastCode())
	if !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestResubmitInvalidatesOldCode(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	if err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}
	oldCode := f.mailer.lastCode()

	if err := f.svc.SubmitRegistration(ctx, "a@b.com", "Ana", "hunter2hunter2"); err != nil {
		t.Fatalf("second submit failed: %v", err)
	}
	newCode := f.mailer.lastCode()
	if oldCode == newCode {
		t.Skip("codes collided, cannot distinguish old from new")
	}

	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", oldCode); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected old code rejected, got %v", err)
	}
	if _, err := f.svc.ConfirmRegistration(ctx, "a@b.com", newCode); err != nil {
		t.Fatalf("expected new code accepted, got %v", err)
	}
}

func TestSignInGates(t *testing.T) {
	f := newRegFixture(t)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("hunter2hunter2"), bcrypt.MinCost)
	f.users.Create(ctx, &domain.User{
		ID: "u1", Email: "a@b.com", Role: domain.RoleBusCompany,
		PasswordHash: string(hash), Status: domain.StatusActive, EmailVerified: true,
	})
	f.users.Create(ctx, &domain.User{
		ID: "u2", Email: "unverified@b.com", Role: domain.RoleBusCompany,
		PasswordHash: string(hash), Status: domain.StatusActive, EmailVerified: false,
	})
	f.users.Create(ctx, &domain.User{
		ID: "u3", Email: "disabled@b.com", Role: domain.RoleDriver,
		PasswordHash: string(hash), Status: domain.StatusInactive, EmailVerified: true,
	})

	if _, err := f.svc.SignIn(ctx, "a@b.com", "hunter2hunter2"); err != nil {
		t.Fatalf("sign-in failed: %v", err)
	}
	if _, err := f.svc.SignIn(ctx, "a@b.com", "wrongpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := f.svc.SignIn(ctx, "nobody@b.com", "hunter2hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := f.svc.SignIn(ctx, "unverified@b.com", "hunter2hunter2"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("expected ErrEmailNotVerified, got %v", err)
	}
	if _, err := f.svc.SignIn(ctx, "disabled@b.com", "hunter2hunter2"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
}
