package domain

import (
	"context"
	"errors"
	"time"
)

// Invitation statuses. Transitions only pending -> accepted, exactly once.
const (
	InviteStatusPending  = "pending"
	InviteStatusAccepted = "accepted"
)

// State errors surfaced to callers. Expiry is deliberately distinct from
// "no longer valid": an expired invite needs a fresh one from the sender,
// while a consumed or unknown token means a stale or incorrect link.
var (
	ErrInviteNotFound = errors.New("invite not found")
	ErrInviteExpired  = errors.New("this invite has expired")
	ErrInviteConsumed = errors.New("this invite is no longer valid")

	ErrCodeNotFound = errors.New("no pending registration found for this email")
	ErrCodeMismatch = errors.New("invalid verification code")
	ErrCodeExpired  = errors.New("verification code has expired")
	ErrCodeConsumed = errors.New("verification code already used")

	ErrEmailTaken   = errors.New("email already registered")
	ErrUserNotFound = errors.New("user not found")
	ErrNotFound     = errors.New("not found")
)

// Invitation is a single-use, time-bounded authorization to create a driver
// account for one school. The token doubles as the record key.
type Invitation struct {
	Token      string    `json:"token"`
	Email      string    `json:"email"`
	Role       string    `json:"role"` // always "driver"
	SchoolID   string    `json:"school_id"`
	Status     string    `json:"status"`
	InvitedBy  string    `json:"invited_by"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	AcceptedBy string    `json:"accepted_by,omitempty"`
	AcceptedAt time.Time `json:"acceptedAt,omitempty"`
}

// Expired reports whether the invitation's expiry has passed.
func (i *Invitation) Expired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// Redeemable returns nil when the invitation can still be consumed, or the
// state error describing why it cannot.
func (i *Invitation) Redeemable(now time.Time) error {
	if i.Status != InviteStatusPending {
		return ErrInviteConsumed
	}
	if i.Expired(now) {
		return ErrInviteExpired
	}
	return nil
}

// InvitationStore defines token-keyed access to invitations. Redeem must be a
// conditional update: of any number of concurrent redemptions of the same
// pending token, exactly one succeeds.
type InvitationStore interface {
	Create(ctx context.Context, inv *Invitation) error
	Get(ctx context.Context, token string) (*Invitation, error)
	Redeem(ctx context.Context, token, userID string, now time.Time) (*Invitation, error)
	All(ctx context.Context) ([]*Invitation, error)
	Delete(ctx context.Context, token string) error
}

// VerificationCode holds a pending self-registration. No credential exists
// until the code is redeemed; this record is the only evidence of the signup.
// PasswordHash is cleared when the code is consumed.
type VerificationCode struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	PasswordHash string    `json:"passwordHash,omitempty"`
	Code         string    `json:"verificationCode"`
	Verified     bool      `json:"verified"`
	CreatedAt    time.Time `json:"createdAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Expired reports whether the code's expiry has passed.
func (v *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(v.ExpiresAt)
}

// VerificationStore defines email-keyed access to pending registrations.
// Redeem flips verified false -> true exactly once and clears the stored
// password hash in the same conditional write.
type VerificationStore interface {
	Put(ctx context.Context, rec *VerificationCode) error
	Get(ctx context.Context, email string) (*VerificationCode, error)
	Redeem(ctx context.Context, email, code string, now time.Time) (*VerificationCode, error)
	All(ctx context.Context) ([]*VerificationCode, error)
	Delete(ctx context.Context, email string) error
}
