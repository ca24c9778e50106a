package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/infrastructure/redis"
)

func newCodeStore(t *testing.T) *RedisVerificationStore {
	t.Helper()
	mr := miniredis.RunT(t)
	return NewRedisVerificationStore(redis.NewClientFromAddr(mr.Addr()), nil)
}

func pendingCode(email, code string, expiresAt time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		Email:        email,
		DisplayName:  "Ana",
		PasswordHash: "$2a$10$fakehash",
		Code:         code,
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    expiresAt,
	}
}

func TestRedeemClearsPassword(t *testing.T) {
	store := newCodeStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Put(ctx, pendingCode("a@b.com", "123456", now.Add(15*time.Minute))); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	rec, err := store.Redeem(ctx, "a@b.com", "123456", now)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	// The caller still needs the hash to create the credential.
	if rec.PasswordHash == "" {
		t.Fatalf("expected redeemed record to carry the password hash")
	}

	stored, err := store.Get(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !stored.Verified {
		t.Fatalf("expected verified flag set")
	}
	if stored.PasswordHash != "" {
		t.Fatalf("expected stored password hash cleared, got %q", stored.PasswordHash)
	}
}

func TestRedeemSingleUse(t *testing.T) {
	store := newCodeStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Put(ctx, pendingCode("a@b.com", "123456", now.Add(15*time.Minute))); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	if _, err := store.Redeem(ctx, "a@b.com", "123456", now); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if _, err := store.Redeem(ctx, "a@b.com", "123456", now); !errors.Is(err, domain.ErrCodeConsumed) {
		t.Fatalf("expected ErrCodeConsumed on replay, got %v", err)
	}
}

func TestRedeemPreconditions(t *testing.T) {
	store := newCodeStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if _, err := store.Redeem(ctx, "missing@b.com", "123456", now); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}

	if err := store.Put(ctx, pendingCode("a@b.com", "123456", now.Add(15*time.Minute))); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := store.Redeem(ctx, "a@b.com", "999999", now); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	if err := store.Put(ctx, pendingCode("old@b.com", "123456", now.Add(-time.Minute))); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if _, err := store.Redeem(ctx, "old@b.com", "123456", now); !errors.Is(err, domain.ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestResubmitReplacesRecord(t *testing.T) {
	store := newCodeStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.Put(ctx, pendingCode("a@b.com", "111111", now.Add(15*time.Minute))); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Put(ctx, pendingCode("a@b.com", "222222", now.Add(15*time.Minute))); err != nil {
		t.Fatalf("second put failed: %v", err)
	}

	if _, err := store.Redeem(ctx, "a@b.com", "111111", now); !errors.Is(err, domain.ErrCodeMismatch) {
		t.Fatalf("expected old code to be rejected, got %v", err)
	}
	if _, err := store.Redeem(ctx, "a@b.com", "222222", now); err != nil {
		t.Fatalf("expected new code to redeem, got %v", err)
	}
}
