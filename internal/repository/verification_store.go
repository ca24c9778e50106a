package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/infrastructure/redis"
)

const signupPrefix = "signup:"

// RedisVerificationStore implements domain.VerificationStore on Redis,
// keyed by the normalized candidate email. Re-submitting a registration
// overwrites the previous pending record with a fresh code.
type RedisVerificationStore struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRedisVerificationStore creates a new verification-code store
func NewRedisVerificationStore(redisClient *redis.Client, logger *slog.Logger) *RedisVerificationStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisVerificationStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Put stores (or replaces) a pending registration record
func (s *RedisVerificationStore) Put(ctx context.Context, rec *domain.VerificationCode) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal verification record: %w", err)
	}

	if err := s.redis.Set(ctx, signupPrefix+rec.Email, string(data), 0); err != nil {
		return fmt.Errorf("failed to store verification record: %w", err)
	}

	s.logger.Debug("verification code stored", slog.Time("expires_at", rec.ExpiresAt))
	return nil
}

// Get retrieves the pending registration for an email
func (s *RedisVerificationStore) Get(ctx context.Context, email string) (*domain.VerificationCode, error) {
	data, err := s.redis.Get(ctx, signupPrefix+email)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrCodeNotFound
		}
		return nil, fmt.Errorf("failed to get verification record: %w", err)
	}

	var rec domain.VerificationCode
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification record: %w", err)
	}

	return &rec, nil
}

// Redeem consumes a verification code: the record must exist, the code must
// match exactly, the expiry must not have passed, and the record must not be
// verified yet. On success the verified flag flips and the stored password
// hash is cleared, in one conditional write. Each failed precondition maps
// to its own error so callers can explain what went wrong.
func (s *RedisVerificationStore) Redeem(ctx context.Context, email, code string, now time.Time) (*domain.VerificationCode, error) {
	key := signupPrefix + email
	var redeemed *domain.VerificationCode

	err := s.redis.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return domain.ErrCodeNotFound
			}
			return fmt.Errorf("failed to read verification record: %w", err)
		}

		var rec domain.VerificationCode
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			return fmt.Errorf("failed to unmarshal verification record: %w", err)
		}

		if rec.Verified {
			return domain.ErrCodeConsumed
		}
		if rec.Expired(now) {
			return domain.ErrCodeExpired
		}
		if rec.Code != code {
			return domain.ErrCodeMismatch
		}

		consumed := rec
		consumed.Verified = true
		consumed.PasswordHash = "" // do not retain credentials past redemption

		updated, err := json.Marshal(&consumed)
		if err != nil {
			return fmt.Errorf("failed to marshal verification record: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, string(updated), 0)
			return nil
		})
		if err != nil {
			return err
		}

		// Return the pre-consumption record: the caller still needs the
		// password hash to create the credential.
		redeemed = &rec
		return nil
	}, key)

	if err != nil {
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, domain.ErrCodeConsumed
		}
		return nil, err
	}

	return redeemed, nil
}

// All returns every pending registration record
func (s *RedisVerificationStore) All(ctx context.Context) ([]*domain.VerificationCode, error) {
	keys, err := s.redis.Keys(ctx, signupPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list verification keys: %w", err)
	}

	recs := make([]*domain.VerificationCode, 0, len(keys))
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read verification record %s: %w", key, err)
		}

		var rec domain.VerificationCode
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			s.logger.Error("skipping malformed verification record", slog.String("key", key))
			continue
		}
		recs = append(recs, &rec)
	}

	return recs, nil
}

// Delete removes a pending registration record
func (s *RedisVerificationStore) Delete(ctx context.Context, email string) error {
	if err := s.redis.Delete(ctx, signupPrefix+email); err != nil {
		return fmt.Errorf("failed to delete verification record: %w", err)
	}
	return nil
}
