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

const invitePrefix = "invite:"

// RedisInvitationStore implements domain.InvitationStore on Redis. Each
// invitation is a JSON document keyed by its token. Records are kept past
// expiry so an expired link can still render its expiry-specific message;
// the sweeper removes them after the retention window.
type RedisInvitationStore struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRedisInvitationStore creates a new invitation store
func NewRedisInvitationStore(redisClient *redis.Client, logger *slog.Logger) *RedisInvitationStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisInvitationStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Create stores a pending invitation keyed by its token
func (s *RedisInvitationStore) Create(ctx context.Context, inv *domain.Invitation) error {
	data, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invitation: %w", err)
	}

	if err := s.redis.Set(ctx, invitePrefix+inv.Token, string(data), 0); err != nil {
		return fmt.Errorf("failed to store invitation: %w", err)
	}

	s.logger.Debug("invitation created",
		slog.String("school_id", inv.SchoolID),
		slog.Time("expires_at", inv.ExpiresAt),
	)
	return nil
}

// Get retrieves an invitation by token
func (s *RedisInvitationStore) Get(ctx context.Context, token string) (*domain.Invitation, error) {
	data, err := s.redis.Get(ctx, invitePrefix+token)
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, domain.ErrInviteNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	var inv domain.Invitation
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal invitation: %w", err)
	}

	return &inv, nil
}

// Redeem transitions an invitation pending -> accepted as a conditional
// write. The precondition read and the write run under WATCH, so of any
// number of concurrent redemptions exactly one commits; the rest observe a
// changed key and fail.
func (s *RedisInvitationStore) Redeem(ctx context.Context, token, userID string, now time.Time) (*domain.Invitation, error) {
	key := invitePrefix + token
	var redeemed *domain.Invitation

	err := s.redis.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				return domain.ErrInviteNotFound
			}
			return fmt.Errorf("failed to read invitation: %w", err)
		}

		var inv domain.Invitation
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			return fmt.Errorf("failed to unmarshal invitation: %w", err)
		}

		if err := inv.Redeemable(now); err != nil {
			return err
		}

		inv.Status = domain.InviteStatusAccepted
		inv.AcceptedBy = userID
		inv.AcceptedAt = now

		updated, err := json.Marshal(&inv)
		if err != nil {
			return fmt.Errorf("failed to marshal invitation: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, string(updated), 0)
			return nil
		})
		if err != nil {
			return err
		}

		redeemed = &inv
		return nil
	}, key)

	if err != nil {
		// Losing the WATCH race means another redemption committed first.
		if errors.Is(err, goredis.TxFailedErr) {
			return nil, domain.ErrInviteConsumed
		}
		return nil, err
	}

	s.logger.Info("invitation redeemed",
		slog.String("school_id", redeemed.SchoolID),
		slog.String("accepted_by", userID),
	)
	return redeemed, nil
}

// All returns every stored invitation. Volume is bounded by the retention
// sweep, so a full scan is acceptable here.
func (s *RedisInvitationStore) All(ctx context.Context) ([]*domain.Invitation, error) {
	keys, err := s.redis.Keys(ctx, invitePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to list invitation keys: %w", err)
	}

	invs := make([]*domain.Invitation, 0, len(keys))
	for _, key := range keys {
		data, err := s.redis.Get(ctx, key)
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return nil, fmt.Errorf("failed to read invitation %s: %w", key, err)
		}

		var inv domain.Invitation
		if err := json.Unmarshal([]byte(data), &inv); err != nil {
			s.logger.Error("skipping malformed invitation record", slog.String("key", key))
			continue
		}
		invs = append(invs, &inv)
	}

	return invs, nil
}

// Delete removes an invitation record
func (s *RedisInvitationStore) Delete(ctx context.Context, token string) error {
	if err := s.redis.Delete(ctx, invitePrefix+token); err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	return nil
}
