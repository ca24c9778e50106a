package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ridewatch/onboarding/internal/domain"
	"github.com/ridewatch/onboarding/internal/observability/metrics"
	"github.com/ridewatch/onboarding/internal/reliability/retry"
)

// Sweeper periodically removes invitation and verification records that
// passed their retention window. Records survive plain expiry so a late
// click can still see the expiry-specific message; only well after expiry
// does the sweeper delete them.
type Sweeper struct {
	invites   domain.InvitationStore
	codes     domain.VerificationStore
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	retryCfg  *retry.Config
	now       func() time.Time
}

// NewSweeper creates a retention sweeper
func NewSweeper(
	invites domain.InvitationStore,
	codes domain.VerificationStore,
	logger *slog.Logger,
	interval, retention time.Duration,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}

	return &Sweeper{
		invites:   invites,
		codes:     codes,
		logger:    logger,
		interval:  interval,
		retention: retention,
		retryCfg:  retry.DefaultConfig(),
		now:       time.Now,
	}
}

// SetClock overrides the time source, used by tests
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

// Start runs the sweep loop until the context is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("retention sweeper started",
		slog.Duration("interval", s.interval),
		slog.Duration("retention", s.retention),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over both stores. Exposed so tests and operators can
// trigger it directly.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now().UTC()
	cutoff := now.Add(-s.retention)

	s.sweepInvitations(ctx, now, cutoff)
	s.sweepCodes(ctx, cutoff)
}

func (s *Sweeper) sweepInvitations(ctx context.Context, now, cutoff time.Time) {
	invs, err := s.invites.All(ctx)
	if err != nil {
		s.logger.Error("failed to list invitations for sweep", slog.String("error", err.Error()))
		return
	}

	pending := 0
	for _, inv := range invs {
		if inv.Status == domain.InviteStatusPending && !inv.Expired(now) {
			pending++
		}

		if !s.sweepable(inv.Status, inv.ExpiresAt, inv.AcceptedAt, cutoff) {
			continue
		}

		tok := inv.Token
		_, err := retry.Do(ctx, s.retryCfg, s.logger, "sweep_invitation", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.invites.Delete(ctx, tok)
		})
		if err != nil {
			s.logger.Error("failed to sweep invitation", slog.String("error", err.Error()))
			metrics.ObserveSweep("invitation", "error")
			continue
		}
		metrics.ObserveSweep("invitation", "success")
	}

	metrics.SetPendingInvitations(pending)
}

func (s *Sweeper) sweepCodes(ctx context.Context, cutoff time.Time) {
	recs, err := s.codes.All(ctx)
	if err != nil {
		s.logger.Error("failed to list verification records for sweep", slog.String("error", err.Error()))
		return
	}

	for _, rec := range recs {
		if rec.ExpiresAt.After(cutoff) {
			continue
		}

		emailKey := rec.Email
		_, err := retry.Do(ctx, s.retryCfg, s.logger, "sweep_verification", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.codes.Delete(ctx, emailKey)
		})
		if err != nil {
			s.logger.Error("failed to sweep verification record", slog.String("error", err.Error()))
			metrics.ObserveSweep("verification", "error")
			continue
		}
		metrics.ObserveSweep("verification", "success")
	}
}

// sweepable reports whether a record passed the retention cutoff. Accepted
// invitations are measured from acceptance, everything else from expiry.
func (s *Sweeper) sweepable(status string, expiresAt, acceptedAt time.Time, cutoff time.Time) bool {
	ref := expiresAt
	if status == domain.InviteStatusAccepted && !acceptedAt.IsZero() {
		ref = acceptedAt
	}
	return !ref.After(cutoff)
}
