package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/opencouncil/cityreport/internal/identity/store"
	"github.com/opencouncil/cityreport/pkg/clockx"
)

// DefaultHousekeepingInterval is how often expired challenges are purged.
const DefaultHousekeepingInterval = 10 * time.Minute

// HousekeepingService periodically deletes expired OTP challenges. Expired
// rows are already invisible to verification, so this is purely hygiene to
// keep the table small.
type HousekeepingService struct {
	Store store.Store
	Clock clockx.Clock
	Log   *slog.Logger

	Interval time.Duration
}

// Run blocks until ctx is cancelled, purging on the configured interval. An
// initial purge runs immediately so restarts do not postpone cleanup.
func (s *HousekeepingService) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}

	s.purge(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purge(ctx)
		}
	}
}

func (s *HousekeepingService) purge(ctx context.Context) {
	n, err := s.Store.OTPChallenges().DeleteExpired(ctx, s.Clock.Now())
	if err != nil {
		s.Log.Error("otp challenge purge failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.Log.Debug("purged expired otp challenges", slog.Int64("count", n))
	}
}
