package jobs

import (
	"context"
	"log"
	"time"

	"notebridge/internal/services"
)

const (
	blacklistSweepInterval  = time.Hour
	vectorSweepInterval     = 5 * time.Minute
	oauthStateSweepInterval = 10 * time.Minute
	sweepTimeout            = time.Minute
)

// SweepSchedules carries the optional cron overrides for the cleanup
// jobs. An empty field keeps the default interval.
type SweepSchedules struct {
	Blacklist  string
	Vectors    string
	OAuthState string
}

// registerSweep routes one job to its cron expression when configured,
// the default interval otherwise. A bad expression fails registration,
// and with it startup.
func registerSweep(s *Scheduler, name, expression string, interval time.Duration, task func()) error {
	if expression != "" {
		return s.Cron(name, expression, task)
	}
	return s.Every(name, interval, task)
}

// RegisterSweepers wires the periodic cleanup jobs. oauth may be nil when
// Google sign-in is not configured.
func RegisterSweepers(s *Scheduler, schedules SweepSchedules, blacklist services.TokenBlacklist, vectors *services.VectorStore, oauth *services.OAuthService) error {
	if err := registerSweep(s, "blacklist_sweep", schedules.Blacklist, blacklistSweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		deleted, err := blacklist.Sweep(ctx)
		if err != nil {
			log.Printf("⚠️ [SWEEP] Blacklist sweep failed: %v", err)
			return
		}
		if deleted > 0 {
			log.Printf("🧹 [SWEEP] Removed %d expired blacklist entries", deleted)
		}
	}); err != nil {
		return err
	}

	if err := registerSweep(s, "vector_expiry_sweep", schedules.Vectors, vectorSweepInterval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()
		deleted, err := vectors.CleanupExpired(ctx)
		if err != nil {
			log.Printf("⚠️ [SWEEP] Vector cleanup failed: %v", err)
			return
		}
		if deleted > 0 {
			log.Printf("🧹 [SWEEP] Removed %d expired vector documents", deleted)
		}
	}); err != nil {
		return err
	}

	if oauth != nil {
		if err := registerSweep(s, "oauth_state_sweep", schedules.OAuthState, oauthStateSweepInterval, func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
			defer cancel()
			deleted, err := oauth.SweepExpiredStates(ctx)
			if err != nil {
				log.Printf("⚠️ [SWEEP] OAuth state sweep failed: %v", err)
				return
			}
			if deleted > 0 {
				log.Printf("🧹 [SWEEP] Removed %d expired OAuth states", deleted)
			}
		}); err != nil {
			return err
		}
	}

	return nil
}
