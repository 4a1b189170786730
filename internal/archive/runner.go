// Package archive schedules cold-storage runs that drain aged event and
// audit rows out of the database into the archive bucket.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

const (
	// lockKey names the distributed lock that keeps concurrent replicas from
	// archiving the same rows twice.
	lockKey = "archive:run"

	// lockTTL bounds how long a crashed replica can hold the lock.
	lockTTL = 15 * time.Minute
)

// Runner drives the blob archiver: it computes the retention cutoff, takes
// the distributed lock when one is configured, and delegates the actual
// row movement to the archiver.
type Runner struct {
	archiver      domain.Archiver
	locks         domain.LockManager
	retentionDays int
	logger        *slog.Logger
}

// NewRunner creates a Runner. locks may be nil, in which case runs proceed
// unguarded (single-replica deployments).
func NewRunner(archiver domain.Archiver, locks domain.LockManager, retentionDays int, logger *slog.Logger) *Runner {
	return &Runner{
		archiver:      archiver,
		locks:         locks,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// Run executes a single archive run. It calculates the cutoff from the
// retention window and archives event history and audit rows older than the
// cutoff. When another replica holds the lock the run is skipped without
// error.
func (r *Runner) Run(ctx context.Context) error {
	if r.locks != nil {
		unlock, err := r.locks.Acquire(ctx, lockKey, lockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			r.logger.InfoContext(ctx, "archive: another replica holds the lock, skipping run")
			return nil
		}
		if err != nil {
			return fmt.Errorf("archive: acquiring lock: %w", err)
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().Add(-time.Duration(r.retentionDays) * 24 * time.Hour)
	r.logger.InfoContext(ctx, "archive: starting run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", r.retentionDays),
	)

	eventsArchived, err := r.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: events before %v: %w", cutoff, err)
	}

	auditArchived, err := r.archiver.ArchiveAudit(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("archive: audit before %v: %w", cutoff, err)
	}

	r.logger.InfoContext(ctx, "archive: run complete",
		slog.Int64("events_archived", eventsArchived),
		slog.Int64("audit_archived", auditArchived),
	)
	return nil
}

// RunCron runs the archiver on a cron schedule until the context is
// cancelled. It supports cron expressions in the standard 5-field format:
// "minute hour day-of-month month day-of-week", evaluated in UTC.
//
// Example: "0 3 1 * *" runs at 3:00 AM on the 1st of every month.
func (r *Runner) RunCron(ctx context.Context, cronExpr string) error {
	r.logger.InfoContext(ctx, "archive: cron started", slog.String("cron", cronExpr))

	for {
		next, err := nextCronTime(cronExpr, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("archive: parsing cron expression %q: %w", cronExpr, err)
		}

		wait := time.Until(next)
		r.logger.InfoContext(ctx, "archive: waiting for next trigger",
			slog.Time("next_run", next),
			slog.Duration("wait", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.InfoContext(ctx, "archive: cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := r.Run(ctx); err != nil {
				r.logger.ErrorContext(ctx, "archive: run failed", slog.String("error", err.Error()))
			}
		}
	}
}
