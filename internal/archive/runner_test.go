package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

type fakeArchiver struct {
	eventCutoffs []time.Time
	auditCutoffs []time.Time
	eventErr     error
}

func (a *fakeArchiver) ArchiveEvents(_ context.Context, before time.Time) (int64, error) {
	if a.eventErr != nil {
		return 0, a.eventErr
	}
	a.eventCutoffs = append(a.eventCutoffs, before)
	return 7, nil
}

func (a *fakeArchiver) ArchiveAudit(_ context.Context, before time.Time) (int64, error) {
	a.auditCutoffs = append(a.auditCutoffs, before)
	return 3, nil
}

type fakeLocks struct {
	held       bool
	acquireErr error
	acquired   int
	released   int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	if l.held {
		return nil, domain.ErrLockHeld
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunArchivesBothKindsWithRetentionCutoff(t *testing.T) {
	arch := &fakeArchiver{}
	r := NewRunner(arch, nil, 30, testLogger())

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, arch.eventCutoffs, 1)
	require.Len(t, arch.auditCutoffs, 1)

	want := time.Now().UTC().Add(-30 * 24 * time.Hour)
	assert.WithinDuration(t, want, arch.eventCutoffs[0], time.Minute)
	assert.Equal(t, arch.eventCutoffs[0], arch.auditCutoffs[0], "both kinds share one cutoff")
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	arch := &fakeArchiver{}
	locks := &fakeLocks{held: true}
	r := NewRunner(arch, locks, 90, testLogger())

	require.NoError(t, r.Run(context.Background()), "a held lock is not an error")
	assert.Empty(t, arch.eventCutoffs, "no archiving happens without the lock")
}

func TestRunReleasesLock(t *testing.T) {
	locks := &fakeLocks{}
	r := NewRunner(&fakeArchiver{}, locks, 90, testLogger())

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, locks.acquired)
	assert.Equal(t, 1, locks.released)
}

func TestRunPropagatesLockFailure(t *testing.T) {
	locks := &fakeLocks{acquireErr: errors.New("redis down")}
	r := NewRunner(&fakeArchiver{}, locks, 90, testLogger())

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "acquiring lock")
}

func TestRunStopsOnEventArchiveFailure(t *testing.T) {
	arch := &fakeArchiver{eventErr: errors.New("bucket gone")}
	r := NewRunner(arch, nil, 90, testLogger())

	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, arch.auditCutoffs, "audit archiving does not run after an event failure")
}

func TestRunCronStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRunner(&fakeArchiver{}, nil, 90, testLogger())

	done := make(chan error, 1)
	go func() { done <- r.RunCron(ctx, "0 3 1 * *") }()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("RunCron did not stop after cancellation")
	}
}

func TestRunCronRejectsBadExpression(t *testing.T) {
	r := NewRunner(&fakeArchiver{}, nil, 90, testLogger())
	err := r.RunCron(context.Background(), "every tuesday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cron expression")
}

func TestNextCronTime(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		after time.Time
		want  time.Time
	}{
		{
			name:  "monthly at 3am",
			expr:  "0 3 1 * *",
			after: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
		},
		{
			name:  "hourly on the half hour",
			expr:  "30 * * * *",
			after: time.Date(2026, 3, 15, 10, 45, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 15, 11, 30, 0, 0, time.UTC),
		},
		{
			name:  "comma list picks the nearest value",
			expr:  "0,30 * * * *",
			after: time.Date(2026, 3, 15, 10, 10, 0, 0, time.UTC),
			want:  time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC),
		},
		{
			name:  "same minute rolls forward",
			expr:  "0 3 1 * *",
			after: time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC),
			want:  time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := nextCronTime(tt.expr, tt.after)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextCronTimeRejectsMalformedFields(t *testing.T) {
	_, err := nextCronTime("*/5 * * * *", time.Now())
	require.Error(t, err, "step syntax is not supported")

	_, err = nextCronTime("0 3 1 *", time.Now())
	require.Error(t, err, "four fields is not a cron expression")
}
