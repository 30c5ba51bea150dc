package usecase_test

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"
	"habitquest/internal/testutil"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyEvaluator(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	yesterday := w.app.Clock.Now().AddDate(0, 0, -1)

	streaky := w.app.AddHabit(t, w.user.ID, w.category, func(h *domain.Habit) { h.CurrentStreak = 5 })
	done := w.app.AddHabit(t, w.user.ID, w.category)
	w.app.AddLog(t, done, yesterday, true)
	w.app.AddHabit(t, w.user.ID, w.category, func(h *domain.Habit) { h.Weekdays = domain.WeekdaysOf(time.Monday) })
	w.app.AddHabit(t, w.user.ID, w.category, func(h *domain.Habit) { h.Disable(domain.DisabledManual) })
	w.app.AddHabit(t, w.user.ID, w.category, func(h *domain.Habit) { h.CreatedAt = w.app.Clock.Now() })

	dead := w.app.AddUser(t, 0)
	w.app.AddHabit(t, dead.ID, w.category)

	res, err := w.app.Evaluator.Evaluate(ctx, yesterday)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Users)
	assert.Equal(t, 2, res.Created, "the fixture habit and the streaky one")
	assert.Zero(t, res.Skipped)
	assert.Zero(t, res.Failed)

	assert.Zero(t, w.app.Habit(t, streaky.ID).CurrentStreak)
	active, err := w.app.Engine.ListActive(ctx, w.user.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
	assert.Equal(t, 2, w.app.Notifier.Count(usecase.NotifyRedemptionCreated))

	again, err := w.app.Evaluator.Evaluate(ctx, yesterday)
	require.NoError(t, err)
	assert.Zero(t, again.Created)
	assert.Equal(t, 2, again.Skipped)
}

func TestDailyEvaluatorSkipsHabitWithOpenRedemption(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	now := w.app.Clock.Now()

	_, err := w.app.Engine.Create(ctx, w.user.ID, w.habit.ID, now.AddDate(0, 0, -2))
	require.NoError(t, err)

	res, err := w.app.Evaluator.Evaluate(ctx, now.AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 1, res.Skipped)
}

func TestExpiryNotifierWarnsOnce(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.app.Missed(t, w.habit)

	other := w.app.AddHabit(t, w.user.ID, w.category)
	resolved := w.app.Missed(t, other)
	_, _, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, resolved.ID)
	require.NoError(t, err)

	sent, err := w.app.Warner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent, "deadline is still far away")

	w.app.Clock.Set(time.Date(2026, 3, 4, 21, 30, 0, 0, time.UTC))
	sent, err = w.app.Warner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, w.app.Redemption(t, r.ID).NotifiedExpiring)

	sent, err = w.app.Warner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, w.app.Notifier.Count(usecase.NotifyRedemptionExpiring))
}

// flakyFs fails every Remove while broken is set.
type flakyFs struct {
	afero.Fs
	broken atomic.Bool
}

func (f *flakyFs) Remove(name string) error {
	if f.broken.Load() {
		return &os.PathError{Op: "remove", Path: name, Err: errors.New("device busy")}
	}
	return f.Fs.Remove(name)
}

func TestCleanupQueueRetriesThenDrops(t *testing.T) {
	ctx := context.Background()
	fs := &flakyFs{Fs: afero.NewMemMapFs()}
	app := testutil.NewAppWith(t, fs)
	require.NoError(t, afero.WriteFile(fs, testutil.EvidenceRoot+"/r1/a.png", []byte("x"), 0o644))
	fs.broken.Store(true)

	require.NoError(t, app.Cleanup.Enqueue(ctx, []string{"r1/a.png"}, domain.CleanupRejected))

	res, err := app.Cleanup.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.DrainResult{Retried: 1}, res)

	res, err = app.Cleanup.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.DrainResult{}, res, "backing off")

	queued, err := app.Store.Reader().Cleanups().Due(ctx, testutil.Now.Add(24*time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, 1, queued[0].Attempts)
	assert.Equal(t, testutil.Now.Add(domain.CleanupBackoffStep), queued[0].NextAttemptAt)
	assert.Contains(t, queued[0].LastError, "device busy")

	for i := 2; i < domain.CleanupMaxAttempts; i++ {
		app.Clock.Advance(2 * time.Hour)
		res, err = app.Cleanup.Drain(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, res.Retried)
	}
	app.Clock.Advance(2 * time.Hour)
	res, err = app.Cleanup.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.DrainResult{Dropped: 1}, res)

	queued, err = app.Store.Reader().Cleanups().Due(ctx, app.Clock.Now().Add(24*time.Hour), 0)
	require.NoError(t, err)
	assert.Empty(t, queued)
	assert.Len(t, app.EvidenceFiles(t), 1, "abandoned file is left behind")
}

func TestCleanupQueueDeletes(t *testing.T) {
	ctx := context.Background()
	app := testutil.NewApp(t)
	require.NoError(t, afero.WriteFile(app.FS, testutil.EvidenceRoot+"/r1/a.png", []byte("x"), 0o644))

	require.NoError(t, app.Cleanup.Enqueue(ctx, []string{"r1/a.png", "r1/already-gone.png"}, domain.CleanupCancelled))
	res, err := app.Cleanup.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.DrainResult{Deleted: 2}, res)
	assert.Empty(t, app.EvidenceFiles(t))

	require.NoError(t, app.Cleanup.Enqueue(ctx, nil, domain.CleanupCancelled))
}
