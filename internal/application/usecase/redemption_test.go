package usecase_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"
	"habitquest/internal/testutil"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	app       *testutil.App
	category  uuid.UUID
	user      domain.User
	habit     domain.Habit
	challenge domain.Challenge
}

func newWorld(t *testing.T, lives int) *world {
	return newWorldOn(t, testutil.NewApp(t), lives)
}

func newWorldOn(t *testing.T, app *testutil.App, lives int) *world {
	cat := uuid.New()
	u := app.AddUser(t, lives)
	return &world{
		app:       app,
		category:  cat,
		user:      u,
		habit:     app.AddHabit(t, u.ID, cat),
		challenge: app.AddChallenge(t, &cat, false, 40),
	}
}

func (w *world) assigned(t *testing.T) domain.PendingRedemption {
	t.Helper()
	r := w.app.Missed(t, w.habit)
	_, err := w.app.Engine.AssignChallenge(context.Background(), w.user.ID, r.ID, w.challenge.ID)
	require.NoError(t, err)
	return r
}

func (w *world) submit(t *testing.T, redemptionID uuid.UUID, salt byte) *domain.ProofValidation {
	t.Helper()
	v, err := w.app.Engine.SubmitProof(context.Background(), w.user.ID, redemptionID, usecase.SubmitProofInput{
		Text:   "done",
		Images: []string{testutil.PNGDataURL(salt)},
	})
	require.NoError(t, err)
	return v
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)

	r := w.app.Missed(t, w.habit)
	assert.Equal(t, domain.StatusPending, r.Status)
	assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), r.FailedDate)
	assert.Equal(t, domain.EndOfDayUTC(testutil.Now), r.ExpiresAt)
	assert.Equal(t, 1, w.app.Notifier.Count(usecase.NotifyRedemptionCreated))

	t.Run("same occurrence returns the existing record", func(t *testing.T) {
		again, err := w.app.Engine.Create(ctx, w.user.ID, w.habit.ID, testutil.Now.AddDate(0, 0, -1))
		require.NoError(t, err)
		assert.Equal(t, r.ID, again.ID)
		assert.Equal(t, 1, w.app.Notifier.Count(usecase.NotifyRedemptionCreated))
	})

	t.Run("second active record for the habit is refused", func(t *testing.T) {
		_, err := w.app.Engine.Create(ctx, w.user.ID, w.habit.ID, testutil.Now.AddDate(0, 0, -2))
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("habit of another user", func(t *testing.T) {
		_, err := w.app.Engine.Create(ctx, uuid.New(), w.habit.ID, testutil.Now)
		assert.ErrorIs(t, err, domain.ErrHabitNotFound)
	})
}

func TestResolveWithLife(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.app.Missed(t, w.habit)

	rec, entry, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRedeemedLife, rec.Status)
	require.NotNil(t, rec.ResolvedAt)
	assert.Equal(t, -1, entry.LivesDelta)
	assert.Equal(t, 2, entry.ResultingLives)
	assert.Equal(t, 2, w.app.User(t, w.user.ID).Lives)

	ledger := w.app.Ledger(t, w.user.ID)
	require.Len(t, ledger, 1)
	assert.Equal(t, domain.ReasonHabitMissed, ledger[0].Reason)
	require.NotNil(t, ledger[0].RedemptionID)
	assert.Equal(t, r.ID, *ledger[0].RedemptionID)

	_, _, err = w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	assert.Len(t, w.app.Ledger(t, w.user.ID), 1)
}

func TestResolveWithLifeRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("after the deadline", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		w.app.Clock.Set(r.ExpiresAt)
		_, _, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
		assert.ErrorIs(t, err, domain.ErrExpired)
		assert.Equal(t, 3, w.app.User(t, w.user.ID).Lives)
	})

	t.Run("someone else's redemption", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		_, _, err := w.app.Engine.ResolveWithLife(ctx, uuid.New(), r.ID)
		assert.ErrorIs(t, err, domain.ErrRedemptionNotFound)
	})

	t.Run("challenge already assigned", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.assigned(t)
		_, _, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
		assert.ErrorIs(t, err, domain.ErrChallengeAlreadyAssigned)
	})
}

func TestConcurrentResolveTakesOneLife(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.app.Missed(t, w.habit)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 2, w.app.User(t, w.user.ID).Lives)
	assert.Len(t, w.app.Ledger(t, w.user.ID), 1)
}

func TestAssignChallenge(t *testing.T) {
	ctx := context.Background()

	t.Run("category challenge", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		rec, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, w.challenge.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusChallengeAssigned, rec.Status)
		require.NotNil(t, rec.ChallengeID)
		assert.Equal(t, w.challenge.ID, *rec.ChallengeID)
		assert.Equal(t, r.ExpiresAt, rec.ExpiresAt, "deadline is not extended")

		_, err = w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, w.challenge.ID)
		assert.ErrorIs(t, err, domain.ErrChallengeAlreadyAssigned)
	})

	t.Run("general challenge fits any habit", func(t *testing.T) {
		w := newWorld(t, 3)
		general := w.app.AddChallenge(t, nil, true, 10)
		r := w.app.Missed(t, w.habit)
		_, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, general.ID)
		assert.NoError(t, err)
	})

	t.Run("other category", func(t *testing.T) {
		w := newWorld(t, 3)
		other := uuid.New()
		foreign := w.app.AddChallenge(t, &other, false, 10)
		r := w.app.Missed(t, w.habit)
		_, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, foreign.ID)
		assert.ErrorIs(t, err, domain.ErrCategoryMismatch)
		assert.Equal(t, domain.StatusPending, w.app.Redemption(t, r.ID).Status)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		_, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, uuid.New())
		assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
	})

	t.Run("after the deadline", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		w.app.Clock.Set(r.ExpiresAt.Add(time.Second))
		_, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, w.challenge.ID)
		assert.ErrorIs(t, err, domain.ErrExpired)
	})

	t.Run("already resolved", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		_, _, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, r.ID)
		require.NoError(t, err)
		_, err = w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, w.challenge.ID)
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	})
}

func TestSubmitProofValidation(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.assigned(t)

	tests := []struct {
		name string
		in   usecase.SubmitProofInput
	}{
		{"no images", usecase.SubmitProofInput{Text: "done"}},
		{"three images", usecase.SubmitProofInput{Images: []string{testutil.PNGDataURL(1), testutil.PNGDataURL(2), testutil.PNGDataURL(3)}}},
		{"blank image", usecase.SubmitProofInput{Images: []string{"  "}}},
		{"not a data url", usecase.SubmitProofInput{Images: []string{"https://example.com/a.png"}}},
		{"declared type does not match", usecase.SubmitProofInput{Images: []string{"data:image/jpeg;base64,aGVsbG8="}}},
		{"text too long", usecase.SubmitProofInput{Text: string(make([]byte, 2001)) + "x", Images: []string{testutil.PNGDataURL(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, tt.in)
			assert.ErrorIs(t, err, domain.ErrInvalidProof)
		})
	}
	assert.Empty(t, w.app.EvidenceFiles(t))
}

func TestSubmitProofStateChecks(t *testing.T) {
	ctx := context.Background()
	in := usecase.SubmitProofInput{Images: []string{testutil.PNGDataURL(1)}}

	t.Run("no challenge assigned", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.app.Missed(t, w.habit)
		_, err := w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, in)
		assert.ErrorIs(t, err, domain.ErrChallengeNotAssigned)
	})

	t.Run("after the deadline", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.assigned(t)
		w.app.Clock.Set(r.ExpiresAt)
		_, err := w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, in)
		assert.ErrorIs(t, err, domain.ErrExpired)
		assert.Empty(t, w.app.EvidenceFiles(t))
	})

	t.Run("proof already waiting", func(t *testing.T) {
		w := newWorld(t, 3)
		r := w.assigned(t)
		w.submit(t, r.ID, 1)
		_, err := w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, in)
		assert.ErrorIs(t, err, domain.ErrValidationPending)
		assert.Len(t, w.app.EvidenceFiles(t), 1)
	})

	t.Run("storage failure", func(t *testing.T) {
		app := testutil.NewAppWith(t, afero.NewReadOnlyFs(afero.NewMemMapFs()))
		cat := uuid.New()
		u := app.AddUser(t, 3)
		h := app.AddHabit(t, u.ID, cat)
		ch := app.AddChallenge(t, &cat, false, 5)
		r := app.Missed(t, h)
		_, err := app.Engine.AssignChallenge(ctx, u.ID, r.ID, ch.ID)
		require.NoError(t, err)

		_, err = app.Engine.SubmitProof(ctx, u.ID, r.ID, in)
		assert.ErrorIs(t, err, domain.ErrStorage)
		latest, err := app.Store.Reader().Validations().LatestForRedemption(ctx, r.ID)
		require.NoError(t, err)
		assert.Nil(t, latest)
	})
}

func TestConcurrentSubmitKeepsOnePending(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.assigned(t)

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, usecase.SubmitProofInput{
				Images: []string{testutil.PNGDataURL(byte(i))},
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrValidationPending)
	}
	assert.Equal(t, 1, ok)
	pending, err := w.app.Queue.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	// losers' files are removed again
	assert.Len(t, w.app.EvidenceFiles(t), 1)
}

// racingFs runs beforeWrite once, as the first evidence directory is created.
type racingFs struct {
	*flakyFs
	beforeWrite func()
}

func (f *racingFs) MkdirAll(p string, perm os.FileMode) error {
	if hook := f.beforeWrite; hook != nil {
		f.beforeWrite = nil
		hook()
	}
	return f.flakyFs.MkdirAll(p, perm)
}

func TestSubmitRollbackQueuesUndeletableEvidence(t *testing.T) {
	ctx := context.Background()
	fs := &racingFs{flakyFs: &flakyFs{Fs: afero.NewMemMapFs()}}
	w := newWorldOn(t, testutil.NewAppWith(t, fs), 3)
	r := w.assigned(t)

	// a competing submission commits between the unlocked check and the transaction
	var winner *domain.ProofValidation
	fs.beforeWrite = func() {
		winner = w.submit(t, r.ID, 1)
		fs.broken.Store(true)
	}
	_, err := w.app.Engine.SubmitProof(ctx, w.user.ID, r.ID, usecase.SubmitProofInput{
		Images: []string{testutil.PNGDataURL(2)},
	})
	require.ErrorIs(t, err, domain.ErrValidationPending)
	assert.NotErrorIs(t, err, domain.ErrStorage)
	require.NotNil(t, winner)

	files := w.app.EvidenceFiles(t)
	require.Len(t, files, 2, "loser's file could not be removed")
	var orphan string
	for _, f := range files {
		if f != winner.ImagePaths[0] {
			orphan = f
		}
	}
	require.NotEmpty(t, orphan)

	queued, err := w.app.Store.Reader().Cleanups().Due(ctx, w.app.Clock.Now().Add(time.Hour), 0)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, domain.CleanupRollback, queued[0].Reason)
	assert.Equal(t, orphan, queued[0].Path)

	fs.broken.Store(false)
	res, err := w.app.Cleanup.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.DrainResult{Deleted: 1}, res)
	assert.Equal(t, []string(winner.ImagePaths), w.app.EvidenceFiles(t))
}

func TestAutoExpire(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	assigned := w.assigned(t)

	otherHabit := w.app.AddHabit(t, w.user.ID, w.category)
	stillOpen, err := w.app.Engine.Create(ctx, w.user.ID, otherHabit.ID, testutil.Now)
	require.NoError(t, err)

	res, err := w.app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.SweepResult{}, res, "nothing is overdue yet")

	w.app.Clock.Set(assigned.ExpiresAt.Add(5 * time.Minute))
	res, err = w.app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Expired)

	assert.Equal(t, domain.StatusExpired, w.app.Redemption(t, assigned.ID).Status)
	assert.Equal(t, domain.StatusExpired, w.app.Redemption(t, stillOpen.ID).Status)
	assert.Equal(t, 1, w.app.User(t, w.user.ID).Lives)
	for _, e := range w.app.Ledger(t, w.user.ID) {
		assert.Equal(t, domain.ReasonPendingExpired, e.Reason)
		assert.Equal(t, -1, e.LivesDelta)
	}

	res, err = w.app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Equal(t, 1, w.app.User(t, w.user.ID).Lives)
	assert.Len(t, w.app.Ledger(t, w.user.ID), 2)
}

func TestAutoExpirePagesThroughEveryOverdueRecord(t *testing.T) {
	ctx := context.Background()
	opts := usecase.DefaultOptions()
	opts.SweepBatchSize = 2
	app := testutil.NewAppWithOptions(t, afero.NewMemMapFs(), opts)
	cat := uuid.New()

	var recs []domain.PendingRedemption
	for i := 0; i < 5; i++ {
		u := app.AddUser(t, 3)
		recs = append(recs, app.Missed(t, app.AddHabit(t, u.ID, cat)))
	}

	app.Clock.Set(recs[0].ExpiresAt)
	res, err := app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, usecase.SweepResult{Expired: 5}, res)

	for _, r := range recs {
		assert.Equal(t, domain.StatusExpired, app.Redemption(t, r.ID).Status)
		assert.Equal(t, 2, app.User(t, r.UserID).Lives)
	}
	left, err := app.Store.Reader().Redemptions().ListOverdue(ctx, app.Clock.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestAutoExpireClosesPendingProof(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	r := w.assigned(t)
	v := w.submit(t, r.ID, 7)
	require.Len(t, w.app.EvidenceFiles(t), 1)

	w.app.Clock.Set(r.ExpiresAt)
	res, err := w.app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Expired)

	got, err := w.app.Store.Reader().Validations().Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationRejected, got.Status)
	assert.Equal(t, "redemption expired", got.ReviewerNotes)
	assert.Empty(t, w.app.EvidenceFiles(t))
}

func TestLastLifeCancelsOtherRedemptions(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 1)
	second := w.app.AddHabit(t, w.user.ID, w.category)
	paused := w.app.AddHabit(t, w.user.ID, w.category, func(h *domain.Habit) {
		h.Disable(domain.DisabledManual)
	})

	first := w.app.Missed(t, w.habit)
	other := w.app.Missed(t, second)
	_, err := w.app.Engine.AssignChallenge(ctx, w.user.ID, other.ID, w.challenge.ID)
	require.NoError(t, err)
	v := w.submit(t, other.ID, 3)

	_, entry, err := w.app.Engine.ResolveWithLife(ctx, w.user.ID, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.ResultingLives)

	assert.Equal(t, domain.StatusRedeemedLife, w.app.Redemption(t, first.ID).Status)
	assert.Equal(t, domain.StatusExpired, w.app.Redemption(t, other.ID).Status)
	assert.Len(t, w.app.Ledger(t, w.user.ID), 1, "cancelled redemptions cost no further lives")

	cancelled, err := w.app.Store.Reader().Validations().Get(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationRejected, cancelled.Status)
	assert.Empty(t, w.app.EvidenceFiles(t))

	for _, id := range []uuid.UUID{w.habit.ID, second.ID} {
		h := w.app.Habit(t, id)
		assert.False(t, h.IsActive)
		assert.Equal(t, domain.DisabledNoLives, h.DisabledReason)
	}
	assert.Equal(t, domain.DisabledManual, w.app.Habit(t, paused.ID).DisabledReason)
	assert.Equal(t, 1, w.app.Notifier.Count(usecase.NotifyUserDied))

	// the sweep has nothing left to take
	w.app.Clock.Set(first.ExpiresAt.Add(time.Hour))
	res, err := w.app.Engine.AutoExpire(ctx)
	require.NoError(t, err)
	assert.Zero(t, res.Expired)
	assert.Equal(t, 0, w.app.User(t, w.user.ID).Lives)
}

func TestListActive(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t, 3)
	general := w.app.AddChallenge(t, nil, true, 10)
	other := uuid.New()
	w.app.AddChallenge(t, &other, false, 10)

	r := w.app.Missed(t, w.habit)
	list, err := w.app.Engine.ListActive(ctx, w.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	item := list[0]
	assert.Equal(t, r.ID, item.ID)
	assert.Equal(t, w.habit.Name, item.HabitName)
	assert.Equal(t, int64(r.ExpiresAt.Sub(testutil.Now)/time.Second), item.SecondsRemaining)

	var offered []uuid.UUID
	for _, c := range item.AvailableChallenges {
		offered = append(offered, c.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{w.challenge.ID, general.ID}, offered)

	_, err = w.app.Engine.AssignChallenge(ctx, w.user.ID, r.ID, general.ID)
	require.NoError(t, err)
	w.submit(t, r.ID, 1)
	list, err = w.app.Engine.ListActive(ctx, w.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].AssignedChallenge)
	assert.Equal(t, general.ID, list[0].AssignedChallenge.ID)
	require.NotNil(t, list[0].LatestValidation)
	assert.Equal(t, domain.ValidationPendingReview, list[0].LatestValidation.Status)
	assert.Empty(t, list[0].AvailableChallenges)

	none, err := w.app.Engine.ListActive(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, none)
}
