package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedUser(t *testing.T, s *Store, lives int) domain.User {
	u := domain.User{ID: uuid.New(), Username: "u", Lives: lives, MaxLives: domain.DefaultMaxLives}
	require.NoError(t, s.Seed(context.Background(), usecase.SeedData{Users: []domain.User{u}}))
	return u
}

func TestDoRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s, 3)
	boom := errors.New("boom")

	err := s.Do(ctx, func(tx usecase.Tx) error {
		got, err := tx.Users().GetForUpdate(ctx, u.ID)
		require.NoError(t, err)
		got.Lives = 0
		require.NoError(t, tx.Users().Save(ctx, got))
		require.NoError(t, tx.Ledger().Append(ctx, &domain.LedgerEntry{ID: uuid.New(), UserID: u.ID}))

		// readers outside the transaction still see committed data
		seen, err := s.Reader().Users().Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, seen.Lives)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.Reader().Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Lives)
	ledger, err := s.Reader().Ledger().ListByUser(ctx, u.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, ledger)
}

func TestDoCommits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	u := seedUser(t, s, 3)

	require.NoError(t, s.Do(ctx, func(tx usecase.Tx) error {
		got, err := tx.Users().GetForUpdate(ctx, u.ID)
		if err != nil {
			return err
		}
		got.Lives = 1
		return tx.Users().Save(ctx, got)
	}))
	got, err := s.Reader().Users().Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Lives)
}

func TestDoHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := NewStore().Do(ctx, func(usecase.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestRedemptionUniqueness(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	day := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	habitID := uuid.New()
	create := func(status domain.RedemptionStatus, failed int) error {
		return s.Do(ctx, func(tx usecase.Tx) error {
			return tx.Redemptions().Create(ctx, &domain.PendingRedemption{
				ID:         uuid.New(),
				HabitID:    habitID,
				FailedDate: day.AddDate(0, 0, failed),
				Status:     status,
			})
		})
	}
	require.NoError(t, create(domain.StatusPending, 0))
	assert.ErrorIs(t, create(domain.StatusRedeemedLife, 0), domain.ErrConflict, "same occurrence")
	assert.ErrorIs(t, create(domain.StatusPending, -1), domain.ErrConflict, "second active record")
	assert.NoError(t, create(domain.StatusExpired, -2))
}
