package domain_test

import (
	"errors"
	"testing"
	"time"

	"habitquest/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyLives(t *testing.T) {
	tests := []struct {
		name      string
		lives     int
		target    int
		wantLives int
		wantDelta int
	}{
		{"lose one", 3, 2, 2, -1},
		{"floor at zero", 0, -1, 0, 0},
		{"cap at max", 2, 5, 3, 1},
		{"unchanged", 2, 2, 2, 0},
		{"revive", 0, 3, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &domain.User{Lives: tt.lives, MaxLives: 3}
			assert.Equal(t, tt.wantDelta, u.ApplyLives(tt.target))
			assert.Equal(t, tt.wantLives, u.Lives)
		})
	}
}

func TestWeekdays(t *testing.T) {
	assert.True(t, domain.EveryDay.Includes(time.Sunday))
	assert.True(t, domain.EveryDay.Includes(time.Saturday))

	weekdays := domain.WeekdaysOf(time.Monday, time.Wednesday)
	assert.True(t, weekdays.Includes(time.Monday))
	assert.True(t, weekdays.Includes(time.Wednesday))
	assert.False(t, weekdays.Includes(time.Tuesday))
	assert.False(t, weekdays.Includes(time.Sunday))
}

func TestHabitRequiredOn(t *testing.T) {
	// 2026-03-04 is a Wednesday
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	h := domain.Habit{IsActive: true, CreatedAt: day.Add(-48 * time.Hour)}
	assert.True(t, h.RequiredOn(day))

	h.CreatedAt = day.Add(20 * time.Hour)
	assert.True(t, h.RequiredOn(day), "created during the day still counts")

	h.CreatedAt = day.Add(25 * time.Hour)
	assert.False(t, h.RequiredOn(day))

	h.CreatedAt = day.Add(-48 * time.Hour)
	h.Weekdays = domain.WeekdaysOf(time.Monday)
	assert.False(t, h.RequiredOn(day))

	h.Weekdays = domain.EveryDay
	h.Disable(domain.DisabledManual)
	assert.False(t, h.RequiredOn(day))
	h.Reactivate()
	assert.True(t, h.RequiredOn(day))
	assert.Equal(t, domain.DisabledNone, h.DisabledReason)
}

func TestLifeRules(t *testing.T) {
	stats := domain.ActivityStats{BestStreak: 7, WeeklyCompletions: 10, PerfectDays: 2}
	tests := []struct {
		rule      string
		threshold int
		want      bool
	}{
		{"streak_days", 7, true},
		{"streak_days", 8, false},
		{"weekly_completions", 10, true},
		{"weekly_completions", 11, false},
		{"perfect_days", 2, true},
		{"perfect_days", 3, false},
	}
	for _, tt := range tests {
		rule, err := domain.ParseLifeRule(tt.rule)
		require.NoError(t, err)
		ok, err := rule.Evaluate(stats, tt.threshold)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ok, "%s >= %d", tt.rule, tt.threshold)
	}

	_, err := domain.ParseLifeRule("moon_phase")
	assert.ErrorIs(t, err, domain.ErrUnknownLifeRule)
	_, err = domain.LifeRule("moon_phase").Evaluate(stats, 1)
	assert.ErrorIs(t, err, domain.ErrUnknownLifeRule)
}

func TestProofReview(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	v := &domain.ProofValidation{Status: domain.ValidationPendingReview}
	require.NoError(t, v.Review(domain.DecisionApproved, "looks good", []byte(`{"score":0.9}`), now))
	assert.Equal(t, domain.ValidationApproved, v.Status)
	assert.Equal(t, "looks good", v.ReviewerNotes)
	assert.JSONEq(t, `{"score":0.9}`, string(v.AIResult))

	err := v.Review(domain.DecisionRejected, "", nil, now)
	assert.ErrorIs(t, err, domain.ErrValidationReviewed)
	assert.Equal(t, domain.ValidationApproved, v.Status)

	_, err = domain.ParseDecision("maybe")
	assert.ErrorIs(t, err, domain.ErrInvalidDecision)

	assert.Equal(t, domain.ProofBoth, domain.ProofTypeFor("did it", 1))
	assert.Equal(t, domain.ProofImage, domain.ProofTypeFor("", 2))
}

func TestCleanupBackoff(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	items := domain.NewCleanups([]string{"a.png", "b.png"}, domain.CleanupRejected, now)
	require.Len(t, items, 2)
	c := items[0]
	assert.Equal(t, now, c.NextAttemptAt)

	for i := 1; i < domain.CleanupMaxAttempts; i++ {
		assert.False(t, c.Failed(errors.New("busy"), now))
		assert.Equal(t, now.Add(time.Duration(i)*domain.CleanupBackoffStep), c.NextAttemptAt)
	}
	assert.True(t, c.Failed(errors.New("busy"), now))
	assert.Equal(t, "busy", c.LastError)
}
