package usecase

import (
	"context"

	"habitquest/internal/domain"
)

// SeedData is reference and demo data loaded at start-up.
type SeedData struct {
	Users          []domain.User
	Habits         []domain.Habit
	HabitLogs      []domain.HabitLog
	Challenges     []domain.Challenge
	LifeChallenges []domain.LifeChallenge
}

type Seeder interface {
	Seed(ctx context.Context, data SeedData) error
}
