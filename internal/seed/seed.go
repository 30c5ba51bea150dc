// Package seed holds the reference catalog loaded at start-up and an optional
// demo account. IDs are derived from names so reseeding is a no-op.
package seed

import (
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
)

var namespace = uuid.MustParse("8f7c2e52-4a3e-4c1b-9d1e-6a0f3b7d2c10")

func id(name string) uuid.UUID { return uuid.NewSHA1(namespace, []byte(name)) }

var (
	CategoryFitness  = id("category:fitness")
	CategoryLearning = id("category:learning")
	CategoryWellness = id("category:wellness")

	DemoUserID = id("user:demo")
)

func categoryChallenge(cat uuid.UUID, title, desc, difficulty string, xp int) domain.Challenge {
	c := cat
	return domain.Challenge{
		ID:          id("challenge:" + title),
		CategoryID:  &c,
		Title:       title,
		Description: desc,
		Difficulty:  difficulty,
		XPReward:    xp,
	}
}

func generalChallenge(title, desc, difficulty string, xp int) domain.Challenge {
	return domain.Challenge{
		ID:          id("challenge:" + title),
		IsGeneral:   true,
		Title:       title,
		Description: desc,
		Difficulty:  difficulty,
		XPReward:    xp,
	}
}

// Catalog returns the challenges and life challenges every deployment needs.
func Catalog(now time.Time) usecase.SeedData {
	challenges := []domain.Challenge{
		categoryChallenge(CategoryFitness, "100 push-ups", "Do 100 push-ups today, split into as many sets as you need.", "medium", 40),
		categoryChallenge(CategoryFitness, "5 km walk", "Walk at least 5 km and show the tracker screen.", "easy", 25),
		categoryChallenge(CategoryLearning, "Teach it back", "Write a one-page summary of something you studied this week.", "medium", 35),
		categoryChallenge(CategoryLearning, "Two chapters", "Read two chapters of a non-fiction book.", "hard", 50),
		categoryChallenge(CategoryWellness, "Screen-free evening", "No screens after 8 pm. Photograph what you did instead.", "medium", 30),
		generalChallenge("Cold shower", "Take a cold shower of at least two minutes.", "easy", 20),
		generalChallenge("Clean slate", "Tidy your workspace completely and photograph the result.", "easy", 20),
		generalChallenge("Early riser", "Get up at 6 am and photograph the clock.", "hard", 45),
	}
	for i := range challenges {
		challenges[i].CreatedAt = now
	}
	lifeChallenges := []domain.LifeChallenge{
		{
			ID:          id("life:week-streak"),
			Title:       "Seven in a row",
			Description: "Keep any habit going for seven days.",
			Rule:        domain.RuleStreakDays,
			Threshold:   7,
			LivesReward: 1,
		},
		{
			ID:          id("life:busy-week"),
			Title:       "Busy week",
			Description: "Complete 15 habit check-ins within the last seven days.",
			Rule:        domain.RuleWeeklyCompletions,
			Threshold:   15,
			LivesReward: 1,
		},
		{
			ID:          id("life:perfect-days"),
			Title:       "Flawless",
			Description: "Have five perfect days within the last seven.",
			Rule:        domain.RulePerfectDays,
			Threshold:   5,
			LivesReward: 1,
		},
	}
	for i := range lifeChallenges {
		lifeChallenges[i].CreatedAt = now
	}
	return usecase.SeedData{Challenges: challenges, LifeChallenges: lifeChallenges}
}

// Demo adds a user with two daily habits on top of the catalog.
func Demo(now time.Time) usecase.SeedData {
	data := Catalog(now)
	created := now.AddDate(0, 0, -14)
	data.Users = []domain.User{{
		ID:              DemoUserID,
		Username:        "demo",
		Lives:           domain.DefaultMaxLives,
		MaxLives:        domain.DefaultMaxLives,
		DisciplineScore: domain.DefaultDisciplineScore,
		CreatedAt:       created,
		UpdatedAt:       created,
	}}
	data.Habits = []domain.Habit{
		{
			ID:         id("habit:demo:workout"),
			UserID:     DemoUserID,
			CategoryID: CategoryFitness,
			Name:       "Morning workout",
			IsActive:   true,
			CreatedAt:  created,
			UpdatedAt:  created,
		},
		{
			ID:         id("habit:demo:reading"),
			UserID:     DemoUserID,
			CategoryID: CategoryLearning,
			Name:       "Read 20 pages",
			Weekdays:   domain.WeekdaysOf(time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday),
			IsActive:   true,
			CreatedAt:  created,
			UpdatedAt:  created,
		},
	}
	return data
}
