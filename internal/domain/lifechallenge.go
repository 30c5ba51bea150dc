package domain

import (
	"time"

	"github.com/google/uuid"
)

// LifeRule identifies how a life challenge is verified.
type LifeRule string

const (
	RuleStreakDays        LifeRule = "streak_days"
	RuleWeeklyCompletions LifeRule = "weekly_completions"
	RulePerfectDays       LifeRule = "perfect_days"
)

// ActivityStats is the input every rule predicate is evaluated against.
type ActivityStats struct {
	BestStreak        int
	WeeklyCompletions int
	PerfectDays       int
}

type RulePredicate func(stats ActivityStats, threshold int) bool

// RuleRegistry is the closed set of verifiable rules.
var RuleRegistry = map[LifeRule]RulePredicate{
	RuleStreakDays: func(s ActivityStats, n int) bool {
		return s.BestStreak >= n
	},
	RuleWeeklyCompletions: func(s ActivityStats, n int) bool {
		return s.WeeklyCompletions >= n
	},
	RulePerfectDays: func(s ActivityStats, n int) bool {
		return s.PerfectDays >= n
	},
}

func ParseLifeRule(s string) (LifeRule, error) {
	r := LifeRule(s)
	if _, ok := RuleRegistry[r]; !ok {
		return "", ErrUnknownLifeRule.Withf("unknown life challenge rule %q", s)
	}
	return r, nil
}

// Evaluate runs the rule's predicate. Unknown rules are an error, never false.
func (r LifeRule) Evaluate(stats ActivityStats, threshold int) (bool, error) {
	pred, ok := RuleRegistry[r]
	if !ok {
		return false, ErrUnknownLifeRule.Withf("unknown life challenge rule %q", string(r))
	}
	return pred(stats, threshold), nil
}

type LifeChallenge struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"type:varchar(160);not null" json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	Rule        LifeRule  `gorm:"type:varchar(32);not null" json:"rule"`
	Threshold   int       `gorm:"not null" json:"threshold"`
	LivesReward int       `gorm:"not null;default:1" json:"lives_reward"`
	CreatedAt   time.Time `json:"created_at"`
}

func (LifeChallenge) TableName() string { return "life_challenges" }

type LifeChallengeClaim struct {
	UserID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	LifeChallengeID uuid.UUID `gorm:"type:uuid;primaryKey" json:"life_challenge_id"`
	ClaimedAt       time.Time `gorm:"not null" json:"claimed_at"`
}

func (LifeChallengeClaim) TableName() string { return "life_challenge_claims" }
