package domain

import (
	"time"

	"github.com/google/uuid"
)

type RedemptionStatus string

const (
	StatusPending           RedemptionStatus = "pending"
	StatusChallengeAssigned RedemptionStatus = "challenge_assigned"
	StatusRedeemedLife      RedemptionStatus = "redeemed_life"
	StatusRedeemedChallenge RedemptionStatus = "redeemed_challenge"
	StatusExpired           RedemptionStatus = "expired"
)

// ActiveStatuses block the habit from new progress.
var ActiveStatuses = []RedemptionStatus{StatusPending, StatusChallengeAssigned}

var transitions = map[RedemptionStatus][]RedemptionStatus{
	StatusPending:           {StatusChallengeAssigned, StatusRedeemedLife, StatusExpired},
	StatusChallengeAssigned: {StatusRedeemedChallenge, StatusExpired},
}

func (s RedemptionStatus) IsActive() bool {
	return s == StatusPending || s == StatusChallengeAssigned
}

func (s RedemptionStatus) IsTerminal() bool {
	switch s {
	case StatusRedeemedLife, StatusRedeemedChallenge, StatusExpired:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step.
// Nothing ever returns to pending.
func (s RedemptionStatus) CanTransitionTo(next RedemptionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PendingRedemption is one missed habit occurrence awaiting a decision.
type PendingRedemption struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	HabitID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_redemption_occurrence,priority:1;uniqueIndex:idx_redemption_active,where:status IN ('pending','challenge_assigned')" json:"habit_id"`

	FailedDate time.Time        `gorm:"type:date;not null;uniqueIndex:idx_redemption_occurrence,priority:2" json:"failed_date"`
	ExpiresAt  time.Time        `gorm:"not null;index" json:"expires_at"`
	Status     RedemptionStatus `gorm:"type:varchar(32);not null;index;default:'pending'" json:"status"`

	NotifiedExpiring bool       `gorm:"not null;default:false" json:"notified_expiring"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ChallengeID      *uuid.UUID `gorm:"type:uuid" json:"challenge_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PendingRedemption) TableName() string { return "pending_redemptions" }

// IsExpiredAt reports whether the decision window has closed at now.
func (r *PendingRedemption) IsExpiredAt(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Transition moves the record forward, stamping ResolvedAt on terminal states.
func (r *PendingRedemption) Transition(next RedemptionStatus, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		if r.Status == StatusChallengeAssigned && next == StatusRedeemedLife {
			return ErrChallengeAlreadyAssigned
		}
		if r.Status == StatusPending && next == StatusRedeemedChallenge {
			return ErrChallengeNotAssigned
		}
		return ErrAlreadyResolved.Withf("redemption is %s", r.Status)
	}
	r.Status = next
	if next.IsTerminal() {
		t := now
		r.ResolvedAt = &t
	}
	r.UpdatedAt = now
	return nil
}

// EndOfDayUTC is the last millisecond of t's UTC calendar day.
func EndOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, int(999*time.Millisecond), time.UTC)
}

// DateOf truncates t to midnight UTC of its calendar day in loc.
func DateOf(t time.Time, loc *time.Location) time.Time {
	l := t.In(loc)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, time.UTC)
}
