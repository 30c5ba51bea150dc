package domain

import (
	"time"

	"github.com/google/uuid"
)

type LedgerReason string

const (
	ReasonHabitMissed           LedgerReason = "habit_missed"
	ReasonChallengeCompleted    LedgerReason = "challenge_completed"
	ReasonUserRevived           LedgerReason = "user_revived"
	ReasonRevivalReset          LedgerReason = "revival_reset"
	ReasonRevivalChallenge      LedgerReason = "revival_challenge"
	ReasonPendingExpired        LedgerReason = "pending_expired"
	ReasonLifeChallengeRedeemed LedgerReason = "life_challenge_redeemed"
)

// LedgerEntry is an immutable record of a change to a user's lives.
type LedgerEntry struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;index:idx_ledger_user_time,priority:1" json:"user_id"`
	LivesDelta     int          `gorm:"not null" json:"lives_delta"`
	ResultingLives int          `gorm:"not null" json:"resulting_lives"`
	Reason         LedgerReason `gorm:"type:varchar(40);not null;index" json:"reason"`

	RedemptionID    *uuid.UUID `gorm:"type:uuid;index" json:"redemption_id,omitempty"`
	HabitID         *uuid.UUID `gorm:"type:uuid" json:"habit_id,omitempty"`
	ChallengeID     *uuid.UUID `gorm:"type:uuid" json:"challenge_id,omitempty"`
	LifeChallengeID *uuid.UUID `gorm:"type:uuid" json:"life_challenge_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index:idx_ledger_user_time,priority:2" json:"created_at"`
}

func (LedgerEntry) TableName() string { return "life_ledger" }

// LedgerRefs are the optional related entities of an entry.
type LedgerRefs struct {
	RedemptionID    *uuid.UUID
	HabitID         *uuid.UUID
	ChallengeID     *uuid.UUID
	LifeChallengeID *uuid.UUID
}

func RefsForRedemption(r *PendingRedemption) LedgerRefs {
	id, habit := r.ID, r.HabitID
	refs := LedgerRefs{RedemptionID: &id, HabitID: &habit}
	if r.ChallengeID != nil {
		c := *r.ChallengeID
		refs.ChallengeID = &c
	}
	return refs
}
