package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	CleanupMaxAttempts = 10
	CleanupBackoffStep = 10 * time.Minute
)

type CleanupReason string

const (
	CleanupRollback   CleanupReason = "rollback"
	CleanupSuperseded CleanupReason = "superseded"
	CleanupRejected   CleanupReason = "rejected"
	CleanupCancelled  CleanupReason = "cancelled"
)

// EvidenceCleanup is a durable intent to delete one evidence file.
type EvidenceCleanup struct {
	ID            uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Path          string        `gorm:"type:text;not null" json:"path"`
	Reason        CleanupReason `gorm:"type:varchar(16);not null" json:"reason"`
	Attempts      int           `gorm:"not null;default:0" json:"attempts"`
	LastError     string        `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time     `gorm:"not null;index" json:"next_attempt_at"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (EvidenceCleanup) TableName() string { return "evidence_cleanups" }

func NewCleanups(paths []string, reason CleanupReason, now time.Time) []EvidenceCleanup {
	out := make([]EvidenceCleanup, 0, len(paths))
	for _, p := range paths {
		out = append(out, EvidenceCleanup{
			ID:            uuid.New(),
			Path:          p,
			Reason:        reason,
			NextAttemptAt: now,
			CreatedAt:     now,
		})
	}
	return out
}

// Failed records a failed attempt and reports whether the intent should be dropped.
func (c *EvidenceCleanup) Failed(err error, now time.Time) (giveUp bool) {
	c.Attempts++
	c.LastError = err.Error()
	c.NextAttemptAt = now.Add(time.Duration(c.Attempts) * CleanupBackoffStep)
	return c.Attempts >= CleanupMaxAttempts
}
