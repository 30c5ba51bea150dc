package usecase

import (
	"context"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
)

// UnitOfWork runs fn inside one database transaction. Lock and write methods are
// only reachable through Tx, so anything that mutates state is transactional by type.
type UnitOfWork interface {
	Do(ctx context.Context, fn func(tx Tx) error) error
	Reader() Reader
}

type Tx interface {
	Redemptions() RedemptionRepository
	Validations() ValidationRepository
	Ledger() LedgerRepository
	Users() UserRepository
	Habits() HabitRepository
	LifeChallenges() LifeChallengeRepository
	Cleanups() CleanupRepository
}

// Reader serves queries that need no locks. It must not be used inside Do.
type Reader interface {
	Redemptions() RedemptionReader
	Validations() ValidationReader
	Ledger() LedgerReader
	Users() UserReader
	Habits() HabitReader
	LifeChallenges() LifeChallengeReader
	Cleanups() CleanupReader
}

type RedemptionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error)
	FindByOccurrence(ctx context.Context, habitID uuid.UUID, failedDate time.Time) (*domain.PendingRedemption, error)
	// ActiveForHabit returns nil, nil when the habit has no active record.
	ActiveForHabit(ctx context.Context, habitID uuid.UUID) (*domain.PendingRedemption, error)
	ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	ListExpiringUnnotified(ctx context.Context, now, until time.Time) ([]domain.PendingRedemption, error)
}

type RedemptionRepository interface {
	RedemptionReader
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error)
	ListActiveByUserForUpdate(ctx context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error)
	Create(ctx context.Context, r *domain.PendingRedemption) error
	Save(ctx context.Context, r *domain.PendingRedemption) error
	// MarkNotified flips the warning flag once and reports whether this call did it.
	MarkNotified(ctx context.Context, id uuid.UUID) (bool, error)
}

type ValidationReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.ProofValidation, error)
	// LatestForRedemption returns nil, nil when nothing was submitted yet.
	LatestForRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error)
	CountRejected(ctx context.Context, redemptionID uuid.UUID) (int, error)
	HasPending(ctx context.Context, redemptionID uuid.UUID) (bool, error)
	ListPending(ctx context.Context, limit int) ([]domain.ProofValidation, error)
}

type ValidationRepository interface {
	ValidationReader
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProofValidation, error)
	// FindPendingForRedemption locks and returns the pending_review entry, nil if none.
	FindPendingForRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error)
	Create(ctx context.Context, v *domain.ProofValidation) error
	Save(ctx context.Context, v *domain.ProofValidation) error
}

type LedgerReader interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error)
}

type LedgerRepository interface {
	LedgerReader
	Append(ctx context.Context, e *domain.LedgerEntry) error
}

type UserReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.User, error)
	ListAlive(ctx context.Context) ([]domain.User, error)
}

type UserRepository interface {
	UserReader
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error)
	Save(ctx context.Context, u *domain.User) error
}

type HabitReader interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Habit, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Habit, error)
	CompletedOn(ctx context.Context, habitID uuid.UUID, date time.Time) (bool, error)
	ListLogs(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.HabitLog, error)
}

type HabitRepository interface {
	HabitReader
	DisableActive(ctx context.Context, userID uuid.UUID, reason domain.DisabledReason) (int64, error)
	// ReactivateNoLives touches only habits disabled for lack of lives.
	ReactivateNoLives(ctx context.Context, userID uuid.UUID, resetStreak bool) (int64, error)
}

type LifeChallengeReader interface {
	List(ctx context.Context) ([]domain.LifeChallenge, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.LifeChallenge, error)
	ClaimedBy(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type LifeChallengeRepository interface {
	LifeChallengeReader
	HasClaim(ctx context.Context, userID, lifeChallengeID uuid.UUID) (bool, error)
	Claim(ctx context.Context, c *domain.LifeChallengeClaim) error
}

type CleanupReader interface {
	Due(ctx context.Context, now time.Time, limit int) ([]domain.EvidenceCleanup, error)
}

type CleanupRepository interface {
	CleanupReader
	Enqueue(ctx context.Context, items []domain.EvidenceCleanup) error
	Save(ctx context.Context, c *domain.EvidenceCleanup) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChallengeCatalog is the read-only challenge collaborator.
type ChallengeCatalog interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Challenge, error)
	// ListForCategory includes general challenges.
	ListForCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Challenge, error)
	ListGeneral(ctx context.Context) ([]domain.Challenge, error)
}

// EvidenceStorage persists proof images outside the database.
type EvidenceStorage interface {
	Store(ctx context.Context, redemptionID uuid.UUID, dataURLs []string) ([]string, error)
	Delete(ctx context.Context, paths ...string) error
}

// Progress is the XP/streak collaborator. Calls are best-effort.
type Progress interface {
	GrantXP(ctx context.Context, userID uuid.UUID, amount int, reason string) error
	HabitMissed(ctx context.Context, userID, habitID uuid.UUID, date time.Time) error
}

type NotificationKind string

const (
	NotifyRedemptionCreated  NotificationKind = "redemption_created"
	NotifyRedemptionExpiring NotificationKind = "redemption_expiring"
	NotifyProofReviewed      NotificationKind = "proof_reviewed"
	NotifyUserDied           NotificationKind = "user_died"
	NotifyUserRevived        NotificationKind = "user_revived"
)

type Notification struct {
	UserID uuid.UUID         `json:"user_id"`
	Kind   NotificationKind  `json:"kind"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Notifier delivers messages fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
