package usecase

import (
	"context"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type xpGrant struct {
	userID uuid.UUID
	amount int
	reason string
}

// effects collects work that must only happen after a transaction commits.
type effects struct {
	cleanups      []domain.EvidenceCleanup
	notifications []Notification
	grants        []xpGrant
}

func (fx *effects) reset() { *fx = effects{} }

func (fx *effects) notify(n Notification) { fx.notifications = append(fx.notifications, n) }

// afterCommit runs collected effects. Nothing here can fail the caller.
type afterCommit struct {
	cleanup  *CleanupQueue
	notifier Notifier
	progress Progress
	logger   *zap.Logger
}

func (a afterCommit) apply(ctx context.Context, fx *effects) {
	if len(fx.cleanups) > 0 && a.cleanup != nil {
		a.cleanup.Flush(ctx, fx.cleanups)
	}
	for _, g := range fx.grants {
		if a.progress == nil || g.amount <= 0 {
			continue
		}
		if err := a.progress.GrantXP(ctx, g.userID, g.amount, g.reason); err != nil {
			a.logger.Warn("xp grant failed",
				zap.String("user_id", g.userID.String()),
				zap.Int("amount", g.amount),
				zap.Error(err))
		}
	}
	for _, n := range fx.notifications {
		if a.notifier == nil {
			continue
		}
		if err := a.notifier.Notify(ctx, n); err != nil {
			a.logger.Warn("notification failed",
				zap.String("user_id", n.UserID.String()),
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
		}
	}
}

// applyLives moves the user's lives to target and writes the one ledger entry
// that describes the change.
func applyLives(ctx context.Context, tx Tx, u *domain.User, target int, reason domain.LedgerReason, refs domain.LedgerRefs, now time.Time) (*domain.LedgerEntry, error) {
	delta := u.ApplyLives(target)
	u.UpdatedAt = now
	if err := tx.Users().Save(ctx, u); err != nil {
		return nil, err
	}
	entry := &domain.LedgerEntry{
		ID:              uuid.New(),
		UserID:          u.ID,
		LivesDelta:      delta,
		ResultingLives:  u.Lives,
		Reason:          reason,
		RedemptionID:    refs.RedemptionID,
		HabitID:         refs.HabitID,
		ChallengeID:     refs.ChallengeID,
		LifeChallengeID: refs.LifeChallengeID,
		CreatedAt:       now,
	}
	if err := tx.Ledger().Append(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// closeValidations rejects the pending proof of a redemption that is being
// closed and schedules deletion of evidence nobody will look at again.
func closeValidations(ctx context.Context, tx Tx, redemptionID uuid.UUID, note string, maxAttempts int, now time.Time, fx *effects) error {
	pending, err := tx.Validations().FindPendingForRedemption(ctx, redemptionID)
	if err != nil {
		return err
	}
	var intents []domain.EvidenceCleanup
	if pending != nil {
		if err := pending.Review(domain.DecisionRejected, note, nil, now); err != nil {
			return err
		}
		if err := tx.Validations().Save(ctx, pending); err != nil {
			return err
		}
		intents = append(intents, domain.NewCleanups(pending.ImagePaths, domain.CleanupCancelled, now)...)
	} else {
		latest, err := tx.Validations().LatestForRedemption(ctx, redemptionID)
		if err != nil {
			return err
		}
		if latest != nil && latest.Status == domain.ValidationRejected {
			rejected, err := tx.Validations().CountRejected(ctx, redemptionID)
			if err != nil {
				return err
			}
			// at the cap the evidence was already queued when it was reviewed
			if rejected < maxAttempts {
				intents = append(intents, domain.NewCleanups(latest.ImagePaths, domain.CleanupCancelled, now)...)
			}
		}
	}
	return enqueueCleanups(ctx, tx, intents, fx)
}

func enqueueCleanups(ctx context.Context, tx Tx, intents []domain.EvidenceCleanup, fx *effects) error {
	if len(intents) == 0 {
		return nil
	}
	if err := tx.Cleanups().Enqueue(ctx, intents); err != nil {
		return err
	}
	fx.cleanups = append(fx.cleanups, intents...)
	return nil
}

func ownedBy(r *domain.PendingRedemption, userID uuid.UUID) error {
	if r.UserID != userID {
		return domain.ErrRedemptionNotFound
	}
	return nil
}
