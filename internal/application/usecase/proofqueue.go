package usecase

import (
	"context"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ProofQueue persists reviewer decisions and feeds approvals back into the
// redemption engine.
type ProofQueue struct {
	uow    UnitOfWork
	engine *RedemptionEngine
	clock  domain.Clock
	opts   Options
	post   afterCommit
	logger *zap.Logger
}

func NewProofQueue(uow UnitOfWork, engine *RedemptionEngine, cleanup *CleanupQueue, notifier Notifier, progress Progress, clock domain.Clock, opts Options, logger *zap.Logger) *ProofQueue {
	return &ProofQueue{
		uow:    uow,
		engine: engine,
		clock:  clock,
		opts:   opts.withDefaults(),
		post:   afterCommit{cleanup: cleanup, notifier: notifier, progress: progress, logger: logger},
		logger: logger,
	}
}

const defaultPendingLimit = 50

func (q *ProofQueue) ListPending(ctx context.Context, limit int) ([]domain.ProofValidation, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultPendingLimit
	}
	return q.uow.Reader().Validations().ListPending(ctx, limit)
}

type ReviewInput struct {
	Decision domain.Decision
	Notes    string
	AIResult []byte
}

// MarkReviewed records a decision. Approval resolves the redemption in the same
// transaction; rejection leaves it on the challenge path for another attempt.
// A proof reviewed after its redemption closed is rejected regardless.
func (q *ProofQueue) MarkReviewed(ctx context.Context, validationID uuid.UUID, in ReviewInput) (*domain.ProofValidation, error) {
	if _, err := domain.ParseDecision(string(in.Decision)); err != nil {
		return nil, err
	}
	// the redemption row is locked before the validation row, same as submission
	v0, err := q.uow.Reader().Validations().Get(ctx, validationID)
	if err != nil {
		return nil, err
	}

	var (
		fx effects
		v  *domain.ProofValidation
	)
	err = q.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		now := q.clock.Now()
		r, err := tx.Redemptions().GetForUpdate(ctx, v0.RedemptionID)
		if err != nil {
			return err
		}
		v, err = tx.Validations().GetForUpdate(ctx, validationID)
		if err != nil {
			return err
		}

		decision, notes := in.Decision, in.Notes
		closed := r.Status != domain.StatusChallengeAssigned || r.IsExpiredAt(now)
		if decision == domain.DecisionApproved && closed {
			decision, notes = domain.DecisionRejected, "redemption expired"
		}
		if err := v.Review(decision, notes, in.AIResult, now); err != nil {
			return err
		}
		if err := tx.Validations().Save(ctx, v); err != nil {
			return err
		}

		if decision == domain.DecisionApproved {
			if err := q.engine.resolveWithChallengeTx(ctx, tx, r, now, &fx); err != nil {
				return err
			}
		} else {
			rejected, err := tx.Validations().CountRejected(ctx, r.ID)
			if err != nil {
				return err
			}
			if closed || rejected >= q.opts.MaxProofAttempts {
				if err := enqueueCleanups(ctx, tx, domain.NewCleanups(v.ImagePaths, domain.CleanupRejected, now), &fx); err != nil {
					return err
				}
			}
		}
		fx.notify(Notification{
			UserID: v.UserID,
			Kind:   NotifyProofReviewed,
			Title:  "Proof reviewed",
			Body:   "Your challenge proof was " + string(v.Status) + ".",
			Data: map[string]string{
				"redemption_id": r.ID.String(),
				"validation_id": v.ID.String(),
				"status":        string(v.Status),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	q.logger.Info("proof reviewed",
		zap.String("validation_id", validationID.String()),
		zap.String("status", string(v.Status)))
	q.post.apply(ctx, &fx)
	return v, nil
}
