package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RedemptionEngine struct {
	uow      UnitOfWork
	catalog  ChallengeCatalog
	evidence EvidenceStorage
	cleanup  *CleanupQueue
	revival  *RevivalEngine
	clock    domain.Clock
	opts     Options
	post     afterCommit
	logger   *zap.Logger
}

func NewRedemptionEngine(
	uow UnitOfWork,
	catalog ChallengeCatalog,
	evidence EvidenceStorage,
	cleanup *CleanupQueue,
	revival *RevivalEngine,
	progress Progress,
	notifier Notifier,
	clock domain.Clock,
	opts Options,
	logger *zap.Logger,
) *RedemptionEngine {
	return &RedemptionEngine{
		uow:      uow,
		catalog:  catalog,
		evidence: evidence,
		cleanup:  cleanup,
		revival:  revival,
		clock:    clock,
		opts:     opts.withDefaults(),
		post:     afterCommit{cleanup: cleanup, notifier: notifier, progress: progress, logger: logger},
		logger:   logger,
	}
}

// Create opens a redemption for a missed occurrence. The decision window ends
// with the current UTC day. Calling it again for the same occurrence returns
// the existing record.
func (e *RedemptionEngine) Create(ctx context.Context, userID, habitID uuid.UUID, failedDate time.Time) (*domain.PendingRedemption, error) {
	var (
		fx  effects
		rec *domain.PendingRedemption
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		now := e.clock.Now()
		habit, err := tx.Habits().Get(ctx, habitID)
		if err != nil {
			return err
		}
		if habit.UserID != userID {
			return domain.ErrHabitNotFound
		}
		day := domain.DateOf(failedDate, time.UTC)
		existing, err := tx.Redemptions().FindByOccurrence(ctx, habitID, day)
		if err == nil {
			rec = existing
			return nil
		}
		if !errors.Is(err, domain.ErrRedemptionNotFound) {
			return err
		}
		active, err := tx.Redemptions().ActiveForHabit(ctx, habitID)
		if err != nil {
			return err
		}
		if active != nil {
			return domain.ErrConflict.Withf("habit %s already has an active redemption", habitID)
		}
		rec = &domain.PendingRedemption{
			ID:         uuid.New(),
			UserID:     userID,
			HabitID:    habitID,
			FailedDate: day,
			ExpiresAt:  domain.EndOfDayUTC(now),
			Status:     domain.StatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := tx.Redemptions().Create(ctx, rec); err != nil {
			return err
		}
		fx.notify(Notification{
			UserID: userID,
			Kind:   NotifyRedemptionCreated,
			Title:  "Habit missed",
			Body:   fmt.Sprintf("You missed %q. Give up a life or take on a challenge before midnight UTC.", habit.Name),
			Data:   map[string]string{"redemption_id": rec.ID.String()},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.post.apply(ctx, &fx)
	return rec, nil
}

// ResolveWithLife accepts the loss of one life for the missed occurrence.
func (e *RedemptionEngine) ResolveWithLife(ctx context.Context, userID, id uuid.UUID) (*domain.PendingRedemption, *domain.LedgerEntry, error) {
	var (
		fx    effects
		rec   *domain.PendingRedemption
		entry *domain.LedgerEntry
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		now := e.clock.Now()
		r, err := tx.Redemptions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ownedBy(r, userID); err != nil {
			return err
		}
		if !r.Status.CanTransitionTo(domain.StatusRedeemedLife) {
			return r.Transition(domain.StatusRedeemedLife, now)
		}
		if r.IsExpiredAt(now) {
			return domain.ErrExpired
		}
		if err := r.Transition(domain.StatusRedeemedLife, now); err != nil {
			return err
		}
		if err := tx.Redemptions().Save(ctx, r); err != nil {
			return err
		}
		entry, err = e.loseLife(ctx, tx, r, domain.ReasonHabitMissed, now, &fx)
		if err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	e.logger.Info("redemption resolved with life",
		zap.String("redemption_id", id.String()),
		zap.Int("lives", entry.ResultingLives))
	e.post.apply(ctx, &fx)
	return rec, entry, nil
}

// loseLife takes one life for a closed redemption and handles death in the
// same transaction.
func (e *RedemptionEngine) loseLife(ctx context.Context, tx Tx, r *domain.PendingRedemption, reason domain.LedgerReason, now time.Time, fx *effects) (*domain.LedgerEntry, error) {
	u, err := tx.Users().GetForUpdate(ctx, r.UserID)
	if err != nil {
		return nil, err
	}
	entry, err := applyLives(ctx, tx, u, u.Lives-1, reason, domain.RefsForRedemption(r), now)
	if err != nil {
		return nil, err
	}
	if u.IsDead() {
		if err := e.revival.handleDeathTx(ctx, tx, u.ID, r.ID, now, fx); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// AssignChallenge moves the redemption onto the challenge path. The deadline
// is not extended.
func (e *RedemptionEngine) AssignChallenge(ctx context.Context, userID, id, challengeID uuid.UUID) (*domain.PendingRedemption, error) {
	ch, err := e.catalog.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	var rec *domain.PendingRedemption
	err = e.uow.Do(ctx, func(tx Tx) error {
		now := e.clock.Now()
		r, err := tx.Redemptions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := ownedBy(r, userID); err != nil {
			return err
		}
		if r.Status == domain.StatusChallengeAssigned {
			return domain.ErrChallengeAlreadyAssigned
		}
		if !r.Status.CanTransitionTo(domain.StatusChallengeAssigned) {
			return domain.ErrAlreadyResolved.Withf("redemption is %s", r.Status)
		}
		if r.IsExpiredAt(now) {
			return domain.ErrExpired
		}
		habit, err := tx.Habits().Get(ctx, r.HabitID)
		if err != nil {
			return err
		}
		if !ch.AppliesTo(habit.CategoryID) {
			return domain.ErrCategoryMismatch
		}
		if err := r.Transition(domain.StatusChallengeAssigned, now); err != nil {
			return err
		}
		cid := ch.ID
		r.ChallengeID = &cid
		if err := tx.Redemptions().Save(ctx, r); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("challenge assigned",
		zap.String("redemption_id", id.String()),
		zap.String("challenge_id", challengeID.String()))
	return rec, nil
}

type SubmitProofInput struct {
	Text   string
	Images []string
}

func (e *RedemptionEngine) validateProofInput(in *SubmitProofInput) error {
	in.Text = strings.TrimSpace(in.Text)
	if n := len(in.Images); n < domain.MinProofImages || n > domain.MaxProofImages {
		return domain.ErrInvalidProof.Withf("expected %d to %d images, got %d", domain.MinProofImages, domain.MaxProofImages, n)
	}
	if len(in.Text) > e.opts.MaxProofTextLen {
		return domain.ErrInvalidProof.Withf("proof text longer than %d characters", e.opts.MaxProofTextLen)
	}
	for i, img := range in.Images {
		if strings.TrimSpace(img) == "" {
			return domain.ErrInvalidProof.Withf("image %d is empty", i+1)
		}
	}
	return nil
}

// checkSubmittable holds every rule for accepting a proof. It runs once
// without locks to fail fast and again under the redemption lock.
func (e *RedemptionEngine) checkSubmittable(r *domain.PendingRedemption, userID uuid.UUID, hasPending bool, rejected int, now time.Time) error {
	if err := ownedBy(r, userID); err != nil {
		return err
	}
	switch {
	case r.Status == domain.StatusPending:
		return domain.ErrChallengeNotAssigned
	case r.Status != domain.StatusChallengeAssigned:
		return domain.ErrAlreadyResolved.Withf("redemption is %s", r.Status)
	case r.IsExpiredAt(now):
		return domain.ErrExpired
	case hasPending:
		return domain.ErrValidationPending
	case rejected >= e.opts.MaxProofAttempts:
		return domain.ErrRetriesExhausted
	}
	return nil
}

// SubmitProof stores the evidence and queues it for review. Evidence is written
// before the transaction; any failure after that removes it again.
func (e *RedemptionEngine) SubmitProof(ctx context.Context, userID, id uuid.UUID, in SubmitProofInput) (*domain.ProofValidation, error) {
	if err := e.validateProofInput(&in); err != nil {
		return nil, err
	}

	reader := e.uow.Reader()
	r, err := reader.Redemptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	hasPending, err := reader.Validations().HasPending(ctx, id)
	if err != nil {
		return nil, err
	}
	rejected, err := reader.Validations().CountRejected(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.checkSubmittable(r, userID, hasPending, rejected, e.clock.Now()); err != nil {
		return nil, err
	}

	paths, err := e.evidence.Store(ctx, id, in.Images)
	if err != nil {
		return nil, err
	}

	var (
		fx effects
		v  *domain.ProofValidation
	)
	err = e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		now := e.clock.Now()
		r, err := tx.Redemptions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		pending, err := tx.Validations().FindPendingForRedemption(ctx, id)
		if err != nil {
			return err
		}
		rejected, err := tx.Validations().CountRejected(ctx, id)
		if err != nil {
			return err
		}
		if err := e.checkSubmittable(r, userID, pending != nil, rejected, now); err != nil {
			return err
		}

		previous, err := tx.Validations().LatestForRedemption(ctx, id)
		if err != nil {
			return err
		}
		v = &domain.ProofValidation{
			ID:           uuid.New(),
			RedemptionID: r.ID,
			UserID:       userID,
			ChallengeID:  *r.ChallengeID,
			ProofText:    in.Text,
			ImagePaths:   paths,
			ProofType:    domain.ProofTypeFor(in.Text, len(paths)),
			Status:       domain.ValidationPendingReview,
			CreatedAt:    now,
			ExpiresAt:    r.ExpiresAt,
		}
		if err := tx.Validations().Create(ctx, v); err != nil {
			return err
		}
		if previous != nil && previous.Status == domain.ValidationRejected {
			return enqueueCleanups(ctx, tx, domain.NewCleanups(previous.ImagePaths, domain.CleanupSuperseded, now), &fx)
		}
		return nil
	})
	if err != nil {
		e.discardEvidence(ctx, id, paths)
		return nil, err
	}

	e.logger.Info("proof submitted",
		zap.String("redemption_id", id.String()),
		zap.String("validation_id", v.ID.String()),
		zap.Int("images", len(paths)))
	e.post.apply(ctx, &fx)
	return v, nil
}

// discardEvidence removes files of a submission that never committed. Files
// that cannot be removed now are left to the cleanup queue.
func (e *RedemptionEngine) discardEvidence(ctx context.Context, redemptionID uuid.UUID, paths []string) {
	if err := e.evidence.Delete(ctx, paths...); err != nil {
		e.logger.Error("orphaned evidence",
			zap.String("redemption_id", redemptionID.String()),
			zap.Strings("paths", paths),
			zap.Error(err))
		if qerr := e.cleanup.Enqueue(ctx, paths, domain.CleanupRollback); qerr != nil {
			e.logger.Error("failed to queue orphaned evidence",
				zap.Strings("paths", paths),
				zap.Error(qerr))
		}
	}
}

// ResolveWithChallenge closes a redemption whose proof was approved.
func (e *RedemptionEngine) ResolveWithChallenge(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error) {
	var (
		fx  effects
		rec *domain.PendingRedemption
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		r, err := tx.Redemptions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := e.resolveWithChallengeTx(ctx, tx, r, e.clock.Now(), &fx); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.post.apply(ctx, &fx)
	return rec, nil
}

// resolveWithChallengeTx expects r to be locked by the caller. No life is
// lost; revival only runs for a user who is at zero.
func (e *RedemptionEngine) resolveWithChallengeTx(ctx context.Context, tx Tx, r *domain.PendingRedemption, now time.Time, fx *effects) error {
	if err := r.Transition(domain.StatusRedeemedChallenge, now); err != nil {
		return err
	}
	if err := tx.Redemptions().Save(ctx, r); err != nil {
		return err
	}
	u, err := tx.Users().GetForUpdate(ctx, r.UserID)
	if err != nil {
		return err
	}
	if _, err := applyLives(ctx, tx, u, u.Lives, domain.ReasonChallengeCompleted, domain.RefsForRedemption(r), now); err != nil {
		return err
	}
	if u.IsDead() {
		if _, err := e.revival.reviveTx(ctx, tx, u, now, fx); err != nil {
			return err
		}
	}
	if r.ChallengeID != nil {
		if ch, err := e.catalog.GetByID(ctx, *r.ChallengeID); err == nil {
			fx.grants = append(fx.grants, xpGrant{userID: r.UserID, amount: ch.XPReward, reason: "challenge_completed"})
		} else {
			e.logger.Warn("challenge lookup for xp failed", zap.String("challenge_id", r.ChallengeID.String()), zap.Error(err))
		}
	}
	return nil
}

type SweepResult struct {
	Expired int `json:"expired"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// AutoExpire closes every overdue active redemption as if the user had given
// up a life. Each record runs in its own transaction; one failure does not
// stop the others. Running it twice deducts nothing the second time.
//
// Overdue ids are read in pages. Expired records drop out of the next page;
// ids that failed or were skipped in this run are excluded so they cannot
// keep the loop going.
func (e *RedemptionEngine) AutoExpire(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := e.clock.Now()
	batch := e.opts.SweepBatchSize
	left := map[uuid.UUID]struct{}{}
	for {
		limit := batch + len(left)
		ids, err := e.uow.Reader().Redemptions().ListOverdue(ctx, now, limit)
		if err != nil {
			return res, err
		}
		fresh := 0
		for _, id := range ids {
			if _, ok := left[id]; ok {
				continue
			}
			fresh++
			if err := ctx.Err(); err != nil {
				return res, err
			}
			expired, err := e.expireOne(ctx, id)
			switch {
			case err != nil:
				res.Failed++
				left[id] = struct{}{}
				e.logger.Error("auto-expire failed", zap.String("redemption_id", id.String()), zap.Error(err))
			case expired:
				res.Expired++
			default:
				res.Skipped++
				left[id] = struct{}{}
			}
		}
		if fresh == 0 || len(ids) < limit {
			break
		}
	}
	e.logger.Info("auto-expire sweep finished",
		zap.Int("expired", res.Expired),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (e *RedemptionEngine) expireOne(ctx context.Context, id uuid.UUID) (bool, error) {
	var (
		fx      effects
		expired bool
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		expired = false
		now := e.clock.Now()
		r, err := tx.Redemptions().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		// closed or resolved by a request since the id was listed
		if !r.Status.IsActive() || !r.IsExpiredAt(now) {
			return nil
		}
		if err := r.Transition(domain.StatusExpired, now); err != nil {
			return err
		}
		if err := tx.Redemptions().Save(ctx, r); err != nil {
			return err
		}
		if err := closeValidations(ctx, tx, r.ID, "redemption expired", e.opts.MaxProofAttempts, now, &fx); err != nil {
			return err
		}
		if _, err := e.loseLife(ctx, tx, r, domain.ReasonPendingExpired, now, &fx); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, err
	}
	e.post.apply(ctx, &fx)
	return expired, nil
}

type ActiveRedemption struct {
	domain.PendingRedemption
	HabitName           string                  `json:"habit_name"`
	SecondsRemaining    int64                   `json:"seconds_remaining"`
	AssignedChallenge   *domain.Challenge       `json:"assigned_challenge,omitempty"`
	AvailableChallenges []domain.Challenge      `json:"available_challenges,omitempty"`
	LatestValidation    *domain.ProofValidation `json:"latest_validation,omitempty"`
}

// ListActive returns the caller's open redemptions with what they can do next.
func (e *RedemptionEngine) ListActive(ctx context.Context, userID uuid.UUID) ([]ActiveRedemption, error) {
	reader := e.uow.Reader()
	recs, err := reader.Redemptions().ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := e.clock.Now()
	out := make([]ActiveRedemption, 0, len(recs))
	for _, r := range recs {
		item := ActiveRedemption{PendingRedemption: r}
		if left := r.ExpiresAt.Sub(now); left > 0 {
			item.SecondsRemaining = int64(left / time.Second)
		}
		habit, err := reader.Habits().Get(ctx, r.HabitID)
		if err != nil {
			return nil, err
		}
		item.HabitName = habit.Name

		if r.ChallengeID != nil {
			ch, err := e.catalog.GetByID(ctx, *r.ChallengeID)
			if err != nil {
				return nil, err
			}
			item.AssignedChallenge = ch
			item.LatestValidation, err = reader.Validations().LatestForRedemption(ctx, r.ID)
			if err != nil {
				return nil, err
			}
		} else {
			item.AvailableChallenges, err = e.catalog.ListForCategory(ctx, habit.CategoryID)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, item)
	}
	return out, nil
}

type ValidationStatusView struct {
	RedemptionID      uuid.UUID               `json:"redemption_id"`
	RedemptionStatus  domain.RedemptionStatus `json:"redemption_status"`
	Latest            *domain.ProofValidation `json:"latest,omitempty"`
	RejectedAttempts  int                     `json:"rejected_attempts"`
	AttemptsRemaining int                     `json:"attempts_remaining"`
	CanSubmit         bool                    `json:"can_submit"`
}

func (e *RedemptionEngine) ValidationStatus(ctx context.Context, userID, id uuid.UUID) (*ValidationStatusView, error) {
	reader := e.uow.Reader()
	r, err := reader.Redemptions().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := ownedBy(r, userID); err != nil {
		return nil, err
	}
	latest, err := reader.Validations().LatestForRedemption(ctx, id)
	if err != nil {
		return nil, err
	}
	rejected, err := reader.Validations().CountRejected(ctx, id)
	if err != nil {
		return nil, err
	}
	hasPending := latest != nil && latest.Status == domain.ValidationPendingReview
	remaining := e.opts.MaxProofAttempts - rejected
	if remaining < 0 {
		remaining = 0
	}
	return &ValidationStatusView{
		RedemptionID:      id,
		RedemptionStatus:  r.Status,
		Latest:            latest,
		RejectedAttempts:  rejected,
		AttemptsRemaining: remaining,
		CanSubmit:         e.checkSubmittable(r, userID, hasPending, rejected, e.clock.Now()) == nil,
	}, nil
}
