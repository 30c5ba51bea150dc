package usecase

import (
	"context"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type RevivalEngine struct {
	uow     UnitOfWork
	catalog ChallengeCatalog
	clock   domain.Clock
	opts    Options
	post    afterCommit
	logger  *zap.Logger
}

func NewRevivalEngine(uow UnitOfWork, catalog ChallengeCatalog, cleanup *CleanupQueue, notifier Notifier, clock domain.Clock, opts Options, logger *zap.Logger) *RevivalEngine {
	return &RevivalEngine{
		uow:     uow,
		catalog: catalog,
		clock:   clock,
		opts:    opts.withDefaults(),
		post:    afterCommit{cleanup: cleanup, notifier: notifier, logger: logger},
		logger:  logger,
	}
}

// Revive restores lives to the maximum and reactivates habits disabled for
// lack of lives. Habits disabled for any other reason stay disabled.
func (e *RevivalEngine) Revive(ctx context.Context, userID uuid.UUID) (*domain.LedgerEntry, error) {
	var (
		fx    effects
		entry *domain.LedgerEntry
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		u, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		entry, err = e.reviveTx(ctx, tx, u, e.clock.Now(), &fx)
		return err
	})
	if err != nil {
		return nil, err
	}
	e.post.apply(ctx, &fx)
	return entry, nil
}

func (e *RevivalEngine) reviveTx(ctx context.Context, tx Tx, u *domain.User, now time.Time, fx *effects) (*domain.LedgerEntry, error) {
	reactivated, err := tx.Habits().ReactivateNoLives(ctx, u.ID, false)
	if err != nil {
		return nil, err
	}
	entry, err := applyLives(ctx, tx, u, u.MaxLives, domain.ReasonUserRevived, domain.LedgerRefs{}, now)
	if err != nil {
		return nil, err
	}
	e.logger.Info("user revived",
		zap.String("user_id", u.ID.String()),
		zap.Int("lives", u.Lives),
		zap.Int64("habits_reactivated", reactivated))
	fx.notify(Notification{
		UserID: u.ID,
		Kind:   NotifyUserRevived,
		Title:  "You are back",
		Body:   "Your lives were restored and your habits are active again.",
	})
	return entry, nil
}

// HandleUserDeath disables the user's habits and cancels their active redemptions.
func (e *RevivalEngine) HandleUserDeath(ctx context.Context, userID uuid.UUID) error {
	var fx effects
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		return e.handleDeathTx(ctx, tx, userID, uuid.Nil, e.clock.Now(), &fx)
	})
	if err != nil {
		return err
	}
	e.post.apply(ctx, &fx)
	return nil
}

// handleDeathTx runs in the transaction that took the last life. except is the
// redemption that caused the death; it is already closed by the caller.
func (e *RevivalEngine) handleDeathTx(ctx context.Context, tx Tx, userID, except uuid.UUID, now time.Time, fx *effects) error {
	disabled, err := tx.Habits().DisableActive(ctx, userID, domain.DisabledNoLives)
	if err != nil {
		return err
	}
	active, err := tx.Redemptions().ListActiveByUserForUpdate(ctx, userID)
	if err != nil {
		return err
	}
	cancelled := 0
	for i := range active {
		r := &active[i]
		if r.ID == except {
			continue
		}
		if err := r.Transition(domain.StatusExpired, now); err != nil {
			return err
		}
		if err := tx.Redemptions().Save(ctx, r); err != nil {
			return err
		}
		if err := closeValidations(ctx, tx, r.ID, "redemption cancelled: no lives left", e.opts.MaxProofAttempts, now, fx); err != nil {
			return err
		}
		cancelled++
	}
	e.logger.Warn("user ran out of lives",
		zap.String("user_id", userID.String()),
		zap.Int64("habits_disabled", disabled),
		zap.Int("redemptions_cancelled", cancelled))
	fx.notify(Notification{
		UserID: userID,
		Kind:   NotifyUserDied,
		Title:  "Out of lives",
		Body:   "All habits are paused until you choose a revival path.",
	})
	return nil
}

type RevivalPath string

const (
	RevivalReset     RevivalPath = "reset"
	RevivalChallenge RevivalPath = "challenge"
)

// Reset is the heavy revival: streaks of paused habits are cleared and the
// discipline score takes the larger penalty.
func (e *RevivalEngine) Reset(ctx context.Context, userID uuid.UUID) (*domain.LedgerEntry, error) {
	return e.revivePath(ctx, userID, RevivalReset, nil)
}

// ChallengeRevival keeps streaks and takes the lighter penalty. The challenge
// must be a general one.
func (e *RevivalEngine) ChallengeRevival(ctx context.Context, userID, challengeID uuid.UUID) (*domain.LedgerEntry, error) {
	ch, err := e.catalog.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if !ch.IsGeneral {
		return nil, domain.ErrCategoryMismatch.Withf("revival requires a general challenge")
	}
	return e.revivePath(ctx, userID, RevivalChallenge, ch)
}

func (e *RevivalEngine) revivePath(ctx context.Context, userID uuid.UUID, path RevivalPath, ch *domain.Challenge) (*domain.LedgerEntry, error) {
	var (
		fx    effects
		entry *domain.LedgerEntry
	)
	err := e.uow.Do(ctx, func(tx Tx) error {
		fx.reset()
		now := e.clock.Now()
		u, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !u.IsDead() {
			return domain.ErrUserNotDead
		}

		reason, penalty, resetStreak := domain.ReasonRevivalReset, e.opts.RevivalResetPenalty, true
		var refs domain.LedgerRefs
		if path == RevivalChallenge {
			reason, penalty, resetStreak = domain.ReasonRevivalChallenge, e.opts.RevivalChallengePenalty, false
			id := ch.ID
			refs.ChallengeID = &id
		}

		if _, err := tx.Habits().ReactivateNoLives(ctx, userID, resetStreak); err != nil {
			return err
		}
		u.DisciplineScore *= penalty
		entry, err = applyLives(ctx, tx, u, 1, reason, refs, now)
		if err != nil {
			return err
		}
		fx.notify(Notification{
			UserID: userID,
			Kind:   NotifyUserRevived,
			Title:  "Revived",
			Body:   "You have one life. Make it count.",
			Data:   map[string]string{"path": string(path)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("revival path taken",
		zap.String("user_id", userID.String()),
		zap.String("path", string(path)))
	e.post.apply(ctx, &fx)
	return entry, nil
}

type RevivalStatus struct {
	Lives           int     `json:"lives"`
	MaxLives        int     `json:"max_lives"`
	IsDead          bool    `json:"is_dead"`
	DisciplineScore float64 `json:"discipline_score"`
	PausedHabits    int     `json:"paused_habits"`
}

func (e *RevivalEngine) Status(ctx context.Context, userID uuid.UUID) (*RevivalStatus, error) {
	r := e.uow.Reader()
	u, err := r.Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	habits, err := r.Habits().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	paused := 0
	for _, h := range habits {
		if h.DisabledReason == domain.DisabledNoLives {
			paused++
		}
	}
	return &RevivalStatus{
		Lives:           u.Lives,
		MaxLives:        u.MaxLives,
		IsDead:          u.IsDead(),
		DisciplineScore: u.DisciplineScore,
		PausedHabits:    paused,
	}, nil
}

type RevivalOption struct {
	Path         RevivalPath        `json:"path"`
	Penalty      float64            `json:"penalty_multiplier"`
	LivesGranted int                `json:"lives_granted"`
	KeepsStreaks bool               `json:"keeps_streaks"`
	Challenges   []domain.Challenge `json:"challenges,omitempty"`
}

// Options lists the revival paths. It is empty while the user has lives.
func (e *RevivalEngine) Options(ctx context.Context, userID uuid.UUID) ([]RevivalOption, error) {
	u, err := e.uow.Reader().Users().Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.IsDead() {
		return []RevivalOption{}, nil
	}
	general, err := e.catalog.ListGeneral(ctx)
	if err != nil {
		return nil, err
	}
	return []RevivalOption{
		{Path: RevivalReset, Penalty: e.opts.RevivalResetPenalty, LivesGranted: 1},
		{Path: RevivalChallenge, Penalty: e.opts.RevivalChallengePenalty, LivesGranted: 1, KeepsStreaks: true, Challenges: general},
	}, nil
}
