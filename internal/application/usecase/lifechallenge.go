package usecase

import (
	"context"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const statsWindowDays = 7

type LifeChallengeService struct {
	uow    UnitOfWork
	clock  domain.Clock
	logger *zap.Logger
}

func NewLifeChallengeService(uow UnitOfWork, clock domain.Clock, logger *zap.Logger) *LifeChallengeService {
	return &LifeChallengeService{uow: uow, clock: clock, logger: logger}
}

type LifeChallengeView struct {
	domain.LifeChallenge
	Claimed  bool `json:"claimed"`
	Eligible bool `json:"eligible"`
}

func (s *LifeChallengeService) List(ctx context.Context, userID uuid.UUID) ([]LifeChallengeView, error) {
	reader := s.uow.Reader()
	all, err := reader.LifeChallenges().List(ctx)
	if err != nil {
		return nil, err
	}
	claimedIDs, err := reader.LifeChallenges().ClaimedBy(ctx, userID)
	if err != nil {
		return nil, err
	}
	claimed := make(map[uuid.UUID]bool, len(claimedIDs))
	for _, id := range claimedIDs {
		claimed[id] = true
	}
	stats, err := activityStats(ctx, reader.Habits(), userID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	out := make([]LifeChallengeView, 0, len(all))
	for _, lc := range all {
		ok, err := lc.Rule.Evaluate(stats, lc.Threshold)
		if err != nil {
			// a bad row must not hide the rest of the catalog
			s.logger.Error("life challenge has unknown rule",
				zap.String("life_challenge_id", lc.ID.String()),
				zap.String("rule", string(lc.Rule)))
			continue
		}
		out = append(out, LifeChallengeView{LifeChallenge: lc, Claimed: claimed[lc.ID], Eligible: ok && !claimed[lc.ID]})
	}
	return out, nil
}

// Claim grants the challenge's lives once per user, capped at the maximum.
func (s *LifeChallengeService) Claim(ctx context.Context, userID, lifeChallengeID uuid.UUID) (*domain.LedgerEntry, error) {
	var entry *domain.LedgerEntry
	err := s.uow.Do(ctx, func(tx Tx) error {
		now := s.clock.Now()
		lc, err := tx.LifeChallenges().Get(ctx, lifeChallengeID)
		if err != nil {
			return err
		}
		u, err := tx.Users().GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if u.IsDead() {
			return domain.ErrUserDead
		}
		if u.Lives >= u.MaxLives {
			return domain.ErrLivesFull
		}
		done, err := tx.LifeChallenges().HasClaim(ctx, userID, lc.ID)
		if err != nil {
			return err
		}
		if done {
			return domain.ErrLifeChallengeClaimed
		}
		stats, err := activityStats(ctx, tx.Habits(), userID, now)
		if err != nil {
			return err
		}
		met, err := lc.Rule.Evaluate(stats, lc.Threshold)
		if err != nil {
			return err
		}
		if !met {
			return domain.ErrLifeChallengeNotMet
		}
		if err := tx.LifeChallenges().Claim(ctx, &domain.LifeChallengeClaim{UserID: userID, LifeChallengeID: lc.ID, ClaimedAt: now}); err != nil {
			return err
		}
		id := lc.ID
		entry, err = applyLives(ctx, tx, u, u.Lives+lc.LivesReward, domain.ReasonLifeChallengeRedeemed, domain.LedgerRefs{LifeChallengeID: &id}, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("life challenge claimed",
		zap.String("user_id", userID.String()),
		zap.String("life_challenge_id", lifeChallengeID.String()),
		zap.Int("lives", entry.ResultingLives))
	return entry, nil
}

// activityStats summarises the last seven days, today included.
func activityStats(ctx context.Context, habits HabitReader, userID uuid.UUID, now time.Time) (domain.ActivityStats, error) {
	var stats domain.ActivityStats
	list, err := habits.ListByUser(ctx, userID)
	if err != nil {
		return stats, err
	}
	today := domain.DateOf(now, time.UTC)
	from := today.AddDate(0, 0, -(statsWindowDays - 1))
	logs, err := habits.ListLogs(ctx, userID, from, today)
	if err != nil {
		return stats, err
	}

	for _, h := range list {
		if h.IsActive && h.CurrentStreak > stats.BestStreak {
			stats.BestStreak = h.CurrentStreak
		}
	}

	done := make(map[time.Time]map[uuid.UUID]bool, statsWindowDays)
	for _, l := range logs {
		if !l.Completed {
			continue
		}
		stats.WeeklyCompletions++
		day := domain.DateOf(l.Date, time.UTC)
		if done[day] == nil {
			done[day] = map[uuid.UUID]bool{}
		}
		done[day][l.HabitID] = true
	}

	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		required, completed := 0, 0
		for i := range list {
			if !list[i].RequiredOn(d) {
				continue
			}
			required++
			if done[d][list[i].ID] {
				completed++
			}
		}
		if required > 0 && completed == required {
			stats.PerfectDays++
		}
	}
	return stats, nil
}
