package usecase

import (
	"context"
	"errors"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DailyEvaluator finds missed habit occurrences and opens redemptions for them.
type DailyEvaluator struct {
	uow      UnitOfWork
	engine   *RedemptionEngine
	progress Progress
	logger   *zap.Logger
}

func NewDailyEvaluator(uow UnitOfWork, engine *RedemptionEngine, progress Progress, logger *zap.Logger) *DailyEvaluator {
	return &DailyEvaluator{uow: uow, engine: engine, progress: progress, logger: logger}
}

type EvaluationResult struct {
	Date    time.Time `json:"date"`
	Users   int       `json:"users"`
	Created int       `json:"created"`
	Skipped int       `json:"skipped"`
	Failed  int       `json:"failed"`
}

// Evaluate checks the calendar day of date for every user who still has lives.
func (d *DailyEvaluator) Evaluate(ctx context.Context, date time.Time) (EvaluationResult, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	res := EvaluationResult{Date: day}

	users, err := d.uow.Reader().Users().ListAlive(ctx)
	if err != nil {
		return res, err
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Users++
		if err := d.evaluateUser(ctx, u.ID, day, &res); err != nil {
			res.Failed++
			d.logger.Error("daily evaluation failed for user",
				zap.String("user_id", u.ID.String()),
				zap.Error(err))
		}
	}
	d.logger.Info("daily evaluation finished",
		zap.Time("date", day),
		zap.Int("users", res.Users),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed))
	return res, nil
}

func (d *DailyEvaluator) evaluateUser(ctx context.Context, userID uuid.UUID, day time.Time, res *EvaluationResult) error {
	reader := d.uow.Reader()
	habits, err := reader.Habits().ListByUser(ctx, userID)
	if err != nil {
		return err
	}
	for i := range habits {
		h := &habits[i]
		if !h.RequiredOn(day) {
			continue
		}
		done, err := reader.Habits().CompletedOn(ctx, h.ID, day)
		if err != nil {
			return err
		}
		if done {
			continue
		}
		if _, err := reader.Redemptions().FindByOccurrence(ctx, h.ID, day); err == nil {
			res.Skipped++
			continue
		} else if !errors.Is(err, domain.ErrRedemptionNotFound) {
			return err
		}
		active, err := reader.Redemptions().ActiveForHabit(ctx, h.ID)
		if err != nil {
			return err
		}
		if active != nil {
			res.Skipped++
			continue
		}

		if _, err := d.engine.Create(ctx, userID, h.ID, day); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				res.Skipped++
				continue
			}
			return err
		}
		res.Created++

		if d.progress != nil {
			if err := d.progress.HabitMissed(ctx, userID, h.ID, day); err != nil {
				d.logger.Warn("streak update failed",
					zap.String("habit_id", h.ID.String()),
					zap.Error(err))
			}
		}
	}
	return nil
}
