package repository

import (
	"context"
	"errors"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HabitRepository struct {
	db *gorm.DB
}

func NewHabitRepository(db *gorm.DB) *HabitRepository {
	return &HabitRepository{db: db}
}

func (r *HabitRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Habit, error) {
	var h domain.Habit
	if err := r.db.WithContext(ctx).First(&h, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrHabitNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *HabitRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Habit, error) {
	var list []domain.Habit
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at asc, id asc").Find(&list).Error
	return list, err
}

func (r *HabitRepository) CompletedOn(ctx context.Context, habitID uuid.UUID, date time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.HabitLog{}).
		Where("habit_id = ? AND date = ? AND completed = ?", habitID, domain.DateOf(date, time.UTC), true).
		Count(&n).Error
	return n > 0, err
}

func (r *HabitRepository) ListLogs(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]domain.HabitLog, error) {
	var logs []domain.HabitLog
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND date BETWEEN ? AND ?", userID, from, to).
		Order("date asc").
		Find(&logs).Error
	return logs, err
}

func (r *HabitRepository) DisableActive(ctx context.Context, userID uuid.UUID, reason domain.DisabledReason) (int64, error) {
	res := r.db.WithContext(ctx).Model(&domain.Habit{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Updates(map[string]any{
			"is_active":       false,
			"disabled_reason": reason,
			"updated_at":      time.Now(),
		})
	return res.RowsAffected, res.Error
}

func (r *HabitRepository) ReactivateNoLives(ctx context.Context, userID uuid.UUID, resetStreak bool) (int64, error) {
	fields := map[string]any{
		"is_active":       true,
		"disabled_reason": domain.DisabledNone,
		"updated_at":      time.Now(),
	}
	if resetStreak {
		fields["current_streak"] = 0
	}
	res := r.db.WithContext(ctx).Model(&domain.Habit{}).
		Where("user_id = ? AND is_active = ? AND disabled_reason = ?", userID, false, domain.DisabledNoLives).
		Updates(fields)
	return res.RowsAffected, res.Error
}
