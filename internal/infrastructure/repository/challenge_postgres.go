package repository

import (
	"context"
	"errors"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeRepository is the read side of the challenge catalog.
type ChallengeRepository struct {
	db *gorm.DB
}

var _ usecase.ChallengeCatalog = (*ChallengeRepository)(nil)

func NewChallengeRepository(db *gorm.DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

func (r *ChallengeRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ChallengeRepository) ListForCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Challenge, error) {
	list := []domain.Challenge{}
	err := r.db.WithContext(ctx).
		Where("is_general = ? OR category_id = ?", true, categoryID).
		Order("title asc").
		Find(&list).Error
	return list, err
}

func (r *ChallengeRepository) ListGeneral(ctx context.Context) ([]domain.Challenge, error) {
	list := []domain.Challenge{}
	err := r.db.WithContext(ctx).Where("is_general = ?", true).Order("title asc").Find(&list).Error
	return list, err
}

// ProgressRepository is the XP and streak collaborator backed by the same tables.
type ProgressRepository struct {
	db *gorm.DB
}

var _ usecase.Progress = (*ProgressRepository)(nil)

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GrantXP(ctx context.Context, userID uuid.UUID, amount int, _ string) error {
	return r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ?", userID).
		UpdateColumn("total_xp", gorm.Expr("total_xp + ?", amount)).Error
}

func (r *ProgressRepository) HabitMissed(ctx context.Context, _, habitID uuid.UUID, _ time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.Habit{}).
		Where("id = ?", habitID).
		UpdateColumn("current_streak", 0).Error
}
