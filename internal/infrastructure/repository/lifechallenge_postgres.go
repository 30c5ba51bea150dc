package repository

import (
	"context"
	"errors"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type LifeChallengeRepository struct {
	db *gorm.DB
}

func NewLifeChallengeRepository(db *gorm.DB) *LifeChallengeRepository {
	return &LifeChallengeRepository{db: db}
}

func (r *LifeChallengeRepository) List(ctx context.Context) ([]domain.LifeChallenge, error) {
	var list []domain.LifeChallenge
	err := r.db.WithContext(ctx).Order("title asc").Find(&list).Error
	return list, err
}

func (r *LifeChallengeRepository) Get(ctx context.Context, id uuid.UUID) (*domain.LifeChallenge, error) {
	var lc domain.LifeChallenge
	if err := r.db.WithContext(ctx).First(&lc, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChallengeNotFound.Withf("life challenge not found")
		}
		return nil, err
	}
	return &lc, nil
}

func (r *LifeChallengeRepository) ClaimedBy(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&domain.LifeChallengeClaim{}).
		Where("user_id = ?", userID).
		Pluck("life_challenge_id", &ids).Error
	return ids, err
}

func (r *LifeChallengeRepository) HasClaim(ctx context.Context, userID, lifeChallengeID uuid.UUID) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.LifeChallengeClaim{}).
		Where("user_id = ? AND life_challenge_id = ?", userID, lifeChallengeID).
		Count(&n).Error
	return n > 0, err
}

func (r *LifeChallengeRepository) Claim(ctx context.Context, c *domain.LifeChallengeClaim) error {
	err := r.db.WithContext(ctx).Create(c).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrLifeChallengeClaimed.Wrap(err)
	}
	return err
}
