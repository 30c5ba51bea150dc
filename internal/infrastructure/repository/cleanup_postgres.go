package repository

import (
	"context"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CleanupRepository struct {
	db *gorm.DB
}

func NewCleanupRepository(db *gorm.DB) *CleanupRepository {
	return &CleanupRepository{db: db}
}

func (r *CleanupRepository) Due(ctx context.Context, now time.Time, limit int) ([]domain.EvidenceCleanup, error) {
	var list []domain.EvidenceCleanup
	err := r.db.WithContext(ctx).
		Where("next_attempt_at <= ?", now).
		Order("next_attempt_at asc").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *CleanupRepository) Enqueue(ctx context.Context, items []domain.EvidenceCleanup) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *CleanupRepository) Save(ctx context.Context, c *domain.EvidenceCleanup) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *CleanupRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&domain.EvidenceCleanup{}, "id = ?", id).Error
}
