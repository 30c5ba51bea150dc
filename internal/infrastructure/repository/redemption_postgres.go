package repository

import (
	"context"
	"errors"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RedemptionRepository struct {
	db *gorm.DB
}

func NewRedemptionRepository(db *gorm.DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

func (r *RedemptionRepository) first(db *gorm.DB, id uuid.UUID) (*domain.PendingRedemption, error) {
	var rec domain.PendingRedemption
	if err := db.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRedemptionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RedemptionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *RedemptionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error) {
	return r.first(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *RedemptionRepository) FindByOccurrence(ctx context.Context, habitID uuid.UUID, failedDate time.Time) (*domain.PendingRedemption, error) {
	var rec domain.PendingRedemption
	err := r.db.WithContext(ctx).
		Where("habit_id = ? AND failed_date = ?", habitID, domain.DateOf(failedDate, time.UTC)).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRedemptionNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *RedemptionRepository) ActiveForHabit(ctx context.Context, habitID uuid.UUID) (*domain.PendingRedemption, error) {
	var recs []domain.PendingRedemption
	err := r.db.WithContext(ctx).
		Where("habit_id = ? AND status IN ?", habitID, domain.ActiveStatuses).
		Limit(1).
		Find(&recs).Error
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (r *RedemptionRepository) activeByUser(db *gorm.DB, userID uuid.UUID) ([]domain.PendingRedemption, error) {
	var recs []domain.PendingRedemption
	err := db.Where("user_id = ? AND status IN ?", userID, domain.ActiveStatuses).
		Order("expires_at asc, created_at asc").
		Find(&recs).Error
	return recs, err
}

func (r *RedemptionRepository) ListActiveByUser(ctx context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error) {
	return r.activeByUser(r.db.WithContext(ctx), userID)
}

func (r *RedemptionRepository) ListActiveByUserForUpdate(ctx context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error) {
	return r.activeByUser(forUpdate(r.db.WithContext(ctx)), userID)
}

func (r *RedemptionRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Model(&domain.PendingRedemption{}).
		Where("status IN ? AND expires_at <= ?", domain.ActiveStatuses, now).
		Order("expires_at asc").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *RedemptionRepository) ListExpiringUnnotified(ctx context.Context, now, until time.Time) ([]domain.PendingRedemption, error) {
	var recs []domain.PendingRedemption
	err := r.db.WithContext(ctx).
		Where("status IN ? AND notified_expiring = ? AND expires_at > ? AND expires_at <= ?",
			domain.ActiveStatuses, false, now, until).
		Order("expires_at asc").
		Find(&recs).Error
	return recs, err
}

func (r *RedemptionRepository) Create(ctx context.Context, rec *domain.PendingRedemption) error {
	err := r.db.WithContext(ctx).Create(rec).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrConflict.Withf("habit already has a redemption for this occurrence or an active one").Wrap(err)
	}
	return err
}

func (r *RedemptionRepository) Save(ctx context.Context, rec *domain.PendingRedemption) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *RedemptionRepository) MarkNotified(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.PendingRedemption{}).
		Where("id = ? AND notified_expiring = ? AND status IN ?", id, false, domain.ActiveStatuses).
		Update("notified_expiring", true)
	return res.RowsAffected == 1, res.Error
}
