package repository

import (
	"context"
	"errors"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ValidationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) *ValidationRepository {
	return &ValidationRepository{db: db}
}

func (r *ValidationRepository) first(db *gorm.DB, id uuid.UUID) (*domain.ProofValidation, error) {
	var v domain.ProofValidation
	if err := db.First(&v, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrValidationNotFound
		}
		return nil, err
	}
	return &v, nil
}

func (r *ValidationRepository) Get(ctx context.Context, id uuid.UUID) (*domain.ProofValidation, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *ValidationRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProofValidation, error) {
	return r.first(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *ValidationRepository) LatestForRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error) {
	var list []domain.ProofValidation
	err := r.db.WithContext(ctx).
		Where("redemption_id = ?", redemptionID).
		Order("created_at desc").
		Limit(1).
		Find(&list).Error
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (r *ValidationRepository) countByStatus(ctx context.Context, redemptionID uuid.UUID, status domain.ValidationStatus) (int, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.ProofValidation{}).
		Where("redemption_id = ? AND status = ?", redemptionID, status).
		Count(&n).Error
	return int(n), err
}

func (r *ValidationRepository) CountRejected(ctx context.Context, redemptionID uuid.UUID) (int, error) {
	return r.countByStatus(ctx, redemptionID, domain.ValidationRejected)
}

func (r *ValidationRepository) HasPending(ctx context.Context, redemptionID uuid.UUID) (bool, error) {
	n, err := r.countByStatus(ctx, redemptionID, domain.ValidationPendingReview)
	return n > 0, err
}

func (r *ValidationRepository) FindPendingForRedemption(ctx context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error) {
	var list []domain.ProofValidation
	err := forUpdate(r.db.WithContext(ctx)).
		Where("redemption_id = ? AND status = ?", redemptionID, domain.ValidationPendingReview).
		Limit(1).
		Find(&list).Error
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return &list[0], nil
}

func (r *ValidationRepository) ListPending(ctx context.Context, limit int) ([]domain.ProofValidation, error) {
	var list []domain.ProofValidation
	err := r.db.WithContext(ctx).
		Where("status = ?", domain.ValidationPendingReview).
		Order("created_at asc").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *ValidationRepository) Create(ctx context.Context, v *domain.ProofValidation) error {
	err := r.db.WithContext(ctx).Create(v).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.ErrValidationPending.Wrap(err)
	}
	return err
}

func (r *ValidationRepository) Save(ctx context.Context, v *domain.ProofValidation) error {
	return r.db.WithContext(ctx).Save(v).Error
}
