package repository

import (
	"context"
	"errors"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) first(db *gorm.DB, id uuid.UUID) (*domain.User, error) {
	var u domain.User
	if err := db.First(&u, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.first(r.db.WithContext(ctx), id)
}

func (r *UserRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.first(forUpdate(r.db.WithContext(ctx)), id)
}

func (r *UserRepository) ListAlive(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).Where("lives > 0").Order("id").Find(&users).Error
	return users, err
}

func (r *UserRepository) Save(ctx context.Context, u *domain.User) error {
	return r.db.WithContext(ctx).Model(u).Select("lives", "max_lives", "discipline_score", "updated_at").Updates(u).Error
}

// LedgerRepository is append-only; there is no update or delete.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Append(ctx context.Context, e *domain.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *LedgerRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	var list []domain.LedgerEntry
	q := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&list).Error
	return list, err
}
