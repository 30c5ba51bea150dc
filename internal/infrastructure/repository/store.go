package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres error codes that mean "try again".
const (
	pgLockNotAvailable     = "55P03"
	pgDeadlockDetected     = "40P01"
	pgSerializationFailure = "40001"
)

// Store is the postgres unit of work.
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

var _ usecase.UnitOfWork = (*Store)(nil)

func NewStore(db *gorm.DB, lockTimeout time.Duration) *Store {
	return &Store{db: db, lockTimeout: lockTimeout}
}

func (s *Store) Do(ctx context.Context, fn func(tx usecase.Tx) error) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if s.lockTimeout > 0 {
			// SET does not take bind parameters
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(repos{db: tx})
	})
	return translate(err)
}

func (s *Store) Reader() usecase.Reader {
	return readers{repos{db: s.db}}
}

// translate turns lock contention into a retryable conflict.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFailure:
			return domain.ErrConflict.Wrap(err)
		}
	}
	return err
}

func forUpdate(db *gorm.DB) *gorm.DB {
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

type repos struct{ db *gorm.DB }

func (r repos) Redemptions() usecase.RedemptionRepository       { return NewRedemptionRepository(r.db) }
func (r repos) Validations() usecase.ValidationRepository       { return NewValidationRepository(r.db) }
func (r repos) Ledger() usecase.LedgerRepository                { return NewLedgerRepository(r.db) }
func (r repos) Users() usecase.UserRepository                   { return NewUserRepository(r.db) }
func (r repos) Habits() usecase.HabitRepository                 { return NewHabitRepository(r.db) }
func (r repos) LifeChallenges() usecase.LifeChallengeRepository { return NewLifeChallengeRepository(r.db) }
func (r repos) Cleanups() usecase.CleanupRepository             { return NewCleanupRepository(r.db) }

type readers struct{ r repos }

func (r readers) Redemptions() usecase.RedemptionReader       { return r.r.Redemptions() }
func (r readers) Validations() usecase.ValidationReader       { return r.r.Validations() }
func (r readers) Ledger() usecase.LedgerReader                { return r.r.Ledger() }
func (r readers) Users() usecase.UserReader                   { return r.r.Users() }
func (r readers) Habits() usecase.HabitReader                 { return r.r.Habits() }
func (r readers) LifeChallenges() usecase.LifeChallengeReader { return r.r.LifeChallenges() }
func (r readers) Cleanups() usecase.CleanupReader             { return r.r.Cleanups() }

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Habit{},
		&domain.HabitLog{},
		&domain.Challenge{},
		&domain.PendingRedemption{},
		&domain.ProofValidation{},
		&domain.LedgerEntry{},
		&domain.LifeChallenge{},
		&domain.LifeChallengeClaim{},
		&domain.EvidenceCleanup{},
	)
}

// Seed inserts reference data, leaving rows that already exist untouched.
func (s *Store) Seed(ctx context.Context, data usecase.SeedData) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ignore := tx.Clauses(clause.OnConflict{DoNothing: true})
		if len(data.Users) > 0 {
			if err := ignore.Create(&data.Users).Error; err != nil {
				return err
			}
		}
		if len(data.Habits) > 0 {
			if err := ignore.Create(&data.Habits).Error; err != nil {
				return err
			}
		}
		if len(data.HabitLogs) > 0 {
			if err := ignore.Create(&data.HabitLogs).Error; err != nil {
				return err
			}
		}
		if len(data.Challenges) > 0 {
			if err := ignore.Create(&data.Challenges).Error; err != nil {
				return err
			}
		}
		if len(data.LifeChallenges) > 0 {
			if err := ignore.Create(&data.LifeChallenges).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
