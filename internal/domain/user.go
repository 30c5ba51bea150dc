package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMaxLives        = 3
	DefaultDisciplineScore = 100.0
)

// User holds the lives subset of a user profile.
type User struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Username        string    `gorm:"type:varchar(64)" json:"username"`
	Lives           int       `gorm:"not null;default:3" json:"lives"`
	MaxLives        int       `gorm:"not null;default:3" json:"max_lives"`
	DisciplineScore float64   `gorm:"not null;default:100" json:"discipline_score"`
	TotalXP         int       `gorm:"not null;default:0" json:"total_xp"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) IsDead() bool { return u.Lives <= 0 }

// ApplyLives sets lives to the clamped target and returns the delta applied.
func (u *User) ApplyLives(target int) int {
	if target < 0 {
		target = 0
	}
	if target > u.MaxLives {
		target = u.MaxLives
	}
	delta := target - u.Lives
	u.Lives = target
	return delta
}
