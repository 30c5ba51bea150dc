package domain

import (
	"time"

	"github.com/google/uuid"
)

type DisabledReason string

const (
	DisabledNone    DisabledReason = ""
	DisabledNoLives DisabledReason = "no_lives"
	DisabledManual  DisabledReason = "manual"
)

// Weekdays is a bitmask of required weekdays, bit 0 is Sunday. Zero means every day.
type Weekdays uint8

const EveryDay Weekdays = 0

func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

func (w Weekdays) Includes(d time.Weekday) bool {
	return w == EveryDay || w&(1<<uint(d)) != 0
}

type Habit struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	CategoryID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"category_id"`
	Name           string         `gorm:"type:varchar(120);not null" json:"name"`
	Weekdays       Weekdays       `gorm:"not null;default:0" json:"weekdays"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	DisabledReason DisabledReason `gorm:"type:varchar(16);not null;default:''" json:"disabled_reason,omitempty"`
	CurrentStreak  int            `gorm:"not null;default:0" json:"current_streak"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Habit) TableName() string { return "habits" }

// RequiredOn reports whether an occurrence was due on date (a UTC midnight).
func (h *Habit) RequiredOn(date time.Time) bool {
	if !h.IsActive {
		return false
	}
	if h.CreatedAt.After(date.Add(24*time.Hour - time.Nanosecond)) {
		return false
	}
	return h.Weekdays.Includes(date.Weekday())
}

func (h *Habit) Disable(reason DisabledReason) {
	h.IsActive = false
	h.DisabledReason = reason
}

func (h *Habit) Reactivate() {
	h.IsActive = true
	h.DisabledReason = DisabledNone
}

type HabitLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	HabitID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_habit_log_day,priority:1" json:"habit_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex:idx_habit_log_day,priority:2" json:"date"`
	Completed bool      `gorm:"not null" json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}

func (HabitLog) TableName() string { return "habit_logs" }
