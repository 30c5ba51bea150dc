package domain

import (
	"time"

	"github.com/google/uuid"
)

type Challenge struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	CategoryID  *uuid.UUID `gorm:"type:uuid;index" json:"category_id,omitempty"`
	IsGeneral   bool       `gorm:"not null;default:false;index" json:"is_general"`
	Title       string     `gorm:"type:varchar(160);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Difficulty  string     `gorm:"type:varchar(16)" json:"difficulty"`
	XPReward    int        `gorm:"not null;default:0" json:"xp_reward"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (Challenge) TableName() string { return "challenges" }

// AppliesTo reports whether the challenge can redeem a habit of category.
func (c *Challenge) AppliesTo(category uuid.UUID) bool {
	if c.IsGeneral {
		return true
	}
	return c.CategoryID != nil && *c.CategoryID == category
}
