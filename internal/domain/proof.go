package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ProofType string

const (
	ProofText  ProofType = "text"
	ProofImage ProofType = "image"
	ProofBoth  ProofType = "both"
)

type ValidationStatus string

const (
	ValidationPendingReview ValidationStatus = "pending_review"
	ValidationApproved      ValidationStatus = "approved"
	ValidationRejected      ValidationStatus = "rejected"
)

// Decision is the outcome an external reviewer reports for a proof.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionRejected:
		return Decision(s), nil
	}
	return "", ErrInvalidDecision.Withf("unknown decision %q", s)
}

const (
	MinProofImages = 1
	MaxProofImages = 2
)

// ProofValidation is one evidence submission for a redemption.
type ProofValidation struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RedemptionID uuid.UUID `gorm:"type:uuid;not null;index;uniqueIndex:idx_validation_pending,where:status = 'pending_review'" json:"redemption_id"`
	UserID       uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ChallengeID  uuid.UUID `gorm:"type:uuid;not null" json:"challenge_id"`

	ProofText  string                      `gorm:"type:text" json:"proof_text,omitempty"`
	ImagePaths datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"image_paths"`
	ProofType  ProofType                   `gorm:"type:varchar(16);not null" json:"proof_type"`
	Status     ValidationStatus            `gorm:"type:varchar(32);not null;index" json:"status"`

	CreatedAt     time.Time      `json:"created_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	ReviewedAt    *time.Time     `json:"reviewed_at,omitempty"`
	ReviewerNotes string         `gorm:"type:text" json:"reviewer_notes,omitempty"`
	AIResult      datatypes.JSON `gorm:"type:jsonb" json:"ai_result,omitempty"`
}

func (ProofValidation) TableName() string { return "proof_validations" }

// Review records a decision on a pending proof.
func (v *ProofValidation) Review(d Decision, notes string, aiResult []byte, now time.Time) error {
	if v.Status != ValidationPendingReview {
		return ErrValidationReviewed.Withf("proof validation is %s", v.Status)
	}
	switch d {
	case DecisionApproved:
		v.Status = ValidationApproved
	case DecisionRejected:
		v.Status = ValidationRejected
	default:
		return ErrInvalidDecision
	}
	t := now
	v.ReviewedAt = &t
	v.ReviewerNotes = notes
	if len(aiResult) > 0 {
		v.AIResult = datatypes.JSON(aiResult)
	}
	return nil
}

// ProofTypeFor derives the proof type from what was submitted.
func ProofTypeFor(text string, images int) ProofType {
	switch {
	case text != "" && images > 0:
		return ProofBoth
	case images > 0:
		return ProofImage
	default:
		return ProofText
	}
}
