package domain

import (
	"errors"
	"fmt"
)

// Kind groups errors by how a caller should react to them.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindExpired
	KindValidation
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindValidation:
		return "validation_input"
	case KindStorage:
		return "storage_failure"
	default:
		return "internal"
	}
}

// Error carries a stable Code the client can branch on.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Code so that a sentinel compared against a copy carrying a
// cause (see Wrap) still matches.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Wrap returns a copy of the sentinel with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// Withf returns a copy of the sentinel with a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrRedemptionNotFound = newError(KindNotFound, "REDEMPTION_NOT_FOUND", "pending redemption not found")
	ErrChallengeNotFound  = newError(KindNotFound, "CHALLENGE_NOT_FOUND", "challenge not found")
	ErrHabitNotFound      = newError(KindNotFound, "HABIT_NOT_FOUND", "habit not found")
	ErrUserNotFound       = newError(KindNotFound, "USER_NOT_FOUND", "user not found")
	ErrValidationNotFound = newError(KindNotFound, "VALIDATION_NOT_FOUND", "proof validation not found")

	ErrAlreadyResolved          = newError(KindConflict, "REDEMPTION_ALREADY_RESOLVED", "redemption is already resolved")
	ErrChallengeAlreadyAssigned = newError(KindConflict, "CHALLENGE_ALREADY_ASSIGNED", "a challenge is already assigned to this redemption")
	ErrChallengeNotAssigned     = newError(KindConflict, "CHALLENGE_NOT_ASSIGNED", "no challenge is assigned to this redemption")
	ErrValidationPending        = newError(KindConflict, "VALIDATION_PENDING", "a proof is already waiting for review")
	ErrRetriesExhausted         = newError(KindConflict, "MAX_RETRIES_EXCEEDED", "maximum number of proof attempts reached")
	ErrValidationReviewed       = newError(KindConflict, "VALIDATION_ALREADY_REVIEWED", "proof validation was already reviewed")
	ErrConflict                 = newError(KindConflict, "CONCURRENT_MODIFICATION", "record is being modified, retry shortly")
	ErrUserNotDead              = newError(KindConflict, "USER_NOT_DEAD", "revival is only available with zero lives")
	ErrUserDead                 = newError(KindConflict, "USER_HAS_NO_LIVES", "user has no lives left")
	ErrLivesFull                = newError(KindConflict, "LIVES_FULL", "lives are already at maximum")
	ErrLifeChallengeClaimed     = newError(KindConflict, "LIFE_CHALLENGE_ALREADY_CLAIMED", "life challenge was already claimed")

	ErrExpired = newError(KindExpired, "REDEMPTION_TIME_EXPIRED", "redemption deadline has passed")

	ErrCategoryMismatch    = newError(KindValidation, "CHALLENGE_CATEGORY_MISMATCH", "challenge does not match the habit category")
	ErrInvalidProof        = newError(KindValidation, "INVALID_PROOF", "proof is malformed")
	ErrInvalidDecision     = newError(KindValidation, "INVALID_DECISION", "decision must be approved or rejected")
	ErrUnknownLifeRule     = newError(KindValidation, "UNKNOWN_LIFE_RULE", "unknown life challenge rule")
	ErrLifeChallengeNotMet = newError(KindValidation, "LIFE_CHALLENGE_NOT_MET", "life challenge requirements are not met")

	ErrStorage = newError(KindStorage, "EVIDENCE_STORAGE_FAILED", "failed to store evidence")

	ErrInternal = newError(KindInternal, "INTERNAL_ERROR", "internal error")
)

// KindOf reports the Kind of err, KindInternal for anything unrecognised.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// AsError extracts the domain error from err. Unknown errors map to ErrInternal
// with the original cause attached.
func AsError(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	return ErrInternal.Wrap(err)
}
