package memory

import (
	"context"
	"sort"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
)

type redemptionRepo struct{ b base }

func (r redemptionRepo) Get(_ context.Context, id uuid.UUID) (*domain.PendingRedemption, error) {
	st, done := r.b.view()
	defer done()
	rec, ok := st.redemptions[id]
	if !ok {
		return nil, domain.ErrRedemptionNotFound
	}
	return &rec, nil
}

func (r redemptionRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.PendingRedemption, error) {
	return r.Get(ctx, id)
}

func (r redemptionRepo) FindByOccurrence(_ context.Context, habitID uuid.UUID, failedDate time.Time) (*domain.PendingRedemption, error) {
	st, done := r.b.view()
	defer done()
	day := domain.DateOf(failedDate, time.UTC)
	for _, rec := range st.redemptions {
		if rec.HabitID == habitID && rec.FailedDate.Equal(day) {
			return &rec, nil
		}
	}
	return nil, domain.ErrRedemptionNotFound
}

func (r redemptionRepo) ActiveForHabit(_ context.Context, habitID uuid.UUID) (*domain.PendingRedemption, error) {
	st, done := r.b.view()
	defer done()
	for _, rec := range st.redemptions {
		if rec.HabitID == habitID && rec.Status.IsActive() {
			return &rec, nil
		}
	}
	return nil, nil
}

func (r redemptionRepo) filter(keep func(domain.PendingRedemption) bool) []domain.PendingRedemption {
	st, done := r.b.view()
	defer done()
	var out []domain.PendingRedemption
	for _, rec := range st.redemptions {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	return out
}

func (r redemptionRepo) ListActiveByUser(_ context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error) {
	return r.filter(func(rec domain.PendingRedemption) bool {
		return rec.UserID == userID && rec.Status.IsActive()
	}), nil
}

func (r redemptionRepo) ListActiveByUserForUpdate(ctx context.Context, userID uuid.UUID) ([]domain.PendingRedemption, error) {
	return r.ListActiveByUser(ctx, userID)
}

func (r redemptionRepo) ListOverdue(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	recs := r.filter(func(rec domain.PendingRedemption) bool {
		return rec.Status.IsActive() && rec.IsExpiredAt(now)
	})
	ids := make([]uuid.UUID, 0, len(recs))
	for _, rec := range recs {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, rec.ID)
	}
	return ids, nil
}

func (r redemptionRepo) ListExpiringUnnotified(_ context.Context, now, until time.Time) ([]domain.PendingRedemption, error) {
	return r.filter(func(rec domain.PendingRedemption) bool {
		return rec.Status.IsActive() && !rec.NotifiedExpiring &&
			rec.ExpiresAt.After(now) && !rec.ExpiresAt.After(until)
	}), nil
}

func (r redemptionRepo) Create(_ context.Context, rec *domain.PendingRedemption) error {
	st := r.b.tx
	for _, other := range st.redemptions {
		if other.HabitID != rec.HabitID {
			continue
		}
		if other.FailedDate.Equal(rec.FailedDate) {
			return domain.ErrConflict.Withf("redemption for this occurrence already exists")
		}
		if other.Status.IsActive() && rec.Status.IsActive() {
			return domain.ErrConflict.Withf("habit already has an active redemption")
		}
	}
	st.redemptions[rec.ID] = *rec
	return nil
}

func (r redemptionRepo) Save(_ context.Context, rec *domain.PendingRedemption) error {
	if _, ok := r.b.tx.redemptions[rec.ID]; !ok {
		return domain.ErrRedemptionNotFound
	}
	r.b.tx.redemptions[rec.ID] = *rec
	return nil
}

func (r redemptionRepo) MarkNotified(_ context.Context, id uuid.UUID) (bool, error) {
	rec, ok := r.b.tx.redemptions[id]
	if !ok || rec.NotifiedExpiring || !rec.Status.IsActive() {
		return false, nil
	}
	rec.NotifiedExpiring = true
	r.b.tx.redemptions[id] = rec
	return true, nil
}

type validationRepo struct{ b base }

func (r validationRepo) Get(_ context.Context, id uuid.UUID) (*domain.ProofValidation, error) {
	st, done := r.b.view()
	defer done()
	for _, v := range st.validations {
		if v.ID == id {
			return &v, nil
		}
	}
	return nil, domain.ErrValidationNotFound
}

func (r validationRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.ProofValidation, error) {
	return r.Get(ctx, id)
}

func (r validationRepo) LatestForRedemption(_ context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error) {
	st, done := r.b.view()
	defer done()
	for i := len(st.validations) - 1; i >= 0; i-- {
		if v := st.validations[i]; v.RedemptionID == redemptionID {
			return &v, nil
		}
	}
	return nil, nil
}

func (r validationRepo) count(redemptionID uuid.UUID, status domain.ValidationStatus) int {
	st, done := r.b.view()
	defer done()
	n := 0
	for _, v := range st.validations {
		if v.RedemptionID == redemptionID && v.Status == status {
			n++
		}
	}
	return n
}

func (r validationRepo) CountRejected(_ context.Context, redemptionID uuid.UUID) (int, error) {
	return r.count(redemptionID, domain.ValidationRejected), nil
}

func (r validationRepo) HasPending(_ context.Context, redemptionID uuid.UUID) (bool, error) {
	return r.count(redemptionID, domain.ValidationPendingReview) > 0, nil
}

func (r validationRepo) FindPendingForRedemption(_ context.Context, redemptionID uuid.UUID) (*domain.ProofValidation, error) {
	for _, v := range r.b.tx.validations {
		if v.RedemptionID == redemptionID && v.Status == domain.ValidationPendingReview {
			return &v, nil
		}
	}
	return nil, nil
}

func (r validationRepo) ListPending(_ context.Context, limit int) ([]domain.ProofValidation, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.ProofValidation
	for _, v := range st.validations {
		if v.Status != domain.ValidationPendingReview {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, v)
	}
	return out, nil
}

func (r validationRepo) Create(_ context.Context, v *domain.ProofValidation) error {
	for _, other := range r.b.tx.validations {
		if other.RedemptionID == v.RedemptionID && other.Status == domain.ValidationPendingReview && v.Status == domain.ValidationPendingReview {
			return domain.ErrValidationPending
		}
	}
	r.b.tx.validations = append(r.b.tx.validations, *v)
	return nil
}

func (r validationRepo) Save(_ context.Context, v *domain.ProofValidation) error {
	for i := range r.b.tx.validations {
		if r.b.tx.validations[i].ID == v.ID {
			r.b.tx.validations[i] = *v
			return nil
		}
	}
	return domain.ErrValidationNotFound
}

type ledgerRepo struct{ b base }

func (r ledgerRepo) ListByUser(_ context.Context, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.LedgerEntry
	for i := len(st.ledger) - 1; i >= 0; i-- {
		if st.ledger[i].UserID != userID {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, st.ledger[i])
	}
	return out, nil
}

func (r ledgerRepo) Append(_ context.Context, e *domain.LedgerEntry) error {
	r.b.tx.ledger = append(r.b.tx.ledger, *e)
	return nil
}

type userRepo struct{ b base }

func (r userRepo) Get(_ context.Context, id uuid.UUID) (*domain.User, error) {
	st, done := r.b.view()
	defer done()
	u, ok := st.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (r userRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.Get(ctx, id)
}

func (r userRepo) ListAlive(_ context.Context) ([]domain.User, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.User
	for _, u := range st.users {
		if u.Lives > 0 {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r userRepo) Save(_ context.Context, u *domain.User) error {
	if _, ok := r.b.tx.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	r.b.tx.users[u.ID] = *u
	return nil
}

type habitRepo struct{ b base }

func (r habitRepo) Get(_ context.Context, id uuid.UUID) (*domain.Habit, error) {
	st, done := r.b.view()
	defer done()
	h, ok := st.habits[id]
	if !ok {
		return nil, domain.ErrHabitNotFound
	}
	return &h, nil
}

func (r habitRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]domain.Habit, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.Habit
	for _, h := range st.habits {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r habitRepo) CompletedOn(_ context.Context, habitID uuid.UUID, date time.Time) (bool, error) {
	st, done := r.b.view()
	defer done()
	day := domain.DateOf(date, time.UTC)
	for _, l := range st.logs {
		if l.HabitID == habitID && l.Completed && domain.DateOf(l.Date, time.UTC).Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (r habitRepo) ListLogs(_ context.Context, userID uuid.UUID, from, to time.Time) ([]domain.HabitLog, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.HabitLog
	for _, l := range st.logs {
		if l.UserID == userID && !l.Date.Before(from) && !l.Date.After(to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r habitRepo) DisableActive(_ context.Context, userID uuid.UUID, reason domain.DisabledReason) (int64, error) {
	var n int64
	for id, h := range r.b.tx.habits {
		if h.UserID == userID && h.IsActive {
			h.Disable(reason)
			r.b.tx.habits[id] = h
			n++
		}
	}
	return n, nil
}

func (r habitRepo) ReactivateNoLives(_ context.Context, userID uuid.UUID, resetStreak bool) (int64, error) {
	var n int64
	for id, h := range r.b.tx.habits {
		if h.UserID != userID || h.IsActive || h.DisabledReason != domain.DisabledNoLives {
			continue
		}
		h.Reactivate()
		if resetStreak {
			h.CurrentStreak = 0
		}
		r.b.tx.habits[id] = h
		n++
	}
	return n, nil
}

type lifeChallengeRepo struct{ b base }

func (r lifeChallengeRepo) List(_ context.Context) ([]domain.LifeChallenge, error) {
	st, done := r.b.view()
	defer done()
	out := make([]domain.LifeChallenge, 0, len(st.lifeChallenges))
	for _, lc := range st.lifeChallenges {
		out = append(out, lc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (r lifeChallengeRepo) Get(_ context.Context, id uuid.UUID) (*domain.LifeChallenge, error) {
	st, done := r.b.view()
	defer done()
	lc, ok := st.lifeChallenges[id]
	if !ok {
		return nil, domain.ErrChallengeNotFound.Withf("life challenge not found")
	}
	return &lc, nil
}

func (r lifeChallengeRepo) ClaimedBy(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	st, done := r.b.view()
	defer done()
	var out []uuid.UUID
	for k := range st.claims {
		if k.user == userID {
			out = append(out, k.challenge)
		}
	}
	return out, nil
}

func (r lifeChallengeRepo) HasClaim(_ context.Context, userID, lifeChallengeID uuid.UUID) (bool, error) {
	_, ok := r.b.tx.claims[claimKey{userID, lifeChallengeID}]
	return ok, nil
}

func (r lifeChallengeRepo) Claim(_ context.Context, c *domain.LifeChallengeClaim) error {
	k := claimKey{c.UserID, c.LifeChallengeID}
	if _, ok := r.b.tx.claims[k]; ok {
		return domain.ErrLifeChallengeClaimed
	}
	r.b.tx.claims[k] = *c
	return nil
}

type cleanupRepo struct{ b base }

func (r cleanupRepo) Due(_ context.Context, now time.Time, limit int) ([]domain.EvidenceCleanup, error) {
	st, done := r.b.view()
	defer done()
	var out []domain.EvidenceCleanup
	for _, c := range st.cleanups {
		if !c.NextAttemptAt.After(now) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r cleanupRepo) Enqueue(_ context.Context, items []domain.EvidenceCleanup) error {
	for _, c := range items {
		r.b.tx.cleanups[c.ID] = c
	}
	return nil
}

func (r cleanupRepo) Save(_ context.Context, c *domain.EvidenceCleanup) error {
	r.b.tx.cleanups[c.ID] = *c
	return nil
}

func (r cleanupRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.b.tx.cleanups, id)
	return nil
}
