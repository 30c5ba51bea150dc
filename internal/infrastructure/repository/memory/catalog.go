package memory

import (
	"context"
	"sort"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
)

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*domain.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.st.challenges[id]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	return &c, nil
}

func (s *Store) ListForCategory(_ context.Context, categoryID uuid.UUID) ([]domain.Challenge, error) {
	return s.challengesWhere(func(c domain.Challenge) bool { return c.AppliesTo(categoryID) }), nil
}

func (s *Store) ListGeneral(_ context.Context) ([]domain.Challenge, error) {
	return s.challengesWhere(func(c domain.Challenge) bool { return c.IsGeneral }), nil
}

func (s *Store) challengesWhere(keep func(domain.Challenge) bool) []domain.Challenge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Challenge{}
	for _, c := range s.st.challenges {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out
}

func (s *Store) GrantXP(ctx context.Context, userID uuid.UUID, amount int, _ string) error {
	return s.Do(ctx, func(tx usecase.Tx) error {
		st := tx.(txView).b.tx
		u, ok := st.users[userID]
		if !ok {
			return domain.ErrUserNotFound
		}
		u.TotalXP += amount
		st.users[userID] = u
		return nil
	})
}

func (s *Store) HabitMissed(ctx context.Context, _, habitID uuid.UUID, _ time.Time) error {
	return s.Do(ctx, func(tx usecase.Tx) error {
		st := tx.(txView).b.tx
		h, ok := st.habits[habitID]
		if !ok {
			return domain.ErrHabitNotFound
		}
		h.CurrentStreak = 0
		st.habits[habitID] = h
		return nil
	})
}
