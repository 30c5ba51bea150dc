// Package memory is a process-local storage backend. Transactions are
// serialised and see a private copy of the data that replaces the committed
// copy only when the transaction function succeeds.
package memory

import (
	"context"
	"sync"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
)

type claimKey struct {
	user, challenge uuid.UUID
}

type state struct {
	users          map[uuid.UUID]domain.User
	habits         map[uuid.UUID]domain.Habit
	logs           []domain.HabitLog
	redemptions    map[uuid.UUID]domain.PendingRedemption
	validations    []domain.ProofValidation
	ledger         []domain.LedgerEntry
	challenges     map[uuid.UUID]domain.Challenge
	lifeChallenges map[uuid.UUID]domain.LifeChallenge
	claims         map[claimKey]domain.LifeChallengeClaim
	cleanups       map[uuid.UUID]domain.EvidenceCleanup
}

func newState() *state {
	return &state{
		users:          map[uuid.UUID]domain.User{},
		habits:         map[uuid.UUID]domain.Habit{},
		redemptions:    map[uuid.UUID]domain.PendingRedemption{},
		challenges:     map[uuid.UUID]domain.Challenge{},
		lifeChallenges: map[uuid.UUID]domain.LifeChallenge{},
		claims:         map[claimKey]domain.LifeChallengeClaim{},
		cleanups:       map[uuid.UUID]domain.EvidenceCleanup{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:          copyMap(s.users),
		habits:         copyMap(s.habits),
		logs:           append([]domain.HabitLog(nil), s.logs...),
		redemptions:    copyMap(s.redemptions),
		validations:    append([]domain.ProofValidation(nil), s.validations...),
		ledger:         append([]domain.LedgerEntry(nil), s.ledger...),
		challenges:     copyMap(s.challenges),
		lifeChallenges: copyMap(s.lifeChallenges),
		claims:         copyMap(s.claims),
		cleanups:       copyMap(s.cleanups),
	}
}

type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	st   *state
}

var (
	_ usecase.UnitOfWork       = (*Store)(nil)
	_ usecase.ChallengeCatalog = (*Store)(nil)
	_ usecase.Progress         = (*Store)(nil)
	_ usecase.Seeder           = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) Do(ctx context.Context, fn func(tx usecase.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	work := s.st.clone()
	s.mu.RUnlock()

	if err := fn(txView{base{store: s, tx: work}}); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

func (s *Store) Reader() usecase.Reader {
	return readView{base{store: s}}
}

// base resolves the state a repository works on: the transaction's private
// copy, or the committed copy under a read lock.
type base struct {
	store *Store
	tx    *state
}

func (b base) view() (*state, func()) {
	if b.tx != nil {
		return b.tx, func() {}
	}
	b.store.mu.RLock()
	return b.store.st, b.store.mu.RUnlock
}

type txView struct{ b base }

func (v txView) Redemptions() usecase.RedemptionRepository       { return redemptionRepo{v.b} }
func (v txView) Validations() usecase.ValidationRepository       { return validationRepo{v.b} }
func (v txView) Ledger() usecase.LedgerRepository                { return ledgerRepo{v.b} }
func (v txView) Users() usecase.UserRepository                   { return userRepo{v.b} }
func (v txView) Habits() usecase.HabitRepository                 { return habitRepo{v.b} }
func (v txView) LifeChallenges() usecase.LifeChallengeRepository { return lifeChallengeRepo{v.b} }
func (v txView) Cleanups() usecase.CleanupRepository             { return cleanupRepo{v.b} }

type readView struct{ b base }

func (v readView) Redemptions() usecase.RedemptionReader       { return redemptionRepo{v.b} }
func (v readView) Validations() usecase.ValidationReader       { return validationRepo{v.b} }
func (v readView) Ledger() usecase.LedgerReader                { return ledgerRepo{v.b} }
func (v readView) Users() usecase.UserReader                   { return userRepo{v.b} }
func (v readView) Habits() usecase.HabitReader                 { return habitRepo{v.b} }
func (v readView) LifeChallenges() usecase.LifeChallengeReader { return lifeChallengeRepo{v.b} }
func (v readView) Cleanups() usecase.CleanupReader             { return cleanupRepo{v.b} }

func (s *Store) Seed(ctx context.Context, data usecase.SeedData) error {
	return s.Do(ctx, func(tx usecase.Tx) error {
		st := tx.(txView).b.tx
		for _, u := range data.Users {
			st.users[u.ID] = u
		}
		for _, h := range data.Habits {
			st.habits[h.ID] = h
		}
		st.logs = append(st.logs, data.HabitLogs...)
		for _, c := range data.Challenges {
			st.challenges[c.ID] = c
		}
		for _, lc := range data.LifeChallenges {
			st.lifeChallenges[lc.ID] = lc
		}
		return nil
	})
}
