package testutil

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"
	"habitquest/internal/infrastructure/repository/memory"
	"habitquest/internal/infrastructure/storage"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// Wednesday, mid-morning UTC
var Now = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

const EvidenceRoot = "/evidence"

// Notifications records everything sent through the Notifier port.
type Notifications struct {
	mu   sync.Mutex
	sent []usecase.Notification
}

func (n *Notifications) Notify(_ context.Context, msg usecase.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *Notifications) Count(kind usecase.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, m := range n.sent {
		if m.Kind == kind {
			c++
		}
	}
	return c
}

// App wires every use case against the memory backend, an in-memory
// filesystem and a settable clock.
type App struct {
	Store    *memory.Store
	Clock    *Clock
	FS       afero.Fs
	Evidence *storage.EvidenceStore
	Notifier *Notifications
	Opts     usecase.Options
	Logger   *zap.Logger

	Cleanup        *usecase.CleanupQueue
	Revival        *usecase.RevivalEngine
	Engine         *usecase.RedemptionEngine
	Queue          *usecase.ProofQueue
	Evaluator      *usecase.DailyEvaluator
	Warner         *usecase.ExpiryNotifier
	LifeChallenges *usecase.LifeChallengeService
}

func NewApp(t testing.TB) *App {
	return NewAppWith(t, afero.NewMemMapFs())
}

// NewAppWith lets a test swap the evidence filesystem, e.g. for a failing one.
func NewAppWith(t testing.TB, fs afero.Fs) *App {
	t.Helper()
	return NewAppWithOptions(t, fs, usecase.DefaultOptions())
}

func NewAppWithOptions(t testing.TB, fs afero.Fs, opts usecase.Options) *App {
	t.Helper()
	a := &App{
		Store:    memory.NewStore(),
		Clock:    NewClock(Now),
		FS:       fs,
		Notifier: &Notifications{},
		Opts:     opts,
		Logger:   zaptest.NewLogger(t),
	}
	a.Evidence = storage.NewEvidenceStore(fs, EvidenceRoot)
	a.Cleanup = usecase.NewCleanupQueue(a.Store, a.Evidence, a.Clock, a.Logger)
	a.Revival = usecase.NewRevivalEngine(a.Store, a.Store, a.Cleanup, a.Notifier, a.Clock, a.Opts, a.Logger)
	a.Engine = usecase.NewRedemptionEngine(a.Store, a.Store, a.Evidence, a.Cleanup, a.Revival, a.Store, a.Notifier, a.Clock, a.Opts, a.Logger)
	a.Queue = usecase.NewProofQueue(a.Store, a.Engine, a.Cleanup, a.Notifier, a.Store, a.Clock, a.Opts, a.Logger)
	a.Evaluator = usecase.NewDailyEvaluator(a.Store, a.Engine, a.Store, a.Logger)
	a.Warner = usecase.NewExpiryNotifier(a.Store, a.Notifier, a.Clock, a.Opts, a.Logger)
	a.LifeChallenges = usecase.NewLifeChallengeService(a.Store, a.Clock, a.Logger)
	return a
}

func (a *App) seed(t testing.TB, data usecase.SeedData) {
	t.Helper()
	require.NoError(t, a.Store.Seed(context.Background(), data))
}

func (a *App) AddUser(t testing.TB, lives int) domain.User {
	u := domain.User{
		ID:              uuid.New(),
		Username:        "player",
		Lives:           lives,
		MaxLives:        domain.DefaultMaxLives,
		DisciplineScore: domain.DefaultDisciplineScore,
		CreatedAt:       Now.AddDate(0, -1, 0),
	}
	a.seed(t, usecase.SeedData{Users: []domain.User{u}})
	return u
}

func (a *App) AddHabit(t testing.TB, userID, categoryID uuid.UUID, mutate ...func(*domain.Habit)) domain.Habit {
	h := domain.Habit{
		ID:         uuid.New(),
		UserID:     userID,
		CategoryID: categoryID,
		Name:       "Morning run",
		IsActive:   true,
		CreatedAt:  Now.AddDate(0, 0, -30),
	}
	for _, m := range mutate {
		m(&h)
	}
	a.seed(t, usecase.SeedData{Habits: []domain.Habit{h}})
	return h
}

func (a *App) AddChallenge(t testing.TB, categoryID *uuid.UUID, general bool, xp int) domain.Challenge {
	c := domain.Challenge{
		ID:         uuid.New(),
		CategoryID: categoryID,
		IsGeneral:  general,
		Title:      "Challenge " + uuid.NewString()[:6],
		XPReward:   xp,
		CreatedAt:  Now,
	}
	a.seed(t, usecase.SeedData{Challenges: []domain.Challenge{c}})
	return c
}

func (a *App) AddLifeChallenge(t testing.TB, rule domain.LifeRule, threshold, reward int) domain.LifeChallenge {
	lc := domain.LifeChallenge{
		ID:          uuid.New(),
		Title:       string(rule),
		Rule:        rule,
		Threshold:   threshold,
		LivesReward: reward,
		CreatedAt:   Now,
	}
	a.seed(t, usecase.SeedData{LifeChallenges: []domain.LifeChallenge{lc}})
	return lc
}

func (a *App) AddLog(t testing.TB, h domain.Habit, day time.Time, completed bool) {
	a.seed(t, usecase.SeedData{HabitLogs: []domain.HabitLog{{
		ID:        uuid.New(),
		HabitID:   h.ID,
		UserID:    h.UserID,
		Date:      domain.DateOf(day, time.UTC),
		Completed: completed,
		CreatedAt: day,
	}}})
}

func (a *App) User(t testing.TB, id uuid.UUID) domain.User {
	t.Helper()
	u, err := a.Store.Reader().Users().Get(context.Background(), id)
	require.NoError(t, err)
	return *u
}

func (a *App) Habit(t testing.TB, id uuid.UUID) domain.Habit {
	t.Helper()
	h, err := a.Store.Reader().Habits().Get(context.Background(), id)
	require.NoError(t, err)
	return *h
}

func (a *App) Redemption(t testing.TB, id uuid.UUID) domain.PendingRedemption {
	t.Helper()
	r, err := a.Store.Reader().Redemptions().Get(context.Background(), id)
	require.NoError(t, err)
	return *r
}

// Ledger returns the user's entries oldest first.
func (a *App) Ledger(t testing.TB, userID uuid.UUID) []domain.LedgerEntry {
	t.Helper()
	list, err := a.Store.Reader().Ledger().ListByUser(context.Background(), userID, 0)
	require.NoError(t, err)
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list
}

// Missed opens a redemption for yesterday's occurrence of h.
func (a *App) Missed(t testing.TB, h domain.Habit) domain.PendingRedemption {
	t.Helper()
	r, err := a.Engine.Create(context.Background(), h.UserID, h.ID, a.Clock.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	return *r
}

// EvidenceFiles lists every stored file, relative to the evidence root.
func (a *App) EvidenceFiles(t testing.TB) []string {
	t.Helper()
	var out []string
	err := afero.Walk(a.FS, EvidenceRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !info.IsDir() {
			out = append(out, strings.TrimPrefix(p, EvidenceRoot+"/"))
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// PNGDataURL returns a small image data URL; salt varies the content.
func PNGDataURL(salt byte) string {
	data := append(append([]byte(nil), pngHeader...), salt, salt, salt)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}
