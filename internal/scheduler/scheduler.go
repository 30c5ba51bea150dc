package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"go.uber.org/zap"
)

type Sweeper interface {
	AutoExpire(ctx context.Context) (usecase.SweepResult, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, date time.Time) (usecase.EvaluationResult, error)
}

type Warner interface {
	Run(ctx context.Context) (int, error)
}

type Drainer interface {
	Drain(ctx context.Context) (usecase.DrainResult, error)
}

type Config struct {
	// DailyAt is the offset from local midnight of the daily run.
	DailyAt     time.Duration
	HourlyEvery time.Duration
	Location    *time.Location
}

// Scheduler is a single-instance, in-process timer. Running two instances
// against one database is not supported.
type Scheduler struct {
	sweeper   Sweeper
	evaluator Evaluator
	warner    Warner
	drainer   Drainer
	state     *State
	clock     domain.Clock
	cfg       Config
	logger    *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(sweeper Sweeper, evaluator Evaluator, warner Warner, drainer Drainer, state *State, clock domain.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if cfg.HourlyEvery <= 0 {
		cfg.HourlyEvery = time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if state == nil {
		state = NewState()
	}
	return &Scheduler{
		sweeper:   sweeper,
		evaluator: evaluator,
		warner:    warner,
		drainer:   drainer,
		state:     state,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// NextDailyRun is the first occurrence of at after now in loc.
func NextDailyRun(now time.Time, at time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc).Add(at)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).Add(at)
	}
	return next
}

func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(2)
	go s.dailyLoop(ctx)
	go s.hourlyLoop(ctx)
	s.logger.Info("scheduler started",
		zap.Time("next_daily_run", NextDailyRun(s.clock.Now(), s.cfg.DailyAt, s.cfg.Location)),
		zap.Duration("hourly_every", s.cfg.HourlyEvery))
}

// Stop cancels both loops and waits for a run in progress to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) dailyLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		now := s.clock.Now()
		timer := time.NewTimer(NextDailyRun(now, s.cfg.DailyAt, s.cfg.Location).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.RunDaily(ctx)
		}
	}
}

func (s *Scheduler) hourlyLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.HourlyEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunHourly(ctx)
		}
	}
}

// RunDaily expires overdue redemptions, then evaluates the previous local day.
// It reports whether it ran.
func (s *Scheduler) RunDaily(ctx context.Context) bool {
	now := s.clock.Now().In(s.cfg.Location)
	ok, reason := s.state.TryBegin(now)
	if !ok {
		s.logger.Info("daily run skipped", zap.String("reason", reason))
		return false
	}

	var errs []error
	if _, err := s.sweeper.AutoExpire(ctx); err != nil {
		errs = append(errs, err)
		s.logger.Error("auto-expire sweep failed", zap.Error(err))
	}
	yesterday := time.Date(now.Year(), now.Month(), now.Day()-1, 0, 0, 0, 0, time.UTC)
	if _, err := s.evaluator.Evaluate(ctx, yesterday); err != nil {
		errs = append(errs, err)
		s.logger.Error("daily evaluation failed", zap.Error(err))
	}

	err := errors.Join(errs...)
	s.state.Finish(now, err == nil)
	return true
}

func (s *Scheduler) RunHourly(ctx context.Context) {
	sent, err := s.warner.Run(ctx)
	if err != nil {
		s.logger.Error("expiry warnings failed", zap.Error(err))
	} else if sent > 0 {
		s.logger.Info("expiry warnings sent", zap.Int("count", sent))
	}
	if _, err := s.drainer.Drain(ctx); err != nil {
		s.logger.Error("evidence cleanup drain failed", zap.Error(err))
	}
}
