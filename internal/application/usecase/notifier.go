package usecase

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"habitquest/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExpiryNotifier warns users whose redemptions are about to expire. Each record
// is warned at most once.
type ExpiryNotifier struct {
	uow      UnitOfWork
	notifier Notifier
	clock    domain.Clock
	opts     Options
	logger   *zap.Logger
}

func NewExpiryNotifier(uow UnitOfWork, notifier Notifier, clock domain.Clock, opts Options, logger *zap.Logger) *ExpiryNotifier {
	return &ExpiryNotifier{uow: uow, notifier: notifier, clock: clock, opts: opts.withDefaults(), logger: logger}
}

func (n *ExpiryNotifier) Run(ctx context.Context) (int, error) {
	now := n.clock.Now()
	due, err := n.uow.Reader().Redemptions().ListExpiringUnnotified(ctx, now, now.Add(n.opts.ExpiryWarningWindow))
	if err != nil {
		return 0, err
	}

	var sent atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.opts.NotifyConcurrency)
	for i := range due {
		r := due[i]
		g.Go(func() error {
			var claimed bool
			err := n.uow.Do(gctx, func(tx Tx) error {
				var err error
				claimed, err = tx.Redemptions().MarkNotified(gctx, r.ID)
				return err
			})
			if err != nil {
				n.logger.Error("failed to flag expiry warning", zap.String("redemption_id", r.ID.String()), zap.Error(err))
				return nil
			}
			if !claimed {
				return nil
			}
			left := r.ExpiresAt.Sub(now).Round(time.Minute)
			msg := Notification{
				UserID: r.UserID,
				Kind:   NotifyRedemptionExpiring,
				Title:  "Redemption expiring soon",
				Body:   fmt.Sprintf("Decide within %s or you lose a life.", left),
				Data:   map[string]string{"redemption_id": r.ID.String()},
			}
			if err := n.notifier.Notify(gctx, msg); err != nil {
				n.logger.Warn("expiry warning not delivered", zap.String("redemption_id", r.ID.String()), zap.Error(err))
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(sent.Load()), err
	}
	return int(sent.Load()), ctx.Err()
}
