package usecase

import (
	"context"
	"errors"

	"habitquest/internal/domain"

	"go.uber.org/zap"
)

// CleanupQueue owns durable deletion intents for evidence files.
type CleanupQueue struct {
	uow     UnitOfWork
	storage EvidenceStorage
	clock   domain.Clock
	logger  *zap.Logger
}

func NewCleanupQueue(uow UnitOfWork, storage EvidenceStorage, clock domain.Clock, logger *zap.Logger) *CleanupQueue {
	return &CleanupQueue{uow: uow, storage: storage, clock: clock, logger: logger}
}

// Enqueue records intents in a transaction of their own.
func (q *CleanupQueue) Enqueue(ctx context.Context, paths []string, reason domain.CleanupReason) error {
	if len(paths) == 0 {
		return nil
	}
	items := domain.NewCleanups(paths, reason, q.clock.Now())
	return q.uow.Do(ctx, func(tx Tx) error {
		return tx.Cleanups().Enqueue(ctx, items)
	})
}

type DrainResult struct {
	Deleted int `json:"deleted"`
	Retried int `json:"retried"`
	Dropped int `json:"dropped"`
}

const drainBatch = 200

// Drain processes every intent that is due.
func (q *CleanupQueue) Drain(ctx context.Context) (DrainResult, error) {
	due, err := q.uow.Reader().Cleanups().Due(ctx, q.clock.Now(), drainBatch)
	if err != nil {
		return DrainResult{}, err
	}
	res := q.process(ctx, due)
	if len(due) > 0 {
		q.logger.Info("evidence cleanup drained",
			zap.Int("deleted", res.Deleted),
			zap.Int("retried", res.Retried),
			zap.Int("dropped", res.Dropped))
	}
	return res, nil
}

// Flush tries intents right after the transaction that recorded them.
// Whatever fails stays queued for Drain.
func (q *CleanupQueue) Flush(ctx context.Context, items []domain.EvidenceCleanup) {
	q.process(ctx, items)
}

func (q *CleanupQueue) process(ctx context.Context, items []domain.EvidenceCleanup) DrainResult {
	var res DrainResult
	for i := range items {
		item := items[i]
		delErr := q.storage.Delete(ctx, item.Path)
		err := q.uow.Do(ctx, func(tx Tx) error {
			if delErr == nil {
				return tx.Cleanups().Delete(ctx, item.ID)
			}
			if item.Failed(delErr, q.clock.Now()) {
				return tx.Cleanups().Delete(ctx, item.ID)
			}
			return tx.Cleanups().Save(ctx, &item)
		})
		switch {
		case err != nil:
			q.logger.Error("cleanup bookkeeping failed",
				zap.String("cleanup_id", item.ID.String()),
				zap.Error(errors.Join(delErr, err)))
		case delErr == nil:
			res.Deleted++
		case item.Attempts >= domain.CleanupMaxAttempts:
			res.Dropped++
			q.logger.Error("giving up on evidence cleanup",
				zap.String("path", item.Path),
				zap.Int("attempts", item.Attempts),
				zap.Error(delErr))
		default:
			res.Retried++
			q.logger.Warn("evidence cleanup failed, will retry",
				zap.String("path", item.Path),
				zap.Int("attempts", item.Attempts),
				zap.Time("next_attempt_at", item.NextAttemptAt),
				zap.Error(delErr))
		}
	}
	return res
}
