package cache

import (
	"context"
	"encoding/json"
	"time"

	"habitquest/internal/application/usecase"
	"habitquest/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	challengeDetailTTL = time.Hour
	challengeListTTL   = 10 * time.Minute
)

// ChallengeCache is a read-through redis cache in front of the challenge catalog.
// Redis failures fall back to the catalog.
type ChallengeCache struct {
	client redis.Cmdable
	next   usecase.ChallengeCatalog
	logger *zap.Logger
}

var _ usecase.ChallengeCatalog = (*ChallengeCache)(nil)

func NewChallengeCache(client redis.Cmdable, next usecase.ChallengeCatalog, logger *zap.Logger) *ChallengeCache {
	return &ChallengeCache{client: client, next: next, logger: logger}
}

func (c *ChallengeCache) GetByID(ctx context.Context, id uuid.UUID) (*domain.Challenge, error) {
	key := "challenge:detail:" + id.String()
	var ch domain.Challenge
	if c.load(ctx, key, &ch) {
		return &ch, nil
	}
	got, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, got, challengeDetailTTL)
	return got, nil
}

func (c *ChallengeCache) ListForCategory(ctx context.Context, categoryID uuid.UUID) ([]domain.Challenge, error) {
	return c.list(ctx, "challenges:category:"+categoryID.String(), func() ([]domain.Challenge, error) {
		return c.next.ListForCategory(ctx, categoryID)
	})
}

func (c *ChallengeCache) ListGeneral(ctx context.Context) ([]domain.Challenge, error) {
	return c.list(ctx, "challenges:general", func() ([]domain.Challenge, error) {
		return c.next.ListGeneral(ctx)
	})
}

func (c *ChallengeCache) list(ctx context.Context, key string, fetch func() ([]domain.Challenge, error)) ([]domain.Challenge, error) {
	var cached []domain.Challenge
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	list, err := fetch()
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, list, challengeListTTL)
	return list, nil
}

func (c *ChallengeCache) load(ctx context.Context, key string, dst any) bool {
	val, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("challenge cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	return json.Unmarshal(val, dst) == nil
}

func (c *ChallengeCache) store(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.logger.Warn("challenge cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops a cached challenge. Lists expire on their own.
func (c *ChallengeCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, "challenge:detail:"+id.String(), "challenges:general").Err()
}
