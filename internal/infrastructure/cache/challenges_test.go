package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"habitquest/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// kv implements the redis commands the cache uses.
type kv struct {
	redis.Cmdable
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
	down bool
}

func newKV() *kv { return &kv{data: map[string][]byte{}, ttl: map[string]time.Duration{}} }

func (k *kv) Get(_ context.Context, key string) *redis.StringCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := k.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (k *kv) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	k.data[key] = value.([]byte)
	k.ttl[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (k *kv) Del(_ context.Context, keys ...string) *redis.IntCmd {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

// catalog counts lookups that reach it.
type catalog struct {
	calls      int
	challenges map[uuid.UUID]domain.Challenge
}

func (c *catalog) GetByID(_ context.Context, id uuid.UUID) (*domain.Challenge, error) {
	c.calls++
	ch, ok := c.challenges[id]
	if !ok {
		return nil, domain.ErrChallengeNotFound
	}
	return &ch, nil
}

func (c *catalog) ListForCategory(_ context.Context, categoryID uuid.UUID) ([]domain.Challenge, error) {
	c.calls++
	var out []domain.Challenge
	for _, ch := range c.challenges {
		if ch.CategoryID != nil && *ch.CategoryID == categoryID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c *catalog) ListGeneral(_ context.Context) ([]domain.Challenge, error) {
	c.calls++
	var out []domain.Challenge
	for _, ch := range c.challenges {
		if ch.IsGeneral {
			out = append(out, ch)
		}
	}
	return out, nil
}

func fixture(t *testing.T) (*ChallengeCache, *kv, *catalog, domain.Challenge) {
	cat := uuid.New()
	ch := domain.Challenge{ID: uuid.New(), CategoryID: &cat, Title: "Cold shower", XPReward: 20}
	next := &catalog{challenges: map[uuid.UUID]domain.Challenge{ch.ID: ch}}
	store := newKV()
	return NewChallengeCache(store, next, zaptest.NewLogger(t)), store, next, ch
}

func TestGetByIDReadsThrough(t *testing.T) {
	ctx := context.Background()
	c, store, next, ch := fixture(t)

	for i := 0; i < 3; i++ {
		got, err := c.GetByID(ctx, ch.ID)
		require.NoError(t, err)
		assert.Equal(t, ch.Title, got.Title)
	}
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, challengeDetailTTL, store.ttl["challenge:detail:"+ch.ID.String()])

	require.NoError(t, c.Invalidate(ctx, ch.ID))
	_, err := c.GetByID(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	_, err = c.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrChallengeNotFound)
}

func TestListsAreCached(t *testing.T) {
	ctx := context.Background()
	c, _, next, ch := fixture(t)

	for i := 0; i < 2; i++ {
		list, err := c.ListForCategory(ctx, *ch.CategoryID)
		require.NoError(t, err)
		require.Len(t, list, 1)
	}
	assert.Equal(t, 1, next.calls)
}

func TestRedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, store, next, ch := fixture(t)
	store.down = true

	for i := 0; i < 2; i++ {
		_, err := c.GetByID(ctx, ch.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, next.calls)
}
