package seed_test

import (
	"context"
	"testing"

	"habitquest/internal/domain"
	"habitquest/internal/infrastructure/repository/memory"
	"habitquest/internal/seed"
	"habitquest/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogIsStable(t *testing.T) {
	a := seed.Catalog(testutil.Now)
	b := seed.Catalog(testutil.Now.AddDate(0, 1, 0))
	require.Equal(t, len(a.Challenges), len(b.Challenges))
	for i := range a.Challenges {
		assert.Equal(t, a.Challenges[i].ID, b.Challenges[i].ID)
	}
	for _, lc := range a.LifeChallenges {
		_, err := domain.ParseLifeRule(string(lc.Rule))
		assert.NoError(t, err, lc.Title)
	}
}

func TestDemoSeedsIntoStore(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	require.NoError(t, s.Seed(ctx, seed.Demo(testutil.Now)))
	require.NoError(t, s.Seed(ctx, seed.Demo(testutil.Now)))

	u, err := s.Reader().Users().Get(ctx, seed.DemoUserID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultMaxLives, u.Lives)

	general, err := s.ListGeneral(ctx)
	require.NoError(t, err)
	assert.Len(t, general, 3)

	fitness, err := s.ListForCategory(ctx, seed.CategoryFitness)
	require.NoError(t, err)
	assert.NotEmpty(t, fitness)
}
