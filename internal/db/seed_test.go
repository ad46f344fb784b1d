package db_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/internal/db"
	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/svc/catalog"
	"github.com/storify-asia/storify/svc/subscription"
)

func TestEmbeddedSeed(t *testing.T) {
	t.Parallel()
	data, err := db.LoadSeed()
	require.NoError(t, err)

	require.Len(t, data.Plans, 3)
	assert.Equal(t, "Mingguan", data.Plans[0].Name)
	assert.Equal(t, int64(15000), data.Plans[0].Price)
	assert.Equal(t, 7, data.Plans[0].DurationDays)
	assert.Equal(t, int64(399000), data.Plans[2].Price)
	assert.Equal(t, 365, data.Plans[2].DurationDays)

	require.Len(t, data.Books, 5)
	assert.Equal(t, "Atomic Habits", data.Books[0].Title)
	assert.Equal(t, 900, data.Books[0].Duration)
	assert.True(t, data.Books[0].IsFeatured)
	assert.NotEmpty(t, data.Books[0].AudioURL)
}

func TestSeedIsRepeatable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	data, err := db.LoadSeed()
	require.NoError(t, err)

	plans := subscription.NewMemoryStore()
	books := catalog.NewMemoryStore()

	res, err := db.Seed(ctx, data, plans, books, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, db.SeedResult{Plans: 3, Books: 5}, res)

	res, err = db.Seed(ctx, data, plans, books, logger.Nop())
	require.NoError(t, err)
	assert.Equal(t, db.SeedResult{Plans: 3, Books: 0}, res)

	active, err := plans.ListActivePlans(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	all, err := books.ListBooks(ctx, catalog.ListParams{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestParseSeedRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := db.ParseSeed([]byte("plans: [oops"))
	assert.Error(t, err)
}
