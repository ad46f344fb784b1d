package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/svc/catalog"
)

type mockIndex struct{ mock.Mock }

func (m *mockIndex) Put(ctx context.Context, id string, doc any) error {
	return m.Called(ctx, id, doc).Error(0)
}

func (m *mockIndex) Search(ctx context.Context, q string, limit int) ([]string, error) {
	args := m.Called(ctx, q, limit)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

type mockSigner struct{ mock.Mock }

func (m *mockSigner) URL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func seedBooks() []catalog.NewBook {
	return []catalog.NewBook{
		{Title: "Atomic Habits", Author: "James Clear", AudioURL: "audio/atomic.mp3", Duration: 900, Category: "Self-Improvement", IsFeatured: true},
		{Title: "Deep Work", Author: "Cal Newport", AudioURL: "https://cdn.test/deep.mp3", Duration: 1200, Category: "Productivity", IsFeatured: true},
		{Title: "The Psychology of Money", Author: "Morgan Housel", AudioURL: "https://cdn.test/money.mp3", Duration: 600, Category: "Finance"},
	}
}

func TestList(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := catalog.NewService(catalog.NewMemoryStore(seedBooks()...))

	all, err := svc.List(ctx, catalog.ListParams{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].ID, "newest first")

	featured := true
	got, err := svc.List(ctx, catalog.ListParams{Featured: &featured})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = svc.List(ctx, catalog.ListParams{Search: "deep"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Deep Work", got[0].Title)

	got, err = svc.List(ctx, catalog.ListParams{Category: "Finance"})
	require.NoError(t, err)
	require.Len(t, got, 1)

	cats, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Finance", "Productivity", "Self-Improvement"}, cats)
}

func TestListUsesSearchIndex(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := &mockIndex{}
	idx.On("Search", mock.Anything, "habit money", mock.Anything).Return([]string{"3", "1", "99", "x"}, nil).Once()
	svc := catalog.NewService(catalog.NewMemoryStore(seedBooks()...), catalog.WithSearchIndex(idx))

	got, err := svc.List(ctx, catalog.ListParams{Search: "habit money"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID, "index order is kept")
	assert.Equal(t, int64(1), got[1].ID)

	idx.On("Search", mock.Anything, "deep", mock.Anything).Return(nil, errors.New("down")).Once()
	got, err = svc.List(ctx, catalog.ListParams{Search: "deep"})
	require.NoError(t, err)
	require.Len(t, got, 1, "falls back to title match")
	idx.AssertExpectations(t)
}

func TestCreateIndexesBook(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	idx := &mockIndex{}
	idx.On("Put", mock.Anything, "1", mock.Anything).Return(errors.New("index down")).Once()
	svc := catalog.NewService(catalog.NewMemoryStore(), catalog.WithSearchIndex(idx))

	b, err := svc.Create(ctx, seedBooks()[0])
	require.NoError(t, err, "index failures do not fail creation")
	assert.Equal(t, int64(1), b.ID)

	_, err = svc.Create(ctx, catalog.NewBook{Title: "No audio", Author: "x", Category: "y", Duration: 1})
	assert.ErrorIs(t, err, catalog.ErrInvalidBook)
	idx.AssertExpectations(t)

	idx.On("Put", mock.Anything, "1", mock.Anything).Return(nil).Once()
	n, err := svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAudioURLsArePresigned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	signer := &mockSigner{}
	signer.On("URL", mock.Anything, "audio/atomic.mp3").Return("https://bucket.test/audio/atomic.mp3?X-Amz-Signature=abc", nil)
	svc := catalog.NewService(catalog.NewMemoryStore(seedBooks()...), catalog.WithAudioSigner(signer))

	b, err := svc.Get(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, b.AudioURL, "X-Amz-Signature")

	b, err = svc.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/deep.mp3", b.AudioURL)
	signer.AssertNumberOfCalls(t, "URL", 1)

	_, err = svc.Get(ctx, 42)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestToggleFavorite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := catalog.NewService(catalog.NewMemoryStore(seedBooks()...))

	on, err := svc.ToggleFavorite(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, on)

	fav, err := svc.IsFavorite(ctx, "u1", 2)
	require.NoError(t, err)
	assert.True(t, fav)

	fav, err = svc.IsFavorite(ctx, "u2", 2)
	require.NoError(t, err)
	assert.False(t, fav)

	books, err := svc.Favorites(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, books, 1)

	on, err = svc.ToggleFavorite(ctx, "u1", 2)
	require.NoError(t, err)
	assert.False(t, on)

	_, err = svc.ToggleFavorite(ctx, "u1", 99)
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	fav, err = svc.IsFavorite(ctx, "", 2)
	require.NoError(t, err)
	assert.False(t, fav)
}

func TestPlaybackProgress(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := catalog.NewMemoryStore(seedBooks()...)
	svc := catalog.NewService(store)

	p, err := svc.Progress(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Zero(t, p.Progress)

	base := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.SaveProgress(ctx, "u1", catalog.Progress{BookID: 1, Progress: 40, CurrentTime: 360, UpdatedAt: base}))
	require.NoError(t, svc.SaveProgress(ctx, "u1", catalog.Progress{BookID: 3, Progress: 150, CurrentTime: 10, UpdatedAt: base.Add(time.Minute)}))
	require.NoError(t, svc.SaveProgress(ctx, "u2", catalog.Progress{BookID: 2, Progress: 5, CurrentTime: 1, UpdatedAt: base}))

	p, err = svc.Progress(ctx, "u1", 1)
	require.NoError(t, err)
	assert.InDelta(t, 40, p.Progress, 0.001)
	assert.InDelta(t, 360, p.CurrentTime, 0.001)

	recent, err := svc.RecentlyPlayed(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, int64(3), recent[0].ID, "most recent first")
	assert.InDelta(t, 100, recent[0].Progress, 0.001, "progress is capped")

	assert.ErrorIs(t, svc.SaveProgress(ctx, "u1", catalog.Progress{BookID: 1, Progress: -1}), catalog.ErrInvalidInput)
	assert.ErrorIs(t, svc.SaveProgress(ctx, "u1", catalog.Progress{BookID: 77, Progress: 1}), catalog.ErrNotFound)
}

func TestRecentlyPlayedLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	var books []catalog.NewBook
	for range 12 {
		books = append(books, catalog.NewBook{Title: "B", Author: "A", AudioURL: "https://x/a.mp3", Duration: 1, Category: "C"})
	}
	svc := catalog.NewService(catalog.NewMemoryStore(books...))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 12; i++ {
		require.NoError(t, svc.SaveProgress(ctx, "u1", catalog.Progress{BookID: i, Progress: 1, UpdatedAt: base.Add(time.Duration(i) * time.Second)}))
	}

	recent, err := svc.RecentlyPlayed(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, recent, catalog.RecentlyPlayedLimit)
	assert.Equal(t, int64(12), recent[0].ID)
}
