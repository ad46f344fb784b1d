package entitlement_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/svc/entitlement"
	"github.com/storify-asia/storify/svc/identity"
	"github.com/storify-asia/storify/svc/subscription"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

type subsLookup struct {
	mu   sync.Mutex
	subs map[string]*subscription.Subscription
}

func (l *subsLookup) Active(_ context.Context, userID string) (*subscription.Subscription, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs[userID], nil
}

func newService(store entitlement.Store, subs map[string]*subscription.Subscription) *entitlement.Service {
	return entitlement.NewService(store, &subsLookup{subs: subs},
		entitlement.WithClock(func() time.Time { return now }),
		entitlement.WithLimits(entitlement.Limits{Free: 3, Guest: 1}),
	)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	limits := entitlement.Limits{Free: 3, Guest: 1}
	active := &subscription.Subscription{Status: subscription.StatusActive, EndDate: now.Add(time.Hour)}
	lapsed := &subscription.Subscription{Status: subscription.StatusActive, EndDate: now.Add(-time.Hour)}

	tests := []struct {
		name      string
		in        entitlement.Input
		canListen bool
		reason    entitlement.Reason
		limit     *int
	}{
		{"subscriber", entitlement.Input{Identity: identity.User("u"), Subscription: active, ListenCount: 50}, true, entitlement.ReasonNoLimit, nil},
		{"lapsed subscriber falls back to free", entitlement.Input{Identity: identity.User("u"), Subscription: lapsed, ListenCount: 3}, false, entitlement.ReasonFreeLimit, ptr(3)},
		{"free user under limit", entitlement.Input{Identity: identity.User("u"), ListenCount: 2}, true, entitlement.ReasonFreeLimit, ptr(3)},
		{"free user at limit", entitlement.Input{Identity: identity.User("u"), ListenCount: 3}, false, entitlement.ReasonFreeLimit, ptr(3)},
		{"guest fresh", entitlement.Input{Identity: identity.Visitor("v")}, true, entitlement.ReasonGuestLimit, ptr(1)},
		{"guest used", entitlement.Input{Identity: identity.Visitor("v"), ListenCount: 1}, false, entitlement.ReasonGuestLimit, ptr(1)},
		{"no identity", entitlement.Input{ListenCount: 9}, true, entitlement.ReasonGuestLimit, ptr(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := entitlement.Evaluate(tt.in, limits, now)
			assert.Equal(t, tt.canListen, st.CanListen)
			assert.Equal(t, tt.reason, st.Reason)
			assert.Equal(t, tt.limit, st.Limit)

			// same input, same answer
			assert.Equal(t, st, entitlement.Evaluate(tt.in, limits, now))
		})
	}

	st := entitlement.Evaluate(entitlement.Input{Identity: identity.User("u"), Subscription: active}, limits, now)
	require.NotNil(t, st.SubscriptionEndsAt)
	assert.True(t, st.HasSubscription)
	assert.Equal(t, active.EndDate, *st.SubscriptionEndsAt)

	st = entitlement.Evaluate(entitlement.Input{}, limits, now)
	assert.Zero(t, st.ListenCount)
}

func TestGuestBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(entitlement.NewMemoryStore(), nil)
	guest := identity.Visitor("device-1")

	st, err := svc.Play(ctx, guest, 1)
	require.NoError(t, err)
	assert.False(t, st.CanListen)
	assert.Equal(t, 1, st.ListenCount)

	// the gate runs before recording, so an exhausted guest is refused outright
	_, err = svc.Play(ctx, guest, 1)
	assert.Error(t, err)

	_, err = svc.Play(ctx, guest, 2)
	denied, ok := entitlement.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, entitlement.ReasonGuestLimit, denied.Status.Reason)
	assert.Equal(t, 1, denied.Status.ListenCount)
}

func TestFreeUserBoundary(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	svc := newService(store, nil)
	user := identity.User("u1")

	for book := int64(1); book <= 3; book++ {
		_, err := svc.Play(ctx, user, book)
		require.NoError(t, err)
	}
	// re-recording an existing book does not consume quota
	require.NoError(t, svc.Record(ctx, user, 2))

	st, err := svc.Evaluate(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, st.ListenCount)
	assert.False(t, st.CanListen)

	_, err = svc.Play(ctx, user, 4)
	denied, ok := entitlement.IsDenied(err)
	require.True(t, ok)
	assert.Equal(t, entitlement.ReasonFreeLimit, denied.Status.Reason)
	assert.Equal(t, 3, store.Len())
}

func TestSubscriberIsUnlimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc := newService(entitlement.NewMemoryStore(), map[string]*subscription.Subscription{
		"u1": {Status: subscription.StatusActive, EndDate: now.AddDate(0, 0, 30)},
	})

	for book := int64(1); book <= 10; book++ {
		st, err := svc.Play(ctx, identity.User("u1"), book)
		require.NoError(t, err)
		assert.Equal(t, entitlement.ReasonNoLimit, st.Reason)
		assert.Nil(t, st.Limit)
	}
}

func TestNoGuestUserCrossBleed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	svc := newService(store, nil)

	require.NoError(t, svc.Record(ctx, identity.User("shared"), 1))
	require.NoError(t, svc.Record(ctx, identity.User("shared"), 2))

	st, err := svc.Evaluate(ctx, identity.Visitor("shared"))
	require.NoError(t, err)
	assert.Zero(t, st.ListenCount)
	assert.True(t, st.CanListen)

	require.NoError(t, svc.Record(ctx, identity.Visitor("shared"), 3))
	st, err = svc.Evaluate(ctx, identity.User("shared"))
	require.NoError(t, err)
	assert.Equal(t, 2, st.ListenCount)
}

func TestConcurrentRecordIsSetInsert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	svc := newService(store, nil)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, svc.Record(ctx, identity.User("u1"), 42))
		}()
	}
	wg.Wait()

	n, err := store.Count(ctx, identity.User("u1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNoIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := entitlement.NewMemoryStore()
	svc := newService(store, nil)

	st, err := svc.Play(ctx, identity.Identity{}, 1)
	require.NoError(t, err)
	assert.True(t, st.CanListen)
	assert.Equal(t, entitlement.ReasonGuestLimit, st.Reason)
	assert.Zero(t, store.Len())

	assert.ErrorIs(t, svc.Record(ctx, identity.Identity{}, 1), entitlement.ErrNoIdentity)
	_, err = svc.Play(ctx, identity.User("u1"), 0)
	assert.ErrorIs(t, err, entitlement.ErrInvalidContent)
}

type failingStore struct{ mock.Mock }

func (f *failingStore) Record(ctx context.Context, id identity.Identity, bookID int64) error {
	return f.Called(id, bookID).Error(0)
}

func (f *failingStore) Count(ctx context.Context, id identity.Identity) (int, error) {
	args := f.Called(id)
	return args.Int(0), args.Error(1)
}

func TestRecordFailureDoesNotBlockPlayback(t *testing.T) {
	t.Parallel()

	store := &failingStore{}
	store.On("Count", identity.User("u1")).Return(0, nil)
	store.On("Record", identity.User("u1"), int64(5)).Return(errors.New("db down"))

	svc := newService(store, nil)
	st, err := svc.Play(context.Background(), identity.User("u1"), 5)
	require.NoError(t, err)
	assert.True(t, st.CanListen)
	store.AssertExpectations(t)
}

func ptr(v int) *int { return &v }
