package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/payment"
	"github.com/storify-asia/storify/svc/subscription"
)

var t0 = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// fakeGateway creates charges, can be polled and pushes notifications whose
// body is a JSON encoded payment.Update.
type fakeGateway struct {
	mock.Mock
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	args := g.Called(req)
	if c, ok := args.Get(0).(*payment.Charge); ok {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}

func (g *fakeGateway) CheckStatus(ctx context.Context, externalID string) (*payment.Update, error) {
	args := g.Called(externalID)
	if u, ok := args.Get(0).(*payment.Update); ok {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

func (g *fakeGateway) VerifyNotification(header http.Header, _ []byte) error {
	return webhook.VerifyToken("secret", header.Get("X-Token"))
}

func (g *fakeGateway) ParseNotification(body []byte) (*payment.Update, error) {
	var u payment.Update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// pushOnly cannot be polled.
type pushOnly struct{ mock.Mock }

func (g *pushOnly) Name() string { return "push" }

func (g *pushOnly) CreatePayment(ctx context.Context, req payment.CreateRequest) (*payment.Charge, error) {
	args := g.Called(req)
	return args.Get(0).(*payment.Charge), args.Error(1)
}

type env struct {
	store   *payment.MemoryStore
	subs    *subscription.MemoryStore
	manager *payment.Manager
	gw      *fakeGateway
	clock   *clock
}

func newEnv(t *testing.T, opts ...payment.Option) *env {
	t.Helper()
	clk := &clock{now: t0}
	subStore := subscription.NewMemoryStore(
		subscription.Plan{Name: "Mingguan", Price: 15000, DurationDays: 7, IsActive: true},
		subscription.Plan{Name: "Bulanan", Price: 49000, DurationDays: 30, IsActive: true},
		subscription.Plan{Name: "Lama", Price: 5000, DurationDays: 1, IsActive: false},
	)
	subSvc := subscription.NewService(subStore, subscription.WithClock(clk.Now))
	gw := &fakeGateway{}
	store := payment.NewMemoryStore()

	base := []payment.Option{
		payment.WithGateways(gw),
		payment.WithDefaultGateway("fake"),
		payment.WithClock(clk.Now),
		payment.WithReferenceGenerator(func(time.Time) string { return "REF-1" }),
	}
	m := payment.NewManager(store, subSvc, append(base, opts...)...)
	return &env{store: store, subs: subStore, manager: m, gw: gw, clock: clk}
}

func (e *env) create(t *testing.T, externalID string) *payment.Transaction {
	t.Helper()
	e.gw.On("CreatePayment", mock.MatchedBy(func(r payment.CreateRequest) bool { return true })).
		Return(&payment.Charge{ExternalID: externalID, PaymentURL: "https://pay.example/" + externalID}, nil).Once()
	tx, err := e.manager.Create(context.Background(), payment.CreateParams{UserID: "u1", PlanID: 2})
	require.NoError(t, err)
	return tx
}

func notify(t *testing.T, externalID string, status payment.Status) []byte {
	t.Helper()
	b, err := json.Marshal(payment.Update{ExternalID: externalID, Status: status})
	require.NoError(t, err)
	return b
}

func validHeader() http.Header {
	h := http.Header{}
	h.Set("X-Token", "secret")
	return h
}

func TestCreate(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	e.gw.On("CreatePayment", payment.CreateRequest{
		Reference: "REF-1",
		UserID:    "u1",
		PlanID:    2,
		PlanName:  "Bulanan",
		Amount:    49000,
		Customer:  payment.Customer{Name: "Sari", Email: "sari@example.com"},
	}).Return(&payment.Charge{ExternalID: "ext-1", QRContent: "000201"}, nil).Once()

	tx, err := e.manager.Create(context.Background(), payment.CreateParams{
		UserID:   "u1",
		PlanID:   2,
		Customer: payment.Customer{Name: "Sari", Email: "sari@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPending, tx.Status)
	assert.Equal(t, int64(49000), tx.Amount)
	assert.Equal(t, "fake", tx.Gateway)
	assert.Equal(t, t0.Add(60*time.Minute), tx.ExpiredAt)

	stored, err := e.manager.Get(context.Background(), tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "ext-1", stored.ExternalID)
	e.gw.AssertExpectations(t)
}

func TestCreateFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("gateway error writes nothing", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		e.gw.On("CreatePayment", mock.Anything).Return(nil, errors.New("503 from partner"))

		_, err := e.manager.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 2})
		assert.ErrorIs(t, err, payment.ErrGatewayFailure)
		_, err = e.store.Get(ctx, 1)
		assert.ErrorIs(t, err, payment.ErrNotFound)
	})

	t.Run("unknown plan", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.manager.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 99})
		assert.ErrorIs(t, err, subscription.ErrPlanNotFound)
	})

	t.Run("inactive plan", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.manager.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 3})
		assert.ErrorIs(t, err, subscription.ErrPlanInactive)
	})

	t.Run("unknown gateway", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		_, err := e.manager.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 2, Gateway: "nope"})
		assert.ErrorIs(t, err, payment.ErrUnknownGateway)
	})
}

func TestWebhookPaidScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	tx := e.create(t, "inv-1")

	e.clock.Set(t0.Add(5 * time.Minute))
	require.NoError(t, e.manager.HandleNotification(ctx, "fake", validHeader(), notify(t, "inv-1", payment.StatusPaid)))

	got, err := e.manager.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)

	sub, err := e.subs.Active(ctx, "u1", e.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sub.PlanID)
	assert.Equal(t, 30*24*time.Hour, sub.EndDate.Sub(sub.StartDate))
	require.NotNil(t, sub.PaymentTransactionID)
	assert.Equal(t, tx.ID, *sub.PaymentTransactionID)

	// duplicate delivery is a no-op
	require.NoError(t, e.manager.HandleNotification(ctx, "fake", validHeader(), notify(t, "inv-1", payment.StatusPaid)))
	assert.Equal(t, 1, e.subs.Count())

	// a late expiry cannot undo the payment
	require.NoError(t, e.manager.HandleNotification(ctx, "fake", validHeader(), notify(t, "inv-1", payment.StatusExpired)))
	got, err = e.manager.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, got.Status)
}

func TestWebhookVerificationPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("strict rejects", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")

		bad := http.Header{}
		bad.Set("X-Token", "forged")
		err := e.manager.HandleNotification(ctx, "fake", bad, notify(t, "inv-1", payment.StatusPaid))
		assert.ErrorIs(t, err, payment.ErrVerificationFailed)

		got, err := e.manager.Get(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, got.Status)
		assert.Zero(t, e.subs.Count())
	})

	t.Run("warn applies", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, payment.WithWebhookPolicy(webhook.PolicyWarn))
		tx := e.create(t, "inv-1")

		require.NoError(t, e.manager.HandleNotification(ctx, "fake", http.Header{}, notify(t, "inv-1", payment.StatusPaid)))
		got, err := e.manager.Get(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
	})

	t.Run("unknown gateway and unknown transaction", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		assert.ErrorIs(t, e.manager.HandleNotification(ctx, "nope", validHeader(), nil), payment.ErrUnknownGateway)
		assert.ErrorIs(t, e.manager.HandleNotification(ctx, "fake", validHeader(), notify(t, "missing", payment.StatusPaid)), payment.ErrNotFound)
	})
}

func TestConcurrentTransitionsHaveOneWinner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	tx := e.create(t, "inv-1")

	statuses := []payment.Status{payment.StatusPaid, payment.StatusExpired, payment.StatusFailed}
	var wg sync.WaitGroup
	for i := range 30 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.manager.Apply(ctx, tx, payment.Update{Status: statuses[i%3]}, payment.SourceWebhook)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := e.manager.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Final())
	if got.Status == payment.StatusPaid {
		assert.Equal(t, 1, e.subs.Count())
	} else {
		assert.Zero(t, e.subs.Count())
	}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("pull reconciliation", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")

		e.gw.On("CheckStatus", "inv-1").Return(&payment.Update{ExternalID: "inv-1", Status: payment.StatusPending}, nil).Once()
		got, err := e.manager.GetStatus(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, got.Status)

		e.gw.On("CheckStatus", "inv-1").Return(&payment.Update{ExternalID: "inv-1", Status: payment.StatusPaid}, nil).Once()
		got, err = e.manager.GetStatus(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.Equal(t, 1, e.subs.Count())

		// finalized transactions are not polled again
		got, err = e.manager.GetStatus(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		e.gw.AssertNumberOfCalls(t, "CheckStatus", 2)
	})

	t.Run("poll error returns local copy and expiry still applies", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")
		e.gw.On("CheckStatus", "inv-1").Return(nil, errors.New("timeout"))

		got, err := e.manager.GetStatus(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, got.Status)

		e.clock.Set(t0.Add(61 * time.Minute))
		got, err = e.manager.GetStatus(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusExpired, got.Status)
	})
}

func TestExpireStale(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	e := newEnv(t)
	push := &pushOnly{}
	m := payment.NewManager(e.store, subscription.NewService(e.subs), payment.WithGateways(push), payment.WithClock(e.clock.Now))

	push.On("CreatePayment", mock.Anything).Return(&payment.Charge{ExternalID: "a", ExpiresAt: t0.Add(10 * time.Minute)}, nil).Once()
	push.On("CreatePayment", mock.Anything).Return(&payment.Charge{ExternalID: "b", ExpiresAt: t0.Add(2 * time.Hour)}, nil).Once()
	a, err := m.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 1, Gateway: "push"})
	require.NoError(t, err)
	b, err := m.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 1, Gateway: "push"})
	require.NoError(t, err)

	e.clock.Set(t0.Add(30 * time.Minute))
	n, err := m.ExpireStale(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := m.Get(ctx, a.ID)
	assert.Equal(t, payment.StatusExpired, got.Status)
	got, _ = m.Get(ctx, b.ID)
	assert.Equal(t, payment.StatusPending, got.Status)
}

func TestManualUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("ownership and status are checked first", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")

		_, err := e.manager.ManualUpdate(ctx, "someone-else", tx.ID, payment.StatusPaid, nil)
		assert.ErrorIs(t, err, payment.ErrNotFound)
		_, err = e.manager.ManualUpdate(ctx, "u1", tx.ID, "refunded", nil)
		assert.ErrorIs(t, err, payment.ErrInvalidStatus)
		e.gw.AssertNotCalled(t, "CheckStatus", mock.Anything)
	})

	t.Run("reported payment unconfirmed by gateway stays pending", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t, payment.WithManualUpdates(true))
		tx := e.create(t, "inv-1")
		e.gw.On("CheckStatus", "inv-1").Return(&payment.Update{ExternalID: "inv-1", Status: payment.StatusPending}, nil).Once()

		got, err := e.manager.ManualUpdate(ctx, "u1", tx.ID, payment.StatusPaid, map[string]any{"note": "sudah bayar"})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPending, got.Status)
		assert.Zero(t, e.subs.Count())
	})

	t.Run("reported payment confirmed by gateway activates", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")
		e.gw.On("CheckStatus", "inv-1").Return(&payment.Update{ExternalID: "inv-1", Status: payment.StatusPaid}, nil).Once()

		got, err := e.manager.ManualUpdate(ctx, "u1", tx.ID, payment.StatusPaid, nil)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.Equal(t, 1, e.subs.Count())

		// already paid: no second poll, no second subscription
		got, err = e.manager.ManualUpdate(ctx, "u1", tx.ID, payment.StatusPaid, nil)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.Equal(t, 1, e.subs.Count())
		e.gw.AssertNumberOfCalls(t, "CheckStatus", 1)
	})

	t.Run("other statuses need the switch", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		tx := e.create(t, "inv-1")

		_, err := e.manager.ManualUpdate(ctx, "u1", tx.ID, payment.StatusFailed, nil)
		assert.ErrorIs(t, err, payment.ErrManualUpdateDisabled)
	})

	t.Run("gateway that cannot be polled", func(t *testing.T) {
		t.Parallel()
		e := newEnv(t)
		push := &pushOnly{}
		push.On("CreatePayment", mock.Anything).Return(&payment.Charge{ExternalID: "p-1"}, nil)

		strict := payment.NewManager(e.store, subscription.NewService(e.subs),
			payment.WithGateways(push), payment.WithClock(e.clock.Now))
		tx, err := strict.Create(ctx, payment.CreateParams{UserID: "u1", PlanID: 2, Gateway: "push"})
		require.NoError(t, err)

		_, err = strict.ManualUpdate(ctx, "u1", tx.ID, payment.StatusPaid, nil)
		assert.ErrorIs(t, err, payment.ErrManualUpdateDisabled)
		assert.Zero(t, e.subs.Count())

		open := payment.NewManager(e.store, subscription.NewService(e.subs),
			payment.WithGateways(push), payment.WithClock(e.clock.Now), payment.WithManualUpdates(true))
		got, err := open.ManualUpdate(ctx, "u1", tx.ID, payment.StatusPaid, map[string]any{"paymentCustomerName": "SARI"})
		require.NoError(t, err)
		assert.Equal(t, payment.StatusPaid, got.Status)
		assert.Equal(t, "SARI", got.Metadata["paymentCustomerName"])
		assert.Equal(t, 1, e.subs.Count())
	})
}

func TestLifecycleClosure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, s := range []payment.Status{payment.StatusPaid, payment.StatusExpired, payment.StatusFailed} {
		assert.True(t, payment.IsTerminal(s), s)
		for _, ev := range []payment.Status{payment.StatusPaid, payment.StatusExpired, payment.StatusFailed} {
			_, err := payment.NextStatus(ctx, s, eventOf(ev))
			assert.Error(t, err)
		}
	}
	assert.False(t, payment.IsTerminal(payment.StatusPending))

	to, err := payment.NextStatus(ctx, payment.StatusPending, payment.EventConfirm)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusPaid, to)
}

func eventOf(s payment.Status) payment.Event {
	switch s {
	case payment.StatusPaid:
		return payment.EventConfirm
	case payment.StatusExpired:
		return payment.EventExpire
	default:
		return payment.EventFail
	}
}
