package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/metrics"
	"github.com/storify-asia/storify/pkg/webhook"
	"github.com/storify-asia/storify/svc/subscription"
)

const DefaultExpiry = 60 * time.Minute

// Subscriptions is what the manager needs from the subscription service.
type Subscriptions interface {
	PurchasablePlan(ctx context.Context, id int64) (*subscription.Plan, error)
	ActivateIfPaid(ctx context.Context, p subscription.Payment) (*subscription.Subscription, error)
}

type CreateParams struct {
	UserID   string
	PlanID   int64
	Gateway  string
	Customer Customer
}

type Manager struct {
	store          Store
	subs           Subscriptions
	gateways       map[string]Gateway
	defaultGateway string
	expiry         time.Duration
	policy         webhook.Policy
	manualUpdates  bool
	now            func() time.Time
	newReference   func(time.Time) string
	log            *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Manager)

// WithGateways registers gateways by name. The first one becomes the default
// unless WithDefaultGateway is set.
func WithGateways(gws ...Gateway) Option {
	return func(m *Manager) {
		for _, g := range gws {
			if g != nil {
				m.gateways[g.Name()] = g
			}
		}
	}
}

func WithDefaultGateway(name string) Option {
	return func(m *Manager) { m.defaultGateway = name }
}

func WithExpiry(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.expiry = d
		}
	}
}

// WithWebhookPolicy decides what happens to notifications that fail
// verification.
func WithWebhookPolicy(p webhook.Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithManualUpdates lets owners set the status of transactions on gateways
// that cannot be polled. Off by default.
func WithManualUpdates(enabled bool) Option {
	return func(m *Manager) { m.manualUpdates = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithReferenceGenerator(fn func(time.Time) string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newReference = fn
		}
	}
}

// NewManager builds a manager with the strict webhook policy and
// DefaultExpiry unless options say otherwise.
func NewManager(store Store, subs Subscriptions, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		subs:         subs,
		gateways:     make(map[string]Gateway),
		expiry:       DefaultExpiry,
		policy:       webhook.PolicyStrict,
		now:          func() time.Time { return time.Now().UTC() },
		newReference: defaultReference,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With(logger.Component("payment"))
	return m
}

func defaultReference(now time.Time) string {
	return fmt.Sprintf("STORIFY-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

// Gateway returns the adapter registered under name, or the default one
// when name is empty.
func (m *Manager) Gateway(name string) (Gateway, error) {
	if name == "" {
		name = m.defaultGateway
	}
	g, ok := m.gateways[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGateway, name)
	}
	return g, nil
}

// Create charges the plan price through the selected gateway and stores a
// pending transaction. Nothing is stored when the gateway call fails.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Transaction, error) {
	plan, err := m.subs.PurchasablePlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	gw, err := m.Gateway(p.Gateway)
	if err != nil {
		return nil, err
	}

	now := m.now()
	charge, err := gw.CreatePayment(ctx, CreateRequest{
		Reference: m.newReference(now),
		UserID:    p.UserID,
		PlanID:    plan.ID,
		PlanName:  plan.Name,
		Amount:    plan.Price,
		Customer:  p.Customer,
	})
	m.metrics.PaymentCreated(gw.Name(), err)
	if err != nil {
		m.log.ErrorContext(ctx, "gateway payment creation failed",
			logger.Gateway(gw.Name()),
			logger.UserID(p.UserID),
			slog.Int64("plan_id", plan.ID),
			logger.Error(err),
		)
		return nil, errors.Join(ErrGatewayFailure, err)
	}

	expiresAt := charge.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(m.expiry)
	}
	tx := &Transaction{
		UserID:     p.UserID,
		PlanID:     plan.ID,
		Amount:     plan.Price,
		Status:     StatusPending,
		Gateway:    gw.Name(),
		ExternalID: charge.ExternalID,
		PaymentURL: charge.PaymentURL,
		QRContent:  charge.QRContent,
		Metadata:   charge.Metadata,
		ExpiredAt:  expiresAt.UTC(),
	}
	if err := m.store.Create(ctx, tx); err != nil {
		// the gateway already holds a live charge nobody will reconcile
		m.log.ErrorContext(ctx, "orphaned gateway payment: failed to store transaction",
			logger.Gateway(gw.Name()),
			slog.String("external_id", charge.ExternalID),
			logger.UserID(p.UserID),
			logger.Error(err),
		)
		return nil, err
	}

	m.log.InfoContext(ctx, "payment created",
		logger.TransactionID(tx.ID),
		logger.Gateway(tx.Gateway),
		logger.UserID(tx.UserID),
		slog.Int64("amount", tx.Amount),
	)
	return tx, nil
}

// Get loads a transaction without contacting its gateway.
func (m *Manager) Get(ctx context.Context, id int64) (*Transaction, error) {
	return m.store.Get(ctx, id)
}

// GetStatus loads the transaction and, while it is pending, reconciles it.
func (m *Manager) GetStatus(ctx context.Context, id int64) (*Transaction, error) {
	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Reconcile(ctx, tx), nil
}

// Reconcile pulls the gateway status of a pending transaction and expires it
// once past its deadline. Failures are logged and the local copy returned.
func (m *Manager) Reconcile(ctx context.Context, tx *Transaction) *Transaction {
	if !tx.IsPending() {
		return tx
	}

	if gw, ok := m.gateways[tx.Gateway]; ok {
		if checker, ok := gw.(StatusChecker); ok && tx.ExternalID != "" {
			upd, err := checker.CheckStatus(ctx, tx.ExternalID)
			switch {
			case err != nil:
				m.log.WarnContext(ctx, "gateway status check failed",
					logger.TransactionID(tx.ID), logger.Gateway(tx.Gateway), logger.Error(err))
			case upd != nil && upd.Status != StatusPending:
				if applied, err := m.Apply(ctx, tx, *upd, SourcePoll); err != nil {
					m.log.WarnContext(ctx, "failed to apply polled status",
						logger.TransactionID(tx.ID), logger.Error(err))
				} else {
					tx = applied
				}
			}
		}
	}

	if tx.IsPending() && m.now().After(tx.ExpiredAt) {
		if applied, err := m.Apply(ctx, tx, Update{Status: StatusExpired}, SourceExpiry); err != nil {
			m.log.WarnContext(ctx, "failed to expire transaction",
				logger.TransactionID(tx.ID), logger.Error(err))
		} else {
			tx = applied
		}
	}
	return tx
}

// Apply moves tx to upd.Status. Updates for finalized transactions, and
// updates that lose a race with a concurrent writer, are no-ops that return
// the stored state. Whenever the result is paid the subscription is
// activated, which is idempotent.
func (m *Manager) Apply(ctx context.Context, tx *Transaction, upd Update, src Source) (*Transaction, error) {
	if upd.Status == StatusPending || upd.Status == tx.Status {
		return m.activate(ctx, tx)
	}
	if !upd.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, upd.Status)
	}
	if tx.Status.Final() {
		m.log.DebugContext(ctx, "ignored update for finalized transaction",
			logger.TransactionID(tx.ID),
			slog.String("status", string(tx.Status)),
			slog.String("requested", string(upd.Status)),
			slog.String("source", string(src)),
			logger.Error(ErrAlreadyFinalized),
		)
		return tx, nil
	}

	event, _ := eventFor(upd.Status)
	to, err := NextStatus(ctx, tx.Status, event)
	if err != nil {
		return nil, errors.Join(ErrInvalidTransition, err)
	}

	var paidAt *time.Time
	if to == StatusPaid {
		t := m.now()
		if upd.PaidAt != nil {
			t = upd.PaidAt.UTC()
		}
		paidAt = &t
	}

	won, err := m.store.Transition(ctx, tx.ID, to, paidAt, upd.Metadata)
	if err != nil {
		return nil, err
	}
	cur, err := m.store.Get(ctx, tx.ID)
	if err != nil {
		return nil, err
	}

	if won {
		m.metrics.PaymentTransition(string(to), string(src))
		m.log.InfoContext(ctx, "payment transitioned",
			logger.TransactionID(tx.ID),
			logger.Gateway(tx.Gateway),
			slog.String("status", string(to)),
			slog.String("source", string(src)),
		)
	} else {
		m.log.DebugContext(ctx, "concurrent transition won by another writer",
			logger.TransactionID(tx.ID),
			slog.String("status", string(cur.Status)),
			slog.String("source", string(src)),
		)
	}
	return m.activate(ctx, cur)
}

func (m *Manager) activate(ctx context.Context, tx *Transaction) (*Transaction, error) {
	if tx.Status != StatusPaid {
		return tx, nil
	}
	_, err := m.subs.ActivateIfPaid(ctx, subscription.Payment{
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		PlanID:        tx.PlanID,
		Paid:          true,
	})
	if err != nil {
		m.log.ErrorContext(ctx, "subscription activation failed",
			logger.TransactionID(tx.ID), logger.UserID(tx.UserID), logger.Error(err))
		return tx, err
	}
	return tx, nil
}

// HandleNotification authenticates and applies a gateway push. Under the
// strict policy an unverified notification is rejected before it is parsed.
func (m *Manager) HandleNotification(ctx context.Context, gateway string, header http.Header, body []byte) error {
	gw, ok := m.gateways[gateway]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownGateway, gateway)
	}
	n, ok := gw.(Notifier)
	if !ok {
		return ErrNotificationsDisabled
	}

	if err := n.VerifyNotification(header, body); err != nil {
		m.metrics.WebhookVerification(gateway, false)
		if m.policy.Enforced() {
			m.log.WarnContext(ctx, "rejected unverified notification",
				logger.Gateway(gateway), logger.Error(err))
			return errors.Join(ErrVerificationFailed, err)
		}
		m.log.WarnContext(ctx, "applying unverified notification",
			logger.Gateway(gateway), logger.Error(err))
	} else {
		m.metrics.WebhookVerification(gateway, true)
	}

	upd, err := n.ParseNotification(body)
	if err != nil {
		return err
	}
	if upd == nil {
		return nil
	}

	tx, err := m.store.GetByExternalID(ctx, gateway, upd.ExternalID)
	if err != nil {
		return err
	}
	_, err = m.Apply(ctx, tx, *upd, SourceWebhook)
	return err
}

// ManualUpdate handles a status reported by the owner of the transaction.
// Transactions of other users are reported as not found.
//
// A reported payment on a gateway that can be polled is never trusted: the
// gateway is asked instead, and the transaction stays pending until it
// confirms. Every other manual change requires WithManualUpdates(true).
func (m *Manager) ManualUpdate(ctx context.Context, userID string, id int64, status Status, metadata map[string]any) (*Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	tx, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, ErrNotFound
	}

	if status == StatusPaid && m.pollable(tx) {
		return m.Reconcile(ctx, tx), nil
	}
	if !m.manualUpdates {
		return nil, ErrManualUpdateDisabled
	}
	return m.Apply(ctx, tx, Update{ExternalID: tx.ExternalID, Status: status, Metadata: metadata}, SourceManual)
}

func (m *Manager) pollable(tx *Transaction) bool {
	_, ok := m.gateways[tx.Gateway].(StatusChecker)
	return ok && tx.ExternalID != ""
}

// ExpireStale reconciles pending transactions past their deadline and
// returns how many left pending.
func (m *Manager) ExpireStale(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}
	txs, err := m.store.ListStalePending(ctx, m.now(), batch)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range txs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if !m.Reconcile(ctx, &txs[i]).IsPending() {
			n++
		}
	}
	return n, nil
}
