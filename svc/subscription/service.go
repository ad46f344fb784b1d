package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/metrics"
)

// ActivationHook runs after a subscription was created for the first time.
type ActivationHook func(ctx context.Context, sub *Subscription, plan *Plan)

type Service struct {
	store   Store
	log     *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics
	hooks   []ActivationHook
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithActivationHook(h ActivationHook) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logger.Nop(),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("subscription"))
	return s
}

// Plans lists the plans offered for purchase.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.store.ListActivePlans(ctx)
}

// PurchasablePlan returns the plan if it exists and is active.
func (s *Service) PurchasablePlan(ctx context.Context, id int64) (*Plan, error) {
	p, err := s.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, ErrPlanInactive
	}
	return p, nil
}

// Active returns the caller's current subscription or nil when there is none.
func (s *Service) Active(ctx context.Context, userID string) (*Subscription, error) {
	if userID == "" {
		return nil, nil
	}
	sub, err := s.store.Active(ctx, userID, s.now())
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return sub, err
}

// ActivateIfPaid creates the subscription bought by p. It is a no-op
// returning nil for unpaid transactions, and returns the existing
// subscription when the transaction was already activated.
func (s *Service) ActivateIfPaid(ctx context.Context, p Payment) (*Subscription, error) {
	if !p.Paid {
		return nil, nil
	}

	plan, err := s.store.GetPlan(ctx, p.PlanID)
	if err != nil {
		return nil, err
	}
	if plan.DurationDays <= 0 {
		return nil, ErrInvalidPlan
	}

	start := s.now()
	txID := p.TransactionID
	sub, created, err := s.store.CreateForTransaction(ctx, Subscription{
		UserID:               p.UserID,
		PlanID:               plan.ID,
		StartDate:            start,
		EndDate:              start.AddDate(0, 0, plan.DurationDays),
		Status:               StatusActive,
		PaymentTransactionID: &txID,
	})
	if err != nil {
		return nil, err
	}

	if created {
		s.metrics.Activation()
		s.log.InfoContext(ctx, "subscription activated",
			logger.UserID(sub.UserID),
			logger.TransactionID(txID),
			slog.Int64("subscription_id", sub.ID),
			slog.Time("end_date", sub.EndDate),
		)
		for _, h := range s.hooks {
			h(ctx, sub, plan)
		}
	}
	return sub, nil
}
