package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/pkg/metrics"
	"github.com/storify-asia/storify/svc/identity"
	"github.com/storify-asia/storify/svc/subscription"
)

// SubscriptionLookup finds the active subscription of a user, or nil.
type SubscriptionLookup interface {
	Active(ctx context.Context, userID string) (*subscription.Subscription, error)
}

type Service struct {
	store   Store
	subs    SubscriptionLookup
	limits  Limits
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

type Option func(*Service)

// WithLimits overrides the free and guest allowances.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the entitlement service. Without WithLimits signed-in
// free users get 3 books and visitors 1.
func NewService(store Store, subs SubscriptionLookup, opts ...Option) *Service {
	s := &Service{
		store:  store,
		subs:   subs,
		limits: Limits{Free: 3, Guest: 1},
		log:    logger.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("entitlement"))
	return s
}

// Evaluate gathers subscription and consumption data for id and decides.
func (s *Service) Evaluate(ctx context.Context, id identity.Identity) (Status, error) {
	in := Input{Identity: id}

	if id.IsAuthenticated() {
		sub, err := s.subs.Active(ctx, id.UserID)
		if err != nil {
			return Status{}, err
		}
		in.Subscription = sub
	}
	if !id.IsZero() {
		n, err := s.store.Count(ctx, id)
		if err != nil {
			return Status{}, err
		}
		in.ListenCount = n
	}

	return Evaluate(in, s.limits, s.now()), nil
}

// Record stores a consumption event for id.
func (s *Service) Record(ctx context.Context, id identity.Identity, bookID int64) error {
	if bookID <= 0 {
		return ErrInvalidContent
	}
	return s.store.Record(ctx, id, bookID)
}

// Play gates the start of playback. A denied caller gets a *DeniedError
// carrying the decision. Recording failures never block playback; the
// returned status reflects the state after recording.
func (s *Service) Play(ctx context.Context, id identity.Identity, bookID int64) (Status, error) {
	if bookID <= 0 {
		return Status{}, ErrInvalidContent
	}

	st, err := s.Evaluate(ctx, id)
	if err != nil {
		return Status{}, err
	}
	s.metrics.ListeningDecision(string(st.Reason), st.CanListen)
	if !st.CanListen {
		s.log.InfoContext(ctx, "listening denied",
			logger.UserID(id.UserID),
			logger.VisitorID(id.VisitorID),
			slog.String("reason", string(st.Reason)),
			slog.Int("listen_count", st.ListenCount),
		)
		return Status{}, &DeniedError{Status: st}
	}

	if id.IsZero() {
		return st, nil
	}
	if err := s.store.Record(ctx, id, bookID); err != nil {
		s.log.ErrorContext(ctx, "failed to record listening event",
			logger.UserID(id.UserID),
			logger.VisitorID(id.VisitorID),
			slog.Int64("book_id", bookID),
			logger.Error(err),
		)
		return st, nil
	}

	after, err := s.Evaluate(ctx, id)
	if err != nil {
		s.log.WarnContext(ctx, "failed to re-evaluate after record", logger.Error(err))
		return st, nil
	}
	return after, nil
}
