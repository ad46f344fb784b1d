package subscription

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps plans and subscriptions in process. It honours the same
// uniqueness rules as PgStore.
type MemoryStore struct {
	mu       sync.Mutex
	plans    []Plan
	subs     []Subscription
	nextPlan int64
	nextSub  int64
}

func NewMemoryStore(plans ...Plan) *MemoryStore {
	m := &MemoryStore{}
	for _, p := range plans {
		_, _ = m.UpsertPlan(context.Background(), p)
	}
	return m
}

func (m *MemoryStore) ListActivePlans(context.Context) ([]Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Plan
	for _, p := range m.plans {
		if p.IsActive {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b Plan) int { return int(a.Price - b.Price) })
	return out, nil
}

func (m *MemoryStore) GetPlan(_ context.Context, id int64) (*Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.plans {
		if p.ID == id {
			return &p, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (m *MemoryStore) UpsertPlan(_ context.Context, p Plan) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.plans {
		if m.plans[i].Name == p.Name {
			p.ID = m.plans[i].ID
			p.CreatedAt = m.plans[i].CreatedAt
			m.plans[i] = p
			return p.ID, nil
		}
	}
	m.nextPlan++
	p.ID = m.nextPlan
	p.CreatedAt = time.Now().UTC()
	m.plans = append(m.plans, p)
	return p.ID, nil
}

func (m *MemoryStore) Active(_ context.Context, userID string, now time.Time) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *Subscription
	for i := range m.subs {
		s := m.subs[i]
		if s.UserID != userID || !s.IsActiveAt(now) {
			continue
		}
		if best == nil || s.EndDate.After(best.EndDate) {
			best = &s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

func (m *MemoryStore) CreateForTransaction(_ context.Context, s Subscription) (*Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.PaymentTransactionID != nil {
		for _, existing := range m.subs {
			if existing.PaymentTransactionID != nil && *existing.PaymentTransactionID == *s.PaymentTransactionID {
				return &existing, false, nil
			}
		}
	}
	m.nextSub++
	s.ID = m.nextSub
	s.CreatedAt = time.Now().UTC()
	m.subs = append(m.subs, s)
	return &s, true, nil
}

// Count returns the number of stored subscriptions.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
